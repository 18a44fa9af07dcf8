package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/samber/lo"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/config"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
)

// InstanceNotFoundError is returned by ShowInstance with close matches
type InstanceNotFoundError struct {
	Instance    string
	Network     string
	Suggestions []string
}

func (e *InstanceNotFoundError) Error() string {
	msg := fmt.Sprintf("instance %q has no deployment on %s", e.Instance, e.Network)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

func (e *InstanceNotFoundError) Unwrap() error { return domain.ErrNotFound }

// ShowInstance shows the ledger record of one instance
type ShowInstance struct {
	registry *models.NetworkRegistry
	ledgers  LedgerFactory
}

// NewShowInstance creates a new ShowInstance use case
func NewShowInstance(cfg *config.RuntimeConfig, ledgers LedgerFactory) *ShowInstance {
	return &ShowInstance{registry: cfg.Registry, ledgers: ledgers}
}

// ShowInstanceParams contains parameters for showing an instance
type ShowInstanceParams struct {
	Network  string
	Instance string
}

// ShowInstanceResult contains the record plus its grants and calls
type ShowInstanceResult struct {
	Network *models.Network
	Record  *models.DeploymentRecord
	Grants  []*models.RoleGrant
	Calls   []*models.CallRecord
}

const maxSuggestions = 3

// Run looks up the instance
func (uc *ShowInstance) Run(ctx context.Context, params ShowInstanceParams) (*ShowInstanceResult, error) {
	network, ok := uc.registry.Lookup(params.Network)
	if !ok {
		return nil, domain.NewConfigurationError("", "network %q is not configured", params.Network)
	}

	ledger, err := uc.ledgers.Open(ctx, network)
	if err != nil {
		return nil, err
	}
	defer ledger.Close()

	snapshot, err := ledger.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	rec, found := lo.Find(snapshot.Records, func(r *models.DeploymentRecord) bool {
		return r.Instance == params.Instance
	})
	if !found {
		names := lo.Map(snapshot.Records, func(r *models.DeploymentRecord, _ int) string { return r.Instance })
		return nil, &InstanceNotFoundError{
			Instance:    params.Instance,
			Network:     network.Name,
			Suggestions: suggest(params.Instance, names),
		}
	}

	return &ShowInstanceResult{
		Network: network,
		Record:  rec,
		Grants: lo.Filter(snapshot.Grants, func(g *models.RoleGrant, _ int) bool {
			return g.Instance == params.Instance
		}),
		Calls: lo.Filter(snapshot.Calls, func(c *models.CallRecord, _ int) bool {
			return c.Instance == params.Instance
		}),
	}, nil
}

func suggest(query string, names []string) []string {
	matches := fuzzy.Find(query, names)
	if len(matches) == 0 {
		matches = fuzzy.Find(strings.ToLower(query), lo.Map(names, func(n string, _ int) string { return strings.ToLower(n) }))
	}
	out := make([]string, 0, maxSuggestions)
	for _, m := range matches {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, names[m.Index])
	}
	return out
}

// IsInstanceNotFound reports whether err is an InstanceNotFoundError
func IsInstanceNotFound(err error) bool {
	var nf *InstanceNotFoundError
	return errors.As(err, &nf)
}
