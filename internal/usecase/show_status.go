package usecase

import (
	"context"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/config"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
)

// ShowStatus lists every migration step with its applied state on a network
type ShowStatus struct {
	registry *models.NetworkRegistry
	steps    StepSource
	ledgers  LedgerFactory
}

// NewShowStatus creates a new ShowStatus use case
func NewShowStatus(cfg *config.RuntimeConfig, steps StepSource, ledgers LedgerFactory) *ShowStatus {
	return &ShowStatus{registry: cfg.Registry, steps: steps, ledgers: ledgers}
}

// ShowStatusParams contains parameters for showing status
type ShowStatusParams struct {
	Network string
}

// StepStatus pairs a step with its ledger entry, if applied
type StepStatus struct {
	Step    *models.MigrationStep
	Applied *models.AppliedStep
}

// ShowStatusResult contains the status of all steps
type ShowStatusResult struct {
	Network *models.Network
	Steps   []StepStatus
	// Unknown lists applied steps that no longer exist in the migrations
	Unknown      []*models.AppliedStep
	AppliedCount int
}

// Run builds the status table
func (uc *ShowStatus) Run(ctx context.Context, params ShowStatusParams) (*ShowStatusResult, error) {
	network, ok := uc.registry.Lookup(params.Network)
	if !ok {
		return nil, domain.NewConfigurationError("", "network %q is not configured", params.Network)
	}

	steps, err := uc.steps.Load(ctx)
	if err != nil {
		return nil, err
	}

	ledger, err := uc.ledgers.Open(ctx, network)
	if err != nil {
		return nil, err
	}
	defer ledger.Close()

	applied, err := ledger.Applied(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[models.StepID]*models.AppliedStep, len(applied))
	for _, a := range applied {
		byID[a.ID] = a
	}

	result := &ShowStatusResult{Network: network, AppliedCount: len(applied)}
	for _, step := range steps {
		a := byID[step.ID]
		delete(byID, step.ID)
		result.Steps = append(result.Steps, StepStatus{Step: step, Applied: a})
	}
	for _, a := range applied {
		if _, orphan := byID[a.ID]; orphan {
			result.Unknown = append(result.Unknown, a)
		}
	}
	return result, nil
}
