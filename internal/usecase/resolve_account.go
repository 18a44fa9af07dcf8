package usecase

import (
	"context"
	"errors"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/config"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
)

// NamedAccountResolver maps role names to addresses on a network. There is no
// fallback: a role without an address on the network is an error.
type NamedAccountResolver struct {
	registry *models.NetworkRegistry
	table    *models.NamedAccountTable
}

// NewNamedAccountResolver creates a resolver over the loaded account table
func NewNamedAccountResolver(cfg *config.RuntimeConfig) *NamedAccountResolver {
	return &NamedAccountResolver{
		registry: cfg.Registry,
		table:    cfg.Accounts,
	}
}

// Resolve returns the address of role on network
func (r *NamedAccountResolver) Resolve(role, network string) (models.Account, error) {
	if !r.registry.Has(network) {
		return models.Account{}, domain.NewConfigurationError("", "network %q is not configured", network)
	}

	v, roleKnown, entryKnown := r.table.Lookup(role, network)
	switch {
	case !roleKnown:
		return models.Account{}, &domain.UnresolvedAccountError{Role: role, Network: network, Reason: domain.UnresolvedUnknownRole}
	case !entryKnown:
		return models.Account{}, &domain.UnresolvedAccountError{Role: role, Network: network, Reason: domain.UnresolvedNotApplicable}
	case v.Unassigned():
		return models.Account{}, &domain.UnresolvedAccountError{Role: role, Network: network, Reason: domain.UnresolvedNotAssigned}
	}

	return models.Account{
		Role:    role,
		Network: network,
		Address: v.Address,
		Ledger:  v.Ledger,
	}, nil
}

// ResolveAll resolves the given roles, stopping at the first failure
func (r *NamedAccountResolver) ResolveAll(roles []string, network string) (map[string]models.Account, error) {
	out := make(map[string]models.Account, len(roles))
	for _, role := range roles {
		acct, err := r.Resolve(role, network)
		if err != nil {
			return nil, err
		}
		out[role] = acct
	}
	return out, nil
}

// ListAccounts reports every role of the table on one network
type ListAccounts struct {
	resolver *NamedAccountResolver
	table    *models.NamedAccountTable
}

// NewListAccounts creates a new ListAccounts use case
func NewListAccounts(cfg *config.RuntimeConfig, resolver *NamedAccountResolver) *ListAccounts {
	return &ListAccounts{resolver: resolver, table: cfg.Accounts}
}

// ListAccountsParams contains parameters for listing accounts
type ListAccountsParams struct {
	Network string
}

// AccountResolution is the outcome of resolving one role
type AccountResolution struct {
	Role     string
	Account  *models.Account
	Reason   domain.UnresolvedReason
	Resolved bool
}

// ListAccountsResult contains the per-role resolutions
type ListAccountsResult struct {
	Network  string
	Accounts []AccountResolution
}

// Run resolves every role on the network
func (uc *ListAccounts) Run(ctx context.Context, params ListAccountsParams) (*ListAccountsResult, error) {
	result := &ListAccountsResult{Network: params.Network}
	for _, role := range uc.table.Roles() {
		acct, err := uc.resolver.Resolve(role, params.Network)
		if err != nil {
			var unresolved *domain.UnresolvedAccountError
			if !errors.As(err, &unresolved) {
				return nil, err
			}
			result.Accounts = append(result.Accounts, AccountResolution{Role: role, Reason: unresolved.Reason})
			continue
		}
		result.Accounts = append(result.Accounts, AccountResolution{Role: role, Account: &acct, Resolved: true})
	}
	return result, nil
}
