package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/config"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
)

// MigrateNetworks runs one MigrationRunner per selected network. Networks
// share nothing, so the runs are concurrent; a failure on one network does
// not stop the others.
type MigrateNetworks struct {
	registry  *models.NetworkRegistry
	ledgers   LedgerFactory
	connector ChainConnector
	runner    *MigrationRunner
	log       *slog.Logger
}

// NewMigrateNetworks creates a new MigrateNetworks use case
func NewMigrateNetworks(
	cfg *config.RuntimeConfig,
	ledgers LedgerFactory,
	connector ChainConnector,
	runner *MigrationRunner,
	log *slog.Logger,
) *MigrateNetworks {
	return &MigrateNetworks{
		registry:  cfg.Registry,
		ledgers:   ledgers,
		connector: connector,
		runner:    runner,
		log:       log,
	}
}

// MigrateNetworksParams contains parameters for a multi-network run
type MigrateNetworksParams struct {
	Networks []string
	DryRun   bool
}

// MigrateNetworksResult holds one RunResult per requested network, in the
// requested order. Results of failed networks are kept.
type MigrateNetworksResult struct {
	Runs []*RunResult
}

// Run executes the migrations on every requested network
func (uc *MigrateNetworks) Run(ctx context.Context, params MigrateNetworksParams) (*MigrateNetworksResult, error) {
	if len(params.Networks) == 0 {
		return nil, domain.NewConfigurationError("", "no network selected")
	}

	networks := make([]*models.Network, 0, len(params.Networks))
	seen := make(map[string]bool)
	for _, name := range params.Networks {
		n, ok := uc.registry.Lookup(name)
		if !ok {
			return nil, domain.NewConfigurationError("", "network %q is not configured", name)
		}
		if seen[name] {
			return nil, domain.NewConfigurationError("", "network %q selected twice", name)
		}
		seen[name] = true
		networks = append(networks, n)
	}

	result := &MigrateNetworksResult{Runs: make([]*RunResult, len(networks))}
	errs := make([]error, len(networks))

	var g errgroup.Group
	for i, network := range networks {
		g.Go(func() error {
			run, err := uc.runNetwork(ctx, network, params.DryRun)
			if run == nil {
				run = &RunResult{Network: network.Name, State: StateFailed}
			}
			result.Runs[i] = run
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	return result, errors.Join(errs...)
}

func (uc *MigrateNetworks) runNetwork(ctx context.Context, network *models.Network, dryRun bool) (*RunResult, error) {
	ledger, err := OpenLedger(ctx, uc.ledgers, uc.registry, network)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := ledger.Close(); cerr != nil {
			uc.log.Warn("failed to close ledger", "network", network.Name, "error", cerr)
		}
	}()

	params := RunParams{Network: network, Ledger: ledger, DryRun: dryRun}
	if !dryRun {
		chain, err := uc.connector.Connect(ctx, network)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", network.Name, err)
		}
		defer chain.Close()
		params.Chain = chain
	}

	return uc.runner.Run(ctx, params)
}

// OpenLedger opens a network's ledger partition. A fork network with an
// empty partition starts from a copy of its parent's records.
func OpenLedger(ctx context.Context, factory LedgerFactory, registry *models.NetworkRegistry, network *models.Network) (Ledger, error) {
	ledger, err := factory.Open(ctx, network)
	if err != nil {
		return nil, err
	}
	if network.ForkOf == "" {
		return ledger, nil
	}

	if err := seedFork(ctx, factory, registry, network, ledger); err != nil {
		_ = ledger.Close()
		return nil, err
	}
	return ledger, nil
}

func seedFork(ctx context.Context, factory LedgerFactory, registry *models.NetworkRegistry, network *models.Network, ledger Ledger) error {
	applied, err := ledger.Applied(ctx)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		return nil
	}

	parentNetwork, ok := registry.Lookup(network.ForkOf)
	if !ok {
		return domain.NewConfigurationError("", "%s is a fork of unknown network %q", network.Name, network.ForkOf)
	}
	parent, err := factory.Open(ctx, parentNetwork)
	if err != nil {
		return fmt.Errorf("failed to open parent ledger %s: %w", parentNetwork.Name, err)
	}
	defer parent.Close()

	snapshot, err := parent.Snapshot(ctx)
	if err != nil {
		return err
	}
	if len(snapshot.Applied) == 0 {
		return nil
	}
	snapshot.Network = network.Name
	return ledger.Import(ctx, snapshot)
}
