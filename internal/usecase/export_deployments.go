package usecase

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/config"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
)

// ExportDeployments produces the post-deploy metadata external verifiers use
type ExportDeployments struct {
	registry *models.NetworkRegistry
	ledgers  LedgerFactory
}

// NewExportDeployments creates a new ExportDeployments use case
func NewExportDeployments(cfg *config.RuntimeConfig, ledgers LedgerFactory) *ExportDeployments {
	return &ExportDeployments{registry: cfg.Registry, ledgers: ledgers}
}

// ExportDeploymentsParams contains parameters for exporting
type ExportDeploymentsParams struct {
	Network string
}

// ExportedInstance is the verifier-facing view of a record
type ExportedInstance struct {
	Instance       string          `json:"instance"`
	Contract       string          `json:"contract"`
	Address        common.Address  `json:"address"`
	Implementation *common.Address `json:"implementation,omitempty"`
	ABIHash        common.Hash     `json:"abiHash"`
	MetadataHash   common.Hash     `json:"metadataHash"`
	LastApplied    string          `json:"lastApplied"`
}

// ExportDeploymentsResult is serialised as is by the CLI
type ExportDeploymentsResult struct {
	Network   string             `json:"network"`
	ChainID   uint64             `json:"chainId"`
	Instances []ExportedInstance `json:"instances"`
}

// Run exports the network's records sorted by instance name
func (uc *ExportDeployments) Run(ctx context.Context, params ExportDeploymentsParams) (*ExportDeploymentsResult, error) {
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

	result := &ExportDeploymentsResult{
		Network:   network.Name,
		ChainID:   network.ChainID,
		Instances: make([]ExportedInstance, 0, len(snapshot.Records)),
	}
	for _, rec := range snapshot.Records {
		entry := ExportedInstance{
			Instance:     rec.Instance,
			Contract:     rec.Contract,
			Address:      rec.Address,
			ABIHash:      rec.ABIHash,
			MetadataHash: rec.MetadataHash,
			LastApplied:  rec.LastApplied.String(),
		}
		if rec.Proxy {
			impl := rec.Implementation
			entry.Implementation = &impl
		}
		result.Instances = append(result.Instances, entry)
	}
	sort.Slice(result.Instances, func(i, j int) bool {
		return result.Instances[i].Instance < result.Instances[j].Instance
	})
	return result, nil
}
