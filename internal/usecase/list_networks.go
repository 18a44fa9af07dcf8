package usecase

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/bancorprotocol/carbon-migrate/internal/domain/config"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
)

// ListNetworks lists the network registry, optionally probing each RPC
type ListNetworks struct {
	registry  *models.NetworkRegistry
	connector ChainConnector
}

// NewListNetworks creates a new ListNetworks use case
func NewListNetworks(cfg *config.RuntimeConfig, connector ChainConnector) *ListNetworks {
	return &ListNetworks{registry: cfg.Registry, connector: connector}
}

// ListNetworksParams contains parameters for listing networks
type ListNetworksParams struct {
	// Check connects to every network and verifies its chain id
	Check bool
}

// NetworkInfo contains information about a network
type NetworkInfo struct {
	Network *models.Network
	Checked bool
	Error   error
}

// ListNetworksResult contains the result of listing networks
type ListNetworksResult struct {
	Networks []*NetworkInfo
}

// Run lists the networks
func (uc *ListNetworks) Run(ctx context.Context, params ListNetworksParams) (*ListNetworksResult, error) {
	networks := uc.registry.All()
	result := &ListNetworksResult{Networks: make([]*NetworkInfo, len(networks))}
	for i, n := range networks {
		result.Networks[i] = &NetworkInfo{Network: n}
	}
	if !params.Check {
		return result, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, info := range result.Networks {
		g.Go(func() error {
			info.Checked = true
			client, err := uc.connector.Connect(gctx, info.Network)
			if err != nil {
				info.Error = err
				return nil
			}
			client.Close()
			return nil
		})
	}
	_ = g.Wait()

	return result, nil
}
