package blockchain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

// dialTimeout bounds connecting and the chain id check
const dialTimeout = 15 * time.Second

// Connector dials network RPC endpoints with ethclient
type Connector struct {
	log *slog.Logger
}

// NewConnector creates a new chain connector
func NewConnector(log *slog.Logger) *Connector {
	return &Connector{log: log}
}

// Connect dials the network and verifies the node serves the configured chain
func (c *Connector) Connect(ctx context.Context, network *models.Network) (usecase.ChainClient, error) {
	if network.RPCURL == "" {
		return nil, domain.NewConfigurationError("network "+network.Name, "rpc_url is not set")
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, network.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC: %w", network.Name, err)
	}

	chainID, err := client.ChainID(dialCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain ID of %s: %w", network.Name, err)
	}
	if chainID.Uint64() != network.ChainID {
		client.Close()
		return nil, domain.NewConfigurationError("network "+network.Name, "chain ID mismatch: expected %d, got %d", network.ChainID, chainID.Uint64())
	}

	c.log.Debug("connected", "network", network.Name, "chainId", network.ChainID, "signer", network.Signer.Type)
	cc, err := newClient(network, client, client.Client(), client.Close, c.log)
	if err != nil {
		client.Close()
		return nil, err
	}
	return cc, nil
}

var _ usecase.ChainConnector = (*Connector)(nil)
