package ledger

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/bancorprotocol/carbon-migrate/internal/domain/config"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

// Factory opens ledger partitions under the deployments directory, one
// subdirectory per network. Non-persistent networks get an in-memory
// partition that lives for the process.
type Factory struct {
	root    string
	backend config.LedgerBackend
	log     *slog.Logger

	mu     sync.Mutex
	memory map[string]*MemoryLedger
}

// NewFactory creates a ledger factory from the project settings
func NewFactory(cfg *config.RuntimeConfig, log *slog.Logger) *Factory {
	return &Factory{
		root:    cfg.Project.DeploymentsDir,
		backend: cfg.Project.Ledger,
		log:     log,
		memory:  make(map[string]*MemoryLedger),
	}
}

// Open opens the partition of network
func (f *Factory) Open(ctx context.Context, network *models.Network) (usecase.Ledger, error) {
	if !network.Persistent {
		f.mu.Lock()
		defer f.mu.Unlock()
		l, ok := f.memory[network.Name]
		if !ok {
			l = NewMemoryLedger(network.Name, network.ChainID)
			f.memory[network.Name] = l
		}
		f.log.Debug("using in-memory ledger", "network", network.Name)
		return l, nil
	}

	dir := filepath.Join(f.root, network.Name)
	f.log.Debug("opening ledger", "network", network.Name, "backend", f.backend, "dir", dir)
	if f.backend == config.LedgerPebble {
		return OpenPebbleLedger(network, dir)
	}
	return OpenFileLedger(network, dir)
}

var _ usecase.LedgerFactory = (*Factory)(nil)
