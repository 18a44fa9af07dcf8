package ledger

import (
	"io"
	"log/slog"

	"github.com/bancorprotocol/carbon-migrate/internal/domain/config"
)

func newTestConfig(root string, backend config.LedgerBackend) *config.RuntimeConfig {
	if backend == "" {
		backend = config.LedgerFile
	}
	return &config.RuntimeConfig{
		ProjectRoot: root,
		Project: &config.ProjectSettings{
			DeploymentsDir: root,
			Ledger:         backend,
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
