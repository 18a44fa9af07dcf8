package app

import (
	"github.com/bancorprotocol/carbon-migrate/internal/domain/config"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

// App is the main application container that holds all use cases
type App struct {
	// Configuration
	Config *config.RuntimeConfig

	// Shared dependencies
	Progress usecase.ProgressSink

	// Use cases
	MigrateNetworks   *usecase.MigrateNetworks
	ShowStatus        *usecase.ShowStatus
	ShowInstance      *usecase.ShowInstance
	ListNetworks      *usecase.ListNetworks
	ListAccounts      *usecase.ListAccounts
	ExportDeployments *usecase.ExportDeployments
}

// NewApp creates a new application instance with all use cases
func NewApp(
	cfg *config.RuntimeConfig,
	progress usecase.ProgressSink,
	migrateNetworks *usecase.MigrateNetworks,
	showStatus *usecase.ShowStatus,
	showInstance *usecase.ShowInstance,
	listNetworks *usecase.ListNetworks,
	listAccounts *usecase.ListAccounts,
	exportDeployments *usecase.ExportDeployments,
) (*App, error) {
	return &App{
		Config:            cfg,
		Progress:          progress,
		MigrateNetworks:   migrateNetworks,
		ShowStatus:        showStatus,
		ShowInstance:      showInstance,
		ListNetworks:      listNetworks,
		ListAccounts:      listAccounts,
		ExportDeployments: exportDeployments,
	}, nil
}
