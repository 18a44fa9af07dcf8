//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
	"github.com/spf13/viper"

	"github.com/bancorprotocol/carbon-migrate/internal/adapters"
	"github.com/bancorprotocol/carbon-migrate/internal/config"
	"github.com/bancorprotocol/carbon-migrate/internal/logging"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

// InitApp creates a fully wired App instance
func InitApp(v *viper.Viper, sink usecase.ProgressSink) (*App, error) {
	wire.Build(
		// Configuration
		config.Provider,
		logging.LoggingSet,

		// Adapters
		adapters.AllAdapters,

		// Use cases
		usecase.NewNamedAccountResolver,
		usecase.NewInstanceDeployer,
		usecase.NewRoleGrantor,
		usecase.NewMigrationRunner,
		usecase.NewMigrateNetworks,
		usecase.NewShowStatus,
		usecase.NewShowInstance,
		usecase.NewListNetworks,
		usecase.NewListAccounts,
		usecase.NewExportDeployments,

		// App
		NewApp,
	)
	return nil, nil
}
