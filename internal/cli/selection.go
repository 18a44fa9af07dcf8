package cli

import (
	"fmt"

	"github.com/bancorprotocol/carbon-migrate/internal/adapters/interactive"
	"github.com/bancorprotocol/carbon-migrate/internal/app"
	"github.com/bancorprotocol/carbon-migrate/internal/domain"
)

// singleNetwork returns the one network a query command works on. Without
// --network the user picks one interactively.
func singleNetwork(app *app.App) (string, error) {
	switch len(app.Config.Networks) {
	case 1:
		return app.Config.Networks[0], nil
	case 0:
	default:
		return "", domain.NewConfigurationError("", "this command takes exactly one network, got %d", len(app.Config.Networks))
	}

	if app.Config.NonInteractive {
		return "", domain.NewConfigurationError("", "no network selected (use --network)")
	}
	return interactive.SelectOne("Select network", app.Config.Registry.Names())
}

// migrationNetworks returns the networks to migrate. Without --network the
// user picks any number of them interactively.
func migrationNetworks(app *app.App) ([]string, error) {
	if len(app.Config.Networks) > 0 || app.Config.NonInteractive {
		return app.Config.Networks, nil
	}

	options := make([]interactive.Option, 0, len(app.Config.Registry.Names()))
	for _, n := range app.Config.Registry.All() {
		detail := fmt.Sprintf("chain %d", n.ChainID)
		if n.Live {
			detail += ", live"
		}
		options = append(options, interactive.Option{Value: n.Name, Detail: detail})
	}
	return interactive.SelectMany(options, "Select networks to migrate")
}
