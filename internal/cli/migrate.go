package cli

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/bancorprotocol/carbon-migrate/internal/adapters/interactive"
	"github.com/bancorprotocol/carbon-migrate/internal/cli/render"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

// NewMigrateCmd creates the migrate command
func NewMigrateCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migration steps",
		Long: `Apply every migration step that is not yet recorded in the network's
deployment ledger, in order, one confirmed transaction at a time.

Several networks can be migrated at once; they run in parallel and a
failure on one network does not stop the others. Rerunning after a failure
or an interrupt continues after the last applied step.

Examples:
  carbon-migrate migrate -n mainnet
  carbon-migrate migrate -n mainnet,base --yes
  carbon-migrate migrate -n tenderly --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}

			networks, err := migrationNetworks(app)
			if err != nil {
				return err
			}

			dryRun := app.Config.DryRun
			if !dryRun && !yes {
				if err := confirmLive(app.Config.Registry, networks, app.Config.NonInteractive); err != nil {
					return err
				}
			}

			result, err := app.MigrateNetworks.Run(cmd.Context(), usecase.MigrateNetworksParams{
				Networks: networks,
				DryRun:   dryRun,
			})
			if stopper, ok := app.Progress.(interface{ Stop() }); ok {
				stopper.Stop()
			}
			if result == nil {
				return err
			}

			renderer := render.NewMigrateRenderer(cmd.OutOrStdout())
			if dryRun {
				if rerr := renderer.RenderPlan(result); rerr != nil {
					return rerr
				}
				return err
			}
			if rerr := renderer.RenderSummary(result); rerr != nil {
				return rerr
			}
			return err
		},
	}

	cmd.Flags().Bool("dry-run", false, "Show the pending steps without sending transactions")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation for live networks")

	return cmd
}

// confirmLive asks before touching live networks
func confirmLive(registry *models.NetworkRegistry, networks []string, nonInteractive bool) error {
	live := lo.Filter(networks, func(name string, _ int) bool {
		n, ok := registry.Lookup(name)
		return ok && n.Live
	})
	if len(live) == 0 {
		return nil
	}

	names := strings.Join(live, ", ")
	if nonInteractive {
		return fmt.Errorf("refusing to migrate live network(s) %s without --yes in non-interactive mode", names)
	}
	if !interactive.Confirm(fmt.Sprintf("Apply migrations to live network(s) %s", names)) {
		return fmt.Errorf("migration cancelled")
	}
	return nil
}
