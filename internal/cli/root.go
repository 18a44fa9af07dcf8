package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bancorprotocol/carbon-migrate/internal/adapters/progress"
	"github.com/bancorprotocol/carbon-migrate/internal/app"
	"github.com/bancorprotocol/carbon-migrate/internal/config"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

// contextKey is the type for context keys
type contextKey string

const (
	// appKey is the context key for the app instance
	appKey contextKey = "app"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "carbon-migrate",
		Short: "Multi-network contract migrations for Carbon",
		Long: `carbon-migrate applies ordered, idempotent migration steps (deploy, upgrade,
call, grant and revoke role) to each configured network and records what was
applied in a per-network deployment ledger. Reruns continue after the last
applied step.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip for help/version commands
			if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			projectRoot, _ := cmd.Flags().GetString("project-root")
			if projectRoot == "" {
				var err error
				projectRoot, err = config.FindProjectRoot("")
				if err != nil {
					return err
				}
			}

			v := config.SetupViper(projectRoot, cmd)

			var sink usecase.ProgressSink = progress.NewNopSink()
			if cmd.Name() == "migrate" {
				sink = progress.NewMigrateProgress(cmd.ErrOrStderr(), !v.GetBool("non_interactive"))
			}

			appInstance, err := app.InitApp(v, sink)
			if err != nil {
				return fmt.Errorf("failed to initialize app: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			if appInstance.Config.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, appInstance.Config.Timeout)
				cmd.PostRun = func(cmd *cobra.Command, args []string) {
					cancel()
				}
			}
			cmd.SetContext(ctx)

			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug output")
	rootCmd.PersistentFlags().Bool("non-interactive", false, "Disable interactive prompts")
	rootCmd.PersistentFlags().StringP("network", "n", "", "Network to use (comma separated for migrate)")
	rootCmd.PersistentFlags().String("project-root", "", "Project directory (defaults to the nearest migrate.toml)")
	rootCmd.PersistentFlags().String("ledger", "", "Ledger backend override (file, pebble)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Abort the command after this duration (default 30m)")

	rootCmd.AddGroup(&cobra.Group{
		ID:    "main",
		Title: "Main Commands",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "management",
		Title: "Management Commands",
	})

	// Main commands
	migrateCmd := NewMigrateCmd()
	migrateCmd.GroupID = "main"
	rootCmd.AddCommand(migrateCmd)

	statusCmd := NewStatusCmd()
	statusCmd.GroupID = "main"
	rootCmd.AddCommand(statusCmd)

	showCmd := NewShowCmd()
	showCmd.GroupID = "main"
	rootCmd.AddCommand(showCmd)

	// Management commands
	networksCmd := NewNetworksCmd()
	networksCmd.GroupID = "management"
	rootCmd.AddCommand(networksCmd)

	accountsCmd := NewAccountsCmd()
	accountsCmd.GroupID = "management"
	rootCmd.AddCommand(accountsCmd)

	exportCmd := NewExportCmd()
	exportCmd.GroupID = "management"
	rootCmd.AddCommand(exportCmd)

	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// getApp retrieves the app instance from the command context
func getApp(cmd *cobra.Command) (*app.App, error) {
	appInstance := cmd.Context().Value(appKey)
	if appInstance == nil {
		return nil, fmt.Errorf("app not initialized")
	}

	app, ok := appInstance.(*app.App)
	if !ok {
		return nil, fmt.Errorf("invalid app instance")
	}

	return app, nil
}
