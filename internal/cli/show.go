package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bancorprotocol/carbon-migrate/internal/adapters/interactive"
	"github.com/bancorprotocol/carbon-migrate/internal/cli/render"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

// NewShowCmd creates the show command
func NewShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <instance>",
		Short: "Show the ledger record of a deployed instance",
		Long: `Show the address, implementation, hashes, role grants and calls recorded
for one instance on one network.

Examples:
  carbon-migrate show CarbonController -n mainnet
  carbon-migrate show CarbonVortex -n base`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}

			network, err := singleNetwork(app)
			if err != nil {
				return err
			}

			params := usecase.ShowInstanceParams{Network: network, Instance: args[0]}
			result, err := app.ShowInstance.Run(cmd.Context(), params)

			var notFound *usecase.InstanceNotFoundError
			if errors.As(err, &notFound) && len(notFound.Suggestions) > 0 && !app.Config.NonInteractive {
				fmt.Fprintln(cmd.ErrOrStderr(), render.FormatWarning(fmt.Sprintf("No instance %q on %s", args[0], network)))
				choice, serr := interactive.SelectOne("Did you mean", notFound.Suggestions)
				if serr != nil {
					return err
				}
				params.Instance = choice
				result, err = app.ShowInstance.Run(cmd.Context(), params)
			}
			if err != nil {
				return err
			}

			return render.NewInstanceRenderer(cmd.OutOrStdout()).RenderInstance(result)
		},
	}

	return cmd
}
