package cli

import (
	"github.com/spf13/cobra"

	"github.com/bancorprotocol/carbon-migrate/internal/cli/render"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

// NewStatusCmd creates the status command
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which migration steps are applied on a network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}

			network, err := singleNetwork(app)
			if err != nil {
				return err
			}

			result, err := app.ShowStatus.Run(cmd.Context(), usecase.ShowStatusParams{Network: network})
			if err != nil {
				return err
			}

			return render.NewStatusRenderer(cmd.OutOrStdout()).RenderStatus(result)
		},
	}

	return cmd
}
