package cli

import (
	"github.com/spf13/cobra"

	"github.com/bancorprotocol/carbon-migrate/internal/cli/render"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

// NewAccountsCmd creates the accounts command
func NewAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Resolve every named account on a network",
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

			result, err := app.ListAccounts.Run(cmd.Context(), usecase.ListAccountsParams{Network: network})
			if err != nil {
				return err
			}

			return render.NewAccountsRenderer(cmd.OutOrStdout()).RenderAccounts(result)
		},
	}

	return cmd
}
