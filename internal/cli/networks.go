package cli

import (
	"github.com/spf13/cobra"

	"github.com/bancorprotocol/carbon-migrate/internal/cli/render"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

// NewNetworksCmd creates the networks command
func NewNetworksCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "networks",
		Short: "List the networks configured in migrate.toml",
		Long: `List every network configured in migrate.toml with its chain id, signer,
ledger kind and fork parent.

With --check each RPC endpoint is dialled and its chain id verified.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}

			result, err := app.ListNetworks.Run(cmd.Context(), usecase.ListNetworksParams{Check: check})
			if err != nil {
				return err
			}

			return render.NewNetworksRenderer(cmd.OutOrStdout()).RenderNetworksList(result)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Connect to each network and verify its chain id")

	return cmd
}
