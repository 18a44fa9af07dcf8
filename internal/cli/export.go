package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bancorprotocol/carbon-migrate/internal/cli/render"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

// NewExportCmd creates the export command
func NewExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export deployed addresses and hashes as JSON",
		Long: `Export the address, implementation, ABI hash and metadata hash of every
instance deployed on a network, for use by contract verifiers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}

			network, err := singleNetwork(app)
			if err != nil {
				return err
			}

			result, err := app.ExportDeployments.Run(cmd.Context(), usecase.ExportDeploymentsParams{Network: network})
			if err != nil {
				return err
			}

			var out io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				out = f
			}

			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}

			if output != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), render.FormatSuccess(fmt.Sprintf("Exported %d instance(s) to %s", len(result.Instances), output)))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")

	return cmd
}
