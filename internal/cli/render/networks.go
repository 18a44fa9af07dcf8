package render

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

// NetworksRenderer renders the network registry
type NetworksRenderer struct {
	out io.Writer
}

// NewNetworksRenderer creates a new networks renderer
func NewNetworksRenderer(out io.Writer) *NetworksRenderer {
	return &NetworksRenderer{out: out}
}

// RenderNetworksList renders one row per configured network
func (r *NetworksRenderer) RenderNetworksList(result *usecase.ListNetworksResult) error {
	if len(result.Networks) == 0 {
		fmt.Fprintln(r.out, "No networks configured in migrate.toml")
		return nil
	}

	checked := false
	for _, n := range result.Networks {
		checked = checked || n.Checked
	}

	header := table.Row{"NETWORK", "CHAIN ID", "SIGNER", "LEDGER", "LIVE", "FORK OF"}
	if checked {
		header = append(header, "RPC")
	}
	t := newTable(r.out, header)
	for _, info := range result.Networks {
		n := info.Network
		row := table.Row{
			networkStyle.Sprint(n.Name),
			n.ChainID,
			string(n.Signer.Type),
			ledgerKind(n),
			yesNo(n.Live),
			forkOf(n),
		}
		if checked {
			row = append(row, rpcStatus(info))
		}
		t.AppendRow(row)
	}
	t.Render()
	return nil
}

func ledgerKind(n *models.Network) string {
	if n.Persistent {
		return "persistent"
	}
	return faintStyle.Sprint("memory")
}

func forkOf(n *models.Network) string {
	if n.ForkOf == "" {
		return faintStyle.Sprint("-")
	}
	return n.ForkOf
}

func rpcStatus(info *usecase.NetworkInfo) string {
	if !info.Checked {
		return ""
	}
	if info.Error != nil {
		return errStyle.Sprintf("❌ %v", info.Error)
	}
	return okStyle.Sprint("✅ ok")
}
