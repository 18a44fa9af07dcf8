package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

// InstanceRenderer renders one ledger record with its grants and calls
type InstanceRenderer struct {
	out io.Writer
}

// NewInstanceRenderer creates a new instance renderer
func NewInstanceRenderer(out io.Writer) *InstanceRenderer {
	return &InstanceRenderer{out: out}
}

// RenderInstance renders the record details
func (r *InstanceRenderer) RenderInstance(result *usecase.ShowInstanceResult) error {
	rec := result.Record

	kind := "contract"
	if rec.Proxy {
		kind = "proxy"
	}
	fmt.Fprintf(r.out, "📦 %s %s on %s\n\n",
		headerStyle.Sprint(rec.Instance), faintStyle.Sprintf("(%s)", kind), networkStyle.Sprint(result.Network.Name))

	t := newTable(r.out, nil)
	t.AppendRow(table.Row{"Contract", rec.Contract})
	t.AppendRow(table.Row{"Address", addressStyle.Sprint(rec.Address.Hex())})
	if rec.Proxy {
		t.AppendRow(table.Row{"Implementation", addressStyle.Sprint(rec.Implementation.Hex())})
	}
	t.AppendRow(table.Row{"Deploy Tx", rec.DeployTx.Hex()})
	t.AppendRow(table.Row{"ABI Hash", rec.ABIHash.Hex()})
	t.AppendRow(table.Row{"Metadata Hash", rec.MetadataHash.Hex()})
	t.AppendRow(table.Row{"Last Step", rec.LastApplied.String()})
	t.AppendRow(table.Row{"Updated", faintStyle.Sprint(rec.UpdatedAt.Local().Format(timeLayout))})
	t.Render()

	if len(result.Grants) > 0 {
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, headerStyle.Sprint("Roles"))
		gt := newTable(r.out, table.Row{"ROLE", "MEMBER", "HELD", "STEP"})
		for _, g := range result.Grants {
			name := g.RoleName
			if name == "" {
				name = g.Role.Hex()
			}
			gt.AppendRow(table.Row{name, addressStyle.Sprint(g.Member.Hex()), yesNo(g.Held), g.Step.String()})
		}
		gt.Render()
	}

	if len(result.Calls) > 0 {
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, headerStyle.Sprint("Calls"))
		ct := newTable(r.out, table.Row{"STEP", "CALL", "TX"})
		for _, c := range result.Calls {
			call := fmt.Sprintf("%s(%s)", c.Method, strings.Join(c.Args, ", "))
			ct.AppendRow(table.Row{c.Step.String(), call, faintStyle.Sprint(shortHash(c.TxHash))})
		}
		ct.Render()
	}
	return nil
}
