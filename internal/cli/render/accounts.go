package render

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

// AccountsRenderer renders the named accounts of one network
type AccountsRenderer struct {
	out io.Writer
}

// NewAccountsRenderer creates a new accounts renderer
func NewAccountsRenderer(out io.Writer) *AccountsRenderer {
	return &AccountsRenderer{out: out}
}

// RenderAccounts renders one row per role
func (r *AccountsRenderer) RenderAccounts(result *usecase.ListAccountsResult) error {
	if len(result.Accounts) == 0 {
		fmt.Fprintln(r.out, "No named accounts configured")
		return nil
	}

	fmt.Fprintf(r.out, "👤 Named accounts on %s\n\n", networkStyle.Sprint(result.Network))
	t := newTable(r.out, table.Row{"ROLE", "ADDRESS", "SIGNER"})
	for _, a := range result.Accounts {
		if !a.Resolved {
			t.AppendRow(table.Row{a.Role, warnStyle.Sprint(string(a.Reason)), ""})
			continue
		}
		signer := faintStyle.Sprint("-")
		if a.Account.Ledger {
			signer = "ledger"
		}
		t.AppendRow(table.Row{a.Role, addressStyle.Sprint(a.Account.Address.Hex()), signer})
	}
	t.Render()
	return nil
}
