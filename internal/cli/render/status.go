package render

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

const timeLayout = "2006-01-02 15:04:05"

// StatusRenderer renders the applied state of every migration step
type StatusRenderer struct {
	out io.Writer
}

// NewStatusRenderer creates a new status renderer
func NewStatusRenderer(out io.Writer) *StatusRenderer {
	return &StatusRenderer{out: out}
}

// RenderStatus renders the step table followed by any orphaned ledger entries
func (r *StatusRenderer) RenderStatus(result *usecase.ShowStatusResult) error {
	fmt.Fprintf(r.out, "📋 Migrations on %s (chain %d)\n\n",
		networkStyle.Sprint(result.Network.Name), result.Network.ChainID)

	if len(result.Steps) == 0 {
		fmt.Fprintln(r.out, "No migration steps found")
	} else {
		t := newTable(r.out, table.Row{"STEP", "TAG", "ACTION", "INSTANCE", "STATUS", "APPLIED AT"})
		pending := 0
		for _, s := range result.Steps {
			status, appliedAt := okStyle.Sprint("applied"), ""
			switch {
			case s.Applied == nil:
				status = warnStyle.Sprint("pending")
				pending++
			case s.Applied.NoOp:
				status = okStyle.Sprint("applied") + faintStyle.Sprint(" (no-op)")
			}
			if s.Applied != nil {
				appliedAt = faintStyle.Sprint(s.Applied.AppliedAt.Local().Format(timeLayout))
			}
			t.AppendRow(table.Row{
				s.Step.ID.String(),
				s.Step.Tag,
				titleCase.String(string(s.Step.Action)),
				stepTarget(s.Step),
				status,
				appliedAt,
			})
		}
		t.Render()
		fmt.Fprintf(r.out, "\n%d applied, %d pending\n", len(result.Steps)-pending, pending)
	}

	if len(result.Unknown) > 0 {
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, FormatWarning(fmt.Sprintf("%d applied step(s) no longer exist in the migrations:", len(result.Unknown))))
		for _, a := range result.Unknown {
			fmt.Fprintf(r.out, "  %s  %s %s\n", a.ID, a.Action, a.Instance)
		}
	}
	return nil
}

// stepTarget names what a step acts on
func stepTarget(s *models.MigrationStep) string {
	switch s.Action {
	case models.ActionCall:
		return fmt.Sprintf("%s.%s", s.Instance, s.Method)
	case models.ActionGrantRole, models.ActionRevokeRole:
		return fmt.Sprintf("%s %s → %s", s.Instance, s.Role, s.Member)
	case models.ActionDeploy:
		if s.Proxy {
			return s.Instance + faintStyle.Sprint(" (proxy)")
		}
	}
	return s.Instance
}
