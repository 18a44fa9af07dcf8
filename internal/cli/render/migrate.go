package render

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

// MigrateRenderer renders the outcome of a multi-network run
type MigrateRenderer struct {
	out io.Writer
}

// NewMigrateRenderer creates a new migrate renderer
func NewMigrateRenderer(out io.Writer) *MigrateRenderer {
	return &MigrateRenderer{out: out}
}

// RenderPlan lists the steps a dry run would apply on each network
func (r *MigrateRenderer) RenderPlan(result *usecase.MigrateNetworksResult) error {
	for i, run := range result.Runs {
		if i > 0 {
			fmt.Fprintln(r.out)
		}
		fmt.Fprintf(r.out, "%s  %d applied, %d pending\n", networkStyle.Sprint(run.Network), run.Skipped, len(run.Pending))
		if len(run.Pending) == 0 {
			fmt.Fprintln(r.out, faintStyle.Sprint("  up to date"))
			continue
		}
		t := newTable(r.out, nil)
		for _, step := range run.Pending {
			t.AppendRow(table.Row{"  " + step.ID.String(), titleCase.String(string(step.Action)), stepTarget(step), faintStyle.Sprint("from $" + step.From)})
		}
		t.Render()
	}
	return nil
}

// RenderSummary renders one row per network
func (r *MigrateRenderer) RenderSummary(result *usecase.MigrateNetworksResult) error {
	t := newTable(r.out, table.Row{"NETWORK", "STATE", "SKIPPED", "EXECUTED", "FAILED STEP"})
	failed := 0
	for _, run := range result.Runs {
		state := okStyle.Sprint(titleCase.String(string(run.State)))
		failedStep := ""
		if run.State == usecase.StateFailed {
			failed++
			state = errStyle.Sprint(titleCase.String(string(run.State)))
			if run.Failed != nil {
				failedStep = errStyle.Sprintf("%s %s", run.Failed.ID, stepTarget(run.Failed))
			}
		}
		t.AppendRow(table.Row{networkStyle.Sprint(run.Network), state, run.Skipped, len(run.Executed), failedStep})
	}
	t.Render()

	fmt.Fprintln(r.out)
	if failed == 0 {
		fmt.Fprintln(r.out, FormatSuccess(fmt.Sprintf("Migrated %d network(s)", len(result.Runs))))
	} else {
		fmt.Fprintln(r.out, FormatWarning(fmt.Sprintf("%d of %d network(s) failed; rerun to resume from the last applied step", failed, len(result.Runs))))
	}
	return nil
}
