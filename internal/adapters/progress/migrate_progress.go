package progress

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

var (
	networkColor = color.New(color.FgCyan, color.Bold)
	doneColor    = color.New(color.FgGreen)
	skipColor    = color.New(color.FgWhite, color.Faint)
	failColor    = color.New(color.FgRed, color.Bold)
)

// MigrateProgress renders the events of concurrent network runs. One spinner
// shows the step each network is executing; finished steps are printed above
// it as they complete.
type MigrateProgress struct {
	out         io.Writer
	interactive bool

	mu      sync.Mutex
	spinner *spinner.Spinner
	running map[string]string
}

// NewMigrateProgress creates a progress sink writing to out. Without
// interactive the spinner is off and every event is a plain line.
func NewMigrateProgress(out io.Writer, interactive bool) *MigrateProgress {
	p := &MigrateProgress{
		out:         out,
		interactive: interactive,
		running:     make(map[string]string),
	}
	if interactive {
		p.spinner = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
		p.spinner.HideCursor = false
		_ = p.spinner.Color("cyan", "bold")
	}
	return p
}

// OnProgress handles runner events
func (p *MigrateProgress) OnProgress(ctx context.Context, event usecase.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch event.Stage {
	case usecase.StageRunStarted:
		p.println(fmt.Sprintf("%s %d migration steps", tag(event.Network), event.Total))

	case usecase.StagePlanReady:
		pending, _ := event.Metadata.([]*models.MigrationStep)
		if len(pending) == 0 {
			p.println(fmt.Sprintf("%s %s", tag(event.Network), skipColor.Sprint("up to date")))
			return
		}
		p.println(fmt.Sprintf("%s %d pending step(s), next %s", tag(event.Network), len(pending), pending[0].Tag))

	case usecase.StageStepStarting:
		msg := fmt.Sprintf("[%d/%d] %s", event.Current, event.Total, event.Message)
		if !p.interactive {
			p.println(fmt.Sprintf("%s %s", tag(event.Network), msg))
			return
		}
		p.running[event.Network] = msg
		p.refresh()

	case usecase.StageStepCompleted:
		delete(p.running, event.Network)
		executed, ok := event.Metadata.(*usecase.ExecutedStep)
		if !ok {
			p.refresh()
			return
		}
		status := doneColor.Sprint("✓")
		detail := fmt.Sprintf("%d tx", len(executed.TxHashes))
		if executed.NoOp {
			status = skipColor.Sprint("=")
			detail = "no change"
		}
		p.println(fmt.Sprintf("%s %s [%d/%d] %s %s %s (%s, %s)",
			tag(event.Network), status, event.Current, event.Total,
			executed.Step.Tag, executed.Step.Action, executed.Step.Instance,
			detail, executed.Duration.Round(time.Millisecond)))

	case usecase.StageStepFailed:
		delete(p.running, event.Network)
		p.println(fmt.Sprintf("%s %s %s", tag(event.Network), failColor.Sprint("✗"), event.Message))

	case usecase.StageRunCompleted:
		delete(p.running, event.Network)
		p.println(fmt.Sprintf("%s %s", tag(event.Network), doneColor.Sprint("done")))
	}
}

// Info prints an info message
func (p *MigrateProgress) Info(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.println(color.New(color.FgCyan).Sprint(message))
}

// Error prints an error message
func (p *MigrateProgress) Error(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.println(color.New(color.FgRed).Sprint(message))
}

// Stop halts the spinner; callers invoke it once all runs returned
func (p *MigrateProgress) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.spinner != nil && p.spinner.Active() {
		p.spinner.Stop()
	}
}

// println writes a line above the spinner. Callers hold mu.
func (p *MigrateProgress) println(line string) {
	wasActive := p.spinner != nil && p.spinner.Active()
	if wasActive {
		p.spinner.Stop()
	}
	fmt.Fprintln(p.out, line)
	if wasActive || len(p.running) > 0 {
		p.refresh()
	}
}

// refresh shows the running steps, one segment per network
func (p *MigrateProgress) refresh() {
	if p.spinner == nil {
		return
	}
	if len(p.running) == 0 {
		if p.spinner.Active() {
			p.spinner.Stop()
		}
		return
	}

	networks := make([]string, 0, len(p.running))
	for n := range p.running {
		networks = append(networks, n)
	}
	sort.Strings(networks)
	parts := make([]string, 0, len(networks))
	for _, n := range networks {
		parts = append(parts, tag(n)+" "+p.running[n])
	}
	p.spinner.Suffix = " " + strings.Join(parts, " | ")
	if !p.spinner.Active() {
		p.spinner.Start()
	}
}

func tag(network string) string {
	return networkColor.Sprintf("[%s]", network)
}

var _ usecase.ProgressSink = (*MigrateProgress)(nil)
