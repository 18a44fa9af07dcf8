package render

import (
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	headerStyle  = color.New(color.Bold, color.FgHiWhite)
	networkStyle = color.New(color.FgCyan, color.Bold)
	addressStyle = color.New(color.FgWhite)
	faintStyle   = color.New(color.Faint)
	okStyle      = color.New(color.FgGreen)
	warnStyle    = color.New(color.FgYellow)
	errStyle     = color.New(color.FgRed)
)

var titleCase = cases.Title(language.English)

// FormatWarning formats a warning message with the warning icon
func FormatWarning(message string) string {
	return warnStyle.Sprintf("⚠️  %s", message)
}

// FormatError formats an error message with the error icon. Only the
// innermost part of a wrapped error chain is shown.
func FormatError(message string) string {
	parts := strings.Split(message, ": ")
	msg := parts[len(parts)-1]
	if len(msg) > 0 {
		msg = strings.ToUpper(msg[:1]) + msg[1:]
	}
	return errStyle.Sprintf("❌ %s", msg)
}

// FormatSuccess formats a success message with the success icon
func FormatSuccess(message string) string {
	return okStyle.Sprintf("✅ %s", message)
}

// newTable returns a borderless table writing to out
func newTable(out io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.Style().Options.DrawBorder = false
	t.Style().Options.SeparateColumns = false
	t.Style().Options.SeparateRows = false
	t.Style().Options.SeparateHeader = true
	t.Style().Format.Header = 0
	t.Style().Box.PaddingRight = "  "
	if header != nil {
		styled := make(table.Row, len(header))
		for i, h := range header {
			styled[i] = headerStyle.Sprint(h)
		}
		t.AppendHeader(styled)
	}
	return t
}

func shortHash(h common.Hash) string {
	hex := h.Hex()
	return hex[:10] + "…" + hex[len(hex)-4:]
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return faintStyle.Sprint("no")
}
