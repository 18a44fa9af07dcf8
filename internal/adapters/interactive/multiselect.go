package interactive

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
)

// Option is one row of a multi-select list
type Option struct {
	Value  string
	Detail string
}

type multiSelectModel struct {
	options   []Option
	cursor    int
	selected  map[int]bool
	title     string
	done      bool
	cancelled bool
}

func newMultiSelectModel(options []Option, title string) multiSelectModel {
	return multiSelectModel{
		options:  options,
		selected: make(map[int]bool, len(options)),
		title:    title,
	}
}

func (m multiSelectModel) Init() tea.Cmd {
	return nil
}

func (m multiSelectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "q", "esc":
		m.cancelled = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.options)-1 {
			m.cursor++
		}
	case " ":
		m.selected[m.cursor] = !m.selected[m.cursor]
	case "a":
		all := len(m.chosen()) < len(m.options)
		for i := range m.options {
			m.selected[i] = all
		}
	case "enter":
		if len(m.chosen()) > 0 {
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m multiSelectModel) View() string {
	if m.done || m.cancelled {
		return ""
	}

	var b strings.Builder
	b.WriteString(color.New(color.FgCyan, color.Bold).Sprintf("%s\n\n", m.title))
	for i, opt := range m.options {
		cursor := " "
		if m.cursor == i {
			cursor = color.New(color.FgCyan).Sprint("▸")
		}
		checkbox := color.New(color.FgWhite).Sprint("○")
		if m.selected[i] {
			checkbox = color.New(color.FgGreen).Sprint("✓")
		}
		detail := color.New(color.FgYellow).Sprintf("(%s)", opt.Detail)
		b.WriteString(fmt.Sprintf("%s %s %s %s\n", cursor, checkbox, opt.Value, detail))
	}
	b.WriteString("\n")
	b.WriteString(color.New(color.FgYellow).Sprint("↑/↓: move  Space: toggle  a: all  Enter: confirm  q: quit\n"))
	return b.String()
}

// chosen returns the selected values in list order
func (m multiSelectModel) chosen() []string {
	var out []string
	for i, opt := range m.options {
		if m.selected[i] {
			out = append(out, opt.Value)
		}
	}
	return out
}

// SelectMany shows a checkbox list and returns the chosen values in list order
func SelectMany(options []Option, title string) ([]string, error) {
	if len(options) == 0 {
		return nil, fmt.Errorf("nothing to select")
	}

	p := tea.NewProgram(newMultiSelectModel(options, title))
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("multi-select failed: %w", err)
	}

	m := final.(multiSelectModel)
	if !m.done {
		return nil, fmt.Errorf("selection cancelled")
	}
	return m.chosen(), nil
}
