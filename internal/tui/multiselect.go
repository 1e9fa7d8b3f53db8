package tui

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// ErrCancelled is returned when the user dismisses a prompt.
var ErrCancelled = errors.New("cancelled")

// SelectItem is one row of a multi-select prompt.
type SelectItem struct {
	Value string // Returned when selected.
	Label string
	Hint  string // Optional muted text after the label.
}

const defaultVisibleRows = 12

// multiSelectModel is a checkbox list. The cursor moves with up/down, space
// toggles the current row, "a" toggles every row and enter accepts.
type multiSelectModel struct {
	title    string
	items    []SelectItem
	selected map[int]bool
	cursor   int
	offset   int // First visible row.
	height   int // Visible rows.
	warning  string
	done     bool
	aborted  bool
	help     help.Model
}

func newMultiSelectModel(title string, items []SelectItem, preselected []string) multiSelectModel {
	pre := make(map[string]bool, len(preselected))
	for _, v := range preselected {
		pre[v] = true
	}
	selected := make(map[int]bool)
	for i, it := range items {
		if pre[it.Value] {
			selected[i] = true
		}
	}
	return multiSelectModel{
		title:    title,
		items:    items,
		selected: selected,
		height:   defaultVisibleRows,
		help:     help.New(),
	}
}

func (m multiSelectModel) Init() tea.Cmd {
	return nil
}

func (m multiSelectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// Title, counter, blank lines and help take six rows.
		m.height = max(msg.Height-6, 3)
		m.help.Width = msg.Width
		m = m.scrollToCursor()
		return m, nil

	case tea.KeyMsg:
		m.warning = ""
		switch {
		case key.Matches(msg, keys.Quit), key.Matches(msg, keys.Back):
			m.done, m.aborted = true, true
			return m, tea.Quit

		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
			m = m.scrollToCursor()

		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
			m = m.scrollToCursor()

		case key.Matches(msg, keys.Toggle):
			if len(m.items) > 0 {
				m.selected[m.cursor] = !m.selected[m.cursor]
			}

		case key.Matches(msg, keys.ToggleAll):
			all := m.selectedCount() < len(m.items)
			for i := range m.items {
				m.selected[i] = all
			}

		case key.Matches(msg, keys.Enter):
			if m.selectedCount() == 0 {
				m.warning = "Select at least one item"
				return m, nil
			}
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m multiSelectModel) scrollToCursor() multiSelectModel {
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+m.height {
		m.offset = m.cursor - m.height + 1
	}
	return m
}

func (m multiSelectModel) selectedCount() int {
	n := 0
	for i := range m.items {
		if m.selected[i] {
			n++
		}
	}
	return n
}

// values returns the selected values in item order.
func (m multiSelectModel) values() []string {
	var out []string
	for i, it := range m.items {
		if m.selected[i] {
			out = append(out, it.Value)
		}
	}
	return out
}

func (m multiSelectModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("  ")
	b.WriteString(badgeStyle.Render(fmt.Sprintf("%d/%d selected", m.selectedCount(), len(m.items))))
	b.WriteString("\n\n")

	end := min(m.offset+m.height, len(m.items))
	for i := m.offset; i < end; i++ {
		it := m.items[i]
		box := "[ ]"
		if m.selected[i] {
			box = checkedStyle.Render("[x]")
		}
		label := it.Label
		if label == "" {
			label = it.Value
		}
		if i == m.cursor {
			b.WriteString(selectedItemStyle.Render("> ") + box + " " + selectedItemStyle.Render(label))
		} else {
			b.WriteString("  " + box + " " + normalItemStyle.Render(label))
		}
		if it.Hint != "" {
			b.WriteString(" " + mutedStyle.Render(it.Hint))
		}
		b.WriteString("\n")
	}
	if end < len(m.items) {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  ... %d more", len(m.items)-end)))
		b.WriteString("\n")
	}

	if m.warning != "" {
		b.WriteString("\n" + warningStyle.Render(m.warning) + "\n")
	}
	b.WriteString("\n" + m.help.View(multiSelectHelpKeyMap{}) + "\n")
	return b.String()
}

// RunMultiSelect shows a checkbox list and returns the selected values in
// item order. esc and ctrl+c return ErrCancelled.
func RunMultiSelect(title string, items []SelectItem, preselected []string) ([]string, error) {
	if len(items) == 0 {
		return nil, errors.New("nothing to select")
	}
	final, err := runProgram(newMultiSelectModel(title, items, preselected))
	if err != nil {
		return nil, err
	}
	m := final.(multiSelectModel)
	if m.aborted {
		return nil, ErrCancelled
	}
	return m.values(), nil
}

// runProgram renders prompts on stderr so stdout stays clean for output
// that may be piped.
func runProgram(model tea.Model) (tea.Model, error) {
	p := tea.NewProgram(model, tea.WithOutput(os.Stderr))
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("running prompt: %w", err)
	}
	return final, nil
}
