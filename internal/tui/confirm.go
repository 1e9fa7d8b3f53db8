package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// confirmModel is a Yes/No dialog rendered as a bordered box.
//
// Navigation: left/right/tab/shift+tab move focus between Yes and No buttons.
// Enter activates the focused button. y/n/esc are shortcut accelerators.
// The program quits as soon as the user answers.
type confirmModel struct {
	title     string
	body      string
	focusYes  bool // true = Yes focused, false = No focused.
	done      bool
	confirmed bool
	aborted   bool // ctrl+c
	width     int
	help      help.Model
}

// newConfirmModel creates a dialog with focus on Yes. The prompt guards an
// install the user already asked for, so the default is to proceed.
func newConfirmModel(title, body string) confirmModel {
	return confirmModel{
		title:    title,
		body:     body,
		focusYes: true,
		help:     help.New(),
	}
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.done, m.aborted = true, true
			return m, tea.Quit

		case key.Matches(msg, keys.Yes):
			return m.answer(true)

		case key.Matches(msg, keys.No), key.Matches(msg, keys.Back):
			return m.answer(false)

		case key.Matches(msg, keys.Enter):
			return m.answer(m.focusYes)

		case key.Matches(msg, keys.Left), key.Matches(msg, keys.Right):
			m.focusYes = !m.focusYes
			return m, nil
		}
	}
	return m, nil
}

func (m confirmModel) answer(yes bool) (tea.Model, tea.Cmd) {
	m.done = true
	m.confirmed = yes
	return m, tea.Quit
}

func (m confirmModel) View() string {
	if m.done {
		return ""
	}

	width := 50
	if m.width > 0 && m.width-6 < width {
		width = max(m.width-6, 20)
	}

	parts := []string{titleStyle.Render(m.title)}
	if m.body != "" {
		parts = append(parts, "", lipgloss.NewStyle().Width(width).Render(m.body))
	}

	var yesBtn, noBtn string
	if m.focusYes {
		yesBtn = dialogActiveButtonStyle.Render("Yes")
		noBtn = dialogButtonStyle.Render("No")
	} else {
		yesBtn = dialogButtonStyle.Render("Yes")
		noBtn = dialogActiveButtonStyle.Render("No")
	}
	buttons := lipgloss.JoinHorizontal(lipgloss.Top, yesBtn, "  ", noBtn)
	parts = append(parts, "", buttons)

	dialog := dialogBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
	return dialog + "\n" + m.help.View(confirmHelpKeyMap{}) + "\n"
}

// RunConfirm asks a Yes/No question on the terminal. ctrl+c returns
// ErrCancelled.
func RunConfirm(title, body string) (bool, error) {
	final, err := runProgram(newConfirmModel(title, body))
	if err != nil {
		return false, err
	}
	m := final.(confirmModel)
	if m.aborted {
		return false, ErrCancelled
	}
	return m.confirmed, nil
}
