package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the keybindings shared by the prompts.
type keyMap struct {
	Quit      key.Binding
	Up        key.Binding
	Down      key.Binding
	Enter     key.Binding
	Back      key.Binding
	Toggle    key.Binding
	ToggleAll key.Binding
	Left      key.Binding
	Right     key.Binding
	Yes       key.Binding
	No        key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("k/up", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("j/down", "down"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "confirm"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc", "q"),
		key.WithHelp("esc", "cancel"),
	),
	Toggle: key.NewBinding(
		key.WithKeys(" ", "x"),
		key.WithHelp("space/x", "toggle"),
	),
	ToggleAll: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "all/none"),
	),
	Left: key.NewBinding(
		key.WithKeys("left", "h", "shift+tab"),
	),
	Right: key.NewBinding(
		key.WithKeys("right", "l", "tab"),
	),
	Yes: key.NewBinding(
		key.WithKeys("y", "Y"),
		key.WithHelp("y", "yes"),
	),
	No: key.NewBinding(
		key.WithKeys("n", "N"),
		key.WithHelp("n", "no"),
	),
}

// multiSelectHelpKeyMap is shown under the multi-select list.
type multiSelectHelpKeyMap struct{}

func (k multiSelectHelpKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		keys.Up, keys.Down, keys.Toggle, keys.ToggleAll,
		keys.Enter, keys.Back,
	}
}

func (k multiSelectHelpKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// confirmHelpKeyMap is shown under the confirmation dialog.
type confirmHelpKeyMap struct{}

func (k confirmHelpKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{keys.Yes, keys.No, keys.Enter, keys.Back}
}

func (k confirmHelpKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
