package viewer

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings of the viewer.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	GotoTop key.Binding
	GotoEnd key.Binding
	Details key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// DefaultKeyMap is the keymap used by New.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	GotoTop: key.NewBinding(
		key.WithKeys("g", "home"),
		key.WithHelp("g", "top"),
	),
	GotoEnd: key.NewBinding(
		key.WithKeys("G", "end"),
		key.WithHelp("G", "end"),
	),
	Details: key.NewBinding(
		key.WithKeys("enter", " "),
		key.WithHelp("enter", "details"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.GotoTop, k.GotoEnd},
		{k.Details, k.Help, k.Quit},
	}
}
