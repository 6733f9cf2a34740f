package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Details key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Details: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "failure details"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "cancel"),
	),
}
