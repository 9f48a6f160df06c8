package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/portmark/internal/operator"
)

type keyMap struct {
	Resume  key.Binding
	Restart key.Binding
	Home    key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Resume:  key.NewBinding(key.WithKeys("1", "r"), key.WithHelp("1/r", "resume")),
		Restart: key.NewBinding(key.WithKeys("2", "s"), key.WithHelp("2/s", "restart")),
		Home:    key.NewBinding(key.WithKeys("3", "h"), key.WithHelp("3/h", "home")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// decision maps a pressed key to a recovery decision.
func (k keyMap) decision(msg tea.KeyMsg) operator.Decision {
	switch {
	case key.Matches(msg, k.Resume):
		return operator.Resume
	case key.Matches(msg, k.Restart):
		return operator.Restart
	case key.Matches(msg, k.Home):
		return operator.Home
	}
	return operator.Invalid
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Resume, k.Restart, k.Home},
		{k.Help, k.Quit},
	}
}
