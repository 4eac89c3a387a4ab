package ui

import (
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines all keybindings of the on-site screen
type KeyMap struct {
	// Navigation
	Up      key.Binding
	Down    key.Binding
	Section key.Binding

	// Timer
	Play    key.Binding
	Pause   key.Binding
	Stop    key.Binding
	Revisit key.Binding
	Finish  key.Binding

	// Lines
	AddMaterial key.Binding
	AddOrder    key.Binding
	AddSession  key.Binding
	Delete      key.Binding
	TravelUp    key.Binding
	TravelDown  key.Binding

	// General
	Resync     key.Binding
	Help       key.Binding
	ThemeCycle key.Binding
	Quit       key.Binding
	Confirm    key.Binding
	Cancel     key.Binding
}

// DefaultKeyMap returns the default keybindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Section: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next list"),
		),

		Play: key.NewBinding(
			key.WithKeys("s", " "),
			key.WithHelp("s/space", "start"),
		),
		Pause: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "pause"),
		),
		Stop: key.NewBinding(
			key.WithKeys("S"),
			key.WithHelp("S", "stop & save"),
		),
		Revisit: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "revisit"),
		),
		Finish: key.NewBinding(
			key.WithKeys("F"),
			key.WithHelp("F", "finish"),
		),

		AddMaterial: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "material"),
		),
		AddOrder: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "order"),
		),
		AddSession: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "add time"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d", "delete"),
			key.WithHelp("d", "delete"),
		),
		TravelUp: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "travel"),
		),
		TravelDown: key.NewBinding(
			key.WithKeys("-"),
			key.WithHelp("-", "travel"),
		),

		Resync: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("C-s", "sync"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		ThemeCycle: key.NewBinding(
			key.WithKeys("ctrl+t"),
			key.WithHelp("C-t", "theme"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "confirm"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
	}
}

// ShortHelp returns short help bindings (for status bar)
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Play, k.Pause, k.Stop, k.Finish, k.Help, k.Quit}
}

// FullHelp returns full help bindings (for help view)
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Play, k.Pause, k.Stop, k.Revisit, k.Finish},
		{k.AddMaterial, k.AddOrder, k.AddSession, k.Delete},
		{k.TravelUp, k.TravelDown, k.Up, k.Down, k.Section},
		{k.Resync, k.ThemeCycle, k.Help, k.Quit},
	}
}
