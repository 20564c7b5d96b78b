package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the keyboard shortcuts
type keyMap struct {
	ForceQuit key.Binding
	Quit      key.Binding
	Next      key.Binding
	Prev      key.Binding
	Create    key.Binding
	Delete    key.Binding
	Reload    key.Binding
	Logout    key.Binding
	ToSignup  key.Binding
	Back      key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		ForceQuit: key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
		Quit:      key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
		Next:      key.NewBinding(key.WithKeys("n", "right"), key.WithHelp("n/→", "next page")),
		Prev:      key.NewBinding(key.WithKeys("p", "left"), key.WithHelp("p/←", "previous page")),
		Create:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "create")),
		Delete:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		Reload:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		Logout:    key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "log out")),
		ToSignup:  key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "create an account")),
		Back:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	}
}

// bindings adapts a list of bindings to help.KeyMap
type bindings []key.Binding

func (b bindings) ShortHelp() []key.Binding  { return b }
func (b bindings) FullHelp() [][]key.Binding { return [][]key.Binding{b} }
