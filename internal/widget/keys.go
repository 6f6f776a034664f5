package widget

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the widget's key bindings. Letters go to the focused input,
// so every action sits on a control key.
type KeyMap struct {
	NextField  key.Binding
	PrevField  key.Binding
	CycleModel key.Binding
	Generate   key.Binding
	Copy       key.Binding
	Resume     key.Binding
	Clear      key.Binding
	Minimize   key.Binding
	Refresh    key.Binding
	Quit       key.Binding
}

// DefaultKeyMap is the built-in binding set.
var DefaultKeyMap = KeyMap{
	NextField: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next field"),
	),
	PrevField: key.NewBinding(
		key.WithKeys("shift+tab"),
		key.WithHelp("S-tab", "prev field"),
	),
	CycleModel: key.NewBinding(
		key.WithKeys("ctrl+w"),
		key.WithHelp("C-w", "model"),
	),
	Generate: key.NewBinding(
		key.WithKeys("ctrl+g"),
		key.WithHelp("C-g", "handoff"),
	),
	Copy: key.NewBinding(
		key.WithKeys("ctrl+y"),
		key.WithHelp("C-y", "copy"),
	),
	Resume: key.NewBinding(
		key.WithKeys("ctrl+r"),
		key.WithHelp("C-r", "resume prompt"),
	),
	Clear: key.NewBinding(
		key.WithKeys("ctrl+x"),
		key.WithHelp("C-x", "clear"),
	),
	Minimize: key.NewBinding(
		key.WithKeys("ctrl+n"),
		key.WithHelp("C-n", "minimize"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("f5"),
		key.WithHelp("F5", "refresh"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("esc", "quit"),
	),
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Generate, k.Copy, k.CycleModel, k.Minimize, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.NextField, k.PrevField, k.CycleModel},
		{k.Generate, k.Copy, k.Resume},
		{k.Clear, k.Minimize, k.Refresh, k.Quit},
	}
}
