package keys

import "github.com/charmbracelet/bubbles/key"

// WatchKeys are the key bindings of the board watch view
type WatchKeys struct {
	Quit     key.Binding
	Help     key.Binding
	Up       key.Binding
	Down     key.Binding
	Reset    key.Binding
	Pulse    key.Binding
	Touch    key.Binding
	USBReset key.Binding
	Refresh  key.Binding
}

func NewWatchKeys() WatchKeys {
	return WatchKeys{
		Quit: key.NewBinding(
			key.WithKeys("q", "Q", "ctrl+c"),
			key.WithHelp("q/ctrl+c", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Reset: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reset (pulse boards)"),
		),
		Pulse: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "DTR/RTS pulse"),
		),
		Touch: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "1200 bps touch"),
		),
		USBReset: key.NewBinding(
			key.WithKeys("U"),
			key.WithHelp("U", "USB port reset"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("u", "ctrl+r"),
			key.WithHelp("u", "refresh"),
		),
	}
}

func (k WatchKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Reset, k.Touch, k.Refresh, k.Quit}
}

func (k WatchKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Refresh},
		{k.Reset, k.Pulse, k.Touch, k.USBReset},
		{k.Help, k.Quit},
	}
}
