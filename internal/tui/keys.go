package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the detail view keybindings
type KeyMap struct {
	TogglePlay key.Binding
	Back       key.Binding
	Forward    key.Binding
	VolumeUp   key.Binding
	VolumeDown key.Binding
	Mute       key.Binding
	Slower     key.Binding
	Faster     key.Binding
	Fullscreen key.Binding
	Next       key.Binding
	Prev       key.Binding
	CopyURL    key.Binding
	Help       key.Binding
	Quit       key.Binding
}

// DefaultKeyMap returns the default keybindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		TogglePlay: key.NewBinding(
			key.WithKeys(" ", "k"),
			key.WithHelp("space/k", "play/pause"),
		),
		Back: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "-10s"),
		),
		Forward: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "+10s"),
		),
		VolumeUp: key.NewBinding(
			key.WithKeys("up", "+", "="),
			key.WithHelp("↑/+", "volume up"),
		),
		VolumeDown: key.NewBinding(
			key.WithKeys("down", "-"),
			key.WithHelp("↓/-", "volume down"),
		),
		Mute: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "mute"),
		),
		Slower: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "slower"),
		),
		Faster: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "faster"),
		),
		Fullscreen: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "fullscreen"),
		),
		Next: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "next episode"),
		),
		Prev: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "previous episode"),
		),
		CopyURL: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "copy url"),
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
}
