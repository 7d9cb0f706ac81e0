package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines the room view's key bindings. Everything else goes to the
// input line.
type KeyMap struct {
	Send        key.Binding
	ToggleVideo key.Binding
	ToggleAudio key.Binding
	Quit        key.Binding
}

var DefaultKeyMap = KeyMap{
	Send: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "send / run command"),
	),
	ToggleVideo: key.NewBinding(
		key.WithKeys("f2"),
		key.WithHelp("f2", "camera"),
	),
	ToggleAudio: key.NewBinding(
		key.WithKeys("f3"),
		key.WithHelp("f3", "mic"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "leave"),
	),
}

func (k KeyMap) help() string {
	var parts []string
	for _, b := range []key.Binding{k.Send, k.ToggleVideo, k.ToggleAudio, k.Quit} {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	parts = append(parts, "/screen share", "/help")
	return strings.Join(parts, " • ")
}
