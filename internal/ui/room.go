package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/serozhenka/shary/internal/call"
)

const (
	maxChatLines  = 200
	chatViewLines = 10
	actionTimeout = 15 * time.Second
)

// Controller is the part of a call session the room view drives.
// *call.Session implements it.
type Controller interface {
	ToggleVideo(ctx context.Context) (bool, error)
	ToggleAudio(ctx context.Context) (bool, error)
	ToggleScreenShare(ctx context.Context) (bool, error)
	SendChat(ctx context.Context, text string) (call.ChatMessage, error)
	Peers() []call.PeerState
	Local() call.LocalState
	Events() <-chan call.Event
	Leave()
}

type (
	eventMsg        call.Event
	eventsClosedMsg struct{}
	actionMsg       struct {
		note string
		err  error
	}
)

type chatLine struct {
	at     time.Time
	from   string
	text   string
	own    bool
	system bool
}

// RoomModel is the bubbletea model for an active call: the roster, the chat
// log and an input line that takes chat text or slash commands.
type RoomModel struct {
	ctx  context.Context
	ctrl Controller
	room string
	keys KeyMap

	input   textinput.Model
	spinner spinner.Model
	width   int

	peers []call.PeerState
	local call.LocalState
	lines []chatLine

	status    string
	statusErr bool
	ended     bool
	endErr    error
	quitting  bool
}

func NewRoomModel(ctx context.Context, ctrl Controller, room string) *RoomModel {
	input := textinput.New()
	input.Placeholder = "Say something, or /help"
	input.CharLimit = 2000
	input.Prompt = "› "
	input.Focus()

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = SpinnerStyle

	return &RoomModel{
		ctx:     ctx,
		ctrl:    ctrl,
		room:    room,
		keys:    DefaultKeyMap,
		input:   input,
		spinner: s,
		peers:   ctrl.Peers(),
		local:   ctrl.Local(),
	}
}

// Err is why the call ended, if it ended with an error.
func (m *RoomModel) Err() error {
	return m.endErr
}

func (m *RoomModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.waitForEvent())
}

func (m *RoomModel) waitForEvent() tea.Cmd {
	events := m.ctrl.Events()
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *RoomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.ctrl.Leave()
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.ToggleVideo):
			return m, m.toggle("camera", m.ctrl.ToggleVideo)
		case key.Matches(msg, m.keys.ToggleAudio):
			return m, m.toggle("microphone", m.ctrl.ToggleAudio)
		case key.Matches(msg, m.keys.Send):
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			return m, m.submit(text)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(10, msg.Width-6)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.apply(call.Event(msg))
		return m, m.waitForEvent()

	case eventsClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case actionMsg:
		m.setStatus(msg.note, msg.err)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit runs a slash command or sends text as chat.
func (m *RoomModel) submit(text string) tea.Cmd {
	if text == "" {
		return nil
	}
	if !strings.HasPrefix(text, "/") {
		return m.chat(text)
	}

	command := strings.ToLower(strings.Fields(text)[0])
	switch command {
	case "/video", "/camera":
		return m.toggle("camera", m.ctrl.ToggleVideo)
	case "/audio", "/mic":
		return m.toggle("microphone", m.ctrl.ToggleAudio)
	case "/screen":
		return m.toggle("screen share", m.ctrl.ToggleScreenShare)
	case "/leave", "/quit":
		m.ctrl.Leave()
		m.setStatus("leaving…", nil)
		return nil
	case "/help":
		m.setStatus(m.keys.help(), nil)
		return nil
	}
	m.setStatus("", fmt.Errorf("unknown command %s", command))
	return nil
}

func (m *RoomModel) toggle(what string, fn func(context.Context) (bool, error)) tea.Cmd {
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, actionTimeout)
		defer cancel()
		on, err := fn(ctx)
		if err != nil {
			return actionMsg{err: fmt.Errorf("%s: %w", what, err)}
		}
		state := "off"
		if on {
			state = "on"
		}
		return actionMsg{note: what + " " + state}
	}
}

// chat sends text; the session echoes it back as a chat event.
func (m *RoomModel) chat(text string) tea.Cmd {
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, actionTimeout)
		defer cancel()
		if _, err := m.ctrl.SendChat(ctx, text); err != nil {
			return actionMsg{err: fmt.Errorf("chat: %w", err)}
		}
		return nil
	}
}

func (m *RoomModel) apply(ev call.Event) {
	switch ev.Type {
	case call.EventPeerJoined:
		m.system(ev.Peer.Username + " joined")
		m.peers = m.ctrl.Peers()

	case call.EventPeerLeft:
		m.system(ev.Peer.Username + " left")
		m.peers = m.ctrl.Peers()

	case call.EventPeerUpdated:
		if prev, ok := m.peer(ev.Peer.ID); ok && prev.ScreenSharing != ev.Peer.ScreenSharing {
			if ev.Peer.ScreenSharing {
				m.system(ev.Peer.Username + " started sharing their screen")
			} else {
				m.system(ev.Peer.Username + " stopped sharing their screen")
			}
		}
		m.peers = m.ctrl.Peers()

	case call.EventLocalUpdated:
		m.local = ev.Local

	case call.EventChat:
		m.appendLine(chatLine{
			at:   time.UnixMilli(ev.Chat.Timestamp),
			from: ev.Chat.Username,
			text: ev.Chat.Text,
			own:  ev.Chat.Own,
		})

	case call.EventEnded:
		m.ended = true
		m.endErr = ev.Err
		if ev.Err != nil {
			m.setStatus("", ev.Err)
		}
	}
}

func (m *RoomModel) peer(id string) (call.PeerState, bool) {
	for _, p := range m.peers {
		if p.ID == id {
			return p, true
		}
	}
	return call.PeerState{}, false
}

func (m *RoomModel) system(text string) {
	m.appendLine(chatLine{at: time.Now(), text: text, system: true})
}

func (m *RoomModel) appendLine(l chatLine) {
	m.lines = append(m.lines, l)
	if over := len(m.lines) - maxChatLines; over > 0 {
		m.lines = m.lines[over:]
	}
}

func (m *RoomModel) setStatus(note string, err error) {
	if err != nil {
		m.status, m.statusErr = err.Error(), true
		return
	}
	m.status, m.statusErr = note, false
}

func (m *RoomModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s %s", IconRoom, m.room)))
	b.WriteString("\n")
	b.WriteString(m.localView())
	b.WriteString("\n\n")

	if len(m.peers) == 0 && !m.ended {
		b.WriteString(fmt.Sprintf("%s Waiting for others to join\n", m.spinner.View()))
	} else {
		b.WriteString(NewPeerTable(m.peers).View())
		b.WriteString("\n")
	}

	b.WriteString(ChatBoxStyle.Render(m.chatView()))
	b.WriteString("\n")

	if m.status != "" {
		if m.statusErr {
			b.WriteString(ErrorStyle.Render(m.status))
		} else {
			b.WriteString(MutedStyle.Render(m.status))
		}
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(FooterStyle.Render(m.keys.help()))
	return b.String()
}

func (m *RoomModel) localView() string {
	name := m.local.Username
	if name == "" {
		name = "you"
	}
	return fmt.Sprintf("%s %s  %s %s %s",
		IconPeer, BoldStyle.Render(name),
		onOff(IconCamera, m.local.VideoEnabled),
		onOff(IconMic, m.local.AudioEnabled),
		onOff(IconScreen, m.local.ScreenSharing),
	)
}

func (m *RoomModel) chatView() string {
	if len(m.lines) == 0 {
		return MutedStyle.Render(IconChat + " No messages yet")
	}
	lines := m.lines
	if len(lines) > chatViewLines {
		lines = lines[len(lines)-chatViewLines:]
	}
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		stamp := MutedStyle.Render(l.at.Format("15:04"))
		switch {
		case l.system:
			out = append(out, stamp+" "+SystemLineStyle.Render(l.text))
		case l.own:
			out = append(out, stamp+" "+OwnNameStyle.Render(l.from)+": "+l.text)
		default:
			out = append(out, stamp+" "+PeerNameStyle.Render(l.from)+": "+l.text)
		}
	}
	return strings.Join(out, "\n")
}

// RunRoom shows the room view until the user leaves or the session ends. It
// returns the session's end error, if any.
func RunRoom(ctx context.Context, ctrl Controller, room string) error {
	model := NewRoomModel(ctx, ctrl, room)
	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("room view: %w", err)
	}
	return model.Err()
}
