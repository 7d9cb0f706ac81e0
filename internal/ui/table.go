package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/serozhenka/shary/internal/call"
	"github.com/serozhenka/shary/internal/media"
)

const maxNameWidth = 24

// PeerTable renders the room roster with each peer's media and link state.
type PeerTable struct {
	peers []call.PeerState
}

func NewPeerTable(peers []call.PeerState) *PeerTable {
	return &PeerTable{peers: peers}
}

func (t *PeerTable) rows() [][]string {
	rows := make([][]string, 0, len(t.peers))
	for _, p := range t.peers {
		client := p.ClientType
		if client == "" {
			client = "web"
		}
		rows = append(rows, []string{
			truncate(p.Username, maxNameWidth),
			client,
			onOff(IconCamera, hasKind(p.Camera, media.KindVideo) && !p.VideoMuted),
			micState(p),
			onOff(IconScreen, p.ScreenSharing),
			p.Chat.String(),
			p.ICE.String(),
		})
	}
	return rows
}

// View renders the table as a string.
func (t *PeerTable) View() string {
	if len(t.peers) == 0 {
		return MutedStyle.Render("Nobody else is here yet")
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Peer", "Client", "Cam", "Mic", "Screen", "Chat", "ICE").
		Rows(t.rows()...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func micState(p call.PeerState) string {
	switch {
	case p.AudioMuted:
		return IconMuted
	case hasKind(p.Camera, media.KindAudio):
		return IconMic
	}
	return MutedStyle.Render("·")
}

func hasKind(tracks []*media.Track, kind media.Kind) bool {
	for _, t := range tracks {
		if t.Kind() == kind {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
