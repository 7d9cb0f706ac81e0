package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/serozhenka/shary/internal/call"
)

// CallSummary is what the CLI reports after leaving a room.
type CallSummary struct {
	Room   string
	Stats  call.Stats
	Reason error
}

// SummaryView renders the summary as a go-pretty table.
func SummaryView(s CallSummary) string {
	status := IconSuccess + " Left"
	if s.Reason != nil {
		status = IconError + " " + s.Reason.Error()
	}

	peers := "-"
	if len(s.Stats.PeersSeen) > 0 {
		peers = strings.Join(s.Stats.PeersSeen, ", ")
	}

	t := table.NewWriter()
	t.SetTitle("Call Summary")
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Room", s.Room},
		{"Status", status},
		{"Duration", formatDuration(s.Stats.Duration())},
		{"Participants", peers},
		{"Messages sent", s.Stats.ChatSent},
		{"Messages received", s.Stats.ChatReceived},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: text.Colors{text.FgCyan}},
		{Number: 2, WidthMax: 60},
	})
	return t.Render()
}

func RenderCallSummary(w io.Writer, s CallSummary) {
	fmt.Fprintln(w, SummaryView(s))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh %02dm %02ds", h, m, sec)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %02ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}
