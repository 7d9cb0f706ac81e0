package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/serozhenka/shary/internal/call"
)

func TestSummaryView(t *testing.T) {
	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	view := SummaryView(CallSummary{
		Room: "standup",
		Stats: call.Stats{
			Started:      start,
			Ended:        start.Add(3*time.Minute + 7*time.Second),
			PeersSeen:    []string{"bob", "carol"},
			ChatSent:     2,
			ChatReceived: 5,
		},
	})

	for _, want := range []string{"standup", "3m 07s", "bob, carol", "Left"} {
		if !strings.Contains(view, want) {
			t.Errorf("summary missing %q:\n%s", want, view)
		}
	}

	failed := SummaryView(CallSummary{Room: "r", Reason: errors.New("relay went away")})
	if !strings.Contains(failed, "relay went away") {
		t.Errorf("failure reason not shown:\n%s", failed)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{61 * time.Second, "1m 01s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h 02m 03s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPeerTableRows(t *testing.T) {
	table := NewPeerTable([]call.PeerState{
		{Username: "bob", AudioMuted: true, ScreenSharing: true},
		{Username: "a-very-long-username-that-goes-on-and-on", ClientType: "cli"},
	})
	rows := table.rows()
	if len(rows) != 2 {
		t.Fatalf("rows %v", rows)
	}
	if rows[0][1] != "web" || rows[0][3] != IconMuted || rows[0][4] != IconScreen {
		t.Errorf("bob row %q", rows[0])
	}
	if n := len([]rune(rows[1][0])); n != maxNameWidth {
		t.Errorf("long name truncated to %d runes: %q", n, rows[1][0])
	}
	if rows[1][1] != "cli" {
		t.Errorf("client type %q", rows[1][1])
	}

	if !strings.Contains(NewPeerTable(nil).View(), "Nobody") {
		t.Errorf("empty table view")
	}
}
