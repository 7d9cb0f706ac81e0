package call

import (
	"context"
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/serozhenka/shary/internal/rtc/rtctest"
	"github.com/serozhenka/shary/internal/signaling"
	"github.com/vmihailenco/msgpack/v5"
)

func chatLine(text string) ChatMessage {
	return ChatMessage{ID: signaling.NewMessageID(), Text: text, Username: "alice", Timestamp: 1, Own: true}
}

func TestChatProtocolSelection(t *testing.T) {
	tests := []struct {
		local, remote, want string
	}{
		{"cli", "cli", protocolMsgpack},
		{"cli", "web", protocolJSON},
		{"cli", "", protocolJSON},
		{"web", "cli", protocolJSON},
	}
	for _, tt := range tests {
		if got := chatProtocol(tt.local, tt.remote); got != tt.want {
			t.Errorf("chatProtocol(%q, %q) = %q, want %q", tt.local, tt.remote, got, tt.want)
		}
	}
}

func TestChatOutboxFlushedOnceInOrder(t *testing.T) {
	h := newHarness(t, "alice", "cli")
	p := h.join(t, "b", "bob", "cli")

	channels := h.conn(t, "b").Channels()
	if len(channels) != 1 {
		t.Fatalf("expected one chat channel, got %d", len(channels))
	}
	dc := channels[0]
	if dc.Label() != chatLabel || dc.Protocol() != protocolMsgpack {
		t.Fatalf("channel %q protocol %q", dc.Label(), dc.Protocol())
	}

	far := rtctest.NewDataChannel(dc.Label(), dc.Protocol())
	rtctest.Link(dc, far)
	var got []string
	far.OnMessage(func(m webrtc.DataChannelMessage) {
		var msg ChatMessage
		if err := msgpack.Unmarshal(m.Data, &msg); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if msg.Own || msg.From != "" {
			t.Errorf("local annotations leaked onto the wire: %+v", msg)
		}
		got = append(got, msg.Text)
	})

	for _, text := range []string{"one", "two", "three"} {
		h.broadcastChat(chatLine(text))
	}
	if len(dc.Sent()) != 0 || p.chat.state != ChatPending {
		t.Fatalf("messages sent before the channel opened")
	}

	dc.Open()
	h.pump()
	h.handleChatOpen(p)

	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("delivered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivered %v, want %v", got, want)
		}
	}

	h.broadcastChat(chatLine("four"))
	if len(got) != 4 || got[3] != "four" {
		t.Errorf("send on an open channel not delivered: %v", got)
	}
	if st := h.stats; st.ChatSent != 4 {
		t.Errorf("ChatSent = %d, want 4", st.ChatSent)
	}
}

func TestChatOutboxKeepsTailAfterSendFailure(t *testing.T) {
	h := newHarness(t, "alice", "cli")
	p := h.join(t, "b", "bob", "cli")
	dc := h.conn(t, "b").Channels()[0]

	for _, text := range []string{"one", "two", "three"} {
		h.broadcastChat(chatLine(text))
	}
	sends := 0
	dc.SendErr = func() error {
		sends++
		if sends == 2 {
			return errors.New("buffer full")
		}
		return nil
	}
	dc.Open()
	h.pump()

	if len(dc.Sent()) != 1 || len(p.chat.outbox) != 2 {
		t.Fatalf("sent %d, queued %d after a failed flush", len(dc.Sent()), len(p.chat.outbox))
	}

	dc.SendErr = nil
	h.broadcastChat(chatLine("four"))

	var texts []string
	for _, data := range dc.Sent() {
		var msg ChatMessage
		if err := msgpack.Unmarshal(data, &msg); err != nil {
			t.Fatal(err)
		}
		texts = append(texts, msg.Text)
	}
	want := []string{"one", "two", "three", "four"}
	if len(texts) != len(want) {
		t.Fatalf("delivered %v, want %v", texts, want)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Fatalf("delivered %v, want %v", texts, want)
		}
	}
	if len(p.chat.outbox) != 0 {
		t.Errorf("outbox not drained: %d left", len(p.chat.outbox))
	}
}

func TestChatBetweenSessions(t *testing.T) {
	alice := newHarness(t, "alice", "cli")
	bob := newHarness(t, "bob", "cli")
	bob.deliver(t, signaling.MessageTypeInit, signaling.InitPayload{
		Clients: []signaling.ClientInfo{{ID: "a", Username: "alice", ClientType: "cli"}},
	})
	alice.join(t, "b", "bob", "cli")

	adc := alice.conn(t, "b").Channels()[0]
	bdc := rtctest.NewDataChannel(adc.Label(), adc.Protocol())
	rtctest.Link(adc, bdc)
	bob.conn(t, "a").EmitDataChannel(bdc)
	bob.pump()
	if bob.peers["a"].chat.state != ChatPending {
		t.Fatalf("polite side did not adopt the incoming channel")
	}
	bob.events()

	alice.broadcastChat(chatLine("hello bob"))
	bdc.Open()
	adc.Open()
	alice.pump()
	bob.pump()

	var received []ChatMessage
	for _, ev := range bob.events() {
		if ev.Type == EventChat {
			received = append(received, ev.Chat)
		}
	}
	if len(received) != 1 {
		t.Fatalf("bob received %d chat events, want 1", len(received))
	}
	msg := received[0]
	if msg.Text != "hello bob" || msg.Username != "alice" || msg.From != "a" || msg.Own {
		t.Errorf("unexpected message %+v", msg)
	}
	if bob.stats.ChatReceived != 1 {
		t.Errorf("ChatReceived = %d", bob.stats.ChatReceived)
	}
	for _, ev := range alice.events() {
		if ev.Type == EventChat && !ev.Chat.Own {
			t.Errorf("own message echoed back as remote: %+v", ev.Chat)
		}
	}
}

func TestChatFromBrowserIsJSON(t *testing.T) {
	h := newHarness(t, "bob", "cli")
	h.deliver(t, signaling.MessageTypeInit, signaling.InitPayload{
		Clients: []signaling.ClientInfo{{ID: "w", Username: "webby", ClientType: "web"}},
	})
	dc := rtctest.NewDataChannel(chatLabel, "")
	dc.Open()
	h.conn(t, "w").EmitDataChannel(dc)
	h.pump()
	h.events()

	if h.peers["w"].chat.state != ChatOpen {
		t.Fatalf("an already open channel should be open once bound")
	}
	dc.Deliver([]byte(`{"id":"1","text":"hi from the browser","username":"webby","timestamp":1700000000000}`))
	h.pump()

	evs := h.events()
	if len(evs) != 1 || evs[0].Type != EventChat || evs[0].Chat.Text != "hi from the browser" {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestIncomingChannelFiltering(t *testing.T) {
	h := newHarness(t, "bob", "cli")
	h.deliver(t, signaling.MessageTypeInit, signaling.InitPayload{
		Clients: []signaling.ClientInfo{{ID: "a", Username: "alice"}},
	})
	conn := h.conn(t, "a")

	other := rtctest.NewDataChannel("files", "")
	conn.EmitDataChannel(other)
	h.pump()
	if other.ReadyState() != webrtc.DataChannelStateClosed || h.peers["a"].chat.dc != nil {
		t.Errorf("non-chat channel should be refused")
	}

	first := rtctest.NewDataChannel(chatLabel, "")
	second := rtctest.NewDataChannel(chatLabel, "")
	conn.EmitDataChannel(first)
	conn.EmitDataChannel(second)
	h.pump()
	if h.peers["a"].chat.dc != first || second.ReadyState() != webrtc.DataChannelStateClosed {
		t.Errorf("a second chat channel should be refused")
	}
}

func TestChatAfterCloseIsRefused(t *testing.T) {
	h := newHarness(t, "alice", "cli")
	p := h.join(t, "b", "bob", "web")
	dc := h.conn(t, "b").Channels()[0]
	dc.Open()
	h.pump()

	dc.Close()
	h.pump()
	if p.chat.state != ChatClosed {
		t.Fatalf("state %s after close", p.chat.state)
	}
	if err := p.chat.send(chatLine("late")); !errors.Is(err, ErrChatClosed) {
		t.Errorf("got %v, want ErrChatClosed", err)
	}
}

func TestSendChatRejectsEmpty(t *testing.T) {
	h := newHarness(t, "alice", "cli")
	if _, err := h.SendChat(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("got %v, want ErrEmptyMessage", err)
	}
}
