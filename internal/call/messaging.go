package call

import (
	"context"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/serozhenka/shary/internal/rtc"
	"github.com/serozhenka/shary/internal/signaling"
)

// SendChat broadcasts text to every peer. Peers whose channel is still
// opening receive it once the channel opens.
func (s *Session) SendChat(ctx context.Context, text string) (ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, newError("send chat", ErrEmptyMessage)
	}

	msg := ChatMessage{
		ID:        signaling.NewMessageID(),
		Text:      text,
		Username:  s.username,
		Timestamp: time.Now().UnixMilli(),
		Own:       true,
	}
	if err := s.call(ctx, func() error {
		s.broadcastChat(msg)
		return nil
	}); err != nil {
		return ChatMessage{}, err
	}
	return msg, nil
}

// broadcastChat hands msg to every peer's channel and echoes it locally.
func (s *Session) broadcastChat(msg ChatMessage) {
	for _, p := range s.livePeers() {
		if err := p.chat.send(msg); err != nil {
			p.log.Warn("chat send failed", "messageId", msg.ID, "error", err)
		}
	}
	s.stats.ChatSent++
	s.refresh()
	s.emit(Event{Type: EventChat, Chat: msg})
}

// bindChat attaches dc as p's chat channel. A channel that is already open
// flushes its outbox immediately.
func (s *Session) bindChat(p *Peer, dc rtc.DataChannel) {
	p.chat.bind(dc)
	dc.OnOpen(func() {
		s.onPeer(p, func() { s.handleChatOpen(p) })
	})
	dc.OnMessage(func(m webrtc.DataChannelMessage) {
		data := m.Data
		s.onPeer(p, func() { s.handleChatData(p, data) })
	})
	dc.OnClose(func() {
		s.onPeer(p, func() {
			p.chat.state = ChatClosed
			p.log.Debug("chat channel closed")
			s.publishPeer(p)
		})
	})
	if p.chat.state == ChatOpen {
		s.handleChatOpen(p)
	}
}

// handleIncomingChannel accepts the chat channel the remote side opened.
func (s *Session) handleIncomingChannel(p *Peer, dc rtc.DataChannel) {
	if dc.Label() != chatLabel {
		p.log.Warn("ignoring data channel", "label", dc.Label())
		dc.Close()
		return
	}
	if p.chat.dc != nil {
		p.log.Warn("peer opened a second chat channel, keeping the first")
		dc.Close()
		return
	}
	s.bindChat(p, dc)
	s.publishPeer(p)
}

func (s *Session) handleChatOpen(p *Peer) {
	flushed, err := p.chat.open()
	if err != nil {
		p.log.Warn("flushing chat outbox failed", "delivered", flushed, "queued", len(p.chat.outbox), "error", err)
	} else if flushed > 0 {
		p.log.Debug("flushed chat outbox", "delivered", flushed)
	}
	s.publishPeer(p)
}

func (s *Session) handleChatData(p *Peer, data []byte) {
	msg, err := p.chat.decode(data)
	if err != nil {
		p.log.Warn("dropping undecodable chat message", "error", err)
		return
	}
	if msg.Username == "" {
		msg.Username = p.username
	}
	msg.From = p.id
	msg.Own = false

	s.stats.ChatReceived++
	s.refresh()
	s.emit(Event{Type: EventChat, Chat: msg})
}
