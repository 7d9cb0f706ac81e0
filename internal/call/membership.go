package call

import (
	"slices"

	"github.com/pion/webrtc/v4"
	"github.com/serozhenka/shary/internal/media"
	"github.com/serozhenka/shary/internal/rtc"
	"github.com/serozhenka/shary/internal/signaling"
)

// handleInit creates a polite peer for every member already in the room.
func (s *Session) handleInit(msg signaling.InitPayload) {
	created := 0
	for _, info := range msg.Clients {
		if _, ok := s.peers[info.ID]; ok {
			s.log.Debug("init lists a known peer", "peer", info.ID)
			continue
		}
		p := s.createPeer(info, true)
		if p == nil {
			continue
		}
		s.attachLocal(p)
		created++
	}
	if created > 0 {
		s.announceLocal(false)
	}
	s.log.Info("joined room", "members", len(msg.Clients))
	s.refresh()
}

// handleClientJoined creates an impolite peer for the newcomer and offers
// right away.
func (s *Session) handleClientJoined(msg signaling.ClientJoinedPayload) {
	if _, ok := s.peers[msg.ClientID]; ok {
		s.log.Debug("join for a known peer", "peer", msg.ClientID)
		return
	}
	info := signaling.ClientInfo{ID: msg.ClientID, Username: msg.Username, ClientType: msg.ClientType}
	p := s.createPeer(info, false)
	if p == nil {
		return
	}
	s.announceLocal(true)
	s.attachLocal(p)
	s.negotiate(p, false)
	s.publishPeer(p)
}

func (s *Session) handleClientLeft(msg signaling.ClientLeftPayload) {
	p := s.lookup(msg.ClientID, signaling.MessageTypeClientLeft)
	if p == nil {
		return
	}
	p.log.Info("peer left")
	s.removePeer(p)
	s.refresh()
}

func (s *Session) createPeer(info signaling.ClientInfo, polite bool) *Peer {
	conn, err := s.factory.NewConn()
	if err != nil {
		s.log.Error("create connection failed", "peer", info.ID, "error", err)
		return nil
	}

	p := newPeer(info, polite, conn, s.log)
	s.peers[p.id] = p
	s.order = append(s.order, p.id)
	conn.SetHandlers(s.handlersFor(p))

	// The impolite side owns the chat channel.
	if !polite {
		dc, err := conn.CreateDataChannel(chatLabel, chatProtocol(s.clientType, info.ClientType))
		if err != nil {
			p.log.Error("create chat channel failed", "error", err)
		} else {
			s.bindChat(p, dc)
		}
	}

	if !slices.Contains(s.stats.PeersSeen, info.Username) {
		s.stats.PeersSeen = append(s.stats.PeersSeen, info.Username)
	}
	p.log.Info("peer joined")
	s.refresh()
	s.emit(Event{Type: EventPeerJoined, Peer: p.snapshot()})
	return p
}

// handlersFor builds the callback table for p. Every callback is deferred
// to the loop and dropped once p is destroyed.
func (s *Session) handlersFor(p *Peer) rtc.Handlers {
	return rtc.Handlers{
		OnNegotiationNeeded: func() {
			s.onPeer(p, func() { s.negotiate(p, false) })
		},
		OnICECandidate: func(c webrtc.ICECandidateInit) {
			s.onPeer(p, func() { s.handleLocalCandidate(p, c) })
		},
		OnICEConnectionStateChange: func(state webrtc.ICEConnectionState) {
			s.onPeer(p, func() { s.handleICEState(p, state) })
		},
		OnTrack: func(track media.RemoteTrack) {
			s.onPeer(p, func() { s.handleTrack(p, track) })
		},
		OnDataChannel: func(dc rtc.DataChannel) {
			s.post(func() {
				if p.closed {
					dc.Close()
					return
				}
				s.handleIncomingChannel(p, dc)
			})
		},
	}
}

// removePeer destroys p and drops it from the roster.
func (s *Session) removePeer(p *Peer) {
	if p == nil || !p.destroy() {
		return
	}
	delete(s.peers, p.id)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == p.id })
	s.emit(Event{Type: EventPeerLeft, Peer: p.snapshot()})
}

// attachLocal sends every local track to p.
func (s *Session) attachLocal(p *Peer) {
	for _, t := range s.camera.Tracks() {
		s.attachTrack(p, t)
	}
	if s.screen != nil {
		for _, t := range s.screen.Tracks() {
			s.attachTrack(p, t)
		}
	}
}

func (s *Session) attachTrack(p *Peer, t *media.LocalTrack) {
	if _, ok := p.senders[t.ID()]; ok {
		return
	}
	sender, err := p.conn.AddTrack(t)
	if err != nil {
		p.log.Error("add track failed", "track", t.ID(), "error", err)
		return
	}
	p.senders[t.ID()] = sender
}

func (s *Session) detachTrack(p *Peer, t *media.LocalTrack) {
	sender, ok := p.senders[t.ID()]
	if !ok {
		return
	}
	delete(p.senders, t.ID())
	if err := p.conn.RemoveTrack(sender); err != nil {
		p.log.Error("remove track failed", "track", t.ID(), "error", err)
	}
}

// announceLocal broadcasts the roles of our outgoing streams so receivers can
// sort tracks as they arrive. With screenNotice set an active share is also
// re-announced for a newcomer.
func (s *Session) announceLocal(screenNotice bool) {
	s.send(signaling.StreamMetadata(s.camera.ID(), media.RoleMedia))
	if s.screen == nil {
		return
	}
	s.send(signaling.StreamMetadata(s.screen.ID(), media.RoleScreen))
	if screenNotice {
		s.send(signaling.ScreenShareStarted())
	}
}

func (s *Session) livePeers() []*Peer {
	out := make([]*Peer, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.peers[id])
	}
	return out
}
