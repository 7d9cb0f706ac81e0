package call

import (
	"github.com/serozhenka/shary/internal/media"
	"github.com/serozhenka/shary/internal/signaling"
)

// handleTrack routes an inbound track by its stream role, parking it when
// the role is not known yet.
func (s *Session) handleTrack(p *Peer, remote media.RemoteTrack) {
	t := media.NewTrack(remote)
	if !t.Kind().Valid() {
		p.log.Warn("ignoring track of unknown kind", "track", t.ID())
		return
	}
	role, ok := p.demux.resolve(t)
	if !ok {
		p.log.Debug("track waiting for stream metadata", "track", t.ID(), "stream", t.StreamID())
		return
	}
	s.routeTrack(p, t, role)
	s.publishPeer(p)
}

func (s *Session) routeTrack(p *Peer, t *media.Track, role media.Role) {
	switch role {
	case media.RoleMedia:
		p.camera.Replace(t)
		switch t.Kind() {
		case media.KindAudio:
			p.audioMuted = false
		case media.KindVideo:
			p.videoMuted = false
		}
	case media.RoleScreen:
		p.screen.Replace(t)
		p.screenSharing = true
	}
	p.log.Debug("track attached", "track", t.ID(), "kind", t.Kind(), "role", role)
}

func (s *Session) handleStreamMetadata(msg signaling.StreamMetadataPayload) {
	p := s.lookup(msg.ClientID, signaling.MessageTypeStreamMetadata)
	if p == nil {
		return
	}
	released, changed := p.demux.register(msg.StreamID, msg.StreamType)
	if !changed {
		return
	}
	attached := 0
	for _, t := range released {
		if t.Stopped() {
			continue
		}
		s.routeTrack(p, t, msg.StreamType)
		attached++
	}
	if attached > 0 {
		s.publishPeer(p)
	}
}

// handleRemoteMuted drops the muted kind from the sender's camera stream.
func (s *Session) handleRemoteMuted(msg signaling.TrackStatePayload) {
	p := s.lookup(msg.ClientID, signaling.MessageTypeTrackMuted)
	if p == nil {
		return
	}
	p.camera.RemoveKind(msg.TrackKind)
	switch msg.TrackKind {
	case media.KindAudio:
		p.audioMuted = true
	case media.KindVideo:
		p.videoMuted = true
	}
	s.publishPeer(p)
}

// handleRemoteUnmuted only logs: the mute flag clears when the fresh track
// actually arrives.
func (s *Session) handleRemoteUnmuted(msg signaling.TrackStatePayload) {
	p := s.lookup(msg.ClientID, signaling.MessageTypeTrackUnmuted)
	if p == nil {
		return
	}
	p.log.Debug("peer unmuted, waiting for track", "kind", msg.TrackKind)
}

func (s *Session) handleRemoteScreenShare(peerID string, started bool) {
	msgType := signaling.MessageTypeScreenShareStopped
	if started {
		msgType = signaling.MessageTypeScreenShareStarted
	}
	p := s.lookup(peerID, msgType)
	if p == nil {
		return
	}
	if started {
		p.screenSharing = true
	} else {
		p.screen.Clear()
		p.screenSharing = false
	}
	s.publishPeer(p)
}

// screenOwner returns the username of a peer currently sharing, if any.
func (s *Session) screenOwner() string {
	for _, p := range s.livePeers() {
		if p.screenSharing {
			return p.username
		}
	}
	return ""
}
