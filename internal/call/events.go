package call

import (
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/serozhenka/shary/internal/media"
)

type EventType int

const (
	EventPeerJoined EventType = iota + 1
	EventPeerLeft
	EventPeerUpdated
	EventLocalUpdated
	EventChat
	EventEnded
)

func (t EventType) String() string {
	switch t {
	case EventPeerJoined:
		return "peer-joined"
	case EventPeerLeft:
		return "peer-left"
	case EventPeerUpdated:
		return "peer-updated"
	case EventLocalUpdated:
		return "local-updated"
	case EventChat:
		return "chat"
	case EventEnded:
		return "ended"
	}
	return "unknown"
}

// Event is delivered to UI consumers through Session.Events. Only the fields
// relevant to Type are set.
type Event struct {
	Type  EventType
	Peer  PeerState
	Local LocalState
	Chat  ChatMessage
	Err   error
}

// PeerState is an immutable snapshot of one remote participant. The track
// slices are copies; the tracks themselves are live handles.
type PeerState struct {
	ID            string
	Username      string
	ClientType    string
	Polite        bool
	AudioMuted    bool
	VideoMuted    bool
	ScreenSharing bool
	Camera        []*media.Track
	Screen        []*media.Track
	Chat          ChatState
	Signaling     webrtc.SignalingState
	ICE           webrtc.ICEConnectionState
}

// LocalState is a snapshot of what the local participant is sending.
type LocalState struct {
	Username      string
	VideoEnabled  bool
	AudioEnabled  bool
	ScreenSharing bool
}

// Stats summarises a call for the end-of-call report.
type Stats struct {
	Started      time.Time
	Ended        time.Time
	PeersSeen    []string
	ChatSent     int
	ChatReceived int
}

// Duration is the wall time between Run starting and the session ending.
func (s Stats) Duration() time.Duration {
	if s.Started.IsZero() {
		return 0
	}
	end := s.Ended
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.Started)
}
