// Package rtc wraps the WebRTC peer connection behind a small interface so the
// negotiation logic can run against pion in production and a deterministic
// fake in tests.
package rtc

import (
	"github.com/pion/webrtc/v4"
	"github.com/serozhenka/shary/internal/media"
)

// Handlers is the table of callbacks a Conn dispatches to. A nil entry means
// the event is ignored. Setting an empty table detaches every callback.
type Handlers struct {
	OnNegotiationNeeded        func()
	OnICECandidate             func(webrtc.ICECandidateInit)
	OnICEConnectionStateChange func(webrtc.ICEConnectionState)
	OnTrack                    func(media.RemoteTrack)
	OnDataChannel              func(DataChannel)
}

// Sender identifies one outbound track on a connection.
type Sender interface {
	Track() webrtc.TrackLocal
}

// DataChannel is the subset of *webrtc.DataChannel used for chat.
type DataChannel interface {
	Label() string
	Protocol() string
	ReadyState() webrtc.DataChannelState
	Send(data []byte) error
	OnOpen(f func())
	OnMessage(f func(msg webrtc.DataChannelMessage))
	OnClose(f func())
	Close() error
}

// Conn is one pairwise peer connection.
type Conn interface {
	SignalingState() webrtc.SignalingState
	ICEConnectionState() webrtc.ICEConnectionState

	CreateOffer(iceRestart bool) (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	RemoteDescription() *webrtc.SessionDescription
	AddICECandidate(candidate webrtc.ICECandidateInit) error

	AddTrack(track webrtc.TrackLocal) (Sender, error)
	RemoveTrack(sender Sender) error
	CreateDataChannel(label, protocol string) (DataChannel, error)

	SetHandlers(h Handlers)
	Close() error
}

// Factory creates connections.
type Factory interface {
	NewConn() (Conn, error)
}

var _ DataChannel = (*webrtc.DataChannel)(nil)
