package rtc

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/serozhenka/shary/internal/media"
)

var errForeignSender = errors.New("sender does not belong to this connection")

// pionConn adapts *webrtc.PeerConnection to Conn. pion callbacks are
// registered once and dispatch through the current handler table.
type pionConn struct {
	pc *webrtc.PeerConnection

	mu       sync.RWMutex
	handlers Handlers
}

func newPionConn(pc *webrtc.PeerConnection) *pionConn {
	c := &pionConn{pc: pc}

	pc.OnNegotiationNeeded(func() {
		if h := c.table().OnNegotiationNeeded; h != nil {
			h()
		}
	})
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		if h := c.table().OnICECandidate; h != nil {
			h(candidate.ToJSON())
		}
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		if h := c.table().OnICEConnectionStateChange; h != nil {
			h(state)
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go drain(track)
		if h := c.table().OnTrack; h != nil {
			h(track)
		}
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if h := c.table().OnDataChannel; h != nil {
			h(dc)
		}
	})
	return c
}

// drain consumes RTP so the receive buffers never back up; rendering is out
// of scope for the terminal client.
func drain(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

func (c *pionConn) table() Handlers {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handlers
}

func (c *pionConn) SetHandlers(h Handlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

func (c *pionConn) SignalingState() webrtc.SignalingState { return c.pc.SignalingState() }

func (c *pionConn) ICEConnectionState() webrtc.ICEConnectionState {
	return c.pc.ICEConnectionState()
}

func (c *pionConn) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: iceRestart})
}

func (c *pionConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *pionConn) SetLocalDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(desc)
}

func (c *pionConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

func (c *pionConn) LocalDescription() *webrtc.SessionDescription  { return c.pc.LocalDescription() }
func (c *pionConn) RemoteDescription() *webrtc.SessionDescription { return c.pc.RemoteDescription() }

func (c *pionConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(candidate)
}

func (c *pionConn) AddTrack(track webrtc.TrackLocal) (Sender, error) {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	// RTCP must be read for interceptors (NACK, reports) to run.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return sender, nil
}

func (c *pionConn) RemoveTrack(sender Sender) error {
	rs, ok := sender.(*webrtc.RTPSender)
	if !ok {
		return errForeignSender
	}
	return c.pc.RemoveTrack(rs)
}

func (c *pionConn) CreateDataChannel(label, protocol string) (DataChannel, error) {
	ordered := true
	dc, err := c.pc.CreateDataChannel(label, &webrtc.DataChannelInit{
		Ordered:  &ordered,
		Protocol: &protocol,
	})
	if err != nil {
		return nil, err
	}
	return dc, nil
}

func (c *pionConn) Close() error {
	c.SetHandlers(Handlers{})
	return c.pc.Close()
}

var _ media.RemoteTrack = (*webrtc.TrackRemote)(nil)
