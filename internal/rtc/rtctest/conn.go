// Package rtctest provides an in-memory rtc.Conn that models the WebRTC
// signaling state machine without any networking.
package rtctest

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/serozhenka/shary/internal/media"
	"github.com/serozhenka/shary/internal/rtc"
)

var (
	ErrClosed              = errors.New("connection closed")
	ErrInvalidState        = errors.New("invalid signaling state")
	ErrNoRemoteDescription = errors.New("remote description not set")
	ErrUnknownSender       = errors.New("unknown sender")
)

// Sender is the fake rtc.Sender.
type Sender struct {
	track webrtc.TrackLocal
}

func (s *Sender) Track() webrtc.TrackLocal { return s.track }

// Conn is a fake connection. Description handling allows only the
// transitions pion v4 allows: an offer is applied from stable, an answer
// from the matching have-*-offer state, and rollback is always refused.
// Candidates need a remote description, and negotiation-needed fires when
// senders or the first data channel change while stable and again on every
// return to stable while a change is still unoffered.
type Conn struct {
	Name string

	mu            sync.Mutex
	state         webrtc.SignalingState
	iceState      webrtc.ICEConnectionState
	currentLocal  *webrtc.SessionDescription
	pendingLocal  *webrtc.SessionDescription
	currentRemote *webrtc.SessionDescription
	pendingRemote *webrtc.SessionDescription
	handlers      rtc.Handlers

	senders    []*Sender
	channels   []*DataChannel
	candidates []webrtc.ICECandidateInit

	needsNegotiation bool
	closed           bool
	seq              int

	offers, answers, restarts int
	negotiationNeededFired   int

	// CreateOfferErr, when set, fails every CreateOffer call.
	CreateOfferErr error
}

// NewConn returns a stable connection named name.
func NewConn(name string) *Conn {
	return &Conn{
		Name:     name,
		state:    webrtc.SignalingStateStable,
		iceState: webrtc.ICEConnectionStateNew,
	}
}

func (c *Conn) SignalingState() webrtc.SignalingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) ICEConnectionState() webrtc.ICEConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.iceState
}

func (c *Conn) describe(kind string) string {
	c.seq++
	ids := make([]string, 0, len(c.senders))
	for _, s := range c.senders {
		ids = append(ids, s.track.ID())
	}
	return fmt.Sprintf("%s %s #%d tracks=[%s] channels=%d", c.Name, kind, c.seq, strings.Join(ids, ","), len(c.channels))
}

func (c *Conn) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return webrtc.SessionDescription{}, ErrClosed
	}
	if c.CreateOfferErr != nil {
		return webrtc.SessionDescription{}, c.CreateOfferErr
	}
	if c.state == webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: create offer in %s", ErrInvalidState, c.state)
	}
	c.offers++
	kind := "offer"
	if iceRestart {
		c.restarts++
		kind = "offer(ice-restart)"
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: c.describe(kind)}, nil
}

func (c *Conn) CreateAnswer() (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return webrtc.SessionDescription{}, ErrClosed
	}
	if c.state != webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: create answer in %s", ErrInvalidState, c.state)
	}
	c.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: c.describe("answer")}, nil
}

func (c *Conn) SetLocalDescription(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	switch desc.Type {
	case webrtc.SDPTypeOffer:
		if c.state != webrtc.SignalingStateStable {
			c.mu.Unlock()
			return fmt.Errorf("%w: local offer in %s", ErrInvalidState, c.state)
		}
		c.pendingLocal = &desc
		c.state = webrtc.SignalingStateHaveLocalOffer
		c.needsNegotiation = false

	case webrtc.SDPTypeAnswer:
		if c.state != webrtc.SignalingStateHaveRemoteOffer {
			c.mu.Unlock()
			return fmt.Errorf("%w: local answer in %s", ErrInvalidState, c.state)
		}
		c.currentLocal = &desc
		c.currentRemote = c.pendingRemote
		c.pendingRemote = nil
		c.state = webrtc.SignalingStateStable

	case webrtc.SDPTypeRollback:
		c.mu.Unlock()
		return fmt.Errorf("%w: rollback in %s", ErrInvalidState, c.state)

	default:
		c.mu.Unlock()
		return fmt.Errorf("%w: unsupported description %s", ErrInvalidState, desc.Type)
	}

	fire := c.negotiationDueLocked()
	c.mu.Unlock()
	fire()
	return nil
}

func (c *Conn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	switch desc.Type {
	case webrtc.SDPTypeOffer:
		if c.state != webrtc.SignalingStateStable {
			c.mu.Unlock()
			return fmt.Errorf("%w: remote offer in %s", ErrInvalidState, c.state)
		}
		c.pendingRemote = &desc
		c.state = webrtc.SignalingStateHaveRemoteOffer

	case webrtc.SDPTypeAnswer:
		if c.state != webrtc.SignalingStateHaveLocalOffer {
			c.mu.Unlock()
			return fmt.Errorf("%w: remote answer in %s", ErrInvalidState, c.state)
		}
		c.currentRemote = &desc
		c.currentLocal = c.pendingLocal
		c.pendingLocal = nil
		c.state = webrtc.SignalingStateStable

	case webrtc.SDPTypeRollback:
		c.mu.Unlock()
		return fmt.Errorf("%w: rollback in %s", ErrInvalidState, c.state)

	default:
		c.mu.Unlock()
		return fmt.Errorf("%w: unsupported description %s", ErrInvalidState, desc.Type)
	}

	fire := c.negotiationDueLocked()
	c.mu.Unlock()
	fire()
	return nil
}

func (c *Conn) LocalDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingLocal != nil {
		return c.pendingLocal
	}
	return c.currentLocal
}

func (c *Conn) RemoteDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingRemote != nil {
		return c.pendingRemote
	}
	return c.currentRemote
}

func (c *Conn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.pendingRemote == nil && c.currentRemote == nil {
		return ErrNoRemoteDescription
	}
	c.candidates = append(c.candidates, candidate)
	return nil
}

func (c *Conn) AddTrack(track webrtc.TrackLocal) (rtc.Sender, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	s := &Sender{track: track}
	c.senders = append(c.senders, s)
	fire := c.markNeededLocked()
	c.mu.Unlock()
	fire()
	return s, nil
}

func (c *Conn) RemoveTrack(sender rtc.Sender) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	idx := -1
	for i, s := range c.senders {
		if rtc.Sender(s) == sender {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return ErrUnknownSender
	}
	c.senders = append(c.senders[:idx], c.senders[idx+1:]...)
	fire := c.markNeededLocked()
	c.mu.Unlock()
	fire()
	return nil
}

func (c *Conn) CreateDataChannel(label, protocol string) (rtc.DataChannel, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	dc := NewDataChannel(label, protocol)
	c.channels = append(c.channels, dc)
	fire := func() {}
	if len(c.channels) == 1 {
		fire = c.markNeededLocked()
	}
	c.mu.Unlock()
	fire()
	return dc, nil
}

func (c *Conn) SetHandlers(h rtc.Handlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = webrtc.SignalingStateClosed
	c.iceState = webrtc.ICEConnectionStateClosed
	c.handlers = rtc.Handlers{}
	c.mu.Unlock()
	return nil
}

func (c *Conn) markNeededLocked() func() {
	c.needsNegotiation = true
	return c.negotiationDueLocked()
}

// negotiationDueLocked returns the callback to run after unlocking when a
// pending change can be negotiated now.
func (c *Conn) negotiationDueLocked() func() {
	if !c.needsNegotiation || c.state != webrtc.SignalingStateStable {
		return func() {}
	}
	c.negotiationNeededFired++
	h := c.handlers.OnNegotiationNeeded
	if h == nil {
		return func() {}
	}
	return h
}

// EmitNegotiationNeeded fires the negotiation-needed handler directly.
func (c *Conn) EmitNegotiationNeeded() {
	c.mu.Lock()
	h := c.handlers.OnNegotiationNeeded
	c.mu.Unlock()
	if h != nil {
		h()
	}
}

// EmitTrack delivers an inbound track.
func (c *Conn) EmitTrack(track media.RemoteTrack) {
	c.mu.Lock()
	h := c.handlers.OnTrack
	c.mu.Unlock()
	if h != nil {
		h(track)
	}
}

// EmitICECandidate delivers a locally gathered candidate.
func (c *Conn) EmitICECandidate(candidate webrtc.ICECandidateInit) {
	c.mu.Lock()
	h := c.handlers.OnICECandidate
	c.mu.Unlock()
	if h != nil {
		h(candidate)
	}
}

// SetICEState changes the ICE connection state and notifies the handler.
func (c *Conn) SetICEState(state webrtc.ICEConnectionState) {
	c.mu.Lock()
	c.iceState = state
	h := c.handlers.OnICEConnectionStateChange
	c.mu.Unlock()
	if h != nil {
		h(state)
	}
}

// EmitDataChannel delivers a channel opened by the remote side.
func (c *Conn) EmitDataChannel(dc rtc.DataChannel) {
	c.mu.Lock()
	h := c.handlers.OnDataChannel
	c.mu.Unlock()
	if h != nil {
		h(dc)
	}
}

// HasHandlers reports whether any handler is registered.
func (c *Conn) HasHandlers() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.handlers
	return h.OnNegotiationNeeded != nil || h.OnICECandidate != nil || h.OnTrack != nil ||
		h.OnICEConnectionStateChange != nil || h.OnDataChannel != nil
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Offers returns how many offers were created.
func (c *Conn) Offers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offers
}

func (c *Conn) Answers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answers
}

func (c *Conn) Restarts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restarts
}

// NegotiationNeededCount returns how often negotiation-needed became due.
func (c *Conn) NegotiationNeededCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiationNeededFired
}

// Candidates returns the remote candidates that were accepted.
func (c *Conn) Candidates() []webrtc.ICECandidateInit {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]webrtc.ICECandidateInit, len(c.candidates))
	copy(out, c.candidates)
	return out
}

// Tracks returns the local tracks currently attached.
func (c *Conn) Tracks() []webrtc.TrackLocal {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]webrtc.TrackLocal, 0, len(c.senders))
	for _, s := range c.senders {
		out = append(out, s.track)
	}
	return out
}

// Channels returns the data channels created locally.
func (c *Conn) Channels() []*DataChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*DataChannel, len(c.channels))
	copy(out, c.channels)
	return out
}

// Factory hands out fake connections and remembers them in creation order.
type Factory struct {
	mu    sync.Mutex
	conns []*Conn

	// Prefix names connections "<Prefix>#<n>".
	Prefix string
	// Err, when set, fails NewConn.
	Err error
}

func (f *Factory) NewConn() (rtc.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	c := NewConn(fmt.Sprintf("%s#%d", f.Prefix, len(f.conns)+1))
	f.conns = append(f.conns, c)
	return c, nil
}

// Conns returns every connection created so far.
func (f *Factory) Conns() []*Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Conn, len(f.conns))
	copy(out, f.conns)
	return out
}

// Track is a fake inbound track.
type Track struct {
	TrackID string
	Stream  string
	Codec   webrtc.RTPCodecType
}

func (t Track) ID() string                { return t.TrackID }
func (t Track) StreamID() string          { return t.Stream }
func (t Track) Kind() webrtc.RTPCodecType { return t.Codec }

var (
	_ rtc.Conn          = (*Conn)(nil)
	_ rtc.Factory       = (*Factory)(nil)
	_ media.RemoteTrack = Track{}
)
