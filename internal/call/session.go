// Package call runs one participant's side of a mesh call: it owns a
// connection per remote peer, negotiates them, sorts incoming tracks into
// camera and screen streams, and carries chat over data channels.
//
// All call state lives on a single event loop goroutine (Session.Run).
// Connection callbacks and public methods hand work to that loop, so no two
// handlers ever run at once and none run against a destroyed peer.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/serozhenka/shary/internal/media"
	"github.com/serozhenka/shary/internal/rtc"
	"github.com/serozhenka/shary/internal/signaling"
)

const eventQueueSize = 256

// SessionConfig wires a session to its collaborators.
type SessionConfig struct {
	Transport  signaling.Transport
	Factory    rtc.Factory
	Capturer   media.Capturer
	Username   string
	ClientType string
	Logger     *slog.Logger

	// StartVideo and StartAudio capture camera and microphone when Run starts.
	StartVideo bool
	StartAudio bool
}

// Session is one participant's membership in a room.
type Session struct {
	transport  signaling.Transport
	factory    rtc.Factory
	capturer   media.Capturer
	username   string
	clientType string
	startVideo bool
	startAudio bool
	log        *slog.Logger

	queue     taskQueue
	events    chan Event
	leave     chan struct{}
	leaveOnce sync.Once
	done      chan struct{}

	// Owned by the event loop.
	peers        map[string]*Peer
	order        []string
	camera       *media.LocalStream
	screen       *media.LocalStream
	videoEnabled bool
	audioEnabled bool
	ended        bool
	stats        Stats

	// Snapshots for readers outside the loop.
	mu        sync.RWMutex
	snapPeers []PeerState
	snapLocal LocalState
	snapStats Stats
}

// NewSession creates a session. Nothing happens until Run is called.
func NewSession(cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		transport:  cfg.Transport,
		factory:    cfg.Factory,
		capturer:   cfg.Capturer,
		username:   cfg.Username,
		clientType: cfg.ClientType,
		startVideo: cfg.StartVideo,
		startAudio: cfg.StartAudio,
		log:        logger.With("component", "call"),
		queue:      taskQueue{signal: make(chan struct{}, 1)},
		events:     make(chan Event, eventQueueSize),
		leave:      make(chan struct{}),
		done:       make(chan struct{}),
		peers:      make(map[string]*Peer),
		camera:     media.NewLocalStream(""),
	}
	s.snapLocal = s.localState()
	return s
}

// Run captures the initial local media and then processes signaling and
// connection events until Leave is called, ctx is cancelled or the signaling
// transport is lost. Transport loss returns an error wrapping
// ErrTransportLost. The Events channel is closed when Run returns.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer close(s.events)

	s.stats.Started = time.Now()
	s.startLocalMedia(ctx)
	s.publishLocal()

	for {
		select {
		case <-ctx.Done():
			s.teardown(nil)
			return ctx.Err()

		case <-s.leave:
			s.teardown(nil)
			return nil

		case <-s.transport.Done():
			return s.transportLost()

		case msg, ok := <-s.transport.Incoming():
			if !ok {
				return s.transportLost()
			}
			s.dispatch(msg)

		case <-s.queue.signal:
			for _, task := range s.queue.drain() {
				task()
			}
		}
	}
}

func (s *Session) transportLost() error {
	err := fmt.Errorf("%w: %v", ErrTransportLost, s.transport.Err())
	s.log.Error("signaling transport lost", "error", err)
	s.teardown(err)
	return err
}

// Leave ends the session. It is safe to call more than once and from any
// goroutine.
func (s *Session) Leave() {
	s.leaveOnce.Do(func() { close(s.leave) })
}

// Events delivers peer, chat and lifecycle notifications. Slow consumers may
// miss intermediate updates; Peers always reflects the latest state.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Peers returns a snapshot of every remote participant in join order.
func (s *Session) Peers() []PeerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PeerState, len(s.snapPeers))
	for i, p := range s.snapPeers {
		p.Camera = slices.Clone(p.Camera)
		p.Screen = slices.Clone(p.Screen)
		out[i] = p
	}
	return out
}

// Local returns what the local participant is currently sending.
func (s *Session) Local() LocalState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapLocal
}

// Stats returns call statistics so far.
func (s *Session) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.snapStats
	st.PeersSeen = slices.Clone(st.PeersSeen)
	return st
}

func (s *Session) startLocalMedia(ctx context.Context) {
	if s.capturer == nil {
		return
	}
	for kind, want := range map[media.Kind]bool{media.KindVideo: s.startVideo, media.KindAudio: s.startAudio} {
		if !want {
			continue
		}
		track, err := s.capturer.Capture(ctx, kind, s.camera.ID())
		if err != nil {
			s.log.Warn("starting without local track", "kind", kind, "error", err)
			continue
		}
		s.camera.Add(track)
		s.setEnabled(kind, true)
	}
}

func (s *Session) dispatch(msg *signaling.Message) {
	v, err := msg.Decode()
	if err != nil {
		if errors.Is(err, signaling.ErrUnknownType) {
			s.log.Debug("ignoring unknown message type", "type", msg.Type)
			return
		}
		s.log.Warn("dropping invalid message", "type", msg.Type, "error", err)
		return
	}

	switch p := v.(type) {
	case signaling.InitPayload:
		s.handleInit(p)
	case signaling.ClientJoinedPayload:
		s.handleClientJoined(p)
	case signaling.ClientLeftPayload:
		s.handleClientLeft(p)
	case signaling.DescriptionPayload:
		if msg.Type == signaling.MessageTypeOffer {
			s.handleOffer(p)
		} else {
			s.handleAnswer(p)
		}
	case signaling.CandidatePayload:
		s.handleRemoteCandidate(p)
	case signaling.OfferTurnPayload:
		if msg.Type == signaling.MessageTypeOfferRequest {
			s.handleOfferRequest(p)
		} else {
			s.handleOfferGrant(p)
		}
	case signaling.StreamMetadataPayload:
		s.handleStreamMetadata(p)
	case signaling.TrackStatePayload:
		if msg.Type == signaling.MessageTypeTrackMuted {
			s.handleRemoteMuted(p)
		} else {
			s.handleRemoteUnmuted(p)
		}
	case signaling.ScreenSharePayload:
		if msg.Type == signaling.MessageTypeScreenShareStarted {
			s.handleRemoteScreenShare(p.ClientID, true)
		} else {
			s.handleRemoteScreenShare(p.ClientID, false)
		}
	case signaling.ErrorPayload:
		s.log.Warn("relay rejected a message", "error", p.Error)
	}
}

// lookup returns the live peer for id, logging and returning nil for ids not
// in the roster.
func (s *Session) lookup(id string, msgType signaling.MessageType) *Peer {
	p, ok := s.peers[id]
	if !ok {
		s.log.Warn("dropping message for unknown peer", "type", msgType, "peer", id, "error", ErrUnknownPeer)
		return nil
	}
	return p
}

func (s *Session) send(msg *signaling.Message) {
	if err := s.transport.Send(msg); err != nil {
		s.log.Warn("signaling send failed", "type", msg.Type, "error", err)
	}
}

// post schedules fn on the event loop.
func (s *Session) post(fn func()) {
	s.queue.push(fn)
}

// onPeer schedules fn on the loop unless p has been destroyed by then.
func (s *Session) onPeer(p *Peer, fn func()) {
	s.post(func() {
		if p.closed {
			return
		}
		fn()
	})
}

// call runs fn on the event loop and waits for its result.
func (s *Session) call(ctx context.Context, fn func() error) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	result := make(chan error, 1)
	s.post(func() {
		if s.ended {
			result <- ErrSessionClosed
			return
		}
		result <- fn()
	})

	select {
	case err := <-result:
		return err
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Debug("event queue full, dropping event", "type", ev.Type)
	}
}

func (s *Session) localState() LocalState {
	return LocalState{
		Username:      s.username,
		VideoEnabled:  s.videoEnabled,
		AudioEnabled:  s.audioEnabled,
		ScreenSharing: s.screen != nil,
	}
}

// refresh rebuilds the snapshots read by Peers, Local and Stats.
func (s *Session) refresh() {
	peers := make([]PeerState, 0, len(s.order))
	for _, id := range s.order {
		peers = append(peers, s.peers[id].snapshot())
	}
	st := s.stats
	st.PeersSeen = slices.Clone(st.PeersSeen)

	s.mu.Lock()
	s.snapPeers = peers
	s.snapLocal = s.localState()
	s.snapStats = st
	s.mu.Unlock()
}

func (s *Session) publishPeer(p *Peer) {
	s.refresh()
	s.emit(Event{Type: EventPeerUpdated, Peer: p.snapshot()})
}

func (s *Session) publishLocal() {
	s.refresh()
	s.emit(Event{Type: EventLocalUpdated, Local: s.localState()})
}

// teardown closes every peer, stops local capture and releases the
// transport. It runs once, on the loop.
func (s *Session) teardown(cause error) {
	if s.ended {
		return
	}
	s.ended = true

	for _, id := range slices.Clone(s.order) {
		s.removePeer(s.peers[id])
	}
	s.camera.Stop()
	if s.screen != nil {
		s.screen.Stop()
		s.screen = nil
	}
	s.videoEnabled, s.audioEnabled = false, false
	if err := s.transport.Close(); err != nil {
		s.log.Debug("closing transport", "error", err)
	}

	s.stats.Ended = time.Now()
	s.refresh()
	s.emit(Event{Type: EventEnded, Err: cause})
}

// taskQueue is an unbounded FIFO of loop tasks. push never blocks, so
// callbacks fired from inside the loop cannot deadlock it.
type taskQueue struct {
	mu     sync.Mutex
	items  []func()
	signal chan struct{}
}

func (q *taskQueue) push(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *taskQueue) drain() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
