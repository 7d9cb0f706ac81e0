package media

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// LocalTrack is an outbound sample track fed by a capture pump.
// It satisfies webrtc.TrackLocal through the embedded sample track.
type LocalTrack struct {
	*webrtc.TrackLocalStaticSample
	kind Kind

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newLocalTrack(mimeType string, kind Kind, streamID string) (*LocalTrack, error) {
	id := fmt.Sprintf("%s-%s", kind, uuid.NewString())
	sample, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mimeType}, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", kind, err)
	}
	return &LocalTrack{TrackLocalStaticSample: sample, kind: kind}, nil
}

// MediaKind returns the wire kind of the track.
func (t *LocalTrack) MediaKind() Kind {
	return t.kind
}

// start runs pump in its own goroutine until Stop is called or pump returns.
func (t *LocalTrack) start(pump func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	t.mu.Lock()
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	go func() {
		defer close(done)
		if err := pump(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("capture pump stopped", "track", t.ID(), "error", err)
		}
	}()
}

// Stop ends the capture pump and waits for it to exit. It is idempotent.
func (t *LocalTrack) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel = nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// LocalStream groups the local tracks sent under one stream id. The call
// event loop owns it; it is shared by reference across every peer it is
// attached to.
type LocalStream struct {
	id     string
	tracks []*LocalTrack
}

// NewLocalStream returns an empty stream. An empty id gets a fresh uuid.
func NewLocalStream(id string) *LocalStream {
	if id == "" {
		id = uuid.NewString()
	}
	return &LocalStream{id: id}
}

func (s *LocalStream) ID() string { return s.id }

// Tracks returns a copy of the current tracks.
func (s *LocalStream) Tracks() []*LocalTrack {
	out := make([]*LocalTrack, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Track returns the track of kind k, or nil.
func (s *LocalStream) Track(k Kind) *LocalTrack {
	for _, t := range s.tracks {
		if t.kind == k {
			return t
		}
	}
	return nil
}

// Add appends t to the stream.
func (s *LocalStream) Add(t *LocalTrack) {
	s.tracks = append(s.tracks, t)
}

// Remove detaches the track of kind k and returns it without stopping it.
func (s *LocalStream) Remove(k Kind) *LocalTrack {
	for i, t := range s.tracks {
		if t.kind == k {
			s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)
			return t
		}
	}
	return nil
}

// Stop stops every track and empties the stream.
func (s *LocalStream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
	s.tracks = nil
}
