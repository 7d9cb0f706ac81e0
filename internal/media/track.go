package media

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// RemoteTrack is the receive side of one transport-level track.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
}

// Track is an inbound track owned by exactly one logical stream of one peer.
// Stop and Done are safe for concurrent use.
type Track struct {
	remote RemoteTrack
	kind   Kind

	once sync.Once
	done chan struct{}
}

// NewTrack wraps a remote track.
func NewTrack(remote RemoteTrack) *Track {
	return &Track{
		remote: remote,
		kind:   KindOf(remote.Kind()),
		done:   make(chan struct{}),
	}
}

func (t *Track) ID() string          { return t.remote.ID() }
func (t *Track) StreamID() string    { return t.remote.StreamID() }
func (t *Track) Kind() Kind          { return t.kind }
func (t *Track) Remote() RemoteTrack { return t.remote }

// Stop marks the track as ended. Calling it more than once is a no-op.
func (t *Track) Stop() {
	t.once.Do(func() { close(t.done) })
}

// Done is closed once the track has been stopped.
func (t *Track) Done() <-chan struct{} {
	return t.done
}

// Stopped reports whether Stop has been called.
func (t *Track) Stopped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
