package call

import (
	"context"
	"fmt"

	"github.com/serozhenka/shary/internal/media"
	"github.com/serozhenka/shary/internal/signaling"
)

// ToggleVideo stops the camera when it is on and captures a fresh camera
// track when it is off. It returns the resulting state, which on error is
// the state before the call unless turning off found no track to stop.
func (s *Session) ToggleVideo(ctx context.Context) (bool, error) {
	return s.toggle(ctx, media.KindVideo)
}

// ToggleAudio is ToggleVideo for the microphone.
func (s *Session) ToggleAudio(ctx context.Context) (bool, error) {
	return s.toggle(ctx, media.KindAudio)
}

func (s *Session) toggle(ctx context.Context, kind media.Kind) (bool, error) {
	var on bool
	if err := s.call(ctx, func() error {
		on = s.enabled(kind)
		return nil
	}); err != nil {
		return false, err
	}

	if on {
		state := make(chan bool, 1)
		err := s.call(ctx, func() error {
			err := s.muteLocal(kind)
			state <- s.enabled(kind)
			return err
		})
		select {
		case on = <-state:
		default:
		}
		return on, err
	}

	if s.capturer == nil {
		return false, newError(fmt.Sprintf("enable %s", kind), ErrNoCapturer)
	}
	// Capture runs off the loop; other peers keep being served meanwhile.
	track, err := s.capturer.Capture(ctx, kind, s.camera.ID())
	if err != nil {
		return false, wrapError(fmt.Sprintf("enable %s", kind), err, "capture failed")
	}
	if err := s.call(ctx, func() error { return s.unmuteLocal(track) }); err != nil {
		track.Stop()
		return false, err
	}
	return true, nil
}

func (s *Session) enabled(kind media.Kind) bool {
	if kind == media.KindAudio {
		return s.audioEnabled
	}
	return s.videoEnabled
}

func (s *Session) setEnabled(kind media.Kind, on bool) {
	if kind == media.KindAudio {
		s.audioEnabled = on
	} else {
		s.videoEnabled = on
	}
}

// muteLocal stops the local track of kind, removes it from every connection
// and tells the room. Without a track the kind is still marked disabled.
func (s *Session) muteLocal(kind media.Kind) error {
	track := s.camera.Remove(kind)
	s.setEnabled(kind, false)
	if track == nil {
		s.publishLocal()
		return newError(fmt.Sprintf("mute %s", kind), ErrNoTrack)
	}
	track.Stop()
	for _, p := range s.livePeers() {
		s.detachTrack(p, track)
	}
	s.send(signaling.TrackMuted(kind))
	s.publishLocal()
	return nil
}

// unmuteLocal adds a freshly captured track to every connection; each
// connection renegotiates through its negotiation-needed callback.
func (s *Session) unmuteLocal(track *media.LocalTrack) error {
	kind := track.MediaKind()
	if s.camera.Track(kind) != nil {
		track.Stop()
		return nil
	}
	s.camera.Add(track)
	s.setEnabled(kind, true)

	s.send(signaling.StreamMetadata(s.camera.ID(), media.RoleMedia))
	s.send(signaling.TrackUnmuted(kind))
	for _, p := range s.livePeers() {
		s.attachTrack(p, track)
	}
	s.publishLocal()
	return nil
}

// ToggleScreenShare starts or stops sharing. Starting is refused with
// ErrScreenShareBusy while another participant is sharing.
func (s *Session) ToggleScreenShare(ctx context.Context) (bool, error) {
	var sharing bool
	var owner string
	if err := s.call(ctx, func() error {
		sharing = s.screen != nil
		owner = s.screenOwner()
		return nil
	}); err != nil {
		return false, err
	}

	if sharing {
		if err := s.call(ctx, func() error { return s.stopScreenShare() }); err != nil {
			return true, err
		}
		return false, nil
	}

	if owner != "" {
		return false, wrapError("start screen share", ErrScreenShareBusy, owner)
	}
	if s.capturer == nil {
		return false, newError("start screen share", ErrNoCapturer)
	}

	stream := media.NewLocalStream("")
	tracks, err := s.capturer.CaptureScreen(ctx, stream.ID())
	if err != nil {
		return false, wrapError("start screen share", err, "capture failed")
	}
	for _, t := range tracks {
		stream.Add(t)
	}

	if err := s.call(ctx, func() error {
		if owner := s.screenOwner(); owner != "" {
			return wrapError("start screen share", ErrScreenShareBusy, owner)
		}
		s.startScreenShare(stream)
		return nil
	}); err != nil {
		stream.Stop()
		return false, err
	}
	return true, nil
}

func (s *Session) startScreenShare(stream *media.LocalStream) {
	if s.screen != nil {
		s.screen.Stop()
	}
	s.screen = stream
	s.send(signaling.StreamMetadata(stream.ID(), media.RoleScreen))
	for _, p := range s.livePeers() {
		for _, t := range stream.Tracks() {
			s.attachTrack(p, t)
		}
	}
	s.send(signaling.ScreenShareStarted())
	s.publishLocal()
}

func (s *Session) stopScreenShare() error {
	if s.screen == nil {
		return nil
	}
	for _, p := range s.livePeers() {
		for _, t := range s.screen.Tracks() {
			s.detachTrack(p, t)
		}
	}
	s.screen.Stop()
	s.screen = nil
	s.send(signaling.ScreenShareStopped())
	s.publishLocal()
	return nil
}
