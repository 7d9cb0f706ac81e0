package media

// Stream is a logical container of inbound tracks, such as a peer's camera
// stream or its screen stream. It is not safe for concurrent use; the call
// event loop owns it.
type Stream struct {
	tracks []*Track
}

// NewStream returns an empty stream.
func NewStream() *Stream {
	return &Stream{}
}

// Tracks returns a copy of the current tracks.
func (s *Stream) Tracks() []*Track {
	out := make([]*Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Len returns the number of tracks in the stream.
func (s *Stream) Len() int {
	return len(s.tracks)
}

// Has reports whether the stream holds a track of kind k.
func (s *Stream) Has(k Kind) bool {
	for _, t := range s.tracks {
		if t.kind == k {
			return true
		}
	}
	return false
}

// Replace stops and removes every track of t's kind, then adds t.
// Replacing a track with itself is a no-op.
func (s *Stream) Replace(t *Track) {
	for _, existing := range s.tracks {
		if existing == t {
			return
		}
	}
	s.RemoveKind(t.kind)
	s.tracks = append(s.tracks, t)
}

// RemoveKind stops and removes every track of kind k and returns how many
// were removed.
func (s *Stream) RemoveKind(k Kind) int {
	kept := s.tracks[:0]
	removed := 0
	for _, t := range s.tracks {
		if t.kind == k {
			t.Stop()
			removed++
			continue
		}
		kept = append(kept, t)
	}
	clear(s.tracks[len(kept):])
	s.tracks = kept
	return removed
}

// Remove stops and removes the track with the given id, if present.
func (s *Stream) Remove(id string) bool {
	for i, t := range s.tracks {
		if t.ID() == id {
			t.Stop()
			s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)
			return true
		}
	}
	return false
}

// Clear stops and removes all tracks.
func (s *Stream) Clear() {
	for _, t := range s.tracks {
		t.Stop()
	}
	s.tracks = nil
}
