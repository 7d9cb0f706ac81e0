package call

import "github.com/serozhenka/shary/internal/media"

// demux maps a peer's transport stream ids to logical roles. Tracks whose
// stream has no role yet are parked until metadata for it arrives.
type demux struct {
	roles   map[string]media.Role
	pending map[string][]*media.Track
}

func newDemux() *demux {
	return &demux{
		roles:   make(map[string]media.Role),
		pending: make(map[string][]*media.Track),
	}
}

// register records the role of streamID and hands back any tracks that were
// waiting for it. Registering the same pair again changes nothing.
func (d *demux) register(streamID string, role media.Role) (released []*media.Track, changed bool) {
	if current, ok := d.roles[streamID]; ok && current == role {
		return nil, false
	}
	d.roles[streamID] = role
	released = d.pending[streamID]
	delete(d.pending, streamID)
	return released, true
}

// resolve returns the role of t's stream. When it is unknown, t is parked.
func (d *demux) resolve(t *media.Track) (media.Role, bool) {
	role, ok := d.roles[t.StreamID()]
	if !ok {
		d.pending[t.StreamID()] = append(d.pending[t.StreamID()], t)
	}
	return role, ok
}

func (d *demux) role(streamID string) (media.Role, bool) {
	role, ok := d.roles[streamID]
	return role, ok
}

func (d *demux) pendingCount() int {
	n := 0
	for _, tracks := range d.pending {
		n += len(tracks)
	}
	return n
}

// reset stops parked tracks and forgets all roles.
func (d *demux) reset() {
	for _, tracks := range d.pending {
		for _, t := range tracks {
			t.Stop()
		}
	}
	clear(d.pending)
	clear(d.roles)
}
