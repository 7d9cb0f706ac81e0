package relay

// Room is the set of clients currently connected under one room id.
type Room struct {
	// ID is the room id clients pass when connecting.
	ID string

	// members maps client ids to clients; order keeps join order for init.
	members map[string]*Client
	order   []string
}

func newRoom(id string) *Room {
	return &Room{ID: id, members: make(map[string]*Client)}
}

func (r *Room) add(c *Client) {
	r.members[c.ID] = c
	r.order = append(r.order, c.ID)
}

func (r *Room) remove(c *Client) bool {
	if r.members[c.ID] != c {
		return false
	}
	delete(r.members, c.ID)
	for i, id := range r.order {
		if id == c.ID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// clients returns every member in join order.
func (r *Room) clients() []*Client {
	out := make([]*Client, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.members[id])
	}
	return out
}

// others returns every member except c, in join order.
func (r *Room) others(c *Client) []*Client {
	out := make([]*Client, 0, len(r.order))
	for _, id := range r.order {
		if id != c.ID {
			out = append(out, r.members[id])
		}
	}
	return out
}

func (r *Room) empty() bool {
	return len(r.members) == 0
}
