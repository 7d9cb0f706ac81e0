package relay

import (
	"context"
	"errors"
	"log/slog"

	"github.com/serozhenka/shary/internal/signaling"
)

// Hub is the central brain of the relay.
// It owns every room and client; all of that state is touched only by Run.
type Hub struct {
	rooms map[string]*Room

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	done       chan struct{}

	log *slog.Logger
}

// NewHub creates a new Hub instance.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:      make(map[string]*Room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		done:       make(chan struct{}),
		log:        logger.With("component", "hub"),
	}
}

// Run starts the hub's main processing loop. It returns when ctx is
// cancelled, after disconnecting every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, room := range h.rooms {
				for _, c := range room.clients() {
					h.leave(c, false)
				}
			}
			return

		case c := <-h.register:
			h.join(c)

		case c := <-h.unregister:
			h.leave(c, true)

		case in := <-h.inbound:
			h.relay(in.client, in.msg)
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Register hands a freshly connected client to the hub. It reports false
// when the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) join(c *Client) {
	room, ok := h.rooms[c.RoomID]
	if !ok {
		room = newRoom(c.RoomID)
		h.rooms[room.ID] = room
		h.log.Info("room created", "room", room.ID)
	}

	others := room.others(c)
	clients := make([]signaling.ClientInfo, 0, len(others))
	for _, o := range others {
		clients = append(clients, o.info())
	}
	room.add(c)
	c.log.Info("client joined", "members", len(room.members))

	welcome, err := signaling.Encode(signaling.MessageTypeInit, signaling.InitPayload{Clients: clients})
	if err != nil {
		c.log.Error("encode init failed", "error", err)
		return
	}
	h.deliver(c, welcome)

	info := c.info()
	joined, err := signaling.Encode(signaling.MessageTypeClientJoined, signaling.ClientJoinedPayload{
		ClientID:   info.ID,
		Username:   info.Username,
		ClientType: info.ClientType,
	})
	if err != nil {
		c.log.Error("encode client_joined failed", "error", err)
		return
	}
	h.broadcast(room, c, joined)
}

// leave drops c from its room, closes its send queue and, when notify is set,
// tells the remaining members.
func (h *Hub) leave(c *Client, notify bool) {
	room, ok := h.rooms[c.RoomID]
	if !ok || !room.remove(c) {
		return
	}
	c.left = true
	close(c.send)
	c.log.Info("client left", "members", len(room.members))

	if room.empty() {
		delete(h.rooms, room.ID)
		h.log.Info("room deleted", "room", room.ID)
		return
	}
	if !notify {
		return
	}
	left, err := signaling.Encode(signaling.MessageTypeClientLeft, signaling.ClientLeftPayload{ClientID: c.ID})
	if err != nil {
		c.log.Error("encode client_left failed", "error", err)
		return
	}
	h.broadcast(room, c, left)
}

func (h *Hub) relay(from *Client, msg *signaling.Message) {
	room, ok := h.rooms[from.RoomID]
	if !ok || room.members[from.ID] != from {
		return
	}

	target, out, err := route(msg, from.ID)
	switch {
	case errors.Is(err, signaling.ErrUnknownType):
		from.log.Debug("dropping unknown message type", "type", msg.Type)
		return
	case err != nil:
		from.log.Warn("rejecting message", "type", msg.Type, "error", err)
		h.deliver(from, errorMessage(err))
		return
	}

	if target == "" {
		h.broadcast(room, from, out)
		return
	}
	to, ok := room.members[target]
	if !ok {
		from.log.Debug("dropping message for unknown peer", "type", msg.Type, "target", target)
		return
	}
	h.deliver(to, out)
}

func (h *Hub) broadcast(room *Room, from *Client, msg *signaling.Message) {
	for _, c := range room.others(from) {
		h.deliver(c, msg)
	}
}

// deliver queues msg for c. A client whose queue is full is disconnected
// rather than stalling the hub.
func (h *Hub) deliver(c *Client, msg *signaling.Message) {
	if c.left {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.log.Warn("send queue full, disconnecting client")
		h.leave(c, true)
	}
}
