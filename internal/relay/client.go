package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
	"github.com/serozhenka/shary/internal/signaling"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP with many candidates fits.
	maxMessageSize = 64 * 1024

	sendQueueSize = 256
)

// Client is a wrapper for a single websocket connection (a room member).
type Client struct {
	ID         string
	Username   string
	ClientType string
	RoomID     string

	hub  *Hub
	conn *websocket.Conn
	log  *slog.Logger

	// send is the outbound queue drained by WritePump. Only the hub writes to
	// it and closes it.
	send chan *signaling.Message
	left bool

	limiter *rate.Limiter
}

func newClient(hub *Hub, conn *websocket.Conn, roomID, username, clientType string, perSecond float64) *Client {
	id := ksuid.New().String()
	c := &Client{
		ID:         id,
		Username:   username,
		ClientType: clientType,
		RoomID:     roomID,
		hub:        hub,
		conn:       conn,
		log:        hub.log.With("room", roomID, "client", id, "username", username),
		send:       make(chan *signaling.Message, sendQueueSize),
	}
	if perSecond > 0 {
		burst := int(perSecond * 2)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return c
}

func (c *Client) info() signaling.ClientInfo {
	return signaling.ClientInfo{ID: c.ID, Username: c.Username, ClientType: c.ClientType}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine. A client over its rate is slowed down, never
// dropped from: reading pauses until the limiter allows the next message.
func (c *Client) ReadPump() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-c.hub.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	defer func() {
		cancel()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("read failed", "error", err)
			}
			return
		}

		var msg signaling.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug("dropping malformed frame", "error", err)
			continue
		}
		if c.limiter != nil {
			if !c.limiter.Allow() {
				c.log.Debug("rate limit exceeded, throttling", "type", msg.Type)
				if err := c.limiter.Wait(ctx); err != nil {
					return
				}
			}
		}

		select {
		case c.hub.inbound <- inbound{msg: &msg, client: c}:
		case <-c.hub.done:
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.log.Debug("write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
