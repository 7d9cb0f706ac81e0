// Package relay is the room relay the call engine signals through. It admits
// websocket clients into rooms, announces membership changes, forwards
// negotiation messages to their target peer and fans room-wide notices out to
// everyone else.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const defaultClientType = "web"

// Options configures a Server.
type Options struct {
	// MaxMessagesPerSecond limits each client's inbound rate. Zero disables
	// the limit.
	MaxMessagesPerSecond float64
	Logger               *slog.Logger
}

// Server serves the relay over HTTP.
type Server struct {
	hub       *Hub
	upgrader  websocket.Upgrader
	perSecond float64
	log       *slog.Logger
}

// NewServer creates a server and its hub. The hub does nothing until Run.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub: NewHub(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			// Browser clients are served from other origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		perSecond: opts.MaxMessagesPerSecond,
		log:       logger.With("component", "relay"),
	}
}

// Hub returns the server's hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the relay's routes: /ws and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.health)
	mux.HandleFunc("/ws", s.serveWs)
	return mux
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Relay is healthy."))
}

// serveWs upgrades the request and admits the client to the room named by
// the roomId query parameter.
func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roomID := q.Get("roomId")
	if roomID == "" {
		http.Error(w, "roomId required", http.StatusBadRequest)
		return
	}
	username := q.Get("username")
	if username == "" {
		username = randomName()
	}
	clientType := q.Get("clientType")
	if clientType == "" {
		clientType = defaultClientType
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("failed to upgrade connection", "error", err)
		return
	}

	client := newClient(s.hub, conn, roomID, username, clientType, s.perSecond)
	if !s.hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// ListenAndServe runs the hub and serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("relay listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stopHub()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
