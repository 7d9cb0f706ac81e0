package call

import (
	"log/slog"

	"github.com/pion/webrtc/v4"
	"github.com/serozhenka/shary/internal/media"
	"github.com/serozhenka/shary/internal/rtc"
	"github.com/serozhenka/shary/internal/signaling"
)

// Peer is the per-participant connection record. All fields are owned by
// the session event loop.
type Peer struct {
	id         string
	username   string
	clientType string
	polite     bool
	conn       rtc.Conn
	log        *slog.Logger

	// makingOffer guards the offer critical section; a second trigger while
	// it is set collapses into the negotiation already running.
	makingOffer    bool
	ignoreOffer    bool
	restartPending bool
	closed         bool

	// Offer turns. The polite side requests and then holds a turn; the
	// impolite side remembers a request it could not grant yet and stops
	// offering while a granted turn is outstanding.
	turnRequested bool
	turnHeld      bool
	turnWanted    bool
	turnGranted   bool

	camera        *media.Stream
	screen        *media.Stream
	audioMuted    bool
	videoMuted    bool
	screenSharing bool

	demux             *demux
	chat              *chatChannel
	senders           map[string]rtc.Sender
	pendingCandidates []webrtc.ICECandidateInit
	iceState          webrtc.ICEConnectionState
}

func newPeer(info signaling.ClientInfo, polite bool, conn rtc.Conn, logger *slog.Logger) *Peer {
	return &Peer{
		id:         info.ID,
		username:   info.Username,
		clientType: info.ClientType,
		polite:     polite,
		conn:       conn,
		log:        logger.With("peer", info.ID, "username", info.Username, "polite", polite),
		camera:     media.NewStream(),
		screen:     media.NewStream(),
		demux:      newDemux(),
		chat:       &chatChannel{},
		senders:    make(map[string]rtc.Sender),
		iceState:   webrtc.ICEConnectionStateNew,
	}
}

func (p *Peer) ID() string       { return p.id }
func (p *Peer) Username() string { return p.username }

// IsPoliteTowards reports whether the local side yields to p when both offer
// at once. For any pair the two sides hold opposite values.
func IsPoliteTowards(p *Peer) bool {
	return p.polite
}

func (p *Peer) snapshot() PeerState {
	return PeerState{
		ID:            p.id,
		Username:      p.username,
		ClientType:    p.clientType,
		Polite:        p.polite,
		AudioMuted:    p.audioMuted,
		VideoMuted:    p.videoMuted,
		ScreenSharing: p.screenSharing,
		Camera:        p.camera.Tracks(),
		Screen:        p.screen.Tracks(),
		Chat:          p.chat.state,
		Signaling:     p.conn.SignalingState(),
		ICE:           p.iceState,
	}
}

// destroy releases everything the peer owns. It runs at most once and never
// touches local tracks, which are shared across peers.
func (p *Peer) destroy() bool {
	if p.closed {
		return false
	}
	p.closed = true
	p.conn.SetHandlers(rtc.Handlers{})
	p.chat.close()
	if err := p.conn.Close(); err != nil {
		p.log.Debug("closing connection", "error", err)
	}
	p.camera.Clear()
	p.screen.Clear()
	p.demux.reset()
	p.pendingCandidates = nil
	clear(p.senders)
	return true
}
