package call

import (
	"github.com/pion/webrtc/v4"
	"github.com/serozhenka/shary/internal/signaling"
)

// negotiate sends a fresh offer to p. A trigger that arrives while an offer
// is being made or awaiting its answer collapses into that negotiation; an
// ICE restart requested meanwhile is remembered and run once stable.
//
// pion cannot roll back a local offer, so the polite side never offers into
// a possible collision: it stays quiet until the first remote offer has been
// applied, and towards another CLI client it asks for an offer turn first.
func (s *Session) negotiate(p *Peer, iceRestart bool) {
	if p.closed {
		return
	}
	if p.makingOffer {
		p.log.Debug("negotiation already in flight")
		return
	}
	if state := p.conn.SignalingState(); state != webrtc.SignalingStateStable {
		if iceRestart {
			p.restartPending = true
		}
		p.log.Debug("deferring negotiation until stable", "state", state)
		return
	}
	if !s.mayOffer(p) {
		if iceRestart {
			p.restartPending = true
		}
		return
	}

	p.makingOffer = true
	defer func() { p.makingOffer = false }()

	offer, err := p.conn.CreateOffer(iceRestart)
	if err != nil {
		p.log.Error("create offer failed", "error", err)
		return
	}
	if err := p.conn.SetLocalDescription(offer); err != nil {
		p.log.Error("set local offer failed", "error", err)
		return
	}
	if iceRestart {
		p.restartPending = false
	}

	local := p.conn.LocalDescription()
	if local == nil {
		local = &offer
	}
	s.send(signaling.Offer(p.id, *local))
	p.log.Debug("sent offer", "iceRestart", iceRestart)
}

// mayOffer reports whether p can offer right now, asking for a turn when the
// polite side needs one.
func (s *Session) mayOffer(p *Peer) bool {
	if !p.polite {
		if p.turnGranted {
			p.log.Debug("peer holds the offer turn, deferring")
			return false
		}
		return true
	}
	if p.conn.RemoteDescription() == nil {
		p.log.Debug("waiting for the first remote offer")
		return false
	}
	if p.clientType != clientTypeCLI || p.turnHeld {
		return true
	}
	if !p.turnRequested {
		p.turnRequested = true
		s.send(signaling.OfferRequest(p.id))
		p.log.Debug("requested offer turn")
	}
	return false
}

// handleOfferRequest grants the remote polite side an offer turn once we
// are stable and not offering ourselves.
func (s *Session) handleOfferRequest(msg signaling.OfferTurnPayload) {
	p := s.lookup(msg.ClientID, signaling.MessageTypeOfferRequest)
	if p == nil {
		return
	}
	if p.polite {
		p.log.Warn("offer turn requested by the impolite side", "messageId", msg.MessageID)
		return
	}
	p.turnWanted = true
	s.grantTurn(p)
}

func (s *Session) grantTurn(p *Peer) {
	if !p.turnWanted || p.turnGranted || p.makingOffer || p.conn.SignalingState() != webrtc.SignalingStateStable {
		return
	}
	p.turnWanted = false
	p.turnGranted = true
	s.send(signaling.OfferGrant(p.id))
	p.log.Debug("granted offer turn")
}

func (s *Session) handleOfferGrant(msg signaling.OfferTurnPayload) {
	p := s.lookup(msg.ClientID, signaling.MessageTypeOfferGrant)
	if p == nil {
		return
	}
	if !p.polite {
		p.log.Warn("offer turn granted by the polite side", "messageId", msg.MessageID)
		return
	}
	p.turnRequested = false
	p.turnHeld = true
	s.negotiate(p, p.restartPending)
}

// handleOffer applies the perfect negotiation rules. On a collision the
// impolite side drops the remote offer. The polite side accepts any offer
// that arrives while it is stable.
func (s *Session) handleOffer(msg signaling.DescriptionPayload) {
	p := s.lookup(msg.ClientID, signaling.MessageTypeOffer)
	if p == nil {
		return
	}
	log := p.log.With("messageId", msg.MessageID)

	state := p.conn.SignalingState()
	collision := p.makingOffer || state != webrtc.SignalingStateStable
	p.ignoreOffer = collision && !p.polite
	if p.ignoreOffer {
		log.Debug("ignoring colliding offer", "state", state)
		return
	}
	if collision {
		// Our own offer is still unanswered and cannot be rolled back.
		log.Warn("dropping colliding offer", "state", state)
		return
	}

	if err := p.conn.SetRemoteDescription(msg.Value.Pion()); err != nil {
		log.Error("set remote offer failed", "error", err)
		return
	}
	s.flushCandidates(p)

	answer, err := p.conn.CreateAnswer()
	if err != nil {
		log.Error("create answer failed", "error", err)
		return
	}
	if err := p.conn.SetLocalDescription(answer); err != nil {
		log.Error("set local answer failed", "error", err)
		return
	}

	local := p.conn.LocalDescription()
	if local == nil {
		local = &answer
	}
	s.send(signaling.Answer(p.id, *local))
	log.Debug("sent answer")

	p.turnGranted = false
	s.afterStable(p)
	s.publishPeer(p)
}

func (s *Session) handleAnswer(msg signaling.DescriptionPayload) {
	p := s.lookup(msg.ClientID, signaling.MessageTypeAnswer)
	if p == nil {
		return
	}
	if err := p.conn.SetRemoteDescription(msg.Value.Pion()); err != nil {
		p.log.Error("set remote answer failed", "messageId", msg.MessageID, "error", err)
		return
	}
	p.turnHeld = false
	s.flushCandidates(p)
	s.afterStable(p)
	s.publishPeer(p)
}

// afterStable runs an ICE restart that was requested mid-negotiation, then
// any offer turn the remote side is waiting for. Other triggers are not
// stored: the connection raises negotiation-needed again on its return to
// stable.
func (s *Session) afterStable(p *Peer) {
	if p.conn.SignalingState() != webrtc.SignalingStateStable {
		return
	}
	if p.restartPending {
		s.negotiate(p, true)
	}
	s.grantTurn(p)
}

// handleRemoteCandidate adds a trickled candidate, parking it until a remote
// description exists.
func (s *Session) handleRemoteCandidate(msg signaling.CandidatePayload) {
	p := s.lookup(msg.ClientID, signaling.MessageTypeICECandidate)
	if p == nil {
		return
	}
	if p.conn.RemoteDescription() == nil {
		p.pendingCandidates = append(p.pendingCandidates, msg.Value)
		p.log.Debug("buffering candidate until remote description", "buffered", len(p.pendingCandidates))
		return
	}
	s.addCandidate(p, msg.Value)
}

func (s *Session) addCandidate(p *Peer, candidate webrtc.ICECandidateInit) {
	err := p.conn.AddICECandidate(candidate)
	if err == nil {
		return
	}
	// Candidates for an offer we ignored are expected to fail.
	if p.ignoreOffer {
		p.log.Debug("candidate rejected for ignored offer", "error", err)
		return
	}
	p.log.Error("add ICE candidate failed", "error", err)
}

func (s *Session) flushCandidates(p *Peer) {
	pending := p.pendingCandidates
	p.pendingCandidates = nil
	for _, c := range pending {
		s.addCandidate(p, c)
	}
}

func (s *Session) handleLocalCandidate(p *Peer, candidate webrtc.ICECandidateInit) {
	s.send(signaling.Candidate(p.id, candidate))
}

// handleICEState restarts ICE on failure. Only the affected connection is
// touched.
func (s *Session) handleICEState(p *Peer, state webrtc.ICEConnectionState) {
	p.iceState = state
	p.log.Debug("ice connection state", "state", state)
	if state == webrtc.ICEConnectionStateFailed {
		p.log.Warn("ice failed, restarting")
		s.negotiate(p, true)
	}
	s.publishPeer(p)
}
