package call

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/serozhenka/shary/internal/signaling"
)

func offerSDP(t *testing.T, msgs []*signaling.Message) string {
	t.Helper()
	offers := ofType(msgs, signaling.MessageTypeOffer)
	if len(offers) != 1 {
		t.Fatalf("expected one offer, got %d", len(offers))
	}
	v, err := offers[0].Decode()
	if err != nil {
		t.Fatal(err)
	}
	return v.(signaling.DescriptionPayload).Value.SDP
}

// connectPair joins bob (polite) and alice (impolite) and completes alice's
// join offer.
func connectPair(t *testing.T, alice, bob *harness) {
	t.Helper()
	bob.deliver(t, signaling.MessageTypeInit, signaling.InitPayload{
		Clients: []signaling.ClientInfo{{ID: "a", Username: "alice", ClientType: "cli"}},
	})
	alice.join(t, "b", "bob", "cli")
	for i := 0; i < 10; i++ {
		if len(ferry(t, alice, "a", bob))+len(ferry(t, bob, "b", alice)) == 0 {
			return
		}
	}
	t.Fatalf("pair did not settle")
}

func TestSimultaneousTriggersImpoliteWins(t *testing.T) {
	alice := newHarness(t, "alice", "cli")
	bob := newHarness(t, "bob", "cli")
	connectPair(t, alice, bob)
	ac, bc := alice.conn(t, "b"), bob.conn(t, "a")
	bobOffers := bc.Offers()

	// Both sides trigger in the same tick while stable.
	alice.negotiate(alice.peers["b"], false)
	bob.negotiate(bob.peers["a"], false)

	aliceOut := alice.outbound()
	bobOut := bob.outbound()
	aliceOffer := offerSDP(t, aliceOut)
	if n := len(ofType(bobOut, signaling.MessageTypeOffer)); n != 0 {
		t.Fatalf("polite side offered without a turn (%d offers)", n)
	}
	if n := len(ofType(bobOut, signaling.MessageTypeOfferRequest)); n != 1 {
		t.Fatalf("expected one offer request, got %d", n)
	}

	for _, msg := range aliceOut {
		bob.dispatch(stamp(t, msg, "a"))
		bob.pump()
	}
	if got := bc.RemoteDescription().SDP; got != aliceOffer {
		t.Errorf("bob applied %q, want alice's offer %q", got, aliceOffer)
	}
	for _, msg := range bobOut {
		alice.dispatch(stamp(t, msg, "b"))
		alice.pump()
	}
	if alice.peers["b"].ignoreOffer {
		t.Errorf("no offer should have collided")
	}

	for i := 0; i < 10; i++ {
		if len(ferry(t, bob, "b", alice))+len(ferry(t, alice, "a", bob)) == 0 {
			break
		}
	}

	if ac.SignalingState() != webrtc.SignalingStateStable || bc.SignalingState() != webrtc.SignalingStateStable {
		t.Fatalf("not converged: alice %s, bob %s", ac.SignalingState(), bc.SignalingState())
	}
	if bc.Offers() != bobOffers+1 {
		t.Errorf("bob should offer once after his turn, offered %d", bc.Offers()-bobOffers)
	}
	if alice.peers["b"].turnGranted || bob.peers["a"].turnHeld || bob.peers["a"].turnRequested {
		t.Errorf("offer turn left outstanding")
	}
	for _, ev := range bob.events() {
		if ev.Err != nil {
			t.Errorf("polite side surfaced an error: %v", ev.Err)
		}
	}
}

func TestPoliteSideWaitsForFirstOffer(t *testing.T) {
	h := newHarness(t, "bob", "cli").withMedia(true, true)
	h.deliver(t, signaling.MessageTypeInit, signaling.InitPayload{
		Clients: []signaling.ClientInfo{{ID: "a", Username: "alice", ClientType: "cli"}},
	})
	conn := h.conn(t, "a")

	h.negotiate(h.peers["a"], false)
	out := h.outbound()
	if conn.Offers() != 0 || len(ofType(out, signaling.MessageTypeOffer)) != 0 {
		t.Fatalf("polite side offered before the first remote offer")
	}
	if n := len(ofType(out, signaling.MessageTypeOfferRequest)); n != 0 {
		t.Fatalf("polite side asked for a turn before the first remote offer")
	}

	h.deliver(t, signaling.MessageTypeOffer, signaling.DescriptionPayload{
		ClientID: "a",
		Value:    signaling.SessionDescription{Type: "offer", SDP: "offer from a"},
	})
	out = h.outbound()
	if n := len(ofType(out, signaling.MessageTypeAnswer)); n != 1 {
		t.Fatalf("expected one answer, got %d", n)
	}
	// The unoffered tracks raise negotiation-needed again once stable.
	if n := len(ofType(out, signaling.MessageTypeOfferRequest)); n != 1 {
		t.Fatalf("expected one offer request after the answer, got %d", n)
	}
	if conn.Offers() != 0 {
		t.Fatalf("offered before the turn was granted")
	}

	h.deliver(t, signaling.MessageTypeOfferGrant, signaling.OfferTurnPayload{ClientID: "a"})
	if n := len(ofType(h.outbound(), signaling.MessageTypeOffer)); n != 1 {
		t.Fatalf("expected one offer after the grant, got %d", n)
	}
	if !h.peers["a"].turnHeld || conn.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		t.Errorf("turn not held while the offer is out")
	}

	h.answer(t, "a")
	if h.peers["a"].turnHeld {
		t.Errorf("turn not released by the answer")
	}
}

func TestPoliteSideOffersDirectlyToBrowser(t *testing.T) {
	h := newHarness(t, "bob", "cli").withMedia(false, true)
	h.deliver(t, signaling.MessageTypeInit, signaling.InitPayload{
		Clients: []signaling.ClientInfo{{ID: "w", Username: "webby", ClientType: "web"}},
	})
	h.deliver(t, signaling.MessageTypeOffer, signaling.DescriptionPayload{
		ClientID: "w",
		Value:    signaling.SessionDescription{Type: "offer", SDP: "offer from w"},
	})

	out := h.outbound()
	if n := len(ofType(out, signaling.MessageTypeOfferRequest)); n != 0 {
		t.Errorf("browsers do not take offer turns, sent %d requests", n)
	}
	if n := len(ofType(out, signaling.MessageTypeOffer)); n != 1 {
		t.Errorf("expected one direct offer, got %d", n)
	}
}

func TestPoliteSideDropsOfferWhileOffering(t *testing.T) {
	h := newHarness(t, "bob", "cli")
	h.deliver(t, signaling.MessageTypeInit, signaling.InitPayload{
		Clients: []signaling.ClientInfo{{ID: "w", Username: "webby", ClientType: "web"}},
	})
	h.deliver(t, signaling.MessageTypeOffer, signaling.DescriptionPayload{
		ClientID: "w",
		Value:    signaling.SessionDescription{Type: "offer", SDP: "first"},
	})
	p := h.peers["w"]
	conn := h.conn(t, "w")
	h.negotiate(p, false)
	h.outbound()
	answers := conn.Answers()

	h.deliver(t, signaling.MessageTypeOffer, signaling.DescriptionPayload{
		ClientID: "w",
		Value:    signaling.SessionDescription{Type: "offer", SDP: "second"},
	})
	if conn.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		t.Fatalf("own offer abandoned, state %s", conn.SignalingState())
	}
	if conn.Answers() != answers || len(ofType(h.outbound(), signaling.MessageTypeAnswer)) != 0 {
		t.Errorf("colliding offer must not be answered")
	}
	for _, ev := range h.events() {
		if ev.Err != nil {
			t.Errorf("surfaced an error: %v", ev.Err)
		}
	}
}

func TestOfferRequestGrantedOnceStable(t *testing.T) {
	h := newHarness(t, "alice", "cli")
	p := h.join(t, "b", "bob", "cli")
	h.outbound()

	// The join offer is still unanswered.
	h.deliver(t, signaling.MessageTypeOfferRequest, signaling.OfferTurnPayload{ClientID: "b"})
	if n := len(ofType(h.outbound(), signaling.MessageTypeOfferGrant)); n != 0 {
		t.Fatalf("granted a turn while offering")
	}
	if !p.turnWanted {
		t.Fatalf("request not remembered")
	}

	h.answer(t, "b")
	if n := len(ofType(h.outbound(), signaling.MessageTypeOfferGrant)); n != 1 {
		t.Fatalf("expected one grant after the answer, got %d", n)
	}
	if !p.turnGranted || p.turnWanted {
		t.Errorf("grant bookkeeping: granted %v wanted %v", p.turnGranted, p.turnWanted)
	}
}

func TestImpoliteSideHoldsOffersDuringGrantedTurn(t *testing.T) {
	h := newHarness(t, "alice", "cli")
	p := h.join(t, "b", "bob", "cli")
	h.answer(t, "b")
	h.deliver(t, signaling.MessageTypeOfferRequest, signaling.OfferTurnPayload{ClientID: "b"})
	h.outbound()
	conn := h.conn(t, "b")
	offers := conn.Offers()

	h.negotiate(p, false)
	conn.SetICEState(webrtc.ICEConnectionStateFailed)
	h.pump()
	if conn.Offers() != offers || !p.restartPending {
		t.Fatalf("offered during the peer's turn: offers %d pending %v", conn.Offers()-offers, p.restartPending)
	}

	h.deliver(t, signaling.MessageTypeOffer, signaling.DescriptionPayload{
		ClientID: "b",
		Value:    signaling.SessionDescription{Type: "offer", SDP: "offer from b"},
	})
	if p.ignoreOffer {
		t.Fatalf("offer made in a granted turn was ignored")
	}
	out := h.outbound()
	if n := len(ofType(out, signaling.MessageTypeAnswer)); n != 1 {
		t.Fatalf("expected one answer, got %d", n)
	}
	if p.turnGranted || conn.Restarts() != 1 || len(ofType(out, signaling.MessageTypeOffer)) != 1 {
		t.Errorf("deferred restart not run after the turn: granted %v restarts %d", p.turnGranted, conn.Restarts())
	}
}

func TestNegotiationConvergesWithMedia(t *testing.T) {
	alice := newHarness(t, "alice", "cli").withMedia(true, true)
	bob := newHarness(t, "bob", "cli").withMedia(true, true)

	bob.deliver(t, signaling.MessageTypeInit, signaling.InitPayload{
		Clients: []signaling.ClientInfo{{ID: "a", Username: "alice", ClientType: "cli"}},
	})
	alice.join(t, "b", "bob", "cli")

	for i := 0; i < 10; i++ {
		moved := len(ferry(t, alice, "a", bob)) + len(ferry(t, bob, "b", alice))
		if moved == 0 {
			break
		}
	}

	ac, bc := alice.conn(t, "b"), bob.conn(t, "a")
	if ac.SignalingState() != webrtc.SignalingStateStable || bc.SignalingState() != webrtc.SignalingStateStable {
		t.Fatalf("not converged: alice %s, bob %s", ac.SignalingState(), bc.SignalingState())
	}
	if ac.LocalDescription() == nil || bc.LocalDescription() == nil {
		t.Fatalf("missing local descriptions")
	}
	if bc.Offers() != 1 {
		t.Errorf("bob's tracks should be offered once in his turn, got %d offers", bc.Offers())
	}
	if alice.peers["b"].turnGranted || bob.peers["a"].turnHeld {
		t.Errorf("offer turn left outstanding")
	}
}

func TestTriggerCollapsesWhileOffering(t *testing.T) {
	h := newHarness(t, "alice", "cli")
	p := h.join(t, "b", "bob", "web")
	conn := h.conn(t, "b")
	offers := conn.Offers()

	p.makingOffer = true
	h.negotiate(p, false)
	p.makingOffer = false
	if conn.Offers() != offers {
		t.Errorf("a trigger during an offer must collapse into it")
	}

	// Still awaiting the answer to the join offer.
	h.negotiate(p, false)
	if conn.Offers() != offers {
		t.Errorf("a trigger while not stable must be deferred")
	}
}

func TestMakingOfferClearedOnFailure(t *testing.T) {
	h := newHarness(t, "alice", "cli")
	p := h.join(t, "b", "bob", "web")
	h.answer(t, "b")

	conn := h.conn(t, "b")
	conn.CreateOfferErr = errors.New("boom")
	h.negotiate(p, false)
	if p.makingOffer {
		t.Fatalf("makingOffer left set after a failed offer")
	}
	conn.CreateOfferErr = nil
	h.negotiate(p, false)
	if conn.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		t.Errorf("negotiation should work again after a failure, state %s", conn.SignalingState())
	}
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	h := newHarness(t, "bob", "cli")
	h.deliver(t, signaling.MessageTypeInit, signaling.InitPayload{
		Clients: []signaling.ClientInfo{{ID: "a", Username: "alice"}},
	})
	conn := h.conn(t, "a")

	cand := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2122260223 10.0.0.1 5000 typ host"}
	h.deliver(t, signaling.MessageTypeICECandidate, signaling.CandidatePayload{ClientID: "a", Value: cand})
	if len(conn.Candidates()) != 0 || len(h.peers["a"].pendingCandidates) != 1 {
		t.Fatalf("candidate should be buffered before the remote description")
	}

	h.deliver(t, signaling.MessageTypeOffer, signaling.DescriptionPayload{
		ClientID: "a",
		Value:    signaling.SessionDescription{Type: "offer", SDP: "offer from a"},
	})
	got := conn.Candidates()
	if len(got) != 1 || got[0].Candidate != cand.Candidate {
		t.Fatalf("buffered candidate not applied: %v", got)
	}
	if len(h.peers["a"].pendingCandidates) != 0 {
		t.Errorf("buffer not drained")
	}
	if answers := ofType(h.outbound(), signaling.MessageTypeAnswer); len(answers) != 1 {
		t.Errorf("expected one answer, got %d", len(answers))
	}
}

func TestLocalCandidatesForwarded(t *testing.T) {
	h := newHarness(t, "alice", "cli")
	h.join(t, "b", "bob", "web")
	h.outbound()

	h.conn(t, "b").EmitICECandidate(webrtc.ICECandidateInit{Candidate: "candidate:x"})
	h.pump()

	msgs := ofType(h.outbound(), signaling.MessageTypeICECandidate)
	if len(msgs) != 1 {
		t.Fatalf("expected one candidate message, got %d", len(msgs))
	}
	v, _ := msgs[0].Decode()
	if p := v.(signaling.CandidatePayload); p.ClientID != "b" || p.Value.Candidate != "candidate:x" || p.MessageID == "" {
		t.Errorf("unexpected candidate payload %+v", p)
	}
}

func TestICEFailureRestartsOnlyThatPeer(t *testing.T) {
	h := newHarness(t, "alice", "cli")
	h.join(t, "b", "bob", "web")
	h.join(t, "c", "carol", "web")
	h.answer(t, "b")
	h.answer(t, "c")
	h.outbound()

	h.conn(t, "b").SetICEState(webrtc.ICEConnectionStateFailed)
	h.pump()

	if r := h.conn(t, "b").Restarts(); r != 1 {
		t.Errorf("expected one restart on b, got %d", r)
	}
	if r := h.conn(t, "c").Restarts(); r != 0 {
		t.Errorf("c must not restart, got %d", r)
	}
	if h.conn(t, "b").Closed() {
		t.Errorf("ICE failure must not tear the peer down")
	}
	if offers := ofType(h.outbound(), signaling.MessageTypeOffer); len(offers) != 1 {
		t.Errorf("expected one restart offer, got %d", len(offers))
	}
}

func TestICERestartDeferredUntilStable(t *testing.T) {
	h := newHarness(t, "alice", "cli")
	p := h.join(t, "b", "bob", "web")
	conn := h.conn(t, "b")

	// The join offer is still unanswered.
	conn.SetICEState(webrtc.ICEConnectionStateFailed)
	h.pump()
	if conn.Restarts() != 0 || !p.restartPending {
		t.Fatalf("restart should wait for stable")
	}

	h.answer(t, "b")
	if conn.Restarts() != 1 || p.restartPending {
		t.Errorf("pending restart not run after the answer: restarts %d pending %v", conn.Restarts(), p.restartPending)
	}
}

func TestImpoliteSideIgnoresCollidingOffer(t *testing.T) {
	h := newHarness(t, "alice", "cli")
	p := h.join(t, "b", "bob", "web")

	// alice is impolite and mid-offer, so bob's offer is dropped.
	h.deliver(t, signaling.MessageTypeOffer, signaling.DescriptionPayload{
		ClientID: "b",
		Value:    signaling.SessionDescription{Type: "offer", SDP: "offer from b"},
	})
	if !p.ignoreOffer {
		t.Fatalf("impolite side should ignore a colliding offer")
	}
	if answers := ofType(h.outbound(), signaling.MessageTypeAnswer); len(answers) != 0 {
		t.Fatalf("ignored offer must not be answered")
	}
	if h.conn(t, "b").RemoteDescription() != nil {
		t.Errorf("ignored offer was applied")
	}
}
