package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/serozhenka/shary/internal/media"
	"github.com/serozhenka/shary/internal/signaling"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startRelay(t *testing.T) *httptest.Server {
	t.Helper()
	return startRelayWith(t, Options{})
}

func startRelayWith(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	opts.Logger = quietLogger()
	srv := NewServer(opts)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Hub().Run(ctx)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return ts
}

func dial(t *testing.T, ts *httptest.Server, room, username string) *signaling.Client {
	t.Helper()
	q := url.Values{"roomId": {room}, "username": {username}, "clientType": {"cli"}}
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?" + q.Encode()
	c := signaling.NewClient(u, quietLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect %s: %v", username, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func next(t *testing.T, c *signaling.Client, want signaling.MessageType) any {
	t.Helper()
	select {
	case msg, ok := <-c.Incoming():
		if !ok {
			t.Fatalf("connection closed waiting for %s", want)
		}
		if msg.Type != want {
			t.Fatalf("got %s, want %s", msg.Type, want)
		}
		v, err := msg.Decode()
		if err != nil {
			t.Fatalf("decode %s: %v", msg.Type, err)
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
	return nil
}

func silent(t *testing.T, c *signaling.Client) {
	t.Helper()
	select {
	case msg := <-c.Incoming():
		t.Fatalf("unexpected %s", msg.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRoomMembershipAndForwarding(t *testing.T) {
	ts := startRelay(t)

	alice := dial(t, ts, "r1", "alice")
	if welcome := next(t, alice, signaling.MessageTypeInit).(signaling.InitPayload); len(welcome.Clients) != 0 {
		t.Fatalf("first member got %v", welcome.Clients)
	}

	bob := dial(t, ts, "r1", "bob")
	roster := next(t, bob, signaling.MessageTypeInit).(signaling.InitPayload)
	if len(roster.Clients) != 1 || roster.Clients[0].Username != "alice" || roster.Clients[0].ClientType != "cli" {
		t.Fatalf("bob's init: %+v", roster.Clients)
	}
	aliceID := roster.Clients[0].ID

	joined := next(t, alice, signaling.MessageTypeClientJoined).(signaling.ClientJoinedPayload)
	if joined.Username != "bob" || joined.ClientID == "" {
		t.Fatalf("client_joined: %+v", joined)
	}
	bobID := joined.ClientID

	// Per-peer: target in, source out.
	offer := signaling.Offer(aliceID, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"})
	if err := bob.Send(offer); err != nil {
		t.Fatal(err)
	}
	got := next(t, alice, signaling.MessageTypeOffer).(signaling.DescriptionPayload)
	if got.ClientID != bobID || got.Value.SDP != "v=0" || got.MessageID == "" {
		t.Errorf("forwarded offer: %+v", got)
	}

	if err := bob.Send(signaling.OfferRequest(aliceID)); err != nil {
		t.Fatal(err)
	}
	req := next(t, alice, signaling.MessageTypeOfferRequest).(signaling.OfferTurnPayload)
	if req.ClientID != bobID {
		t.Errorf("forwarded offerRequest: %+v", req)
	}

	// Broadcast: sender stamped, not echoed.
	if err := alice.Send(signaling.TrackMuted(media.KindAudio)); err != nil {
		t.Fatal(err)
	}
	muted := next(t, bob, signaling.MessageTypeTrackMuted).(signaling.TrackStatePayload)
	if muted.ClientID != aliceID || muted.TrackKind != media.KindAudio {
		t.Errorf("forwarded trackMuted: %+v", muted)
	}
	silent(t, alice)

	bob.Close()
	left := next(t, alice, signaling.MessageTypeClientLeft).(signaling.ClientLeftPayload)
	if left.ClientID != bobID {
		t.Errorf("client_left for %q, want %q", left.ClientID, bobID)
	}
}

func TestRateLimitThrottlesWithoutDropping(t *testing.T) {
	ts := startRelayWith(t, Options{MaxMessagesPerSecond: 50})

	alice := dial(t, ts, "r1", "alice")
	next(t, alice, signaling.MessageTypeInit)
	bob := dial(t, ts, "r1", "bob")
	aliceID := next(t, bob, signaling.MessageTypeInit).(signaling.InitPayload).Clients[0].ID
	next(t, alice, signaling.MessageTypeClientJoined)

	// Well past the burst of 100.
	const total = 150
	errc := make(chan error, 1)
	go func() {
		for i := range total {
			c := webrtc.ICECandidateInit{Candidate: fmt.Sprintf("candidate:%d 1 udp 1 10.0.0.2 5000 typ host", i)}
			if err := bob.Send(signaling.Candidate(aliceID, c)); err != nil {
				errc <- err
				return
			}
		}
		errc <- nil
	}()

	for i := range total {
		got := next(t, alice, signaling.MessageTypeICECandidate).(signaling.CandidatePayload)
		if want := fmt.Sprintf("candidate:%d ", i); !strings.HasPrefix(got.Value.Candidate, want) {
			t.Fatalf("candidate %d: got %q", i, got.Value.Candidate)
		}
	}
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	select {
	case msg := <-bob.Incoming():
		t.Errorf("sender got %s while throttled", msg.Type)
	default:
	}
}

func TestRoomsAreIsolated(t *testing.T) {
	ts := startRelay(t)

	alice := dial(t, ts, "r1", "alice")
	next(t, alice, signaling.MessageTypeInit)
	carol := dial(t, ts, "r2", "carol")
	if welcome := next(t, carol, signaling.MessageTypeInit).(signaling.InitPayload); len(welcome.Clients) != 0 {
		t.Fatalf("carol sees members of another room: %v", welcome.Clients)
	}

	if err := carol.Send(signaling.ScreenShareStarted()); err != nil {
		t.Fatal(err)
	}
	silent(t, alice)
}

func TestClientOnlyTypesRejected(t *testing.T) {
	ts := startRelay(t)
	alice := dial(t, ts, "r1", "alice")
	next(t, alice, signaling.MessageTypeInit)

	forged, err := signaling.Encode(signaling.MessageTypeClientLeft, signaling.ClientLeftPayload{ClientID: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if err := alice.Send(forged); err != nil {
		t.Fatal(err)
	}
	if p := next(t, alice, signaling.MessageTypeError).(signaling.ErrorPayload); p.Error == "" {
		t.Errorf("empty error payload")
	}

	if err := alice.Send(&signaling.Message{Type: "future_feature"}); err != nil {
		t.Fatal(err)
	}
	silent(t, alice)
}

func TestHealthAndBadRequest(t *testing.T) {
	ts := startRelay(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health: %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/ws")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("ws without room: %d", resp.StatusCode)
	}
}

func TestRoute(t *testing.T) {
	answer := signaling.Answer("target", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "a"})
	target, out, err := route(answer, "source")
	if err != nil || target != "target" {
		t.Fatalf("route answer: %q %v", target, err)
	}
	v, _ := out.Decode()
	if p := v.(signaling.DescriptionPayload); p.ClientID != "source" {
		t.Errorf("clientId not rewritten: %+v", p)
	}

	target, out, err = route(signaling.StreamMetadata("s1", media.RoleScreen), "source")
	if err != nil || target != "" {
		t.Fatalf("route metadata: %q %v", target, err)
	}
	v, _ = out.Decode()
	if p := v.(signaling.StreamMetadataPayload); p.ClientID != "source" || p.StreamID != "s1" {
		t.Errorf("metadata not stamped: %+v", p)
	}

	noTarget := signaling.Candidate("", webrtc.ICECandidateInit{Candidate: "c"})
	if _, _, err := route(noTarget, "source"); err == nil {
		t.Errorf("candidate without target should be rejected")
	}

	welcome, _ := signaling.Encode(signaling.MessageTypeInit, signaling.InitPayload{})
	if _, _, err := route(welcome, "source"); !errors.Is(err, ErrNotRelayed) {
		t.Errorf("init from a client: got %v", err)
	}
	if _, _, err := route(&signaling.Message{Type: "nope"}, "source"); !errors.Is(err, signaling.ErrUnknownType) {
		t.Errorf("unknown type: got %v", err)
	}
}

func TestRandomName(t *testing.T) {
	name := randomName()
	parts := strings.Split(name, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		t.Errorf("unexpected name %q", name)
	}
}
