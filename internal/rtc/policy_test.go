package rtc

import (
	"net"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestIsTunnelName(t *testing.T) {
	for name, want := range map[string]bool{
		"wg0":            true,
		"utun3":          true,
		"CloudflareWARP": true,
		"eth0":           false,
		"en0":            false,
	} {
		if got := isTunnelName(name); got != want {
			t.Errorf("isTunnelName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestInCGNAT(t *testing.T) {
	tests := []struct {
		addr net.Addr
		want bool
	}{
		{&net.IPNet{IP: net.ParseIP("100.100.1.2"), Mask: net.CIDRMask(10, 32)}, true},
		{&net.IPAddr{IP: net.ParseIP("100.127.255.254")}, true},
		{&net.IPNet{IP: net.ParseIP("100.128.0.1"), Mask: net.CIDRMask(24, 32)}, false},
		{&net.IPNet{IP: net.ParseIP("192.168.1.10"), Mask: net.CIDRMask(24, 32)}, false},
		{&net.UnixAddr{Name: "/tmp/x"}, false},
	}
	for _, tt := range tests {
		if got := inCGNAT(tt.addr); got != tt.want {
			t.Errorf("inCGNAT(%v) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestFactoryPolicy(t *testing.T) {
	stunOnly := []webrtc.ICEServer{{URLs: []string{"stun:stun.example:3478"}}}
	f, err := NewPionFactory(FactoryOptions{ICEServers: stunOnly, ForceRelay: true})
	if err != nil {
		t.Fatalf("NewPionFactory: %v", err)
	}
	if f.Policy() != webrtc.ICETransportPolicyAll {
		t.Errorf("relay cannot be forced without TURN, got %v", f.Policy())
	}

	withTURN := append(stunOnly, webrtc.ICEServer{URLs: []string{"turn:turn.example:3478"}, Username: "u", Credential: "p"})
	f, err = NewPionFactory(FactoryOptions{ICEServers: withTURN, ForceRelay: true})
	if err != nil {
		t.Fatalf("NewPionFactory: %v", err)
	}
	if f.Policy() != webrtc.ICETransportPolicyRelay {
		t.Errorf("expected relay policy, got %v", f.Policy())
	}

	conn, err := f.NewConn()
	if err != nil {
		t.Fatalf("NewConn: %v", err)
	}
	defer conn.Close()
	if conn.SignalingState() != webrtc.SignalingStateStable {
		t.Errorf("new connection should be stable, got %v", conn.SignalingState())
	}
}
