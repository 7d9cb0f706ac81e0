package rtc

import (
	"fmt"
	"log/slog"

	"github.com/pion/interceptor"
	"github.com/pion/transport/v3"
	"github.com/pion/webrtc/v4"
	"github.com/serozhenka/shary/internal/logging"
)

// FactoryOptions configures the pion API shared by every connection.
type FactoryOptions struct {
	ICEServers []webrtc.ICEServer
	// ForceRelay restricts ICE to TURN candidates. It only applies when a
	// TURN server is configured.
	ForceRelay bool
	// Net replaces the OS network stack, e.g. with a vnet in tests.
	Net transport.Net
	// IncludeLoopback gathers loopback candidates for same-host calls.
	IncludeLoopback bool
	Logger          *slog.Logger
}

// PionFactory builds pion-backed connections.
type PionFactory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

// NewPionFactory registers the default codecs and interceptors and prepares
// the connection configuration.
func NewPionFactory(opts FactoryOptions) (*PionFactory, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	se := webrtc.SettingEngine{}
	se.LoggerFactory = logging.PionFactory{Logger: logger}
	if opts.Net != nil {
		se.SetNet(opts.Net)
	}
	if opts.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	)

	policy := webrtc.ICETransportPolicyAll
	if hasTURN(opts.ICEServers) && (opts.ForceRelay || ShouldForceRelay()) {
		policy = webrtc.ICETransportPolicyRelay
		logger.Info("forcing TURN relay for all peers")
	}

	return &PionFactory{
		api: api,
		config: webrtc.Configuration{
			ICEServers:         opts.ICEServers,
			ICETransportPolicy: policy,
		},
	}, nil
}

// NewConn creates a fresh peer connection.
func (f *PionFactory) NewConn() (Conn, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return newPionConn(pc), nil
}

// Policy returns the ICE transport policy applied to new connections.
func (f *PionFactory) Policy() webrtc.ICETransportPolicy {
	return f.config.ICETransportPolicy
}
