package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/pion/webrtc/v4"
	"gopkg.in/yaml.v3"
)

// Default configuration values
const (
	DefaultServer               = "ws://localhost:8080"
	DefaultSTUN                 = "stun:stun.l.google.com:19302"
	DefaultListen               = ":8080"
	DefaultMaxMessagesPerSecond = 50
	ClientType                  = "cli"
)

var ErrMissingRoom = errors.New("room is required")

// Config holds application configuration
type Config struct {
	// Server is the relay base URL (ws, wss, http or https)
	Server   string `yaml:"server"`
	Room     string `yaml:"room"`
	Username string `yaml:"username"`
	Token    string `yaml:"token"`

	// ICE servers for WebRTC
	STUNServer string `yaml:"stun"`
	TURNServer string `yaml:"turn"`
	TURNUser   string `yaml:"turn_user"`
	TURNPass   string `yaml:"turn_pass"`
	ForceRelay bool   `yaml:"force_relay"`

	// Media sources; empty means synthetic tracks
	VideoFile  string `yaml:"video_file"`
	AudioFile  string `yaml:"audio_file"`
	ScreenFile string `yaml:"screen_file"`

	// Relay only
	Listen               string  `yaml:"listen"`
	MaxMessagesPerSecond float64 `yaml:"max_messages_per_second"`
}

// Options carries CLI flag overrides. Zero values mean "not set".
type Options struct {
	ConfigFile string
	Server     string
	Room       string
	Username   string
	Token      string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
	VideoFile  string
	AudioFile  string
	ScreenFile string
	Listen     string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. YAML config file (--config or SHARY_CONFIG)
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	cfg := &Config{
		Server:               DefaultServer,
		STUNServer:           DefaultSTUN,
		Listen:               DefaultListen,
		MaxMessagesPerSecond: DefaultMaxMessagesPerSecond,
	}

	path := first(opts.ConfigFile, os.Getenv("SHARY_CONFIG"))
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Server = first(opts.Server, os.Getenv("SHARY_SERVER"), cfg.Server)
	cfg.Room = first(opts.Room, cfg.Room)
	cfg.Username = first(opts.Username, os.Getenv("SHARY_USERNAME"), cfg.Username)
	cfg.Token = first(opts.Token, os.Getenv("SHARY_TOKEN"), cfg.Token)
	cfg.STUNServer = first(opts.STUNServer, os.Getenv("STUN_SERVER"), cfg.STUNServer)
	cfg.TURNServer = first(opts.TURNServer, os.Getenv("TURN_SERVER"), cfg.TURNServer)
	cfg.TURNUser = first(opts.TURNUser, os.Getenv("TURN_USERNAME"), cfg.TURNUser)
	cfg.TURNPass = first(opts.TURNPass, os.Getenv("TURN_PASSWORD"), cfg.TURNPass)
	cfg.VideoFile = first(opts.VideoFile, cfg.VideoFile)
	cfg.AudioFile = first(opts.AudioFile, cfg.AudioFile)
	cfg.ScreenFile = first(opts.ScreenFile, cfg.ScreenFile)
	cfg.Listen = first(opts.Listen, os.Getenv("SHARY_LISTEN"), cfg.Listen)

	if v := os.Getenv("SHARY_FORCE_RELAY"); v != "" {
		force, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("SHARY_FORCE_RELAY: %w", err)
		}
		cfg.ForceRelay = force
	}
	if opts.ForceRelay {
		cfg.ForceRelay = true
	}

	return cfg, nil
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// SignalingURL builds the relay websocket URL for joining the configured room.
func (c *Config) SignalingURL() (string, error) {
	if c.Room == "" {
		return "", ErrMissingRoom
	}

	u, err := url.Parse(c.Server)
	if err != nil {
		return "", fmt.Errorf("invalid server %q: %w", c.Server, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server %q: unsupported scheme", c.Server)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}

	q := u.Query()
	q.Set("roomId", c.Room)
	if c.Username != "" {
		q.Set("username", c.Username)
	}
	if c.Token != "" {
		q.Set("token", c.Token)
	}
	q.Set("clientType", ClientType)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// GetSTUNServers returns STUN server URLs; the value may be comma separated.
func (c *Config) GetSTUNServers() []string {
	var urls []string
	for _, s := range strings.Split(c.STUNServer, ",") {
		if s = strings.TrimSpace(s); s != "" {
			urls = append(urls, s)
		}
	}
	return urls
}

// GetTURNServers returns TURN server URLs if configured. A bare "turn:host"
// expands to the udp, tcp and tls variants.
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	if strings.Contains(c.TURNServer, "?transport=") || strings.Count(c.TURNServer, ":") > 1 {
		return []string{c.TURNServer}
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turn:"), "turns:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// ICEServers returns the pion ICE server list built from STUN and TURN settings.
func (c *Config) ICEServers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if stun := c.GetSTUNServers(); len(stun) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}
	if turn := c.GetTURNServers(); turn != nil {
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}
	return servers
}

// HasTURN reports whether a relay candidate source is configured.
func (c *Config) HasTURN() bool {
	return c.TURNServer != ""
}
