package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"time"

	"github.com/serozhenka/shary/internal/call"
	"github.com/serozhenka/shary/internal/config"
	"github.com/serozhenka/shary/internal/logging"
	"github.com/serozhenka/shary/internal/media"
	"github.com/serozhenka/shary/internal/rtc"
	"github.com/serozhenka/shary/internal/signaling"
	"github.com/serozhenka/shary/internal/ui"
	"github.com/spf13/cobra"
)

const connectTimeout = 15 * time.Second

var (
	flagServer   string
	flagUsername string
	flagToken    string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagVideo    string
	flagAudio    string
	flagScreen   string
	flagNoVideo  bool
	flagNoAudio  bool
	flagHeadless bool
	flagLogFile  string
)

var joinCmd = &cobra.Command{
	Use:     "join [room]",
	Aliases: []string{"j"},
	Short:   "Join a room",
	Long: `Join a room and talk to everyone in it.

Inside the room, type to chat or use /video, /audio, /screen and /leave.

Examples:
  shary join standup
  shary join standup --server wss://relay.example.com --username ada
  shary join standup --video cam.ivf --audio mic.ogg
  shary join standup --turn turn.example.com --turn-user u --turn-pass p --relay`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := joinOptions()
		if len(args) == 1 {
			opts.Room = args[0]
		}
		return joinRoom(cmd.Context(), opts)
	},
}

func joinOptions() config.Options {
	return config.Options{
		ConfigFile: flagConfig,
		Server:     flagServer,
		Username:   flagUsername,
		Token:      flagToken,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
		VideoFile:  flagVideo,
		AudioFile:  flagAudio,
		ScreenFile: flagScreen,
	}
}

func loadJoinConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Room == "" {
		return nil, config.ErrMissingRoom
	}
	if cfg.ForceRelay && !cfg.HasTURN() {
		return nil, errors.New("cannot force relay mode without TURN server configured")
	}
	if cfg.Username == "" {
		cfg.Username = defaultUsername()
	}
	return cfg, nil
}

func defaultUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "guest"
}

// joinLogger keeps log output away from the room view when a log file is
// given.
func joinLogger() (*slog.Logger, func(), error) {
	if flagLogFile == "" {
		return slog.Default(), func() {}, nil
	}
	f, err := os.OpenFile(flagLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	level := logging.ParseLevel(os.Getenv("LOG_LEVEL"), slog.LevelInfo)
	return logging.New(f, level, os.Getenv("LOG_FORMAT")), func() { f.Close() }, nil
}

func joinRoom(ctx context.Context, opts config.Options) error {
	cfg, err := loadJoinConfig(opts)
	if err != nil {
		return err
	}
	wsURL, err := cfg.SignalingURL()
	if err != nil {
		return err
	}

	logger, closeLog, err := joinLogger()
	if err != nil {
		return err
	}
	defer closeLog()
	logger = logger.With("room", cfg.Room)

	factory, err := rtc.NewPionFactory(rtc.FactoryOptions{
		ICEServers: cfg.ICEServers(),
		ForceRelay: cfg.ForceRelay,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("set up webrtc: %w", err)
	}

	sp := ui.RunConnectionSpinner("Connecting to relay...")
	client := signaling.NewClient(wsURL, logger)
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	err = client.Connect(dialCtx)
	cancel()
	if err != nil {
		sp.Error("Could not reach the relay")
		return fmt.Errorf("connect to relay: %w", err)
	}
	sp.Success(fmt.Sprintf("Joined %s as %s", cfg.Room, cfg.Username))

	session := call.NewSession(call.SessionConfig{
		Transport: client,
		Factory:   factory,
		Capturer: media.FileCapturer{
			VideoFile:  cfg.VideoFile,
			AudioFile:  cfg.AudioFile,
			ScreenFile: cfg.ScreenFile,
		},
		Username:   cfg.Username,
		ClientType: config.ClientType,
		Logger:     logger,
		StartVideo: !flagNoVideo,
		StartAudio: !flagNoAudio,
	})

	runErr := make(chan error, 1)
	go func() { runErr <- session.Run(ctx) }()

	var viewErr error
	if flagHeadless {
		watchEvents(session, logger)
	} else {
		viewErr = ui.RunRoom(ctx, session, cfg.Room)
	}
	session.Leave()

	err = <-runErr
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	fmt.Println()
	ui.RenderCallSummary(os.Stdout, ui.CallSummary{Room: cfg.Room, Stats: session.Stats(), Reason: err})

	if errors.Is(err, call.ErrTransportLost) {
		return fmt.Errorf("%w; run the same command again to rejoin", err)
	}
	if err == nil && viewErr != nil && !errors.Is(viewErr, call.ErrTransportLost) {
		return viewErr
	}
	return err
}

// watchEvents logs session events until the session ends.
func watchEvents(session *call.Session, logger *slog.Logger) {
	for ev := range session.Events() {
		switch ev.Type {
		case call.EventChat:
			logger.Info("chat", "from", ev.Chat.Username, "text", ev.Chat.Text)
		case call.EventPeerJoined, call.EventPeerLeft, call.EventPeerUpdated:
			logger.Info("peer", "event", ev.Type, "peer", ev.Peer.Username,
				"ice", ev.Peer.ICE, "chat", ev.Peer.Chat, "screen", ev.Peer.ScreenSharing)
		case call.EventEnded:
			logger.Info("call ended", "error", ev.Err)
		}
	}
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagServer, "server", "s", "", "Relay URL (ws, wss, http or https)")
	joinCmd.Flags().StringVarP(&flagUsername, "username", "u", "", "Display name")
	joinCmd.Flags().StringVar(&flagToken, "token", "", "Session token passed to the relay")
	joinCmd.Flags().StringVar(&flagSTUN, "stun", "", "STUN server(s), comma separated")
	joinCmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "TURN server")
	joinCmd.Flags().StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	joinCmd.Flags().BoolVarP(&flagRelay, "relay", "r", false, "Force TURN relay")
	joinCmd.Flags().StringVar(&flagVideo, "video", "", "IVF file looped as the camera track")
	joinCmd.Flags().StringVar(&flagAudio, "audio", "", "Ogg Opus file looped as the microphone track")
	joinCmd.Flags().StringVar(&flagScreen, "screen", "", "IVF file used for screen sharing")
	joinCmd.Flags().BoolVar(&flagNoVideo, "no-video", false, "Join with the camera off")
	joinCmd.Flags().BoolVar(&flagNoAudio, "no-audio", false, "Join with the microphone off")
	joinCmd.Flags().BoolVar(&flagHeadless, "headless", false, "Log events instead of showing the room view")
	joinCmd.Flags().StringVar(&flagLogFile, "log-file", "", "Write logs to a file instead of stderr")
}
