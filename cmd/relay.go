package cmd

import (
	"fmt"
	"log/slog"

	"github.com/serozhenka/shary/internal/config"
	"github.com/serozhenka/shary/internal/logging"
	"github.com/serozhenka/shary/internal/relay"
	"github.com/spf13/cobra"
)

var (
	flagListen  string
	flagMaxRate float64
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the signaling relay",
	Long: `Run the room relay that participants signal through. It only forwards
negotiation and room notices; media flows directly between participants.

Examples:
  shary relay
  shary relay --listen :9000 --max-rate 20`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.Options{ConfigFile: flagConfig, Listen: flagListen})
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cmd.Flags().Changed("max-rate") {
			cfg.MaxMessagesPerSecond = flagMaxRate
		}

		logger := logging.Init(slog.LevelInfo)
		srv := relay.NewServer(relay.Options{
			MaxMessagesPerSecond: cfg.MaxMessagesPerSecond,
			Logger:               logger,
		})
		return srv.ListenAndServe(cmd.Context(), cfg.Listen)
	},
}

func init() {
	rootCmd.AddCommand(relayCmd)

	relayCmd.Flags().StringVarP(&flagListen, "listen", "l", "", "Listen address (default "+config.DefaultListen+")")
	relayCmd.Flags().Float64Var(&flagMaxRate, "max-rate", 0, "Messages per second allowed from each client; 0 disables the limit")
}
