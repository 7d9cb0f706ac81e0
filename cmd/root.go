package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/serozhenka/shary/internal/ui"
	"github.com/serozhenka/shary/internal/version"
	"github.com/spf13/cobra"
)

var flagConfig string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "shary",
	Short:   "Peer-to-peer video rooms over WebRTC",
	Long:    `Shary joins multi-party WebRTC rooms from the terminal. Each participant connects directly to every other one (mesh); a small relay only carries the signaling. Camera, microphone and screen tracks can come from files, and the room has a text chat over a data channel.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file (default $SHARY_CONFIG)")
}
