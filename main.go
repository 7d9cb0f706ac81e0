package main

import (
	"log/slog"

	"github.com/serozhenka/shary/cmd"
	"github.com/serozhenka/shary/internal/logging"
)

func main() {
	logging.Init(slog.LevelError)
	cmd.Execute()
}
