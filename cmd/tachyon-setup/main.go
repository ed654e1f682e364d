package main

import (
	"log/slog"
	"os"

	"github.com/edl-tools/tachyon-setup/cmd/tachyon-setup/commands"
)

func main() {
	// Wizard text owns stdout; structured logs go to stderr
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: commands.LogLevel,
	}))
	slog.SetDefault(logger)

	commands.Execute()
}
