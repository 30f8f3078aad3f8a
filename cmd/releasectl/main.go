package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ppiankov/releasectl/internal/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Execute(ctx, version, commit, date)
	stop()

	if err != nil {
		code := commands.ExitCode(err)
		if code == commands.ExitCancelled {
			slog.Warn("Interrupted")
		} else {
			slog.Error("Command failed", "error", err)
		}
		os.Exit(code)
	}
}
