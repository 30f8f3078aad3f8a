package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Options selects the level and handler installed by Init.
type Options struct {
	Verbose bool
	Quiet   bool
	Format  string // "text" or "json"
}

// Init installs the default slog logger on stderr.
func Init(opts Options) error {
	return initWriter(os.Stderr, opts)
}

func initWriter(w io.Writer, opts Options) error {
	level := slog.LevelInfo
	switch {
	case opts.Verbose:
		level = slog.LevelDebug
	case opts.Quiet:
		level = slog.LevelWarn
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch opts.Format {
	case "", "text":
		handler = slog.NewTextHandler(w, handlerOpts)
	case "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	default:
		return fmt.Errorf("unsupported log format: %s (supported: text, json)", opts.Format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}
