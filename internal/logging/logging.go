package logging

import (
	"log/slog"
	"os"
)

// Init installs the process-wide slog logger. Warn-and-above by default so
// continuous mode stays quiet; verbose drops the level to debug.
func Init(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}
