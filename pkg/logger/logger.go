package logger

import (
	"log"
	"log/slog"
)

// New returns a stdlib logger that forwards into base, tagged with a component.
// Third-party libraries that only accept *log.Logger (cron, net/http) log through it.
func New(base *slog.Logger, component string) *log.Logger {
	if base == nil {
		base = slog.Default()
	}
	return slog.NewLogLogger(base.With("component", component).Handler(), slog.LevelInfo)
}
