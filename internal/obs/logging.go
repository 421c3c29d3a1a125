// Package obs contains observability utilities such as logging.
package obs

import (
	"io"
	"log/slog"
	"os"
)

// Logger is the global structured logger used by the service.
var Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// InitLogger initializes the global Logger with a JSON handler at the given level.
// Unknown levels fall back to info.
func InitLogger(level string) {
	InitLoggerTo(os.Stdout, level)
}

// InitLoggerTo is InitLogger with an explicit destination.
func InitLoggerTo(w io.Writer, level string) {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	Logger = slog.New(h)
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
