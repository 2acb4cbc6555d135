package charm

import (
	"io"
	"log/slog"

	"github.com/charmbracelet/log"
)

// New returns a compact terminal logger writing to w.
func New(w io.Writer, level slog.Level) *slog.Logger {
	handler := log.NewWithOptions(w, log.Options{
		Level:           log.Level(level),
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Prefix:          "mailbatch",
	})

	return slog.New(handler)
}
