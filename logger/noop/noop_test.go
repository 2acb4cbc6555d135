package noop

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNoop_DisabledForAllLevels(t *testing.T) {
	l := NewNoop()
	ctx := context.Background()

	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		assert.False(t, l.Enabled(ctx, level))
	}
}

func TestNewNoop_WithAttributes(t *testing.T) {
	l := NewNoop().With("run_id", "42").WithGroup("smtp")

	l.Info("message with attributes")
	l.Error("error with attributes", "error", "boom")
}
