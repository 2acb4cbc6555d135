package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/pure-golang/mailbatch/logger/monthly"
	"github.com/pure-golang/mailbatch/logger/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2021, time.December, 5, 10, 30, 0, 0, time.Local)

func readFile(t *testing.T, path string) string {
	t.Helper()

	// #nosec G304 -- path is controlled by test
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func newTestBatch(t *testing.T, c Config, console *bytes.Buffer) *Batch {
	t.Helper()

	b := newBatch(c, console, monthly.WithClock(func() time.Time { return testNow }))
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestNewDefault_Providers(t *testing.T) {
	for _, p := range []Provider{ProviderDevSlog, ProviderStdJson, ProviderCharm, ProviderNoop, Provider("unknown"), Provider("")} {
		l := NewDefault(Config{Provider: p, Level: INFO})
		assert.NotNil(t, l, "provider %q", p)
	}
}

func TestNewConsole_NoopDropsEverything(t *testing.T) {
	var buf bytes.Buffer
	l := newConsole(Config{Provider: ProviderNoop}, &buf)

	l.Error("dropped")

	assert.Empty(t, buf.String())
}

func TestNewConsole_StdJson(t *testing.T) {
	var buf bytes.Buffer
	l := newConsole(Config{Provider: ProviderStdJson, Level: DEBUG}, &buf)

	l.Debug("visible")

	assert.Contains(t, buf.String(), `"msg":"visible"`)
}

func TestNewConsole_Charm(t *testing.T) {
	var buf bytes.Buffer
	l := newConsole(Config{Provider: ProviderCharm, Level: WARN}, &buf)

	l.Info("hidden")
	l.Warn("visible")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}

func TestBatch_WritesBothStreams(t *testing.T) {
	dir := t.TempDir()
	b := newTestBatch(t, Config{Dir: dir, Source: "mailbatch"}, nil)

	b.Info("Successfully connected to bot@example.com")
	b.Error("Error sending message to a@example.com")
	require.NoError(t, b.Close())
	require.NoError(t, b.Err())

	operational := readFile(t, filepath.Join(dir, "2021", "December.log"))
	exceptions := readFile(t, filepath.Join(dir, "2021", ExceptionsDir, "December.log"))

	assert.Contains(t, operational, "[INFO]: mailbatch | Successfully connected to bot@example.com")
	assert.Contains(t, operational, "[ERROR]: mailbatch | Error sending message to a@example.com")
	assert.NotContains(t, exceptions, "Successfully connected")
	assert.Contains(t, exceptions, "[ERROR]: mailbatch | Error sending message to a@example.com")
}

func TestBatch_NoFilesUntilFirstWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Logs")
	b := newTestBatch(t, Config{Dir: dir}, nil)

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	b.Info("first")
	assert.FileExists(t, filepath.Join(dir, "2021", "December.log"))
	assert.NoFileExists(t, filepath.Join(dir, "2021", ExceptionsDir, "December.log"))
}

func TestBatch_DefaultSource(t *testing.T) {
	dir := t.TempDir()
	b := newTestBatch(t, Config{Dir: dir}, nil)

	b.Info("hello")

	assert.Contains(t, readFile(t, filepath.Join(dir, "2021", "December.log")), "]: mailbatch | hello")
}

func TestBatch_ConsoleProvider(t *testing.T) {
	var console bytes.Buffer
	b := newTestBatch(t, Config{Dir: t.TempDir(), Provider: ProviderStdJson, Level: INFO}, &console)

	b.Info("to console too")

	assert.Contains(t, console.String(), "to console too")
}

func TestBatch_StackTraceGoesToExceptionsOnly(t *testing.T) {
	dir := t.TempDir()
	b := newTestBatch(t, Config{Dir: dir}, nil)

	err := errors.Wrap(errors.New("connection refused"), "failed to connect")
	WithErr(b.Logger, err).Error("Error connecting to bot@example.com")

	operational := readFile(t, filepath.Join(dir, "2021", "December.log"))
	exceptions := readFile(t, filepath.Join(dir, "2021", ExceptionsDir, "December.log"))

	assert.Contains(t, operational, `error="failed to connect: connection refused"`)
	assert.NotContains(t, operational, "TestBatch_StackTraceGoesToExceptionsOnly")
	assert.Contains(t, exceptions, "TestBatch_StackTraceGoesToExceptionsOnly")
}

func TestBatch_ErrReportsUnwritableDirectory(t *testing.T) {
	blocked := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(blocked, nil, 0o644))
	b := newTestBatch(t, Config{Dir: blocked}, nil)

	b.Info("cannot be written")

	err := b.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operational log")
}

func TestWithErr_PlainError(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))

	WithErr(l, assert.AnError).Info("failed")

	assert.Contains(t, buf.String(), `"error":"`+assert.AnError.Error()+`"`)
	assert.NotContains(t, buf.String(), `"stack"`)
}

func TestFromContext_WithLoggerInContext(t *testing.T) {
	testLogger := noop.NewNoop()
	ctx := NewContext(context.Background(), testLogger)

	assert.Same(t, testLogger, FromContext(ctx))
}

func TestFromContext_WithoutLoggerInContext(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestInitDefault_SetsGlobalLogger(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	l := noop.NewNoop()
	InitDefault(l)

	assert.Same(t, l, slog.Default())
}

func TestConvertLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, convertLevel(INFO))
	assert.Equal(t, slog.LevelError, convertLevel(ERROR))
	assert.Equal(t, slog.LevelWarn, convertLevel(WARN))
	assert.Equal(t, slog.LevelDebug, convertLevel(DEBUG))
	assert.Equal(t, slog.LevelInfo, convertLevel(Level("bogus")))
}
