package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/pure-golang/mailbatch/logger/charm"
	"github.com/pure-golang/mailbatch/logger/devslog"
	"github.com/pure-golang/mailbatch/logger/monthly"
	"github.com/pure-golang/mailbatch/logger/noop"
	"github.com/pure-golang/mailbatch/logger/stdjson"
	"go.opentelemetry.io/otel"
)

type Level string
type Provider string
type contextKeyT string

var contextKey = contextKeyT("github.com/pure-golang/mailbatch/logger")

const (
	INFO  Level = "info"
	ERROR Level = "error"
	WARN  Level = "warn"
	DEBUG Level = "debug"

	ProviderDevSlog Provider = "dev"      // colored console
	ProviderStdJson Provider = "std_json" // machine readable console
	ProviderCharm   Provider = "charm"    // compact terminal output
	ProviderNoop    Provider = "noop"     // files only
)

// ExceptionsDir is the per-year subdirectory of the exceptions stream.
const ExceptionsDir = "Exceptions"

type Config struct {
	Provider Provider `envconfig:"LOG_PROVIDER" default:"noop"`
	Level    Level    `envconfig:"LOG_LEVEL" default:"info"`
	Dir      string   `envconfig:"LOG_DIR" default:"Logs"`
	Source   string   `envconfig:"LOG_SOURCE" default:"mailbatch"`
}

// NewDefault creates the console logger selected by Config. Console output
// goes to stderr, stdout is reserved for progress lines.
func NewDefault(c Config) *slog.Logger {
	return newConsole(c, os.Stderr)
}

func newConsole(c Config, w io.Writer) *slog.Logger {
	level := convertLevel(c.Level)
	switch c.Provider {
	case ProviderDevSlog:
		return devslog.New(w, level)
	case ProviderStdJson:
		return stdjson.New(w, level)
	case ProviderCharm:
		return charm.New(w, level)
	case ProviderNoop:
		fallthrough
	default:
		return noop.NewNoop()
	}
}

// InitDefault sets l as the process default logger and routes otel errors to it.
func InitDefault(l *slog.Logger) {
	slog.SetDefault(l)
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		slog.Default().Error(err.Error())
	}))
}

// Batch is the logging context of one batch run: an operational stream
// (info and above), an exceptions stream (errors only, with stack traces) and
// the optional console. Close flushes both files.
type Batch struct {
	*slog.Logger

	operational *monthly.Writer
	exceptions  *monthly.Writer
}

// NewBatch builds the logging context. Log files are created on first write.
func NewBatch(c Config, opts ...monthly.Option) *Batch {
	return newBatch(c, os.Stderr, opts...)
}

func newBatch(c Config, console io.Writer, opts ...monthly.Option) *Batch {
	source := c.Source
	if source == "" {
		source = "mailbatch"
	}

	b := &Batch{
		operational: monthly.New(c.Dir, "", opts...),
		exceptions:  monthly.New(c.Dir, ExceptionsDir, opts...),
	}

	handlers := []slog.Handler{
		monthly.NewHandler(b.operational, source, slog.LevelInfo, false),
		monthly.NewHandler(b.exceptions, source, slog.LevelError, true),
	}
	switch c.Provider {
	case ProviderDevSlog, ProviderStdJson, ProviderCharm:
		handlers = append(handlers, newConsole(c, console).Handler())
	}

	b.Logger = slog.New(newMultiHandler(handlers...))
	return b
}

// Err reports the first failure of either log file.
func (b *Batch) Err() error {
	if err := b.operational.Err(); err != nil {
		return errors.Wrap(err, "operational log")
	}
	if err := b.exceptions.Err(); err != nil {
		return errors.Wrap(err, "exceptions log")
	}
	return nil
}

// Close closes both log files.
func (b *Batch) Close() error {
	opErr := b.operational.Close()
	excErr := b.exceptions.Close()
	if opErr != nil {
		return opErr
	}
	return excErr
}

// FromContext extract logger from context if exists or return default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey).(*slog.Logger); ok {
		return l
	}

	return slog.Default()
}

// NewContext pack logger into context.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey, l)
}

// WithErr attaches err and, for github.com/pkg/errors values, its stack trace.
func WithErr(l *slog.Logger, err error) *slog.Logger {
	var stackTracer interface {
		StackTrace() errors.StackTrace
	}

	if errors.As(err, &stackTracer) {
		l = l.With(monthly.StackKey, stackTracer.StackTrace())
	}

	return l.With("error", err.Error())
}

func convertLevel(level Level) slog.Level {
	switch level {
	case INFO:
		return slog.LevelInfo
	case ERROR:
		return slog.LevelError
	case WARN:
		return slog.LevelWarn
	case DEBUG:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
