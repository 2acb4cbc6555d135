// Package monthly implements an append-only log file sink partitioned by
// calendar year and month, plus a slog handler that renders single-line
// records into it.
//
// A stream rooted at base with subdirectory sub writes to
//
//	<base>/<YYYY>/<sub>/<Month>.log
//
// where Month is the full English month name. Files and directories are
// created on first write and the sink moves to a new file when the calendar
// month changes.
package monthly

import (
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Option configures a Writer.
type Option func(*Writer)

// WithClock overrides the time source used to pick the current period.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

// Writer is an io.WriteCloser over the current period's log file.
type Writer struct {
	mx     sync.Mutex
	base   string
	sub    string
	now    func() time.Time
	file   *os.File
	period int
	err    error
}

// New creates a Writer. Nothing touches the filesystem until the first Write.
func New(base, sub string, opts ...Option) *Writer {
	w := &Writer{
		base: base,
		sub:  sub,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path returns the file the writer would use at t.
func (w *Writer) Path(t time.Time) string {
	return filepath.Join(w.base, strconv.Itoa(t.Year()), w.sub, t.Month().String()+".log")
}

// Write appends p to the current period's file, opening or rotating it first.
func (w *Writer) Write(p []byte) (int, error) {
	w.mx.Lock()
	defer w.mx.Unlock()

	now := w.now()
	period := now.Year()*12 + int(now.Month())
	if w.file == nil || period != w.period {
		if err := w.rotate(now, period); err != nil {
			w.err = err
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	if err != nil {
		w.err = errors.Wrapf(err, "failed to write %s", w.file.Name())
		return n, w.err
	}
	return n, nil
}

// Err returns the last write failure, if any.
func (w *Writer) Err() error {
	w.mx.Lock()
	defer w.mx.Unlock()

	return w.err
}

// Close closes the current file. The writer reopens on the next Write.
func (w *Writer) Close() error {
	w.mx.Lock()
	defer w.mx.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return errors.Wrap(err, "failed to close log file")
}

func (w *Writer) rotate(now time.Time, period int) error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return errors.Wrap(err, "failed to close previous log file")
		}
		w.file = nil
	}

	file, err := openAppend(w.Path(now))
	if err != nil {
		return err
	}
	w.file = file
	w.period = period
	return nil
}

// openAppend opens path for appending. A missing directory is created and the
// open is retried once.
func openAppend(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err == nil {
		return file, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, errors.Wrapf(err, "failed to create log directory for %s", path)
	}

	file, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	return file, nil
}
