package monthly

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// TimeLayout is the timestamp layout of every line.
const TimeLayout = "2006-01-02 15:04:05"

// StackKey is the attribute key carrying an error stack trace.
const StackKey = "stack"

// Handler renders records as
//
//	2006-01-02 15:04:05 [INFO]: source | message key=value
//
// Attributes keyed StackKey are only written when stacks are enabled and
// then follow the line, one frame per line.
type Handler struct {
	mx     *sync.Mutex
	w      io.Writer
	source string
	level  slog.Leveler
	stacks bool
	prefix string
	attrs  []slog.Attr
}

var _ slog.Handler = (*Handler)(nil)

// NewHandler creates a Handler writing records at or above level to w.
func NewHandler(w io.Writer, source string, level slog.Leveler, stacks bool) *Handler {
	return &Handler{
		mx:     &sync.Mutex{},
		w:      w,
		source: source,
		level:  level,
		stacks: stacks,
	}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var (
		buf   bytes.Buffer
		stack string
	)

	buf.WriteString(r.Time.Format(TimeLayout))
	buf.WriteString(" [")
	buf.WriteString(r.Level.String())
	buf.WriteString("]: ")
	buf.WriteString(h.source)
	buf.WriteString(" | ")
	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		if a.Key == StackKey {
			stack = h.stackOf(a)
			continue
		}
		h.writeAttr(&buf, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == StackKey {
			stack = h.stackOf(a)
			return true
		}
		h.writeAttr(&buf, h.prefix, a)
		return true
	})

	if stack != "" {
		buf.WriteByte('\n')
		buf.WriteString(stack)
	}
	buf.WriteByte('\n')

	h.mx.Lock()
	defer h.mx.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" && a.Key != StackKey {
			a.Key = h.prefix + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func (h *Handler) stackOf(a slog.Attr) string {
	if !h.stacks {
		return ""
	}
	return strings.Trim(fmt.Sprintf("%+v", a.Value.Resolve().Any()), "\n")
}

func (h *Handler) writeAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if a.Key == "" && v.Kind() != slog.KindGroup {
		return
	}

	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range v.Group() {
			h.writeAttr(buf, p, ga)
		}
		return
	}

	buf.WriteByte(' ')
	buf.WriteString(prefix)
	buf.WriteString(a.Key)
	buf.WriteByte('=')
	buf.WriteString(quoteIfNeeded(v.String()))
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
