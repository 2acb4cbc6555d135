package smtp

import (
	"context"
	"crypto/tls"
	"net"
	"net/smtp"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/pure-golang/mailbatch/mail"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ mail.Sender = (*Session)(nil)

var errSessionClosed = errors.New("session is closed")

// Session is one authenticated SMTP connection reused for many messages.
// It is not meant to be shared between goroutines; the mutex only guards
// against Close racing a Send.
type Session struct {
	mx     sync.Mutex
	cfg    Config
	client *smtp.Client
	closed bool
}

// Dial opens a session: TCP connect, greeting, EHLO, STARTTLS (when
// opts.TLS) and AUTH PLAIN (when cfg.Username is set). Any failing step
// closes the connection and returns a *ConnectError.
func Dial(ctx context.Context, cfg Config, opts *Options) (*Session, error) {
	o := DefaultOptions()
	if opts != nil {
		o = *opts
	}

	ctx, span := tracer.Start(ctx, "SMTP.Dial", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("smtp.host", cfg.Host),
		attribute.Int("smtp.port", cfg.Port),
		attribute.Bool("smtp.tls", o.TLS),
		attribute.Bool("smtp.auth", cfg.Username != ""),
	)

	s, err := dial(ctx, cfg, o)
	recordSession(err)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return s, nil
}

func dial(ctx context.Context, cfg Config, o Options) (*Session, error) {
	fail := func(step string, err error) error {
		return &ConnectError{Step: step, Account: cfg.Username, Err: err}
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := &net.Dialer{Timeout: o.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fail(StepConnect, errors.Wrapf(err, "failed to connect to %s", addr))
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fail(StepGreeting, errors.Wrap(err, "failed to read greeting"))
	}

	abort := func(step string, err error) error {
		_ = client.Close()
		return fail(step, err)
	}

	if err := client.Hello(o.LocalName); err != nil {
		return nil, abort(StepHello, errors.Wrap(err, "failed to send EHLO"))
	}

	if o.TLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return nil, abort(StepStartTLS, errors.New("server does not support STARTTLS"))
		}
		tlsConfig := &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: o.Insecure, // #nosec G402 -- controlled by config, user's responsibility
			MinVersion:         tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return nil, abort(StepStartTLS, errors.Wrap(err, "failed to start TLS"))
		}
	}

	if cfg.Username != "" {
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		if err := client.Auth(auth); err != nil {
			return nil, abort(StepAuth, errors.Wrap(err, "failed to authenticate"))
		}
	}

	return &Session{cfg: cfg, client: client}, nil
}

// Send transmits msg to its envelope recipient. Failures are *SendError.
func (s *Session) Send(ctx context.Context, msg *mail.Message) error {
	_, span := tracer.Start(ctx, "SMTP.Send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("smtp.from", msg.From),
		attribute.String("smtp.to", msg.To),
		attribute.Int("smtp.size", len(msg.Raw)),
	)

	start := time.Now()
	err := s.send(ctx, msg)
	recordSend(err, time.Since(start).Seconds())
	if err != nil {
		recordError(span, err)
		return &SendError{To: msg.To, Err: err}
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *Session) send(ctx context.Context, msg *mail.Message) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "send canceled")
	}

	s.mx.Lock()
	defer s.mx.Unlock()

	if s.closed {
		return errSessionClosed
	}

	if err := s.client.Mail(msg.From); err != nil {
		return errors.Wrap(err, "failed to set sender")
	}
	if err := s.client.Rcpt(msg.To); err != nil {
		return errors.Wrapf(err, "failed to set recipient: %s", msg.To)
	}

	w, err := s.client.Data()
	if err != nil {
		return errors.Wrap(err, "failed to get data writer")
	}
	if _, err := w.Write(msg.Raw); err != nil {
		_ = w.Close()
		return errors.Wrap(err, "failed to write message")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "message not accepted")
	}
	return nil
}

// Close ends the session with QUIT, dropping the connection if QUIT fails.
// Calling Close more than once is a no-op.
func (s *Session) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.client.Quit(); err != nil {
		_ = s.client.Close()
		return errors.Wrap(err, "failed to quit")
	}
	return nil
}
