// Package batch sends an ordered list of messages over a single session.
//
// A run opens one session for the whole list, formats and sends each
// request in order and stops at the first failure. Messages already sent
// stay sent; Result tells how far the run got.
package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pure-golang/mailbatch/logger"
	"github.com/pure-golang/mailbatch/logger/noop"
	"github.com/pure-golang/mailbatch/mail"
	"github.com/pure-golang/mailbatch/mail/smtp"
	"github.com/pure-golang/mailbatch/profile"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/pure-golang/mailbatch/batch")

var rule = strings.Repeat("-", 50)

// Dialer opens the session a run sends through.
type Dialer func(ctx context.Context, p profile.Profile) (mail.Sender, error)

// SMTPDialer dials a real SMTP session for the profile.
func SMTPDialer(opts *smtp.Options) Dialer {
	return func(ctx context.Context, p profile.Profile) (mail.Sender, error) {
		s, err := smtp.Dial(ctx, p.SMTP(), opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Result describes how far a run got.
type Result struct {
	RunID string
	Total int
	Sent  int
}

// Runner executes batches. Log receives one line per outcome and Out the
// human readable progress.
type Runner struct {
	Dial         Dialer
	Log          *slog.Logger
	Out          io.Writer
	HTMLFromFile bool
}

// Run sends requests in order through one session opened for p.
// The first failure aborts the remaining requests and is returned.
func (r *Runner) Run(ctx context.Context, p profile.Profile, requests []mail.Request) (Result, error) {
	res := Result{RunID: uuid.NewString(), Total: len(requests)}
	log := r.logger().With("run_id", res.RunID, "profile", p.Login)

	ctx, span := tracer.Start(ctx, "Batch.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch.run_id", res.RunID),
		attribute.Int("batch.total", res.Total),
	)

	err := r.run(ctx, log, p, requests, &res)
	span.SetAttributes(attribute.Int("batch.sent", res.Sent))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}

	span.SetStatus(codes.Ok, "")
	return res, nil
}

func (r *Runner) run(ctx context.Context, log *slog.Logger, p profile.Profile, requests []mail.Request, res *Result) error {
	r.progress("Starting SMTP connection...")
	sender, err := r.Dial(ctx, p)
	if err != nil {
		logger.WithErr(log, err).Error("Error connecting to " + p.Login)
		r.progress(fmt.Sprintf("Error connecting to %s: %v", p.Login, err))
		return errors.Wrapf(err, "failed to connect to %s", p.Login)
	}
	r.progress("Successfully connected!")
	log.Info("Successfully connected to " + p.Login)

	for i, req := range requests {
		if err := r.deliver(ctx, log, sender, p, req); err != nil {
			if closeErr := sender.Close(); closeErr != nil {
				logger.WithErr(log, closeErr).Error("Error closing session")
			}
			return errors.Wrapf(err, "message %d of %d", i+1, len(requests))
		}
		res.Sent++
	}

	if err := sender.Close(); err != nil {
		logger.WithErr(log, err).Error("Unexpected error closing session")
		r.progress(fmt.Sprintf("Unexpected error (%v), please check Logs for more info.", err))
		return errors.Wrap(err, "failed to close session")
	}
	return nil
}

func (r *Runner) deliver(ctx context.Context, log *slog.Logger, sender mail.Sender, p profile.Profile, req mail.Request) error {
	r.progress(fmt.Sprintf("formatting Message for %s...", req.To))
	msg, err := mail.Format(r.HTMLFromFile, p.From(), req)
	if err == nil {
		r.progress("Sending email...")
		err = sender.Send(ctx, msg)
	}
	if err != nil {
		logger.WithErr(log, err).Error("Error sending message to "+req.To, "to", req.To)
		r.progress(fmt.Sprintf("Error sending message to %s: %v", req.To, err))
		return err
	}

	r.progress("Message sent to " + req.To)
	log.Info("Message sent to "+req.To, "to", req.To)
	return nil
}

func (r *Runner) progress(line string) {
	if r.Out == nil {
		return
	}
	_, _ = fmt.Fprintf(r.Out, "%s\n%s\n", line, rule)
}

func (r *Runner) logger() *slog.Logger {
	if r.Log == nil {
		return noop.NewNoop()
	}
	return r.Log
}
