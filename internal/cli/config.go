package cli

import (
	"github.com/pure-golang/mailbatch/logger"
	"github.com/pure-golang/mailbatch/mail/smtp"
	"github.com/pure-golang/mailbatch/metrics"
	"github.com/pure-golang/mailbatch/tracing/otlp"
)

// Config is read from the environment; flags override it.
type Config struct {
	Profiles string `envconfig:"MAILBATCH_PROFILES" default:"smtp_credentials.yaml"`

	Logger  logger.Config
	SMTP    smtp.Options
	Tracing otlp.Config
	Metrics metrics.Config
}
