// Package metrics pushes the metrics of a finished batch run to a
// Prometheus Pushgateway.
package metrics

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

type Config struct {
	PushURL string        `envconfig:"METRICS_PUSH_URL"`
	Job     string        `envconfig:"METRICS_JOB" default:"mailbatch"`
	Timeout time.Duration `envconfig:"METRICS_PUSH_TIMEOUT" default:"10s"`
}

// Enabled reports whether a Pushgateway is configured.
func (c Config) Enabled() bool {
	return c.PushURL != ""
}

// Pusher sends everything gathered from its registry, grouped by profile.
type Pusher struct {
	config   Config
	gatherer prometheus.Gatherer
}

// New creates a Pusher; a nil gatherer means prometheus.DefaultGatherer.
func New(config Config, gatherer prometheus.Gatherer) *Pusher {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Pusher{config: config, gatherer: gatherer}
}

// Push replaces the metrics of the job/profile group on the gateway.
func (p *Pusher) Push(ctx context.Context, profile string) error {
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	job := p.config.Job
	if job == "" {
		job = "mailbatch"
	}

	pusher := push.New(p.config.PushURL, job).
		Gatherer(p.gatherer).
		Grouping("profile", profile)

	if err := pusher.PushContext(ctx); err != nil {
		return errors.Wrapf(err, "failed to push metrics to %s", p.config.PushURL)
	}
	return nil
}
