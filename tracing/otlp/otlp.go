// Package otlp exports spans over OTLP/HTTP.
package otlp

import (
	"context"

	"github.com/pkg/errors"
	"github.com/pure-golang/mailbatch/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
)

var _ tracing.Provider = (*Provider)(nil)

type Config struct {
	EndPoint    string `envconfig:"TRACING_ENDPOINT"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"mailbatch"`
	AppVersion  string `envconfig:"APP_VERSION" default:"dev"`
}

// Enabled reports whether an endpoint is configured.
func (c Config) Enabled() bool {
	return c.EndPoint != ""
}

// Provider flushes pending spans on Close.
type Provider struct {
	*tracesdk.TracerProvider
}

func (p *Provider) Close() error {
	ctx := context.Background()
	flushErr := p.ForceFlush(ctx)
	shutdownErr := p.Shutdown(ctx)

	if flushErr != nil {
		if shutdownErr != nil {
			return errors.Wrap(flushErr, "otlp force flush failed (also shutdown failed)")
		}
		return errors.Wrap(flushErr, "otlp force flush failed")
	}
	return errors.Wrap(shutdownErr, "shutdown otlp")
}

func NewProviderBuilder(conf Config) tracing.ProviderBuilder {
	return func(ctx context.Context) (tracing.Provider, error) {
		if conf.EndPoint == "" {
			return nil, errors.New("empty tracing endpoint")
		}
		if conf.ServiceName == "" {
			return nil, errors.New("service name is empty")
		}

		exp, err := otlptrace.New(ctx, otlptracehttp.NewClient(
			otlptracehttp.WithEndpointURL(conf.EndPoint),
		))
		if err != nil {
			return nil, errors.Wrap(err, "failed to create otlp exporter")
		}

		tp := tracesdk.NewTracerProvider(
			tracesdk.WithBatcher(exp),
			tracesdk.WithResource(resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceNameKey.String(conf.ServiceName),
				semconv.ServiceVersionKey.String(conf.AppVersion),
			)),
			tracesdk.WithSampler(tracesdk.AlwaysSample()),
		)

		return &Provider{TracerProvider: tp}, nil
	}
}
