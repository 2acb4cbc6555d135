// Package tracing installs the process-wide trace provider.
package tracing

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type Provider interface {
	trace.TracerProvider
	io.Closer
}

// ProviderBuilder hides how a concrete provider is configured.
type ProviderBuilder func(ctx context.Context) (Provider, error)

// Init builds the provider and installs it globally. On failure the noop
// provider is returned together with the error, so callers may keep going
// without traces.
func Init(ctx context.Context, build ProviderBuilder) (Provider, error) {
	provider, err := build(ctx)
	if err != nil {
		return NoopProvider{}, errors.Wrap(err, "failed to load tracing provider")
	}

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return provider, nil
}

// NoopProvider drops every span.
type NoopProvider struct{ noop.TracerProvider }

func (NoopProvider) Close() error { return nil }
