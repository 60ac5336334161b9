// Package telemetry installs the global OpenTelemetry tracer provider.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ammiranda/ordered_tree/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

// ServiceName identifies this service in exported spans
const ServiceName = "ordered-tree"

// ErrUnknownExporter is returned for an unsupported TRACE_EXPORTER value
var ErrUnknownExporter = errors.New("unknown trace exporter")

// Shutdown flushes and stops the tracer provider
type Shutdown func(ctx context.Context) error

// Setup reads TRACE_EXPORTER (none or stdout, default none) and installs a
// tracer provider. With "none" the global no-op provider is left in place.
func Setup(ctx context.Context, provider config.Provider) (Shutdown, error) {
	exporterName := "none"
	if v, err := provider.GetString(ctx, "TRACE_EXPORTER"); err == nil {
		exporterName = strings.ToLower(v)
	}

	var exporter trace.SpanExporter
	var err error
	switch exporterName {
	case "none":
		return func(context.Context) error { return nil }, nil
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, exporterName)
	}
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", ServiceName),
		attribute.String("deployment.environment", string(provider.GetEnvironment())),
	)

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
