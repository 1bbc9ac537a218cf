// Package tracing wraps the OpenTelemetry tracer used to span each of
// C1-C5 within a build run, so a slow calibration or priority pass is
// visible in distributed traces alongside the Store/Notifier calls at the
// edges.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jordigilh/territory-assignment-core"

// StartComponent starts a span for one of C1..C5, tagged with the build id.
func StartComponent(ctx context.Context, buildID, component string) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, component, trace.WithAttributes(
		attribute.String("build_id", buildID),
		attribute.String("component", component),
	))
}
