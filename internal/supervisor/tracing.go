// Tracing instrumentation for supervisor runs.
package supervisor

import (
	"context"

	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/omnisupply/internal/agent"
)

// startRunSpan starts the root span of one request.
func startRunSpan(ctx context.Context, r *Report) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "supervisor.execute")
	span.SetAttributes(attribute.String("supervisor.request_id", r.ID))
	if tracer.Debug() {
		span.SetAttributes(attribute.String("supervisor.query", r.Query))
	}
	return ctx, span
}

// endRunSpan ends the root span with the outcome.
func endRunSpan(span trace.Span, r *Report, err error) {
	span.SetAttributes(
		attribute.StringSlice("supervisor.agents", r.Agents),
		attribute.Int("supervisor.succeeded", len(r.Succeeded())),
		attribute.Bool("supervisor.synthesized", r.Summary != nil),
	)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// markPhase tags the current node span with the phase it completed.
func markPhase(ctx context.Context, p Phase) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("supervisor.phase", string(p)))
}

// startDispatchSpan starts a span around one agent dispatch.
func startDispatchSpan(ctx context.Context, name string, priorCount int) (context.Context, trace.Span) {
	ctx, span := telemetry.GetTracer().StartSpan(ctx, "supervisor.dispatch")
	span.SetAttributes(
		attribute.String("agent.name", name),
		attribute.Int("agent.prior_count", priorCount),
	)
	return ctx, span
}

// endDispatchSpan ends the dispatch span.
func endDispatchSpan(span trace.Span, res agent.Result) {
	span.SetAttributes(
		attribute.Bool("agent.success", res.Success),
		attribute.Bool("agent.timed_out", res.TimedOut),
	)
	span.End()
}
