// Tracing instrumentation for agent workflows.
package agent

import (
	"context"

	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// startAgentSpan starts a span for one agent invocation.
func startAgentSpan(ctx context.Context, name, query string) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "agent."+name)
	span.SetAttributes(attribute.String("agent.name", name))
	if tracer.Debug() {
		span.SetAttributes(attribute.String("agent.query", query))
	}
	return ctx, span
}

// endAgentSpan ends the agent span with result info.
func endAgentSpan(span trace.Span, res Result) {
	span.SetAttributes(
		attribute.Bool("agent.success", res.Success),
		attribute.Bool("agent.timed_out", res.TimedOut),
		attribute.Int("agent.insights", len(res.Insights)),
	)
	if res.Error != "" {
		span.SetAttributes(attribute.String("agent.error", res.Error))
	}
	span.End()
}

// startNodeSpan starts a span for a graph node.
func startNodeSpan(ctx context.Context, node NodeName) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "node."+string(node))
	span.SetAttributes(attribute.String("node.name", string(node)))
	return ctx, span
}

// endNodeSpan ends the node span.
func endNodeSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
