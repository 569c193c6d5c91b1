// Tracing instrumentation: one span per LLM call.
//
// DESIGN: The span wraps the whole pipeline and must be closed on every
// exit path: callers defer EndLLMSpan immediately after StartLLMSpan so
// success, error and early-return paths all close it. Agent attributes
// are emitted under both the legacy agent.* and the current profile.*
// namespaces during the migration window.
package monitoring

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/trustgate/agent-gateway"

// LLMCall describes the call a span is opened for.
type LLMCall struct {
	RouteCategory string // e.g. "llm_proxy"
	Provider      string
	Model         string
	Stream        bool

	// Agent attributes, zero-valued when no agent is bound.
	AgentID     string
	AgentName   string
	AgentLabels map[string]string
}

// StartLLMSpan opens the pipeline span for one LLM call.
func StartLLMSpan(ctx context.Context, call LLMCall) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "llm.call")

	attrs := []attribute.KeyValue{
		attribute.String("route.category", call.RouteCategory),
		attribute.String("llm.provider", call.Provider),
		attribute.String("llm.model", call.Model),
		attribute.Bool("llm.stream", call.Stream),
	}

	if call.AgentID != "" {
		attrs = append(attrs,
			attribute.String("agent.id", call.AgentID),
			attribute.String("profile.id", call.AgentID),
			attribute.String("agent.name", call.AgentName),
			attribute.String("profile.name", call.AgentName),
		)
		for k, v := range call.AgentLabels {
			attrs = append(attrs,
				attribute.String("agent.labels."+k, v),
				attribute.String("profile.labels."+k, v),
			)
		}
	}

	span.SetAttributes(attrs...)
	return ctx, span
}

// RecordLLMUsage attaches the provider-reported token usage to the call
// span once the response body is available.
func RecordLLMUsage(span trace.Span, input, output, total int) {
	span.SetAttributes(
		attribute.Int("llm.usage.input_tokens", input),
		attribute.Int("llm.usage.output_tokens", output),
		attribute.Int("llm.usage.total_tokens", total),
	)
}

// EndLLMSpan closes the span, marking it failed when err is non-nil.
// Upstream provider errors are recorded on the span but never
// suppressed; they surface to the caller unchanged.
func EndLLMSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
