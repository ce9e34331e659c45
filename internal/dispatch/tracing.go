package dispatch

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ShayCichocki/fanout/pkg/models"
)

var tracer = otel.Tracer("github.com/ShayCichocki/fanout/internal/dispatch")

// startSubPlanSpan starts a span for one sub-plan execution.
func startSubPlanSpan(ctx context.Context, sub *models.Plan) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "subplan.execute")
	span.SetAttributes(
		attribute.String("subplan.id", sub.ID),
		attribute.String("subplan.parent_id", sub.ParentID),
		attribute.String("subplan.agent", sub.LeadID),
		attribute.Int("subplan.steps", len(sub.Steps)),
	)
	return ctx, span
}

// endSubPlanSpan ends the span with the sub-plan's outcome.
func endSubPlanSpan(span trace.Span, result *models.Plan, err error) {
	span.SetAttributes(
		attribute.String("subplan.status", string(result.Status)),
		attribute.Int("subplan.tool_calls", result.TotalToolCalls),
		attribute.Int64("subplan.duration_ms", result.TotalDurationMs),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
