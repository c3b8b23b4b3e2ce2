package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "escrowboard"

// StartOperationSpan starts a span for one board operation.
func StartOperationSpan(ctx context.Context, op, taskName, caller string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "board."+op,
		trace.WithAttributes(
			attribute.String("task.name", taskName),
			attribute.String("board.caller", caller),
		),
	)
}

// StartTransferSpan starts a span for a ledger transfer.
func StartTransferSpan(ctx context.Context, token, from, to string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "ledger.transfer",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ledger.token", token),
			attribute.String("ledger.from", from),
			attribute.String("ledger.to", to),
		),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
