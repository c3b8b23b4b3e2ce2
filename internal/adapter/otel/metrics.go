package otel

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "escrowboard"

// Escrow movement kinds.
const (
	EscrowFunded   = "funded"
	EscrowReleased = "released"
	EscrowRefunded = "refunded"
)

// Metrics holds all board metric instruments.
type Metrics struct {
	Operations        metric.Int64Counter
	OperationDuration metric.Float64Histogram
	Escrow            metric.Float64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return newMetrics(otel.Meter(meterName))
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.Operations, err = meter.Int64Counter("escrowboard.operations",
		metric.WithDescription("Board operations by name and outcome code"))
	if err != nil {
		return nil, err
	}

	m.OperationDuration, err = meter.Float64Histogram("escrowboard.operation.duration_seconds",
		metric.WithDescription("Board operation duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.Escrow, err = meter.Float64Counter("escrowboard.escrow.amount",
		metric.WithDescription("Token amounts moved into or out of escrow"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordOperation counts one finished operation. outcome is "ok" or the failure code.
func (m *Metrics) RecordOperation(ctx context.Context, op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	)
	m.Operations.Add(ctx, 1, attrs)
	m.OperationDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordEscrow adds amount to the escrow counter of the given movement kind.
func (m *Metrics) RecordEscrow(ctx context.Context, kind, token string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.Escrow.Add(ctx, amount.InexactFloat64(), metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("token", token),
	))
}
