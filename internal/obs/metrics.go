// Package obs records orchestration metrics through OpenTelemetry.
package obs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/warriorcabo/ai-orchestration-system"

// Metrics holds the instruments used by the orchestrator.
// A nil *Metrics records nothing.
type Metrics struct {
	requests metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
	messages metric.Int64Counter
}

// NewMetrics creates instruments on mp, or on the global provider when mp is nil.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	m := mp.Meter(meterName)

	var (
		out Metrics
		err error
	)
	if out.requests, err = m.Int64Counter("aiorch.provider.requests", metric.WithDescription("Provider calls")); err != nil {
		return nil, err
	}
	if out.failures, err = m.Int64Counter("aiorch.provider.failures", metric.WithDescription("Failed provider calls")); err != nil {
		return nil, err
	}
	if out.latency, err = m.Float64Histogram("aiorch.provider.latency_ms", metric.WithDescription("Provider latency (ms)")); err != nil {
		return nil, err
	}
	if out.messages, err = m.Int64Counter("aiorch.messages", metric.WithDescription("Processed messages by final state")); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordProviderCall records one attempt against a provider.
func (m *Metrics) RecordProviderCall(ctx context.Context, provider, stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("ai.provider", provider),
		attribute.String("aiorch.stage", stage),
	)
	m.requests.Add(ctx, 1, attrs)
	m.latency.Record(ctx, float64(d.Microseconds())/1000, attrs)
	if err != nil {
		m.failures.Add(ctx, 1, attrs)
	}
}

// RecordMessage counts a finished message by its final state.
func (m *Metrics) RecordMessage(ctx context.Context, state string) {
	if m == nil {
		return
	}
	m.messages.Add(ctx, 1, metric.WithAttributes(attribute.String("aiorch.state", state)))
}
