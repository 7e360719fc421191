// Package metrics records dispatch instruments through OpenTelemetry.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("autodraw-agent/dispatcher")

// DispatchMetrics holds the dispatch counters and the duration histogram.
// A nil *DispatchMetrics records nothing.
type DispatchMetrics struct {
	dispatches   metric.Int64Counter
	failures     metric.Int64Counter
	timeouts     metric.Int64Counter
	placeholders metric.Int64Counter
	reconnects   metric.Int64Counter
	duration     metric.Float64Histogram
}

// DispatchOutcome is what one dispatch reports to the instruments.
type DispatchOutcome struct {
	Command     string
	Class       string
	Success     bool
	TimedOut    bool
	Placeholder bool
	Duration    time.Duration
}

// NewDispatchMetrics creates the instruments on the global meter provider.
func NewDispatchMetrics() (*DispatchMetrics, error) {
	dispatches, err := meter.Int64Counter(
		"autodraw.dispatches",
		metric.WithDescription("Total number of dispatched drawing commands"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"autodraw.dispatch.failures",
		metric.WithDescription("Dispatches that returned success=false"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, err
	}

	timeouts, err := meter.Int64Counter(
		"autodraw.dispatch.timeouts",
		metric.WithDescription("Dispatches whose command was still running at the wait timeout"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, err
	}

	placeholders, err := meter.Int64Counter(
		"autodraw.dispatch.placeholders",
		metric.WithDescription("Block insertions replaced by a placeholder"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, err
	}

	reconnects, err := meter.Int64Counter(
		"autodraw.session.reconnects",
		metric.WithDescription("Host sessions replaced after a failed health check"),
		metric.WithUnit("{reconnect}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"autodraw.dispatch.duration",
		metric.WithDescription("Duration of a dispatch in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &DispatchMetrics{
		dispatches:   dispatches,
		failures:     failures,
		timeouts:     timeouts,
		placeholders: placeholders,
		reconnects:   reconnects,
		duration:     duration,
	}, nil
}

// RecordDispatch records one completed dispatch.
func (m *DispatchMetrics) RecordDispatch(ctx context.Context, out DispatchOutcome) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("command", out.Command),
		attribute.String("class", out.Class),
		attribute.Bool("success", out.Success),
	)
	m.dispatches.Add(ctx, 1, attrs)
	m.duration.Record(ctx, out.Duration.Seconds(), attrs)
	if !out.Success {
		m.failures.Add(ctx, 1, attrs)
	}
	if out.TimedOut {
		m.timeouts.Add(ctx, 1, attrs)
	}
	if out.Placeholder {
		m.placeholders.Add(ctx, 1, attrs)
	}
}

// RecordReconnect records one session reconnect.
func (m *DispatchMetrics) RecordReconnect(ctx context.Context) {
	if m == nil {
		return
	}
	m.reconnects.Add(ctx, 1)
}
