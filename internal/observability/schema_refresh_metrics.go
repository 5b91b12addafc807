package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RefreshOutcome labels one attempt to load the type definitions file.
type RefreshOutcome string

const (
	// RefreshSwapped means a new model replaced the active one.
	RefreshSwapped RefreshOutcome = "swapped"
	// RefreshUnchanged means the file fingerprint matched the active or the
	// last rejected model.
	RefreshUnchanged RefreshOutcome = "unchanged"
	// RefreshRejected means the definitions did not build; the previous
	// model stays active.
	RefreshRejected RefreshOutcome = "rejected"
	// RefreshUnreadable means the file could not be read.
	RefreshUnreadable RefreshOutcome = "unreadable"
)

// SchemaRefreshMetrics tracks schema model rebuilds and describes the active
// model.
type SchemaRefreshMetrics struct {
	attempts metric.Int64Counter
	duration metric.Float64Histogram

	lastSwapUnix atomic.Int64
	entities     atomic.Int64
}

// InitSchemaRefreshMetrics registers the schema refresh instruments on the
// global meter provider.
func InitSchemaRefreshMetrics(logger *slog.Logger) (*SchemaRefreshMetrics, error) {
	m, err := NewSchemaRefreshMetrics(otel.Meter("neo4j-graphql/schemarefresh"))
	if err != nil {
		return nil, err
	}
	logger.Info("schema refresh metrics initialized")
	return m, nil
}

// NewSchemaRefreshMetrics registers the schema refresh instruments on meter.
func NewSchemaRefreshMetrics(meter metric.Meter) (*SchemaRefreshMetrics, error) {
	m := &SchemaRefreshMetrics{}

	var err error
	if m.attempts, err = meter.Int64Counter(
		"schema.refresh.total",
		metric.WithDescription("Type definition loads, by trigger and outcome"),
	); err != nil {
		return nil, fmt.Errorf("failed to create schema refresh counter: %w", err)
	}
	if m.duration, err = meter.Float64Histogram(
		"schema.refresh.duration",
		metric.WithDescription("Time to read and build the type definitions"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create schema refresh duration histogram: %w", err)
	}

	lastSwap, err := meter.Int64ObservableGauge(
		"schema.model.last_swap_unix",
		metric.WithDescription("Unix time the active schema model was installed"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema swap gauge: %w", err)
	}
	entities, err := meter.Int64ObservableGauge(
		"schema.model.entities",
		metric.WithDescription("Entities in the active schema model"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema entities gauge: %w", err)
	}

	if _, err = meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		if swapped := m.lastSwapUnix.Load(); swapped > 0 {
			observer.ObserveInt64(lastSwap, swapped)
			observer.ObserveInt64(entities, m.entities.Load())
		}
		return nil
	}, lastSwap, entities); err != nil {
		return nil, fmt.Errorf("failed to register schema model gauge callback: %w", err)
	}
	return m, nil
}

// RecordRefresh records one load of the type definitions. entities is the
// size of the new model and only read when outcome is RefreshSwapped.
func (m *SchemaRefreshMetrics) RecordRefresh(ctx context.Context, trigger string, outcome RefreshOutcome, duration time.Duration, entities int) {
	attrs := metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("outcome", string(outcome)),
	)
	m.attempts.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(duration.Microseconds())/1000, attrs)

	if outcome == RefreshSwapped {
		m.entities.Store(int64(entities))
		m.lastSwapUnix.Store(time.Now().Unix())
	}
}
