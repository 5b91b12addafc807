package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EngineMetrics holds metrics for compilation and statement execution.
// A nil *EngineMetrics records nothing.
type EngineMetrics struct {
	compileDuration   metric.Float64Histogram
	statementDuration metric.Float64Histogram
	operations        metric.Int64Counter
	nodesCreated      metric.Int64Counter
	nodesDeleted      metric.Int64Counter
	relsCreated       metric.Int64Counter
	relsDeleted       metric.Int64Counter
	events            metric.Int64Counter
}

// InitEngineMetrics initializes engine metrics.
func InitEngineMetrics(logger *slog.Logger) (*EngineMetrics, error) {
	meter := otel.Meter("neo4j-graphql/engine")

	compileDuration, err := meter.Float64Histogram(
		"engine.compile.duration",
		metric.WithDescription("Duration of plan compilation and statement emission in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create compile duration histogram: %w", err)
	}

	statementDuration, err := meter.Float64Histogram(
		"engine.statement.duration",
		metric.WithDescription("Duration of Cypher statement execution in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create statement duration histogram: %w", err)
	}

	operations, err := meter.Int64Counter(
		"engine.operations.total",
		metric.WithDescription("Total number of executed root fields"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operations counter: %w", err)
	}

	nodesCreated, err := meter.Int64Counter("engine.nodes.created.total",
		metric.WithDescription("Nodes created by mutations"))
	if err != nil {
		return nil, fmt.Errorf("failed to create nodes created counter: %w", err)
	}
	nodesDeleted, err := meter.Int64Counter("engine.nodes.deleted.total",
		metric.WithDescription("Nodes deleted by mutations"))
	if err != nil {
		return nil, fmt.Errorf("failed to create nodes deleted counter: %w", err)
	}
	relsCreated, err := meter.Int64Counter("engine.relationships.created.total",
		metric.WithDescription("Relationships created by mutations"))
	if err != nil {
		return nil, fmt.Errorf("failed to create relationships created counter: %w", err)
	}
	relsDeleted, err := meter.Int64Counter("engine.relationships.deleted.total",
		metric.WithDescription("Relationships deleted by mutations"))
	if err != nil {
		return nil, fmt.Errorf("failed to create relationships deleted counter: %w", err)
	}

	events, err := meter.Int64Counter(
		"engine.events.total",
		metric.WithDescription("Change events handed to the event sink"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create events counter: %w", err)
	}

	logger.Info("engine metrics initialized")
	return &EngineMetrics{
		compileDuration:   compileDuration,
		statementDuration: statementDuration,
		operations:        operations,
		nodesCreated:      nodesCreated,
		nodesDeleted:      nodesDeleted,
		relsCreated:       relsCreated,
		relsDeleted:       relsDeleted,
		events:            events,
	}, nil
}

// RecordCompile records how long a root field took to compile.
func (m *EngineMetrics) RecordCompile(ctx context.Context, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.compileDuration.Record(ctx, float64(duration.Microseconds())/1000, metric.WithAttributes(
		attribute.String("operation_type", kind),
	))
}

// RecordStatement records one statement execution.
func (m *EngineMetrics) RecordStatement(ctx context.Context, mode string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.statementDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("access_mode", mode),
		attribute.Bool("success", success),
	))
}

// RecordOperation counts a root field by kind and outcome.
func (m *EngineMetrics) RecordOperation(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	m.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation_type", kind),
		attribute.String("outcome", outcome),
	))
}

// RecordWrites adds the database write counters of a mutation.
func (m *EngineMetrics) RecordWrites(ctx context.Context, typeName string, nodesCreated, nodesDeleted, relsCreated, relsDeleted int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("type", typeName))
	m.nodesCreated.Add(ctx, int64(nodesCreated), attrs)
	m.nodesDeleted.Add(ctx, int64(nodesDeleted), attrs)
	m.relsCreated.Add(ctx, int64(relsCreated), attrs)
	m.relsDeleted.Add(ctx, int64(relsDeleted), attrs)
}

// RecordEvents counts change events by delivery result.
func (m *EngineMetrics) RecordEvents(ctx context.Context, count int, delivered bool) {
	if m == nil {
		return
	}
	m.events.Add(ctx, int64(count), metric.WithAttributes(attribute.Bool("delivered", delivered)))
}
