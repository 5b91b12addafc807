// Package engine executes parsed GraphQL operations against the graph
// database. Each root field compiles to one Cypher statement that runs in
// its own transaction.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"neo4j-graphql/internal/auth"
	"neo4j-graphql/internal/dbexec"
	"neo4j-graphql/internal/events"
	"neo4j-graphql/internal/logging"
	"neo4j-graphql/internal/mutation"
	"neo4j-graphql/internal/observability"
	"neo4j-graphql/internal/plan"
	"neo4j-graphql/internal/scalars"
	"neo4j-graphql/internal/schema"
	"neo4j-graphql/internal/selection"
	"neo4j-graphql/internal/validation"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OperationKind is the GraphQL operation type.
type OperationKind string

const (
	KindQuery    OperationKind = "query"
	KindMutation OperationKind = "mutation"
)

const typenameField = "__typename"

// Operation is a parsed operation ready for execution.
type Operation struct {
	Kind   OperationKind
	Fields []*selection.Field
	// Bookmarks make the first statement observe earlier writes.
	Bookmarks []string
}

// Result holds the response data keyed by root field, the errors of failed
// root fields and the bookmark of the last write.
type Result struct {
	Data     map[string]any
	Errors   []*FieldError
	Bookmark string
}

// ModelSource supplies the current schema model.
type ModelSource interface {
	Model() *schema.Model
}

// StaticModel serves a fixed model.
type StaticModel struct{ M *schema.Model }

// Model returns the fixed model.
func (s StaticModel) Model() *schema.Model { return s.M }

// Config wires the engine's collaborators.
type Config struct {
	Models    ModelSource
	Executor  dbexec.Executor
	Sink      events.Sink
	Callbacks map[string]mutation.Callback
	Limits    plan.Limits
	Scalars   *scalars.Registry
	Logger    *logging.Logger
	Metrics   *observability.EngineMetrics
	Now       func() time.Time
}

// Engine is safe for concurrent use; every operation gets its own compilers.
type Engine struct {
	models    ModelSource
	executor  dbexec.Executor
	sink      events.Sink
	callbacks map[string]mutation.Callback
	limits    plan.Limits
	scalars   *scalars.Registry
	logger    *logging.Logger
	metrics   *observability.EngineMetrics
	now       func() time.Time
	tracer    trace.Tracer
}

// ErrNoModel is returned when no schema model is loaded.
var ErrNoModel = errors.New("engine: no schema model loaded")

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Models == nil {
		return nil, fmt.Errorf("engine: model source is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("engine: executor is required")
	}
	e := &Engine{
		models:    cfg.Models,
		executor:  cfg.Executor,
		sink:      cfg.Sink,
		callbacks: cfg.Callbacks,
		limits:    cfg.Limits,
		scalars:   cfg.Scalars,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
		tracer:    otel.Tracer("neo4j-graphql/engine"),
	}
	if e.scalars == nil {
		e.scalars = scalars.Default()
	}
	if e.logger == nil {
		e.logger = &logging.Logger{Logger: slog.Default()}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Execute runs every root field of op. Root fields are independent: a
// failing field yields a null entry and a FieldError while the others
// still run. Mutation fields run in document order and each one observes
// the writes of the fields before it.
func (e *Engine) Execute(ctx context.Context, op Operation) *Result {
	res := &Result{Data: make(map[string]any, len(op.Fields))}
	model := e.models.Model()
	authCtx := auth.FromContext(ctx)
	logger := e.requestLogger(ctx)

	ctx, span := e.tracer.Start(ctx, "graphql."+string(op.Kind), trace.WithAttributes(
		attribute.String("graphql.operation.type", string(op.Kind)),
		attribute.Int("graphql.root_fields", len(op.Fields)),
	))
	defer span.End()

	bookmarks := op.Bookmarks
	for _, field := range op.Fields {
		key := field.Key()
		if field.Name == typenameField {
			res.Data[key] = rootTypename(op.Kind)
			continue
		}
		if model == nil {
			res.Data[key] = nil
			res.Errors = append(res.Errors, &FieldError{Field: key, Err: ErrNoModel})
			continue
		}

		call := &fieldCall{
			model:     model,
			auth:      authCtx,
			field:     field,
			bookmarks: bookmarks,
			logger:    logger.WithRootField(string(op.Kind), key),
		}
		var (
			value any
			err   error
		)
		if op.Kind == KindMutation {
			value, err = e.mutate(ctx, call)
		} else {
			value, err = e.query(ctx, call)
		}
		e.metrics.RecordOperation(ctx, string(op.Kind), outcome(err))

		if err != nil {
			res.Data[key] = nil
			res.Errors = append(res.Errors, &FieldError{Field: key, Err: err})
			span.RecordError(err)
			call.logger.Debug("root field failed", slog.String("error", err.Error()))
			continue
		}
		res.Data[key] = value
		if call.bookmark != "" {
			res.Bookmark = call.bookmark
			bookmarks = []string{call.bookmark}
		}
	}
	if len(res.Errors) > 0 {
		span.SetStatus(codes.Error, res.Errors[0].Error())
	}
	return res
}

// fieldCall carries the state of one root field through compilation and
// execution.
type fieldCall struct {
	model     *schema.Model
	auth      *auth.Context
	field     *selection.Field
	bookmarks []string
	logger    *logging.Logger
	bookmark  string
}

func (e *Engine) requestLogger(ctx context.Context) *logging.Logger {
	if id := logging.GetRequestID(ctx); id != "" {
		return e.logger.WithRequestID(id)
	}
	return e.logger
}

// run executes a statement and maps the engine's in-statement sentinels
// back to their errors.
func (e *Engine) run(ctx context.Context, call *fieldCall, req dbexec.Request) (*dbexec.Result, error) {
	start := time.Now()
	call.logger.Debug("executing statement",
		slog.String("mode", req.Mode.String()),
		slog.String("statement", req.Statement),
		slog.Int("params", len(req.Params)),
	)
	res, err := e.executor.Execute(ctx, req)
	e.metrics.RecordStatement(ctx, req.Mode.String(), err == nil, time.Since(start))
	if err != nil {
		return nil, mapDatabaseError(err)
	}
	return res, nil
}

func (e *Engine) logDiagnostics(call *fieldCall, diagnostics []validation.Diagnostic) {
	for _, d := range diagnostics {
		call.logger.Warn("deprecated input form",
			slog.String("category", d.Category),
			slog.String("path", d.Path),
			slog.String("message", d.Message),
		)
	}
}

func rootTypename(kind OperationKind) string {
	if kind == KindMutation {
		return "Mutation"
	}
	return "Query"
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case validation.Is(err):
		return "invalid"
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, auth.ErrUnauthenticated):
		return "denied"
	default:
		return "error"
	}
}
