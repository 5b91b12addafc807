package engine

import (
	"context"
	"log/slog"
	"time"

	"neo4j-graphql/internal/cypher"
	"neo4j-graphql/internal/dbexec"
	"neo4j-graphql/internal/events"
	"neo4j-graphql/internal/mutation"
	"neo4j-graphql/internal/reshape"
)

func (e *Engine) mutate(ctx context.Context, call *fieldCall) (any, error) {
	start := time.Now()
	compiler, filters := e.compiler(call)
	planner := mutation.NewPlanner(compiler, mutation.WithCallbacks(e.callbacks))
	pl, err := planner.Plan(ctx, call.field)
	e.logDiagnostics(call, filters.Diagnostics())
	if err != nil {
		return nil, err
	}
	stmt, err := cypher.New(compiler.Names(), cypher.WithClaims(call.auth.JWT)).Mutation(pl)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordCompile(ctx, string(KindMutation), time.Since(start))

	res, err := e.run(ctx, call, dbexec.Request{
		Statement: stmt.Text,
		Params:    stmt.Params,
		Mode:      dbexec.AccessWrite,
		Bookmarks: call.bookmarks,
	})
	if err != nil {
		return nil, err
	}
	call.bookmark = res.Bookmark

	counters := mutation.Counters{
		NodesCreated:         res.Counters.NodesCreated,
		NodesDeleted:         res.Counters.NodesDeleted,
		RelationshipsCreated: res.Counters.RelationshipsCreated,
		RelationshipsDeleted: res.Counters.RelationshipsDeleted,
	}
	e.reconcile(call, pl.Estimate, counters)
	e.metrics.RecordWrites(ctx, pl.Entity.Name, counters.NodesCreated, counters.NodesDeleted, counters.RelationshipsCreated, counters.RelationshipsDeleted)

	var raw any = map[string]any{}
	if column := res.Column(cypher.ResultColumn); len(column) > 0 && column[0] != nil {
		raw = column[0]
	}
	out, err := reshape.New(call.model, e.scalars).Mutation(pl, call.field, raw, reshape.Summary{
		Counters: counters,
		Bookmark: res.Bookmark,
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, call, raw)
	return out, nil
}

// reconcile compares the database counters with the plan's estimate. The
// estimate is a lower bound; matching steps may write more.
func (e *Engine) reconcile(call *fieldCall, estimate, actual mutation.Counters) {
	if actual.NodesCreated >= estimate.NodesCreated &&
		actual.NodesDeleted >= estimate.NodesDeleted &&
		actual.RelationshipsCreated >= estimate.RelationshipsCreated &&
		actual.RelationshipsDeleted >= estimate.RelationshipsDeleted {
		return
	}
	call.logger.Warn("write counters below plan estimate",
		slog.Int("estimated_nodes_created", estimate.NodesCreated),
		slog.Int("nodes_created", actual.NodesCreated),
		slog.Int("estimated_nodes_deleted", estimate.NodesDeleted),
		slog.Int("nodes_deleted", actual.NodesDeleted),
		slog.Int("estimated_relationships_created", estimate.RelationshipsCreated),
		slog.Int("relationships_created", actual.RelationshipsCreated),
		slog.Int("estimated_relationships_deleted", estimate.RelationshipsDeleted),
		slog.Int("relationships_deleted", actual.RelationshipsDeleted),
	)
}

// publish delivers the statement's change events. The write is already
// committed, so delivery failures are logged and not returned.
func (e *Engine) publish(ctx context.Context, call *fieldCall, raw any) {
	if e.sink == nil {
		return
	}
	m, _ := raw.(map[string]any)
	evs, err := events.Decode(m[cypher.EventsKey], e.now())
	if err != nil {
		call.logger.Warn("failed to decode change events", slog.String("error", err.Error()))
		return
	}
	if len(evs) == 0 {
		return
	}
	if err := e.sink.Publish(ctx, evs); err != nil {
		call.logger.Warn("failed to publish change events", slog.Int("events", len(evs)), slog.String("error", err.Error()))
		e.metrics.RecordEvents(ctx, len(evs), false)
		return
	}
	e.metrics.RecordEvents(ctx, len(evs), true)
}
