package engine

import (
	"context"
	"time"

	"neo4j-graphql/internal/cypher"
	"neo4j-graphql/internal/dbexec"
	"neo4j-graphql/internal/filter"
	"neo4j-graphql/internal/plan"
	"neo4j-graphql/internal/reshape"
)

func (e *Engine) compiler(call *fieldCall) (*plan.Compiler, *filter.Compiler) {
	filters := filter.NewCompiler(call.model, call.auth, e.scalars)
	return plan.NewCompiler(filters, plan.WithLimits(e.limits)), filters
}

func (e *Engine) query(ctx context.Context, call *fieldCall) (any, error) {
	start := time.Now()
	compiler, filters := e.compiler(call)
	node, err := compiler.Query(call.field)
	e.logDiagnostics(call, filters.Diagnostics())
	if err != nil {
		return nil, err
	}
	stmt, err := cypher.New(compiler.Names(), cypher.WithClaims(call.auth.JWT)).Query(node)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordCompile(ctx, string(KindQuery), time.Since(start))

	res, err := e.run(ctx, call, dbexec.Request{
		Statement: stmt.Text,
		Params:    stmt.Params,
		Mode:      dbexec.AccessRead,
		Bookmarks: call.bookmarks,
	})
	if err != nil {
		return nil, err
	}
	return reshape.New(call.model, e.scalars).Query(node, res.Column(cypher.ResultColumn))
}
