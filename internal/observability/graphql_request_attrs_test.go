package observability

import (
	"context"
	"log/slog"
	"testing"

	"neo4j-graphql/internal/gqlrequest"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestGraphQLSpanAttributes(t *testing.T) {
	analysis := &gqlrequest.Analysis{
		Envelope: gqlrequest.Envelope{
			Query:             "query Q { movies { title } }",
			DocumentSizeBytes: 28,
		},
		RequestedOperationName: "Q",
		OperationName:          "Q",
		OperationType:          "query",
		OperationHash:          "hash123",
		FieldCount:             2,
		SelectionDepth:         2,
		VariableCount:          1,
		Operation:              &ast.OperationDefinition{},
	}
	meta := gqlrequest.ExecMeta{
		User:        "reader",
		Fingerprint: "fp-1",
		Bookmarks:   []string{"bm:1"},
	}

	attrs := GraphQLSpanAttributes(analysis, meta)
	assert.Contains(t, attrs, attribute.String("graphql.operation.name", "Q"))
	assert.Contains(t, attrs, attribute.Int("graphql.query.depth", 2))
	assert.Contains(t, attrs, attribute.String("db.neo4j.impersonated_user", "reader"))
	assert.Contains(t, attrs, attribute.Int("db.neo4j.bookmarks", 1))
	assert.Contains(t, attrs, attribute.String("schema.fingerprint", "fp-1"))
}

func TestGraphQLLogFieldsIncludesTraceID(t *testing.T) {
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1, 2, 3},
		SpanID:  trace.SpanID{4, 5, 6},
		Remote:  true,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)
	fields := GraphQLLogFields(ctx, &gqlrequest.Analysis{
		OperationName: "Q",
		OperationType: "query",
		OperationHash: "hash123",
	}, gqlrequest.ExecMeta{User: "reader"})

	assert.Contains(t, fields, slog.String("impersonated_user", "reader"))
	assert.Contains(t, fields, slog.String("trace_id", spanCtx.TraceID().String()))
}
