package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neo4j-graphql/internal/auth"
	"neo4j-graphql/internal/dbexec"
	"neo4j-graphql/internal/events"
	"neo4j-graphql/internal/schema/schematest"
	"neo4j-graphql/internal/selection"
	"neo4j-graphql/internal/validation"
)

const tagDefs = `
type Tag @node {
	name: String!
	posts: [Post!]! @relationship(type: "TAGGED", direction: IN)
}

type Post @node {
	title: String!
}
`

func newEngine(t *testing.T, typeDefs string, executor dbexec.Executor, sink events.Sink) *Engine {
	t.Helper()
	e, err := New(Config{
		Models:   StaticModel{M: schematest.Build(t, typeDefs)},
		Executor: executor,
		Sink:     sink,
		Now:      func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return e
}

func createTags(alias string, names ...string) *selection.Field {
	input := make([]any, len(names))
	for i, name := range names {
		input[i] = map[string]any{"name": name}
	}
	return &selection.Field{
		Alias:     alias,
		Name:      "createTags",
		Arguments: map[string]any{"input": input},
		Selections: []*selection.Field{
			{Name: "tags", Selections: []*selection.Field{{Name: "name"}}},
			{Name: "info", Selections: []*selection.Field{{Name: "nodesCreated"}, {Name: "bookmark"}}},
		},
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{Executor: &dbexec.Fake{}})
	require.Error(t, err)
	_, err = New(Config{Models: StaticModel{}})
	require.Error(t, err)
}

func TestQuery(t *testing.T) {
	fake := &dbexec.Fake{Results: []*dbexec.Result{{
		Records: []map[string]any{
			{"this": map[string]any{"name": "go"}},
			{"this": map[string]any{"name": "rust"}},
		},
	}}}
	e := newEngine(t, tagDefs, fake, nil)

	res := e.Execute(context.Background(), Operation{
		Kind:      KindQuery,
		Bookmarks: []string{"bm:0"},
		Fields: []*selection.Field{
			{Name: "tags", Arguments: map[string]any{"where": map[string]any{"name_IN": []any{"go", "rust"}}}, Selections: []*selection.Field{{Name: "name"}}},
			{Alias: "kind", Name: "__typename"},
		},
	})
	require.Empty(t, res.Errors)
	assert.Equal(t, []any{map[string]any{"name": "go"}, map[string]any{"name": "rust"}}, res.Data["tags"])
	assert.Equal(t, "Query", res.Data["kind"])
	assert.Empty(t, res.Bookmark)

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, dbexec.AccessRead, reqs[0].Mode)
	assert.Equal(t, []string{"bm:0"}, reqs[0].Bookmarks)
	assert.Contains(t, reqs[0].Statement, "MATCH (this1:Tag)")
	assert.Contains(t, reqs[0].Statement, "this1.name IN $this1_param0")
	assert.Equal(t, []any{"go", "rust"}, reqs[0].Params["this1_param0"])
}

func TestMutation(t *testing.T) {
	fake := &dbexec.Fake{Results: []*dbexec.Result{{
		Records: []map[string]any{{"this": map[string]any{
			"tags": []any{map[string]any{"name": "go"}},
			"__events": []any{map[string]any{
				"event":      "CREATE",
				"typename":   "Tag",
				"properties": map[string]any{"old": nil, "new": map[string]any{"name": "go"}},
			}},
		}}},
		Counters: dbexec.Counters{NodesCreated: 1, PropertiesSet: 1},
		Bookmark: "bm:1",
	}}}
	recorder := &events.Recorder{}
	e := newEngine(t, tagDefs, fake, recorder)

	res := e.Execute(context.Background(), Operation{Kind: KindMutation, Fields: []*selection.Field{createTags("", "go")}})
	require.Empty(t, res.Errors)
	assert.Equal(t, map[string]any{
		"tags": []any{map[string]any{"name": "go"}},
		"info": map[string]any{"nodesCreated": 1, "bookmark": "bm:1"},
	}, res.Data["createTags"])
	assert.Equal(t, "bm:1", res.Bookmark)

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, dbexec.AccessWrite, reqs[0].Mode)
	assert.Contains(t, reqs[0].Statement, "CREATE (this0:Tag)")

	published := recorder.Events()
	require.Len(t, published, 1)
	assert.Equal(t, "CREATE", published[0].Event)
	assert.Equal(t, "Tag", published[0].Typename)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), published[0].Timestamp)
}

func TestMutationsChainBookmarks(t *testing.T) {
	fake := &dbexec.Fake{Results: []*dbexec.Result{
		{Records: []map[string]any{{"this": map[string]any{"tags": []any{}}}}, Bookmark: "bm:1"},
		{Records: []map[string]any{{"this": map[string]any{"tags": []any{}}}}, Bookmark: "bm:2"},
	}}
	e := newEngine(t, tagDefs, fake, nil)

	res := e.Execute(context.Background(), Operation{
		Kind:      KindMutation,
		Bookmarks: []string{"bm:0"},
		Fields:    []*selection.Field{createTags("first", "a"), createTags("second", "b")},
	})
	require.Empty(t, res.Errors)
	assert.Equal(t, "bm:2", res.Bookmark)

	reqs := fake.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, []string{"bm:0"}, reqs[0].Bookmarks)
	assert.Equal(t, []string{"bm:1"}, reqs[1].Bookmarks)
}

func TestDatabaseErrors(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(t *testing.T, err error)
	}{
		{
			name: "forbidden sentinel",
			err:  errors.New("Neo4jError: Neo.ClientError.General.ForbiddenDueToTransactionType (Failed to invoke procedure: Caused by: java.lang.RuntimeException: @neo4j-graphql/FORBIDDEN)"),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, auth.ErrForbidden)
				assert.Equal(t, "Forbidden", err.Error())
			},
		},
		{
			name: "restrict sentinel",
			err:  errors.New("Neo4jError: Neo.ClientError.Procedure.ProcedureCallFailed (java.lang.RuntimeException: @neo4j-graphql/RESTRICT Tag.posts)"),
			check: func(t *testing.T, err error) {
				var restrict *RestrictError
				require.ErrorAs(t, err, &restrict)
				assert.Equal(t, "Tag.posts", restrict.Relationship)
			},
		},
		{
			name: "other errors pass through",
			err:  errors.New("connection refused"),
			check: func(t *testing.T, err error) {
				assert.Equal(t, "connection refused", err.Error())
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &events.Recorder{}
			e := newEngine(t, tagDefs, &dbexec.Fake{Err: tt.err}, recorder)
			res := e.Execute(context.Background(), Operation{Kind: KindMutation, Fields: []*selection.Field{createTags("", "go")}})
			require.Len(t, res.Errors, 1)
			assert.Equal(t, "createTags", res.Errors[0].Field)
			assert.Nil(t, res.Data["createTags"])
			tt.check(t, res.Errors[0].Unwrap())
			assert.Empty(t, recorder.Events())
		})
	}
}

func TestRootFieldsAreIndependent(t *testing.T) {
	fake := &dbexec.Fake{Results: []*dbexec.Result{{Records: []map[string]any{{"this": map[string]any{"title": "Hello"}}}}}}
	e := newEngine(t, tagDefs, fake, nil)

	res := e.Execute(context.Background(), Operation{
		Kind: KindQuery,
		Fields: []*selection.Field{
			{Name: "tags", Selections: []*selection.Field{{Name: "missing"}}},
			{Name: "posts", Selections: []*selection.Field{{Name: "title"}}},
		},
	})
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "tags", res.Errors[0].Field)
	assert.True(t, validation.Is(res.Errors[0]))
	assert.Nil(t, res.Data["tags"])
	assert.Equal(t, []any{map[string]any{"title": "Hello"}}, res.Data["posts"])
	assert.Len(t, fake.Requests(), 1, "invalid fields never reach the database")
}

func TestReadAuthorizationUsesClaims(t *testing.T) {
	const typeDefs = `
		type Note @node @authorization(filter: [{ where: { node: { owner: "$jwt.sub" } } }]) {
			owner: String!
			body: String
		}
	`
	fake := &dbexec.Fake{}
	e := newEngine(t, typeDefs, fake, nil)

	ctx := auth.WithContext(context.Background(), auth.FromClaims(map[string]any{"sub": "alice"}))
	res := e.Execute(ctx, Operation{Kind: KindQuery, Fields: []*selection.Field{{Name: "notes", Selections: []*selection.Field{{Name: "body"}}}}})
	require.Empty(t, res.Errors)
	assert.Equal(t, []any{}, res.Data["notes"])

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Statement, "this1.owner = $this1_param0")
	assert.Equal(t, "alice", reqs[0].Params["this1_param0"])
}

func TestNoModel(t *testing.T) {
	e, err := New(Config{Models: StaticModel{}, Executor: &dbexec.Fake{}})
	require.NoError(t, err)
	res := e.Execute(context.Background(), Operation{Kind: KindQuery, Fields: []*selection.Field{{Name: "tags"}}})
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], ErrNoModel)
}

func TestMapDatabaseError(t *testing.T) {
	assert.ErrorIs(t, mapDatabaseError(errors.New("x @neo4j-graphql/FORBIDDEN y")), auth.ErrForbidden)
	var restrict *RestrictError
	require.ErrorAs(t, mapDatabaseError(errors.New(`failed: "@neo4j-graphql/RESTRICT Person.awards"`)), &restrict)
	assert.Equal(t, "Person.awards", restrict.Relationship)
	assert.Equal(t, "cannot delete node with existing Person.awards relationships", restrict.Error())
}
