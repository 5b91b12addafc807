package cypher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neo4j-graphql/internal/auth"
	"neo4j-graphql/internal/filter"
	"neo4j-graphql/internal/mutation"
	"neo4j-graphql/internal/plan"
	"neo4j-graphql/internal/schema/schematest"
	"neo4j-graphql/internal/selection"
)

func emitMutation(t *testing.T, typeDefs string, authCtx *auth.Context, field *selection.Field) Statement {
	t.Helper()
	model := schematest.Build(t, typeDefs)
	compiler := plan.NewCompiler(filter.NewCompiler(model, authCtx, nil))
	constant := func(v any) mutation.Callback {
		return func(context.Context, map[string]any, mutation.CallbackInfo) (any, error) { return v, nil }
	}
	planner := mutation.NewPlanner(compiler, mutation.WithCallbacks(map[string]mutation.Callback{
		"slug":    constant("the-matrix"),
		"toucher": constant("admin"),
	}))
	pl, err := planner.Plan(context.Background(), field)
	require.NoError(t, err)
	stmt, err := New(compiler.Names()).Mutation(pl)
	require.NoError(t, err)
	return stmt
}

func TestCreateStatement(t *testing.T) {
	stmt := emitMutation(t, schematest.Movies, auth.Anonymous(), &selection.Field{
		Name:      "createMovies",
		Arguments: map[string]any{"input": []any{map[string]any{"title": "The Matrix", "released": 1999}}},
		Selections: []*selection.Field{
			{Name: "movies", Selections: []*selection.Field{{Name: "title"}}},
		},
	})

	assert.Contains(t, stmt.Text, "CALL {\n    CREATE (this0:Movie)\n    SET ")
	assert.Contains(t, stmt.Text, "this0.id = randomUUID()")
	assert.Contains(t, stmt.Text, "this0.createdAt = datetime()")
	assert.Contains(t, stmt.Text, "RETURN this0, [{ event: 'CREATE', typename: 'Movie', properties: { old: null, new: properties(this0) } }] AS ev3")
	assert.Contains(t, stmt.Text, "WITH [this0] AS nodes, ev3 AS events")
	assert.Contains(t, stmt.Text, "    WITH nodes\n    UNWIND nodes AS this2\n    WITH this2\n    RETURN collect({ title: this2.title }) AS data4")
	assert.Contains(t, stmt.Text, "RETURN { movies: data4, __events: events } AS this")
	assert.NotContains(t, stmt.Text, "updatedAt")

	values := paramValues(stmt)
	assert.Contains(t, values, "The Matrix")
	assert.Contains(t, values, "the-matrix")
}

func TestCreateBatchStatement(t *testing.T) {
	stmt := emitMutation(t, schematest.Movies, auth.Anonymous(), &selection.Field{
		Name: "createMovies",
		Arguments: map[string]any{"input": []any{
			map[string]any{"title": "The Matrix"},
			map[string]any{"title": "The Matrix Reloaded"},
		}},
	})

	assert.Contains(t, stmt.Text, "CREATE (this0:Movie)")
	assert.Contains(t, stmt.Text, "CREATE (this1:Movie)")
	assert.Contains(t, stmt.Text, "WITH [this0, this1] AS nodes, ev2 + ev3 AS events")
	assert.Contains(t, stmt.Text, "RETURN { __events: events } AS this")
}

func TestConnectStatement(t *testing.T) {
	connect := func(duplicates bool) *selection.Field {
		return &selection.Field{
			Name: "createMovies",
			Arguments: map[string]any{"input": []any{map[string]any{
				"title": "The Matrix",
				"actors": map[string]any{"connect": []any{map[string]any{
					"where":            map[string]any{"node": map[string]any{"name": "Keanu Reeves"}},
					"edge":             map[string]any{"role": "Neo"},
					"createDuplicates": duplicates,
				}}},
			}}},
		}
	}

	stmt := emitMutation(t, schematest.Movies, auth.Anonymous(), connect(false))
	assert.Contains(t, stmt.Text, "MATCH (this1:Actor)\n")
	assert.Contains(t, stmt.Text, "WHERE this1.name = $this1_param")
	assert.Contains(t, stmt.Text, "WITH this0, this1\n")
	assert.Regexp(t, `WHERE NOT EXISTS \{ MATCH \(this0\)<-\[(edge\d+):ACTED_IN\]-\(this1\) WHERE \1\.role = \$\1_param\d+ \}`, stmt.Text)
	assert.NotContains(t, stmt.Text, "IS NULL")
	assert.Contains(t, stmt.Text, "CREATE (this0)<-[edge2:ACTED_IN]-(this1)")
	assert.Contains(t, stmt.Text, "SET edge2.role = $edge2_param")
	assert.Contains(t, stmt.Text, "event: 'CREATE_RELATIONSHIP', typename: 'Movie', relationshipName: 'actors', toTypename: 'Actor'")

	stmt = emitMutation(t, schematest.Movies, auth.Anonymous(), connect(true))
	assert.NotContains(t, stmt.Text, "NOT EXISTS")
	assert.Contains(t, stmt.Text, "CREATE (this0)<-[edge2:ACTED_IN]-(this1)")
}

func TestConnectWithoutEdgeMatchesAnyRelationship(t *testing.T) {
	stmt := emitMutation(t, schematest.Movies, auth.Anonymous(), &selection.Field{
		Name: "updateMovies",
		Arguments: map[string]any{
			"where": map[string]any{"title": "The Matrix"},
			"connect": map[string]any{"actors": []any{map[string]any{
				"where": map[string]any{"node": map[string]any{"name": "Keanu Reeves"}},
			}}},
		},
	})

	assert.Regexp(t, `WHERE NOT EXISTS \{ MATCH \(this\d+\)<-\[edge\d+:ACTED_IN\]-\(this\d+\) \}`, stmt.Text)
	assert.NotContains(t, stmt.Text, "IS NULL")
	assert.Contains(t, stmt.Text, "event: 'CREATE_RELATIONSHIP', typename: 'Movie', relationshipName: 'actors', toTypename: 'Actor'")
}

func TestConnectWithExplicitNullEdgeProperty(t *testing.T) {
	stmt := emitMutation(t, schematest.Movies, auth.Anonymous(), &selection.Field{
		Name: "createMovies",
		Arguments: map[string]any{"input": []any{map[string]any{
			"title": "The Matrix",
			"actors": map[string]any{"connect": []any{map[string]any{
				"where": map[string]any{"node": map[string]any{"name": "Keanu Reeves"}},
				"edge":  map[string]any{"role": nil},
			}}},
		}}},
	})

	assert.Regexp(t, `WHERE NOT EXISTS \{ MATCH \(this0\)<-\[(edge\d+):ACTED_IN\]-\(this1\) WHERE \1\.role IS NULL \}`, stmt.Text)
	assert.NotContains(t, stmt.Text, "screenTime")
}

func TestConnectOrCreateStatement(t *testing.T) {
	stmt := emitMutation(t, schematest.Movies, auth.Anonymous(), &selection.Field{
		Name: "createMovies",
		Arguments: map[string]any{"input": []any{map[string]any{
			"title": "The Matrix",
			"genres": map[string]any{"connectOrCreate": []any{map[string]any{
				"where": map[string]any{"node": map[string]any{"name": "Sci-Fi"}},
			}}},
		}}},
	})

	assert.Regexp(t, `WITH \*, NOT EXISTS \{ MATCH \(:Genre \{ name: \$this1_param\d+ \}\) \} AS created\d+\n *MERGE \(this1:Genre \{ name: \$this1_param\d+ \}\)`, stmt.Text)
	assert.Regexp(t, `WITH \*, NOT EXISTS \{ MATCH \(this0\)-\[:IN_GENRE\]->\(this1\) \} AS created\d+\n *MERGE \(this0\)-\[\w+:IN_GENRE\]->\(this1\)`, stmt.Text)
	assert.Regexp(t, `CASE WHEN created\d+ THEN \[\{ event: 'CREATE', typename: 'Genre', properties: \{ old: null, new: properties\(this1\) \} \}\] ELSE \[\] END`, stmt.Text)
	assert.Regexp(t, `CASE WHEN created\d+ THEN \[\{ event: 'CREATE_RELATIONSHIP', typename: 'Movie', relationshipName: 'genres', toTypename: 'Genre'`, stmt.Text)
	assert.Contains(t, paramValues(stmt), "Sci-Fi")
}

func TestUpdateStatement(t *testing.T) {
	stmt := emitMutation(t, schematest.Movies, auth.Anonymous(), &selection.Field{
		Name: "updateMovies",
		Arguments: map[string]any{
			"where":  map[string]any{"title": "The Matrix"},
			"update": map[string]any{"released_INCREMENT": 1, "tags_PUSH": []any{"classic"}},
		},
		Selections: []*selection.Field{
			{Name: "movies", Selections: []*selection.Field{{Name: "released"}}},
		},
	})

	assert.Contains(t, stmt.Text, "MATCH (this0:Movie)\nWHERE this0.title = $this0_param0\n")
	assert.Contains(t, stmt.Text, "WITH *, properties(this0) AS old3")
	assert.Contains(t, stmt.Text, "this0.released = this0.released + $this0_param")
	assert.Contains(t, stmt.Text, "this0.tags = coalesce(this0.tags, []) + $this0_param")
	assert.Contains(t, stmt.Text, "this0.updatedAt = datetime()")
	assert.Contains(t, stmt.Text, "WITH collect(DISTINCT this0) AS nodes, reduce(acc = [], x IN collect([{ event: 'UPDATE', typename: 'Movie', properties: { old: old3, new: properties(this0) } }]) | acc + x) AS events")
	assert.Contains(t, stmt.Text, "RETURN { movies: data")
	assert.Contains(t, paramValues(stmt), "admin")
}

func TestUpdateWithoutPropertiesEmitsNoEvent(t *testing.T) {
	stmt := emitMutation(t, schematest.Movies, auth.Anonymous(), &selection.Field{
		Name:      "updateMovies",
		Arguments: map[string]any{"where": map[string]any{"title": "The Matrix"}},
	})

	assert.NotContains(t, stmt.Text, "SET")
	assert.NotContains(t, stmt.Text, "'UPDATE'")
	assert.Contains(t, stmt.Text, "reduce(acc = [], x IN collect([]) | acc + x) AS events")
}

func TestNestedDisconnectStatement(t *testing.T) {
	stmt := emitMutation(t, schematest.Movies, auth.Anonymous(), &selection.Field{
		Name: "updateMovies",
		Arguments: map[string]any{
			"update": map[string]any{"genres": []any{map[string]any{
				"disconnect": []any{map[string]any{"where": map[string]any{"node": map[string]any{"name": "Drama"}}}},
			}}},
		},
	})

	assert.Contains(t, stmt.Text, "WITH *\nCALL {\n    WITH this0\n    MATCH (this0)-[")
	assert.Contains(t, stmt.Text, ":IN_GENRE]->(this1:Genre)")
	assert.Contains(t, stmt.Text, "event: 'DELETE_RELATIONSHIP', typename: 'Movie', relationshipName: 'genres', toTypename: 'Genre'")
	assert.Contains(t, stmt.Text, "    DELETE edge")
}

func TestDeleteStatement(t *testing.T) {
	const typeDefs = `
		type Person @node {
			name: String!
			directed: [Movie!]! @relationship(type: "DIRECTED", direction: OUT, onDelete: CASCADE)
			awards: [Award!]! @relationship(type: "WON", direction: OUT, onDelete: RESTRICT)
		}
		type Movie @node { title: String! }
		type Award @node { name: String }
	`
	stmt := emitMutation(t, typeDefs, auth.Anonymous(), &selection.Field{
		Name:      "deletePeople",
		Arguments: map[string]any{"where": map[string]any{"name": "Lana"}},
	})

	assert.Contains(t, stmt.Text, "MATCH (this0:Person)\nWHERE this0.name = $this0_param0\n")
	assert.Contains(t, stmt.Text, ":DIRECTED]->(this1:Movie)")
	assert.Contains(t, stmt.Text, "WITH DISTINCT this0, this1")
	assert.Contains(t, stmt.Text, "DETACH DELETE this1")
	assert.Contains(t, stmt.Text, "CALL apoc.util.validate(EXISTS { MATCH (this0)-[:WON]->() }, $restrict_param")
	assert.Contains(t, stmt.Text, "DETACH DELETE this0\n")
	assert.Contains(t, stmt.Text, "event: 'DELETE', typename: 'Person', properties: { old: properties(this0), new: null }")
	assert.Contains(t, stmt.Text, "RETURN { __events: events } AS this")
	assert.Contains(t, paramValues(stmt), "@neo4j-graphql/RESTRICT Person.awards")
}

func TestMutationGuards(t *testing.T) {
	editor := auth.FromClaims(map[string]any{"sub": "u1", "roles": []any{"editor"}})

	stmt := emitMutation(t, schematest.Secured, editor, &selection.Field{
		Name:      "updateUsers",
		Arguments: map[string]any{"update": map[string]any{"name": "Ann"}},
	})

	assert.Contains(t, stmt.Text, "WHERE this0.id = $this0_param0 AND apoc.util.validatePredicate(NOT (this0.id = $this0_param1), $forbidden, [0])")
	assert.Equal(t, auth.ForbiddenSentinel, stmt.Params["forbidden"])
	assert.Equal(t, "u1", stmt.Params["this0_param0"])
	assert.Equal(t, "u1", stmt.Params["this0_param1"])
}
