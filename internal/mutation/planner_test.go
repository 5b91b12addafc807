package mutation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neo4j-graphql/internal/auth"
	"neo4j-graphql/internal/filter"
	"neo4j-graphql/internal/plan"
	"neo4j-graphql/internal/schema"
	"neo4j-graphql/internal/schema/schematest"
	"neo4j-graphql/internal/selection"
	"neo4j-graphql/internal/validation"
)

type callRecorder struct {
	calls []CallbackInfo
	err   error
}

func (r *callRecorder) callbacks() map[string]Callback {
	record := func(value any) Callback {
		return func(_ context.Context, _ map[string]any, info CallbackInfo) (any, error) {
			r.calls = append(r.calls, info)
			return value, r.err
		}
	}
	return map[string]Callback{"slug": record("the-matrix"), "toucher": record("admin")}
}

func newPlanner(t *testing.T, typeDefs string, authCtx *auth.Context, opts ...Option) (*Planner, *schema.Model) {
	t.Helper()
	model := schematest.Build(t, typeDefs)
	compiler := plan.NewCompiler(filter.NewCompiler(model, authCtx, nil))
	return NewPlanner(compiler, opts...), model
}

func assignment(t *testing.T, set []Assignment, field string) Assignment {
	t.Helper()
	for _, a := range set {
		if a.Field == field {
			return a
		}
	}
	require.Failf(t, "missing assignment", "no assignment for %s", field)
	return Assignment{}
}

func kinds(steps []*Step) []StepKind {
	out := make([]StepKind, len(steps))
	for i, s := range steps {
		out[i] = s.Kind
	}
	return out
}

func TestCreateNode(t *testing.T) {
	rec := &callRecorder{}
	p, model := newPlanner(t, schematest.Movies, auth.Anonymous(), WithCallbacks(rec.callbacks()))
	movie := schematest.Entity(t, model, "Movie")

	pl, err := p.Create(context.Background(), movie, &selection.Field{
		Name:      "createMovies",
		Arguments: map[string]any{"input": []any{map[string]any{"title": "The Matrix", "released": 1999}}},
		Selections: []*selection.Field{
			{Name: "movies", Selections: []*selection.Field{{Name: "title"}}},
			{Name: "info", Selections: []*selection.Field{{Name: "nodesCreated"}}},
		},
	})
	require.NoError(t, err)
	require.Len(t, pl.Steps, 1)

	step := pl.Steps[0]
	assert.Equal(t, StepCreateNode, step.Kind)
	assert.Equal(t, SourceUUID, assignment(t, step.Set, "id").Source)
	assert.Equal(t, SourceTimestamp, assignment(t, step.Set, "createdAt").Source)
	assert.Equal(t, "The Matrix", assignment(t, step.Set, "title").Value)
	assert.Equal(t, "the-matrix", assignment(t, step.Set, "slug").Value)
	for _, a := range step.Set {
		assert.NotEqual(t, "updatedAt", a.Field)
		assert.NotEqual(t, "touchedBy", a.Field)
	}

	require.Len(t, rec.calls, 1)
	assert.Equal(t, CallbackInfo{Operation: schema.OpCreate, Type: "Movie", Field: "slug"}, rec.calls[0])

	require.Len(t, pl.Projections, 1)
	assert.Equal(t, "movies", pl.Projections[0].Key)
	assert.Equal(t, Counters{NodesCreated: 1}, pl.Estimate)
}

func TestUpdateCallbacks(t *testing.T) {
	tests := []struct {
		name      string
		update    map[string]any
		wantCalls int
	}{
		{"properties updated", map[string]any{"title": "Reloaded"}, 1},
		{"only relationships", map[string]any{"genres": []any{map[string]any{"disconnect": []any{map[string]any{}}}}}, 0},
		{"nothing", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &callRecorder{}
			p, model := newPlanner(t, schematest.Movies, auth.Anonymous(), WithCallbacks(rec.callbacks()))
			movie := schematest.Entity(t, model, "Movie")

			pl, err := p.Update(context.Background(), movie, &selection.Field{
				Name:      "updateMovies",
				Arguments: map[string]any{"where": map[string]any{"title": "The Matrix"}, "update": tt.update},
			})
			require.NoError(t, err)
			require.Len(t, rec.calls, tt.wantCalls)
			if tt.wantCalls > 0 {
				assert.Equal(t, schema.OpUpdate, rec.calls[0].Operation)
				assert.Equal(t, "touchedBy", rec.calls[0].Field)
				assert.Equal(t, SourceTimestamp, assignment(t, pl.Steps[0].Set, "updatedAt").Source)
			} else {
				assert.Empty(t, pl.Steps[0].Set)
			}
		})
	}
}

func TestCallbackFailureAborts(t *testing.T) {
	rec := &callRecorder{err: errors.New("boom")}
	p, model := newPlanner(t, schematest.Movies, auth.Anonymous(), WithCallbacks(rec.callbacks()))
	movie := schematest.Entity(t, model, "Movie")

	_, err := p.Create(context.Background(), movie, &selection.Field{
		Name:      "createMovies",
		Arguments: map[string]any{"input": []any{map[string]any{"title": "The Matrix"}}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, rec.err)
	assert.Contains(t, err.Error(), "callback slug for Movie.slug")
}

func TestConnectDuplicates(t *testing.T) {
	tests := []struct {
		name       string
		duplicates any
		want       bool
	}{
		{"default skips existing", nil, false},
		{"explicit false", false, false},
		{"duplicates requested", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &callRecorder{}
			p, model := newPlanner(t, schematest.Movies, auth.Anonymous(), WithCallbacks(rec.callbacks()))
			movie := schematest.Entity(t, model, "Movie")

			connect := map[string]any{
				"where": map[string]any{"node": map[string]any{"name": "Keanu Reeves"}},
				"edge":  map[string]any{"role": "Neo"},
			}
			if tt.duplicates != nil {
				connect["createDuplicates"] = tt.duplicates
			}
			pl, err := p.Create(context.Background(), movie, &selection.Field{
				Name: "createMovies",
				Arguments: map[string]any{"input": []any{map[string]any{
					"title":  "The Matrix",
					"actors": map[string]any{"connect": []any{connect}},
				}}},
			})
			require.NoError(t, err)

			root := pl.Steps[0]
			require.Len(t, root.Steps, 1)
			conn := root.Steps[0]
			assert.Equal(t, StepConnect, conn.Kind)
			assert.Equal(t, "Actor", conn.Entity.Name)
			assert.Equal(t, root.Var, conn.Parent)
			assert.NotNil(t, conn.Where)

			require.Len(t, conn.Steps, 1)
			link := conn.Steps[0]
			assert.Equal(t, StepCreateRelationship, link.Kind)
			assert.Equal(t, tt.want, link.CreateDuplicates)
			assert.Equal(t, "Neo", assignment(t, link.Set, "role").Value)
			assert.Equal(t, Counters{NodesCreated: 1}, pl.Estimate)
		})
	}
}

func TestNestedCreate(t *testing.T) {
	p, model := newPlanner(t, schematest.Movies, auth.Anonymous(), WithCallbacks((&callRecorder{}).callbacks()))
	movie := schematest.Entity(t, model, "Movie")

	pl, err := p.Create(context.Background(), movie, &selection.Field{
		Name: "createMovies",
		Arguments: map[string]any{"input": []any{map[string]any{
			"title": "The Matrix",
			"actors": map[string]any{"create": []any{
				map[string]any{"node": map[string]any{"name": "Keanu Reeves"}, "edge": map[string]any{"role": "Neo"}},
				map[string]any{"node": map[string]any{"name": "Carrie-Anne Moss"}},
			}},
			"director": map[string]any{"create": map[string]any{"node": map[string]any{"name": "Lana"}}},
		}}},
	})
	require.NoError(t, err)

	root := pl.Steps[0]
	require.Equal(t, []StepKind{StepCreateNode, StepCreateNode, StepCreateNode}, kinds(root.Steps))
	actor := root.Steps[0]
	assert.Equal(t, root.Var, actor.Parent)
	require.NotEmpty(t, actor.Steps)
	assert.Equal(t, StepCreateRelationship, actor.Steps[0].Kind)
	assert.Equal(t, actor.Var, actor.Steps[0].Var)
	assert.Equal(t, root.Var, actor.Steps[0].Parent)
	assert.Equal(t, "Director", root.Steps[2].Entity.Labels[1])

	assert.Equal(t, Counters{NodesCreated: 4, RelationshipsCreated: 3}, pl.Estimate)
}

func TestInterfaceCreate(t *testing.T) {
	p, model := newPlanner(t, schematest.Productions, auth.Anonymous())
	actor := schematest.Entity(t, model, "Actor")

	create := func(node map[string]any) error {
		_, err := p.Create(context.Background(), actor, &selection.Field{
			Name: "createActors",
			Arguments: map[string]any{"input": []any{map[string]any{
				"name": "Keanu",
				"actedIn": map[string]any{"create": []any{map[string]any{
					"node": node,
					"edge": map[string]any{"screenTime": 120},
				}}},
			}}},
		})
		return err
	}

	require.NoError(t, create(map[string]any{"Movie": map[string]any{"title": "The Matrix"}}))
	err := create(map[string]any{"Movie": map[string]any{"title": "A"}, "Series": map[string]any{"title": "B"}})
	assert.True(t, validation.Is(err))
	err = create(map[string]any{"Production": map[string]any{"title": "A"}})
	assert.True(t, validation.Is(err))
}

func TestConnectOrCreate(t *testing.T) {
	p, model := newPlanner(t, schematest.Movies, auth.Anonymous(), WithCallbacks((&callRecorder{}).callbacks()))
	movie := schematest.Entity(t, model, "Movie")

	pl, err := p.Create(context.Background(), movie, &selection.Field{
		Name: "createMovies",
		Arguments: map[string]any{"input": []any{map[string]any{
			"title": "The Matrix",
			"genres": map[string]any{"connectOrCreate": []any{map[string]any{
				"where":    map[string]any{"node": map[string]any{"name": "Sci-Fi"}},
				"onCreate": map[string]any{"node": map[string]any{}},
			}}},
		}}},
	})
	require.NoError(t, err)

	step := pl.Steps[0].Steps[0]
	assert.Equal(t, StepConnectOrCreate, step.Kind)
	require.Len(t, step.Merge, 1)
	assert.Equal(t, "Sci-Fi", step.Merge[0].Value)
	assert.Empty(t, step.Set)
	assert.Equal(t, []StepKind{StepCreateRelationship}, kinds(step.Steps))
	assert.Equal(t, Counters{NodesCreated: 1}, pl.Estimate)

	_, err = p.Create(context.Background(), movie, &selection.Field{
		Name: "createMovies",
		Arguments: map[string]any{"input": []any{map[string]any{
			"title": "The Matrix",
			"actors": map[string]any{"connectOrCreate": []any{map[string]any{
				"where": map[string]any{"node": map[string]any{"name": "Keanu"}},
			}}},
		}}},
	})
	assert.True(t, validation.Is(err), "Actor.name is not unique")
}

func TestUpdatePhaseOrder(t *testing.T) {
	p, model := newPlanner(t, schematest.Movies, auth.Anonymous(), WithCallbacks((&callRecorder{}).callbacks()))
	movie := schematest.Entity(t, model, "Movie")

	pl, err := p.Update(context.Background(), movie, &selection.Field{
		Name: "updateMovies",
		Arguments: map[string]any{
			"where": map[string]any{"title": "The Matrix"},
			"update": map[string]any{
				"released_INCREMENT": 1,
				"genres": []any{map[string]any{
					"disconnect": []any{map[string]any{"where": map[string]any{"node": map[string]any{"name": "Drama"}}}},
					"create":     []any{map[string]any{"node": map[string]any{"name": "Sci-Fi"}}},
				}},
				"actors": []any{map[string]any{
					"where":  map[string]any{"node": map[string]any{"name": "Keanu"}},
					"update": map[string]any{"edge": map[string]any{"role": "Neo"}},
				}},
			},
			"delete": map[string]any{"director": map[string]any{"where": map[string]any{"node": map[string]any{"name": "Lana"}}}},
		},
	})
	require.NoError(t, err)

	root := pl.Steps[0]
	assert.Equal(t, AssignIncrement, assignment(t, root.Set, "released").Op)
	assert.Equal(t, []StepKind{StepCreateNode, StepUpdateNode, StepDisconnect, StepDeleteNode}, kinds(root.Steps))

	update := root.Steps[1]
	assert.Equal(t, []StepKind{StepUpdateRelationship}, kinds(update.Steps))
	assert.Equal(t, update.RelVar, update.Steps[0].RelVar)

	disconnect := root.Steps[2]
	assert.Equal(t, []StepKind{StepDeleteRelationship}, kinds(disconnect.Steps))
}

func TestDeleteCascadeAndRestrict(t *testing.T) {
	const typeDefs = `
		type Person @node {
			name: String!
			directed: [Movie!]! @relationship(type: "DIRECTED", direction: OUT, onDelete: CASCADE)
			awards: [Award!]! @relationship(type: "WON", direction: OUT, onDelete: RESTRICT)
		}
		type Movie @node {
			title: String!
			director: Person @relationship(type: "DIRECTED", direction: IN, onDelete: CASCADE)
			reviews: [Review!]! @relationship(type: "REVIEWS", direction: IN, onDelete: CASCADE)
		}
		type Review @node { text: String }
		type Award @node { name: String }
	`
	p, model := newPlanner(t, typeDefs, auth.Anonymous())
	person := schematest.Entity(t, model, "Person")

	pl, err := p.Delete(context.Background(), person, &selection.Field{
		Name:      "deletePeople",
		Arguments: map[string]any{"where": map[string]any{"name": "Lana"}},
	})
	require.NoError(t, err)

	root := pl.Steps[0]
	require.Len(t, root.Restrict, 1)
	assert.Equal(t, "awards", root.Restrict[0].Name)

	require.Equal(t, []StepKind{StepDeleteNode}, kinds(root.Steps))
	movie := root.Steps[0]
	assert.Equal(t, "Movie", movie.Entity.Name)
	assert.Equal(t, root.Var, movie.Parent)
	// Person is already on the chain, so the cascade back is not followed.
	require.Equal(t, []StepKind{StepDeleteNode}, kinds(movie.Steps))
	assert.Equal(t, "Review", movie.Steps[0].Entity.Name)
	assert.Equal(t, Counters{}, pl.Estimate)
}

func TestMutationValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]any
	}{
		{"missing required", map[string]any{"released": 1999}},
		{"autogenerated id", map[string]any{"title": "A", "id": "x"}},
		{"timestamp", map[string]any{"title": "A", "createdAt": "2020-01-01T00:00:00Z"}},
		{"unknown field", map[string]any{"title": "A", "budget": 1}},
		{"wrong type", map[string]any{"title": "A", "released": "soon"}},
		{"edge without properties", map[string]any{"title": "A", "genres": map[string]any{"create": []any{
			map[string]any{"node": map[string]any{"name": "X"}, "edge": map[string]any{"weight": 1}},
		}}}},
		{"unknown nested operation", map[string]any{"title": "A", "genres": map[string]any{"update": []any{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, model := newPlanner(t, schematest.Movies, auth.Anonymous(), WithCallbacks((&callRecorder{}).callbacks()))
			movie := schematest.Entity(t, model, "Movie")
			_, err := p.Create(context.Background(), movie, &selection.Field{
				Name:      "createMovies",
				Arguments: map[string]any{"input": []any{tt.input}},
			})
			require.Error(t, err)
			assert.True(t, validation.Is(err), "got %v", err)
		})
	}

	t.Run("operator type mismatch", func(t *testing.T) {
		p, model := newPlanner(t, schematest.Movies, auth.Anonymous(), WithCallbacks((&callRecorder{}).callbacks()))
		movie := schematest.Entity(t, model, "Movie")
		_, err := p.Update(context.Background(), movie, &selection.Field{
			Name:      "updateMovies",
			Arguments: map[string]any{"update": map[string]any{"title_INCREMENT": 1}},
		})
		assert.True(t, validation.Is(err))
	})
}

func TestMutationAuthorization(t *testing.T) {
	t.Run("unauthenticated create", func(t *testing.T) {
		p, model := newPlanner(t, schematest.Secured, auth.Anonymous())
		note := schematest.Entity(t, model, "AdminNote")
		_, err := p.Create(context.Background(), note, &selection.Field{
			Name:      "createAdminNotes",
			Arguments: map[string]any{"input": []any{map[string]any{"text": "x"}}},
		})
		assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	})

	t.Run("update filter and guards", func(t *testing.T) {
		p, model := newPlanner(t, schematest.Secured, auth.FromClaims(map[string]any{"sub": "u1", "roles": []any{"editor"}}))
		user := schematest.Entity(t, model, "User")
		pl, err := p.Update(context.Background(), user, &selection.Field{
			Name: "updateUsers",
			Arguments: map[string]any{
				"update":  map[string]any{"name": "Ann"},
				"connect": map[string]any{"posts": []any{map[string]any{"where": map[string]any{"node": map[string]any{"content": "hi"}}}}},
			},
		})
		require.NoError(t, err)

		root := pl.Steps[0]
		assert.Equal(t, &filter.Comparison{
			Scope:    filter.ScopeNode,
			Field:    "id",
			Property: "id",
			Semantic: schema.SemanticID,
			Operator: filter.OpEqual,
			Value:    "u1",
		}, root.Where)
		require.Len(t, root.Before, 1)
		assert.Equal(t, root.Var, root.Before[0].Var)
		assert.Equal(t, []StepKind{StepConnect}, kinds(root.Steps))
	})

	t.Run("relationship validation rejected", func(t *testing.T) {
		p, model := newPlanner(t, schematest.Secured, auth.FromClaims(map[string]any{"sub": "u1", "roles": []any{"viewer"}}))
		user := schematest.Entity(t, model, "User")
		_, err := p.Update(context.Background(), user, &selection.Field{
			Name: "updateUsers",
			Arguments: map[string]any{
				"connect": map[string]any{"posts": []any{map[string]any{"where": map[string]any{"node": map[string]any{"content": "hi"}}}}},
			},
		})
		assert.ErrorIs(t, err, auth.ErrForbidden)
	})
}

func TestPlanDispatch(t *testing.T) {
	p, _ := newPlanner(t, schematest.Movies, auth.Anonymous(), WithCallbacks((&callRecorder{}).callbacks()))

	pl, err := p.Plan(context.Background(), &selection.Field{
		Name:      "deleteMovies",
		Arguments: map[string]any{"where": map[string]any{"title": "The Matrix"}},
	})
	require.NoError(t, err)
	assert.Equal(t, KindDelete, pl.Kind)
	assert.Empty(t, pl.Projections)

	_, err = p.Plan(context.Background(), &selection.Field{Name: "launchMovies"})
	assert.True(t, validation.Is(err))
}
