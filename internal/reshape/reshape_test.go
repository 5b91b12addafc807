package reshape

import (
	"context"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neo4j-graphql/internal/auth"
	"neo4j-graphql/internal/cursor"
	"neo4j-graphql/internal/filter"
	"neo4j-graphql/internal/mutation"
	"neo4j-graphql/internal/plan"
	"neo4j-graphql/internal/schema/schematest"
	"neo4j-graphql/internal/selection"
)

func compile(t *testing.T, typeDefs string, field *selection.Field) (*Shaper, *plan.Node) {
	t.Helper()
	model := schematest.Build(t, typeDefs)
	node, err := plan.NewCompiler(filter.NewCompiler(model, auth.Anonymous(), nil)).Query(field)
	require.NoError(t, err)
	return New(model, nil), node
}

func TestListItems(t *testing.T) {
	s, node := compile(t, schematest.Movies, &selection.Field{
		Name: "movies",
		Selections: []*selection.Field{
			{Name: "title"},
			{Name: "released"},
			{Name: "createdAt"},
			{Name: "director", Selections: []*selection.Field{{Name: "name"}}},
			{Name: "actors", Selections: []*selection.Field{{Name: "name"}}},
			{Name: "__typename"},
		},
	})

	out, err := s.Query(node, []any{
		map[string]any{
			"title":     "The Matrix",
			"released":  int64(1999),
			"createdAt": time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC),
			"director":  nil,
			"actors":    []any{map[string]any{"name": "Keanu Reeves"}},
			"__sort0":   "ignored",
		},
		map[string]any{"title": "Untitled", "released": nil, "createdAt": nil, "director": map[string]any{"name": "Lana"}, "actors": []any{}},
	})
	require.NoError(t, err)

	items := out.([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, "The Matrix", first["title"])
	assert.EqualValues(t, 1999, first["released"])
	assert.Equal(t, "2020-01-02T03:04:05.000Z", first["createdAt"])
	assert.Nil(t, first["director"])
	assert.Equal(t, []any{map[string]any{"name": "Keanu Reeves"}}, first["actors"])
	assert.Equal(t, "Movie", first["__typename"])
	assert.NotContains(t, first, "__sort0")

	second := items[1].(map[string]any)
	assert.Nil(t, second["released"])
	assert.Equal(t, map[string]any{"name": "Lana"}, second["director"])
	assert.Equal(t, []any{}, second["actors"])
}

func TestAbstractItemsResolvedByLabels(t *testing.T) {
	s, node := compile(t, schematest.Movies, &selection.Field{
		Name: "searches",
		Selections: []*selection.Field{
			{Name: "__typename"},
			{Name: "title", TypeCondition: "Movie"},
			{Name: "name", TypeCondition: "Genre"},
		},
	})

	out, err := s.Query(node, []any{
		map[string]any{"__labels": []any{"Movie"}, "title": "The Matrix"},
		map[string]any{"__labels": []any{"Genre"}, "name": "Sci-Fi"},
		map[string]any{"__labels": []any{"Unknown"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"__typename": "Movie", "title": "The Matrix"},
		map[string]any{"__typename": "Genre", "name": "Sci-Fi"},
	}, out)
}

func TestMultipleLabelsPreferMostSpecific(t *testing.T) {
	s, node := compile(t, `
		interface Named { name: String }
		type Person implements Named @node { name: String }
		type Director implements Named @node(labels: ["Person", "Director"]) { name: String }
	`, &selection.Field{Name: "nameds", Selections: []*selection.Field{{Name: "__typename"}}})

	out, err := s.Query(node, []any{
		map[string]any{"__labels": []any{"Person", "Director"}},
		map[string]any{"__labels": []any{"Person"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"__typename": "Director"},
		map[string]any{"__typename": "Person"},
	}, out)
}

func TestConnection(t *testing.T) {
	s, node := compile(t, schematest.Movies, &selection.Field{
		Name:      "moviesConnection",
		Arguments: map[string]any{"first": 2, "after": cursor.Encode(0)},
		Selections: []*selection.Field{
			{Name: "totalCount"},
			{Name: "pageInfo", Selections: []*selection.Field{
				{Name: "hasNextPage"}, {Name: "hasPreviousPage"}, {Name: "startCursor"}, {Name: "endCursor"},
			}},
			{Name: "edges", Selections: []*selection.Field{
				{Name: "cursor"},
				{Name: "node", Selections: []*selection.Field{{Name: "title"}}},
			}},
		},
	})

	out, err := s.Query(node, []any{map[string]any{
		"edges": []any{
			map[string]any{"node": map[string]any{"title": "B"}},
			map[string]any{"node": map[string]any{"title": "C"}},
		},
		"totalCount": int64(5),
	}})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"totalCount": 5,
		"pageInfo": map[string]any{
			"hasNextPage":     true,
			"hasPreviousPage": true,
			"startCursor":     cursor.Encode(1),
			"endCursor":       cursor.Encode(2),
		},
		"edges": []any{
			map[string]any{"cursor": cursor.Encode(1), "node": map[string]any{"title": "B"}},
			map[string]any{"cursor": cursor.Encode(2), "node": map[string]any{"title": "C"}},
		},
	}, out)
}

func TestEmptyConnection(t *testing.T) {
	s, node := compile(t, schematest.Movies, &selection.Field{
		Name: "moviesConnection",
		Selections: []*selection.Field{
			{Name: "totalCount"},
			{Name: "pageInfo", Selections: []*selection.Field{{Name: "startCursor"}, {Name: "hasNextPage"}}},
			{Name: "edges", Selections: []*selection.Field{{Name: "cursor"}}},
		},
	})

	out, err := s.Query(node, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"totalCount": 0,
		"pageInfo":   map[string]any{"startCursor": nil, "hasNextPage": false},
		"edges":      []any{},
	}, out)
}

func TestConnectionEdgeProperties(t *testing.T) {
	s, node := compile(t, schematest.Movies, &selection.Field{
		Name: "movies",
		Selections: []*selection.Field{{
			Name: "actorsConnection",
			Selections: []*selection.Field{{Name: "edges", Selections: []*selection.Field{
				{Name: "properties", Selections: []*selection.Field{{Name: "role"}}},
				{Name: "node", Selections: []*selection.Field{{Name: "name"}}},
			}}},
		}},
	})

	out, err := s.Query(node, []any{map[string]any{
		"actorsConnection": map[string]any{
			"edges": []any{map[string]any{
				"node":       map[string]any{"name": "Keanu Reeves"},
				"properties": map[string]any{"role": "Neo"},
			}},
			"totalCount": int64(1),
		},
	}})
	require.NoError(t, err)

	movie := out.([]any)[0].(map[string]any)
	assert.Equal(t, map[string]any{
		"edges": []any{map[string]any{
			"properties": map[string]any{"role": "Neo"},
			"node":       map[string]any{"name": "Keanu Reeves"},
		}},
	}, movie["actorsConnection"])
}

func TestAggregate(t *testing.T) {
	field := &selection.Field{
		Name: "moviesAggregate",
		Selections: []*selection.Field{
			{Name: "count"},
			{Name: "__typename"},
			{Name: "released", Selections: []*selection.Field{{Name: "min"}, {Name: "max"}, {Name: "average"}}},
			{Name: "title", Selections: []*selection.Field{{Name: "shortest"}, {Name: "longest"}}},
		},
	}

	tests := []struct {
		name   string
		values []any
		want   map[string]any
	}{
		{
			name: "values",
			values: []any{map[string]any{
				"__count":  int64(3),
				"count":    int64(3),
				"released": map[string]any{"min": int64(1999), "max": int64(2003), "average": 2001.0},
				"title":    map[string]any{"shortest": "Speed", "longest": "The Matrix Reloaded"},
			}},
			want: map[string]any{
				"count":      3,
				"__typename": "MovieAggregateSelection",
				"released":   map[string]any{"min": 1999, "max": 2003, "average": 2001.0},
				"title":      map[string]any{"shortest": "Speed", "longest": "The Matrix Reloaded"},
			},
		},
		{
			name: "no matches",
			values: []any{map[string]any{
				"__count":  int64(0),
				"count":    int64(0),
				"released": map[string]any{"min": nil, "max": nil, "average": nil},
				"title":    map[string]any{"shortest": nil, "longest": nil},
			}},
			want: map[string]any{
				"count":      0,
				"__typename": "MovieAggregateSelection",
				"released":   map[string]any{"min": nil, "max": nil, "average": nil},
				"title":      map[string]any{"shortest": nil, "longest": nil},
			},
		},
		{
			name: "matches without values",
			values: []any{map[string]any{
				"__count":  int64(2),
				"count":    int64(2),
				"released": map[string]any{"min": nil, "max": nil, "average": nil},
				"title":    map[string]any{"shortest": nil, "longest": nil},
			}},
			want: map[string]any{
				"count":      2,
				"__typename": "MovieAggregateSelection",
				"released":   map[string]any{"min": nil, "max": nil, "average": nil},
				"title":      map[string]any{"shortest": nil, "longest": nil},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, node := compile(t, schematest.Movies, field)
			out, err := s.Query(node, tt.values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestSpatialAndTemporalValues(t *testing.T) {
	s, node := compile(t, schematest.Movies, &selection.Field{
		Name:       "movies",
		Selections: []*selection.Field{{Name: "location"}, {Name: "runtime"}},
	})

	out, err := s.Query(node, []any{map[string]any{
		"location": dbtype.Point2D{X: 12.5, Y: 55.7, SpatialRefId: 4326},
		"runtime":  dbtype.Duration{Months: 0, Days: 0, Seconds: 8160},
	}})
	require.NoError(t, err)

	movie := out.([]any)[0].(map[string]any)
	point := movie["location"].(map[string]interface{})
	assert.Equal(t, 12.5, point["longitude"])
	assert.Equal(t, 55.7, point["latitude"])
	assert.Equal(t, "PT2H16M", movie["runtime"])
}

func TestUnexpectedShape(t *testing.T) {
	s, node := compile(t, schematest.Movies, &selection.Field{Name: "movies", Selections: []*selection.Field{{Name: "title"}}})
	_, err := s.Query(node, []any{"not a map"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected a map")
}

func TestMutationResponse(t *testing.T) {
	const typeDefs = `type Tag @node { name: String! }`
	model := schematest.Build(t, typeDefs)
	compiler := plan.NewCompiler(filter.NewCompiler(model, auth.Anonymous(), nil))
	planner := mutation.NewPlanner(compiler)
	s := New(model, nil)

	create := &selection.Field{
		Name:      "createTags",
		Arguments: map[string]any{"input": []any{map[string]any{"name": "go"}}},
		Selections: []*selection.Field{
			{Name: "__typename"},
			{Name: "tags", Selections: []*selection.Field{{Name: "name"}}},
			{Name: "info", Selections: []*selection.Field{{Name: "nodesCreated"}, {Name: "bookmark"}, {Name: "__typename"}}},
		},
	}
	pl, err := planner.Plan(context.Background(), create)
	require.NoError(t, err)

	out, err := s.Mutation(pl, create, map[string]any{
		"tags":     []any{map[string]any{"name": "go"}},
		"__events": []any{},
	}, Summary{Counters: mutation.Counters{NodesCreated: 1}, Bookmark: "bm:1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"__typename": "CreateTagsMutationResponse",
		"tags":       []any{map[string]any{"name": "go"}},
		"info":       map[string]any{"nodesCreated": 1, "bookmark": "bm:1", "__typename": "CreateInfo"},
	}, out)

	del := &selection.Field{
		Name:       "deleteTags",
		Arguments:  map[string]any{"where": map[string]any{"name": "go"}},
		Selections: []*selection.Field{{Name: "nodesDeleted"}, {Alias: "rels", Name: "relationshipsDeleted"}},
	}
	pl, err = planner.Plan(context.Background(), del)
	require.NoError(t, err)
	out, err = s.Mutation(pl, del, map[string]any{"__events": []any{}}, Summary{Counters: mutation.Counters{NodesDeleted: 2}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"nodesDeleted": 2, "rels": 0}, out)
}
