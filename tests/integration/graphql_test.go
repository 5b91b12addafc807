//go:build integration
// +build integration

package integration

import (
	"context"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateQueryUpdateDelete(t *testing.T) {
	requireIntegrationEnv(t)
	driver := openDriver(t)
	const port = 18081
	startTestServer(t, writeTypeDefs(t, movieTypeDefs), port)

	created, bookmark := postGraphQL(t, port, `
		mutation {
			createMovies(input: [{
				title: "Heat"
				released: 1995
				actors: { create: [{ node: { name: "Al Pacino" }, edge: { role: "Vincent Hanna" } }] }
			}]) {
				movies { title slug }
				info { nodesCreated relationshipsCreated }
			}
		}`, nil, nil)
	require.Empty(t, created.Errors)
	require.NotEmpty(t, bookmark, "writes report a bookmark")
	assert.Equal(t, map[string]any{
		"movies": []any{map[string]any{"title": "Heat", "slug": "heat"}},
		"info":   map[string]any{"nodesCreated": float64(2), "relationshipsCreated": float64(1)},
	}, created.Data["createMovies"])

	queried, _ := postGraphQL(t, port, `
		query ($year: Int) {
			movies(where: { released_GTE: $year }) {
				title
				actorsConnection { edges { properties { role } node { name } } }
			}
		}`, map[string]any{"year": 1990}, map[string]string{"X-Neo4j-Bookmark": bookmark})
	require.Empty(t, queried.Errors)
	assert.Equal(t, []any{map[string]any{
		"title": "Heat",
		"actorsConnection": map[string]any{"edges": []any{map[string]any{
			"properties": map[string]any{"role": "Vincent Hanna"},
			"node":       map[string]any{"name": "Al Pacino"},
		}}},
	}}, queried.Data["movies"])

	updated, _ := postGraphQL(t, port, `
		mutation {
			updateMovies(where: { title: "Heat" }, update: { released: 1996 }) {
				movies { title released }
			}
		}`, nil, nil)
	require.Empty(t, updated.Errors)
	assert.Equal(t, map[string]any{
		"movies": []any{map[string]any{"title": "Heat", "released": float64(1996)}},
	}, updated.Data["updateMovies"])

	deleted, _ := postGraphQL(t, port, `
		mutation { deleteMovies(where: { title: "Heat" }) { nodesDeleted relationshipsDeleted } }`, nil, nil)
	require.Empty(t, deleted.Errors)
	assert.Equal(t, map[string]any{"nodesDeleted": float64(1), "relationshipsDeleted": float64(1)}, deleted.Data["deleteMovies"])

	result, err := neo4j.ExecuteQuery(context.Background(), driver,
		"MATCH (a:Actor {name: 'Al Pacino'}) RETURN count(a) AS total", nil,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(getEnvOrDefault("NEO4J_TEST_DATABASE", "")),
	)
	require.NoError(t, err)
	total, _ := result.Records[0].Get("total")
	assert.Equal(t, int64(1), total, "deleting a movie keeps its actors")
}

func TestRootFieldErrorsAreIsolated(t *testing.T) {
	requireIntegrationEnv(t)
	openDriver(t)
	const port = 18082
	startTestServer(t, writeTypeDefs(t, movieTypeDefs), port)

	resp, _ := postGraphQL(t, port, `{ movies(where: { title_FOO: "x" }) { title } actors { name } }`, nil, nil)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, []any{"movies"}, resp.Errors[0]["path"])
	assert.Equal(t, "BAD_USER_INPUT", resp.Errors[0]["extensions"].(map[string]any)["code"])
	assert.Nil(t, resp.Data["movies"])
	assert.Equal(t, []any{}, resp.Data["actors"])
}
