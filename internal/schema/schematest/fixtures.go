// Package schematest provides type definitions and model helpers shared by
// package tests.
package schematest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"neo4j-graphql/internal/schema"
)

// Movies is a small movie graph with relationship properties, a union,
// computed fields, timestamps and a callback.
const Movies = `
type Movie @node {
	id: ID! @id
	title: String!
	released: Int
	rating: Float
	tags: [String!]
	runtime: Duration
	createdAt: DateTime @timestamp(operations: [CREATE])
	updatedAt: DateTime @timestamp(operations: [UPDATE])
	slug: String @callback(name: "slug", operations: [CREATE])
	touchedBy: String @callback(name: "toucher", operations: [UPDATE])
	location: Point
	actors: [Actor!]! @relationship(type: "ACTED_IN", direction: IN, properties: "ActedIn")
	genres: [Genre!]! @relationship(type: "IN_GENRE", direction: OUT)
	director: Person @relationship(type: "DIRECTED", direction: IN)
	actorCount: Int @cypher(statement: "MATCH (this)<-[:ACTED_IN]-(a:Actor) RETURN count(a) AS total", columnName: "total")
}

type Actor @node {
	name: String!
	born: Int
	nickname: String
	movies: [Movie!]! @relationship(type: "ACTED_IN", direction: OUT, properties: "ActedIn")
}

type Person @node(labels: ["Person", "Director"]) {
	name: String!
	directed: [Movie!]! @relationship(type: "DIRECTED", direction: OUT, onDelete: CASCADE)
}

type ActedIn @relationshipProperties {
	role: String
	screenTime: Int
}

type Genre @node {
	name: String! @unique
	movies: [Movie!]! @relationship(type: "IN_GENRE", direction: IN)
	search: [Search!]! @relationship(type: "SEARCH", direction: OUT)
}

union Search = Genre | Movie
`

// Productions is a multi-level interface chain whose relationship is
// redeclared at every level and implemented with different properties types.
const Productions = `
interface Thing {
	title: String!
	actors: [Actor!]! @declareRelationship
}

interface WatchableThing implements Thing {
	title: String!
	actors: [Actor!]! @declareRelationship
}

interface Show implements WatchableThing & Thing {
	title: String!
	actors: [Actor!]! @declareRelationship
}

interface Production implements Show & WatchableThing & Thing {
	title: String!
	actors: [Actor!]! @declareRelationship
}

type Movie implements Production & Show & WatchableThing & Thing @node {
	title: String!
	runtime: Int
	actors: [Actor!]! @relationship(type: "ACTED_IN", direction: IN, properties: "ActedIn")
}

type Series implements Production & Show & WatchableThing & Thing @node {
	title: String!
	episodes: Int
	actors: [Actor!]! @relationship(type: "STARRED_IN", direction: IN, properties: "StarredIn")
}

type Actor @node {
	name: String!
	actedIn: [Production!]! @relationship(type: "ACTED_IN", direction: OUT, properties: "ActedIn")
}

type ActedIn @relationshipProperties {
	screenTime: Int!
}

type StarredIn @relationshipProperties {
	episodeNr: Int!
}
`

// Secured attaches authentication and authorization rules to users and posts.
const Secured = `
type User @node @authorization(
	filter: [{ where: { node: { id: "$jwt.sub" } } }]
	validate: [{ operations: [UPDATE], when: [BEFORE], where: { node: { id: "$jwt.sub" } } }]
) {
	id: ID!
	name: String
	posts: [Post!]! @relationship(type: "HAS_POST", direction: OUT)
}

type Post @node @authorization(
	validate: [{ operations: [CREATE_RELATIONSHIP, DELETE_RELATIONSHIP], where: { jwt: { roles_INCLUDES: "editor" } } }]
) {
	id: ID! @id
	content: String
	author: User @relationship(type: "HAS_POST", direction: IN)
}

type AdminNote @node @authentication(operations: [READ, CREATE]) {
	text: String
}
`

// Build compiles typeDefs with every fixture callback registered.
func Build(t testing.TB, typeDefs string) *schema.Model {
	t.Helper()
	model, err := schema.Build(typeDefs, schema.WithCallbacks("slug", "toucher"))
	require.NoError(t, err)
	return model
}

// Entity returns a named entity from model.
func Entity(t testing.TB, model *schema.Model, name string) *schema.Entity {
	t.Helper()
	entity, ok := model.Entity(name)
	require.True(t, ok, "entity %s", name)
	return entity
}
