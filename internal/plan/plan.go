// Package plan compiles selection trees into query plan trees: one node per
// traversal, with filters, sort, pagination and the projection requested
// for every concrete type the traversal can reach.
package plan

import (
	"fmt"

	"neo4j-graphql/internal/filter"
	"neo4j-graphql/internal/schema"
)

// Kind is the shape a traversal returns.
type Kind int

const (
	KindList Kind = iota
	KindSingle
	KindConnection
	KindAggregate
)

func (k Kind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindSingle:
		return "single"
	case KindConnection:
		return "connection"
	case KindAggregate:
		return "aggregate"
	}
	return "unknown"
}

// Node is one traversal: a root match or a relationship field.
type Node struct {
	Kind Kind
	// Key is the response key the traversal fills.
	Key string
	// Entity is the declared target; it may be an interface or union.
	Entity       *schema.Entity
	Relationship *schema.Relationship
	Properties   *schema.RelationshipProperties
	// Var names the collected result of the traversal.
	Var      string
	Branches []*Branch
	Sort     []SortKey
	Limit    *int
	Offset   int
	// NonNull marks list relationships declared non-nullable, which render
	// an empty list rather than null.
	NonNull    bool
	Connection *Connection
	Aggregate  []*AggregateField
}

// Abstract reports whether items need a label discriminator.
func (n *Node) Abstract() bool {
	return n.Entity.IsAbstract()
}

// Branch is the part of a traversal bound to one concrete entity.
type Branch struct {
	Entity *schema.Entity
	// Var is the node variable, RelVar the relationship variable ("" at root).
	Var    string
	RelVar string
	// Where combines the caller's filter and the READ authorization filter.
	Where filter.Predicate
	// Guards must all hold, otherwise the statement fails with Forbidden.
	Guards []filter.Predicate
	Fields []*Projection
	// Edge is the relationship properties projection of connection edges.
	Edge []*Projection
}

// ProjectionKind identifies what a projected field reads.
type ProjectionKind int

const (
	ProjectAttribute ProjectionKind = iota
	ProjectComputed
	ProjectTypename
	ProjectRelationship
)

// Projection is one selected field of a branch.
type Projection struct {
	Key       string
	Kind      ProjectionKind
	Attribute *schema.Attribute
	Computed  *schema.Computed
	Child     *Node
	// Var names the subquery result of computed fields.
	Var string
}

// SortKey orders a traversal on a node or edge attribute.
type SortKey struct {
	Scope      filter.Scope
	Field      string
	Descending bool
}

// Connection lists the selected fields of a connection.
type Connection struct {
	Fields []*ConnectionField
}

// ConnectionFieldKind identifies a connection or edge field.
type ConnectionFieldKind int

const (
	ConnTotalCount ConnectionFieldKind = iota
	ConnPageInfo
	ConnEdges
	ConnTypename
	EdgeCursor
	EdgeNode
	EdgeProperties
	PageHasNext
	PageHasPrevious
	PageStartCursor
	PageEndCursor
)

// ConnectionField is a field of a connection, its edges or its pageInfo.
// Node and properties fields read the branch projections.
type ConnectionField struct {
	Key      string
	Kind     ConnectionFieldKind
	Typename string
	Children []*ConnectionField
}

// AggregateFieldKind identifies an aggregate selection.
type AggregateFieldKind int

const (
	AggregateCount AggregateFieldKind = iota
	AggregateGroup
	AggregateAttribute
	AggregateTypename
)

// AggregateField is one selection of an aggregate. Groups are the `node` and
// `edge` wrappers of relationship aggregates; attributes list the
// functions computed over them.
type AggregateField struct {
	Key       string
	Kind      AggregateFieldKind
	Scope     filter.Scope
	Typename  string
	Attribute *schema.Attribute
	Functions []AggregateFunction
	Children  []*AggregateField
}

// AggregateFunction is one function selected for an attribute, e.g. max.
type AggregateFunction struct {
	Key  string
	Name string
}

// Aggregate function names as selected in GraphQL.
const (
	FuncMin      = "min"
	FuncMax      = "max"
	FuncAverage  = "average"
	FuncSum      = "sum"
	FuncShortest = "shortest"
	FuncLongest  = "longest"
)

// Namer hands out variable names unique within one statement.
type Namer struct {
	next int
}

// Next returns prefix followed by a fresh number.
func (n *Namer) Next(prefix string) string {
	name := fmt.Sprintf("%s%d", prefix, n.next)
	n.next++
	return name
}
