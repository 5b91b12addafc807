// Package filter compiles "where" arguments into predicate trees bound to
// schema entities, and evaluates those trees against in-memory subjects.
package filter

import "neo4j-graphql/internal/schema"

// Scope selects what a comparison reads from: the node, the relationship
// being traversed, or the request's JWT claims.
type Scope int

const (
	ScopeNode Scope = iota
	ScopeEdge
	ScopeJWT
)

// Operator is a comparison operator.
type Operator string

const (
	OpEqual            Operator = "EQ"
	OpIn               Operator = "IN"
	OpLessThan         Operator = "LT"
	OpLessThanEqual    Operator = "LTE"
	OpGreaterThan      Operator = "GT"
	OpGreaterThanEqual Operator = "GTE"
	OpContains         Operator = "CONTAINS"
	OpStartsWith       Operator = "STARTS_WITH"
	OpEndsWith         Operator = "ENDS_WITH"
	OpMatches          Operator = "MATCHES"
	OpIncludes         Operator = "INCLUDES"
	OpDistance         Operator = "DISTANCE"
)

// QuantifierKind is how many related nodes must match.
type QuantifierKind string

const (
	QuantSome   QuantifierKind = "SOME"
	QuantAll    QuantifierKind = "ALL"
	QuantNone   QuantifierKind = "NONE"
	QuantSingle QuantifierKind = "SINGLE"
)

// AggregateFunction is applied to related values before comparison.
type AggregateFunction string

const (
	AggCount          AggregateFunction = "COUNT"
	AggAverage        AggregateFunction = "AVERAGE"
	AggSum            AggregateFunction = "SUM"
	AggMin            AggregateFunction = "MIN"
	AggMax            AggregateFunction = "MAX"
	AggShortestLength AggregateFunction = "SHORTEST_LENGTH"
	AggLongestLength  AggregateFunction = "LONGEST_LENGTH"
	AggAverageLength  AggregateFunction = "AVERAGE_LENGTH"
)

// Predicate is a node of a compiled filter. The concrete types are Const,
// And, Or, Not, Comparison, Quantifier, Aggregate and AggregateComparison.
type Predicate interface {
	isPredicate()
}

// Const is a predicate known at compile time.
type Const struct {
	Value bool
}

// And matches when every child matches; with no children it is always true.
type And struct {
	Children []Predicate
}

// Or matches when any child matches; with no children it is always false.
type Or struct {
	Children []Predicate
}

// Not negates its child.
type Not struct {
	Child Predicate
}

// Comparison tests one property against a value. A nil Value with OpEqual
// is a null check.
type Comparison struct {
	Scope    Scope
	Field    string
	Property string
	Semantic schema.Semantic
	List     bool
	Operator Operator
	Value    any
}

// PointDistance is the operand of distance comparisons on spatial fields.
type PointDistance struct {
	Point    any
	Distance float64
}

// Target is one concrete entity reachable through a relationship, with the
// predicate related nodes of that entity must satisfy. Where may mix node
// and edge comparisons; nil matches everything.
type Target struct {
	Entity *schema.Entity
	Where  Predicate
}

// Quantifier tests related nodes reached through Relationship.
type Quantifier struct {
	Kind         QuantifierKind
	Relationship *schema.Relationship
	Targets      []Target
}

// Aggregate compares aggregated values over related nodes and edges.
// Where is built from AggregateComparison leaves and combinators.
type Aggregate struct {
	Relationship *schema.Relationship
	Target       *schema.Entity
	Where        Predicate
}

// AggregateComparison compares the result of Function over a related
// property. COUNT ignores Property.
type AggregateComparison struct {
	Scope    Scope
	Property string
	Semantic schema.Semantic
	Function AggregateFunction
	Operator Operator
	Value    any
}

func (Const) isPredicate()                {}
func (*And) isPredicate()                 {}
func (*Or) isPredicate()                  {}
func (*Not) isPredicate()                 {}
func (*Comparison) isPredicate()          {}
func (*Quantifier) isPredicate()          {}
func (*Aggregate) isPredicate()           {}
func (*AggregateComparison) isPredicate() {}

// Conjoin ANDs predicates, dropping nils and flattening constants.
func Conjoin(preds ...Predicate) Predicate {
	var children []Predicate
	for _, p := range preds {
		switch v := p.(type) {
		case nil:
			continue
		case Const:
			if !v.Value {
				return Const{Value: false}
			}
			continue
		case *And:
			children = append(children, v.Children...)
		default:
			children = append(children, p)
		}
	}
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return &And{Children: children}
}

// Disjoin ORs predicates. A nil predicate matches everything, so any nil
// input makes the result nil.
func Disjoin(preds ...Predicate) Predicate {
	children := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		switch v := p.(type) {
		case nil:
			return nil
		case Const:
			if v.Value {
				return nil
			}
			continue
		default:
			children = append(children, p)
		}
	}
	if len(children) == 1 {
		return children[0]
	}
	return &Or{Children: children}
}

// Negate wraps p in Not, folding constants. Negating nil (match-all) yields
// a constant false.
func Negate(p Predicate) Predicate {
	switch v := p.(type) {
	case nil:
		return Const{Value: false}
	case Const:
		return Const{Value: !v.Value}
	case *Not:
		return v.Child
	}
	return &Not{Child: p}
}

// UsesEdge reports whether p reads relationship properties.
func UsesEdge(p Predicate) bool {
	switch v := p.(type) {
	case *Comparison:
		return v.Scope == ScopeEdge
	case *And:
		for _, c := range v.Children {
			if UsesEdge(c) {
				return true
			}
		}
	case *Or:
		for _, c := range v.Children {
			if UsesEdge(c) {
				return true
			}
		}
	case *Not:
		return UsesEdge(v.Child)
	}
	return false
}
