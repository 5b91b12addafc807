package cypher

import (
	"fmt"
	"strings"

	"neo4j-graphql/internal/filter"
	"neo4j-graphql/internal/schema"
)

// bindings maps predicate scopes to statement variables.
type bindings struct {
	node string
	edge string
	// aggregates holds the WITH aliases of aggregate comparisons.
	aggregates map[*filter.AggregateComparison]string
}

// where renders the conjunction of preds, or "" when all are nil.
func (e *Emitter) where(b bindings, preds ...filter.Predicate) string {
	combined := filter.Conjoin(preds...)
	if combined == nil {
		return ""
	}
	return e.predicate(combined, b)
}

func (e *Emitter) predicate(p filter.Predicate, b bindings) string {
	switch v := p.(type) {
	case nil:
		return "true"
	case filter.Const:
		if v.Value {
			return "true"
		}
		return "false"
	case *filter.And:
		return e.junction(v.Children, " AND ", "true", b)
	case *filter.Or:
		return e.junction(v.Children, " OR ", "false", b)
	case *filter.Not:
		return "NOT (" + e.predicate(v.Child, b) + ")"
	case *filter.Comparison:
		return e.comparison(v, b)
	case *filter.Quantifier:
		return e.quantifier(v, b)
	case *filter.Aggregate:
		return e.aggregatePredicate(v, b)
	case *filter.AggregateComparison:
		alias := b.aggregates[v]
		return e.compare(alias, v.Operator, v.Semantic, v.Value, alias)
	}
	panic(fmt.Sprintf("cypher: unsupported predicate %T", p))
}

func (e *Emitter) junction(children []filter.Predicate, sep, empty string, b bindings) string {
	if len(children) == 0 {
		return empty
	}
	parts := make([]string, len(children))
	for i, child := range children {
		parts[i] = e.predicate(child, b)
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func (e *Emitter) comparison(c *filter.Comparison, b bindings) string {
	var lhs, scope string
	switch c.Scope {
	case filter.ScopeEdge:
		lhs, scope = property(b.edge, c.Property), b.edge
	case filter.ScopeJWT:
		lhs = e.params.Add("jwt", e.claim(c.Property))
		scope = "jwt"
	default:
		lhs, scope = property(b.node, c.Property), b.node
	}
	return e.compare(lhs, c.Operator, c.Semantic, c.Value, scope)
}

func (e *Emitter) compare(lhs string, op filter.Operator, semantic schema.Semantic, value any, scope string) string {
	if op == filter.OpEqual && value == nil {
		return lhs + " IS NULL"
	}
	if pd, ok := value.(filter.PointDistance); ok {
		dist := fmt.Sprintf("point.distance(%s, %s)", lhs, e.params.Add(scope, pd.Point))
		return dist + " " + symbol(op) + " " + e.params.Add(scope, pd.Distance)
	}
	param := e.params.Add(scope, value)
	switch op {
	case filter.OpIn:
		return lhs + " IN " + param
	case filter.OpIncludes:
		return param + " IN " + lhs
	case filter.OpContains:
		return lhs + " CONTAINS " + param
	case filter.OpStartsWith:
		return lhs + " STARTS WITH " + param
	case filter.OpEndsWith:
		return lhs + " ENDS WITH " + param
	case filter.OpMatches:
		return lhs + " =~ " + param
	}
	if semantic == schema.SemanticDuration && op != filter.OpEqual {
		// Durations only order once anchored to an instant.
		return fmt.Sprintf("datetime() + %s %s datetime() + %s", lhs, symbol(op), param)
	}
	return lhs + " " + symbol(op) + " " + param
}

func symbol(op filter.Operator) string {
	switch op {
	case filter.OpLessThan:
		return "<"
	case filter.OpLessThanEqual:
		return "<="
	case filter.OpGreaterThan:
		return ">"
	case filter.OpGreaterThanEqual:
		return ">="
	}
	return "="
}

// quantifier renders relationship quantifiers as existential subqueries.
// ALL requires at least one related node and none failing the predicate.
func (e *Emitter) quantifier(q *filter.Quantifier, b bindings) string {
	relVar := e.names.Next("this")
	nodeVar := e.names.Next("this")
	pat := pattern(b.node, q.Relationship, relVar, nodeVar, nil)
	inner := bindings{node: nodeVar, edge: relVar}

	switch q.Kind {
	case filter.QuantNone:
		return "NOT " + exists(pat, e.targets(q.Targets, inner, testMatching))
	case filter.QuantAll:
		return "(" + exists(pat, e.targets(q.Targets, inner, testLabels)) +
			" AND NOT " + exists(pat, e.targets(q.Targets, inner, testFailing)) + ")"
	case filter.QuantSingle:
		return fmt.Sprintf("size([%s WHERE %s | 1]) = 1", pat, e.targets(q.Targets, inner, testMatching))
	}
	return exists(pat, e.targets(q.Targets, inner, testMatching))
}

type targetTest int

const (
	testLabels targetTest = iota
	testMatching
	testFailing
)

// targets renders the OR over every target's label test, combined with its
// predicate or the predicate's negation.
func (e *Emitter) targets(targets []filter.Target, b bindings, test targetTest) string {
	parts := make([]string, 0, len(targets))
	for _, t := range targets {
		cond := b.node + labelExpr(t.Entity.Labels)
		pred := t.Where
		if test == testFailing {
			pred = filter.Negate(pred)
		}
		if test != testLabels && pred != nil {
			cond = "(" + cond + " AND " + e.predicate(pred, b) + ")"
		}
		parts = append(parts, cond)
	}
	if len(parts) == 0 {
		return "false"
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

func exists(pat, where string) string {
	if where == "" {
		return "EXISTS { MATCH " + pat + " }"
	}
	return "EXISTS { MATCH " + pat + " WHERE " + where + " }"
}

// aggregatePredicate computes every aggregate the predicate compares in one
// WITH and tests the combined tree against those values.
func (e *Emitter) aggregatePredicate(a *filter.Aggregate, b bindings) string {
	relVar := e.names.Next("this")
	nodeVar := e.names.Next("this")
	pat := pattern(b.node, a.Relationship, relVar, nodeVar, a.Target.Labels)

	aliases := make(map[*filter.AggregateComparison]string)
	var columns []string
	collectAggregates(a.Where, func(ac *filter.AggregateComparison) {
		alias := e.names.Next("var")
		aliases[ac] = alias
		target := nodeVar
		if ac.Scope == filter.ScopeEdge {
			target = relVar
		}
		columns = append(columns, aggregateExpr(ac.Function, target, ac.Property)+" AS "+alias)
	})
	inner := bindings{node: nodeVar, edge: relVar, aggregates: aliases}
	cond := e.predicate(a.Where, inner)
	if len(columns) == 0 {
		return exists(pat, "")
	}
	return fmt.Sprintf("EXISTS { MATCH %s WITH %s WHERE %s RETURN 1 }", pat, strings.Join(columns, ", "), cond)
}

func collectAggregates(p filter.Predicate, visit func(*filter.AggregateComparison)) {
	switch v := p.(type) {
	case *filter.And:
		for _, child := range v.Children {
			collectAggregates(child, visit)
		}
	case *filter.Or:
		for _, child := range v.Children {
			collectAggregates(child, visit)
		}
	case *filter.Not:
		collectAggregates(v.Child, visit)
	case *filter.AggregateComparison:
		visit(v)
	}
}

func aggregateExpr(fn filter.AggregateFunction, variable, prop string) string {
	switch fn {
	case filter.AggCount:
		return "count(" + variable + ")"
	case filter.AggAverage:
		return "avg(" + property(variable, prop) + ")"
	case filter.AggSum:
		return "sum(" + property(variable, prop) + ")"
	case filter.AggMin:
		return "min(" + property(variable, prop) + ")"
	case filter.AggMax:
		return "max(" + property(variable, prop) + ")"
	case filter.AggShortestLength:
		return "min(size(" + property(variable, prop) + "))"
	case filter.AggLongestLength:
		return "max(size(" + property(variable, prop) + "))"
	case filter.AggAverageLength:
		return "avg(size(" + property(variable, prop) + "))"
	}
	return "null"
}

// pattern renders a one-hop relationship pattern from a bound node.
func pattern(from string, rel *schema.Relationship, relVar, to string, labels []string) string {
	r := fmt.Sprintf("[%s:%s]", relVar, escape(rel.Type))
	n := fmt.Sprintf("(%s%s)", to, labelExpr(labels))
	switch rel.Direction {
	case schema.DirectionIn:
		return fmt.Sprintf("(%s)<-%s-%s", from, r, n)
	case schema.DirectionBoth:
		return fmt.Sprintf("(%s)-%s-%s", from, r, n)
	}
	return fmt.Sprintf("(%s)-%s->%s", from, r, n)
}
