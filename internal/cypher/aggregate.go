package cypher

import (
	"fmt"
	"strings"

	"neo4j-graphql/internal/filter"
	"neo4j-graphql/internal/plan"
)

// aggregate writes an aggregate traversal. The map always carries a hidden
// count so the subquery yields a row even when nothing else is selected.
func (e *Emitter) aggregate(w *writer, node *plan.Node, parent, final, target string) error {
	if len(node.Branches) != 1 {
		return fmt.Errorf("aggregate %s must have exactly one branch", node.Key)
	}
	branch := node.Branches[0]
	e.match(w, node, branch, parent)
	entries := append([]string{fmt.Sprintf("__count: count(%s)", branch.Var)}, e.aggregateEntries(branch, node.Aggregate)...)
	w.line("%s { %s } AS %s", final, strings.Join(entries, ", "), target)
	return nil
}

func (e *Emitter) aggregateEntries(branch *plan.Branch, fields []*plan.AggregateField) []string {
	var entries []string
	for _, f := range fields {
		switch f.Kind {
		case plan.AggregateCount:
			entries = append(entries, fmt.Sprintf("%s: count(%s)", f.Key, branch.Var))
		case plan.AggregateGroup:
			entries = append(entries, fmt.Sprintf("%s: %s", f.Key, mapLiteral(e.aggregateEntries(branch, f.Children))))
		case plan.AggregateAttribute:
			variable := branch.Var
			if f.Scope == filter.ScopeEdge {
				variable = branch.RelVar
			}
			value := property(variable, f.Attribute.Property)
			var fns []string
			for _, fn := range f.Functions {
				if expr := e.aggregateFunction(fn.Name, value); expr != "" {
					fns = append(fns, fmt.Sprintf("%s: %s", fn.Key, expr))
				}
			}
			entries = append(entries, fmt.Sprintf("%s: %s", f.Key, mapLiteral(fns)))
		}
	}
	return entries
}

// aggregateFunction renders one value aggregate. Every function yields null
// when no non-null value exists.
func (e *Emitter) aggregateFunction(name, value string) string {
	switch name {
	case plan.FuncMin:
		return "min(" + value + ")"
	case plan.FuncMax:
		return "max(" + value + ")"
	case plan.FuncAverage:
		return "avg(" + value + ")"
	case plan.FuncSum:
		return fmt.Sprintf("CASE count(%s) WHEN 0 THEN null ELSE sum(%s) END", value, value)
	case plan.FuncShortest, plan.FuncLongest:
		acc, v := e.names.Next("var"), e.names.Next("var")
		cmp := "<"
		if name == plan.FuncLongest {
			cmp = ">"
		}
		return fmt.Sprintf("reduce(%s = null, %s IN collect(%s) | CASE WHEN %s IS NULL OR size(%s) %s size(%s) THEN %s ELSE %s END)",
			acc, v, value, acc, v, cmp, acc, v, acc)
	}
	return ""
}

func mapLiteral(entries []string) string {
	if len(entries) == 0 {
		return "{}"
	}
	return "{ " + strings.Join(entries, ", ") + " }"
}
