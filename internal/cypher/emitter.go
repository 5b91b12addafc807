// Package cypher emits one parameterized Cypher statement per operation
// from query plans and mutation plans.
package cypher

import (
	"fmt"
	"strings"

	"neo4j-graphql/internal/auth"
	"neo4j-graphql/internal/filter"
	"neo4j-graphql/internal/plan"
)

// ResultColumn is the column every emitted statement returns.
const ResultColumn = "this"

// Statement is an emitted Cypher statement and its parameters.
type Statement struct {
	Text   string
	Params map[string]any
}

// Emitter renders plans into statements. It is single use per operation and
// continues the variable numbering of the plan compiler.
type Emitter struct {
	names  *plan.Namer
	params *Params
	claims map[string]any
}

// Option customizes an Emitter.
type Option func(*Emitter)

// WithClaims exposes the caller's claims to computed field statements as
// $jwt.
func WithClaims(claims map[string]any) Option {
	return func(e *Emitter) {
		e.claims = claims
	}
}

// New creates an emitter sharing names with the plan compiler.
func New(names *plan.Namer, opts ...Option) *Emitter {
	if names == nil {
		names = &plan.Namer{}
	}
	e := &Emitter{names: names, params: NewParams()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Params returns the emitter's parameter set.
func (e *Emitter) Params() *Params { return e.params }

func (e *Emitter) claim(path string) any {
	return auth.Lookup(e.claims, path)
}

// Query emits a read statement for a root traversal. Lists return one row
// per item; connections and aggregates return a single row.
func (e *Emitter) Query(node *plan.Node) (Statement, error) {
	w := &writer{}
	switch node.Kind {
	case plan.KindAggregate:
		if err := e.aggregate(w, node, "", "RETURN", ResultColumn); err != nil {
			return Statement{}, err
		}
	case plan.KindConnection:
		if err := e.connection(w, node, "", "RETURN", ResultColumn); err != nil {
			return Statement{}, err
		}
	default:
		if err := e.items(w, node, "", ResultColumn); err != nil {
			return Statement{}, err
		}
		e.order(w, node, ResultColumn)
		w.line("RETURN %s", ResultColumn)
	}
	return Statement{Text: w.String(), Params: e.params.Values()}, nil
}

// items writes the rows of every branch, bound to item. Several branches
// are unioned inside a subquery; a single branch is written inline.
func (e *Emitter) items(w *writer, node *plan.Node, parent, item string) error {
	switch len(node.Branches) {
	case 0:
		w.line("UNWIND [] AS %s", item)
		return nil
	case 1:
		return e.branch(w, node, node.Branches[0], parent, "WITH", item)
	}
	var err error
	w.block("CALL {", "}", func() {
		for i, branch := range node.Branches {
			if i > 0 {
				w.line("UNION")
			}
			if parent != "" {
				w.line("WITH %s", parent)
			}
			if err = e.branch(w, node, branch, parent, "RETURN", item); err != nil {
				return
			}
		}
	})
	return err
}

// branch writes MATCH, WHERE, nested subqueries and the item projection of
// one branch, finishing with `<final> <projection> AS item`.
func (e *Emitter) branch(w *writer, node *plan.Node, branch *plan.Branch, parent, final, item string) error {
	e.match(w, node, branch, parent)
	if err := e.subqueries(w, branch); err != nil {
		return err
	}
	w.line("%s %s AS %s", final, e.itemExpr(node, branch), item)
	return nil
}

func (e *Emitter) match(w *writer, node *plan.Node, branch *plan.Branch, parent string) {
	if node.Relationship == nil {
		w.line("MATCH (%s%s)", branch.Var, labelExpr(branch.Entity.Labels))
	} else {
		w.line("MATCH %s", pattern(parent, node.Relationship, branch.RelVar, branch.Var, branch.Entity.Labels))
	}
	b := bindings{node: branch.Var, edge: branch.RelVar}
	conds := e.where(b, branch.Where)
	if guard := e.guards(b, branch.Guards); guard != "" {
		if conds == "" {
			conds = guard
		} else {
			conds = conds + " AND " + guard
		}
	}
	if conds != "" {
		w.line("WHERE %s", conds)
	}
}

// guards renders authorization validations that abort the statement with
// the forbidden sentinel when they fail.
func (e *Emitter) guards(b bindings, guards []filter.Predicate) string {
	pred := filter.Conjoin(guards...)
	if pred == nil {
		return ""
	}
	msg := e.params.Set("forbidden", auth.ForbiddenSentinel)
	return fmt.Sprintf("apoc.util.validatePredicate(NOT (%s), %s, [0])", e.predicate(pred, b), msg)
}

// subqueries writes the CALL blocks of computed fields and child
// traversals of a branch.
func (e *Emitter) subqueries(w *writer, branch *plan.Branch) error {
	for _, proj := range branch.Fields {
		switch proj.Kind {
		case plan.ProjectComputed:
			e.computed(w, branch, proj)
		case plan.ProjectRelationship:
			if err := e.child(w, branch.Var, proj.Child); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Emitter) computed(w *writer, branch *plan.Branch, proj *plan.Projection) {
	if e.claims != nil {
		e.params.Set("jwt", e.claims)
	}
	collect := "head(collect(" + escape(proj.Computed.Column) + "))"
	if proj.Computed.Type.List {
		collect = "collect(" + escape(proj.Computed.Column) + ")"
	}
	w.block("CALL {", "}", func() {
		w.line("WITH %s", branch.Var)
		w.block("CALL {", "}", func() {
			w.line("WITH %s", branch.Var)
			w.line("WITH %s AS this", branch.Var)
			for _, l := range strings.Split(strings.TrimSpace(proj.Computed.Statement), "\n") {
				w.line("%s", strings.TrimSpace(l))
			}
		})
		w.line("RETURN %s AS %s", collect, proj.Var)
	})
}

// child writes the subquery of a relationship field, binding node.Var.
func (e *Emitter) child(w *writer, parent string, node *plan.Node) error {
	var err error
	w.block("CALL {", "}", func() {
		w.line("WITH %s", parent)
		switch node.Kind {
		case plan.KindAggregate:
			err = e.aggregate(w, node, parent, "RETURN", node.Var)
		case plan.KindConnection:
			err = e.connection(w, node, parent, "RETURN", node.Var)
		default:
			item := e.names.Next("var")
			if err = e.items(w, node, parent, item); err != nil {
				return
			}
			e.order(w, node, item)
			if node.Kind == plan.KindSingle {
				w.line("RETURN head(collect(%s)) AS %s", item, node.Var)
			} else {
				w.line("RETURN collect(%s) AS %s", item, node.Var)
			}
		}
	})
	return err
}

// order writes sorting and pagination over items. The projection of each
// item carries its sort values under hidden keys.
func (e *Emitter) order(w *writer, node *plan.Node, item string) {
	if len(node.Sort) == 0 && node.Offset == 0 && node.Limit == nil {
		return
	}
	if len(node.Branches) > 1 {
		w.line("WITH %s", item)
	}
	if len(node.Sort) > 0 {
		keys := make([]string, len(node.Sort))
		for i, key := range node.Sort {
			dir := "ASC"
			if key.Descending {
				dir = "DESC"
			}
			keys[i] = fmt.Sprintf("%s.%s %s", item, sortKey(i), dir)
		}
		w.line("ORDER BY %s", strings.Join(keys, ", "))
	}
	if node.Offset > 0 {
		w.line("SKIP %s", e.params.Add(item, int64(node.Offset)))
	}
	if node.Limit != nil {
		w.line("LIMIT %s", e.params.Add(item, int64(*node.Limit)))
	}
}

func sortKey(i int) string {
	return fmt.Sprintf("__sort%d", i)
}

// itemExpr renders the projection of a branch for its traversal kind.
func (e *Emitter) itemExpr(node *plan.Node, branch *plan.Branch) string {
	nodeMap := e.projection(node, branch)
	if node.Kind != plan.KindConnection {
		return nodeMap
	}
	entries := []string{"node: " + nodeMap}
	if branch.RelVar != "" {
		entries = append(entries, "properties: "+edgeProjection(branch))
	}
	entries = append(entries, e.sortEntries(node, branch)...)
	return "{ " + strings.Join(entries, ", ") + " }"
}

// projection renders the node map of a branch: selected attributes,
// computed and relationship results, the label discriminator of abstract
// traversals and the hidden sort values of list traversals.
func (e *Emitter) projection(node *plan.Node, branch *plan.Branch) string {
	var entries []string
	for _, proj := range branch.Fields {
		switch proj.Kind {
		case plan.ProjectAttribute:
			entries = append(entries, fmt.Sprintf("%s: %s", proj.Key, property(branch.Var, proj.Attribute.Property)))
		case plan.ProjectComputed:
			entries = append(entries, fmt.Sprintf("%s: %s", proj.Key, proj.Var))
		case plan.ProjectRelationship:
			entries = append(entries, fmt.Sprintf("%s: %s", proj.Key, proj.Child.Var))
		}
	}
	if node.Abstract() {
		entries = append(entries, fmt.Sprintf("__labels: labels(%s)", branch.Var))
	}
	if node.Kind != plan.KindConnection {
		entries = append(entries, e.sortEntries(node, branch)...)
	}
	if len(entries) == 0 {
		return "{}"
	}
	return "{ " + strings.Join(entries, ", ") + " }"
}

func edgeProjection(branch *plan.Branch) string {
	var entries []string
	for _, proj := range branch.Edge {
		if proj.Kind == plan.ProjectAttribute {
			entries = append(entries, fmt.Sprintf("%s: %s", proj.Key, property(branch.RelVar, proj.Attribute.Property)))
		}
	}
	if len(entries) == 0 {
		return "{}"
	}
	return "{ " + strings.Join(entries, ", ") + " }"
}

func (e *Emitter) sortEntries(node *plan.Node, branch *plan.Branch) []string {
	entries := make([]string, 0, len(node.Sort))
	for i, key := range node.Sort {
		if key.Scope == filter.ScopeEdge {
			attr, _ := node.Properties.Attribute(key.Field)
			entries = append(entries, fmt.Sprintf("%s: %s", sortKey(i), property(branch.RelVar, attr.Property)))
			continue
		}
		prop := key.Field
		if attr, ok := branch.Entity.Attribute(key.Field); ok {
			prop = attr.Property
		}
		entries = append(entries, fmt.Sprintf("%s: %s", sortKey(i), property(branch.Var, prop)))
	}
	return entries
}

// connection writes a connection: every edge item is collected in sort
// order, then sliced to the requested page.
func (e *Emitter) connection(w *writer, node *plan.Node, parent, final, target string) error {
	edge := e.names.Next("edge")
	if err := e.items(w, node, parent, edge); err != nil {
		return err
	}
	if len(node.Sort) > 0 && len(node.Branches) > 1 {
		w.line("WITH %s", edge)
	}
	if len(node.Sort) > 0 {
		keys := make([]string, len(node.Sort))
		for i, key := range node.Sort {
			dir := "ASC"
			if key.Descending {
				dir = "DESC"
			}
			keys[i] = fmt.Sprintf("%s.%s %s", edge, sortKey(i), dir)
		}
		w.line("ORDER BY %s", strings.Join(keys, ", "))
	}
	edges := e.names.Next("edges")
	w.line("WITH collect(%s) AS %s", edge, edges)
	w.line("%s { edges: %s, totalCount: size(%s) } AS %s", final, e.slice(edges, node), edges, target)
	return nil
}

func (e *Emitter) slice(list string, node *plan.Node) string {
	if node.Offset == 0 && node.Limit == nil {
		return list
	}
	from := e.params.Add(list, int64(node.Offset))
	if node.Limit == nil {
		return fmt.Sprintf("%s[%s..]", list, from)
	}
	to := e.params.Add(list, int64(node.Offset+*node.Limit))
	return fmt.Sprintf("%s[%s..%s]", list, from, to)
}
