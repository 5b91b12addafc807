package cypher

import (
	"fmt"
	"strings"

	"neo4j-graphql/internal/auth"
	"neo4j-graphql/internal/mutation"
	"neo4j-graphql/internal/plan"
	"neo4j-graphql/internal/schema"
)

// EventsKey holds the change events in the mutation result map.
const EventsKey = "__events"

// Event names carried by change events.
const (
	EventCreate             = "CREATE"
	EventUpdate             = "UPDATE"
	EventDelete             = "DELETE"
	EventCreateRelationship = "CREATE_RELATIONSHIP"
	EventDeleteRelationship = "DELETE_RELATIONSHIP"
)

// Mutation emits a write statement for a mutation plan. The statement
// returns a single row whose map holds each projection under its response
// key and the change events under EventsKey.
func (e *Emitter) Mutation(pl *mutation.Plan) (Statement, error) {
	w := &writer{}
	switch pl.Kind {
	case mutation.KindCreate:
		nodes := make([]string, 0, len(pl.Steps))
		events := make([]string, 0, len(pl.Steps))
		for _, step := range pl.Steps {
			ev := e.names.Next("ev")
			w.block("CALL {", "}", func() {
				pieces := e.body(w, step)
				w.line("RETURN %s, %s AS %s", step.Var, concat(pieces), ev)
			})
			nodes = append(nodes, step.Var)
			events = append(events, ev)
		}
		w.line("WITH [%s] AS nodes, %s AS events", strings.Join(nodes, ", "), concat(events))
	case mutation.KindUpdate, mutation.KindDelete:
		if len(pl.Steps) != 1 {
			return Statement{}, fmt.Errorf("cypher: %d root steps in %s plan", len(pl.Steps), pl.Entity.Name)
		}
		step := pl.Steps[0]
		pieces := e.body(w, step)
		if pl.Kind == mutation.KindDelete {
			w.line("WITH %s AS events", flatten(concat(pieces)))
			w.line("RETURN { %s: events } AS %s", EventsKey, ResultColumn)
			return Statement{Text: w.String(), Params: e.params.Values()}, nil
		}
		w.line("WITH collect(DISTINCT %s) AS nodes, %s AS events", step.Var, flatten(concat(pieces)))
	}

	entries := make([]string, 0, len(pl.Projections)+1)
	for _, node := range pl.Projections {
		data, err := e.projectNodes(w, node)
		if err != nil {
			return Statement{}, err
		}
		entries = append(entries, fmt.Sprintf("%s: %s", escape(node.Key), data))
	}
	entries = append(entries, EventsKey+": events")
	w.line("RETURN { %s } AS %s", strings.Join(entries, ", "), ResultColumn)
	return Statement{Text: w.String(), Params: e.params.Values()}, nil
}

// projectNodes reads the written nodes back through the READ projection.
func (e *Emitter) projectNodes(w *writer, node *plan.Node) (string, error) {
	if len(node.Branches) != 1 {
		return "", fmt.Errorf("cypher: mutation projection of %s needs one branch", node.Entity.Name)
	}
	branch := node.Branches[0]
	data := e.names.Next("data")
	var err error
	w.block("CALL {", "}", func() {
		w.line("WITH nodes")
		w.line("UNWIND nodes AS %s", branch.Var)
		w.line("WITH %s", branch.Var)
		b := bindings{node: branch.Var}
		conds := e.where(b, branch.Where)
		if guard := e.guards(b, branch.Guards); guard != "" {
			conds = joinConds(conds, guard)
		}
		if conds != "" {
			w.line("WHERE %s", conds)
		}
		if err = e.subqueries(w, branch); err != nil {
			return
		}
		w.line("RETURN collect(%s) AS %s", e.projection(node, branch), data)
	})
	return data, err
}

// stepCall wraps a nested step in a subquery that imports its parent and
// returns the step's flattened events, so the outer row survives when the
// step matches nothing.
func (e *Emitter) stepCall(w *writer, step *mutation.Step) string {
	ev := e.names.Next("ev")
	w.line("WITH *")
	w.block("CALL {", "}", func() {
		if step.Parent != "" {
			w.line("WITH %s", step.Parent)
		}
		pieces := e.body(w, step)
		w.line("RETURN %s AS %s", flatten(concat(pieces)), ev)
	})
	return ev
}

// body writes the clauses of one step in the current scope and returns the
// event list expressions of the step and its children, in step order.
func (e *Emitter) body(w *writer, step *mutation.Step) []string {
	switch step.Kind {
	case mutation.StepCreateNode:
		return e.createNode(w, step)
	case mutation.StepConnect:
		return e.connect(w, step)
	case mutation.StepConnectOrCreate:
		return e.connectOrCreate(w, step)
	case mutation.StepUpdateNode:
		return e.updateNode(w, step)
	case mutation.StepDisconnect:
		return e.disconnect(w, step)
	case mutation.StepDeleteNode:
		return e.deleteNode(w, step)
	case mutation.StepCreateRelationship:
		return e.createRelationship(w, step, "CREATE")
	case mutation.StepUpdateRelationship:
		e.set(w, "SET", step.RelVar, step.Set)
		return nil
	case mutation.StepDeleteRelationship:
		return e.deleteRelationship(w, step)
	}
	panic(fmt.Sprintf("cypher: unsupported step %s", step.Kind))
}

func (e *Emitter) createNode(w *writer, step *mutation.Step) []string {
	w.line("CREATE (%s%s)", step.Var, labelExpr(step.Entity.Labels))
	e.set(w, "SET", step.Var, step.Set)
	pieces := []string{nodeEvent(EventCreate, step.Entity.Name, "null", "properties("+step.Var+")")}
	pieces = append(pieces, e.children(w, step, nil)...)
	e.validate(w, step.After)
	return pieces
}

func (e *Emitter) connect(w *writer, step *mutation.Step) []string {
	w.line("MATCH (%s%s)", step.Var, labelExpr(step.Entity.Labels))
	if conds := e.where(bindings{node: step.Var}, step.Where); conds != "" {
		w.line("WHERE %s", conds)
	}
	var pieces []string
	for _, child := range step.Steps {
		if child.Kind == mutation.StepCreateRelationship {
			pieces = append(pieces, e.connectRelationship(w, child))
			continue
		}
		pieces = append(pieces, e.stepCall(w, child))
	}
	return pieces
}

// connectRelationship creates the relationship of a Connect step in its own
// subquery. Unless duplicates are requested, an existing relationship whose
// properties match every settable property given in edge suppresses the
// write.
func (e *Emitter) connectRelationship(w *writer, step *mutation.Step) string {
	ev := e.names.Next("ev")
	w.line("WITH *")
	w.block("CALL {", "}", func() {
		w.line("WITH %s, %s", step.Parent, step.Var)
		if !step.CreateDuplicates {
			w.line("WITH %s, %s", step.Parent, step.Var)
			w.line("WHERE NOT %s", e.duplicate(step))
		}
		pieces := e.createRelationship(w, step, "CREATE")
		w.line("RETURN %s AS %s", flatten(concat(pieces)), ev)
	})
	return ev
}

func (e *Emitter) duplicate(step *mutation.Step) string {
	existing := e.names.Next("edge")
	pat := createPattern(step.Parent, step.Relationship, existing, step.Var)
	var conds []string
	if step.Properties != nil {
		values := make(map[string]mutation.Assignment, len(step.Set))
		for _, a := range step.Set {
			values[a.Field] = a
		}
		for _, attr := range step.Properties.Attributes() {
			if !attr.Settable(schema.OpCreate) {
				continue
			}
			lhs := property(existing, attr.Property)
			a, ok := values[attr.Name]
			if !ok {
				continue
			}
			if a.Value == nil {
				conds = append(conds, lhs+" IS NULL")
				continue
			}
			conds = append(conds, lhs+" = "+e.params.Add(existing, a.Value))
		}
	}
	return exists(pat, strings.Join(conds, " AND "))
}

// createRelationship writes the relationship of a nested create, connect
// or connectOrCreate. keyword is CREATE or MERGE; a MERGE only reports an
// event when it created the relationship.
func (e *Emitter) createRelationship(w *writer, step *mutation.Step, keyword string) []string {
	e.validate(w, step.Before)
	event := relationshipEvent(EventCreateRelationship, step)
	if keyword == "MERGE" {
		created := e.names.Next("created")
		w.line("WITH *, NOT %s AS %s", exists(createPattern(step.Parent, step.Relationship, "", step.Var), ""), created)
		w.line("MERGE %s", createPattern(step.Parent, step.Relationship, step.RelVar, step.Var))
		e.set(w, "ON CREATE SET", step.RelVar, step.Set)
		event = whenCreated(created, event)
	} else {
		w.line("CREATE %s", createPattern(step.Parent, step.Relationship, step.RelVar, step.Var))
		e.set(w, "SET", step.RelVar, step.Set)
	}
	e.validate(w, step.After)
	return []string{event}
}

func (e *Emitter) connectOrCreate(w *writer, step *mutation.Step) []string {
	keys := make([]string, len(step.Merge))
	for i, a := range step.Merge {
		keys[i] = fmt.Sprintf("%s: %s", escape(a.Property), e.params.Add(step.Var, a.Value))
	}
	match := fmt.Sprintf("%s { %s }", labelExpr(step.Entity.Labels), strings.Join(keys, ", "))
	created := e.names.Next("created")
	w.line("WITH *, NOT EXISTS { MATCH (%s) } AS %s", match, created)
	w.line("MERGE (%s%s)", step.Var, match)
	e.set(w, "ON CREATE SET", step.Var, step.Set)
	pieces := []string{whenCreated(created, nodeEvent(EventCreate, step.Entity.Name, "null", "properties("+step.Var+")"))}
	for _, child := range step.Steps {
		pieces = append(pieces, e.createRelationship(w, child, "MERGE")...)
	}
	e.validate(w, step.After)
	return pieces
}

// whenCreated keeps an event list only for rows where flag is true.
func whenCreated(flag, events string) string {
	return "CASE WHEN " + flag + " THEN " + events + " ELSE [] END"
}

func (e *Emitter) updateNode(w *writer, step *mutation.Step) []string {
	e.matchStep(w, step)
	var (
		pieces []string
		old    string
	)
	if len(step.Set) > 0 {
		old = e.names.Next("old")
		w.line("WITH *, properties(%s) AS %s", step.Var, old)
	}
	written := false
	write := func() {
		if written {
			return
		}
		written = true
		e.set(w, "SET", step.Var, step.Set)
	}
	for _, child := range step.Steps {
		if child.Kind.Phase() >= 1 {
			write()
		}
		if child.Kind == mutation.StepUpdateRelationship {
			e.body(w, child)
			continue
		}
		pieces = append(pieces, e.stepCall(w, child))
	}
	write()
	e.validate(w, step.After)
	if old != "" {
		pieces = append([]string{nodeEvent(EventUpdate, step.Entity.Name, old, "properties("+step.Var+")")}, pieces...)
	}
	return pieces
}

func (e *Emitter) disconnect(w *writer, step *mutation.Step) []string {
	e.matchStep(w, step)
	return e.children(w, step, nil)
}

func (e *Emitter) deleteRelationship(w *writer, step *mutation.Step) []string {
	e.validate(w, step.Before)
	ev := e.names.Next("ev")
	w.line("WITH *, %s AS %s", relationshipEvent(EventDeleteRelationship, step), ev)
	w.line("DELETE %s", step.RelVar)
	var after []mutation.Guard
	for _, g := range step.After {
		if g.RelVar == "" {
			after = append(after, g)
		}
	}
	e.validate(w, after)
	return []string{ev}
}

func (e *Emitter) deleteNode(w *writer, step *mutation.Step) []string {
	e.matchStep(w, step)
	if step.Parent != "" {
		w.line("WITH DISTINCT %s, %s", step.Parent, step.Var)
	}
	ev := e.names.Next("ev")
	w.line("WITH *, %s AS %s", nodeEvent(EventDelete, step.Entity.Name, "properties("+step.Var+")", "null"), ev)
	pieces := append([]string{ev}, e.children(w, step, nil)...)
	for _, rel := range step.Restrict {
		msg := e.params.Add("restrict", fmt.Sprintf("%s %s.%s", mutation.RestrictSentinel, step.Entity.Name, rel.Name))
		w.line("WITH *")
		w.line("CALL apoc.util.validate(%s, %s, [0])", exists(pattern(step.Var, rel, "", "", nil), ""), msg)
	}
	w.line("DETACH DELETE %s", step.Var)
	return pieces
}

// matchStep matches the nodes of an update, disconnect or delete step,
// from its parent when nested. BEFORE guards abort on failure.
func (e *Emitter) matchStep(w *writer, step *mutation.Step) {
	if step.Parent == "" {
		w.line("MATCH (%s%s)", step.Var, labelExpr(step.Entity.Labels))
	} else {
		w.line("MATCH %s", pattern(step.Parent, step.Relationship, step.RelVar, step.Var, step.Entity.Labels))
	}
	conds := e.where(bindings{node: step.Var, edge: step.RelVar}, step.Where)
	for _, g := range step.Before {
		conds = joinConds(conds, e.guard(g, "validatePredicate"))
	}
	if conds != "" {
		w.line("WHERE %s", conds)
	}
}

// children writes nested steps in order: relationship writes inline, node
// steps as subqueries.
func (e *Emitter) children(w *writer, step *mutation.Step, pieces []string) []string {
	for _, child := range step.Steps {
		switch child.Kind {
		case mutation.StepCreateRelationship, mutation.StepUpdateRelationship, mutation.StepDeleteRelationship:
			pieces = append(pieces, e.body(w, child)...)
		default:
			pieces = append(pieces, e.stepCall(w, child))
		}
	}
	return pieces
}

// validate writes guards that must hold at this point of the statement.
func (e *Emitter) validate(w *writer, guards []mutation.Guard) {
	for _, g := range guards {
		w.line("WITH *")
		w.line("CALL %s", e.guard(g, "validate"))
	}
}

func (e *Emitter) guard(g mutation.Guard, fn string) string {
	msg := e.params.Set("forbidden", auth.ForbiddenSentinel)
	cond := e.predicate(g.Pred, bindings{node: g.Var, edge: g.RelVar})
	return fmt.Sprintf("apoc.util.%s(NOT (%s), %s, [0])", fn, cond, msg)
}

// set writes the assignments of one variable as a single SET clause.
func (e *Emitter) set(w *writer, keyword, variable string, set []mutation.Assignment) {
	if len(set) == 0 {
		return
	}
	parts := make([]string, len(set))
	for i, a := range set {
		parts[i] = property(variable, a.Property) + " = " + e.assignment(variable, a)
	}
	w.line("%s %s", keyword, strings.Join(parts, ", "))
}

func (e *Emitter) assignment(variable string, a mutation.Assignment) string {
	switch a.Source {
	case mutation.SourceUUID:
		return "randomUUID()"
	case mutation.SourceTimestamp:
		return timestamp(a.Semantic)
	}
	lhs := property(variable, a.Property)
	param := e.params.Add(variable, a.Value)
	switch a.Op {
	case mutation.AssignIncrement, mutation.AssignAdd:
		return lhs + " + " + param
	case mutation.AssignDecrement, mutation.AssignSubtract:
		return lhs + " - " + param
	case mutation.AssignMultiply:
		return lhs + " * " + param
	case mutation.AssignDivide:
		return lhs + " / " + param
	case mutation.AssignPush:
		return "coalesce(" + lhs + ", []) + " + param
	case mutation.AssignPop:
		return fmt.Sprintf("CASE WHEN %s >= size(%s) THEN [] ELSE %s[0..size(%s) - %s] END", param, lhs, lhs, lhs, param)
	}
	return param
}

func timestamp(semantic schema.Semantic) string {
	switch semantic {
	case schema.SemanticDate:
		return "date()"
	case schema.SemanticTime:
		return "time()"
	case schema.SemanticLocalTime:
		return "localtime()"
	case schema.SemanticLocalDateTime:
		return "localdatetime()"
	}
	return "datetime()"
}

// createPattern renders the relationship pattern used for writes, where
// undirected relationships are created outgoing.
func createPattern(from string, rel *schema.Relationship, relVar, to string) string {
	r := fmt.Sprintf("[%s:%s]", relVar, escape(rel.Type))
	if rel.Direction == schema.DirectionIn {
		return fmt.Sprintf("(%s)<-%s-(%s)", from, r, to)
	}
	return fmt.Sprintf("(%s)-%s->(%s)", from, r, to)
}

func nodeEvent(event, typename, old, new string) string {
	return fmt.Sprintf("[{ event: '%s', typename: '%s', properties: { old: %s, new: %s } }]", event, typename, old, new)
}

func relationshipEvent(event string, step *mutation.Step) string {
	return fmt.Sprintf(
		"[{ event: '%s', typename: '%s', relationshipName: '%s', toTypename: '%s', properties: { from: properties(%s), to: properties(%s), relationship: properties(%s) } }]",
		event, step.Relationship.Owner, step.Relationship.Name, step.Entity.Name, step.Parent, step.Var, step.RelVar,
	)
}

// concat joins list expressions with +; no lists give [].
func concat(lists []string) string {
	if len(lists) == 0 {
		return "[]"
	}
	return strings.Join(lists, " + ")
}

// flatten aggregates per-row event lists into one list.
func flatten(expr string) string {
	return "reduce(acc = [], x IN collect(" + expr + ") | acc + x)"
}

func joinConds(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " AND " + b
}
