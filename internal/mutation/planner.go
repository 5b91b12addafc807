package mutation

import (
	"context"
	"slices"
	"sort"

	"neo4j-graphql/internal/authz"
	"neo4j-graphql/internal/filter"
	"neo4j-graphql/internal/plan"
	"neo4j-graphql/internal/schema"
	"neo4j-graphql/internal/selection"
	"neo4j-graphql/internal/validation"
)

const (
	argInput  = "input"
	argWhere  = "where"
	argUpdate = "update"
	argDelete = "delete"

	fieldTypename = "__typename"
)

// Field names of mutation responses outside the returned nodes.
const (
	FieldInfo                 = "info"
	FieldNodesCreated         = "nodesCreated"
	FieldNodesDeleted         = "nodesDeleted"
	FieldRelationshipsCreated = "relationshipsCreated"
	FieldRelationshipsDeleted = "relationshipsDeleted"
	FieldBookmark             = "bookmark"
)

var (
	createInfoFields = []string{FieldNodesCreated, FieldRelationshipsCreated, FieldBookmark, fieldTypename}
	updateInfoFields = []string{FieldNodesCreated, FieldNodesDeleted, FieldRelationshipsCreated, FieldRelationshipsDeleted, FieldBookmark, fieldTypename}
	deleteInfoFields = []string{FieldNodesDeleted, FieldRelationshipsDeleted, FieldBookmark, fieldTypename}
)

// Planner turns mutation root fields into plans. It shares the operation's
// filter compiler, authorizer and variable numbering with the selection
// compiler that builds the returned projection.
type Planner struct {
	model     *schema.Model
	filters   *filter.Compiler
	authz     *authz.Authorizer
	compiler  *plan.Compiler
	names     *plan.Namer
	callbacks map[string]Callback
}

// Option customizes a Planner.
type Option func(*Planner)

// WithCallbacks registers @callback implementations by name.
func WithCallbacks(callbacks map[string]Callback) Option {
	return func(p *Planner) {
		p.callbacks = callbacks
	}
}

// NewPlanner creates a planner for one operation.
func NewPlanner(compiler *plan.Compiler, opts ...Option) *Planner {
	p := &Planner{
		model:    compiler.Model(),
		filters:  compiler.Filters(),
		authz:    compiler.Authorizer(),
		compiler: compiler,
		names:    compiler.Names(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan dispatches a mutation root field. Callbacks run while planning, so
// a failing callback aborts before any statement exists.
func (p *Planner) Plan(ctx context.Context, field *selection.Field) (*Plan, error) {
	root, ok := p.model.Mutation(field.Name)
	if !ok {
		return nil, validation.Errorf(field.Key(), "unknown mutation field %s", field.Name)
	}
	switch root.Kind {
	case schema.RootCreate:
		return p.Create(ctx, root.Entity, field)
	case schema.RootUpdate:
		return p.Update(ctx, root.Entity, field)
	default:
		return p.Delete(ctx, root.Entity, field)
	}
}

// Create plans `create<Plural>(input: [...])`. Each input item is a root
// CreateNode step.
func (p *Planner) Create(ctx context.Context, entity *schema.Entity, field *selection.Field) (*Plan, error) {
	path := field.Key()
	raw, ok := field.Arg(argInput)
	if !ok {
		return nil, validation.Errorf(path, "missing argument %s", argInput)
	}
	items, paths, err := objects(raw, validation.Join(path, argInput))
	if err != nil {
		return nil, err
	}
	pl := &Plan{Kind: KindCreate, Entity: entity}
	for i, item := range items {
		step, err := p.createNode(ctx, entity, item, paths[i])
		if err != nil {
			return nil, err
		}
		pl.Steps = append(pl.Steps, step)
	}
	return p.finish(pl, field, path)
}

// Update plans `update<Plural>(where, update, connect, disconnect, create,
// delete, connectOrCreate)` as one UpdateNode step over the matched nodes.
func (p *Planner) Update(ctx context.Context, entity *schema.Entity, field *selection.Field) (*Plan, error) {
	path := field.Key()
	step := &Step{Kind: StepUpdateNode, Path: path, Entity: entity, Var: p.names.Next("this")}
	if err := p.authz.Authenticate(entity, schema.OpUpdate); err != nil {
		return nil, err
	}
	if err := p.matchRoot(step, field, schema.OpUpdate, path); err != nil {
		return nil, err
	}

	update, err := field.MapArg(argUpdate)
	if err != nil {
		return nil, validation.Errorf(path, "%v", err)
	}
	if err := p.updateNode(ctx, step, update, validation.Join(path, argUpdate)); err != nil {
		return nil, err
	}
	for _, arg := range []string{opConnect, opCreate, opConnectOrCreate, opDisconnect, opDelete} {
		ops, err := field.MapArg(arg)
		if err != nil {
			return nil, validation.Errorf(path, "%v", err)
		}
		argPath := validation.Join(path, arg)
		rels, err := relationshipsOnly(entity, ops, argPath)
		if err != nil {
			return nil, err
		}
		for _, rel := range rels {
			steps, err := p.relationshipOp(ctx, step, rel, arg, ops[rel.Name], validation.Join(argPath, rel.Name))
			if err != nil {
				return nil, err
			}
			step.Steps = append(step.Steps, steps...)
		}
	}
	pl := &Plan{Kind: KindUpdate, Entity: entity, Steps: []*Step{step}}
	return p.finish(pl, field, path)
}

// Delete plans `delete<Plural>(where, delete)`.
func (p *Planner) Delete(ctx context.Context, entity *schema.Entity, field *selection.Field) (*Plan, error) {
	path := field.Key()
	step := &Step{Kind: StepDeleteNode, Path: path, Entity: entity, Var: p.names.Next("this")}
	if err := p.authz.Authenticate(entity, schema.OpDelete); err != nil {
		return nil, err
	}
	if err := p.matchRoot(step, field, schema.OpDelete, path); err != nil {
		return nil, err
	}
	nested, err := field.MapArg(argDelete)
	if err != nil {
		return nil, validation.Errorf(path, "%v", err)
	}
	if err := p.deleteChildren(ctx, step, nested, validation.Join(path, argDelete)); err != nil {
		return nil, err
	}
	pl := &Plan{Kind: KindDelete, Entity: entity, Steps: []*Step{step}}
	return p.finish(pl, field, path)
}

// matchRoot compiles the root where and ANDs in the entity's filter rules
// for op. BEFORE validations become guards.
func (p *Planner) matchRoot(step *Step, field *selection.Field, op schema.Operation, path string) error {
	where, err := field.MapArg(argWhere)
	if err != nil {
		return validation.Errorf(path, "%v", err)
	}
	pred, err := p.filters.Node(step.Entity, where, validation.Join(path, argWhere))
	if err != nil {
		return err
	}
	authFilter, err := p.authz.Filter(step.Entity, op)
	if err != nil {
		return err
	}
	step.Where = filter.Conjoin(pred, authFilter)
	return p.validateGuard(step, step.Entity, op, schema.WhenBefore, &step.Before)
}

// validateGuard appends the entity's validation for op at when, bound to
// the step's node.
func (p *Planner) validateGuard(step *Step, entity *schema.Entity, op schema.Operation, when schema.When, guards *[]Guard) error {
	pred, err := p.authz.Validate(entity, op, when)
	if err != nil {
		return err
	}
	if pred != nil {
		*guards = append(*guards, Guard{Var: step.Var, Pred: pred})
	}
	return nil
}

// attributeGuards appends field-level rules for every assigned attribute.
func (p *Planner) attributeGuards(step *Step, op schema.Operation) error {
	for _, a := range step.Set {
		attr, ok := step.Entity.Attribute(a.Field)
		if !ok {
			continue
		}
		for _, when := range []schema.When{schema.WhenBefore, schema.WhenAfter} {
			if op == schema.OpCreate && when == schema.WhenBefore {
				continue
			}
			pred, err := p.authz.Attribute(step.Entity, attr, op, when)
			if err != nil {
				return err
			}
			if pred == nil {
				continue
			}
			if when == schema.WhenBefore {
				step.Before = append(step.Before, Guard{Var: step.Var, Pred: pred})
			} else {
				step.After = append(step.After, Guard{Var: step.Var, Pred: pred})
			}
		}
	}
	return nil
}

// finish orders steps, compiles the returned projection and estimates
// counters.
func (p *Planner) finish(pl *Plan, field *selection.Field, path string) (*Plan, error) {
	for _, step := range pl.Steps {
		order(step)
	}
	if pl.Kind == KindDelete {
		if err := checkSelections(field.Selections, deleteInfoFields, path); err != nil {
			return nil, err
		}
	} else {
		infoFields := createInfoFields
		if pl.Kind == KindUpdate {
			infoFields = updateInfoFields
		}
		for _, sel := range selection.Merge(field.Selections) {
			switch sel.Name {
			case fieldTypename:
				continue
			case FieldInfo:
				if err := checkSelections(sel.Selections, infoFields, validation.Join(path, sel.Key())); err != nil {
					return nil, err
				}
			case pl.Entity.Root.ResponseKey:
				node, err := p.compiler.Projection(pl.Entity, sel.Key(), sel.Selections, validation.Join(path, sel.Key()))
				if err != nil {
					return nil, err
				}
				pl.Projections = append(pl.Projections, node)
			default:
				return nil, validation.Errorf(validation.Join(path, sel.Key()), "cannot query field %s on the %s response", sel.Name, field.Name)
			}
		}
	}
	for _, step := range pl.Steps {
		estimate(&pl.Estimate, step, nil)
	}
	return pl, nil
}

func checkSelections(selections []*selection.Field, allowed []string, path string) error {
	for _, sel := range selections {
		if !slices.Contains(allowed, sel.Name) {
			return validation.Errorf(validation.Join(path, sel.Key()), "cannot query field %s", sel.Name)
		}
	}
	return nil
}

// order sorts nested steps by phase, keeping input order within a phase.
func order(step *Step) {
	sort.SliceStable(step.Steps, func(i, j int) bool {
		return step.Steps[i].Kind.Phase() < step.Steps[j].Kind.Phase()
	})
	for _, child := range step.Steps {
		order(child)
	}
}

// estimate counts the writes a plan always makes: every created node and
// the relationship attaching each nested created node.
func estimate(c *Counters, step, parent *Step) {
	switch step.Kind {
	case StepCreateNode:
		c.NodesCreated++
	case StepCreateRelationship:
		if parent != nil && parent.Kind == StepCreateNode {
			c.RelationshipsCreated++
		}
	}
	for _, child := range step.Steps {
		estimate(c, child, step)
	}
}
