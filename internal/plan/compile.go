package plan

import (
	"neo4j-graphql/internal/authz"
	"neo4j-graphql/internal/filter"
	"neo4j-graphql/internal/naming"
	"neo4j-graphql/internal/schema"
	"neo4j-graphql/internal/selection"
	"neo4j-graphql/internal/validation"
)

const typenameField = "__typename"

// Limits bounds list sizes and selection depth. Zero disables a bound.
// Entity @limit directives take precedence over DefaultLimit and MaxLimit.
type Limits struct {
	DefaultLimit int
	MaxLimit     int
	MaxDepth     int
}

// Compiler builds plans for one operation. It is not safe for concurrent
// use; create one per operation.
type Compiler struct {
	model   *schema.Model
	filters *filter.Compiler
	authz   *authz.Authorizer
	names   *Namer
	limits  Limits
}

// Option customizes a Compiler.
type Option func(*Compiler)

// WithLimits sets list and depth bounds.
func WithLimits(limits Limits) Option {
	return func(c *Compiler) {
		c.limits = limits
	}
}

// WithNamer shares variable numbering with another statement builder.
func WithNamer(names *Namer) Option {
	return func(c *Compiler) {
		c.names = names
	}
}

// NewCompiler creates a compiler over the operation's filter compiler.
func NewCompiler(filters *filter.Compiler, opts ...Option) *Compiler {
	c := &Compiler{
		model:   filters.Model(),
		filters: filters,
		authz:   authz.New(filters),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.names == nil {
		c.names = &Namer{}
	}
	return c
}

// Names returns the variable namer.
func (c *Compiler) Names() *Namer { return c.names }

// Filters returns the filter compiler.
func (c *Compiler) Filters() *filter.Compiler { return c.filters }

// Authorizer returns the operation's authorizer.
func (c *Compiler) Authorizer() *authz.Authorizer { return c.authz }

// Model returns the schema model.
func (c *Compiler) Model() *schema.Model { return c.model }

// Query compiles a query root field.
func (c *Compiler) Query(field *selection.Field) (*Node, error) {
	root, ok := c.model.Query(field.Name)
	if !ok {
		return nil, validation.Errorf(field.Key(), "unknown query field %s", field.Name)
	}
	if err := c.checkDepth(field); err != nil {
		return nil, err
	}
	path := field.Key()
	switch root.Kind {
	case schema.RootConnection:
		return c.connection(root.Entity, nil, field, path)
	case schema.RootAggregate:
		return c.aggregate(root.Entity, nil, field, path)
	default:
		return c.list(root.Entity, nil, field, path)
	}
}

// Projection compiles the selections returned for entity by a mutation. The
// result is a list traversal whose branches filter only by READ rules.
func (c *Compiler) Projection(entity *schema.Entity, key string, selections []*selection.Field, path string) (*Node, error) {
	node := &Node{Kind: KindList, Key: key, Entity: entity, Var: c.names.Next("var")}
	for _, concrete := range c.model.ConcreteTypes(entity) {
		branch := &Branch{Entity: concrete, Var: c.names.Next("this")}
		if err := c.authorize(branch); err != nil {
			return nil, err
		}
		if err := c.project(branch, entity, selections, path); err != nil {
			return nil, err
		}
		node.Branches = append(node.Branches, branch)
	}
	return node, nil
}

// list compiles a root list or a relationship field.
func (c *Compiler) list(entity *schema.Entity, rel *schema.Relationship, field *selection.Field, path string) (*Node, error) {
	node := &Node{Kind: KindList, Key: field.Key(), Entity: entity, Relationship: rel, Var: c.names.Next("var")}
	if rel != nil {
		node.NonNull = rel.NonNull
		if !rel.Many {
			node.Kind = KindSingle
		}
	}

	where, err := field.MapArg("where")
	if err != nil {
		return nil, validation.Errorf(path, "%v", err)
	}
	targets, err := c.filters.Branches(entity, where, validation.Join(path, "where"))
	if err != nil {
		return nil, err
	}
	if err := c.branches(node, targets, field.Selections, path); err != nil {
		return nil, err
	}
	if err := c.paginate(node, field, path); err != nil {
		return nil, err
	}
	return node, nil
}

// branches creates one branch per filter target, applying READ
// authorization and projecting the selections.
func (c *Compiler) branches(node *Node, targets []filter.Target, selections []*selection.Field, path string) error {
	for _, target := range targets {
		branch := &Branch{Entity: target.Entity, Var: c.names.Next("this")}
		if node.Relationship != nil {
			branch.RelVar = c.names.Next("this")
		}
		if err := c.authorize(branch); err != nil {
			return err
		}
		branch.Where = filter.Conjoin(target.Where, branch.Where)
		if err := c.project(branch, node.Entity, selections, path); err != nil {
			return err
		}
		node.Branches = append(node.Branches, branch)
	}
	return nil
}

// authorize applies READ authentication, filter and validate rules.
func (c *Compiler) authorize(branch *Branch) error {
	if err := c.authz.Authenticate(branch.Entity, schema.OpRead); err != nil {
		return err
	}
	pred, err := c.authz.Filter(branch.Entity, schema.OpRead)
	if err != nil {
		return err
	}
	branch.Where = pred
	guard, err := c.authz.Validate(branch.Entity, schema.OpRead, schema.WhenBefore)
	if err != nil {
		return err
	}
	if guard != nil {
		branch.Guards = append(branch.Guards, guard)
	}
	return nil
}

// project resolves selections against the branch's concrete entity.
// declared is the type the selections were written against.
func (c *Compiler) project(branch *Branch, declared *schema.Entity, selections []*selection.Field, path string) error {
	for _, sel := range selection.Merge(selections) {
		selPath := validation.Join(path, sel.Key())
		if err := c.checkSelectable(declared, sel, selPath); err != nil {
			return err
		}
		if sel.TypeCondition != "" && !c.model.Implements(branch.Entity, sel.TypeCondition) {
			continue
		}
		if sel.Name == typenameField {
			branch.Fields = append(branch.Fields, &Projection{Key: sel.Key(), Kind: ProjectTypename})
			continue
		}
		proj, err := c.field(branch, sel, selPath)
		if err != nil {
			return err
		}
		if proj != nil {
			branch.Fields = append(branch.Fields, proj)
		}
	}
	return nil
}

func (c *Compiler) field(branch *Branch, sel *selection.Field, path string) (*Projection, error) {
	entity := branch.Entity
	if attr, ok := entity.Attribute(sel.Name); ok {
		guard, err := c.authz.Attribute(entity, attr, schema.OpRead, schema.WhenBefore)
		if err != nil {
			return nil, err
		}
		if guard != nil {
			branch.Guards = append(branch.Guards, guard)
		}
		return &Projection{Key: sel.Key(), Kind: ProjectAttribute, Attribute: attr}, nil
	}
	if comp, ok := entity.Computed(sel.Name); ok {
		return &Projection{Key: sel.Key(), Kind: ProjectComputed, Computed: comp, Var: c.names.Next("var")}, nil
	}

	var (
		child *Node
		err   error
	)
	if rel, ok := entity.Relationship(sel.Name); ok {
		child, err = c.list(c.target(rel), rel, sel, path)
	} else if name, ok := naming.TrimConnection(sel.Name); ok && c.hasRelationship(entity, name) {
		rel, _ := entity.Relationship(name)
		child, err = c.connection(c.target(rel), rel, sel, path)
	} else if name, ok := naming.TrimAggregate(sel.Name); ok && c.hasRelationship(entity, name) {
		rel, _ := entity.Relationship(name)
		child, err = c.aggregate(c.target(rel), rel, sel, path)
	} else {
		// Declared on another member of an abstract selection.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Projection{Key: sel.Key(), Kind: ProjectRelationship, Child: child}, nil
}

// checkSelectable validates that sel exists where it was written: on the
// fragment's type condition, or on the declared type. Interface selections
// may also name fields every implementer defines.
func (c *Compiler) checkSelectable(declared *schema.Entity, sel *selection.Field, path string) error {
	if sel.Name == typenameField {
		return nil
	}
	scope := declared
	if sel.TypeCondition != "" {
		cond, ok := c.model.Entity(sel.TypeCondition)
		if !ok {
			return validation.Errorf(path, "unknown type %s", sel.TypeCondition)
		}
		if !c.overlaps(declared, cond) {
			return validation.Errorf(path, "fragment on %s can never apply to %s", cond.Name, declared.Name)
		}
		scope = cond
	}
	if c.selectable(scope, sel.Name) {
		return nil
	}
	if scope.Kind == schema.KindInterface {
		all := true
		for _, impl := range c.model.ConcreteTypes(scope) {
			all = all && c.selectable(impl, sel.Name)
		}
		if all && len(c.model.ConcreteTypes(scope)) > 0 {
			return nil
		}
	}
	return validation.Errorf(path, "cannot query field %s on type %s", sel.Name, scope.Name)
}

func (c *Compiler) selectable(entity *schema.Entity, name string) bool {
	if entity.Kind == schema.KindUnion {
		return false
	}
	if entity.HasField(name) {
		return true
	}
	if rel, ok := naming.TrimConnection(name); ok && c.hasRelationship(entity, rel) {
		return true
	}
	if rel, ok := naming.TrimAggregate(name); ok && c.hasRelationship(entity, rel) {
		return !c.target(mustRelationship(entity, rel)).IsAbstract()
	}
	return false
}

// overlaps reports whether some concrete type is both a and b.
func (c *Compiler) overlaps(a, b *schema.Entity) bool {
	for _, concrete := range c.model.ConcreteTypes(a) {
		if c.model.Implements(concrete, b.Name) {
			return true
		}
	}
	return false
}

func (c *Compiler) hasRelationship(entity *schema.Entity, name string) bool {
	_, ok := entity.Relationship(name)
	return ok
}

func mustRelationship(entity *schema.Entity, name string) *schema.Relationship {
	rel, _ := entity.Relationship(name)
	return rel
}

func (c *Compiler) target(rel *schema.Relationship) *schema.Entity {
	target, _ := c.model.Entity(rel.Target)
	return target
}

func (c *Compiler) properties(rel *schema.Relationship) *schema.RelationshipProperties {
	if rel == nil || rel.Properties == "" {
		return nil
	}
	props, _ := c.model.Properties(rel.Properties)
	return props
}

// checkDepth enforces Limits.MaxDepth on the raw selection tree.
func (c *Compiler) checkDepth(field *selection.Field) error {
	if c.limits.MaxDepth <= 0 {
		return nil
	}
	if depth := selectionDepth(field); depth > c.limits.MaxDepth {
		return validation.Errorf(field.Key(), "query exceeds maximum depth of %d (depth: %d)", c.limits.MaxDepth, depth)
	}
	return nil
}

func selectionDepth(field *selection.Field) int {
	deepest := 0
	for _, child := range field.Selections {
		if d := selectionDepth(child); d > deepest {
			deepest = d
		}
	}
	return deepest + 1
}

func typeName(parts ...string) string {
	out := ""
	for _, p := range parts {
		out += naming.ToPascalCase(p)
	}
	return out
}
