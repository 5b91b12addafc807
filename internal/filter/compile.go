package filter

import (
	"fmt"
	"sort"

	"neo4j-graphql/internal/auth"
	"neo4j-graphql/internal/scalars"
	"neo4j-graphql/internal/schema"
	"neo4j-graphql/internal/validation"
)

const (
	keyAnd = "AND"
	keyOr  = "OR"
	keyNot = "NOT"
)

// Compiler turns where arguments into predicates. It is not safe for
// concurrent use; create one per operation.
type Compiler struct {
	model       *schema.Model
	auth        *auth.Context
	scalars     *scalars.Registry
	diagnostics []validation.Diagnostic
}

// NewCompiler creates a compiler for one operation.
func NewCompiler(model *schema.Model, authCtx *auth.Context, registry *scalars.Registry) *Compiler {
	if registry == nil {
		registry = scalars.Default()
	}
	if authCtx == nil {
		authCtx = auth.Anonymous()
	}
	return &Compiler{model: model, auth: authCtx, scalars: registry}
}

// Model returns the schema model the compiler resolves fields against.
func (c *Compiler) Model() *schema.Model { return c.model }

// Auth returns the request's authorization context.
func (c *Compiler) Auth() *auth.Context { return c.auth }

// Scalars returns the codec registry used to parse values.
func (c *Compiler) Scalars() *scalars.Registry { return c.scalars }

// Diagnostics returns non-fatal messages collected so far.
func (c *Compiler) Diagnostics() []validation.Diagnostic { return c.diagnostics }

func (c *Compiler) deprecated(path, format string, args ...any) {
	c.diagnostics = append(c.diagnostics, validation.Diagnostic{
		Category: validation.CategoryDeprecation,
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Node compiles a where argument against a concrete node entity. An empty
// or nil where yields a nil predicate, which matches every node.
func (c *Compiler) Node(entity *schema.Entity, where map[string]any, path string) (Predicate, error) {
	if len(where) == 0 {
		return nil, nil
	}
	if entity.IsAbstract() {
		return nil, validation.Errorf(path, "%s is abstract; compile per concrete type", entity.Name)
	}
	return c.nodeMap(entity, where, path)
}

// Substituted compiles a where whose values may hold `$jwt.` and
// `$context.` tokens, as authorization rules do.
func (c *Compiler) Substituted(entity *schema.Entity, where map[string]any, path string) (Predicate, error) {
	resolved, _ := c.auth.Substitute(where).(map[string]any)
	return c.Node(entity, resolved, path)
}

// Edge compiles a where argument against relationship properties.
func (c *Compiler) Edge(props *schema.RelationshipProperties, where map[string]any, path string) (Predicate, error) {
	if len(where) == 0 {
		return nil, nil
	}
	return c.edgeMap(props, where, path)
}

// Branches compiles where for every concrete type entity can resolve to.
// Union wheres are keyed by member name; once any member key is present,
// members without a key are excluded. Interface wheres apply to every
// implementer.
func (c *Compiler) Branches(entity *schema.Entity, where map[string]any, path string) ([]Target, error) {
	return c.branches(entity, where, path, c.nodeMap, true)
}

type branchCompiler func(concrete *schema.Entity, where map[string]any, path string) (Predicate, error)

func (c *Compiler) branches(entity *schema.Entity, where map[string]any, path string, compile branchCompiler, interfaceKeys bool) ([]Target, error) {
	concrete := c.model.ConcreteTypes(entity)
	targets := make([]Target, 0, len(concrete))
	switch entity.Kind {
	case schema.KindUnion:
		for key := range where {
			if !containsEntity(concrete, key) {
				return nil, validation.Errorf(validation.Join(path, key), "%s is not a member of %s", key, entity.Name)
			}
		}
		for _, member := range concrete {
			raw, present := where[member.Name]
			if len(where) > 0 && !present {
				continue
			}
			memberWhere, err := asMap(raw, validation.Join(path, member.Name))
			if err != nil {
				return nil, err
			}
			var pred Predicate
			if len(memberWhere) > 0 {
				if pred, err = compile(member, memberWhere, validation.Join(path, member.Name)); err != nil {
					return nil, err
				}
			}
			targets = append(targets, Target{Entity: member, Where: pred})
		}
	case schema.KindInterface:
		if interfaceKeys {
			if err := c.checkInterfaceKeys(entity, where, path); err != nil {
				return nil, err
			}
		}
		for _, impl := range concrete {
			var pred Predicate
			if len(where) > 0 {
				var err error
				if pred, err = compile(impl, where, path); err != nil {
					return nil, err
				}
			}
			targets = append(targets, Target{Entity: impl, Where: pred})
		}
	default:
		var pred Predicate
		if len(where) > 0 {
			var err error
			if pred, err = compile(entity, where, path); err != nil {
				return nil, err
			}
		}
		targets = append(targets, Target{Entity: entity, Where: pred})
	}
	return targets, nil
}

// checkInterfaceKeys rejects keys that only some implementers define.
func (c *Compiler) checkInterfaceKeys(iface *schema.Entity, where map[string]any, path string) error {
	for _, key := range sortedKeys(where) {
		switch key {
		case keyAnd, keyOr:
			list, err := asList(where[key], validation.Join(path, key))
			if err != nil {
				return err
			}
			for i, item := range list {
				m, err := asMap(item, validation.Index(validation.Join(path, key), i))
				if err != nil {
					return err
				}
				if err := c.checkInterfaceKeys(iface, m, validation.Index(validation.Join(path, key), i)); err != nil {
					return err
				}
			}
		case keyNot:
			m, err := asMap(where[key], validation.Join(path, key))
			if err != nil {
				return err
			}
			if err := c.checkInterfaceKeys(iface, m, validation.Join(path, key)); err != nil {
				return err
			}
		default:
			if _, ok := parseKey(iface, iface, key); !ok {
				return validation.Errorf(validation.Join(path, key), "unknown filter field %s on %s", key, iface.Name)
			}
		}
	}
	return nil
}

// nodeMap compiles one where object. The result is never nil: an empty
// object is an empty And.
func (c *Compiler) nodeMap(entity *schema.Entity, where map[string]any, path string) (Predicate, error) {
	return c.objectMap(where, path, func(key string, value any, keyPath string) (Predicate, error) {
		return c.nodeKey(entity, key, value, keyPath)
	}, func(m map[string]any, p string) (Predicate, error) {
		return c.nodeMap(entity, m, p)
	})
}

func (c *Compiler) edgeMap(props *schema.RelationshipProperties, where map[string]any, path string) (Predicate, error) {
	return c.objectMap(where, path, func(key string, value any, keyPath string) (Predicate, error) {
		pk, ok := parseKey(props, nil, key)
		if !ok || pk.kind != keyAttribute {
			return nil, validation.Errorf(keyPath, "unknown filter field %s on %s", key, props.Name)
		}
		attr, _ := props.Attribute(pk.field)
		return c.comparison(ScopeEdge, attr, pk, value, keyPath)
	}, func(m map[string]any, p string) (Predicate, error) {
		return c.edgeMap(props, m, p)
	})
}

type keyFunc func(key string, value any, path string) (Predicate, error)
type mapFunc func(where map[string]any, path string) (Predicate, error)

// objectMap handles the AND/OR/NOT combinators shared by every where shape
// and delegates other keys. Keys are visited in sorted order so output is
// deterministic.
func (c *Compiler) objectMap(where map[string]any, path string, field keyFunc, nested mapFunc) (Predicate, error) {
	children := make([]Predicate, 0, len(where))
	for _, key := range sortedKeys(where) {
		value := where[key]
		keyPath := validation.Join(path, key)
		var (
			pred Predicate
			err  error
		)
		switch key {
		case keyAnd, keyOr:
			pred, err = c.combinator(key, value, keyPath, nested)
		case keyNot:
			var m map[string]any
			if m, err = asMap(value, keyPath); err == nil {
				var inner Predicate
				if inner, err = nested(m, keyPath); err == nil {
					pred = &Not{Child: inner}
				}
			}
		default:
			pred, err = field(key, value, keyPath)
		}
		if err != nil {
			return nil, err
		}
		children = append(children, pred)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return &And{Children: children}, nil
}

func (c *Compiler) combinator(key string, value any, path string, nested mapFunc) (Predicate, error) {
	list, err := asList(value, path)
	if err != nil {
		return nil, err
	}
	children := make([]Predicate, 0, len(list))
	for i, item := range list {
		itemPath := validation.Index(path, i)
		m, err := asMap(item, itemPath)
		if err != nil {
			return nil, err
		}
		pred, err := nested(m, itemPath)
		if err != nil {
			return nil, err
		}
		children = append(children, pred)
	}
	if key == keyAnd {
		return &And{Children: children}, nil
	}
	return &Or{Children: children}, nil
}

func (c *Compiler) nodeKey(entity *schema.Entity, key string, value any, path string) (Predicate, error) {
	pk, ok := parseKey(entity, entity, key)
	if !ok {
		if _, computed := entity.Computed(key); computed {
			return nil, validation.Errorf(path, "computed field %s cannot be filtered", key)
		}
		return nil, validation.Errorf(path, "unknown filter field %s on %s", key, entity.Name)
	}
	switch pk.kind {
	case keyTypename:
		return c.typenameIn(entity, value, path)
	case keyAttribute:
		attr, _ := entity.Attribute(pk.field)
		return c.comparison(ScopeNode, attr, pk, value, path)
	case keyRelationship:
		rel, _ := entity.Relationship(pk.field)
		return c.relationship(rel, pk, value, path)
	case keyConnection:
		rel, _ := entity.Relationship(pk.field)
		return c.connection(rel, pk, value, path)
	case keyAggregate:
		rel, _ := entity.Relationship(pk.field)
		return c.aggregate(rel, value, path)
	}
	return nil, validation.Errorf(path, "unsupported filter %s", key)
}

// typenameIn is resolved at compile time since wheres compile per
// concrete type.
func (c *Compiler) typenameIn(entity *schema.Entity, value any, path string) (Predicate, error) {
	list, err := asList(value, path)
	if err != nil {
		return nil, err
	}
	for _, item := range list {
		name, ok := item.(string)
		if !ok {
			return nil, validation.Errorf(path, "expected type names")
		}
		if _, exists := c.model.Entity(name); !exists {
			return nil, validation.Errorf(path, "unknown type %s", name)
		}
		if name == entity.Name {
			return Const{Value: true}, nil
		}
	}
	return Const{Value: false}, nil
}

func (c *Compiler) comparison(scope Scope, attr *schema.Attribute, pk parsedKey, value any, path string) (Predicate, error) {
	if !supports(attr, pk.op) {
		return nil, validation.Errorf(path, "operator %s is not supported for %s", pk.op, attr.Type.Name)
	}
	if pk.deprecated {
		c.deprecated(path, "%s is deprecated; use NOT: { %s: ... } instead", lastSegment(path), negatedForm(pk, attr.Name))
	}
	operand, err := c.operand(attr, pk.op, value, path)
	if err != nil {
		return nil, err
	}
	cmp := &Comparison{
		Scope:    scope,
		Field:    attr.Name,
		Property: attr.Property,
		Semantic: attr.Semantic,
		List:     attr.IsList(),
		Operator: pk.op,
		Value:    operand,
	}
	if pk.negate {
		return &Not{Child: cmp}, nil
	}
	return cmp, nil
}

func negatedForm(pk parsedKey, field string) string {
	if pk.op == OpEqual {
		return field
	}
	return field + "_" + string(pk.op)
}

// operand parses a comparison value into the native form used as a
// statement parameter.
func (c *Compiler) operand(attr *schema.Attribute, op Operator, value any, path string) (any, error) {
	if value == nil {
		return nil, nil
	}
	typeName := attr.Type.Name
	switch {
	case attr.Semantic.IsSpatial() && op != OpEqual && op != OpIn:
		return c.pointDistance(typeName, value, path)
	case op == OpIn:
		list, err := asList(value, path)
		if err != nil {
			return nil, err
		}
		return c.parseScalar(attr, list, path)
	case op == OpEqual && attr.IsList():
		list, err := asList(value, path)
		if err != nil {
			return nil, err
		}
		return c.parseScalar(attr, list, path)
	}
	if _, isList := value.([]any); isList {
		return nil, validation.Errorf(path, "expected a single %s value", typeName)
	}
	return c.parseScalar(attr, value, path)
}

// ParseValue converts an input value for attr into its native form.
func (c *Compiler) ParseValue(attr *schema.Attribute, value any, path string) (any, error) {
	if value == nil {
		return nil, nil
	}
	return c.parseScalar(attr, value, path)
}

func (c *Compiler) parseScalar(attr *schema.Attribute, value any, path string) (any, error) {
	if attr.Semantic == schema.SemanticEnum {
		allowed, _ := c.model.EnumValues(attr.Type.Name)
		if err := checkEnum(attr.Type.Name, allowed, value, path); err != nil {
			return nil, err
		}
		return value, nil
	}
	parsed, err := c.scalars.Parse(attr.Type.Name, value)
	if err != nil {
		return nil, validation.Errorf(path, "%v", err)
	}
	return parsed, nil
}

func checkEnum(typeName string, allowed []string, value any, path string) error {
	if list, ok := value.([]any); ok {
		for _, item := range list {
			if err := checkEnum(typeName, allowed, item, path); err != nil {
				return err
			}
		}
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return validation.Errorf(path, "invalid %s value %v", typeName, value)
	}
	for _, candidate := range allowed {
		if candidate == s {
			return nil
		}
	}
	return validation.Errorf(path, "invalid %s value %s", typeName, s)
}

func (c *Compiler) pointDistance(typeName string, value any, path string) (any, error) {
	m, err := asMap(value, path)
	if err != nil {
		return nil, err
	}
	point, err := c.scalars.Parse(typeName, m["point"])
	if err != nil || point == nil {
		return nil, validation.Errorf(validation.Join(path, "point"), "invalid %s value", typeName)
	}
	distance, ok := toFloat(m["distance"])
	if !ok {
		return nil, validation.Errorf(validation.Join(path, "distance"), "expected a number")
	}
	return PointDistance{Point: point, Distance: distance}, nil
}

func asMap(value any, path string) (map[string]any, error) {
	if value == nil {
		return nil, nil
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil, validation.Errorf(path, "expected an object")
	}
	return m, nil
}

// asList coerces a single value to a one-element list, as GraphQL input
// coercion does.
func asList(value any, path string) ([]any, error) {
	switch v := value.(type) {
	case nil:
		return nil, validation.Errorf(path, "expected a list")
	case []any:
		return v, nil
	default:
		return []any{v}, nil
	}
}

func containsEntity(entities []*schema.Entity, name string) bool {
	for _, e := range entities {
		if e.Name == name {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func lastSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i+1:]
		}
	}
	return path
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
