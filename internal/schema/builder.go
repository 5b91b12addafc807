package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"neo4j-graphql/internal/naming"
)

var rootOperationTypes = map[string]bool{
	"Query":        true,
	"Mutation":     true,
	"Subscription": true,
}

// Option configures a schema build.
type Option func(*builder)

// WithNamer overrides the namer used for generated root fields.
func WithNamer(n *naming.Namer) Option {
	return func(b *builder) { b.namer = n }
}

// WithCallbacks declares the callback names available at runtime; @callback
// directives referencing other names fail the build.
func WithCallbacks(names ...string) Option {
	return func(b *builder) {
		b.callbacks = make(map[string]bool, len(names))
		for _, name := range names {
			b.callbacks[name] = true
		}
	}
}

// WithLogger sets the logger used for build diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *builder) { b.logger = logger }
}

type builder struct {
	namer     *naming.Namer
	logger    *slog.Logger
	callbacks map[string]bool

	defs      map[string]*ast.Definition
	defOrder  []string
	propTypes map[string]*ast.Definition
	model     *Model
}

// Build parses type definitions and compiles them into a Model.
func Build(typeDefs string, opts ...Option) (*Model, error) {
	b := &builder{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	if b.namer == nil {
		b.namer = naming.New(naming.DefaultConfig(), b.logger)
	}
	b.namer.Reset()

	doc, perr := parser.ParseSchema(&ast.Source{Name: "typeDefs.graphql", Input: typeDefs})
	if perr != nil {
		return nil, &SchemaError{Kind: InvalidSyntax, Message: "failed to parse type definitions", Err: perr}
	}

	sum := sha256.Sum256([]byte(typeDefs))
	b.model = &Model{
		entities:     make(map[string]*Entity),
		properties:   make(map[string]*RelationshipProperties),
		enums:        make(map[string][]string),
		implementers: make(map[string][]*Entity),
		queries:      make(map[string]RootField),
		mutations:    make(map[string]RootField),
		fingerprint:  hex.EncodeToString(sum[:]),
	}

	steps := []func() error{
		func() error { return b.collect(doc) },
		b.buildProperties,
		b.buildEntities,
		b.resolveAbstractTypes,
		b.validateRelationships,
		b.validateInterfaces,
		b.validatePropertiesUsage,
		b.validateCallbacks,
		b.registerRootFields,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return b.model, nil
}

// collect indexes definitions by name, merging `extend` definitions.
func (b *builder) collect(doc *ast.SchemaDocument) error {
	b.defs = make(map[string]*ast.Definition)
	b.propTypes = make(map[string]*ast.Definition)
	for _, def := range doc.Definitions {
		if _, exists := b.defs[def.Name]; exists {
			return newError(DuplicateTypeName, def.Name, "", "type is defined more than once")
		}
		b.defs[def.Name] = def
		b.defOrder = append(b.defOrder, def.Name)
	}
	for _, ext := range doc.Extensions {
		def, exists := b.defs[ext.Name]
		if !exists {
			return newError(UnresolvedRelationshipTarget, ext.Name, "", "extension of undefined type")
		}
		if def.Kind != ext.Kind {
			return newError(DuplicateTypeName, ext.Name, "", "extension kind %s does not match %s", ext.Kind, def.Kind)
		}
		def.Fields = append(def.Fields, ext.Fields...)
		def.Directives = append(def.Directives, ext.Directives...)
		def.Interfaces = append(def.Interfaces, ext.Interfaces...)
		def.Types = append(def.Types, ext.Types...)
		def.EnumValues = append(def.EnumValues, ext.EnumValues...)
	}
	for _, name := range b.defOrder {
		def := b.defs[name]
		switch def.Kind {
		case ast.Enum:
			values := make([]string, 0, len(def.EnumValues))
			for _, v := range def.EnumValues {
				values = append(values, v.Name)
			}
			b.model.enums[name] = values
		case ast.Object:
			if def.Directives.ForName(dirRelationshipProperties) != nil {
				b.propTypes[name] = def
			}
		}
	}
	return nil
}

func (b *builder) buildProperties() error {
	for _, name := range b.defOrder {
		def, ok := b.propTypes[name]
		if !ok {
			continue
		}
		props := &RelationshipProperties{Name: name}
		for _, field := range def.Fields {
			if b.isEntityType(field.Type.Name()) {
				return newError(InvalidDirectiveArgument, name, field.Name, "relationship properties may only contain scalar fields")
			}
			attr, err := b.buildAttribute(name, field)
			if err != nil {
				return err
			}
			props.addAttribute(attr)
		}
		b.model.properties[name] = props
	}
	return nil
}

func (b *builder) buildEntities() error {
	for _, name := range b.defOrder {
		def := b.defs[name]
		if _, isProps := b.propTypes[name]; isProps || rootOperationTypes[name] {
			continue
		}
		var entity *Entity
		switch def.Kind {
		case ast.Object:
			entity = &Entity{Name: name, Kind: KindNode, Labels: []string{name}}
		case ast.Interface:
			entity = &Entity{Name: name, Kind: KindInterface}
		case ast.Union:
			entity = &Entity{Name: name, Kind: KindUnion, Members: append([]string(nil), def.Types...)}
		default:
			continue
		}
		entity.Interfaces = append([]string(nil), def.Interfaces...)
		if err := b.applyTypeDirectives(entity, def); err != nil {
			return err
		}
		b.model.entities[name] = entity
		b.model.order = append(b.model.order, name)
	}

	for _, name := range b.model.order {
		entity := b.model.entities[name]
		if entity.Kind == KindUnion {
			continue
		}
		for _, field := range b.defs[name].Fields {
			if err := b.buildField(entity, field); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *builder) applyTypeDirectives(entity *Entity, def *ast.Definition) error {
	for _, d := range def.Directives {
		var err error
		switch d.Name {
		case dirNode:
			err = b.applyNode(entity, d)
		case dirAuthorization:
			entity.Auth, err = parseAuthorization(d)
		case dirAuthentication:
			entity.Authentication, err = parseAuthentication(d)
		case dirPlural:
			err = b.applyPlural(entity, d)
		case dirLimit:
			err = b.applyLimit(entity, d)
		}
		if err != nil {
			var serr *SchemaError
			if errors.As(err, &serr) {
				return serr
			}
			return &SchemaError{Kind: InvalidDirectiveArgument, Type: entity.Name, Message: fmt.Sprintf("@%s: %v", d.Name, err), Err: err}
		}
	}
	return nil
}

func (b *builder) applyNode(entity *Entity, d *ast.Directive) error {
	if entity.Kind != KindNode {
		return newError(InvalidDirectiveArgument, entity.Name, "", "@node is only valid on object types")
	}
	args, err := directiveArgs(d)
	if err != nil {
		return err
	}
	labels, present, err := stringListArg(args, "labels")
	if err != nil {
		return err
	}
	if present {
		if len(labels) == 0 {
			return fmt.Errorf("labels must not be empty")
		}
		entity.Labels = labels
	}
	return nil
}

func (b *builder) applyPlural(entity *Entity, d *ast.Directive) error {
	args, err := directiveArgs(d)
	if err != nil {
		return err
	}
	value, _, err := stringArg(args, "value")
	if err != nil {
		return err
	}
	if value == "" {
		return fmt.Errorf("value must not be empty")
	}
	entity.Plural = value
	return nil
}

func (b *builder) applyLimit(entity *Entity, d *ast.Directive) error {
	args, err := directiveArgs(d)
	if err != nil {
		return err
	}
	limit := &Limit{}
	var present bool
	if limit.Default, present, err = intArg(args, "default"); err != nil {
		return err
	} else if present && limit.Default <= 0 {
		return fmt.Errorf("default must be positive")
	}
	if limit.Max, present, err = intArg(args, "max"); err != nil {
		return err
	} else if present && limit.Max <= 0 {
		return fmt.Errorf("max must be positive")
	}
	if limit.Max > 0 && limit.Default > limit.Max {
		return fmt.Errorf("default %d exceeds max %d", limit.Default, limit.Max)
	}
	entity.Limit = limit
	return nil
}

func (b *builder) buildField(entity *Entity, field *ast.FieldDefinition) error {
	if field.Directives.ForName(dirCypher) != nil {
		return b.buildComputed(entity, field)
	}
	relDirective := field.Directives.ForName(dirRelationship)
	declared := field.Directives.ForName(dirDeclareRelationship)
	typeName := field.Type.Name()

	switch {
	case relDirective != nil && declared != nil:
		return newError(InvalidDirectiveArgument, entity.Name, field.Name, "@relationship and @declareRelationship are mutually exclusive")
	case relDirective != nil:
		return b.buildRelationship(entity, field, relDirective)
	case declared != nil:
		if entity.Kind != KindInterface {
			return newError(InvalidDirectiveArgument, entity.Name, field.Name, "@declareRelationship is only valid on interface fields")
		}
		rel := &Relationship{
			Name:     field.Name,
			Owner:    entity.Name,
			Target:   typeName,
			Many:     field.Type.Elem != nil,
			NonNull:  field.Type.NonNull,
			Declared: true,
			OnDelete: DeleteDetach,
		}
		entity.addRelationship(rel)
		return nil
	case b.isEntityType(typeName):
		return newError(InvalidDirectiveArgument, entity.Name, field.Name, "field of type %s requires @relationship", typeName)
	}

	attr, err := b.buildAttribute(entity.Name, field)
	if err != nil {
		return err
	}
	entity.addAttribute(attr)
	return nil
}

func (b *builder) buildRelationship(entity *Entity, field *ast.FieldDefinition, d *ast.Directive) error {
	fail := func(format string, args ...any) error {
		return newError(InvalidDirectiveArgument, entity.Name, field.Name, "@relationship: "+format, args...)
	}
	args, err := directiveArgs(d)
	if err != nil {
		return fail("%v", err)
	}
	relType, _, err := stringArg(args, "type")
	if err != nil {
		return fail("%v", err)
	}
	if relType == "" {
		return fail("type is required")
	}
	direction, _, err := stringArg(args, "direction")
	if err != nil {
		return fail("%v", err)
	}
	switch Direction(direction) {
	case DirectionOut, DirectionIn, DirectionBoth:
	default:
		return fail("direction must be one of IN, OUT, BOTH")
	}
	properties, _, err := stringArg(args, "properties")
	if err != nil {
		return fail("%v", err)
	}
	onDelete := DeleteDetach
	if raw, present, err := stringArg(args, "onDelete"); err != nil {
		return fail("%v", err)
	} else if present {
		switch DeleteBehavior(raw) {
		case DeleteDetach, DeleteCascade, DeleteRestrict:
			onDelete = DeleteBehavior(raw)
		default:
			return fail("onDelete must be one of DETACH, CASCADE, RESTRICT")
		}
	}

	rel := &Relationship{
		Name:       field.Name,
		Owner:      entity.Name,
		Type:       relType,
		Direction:  Direction(direction),
		Target:     field.Type.Name(),
		Properties: properties,
		Many:       field.Type.Elem != nil,
		NonNull:    field.Type.NonNull,
		OnDelete:   onDelete,
	}
	if authDirective := field.Directives.ForName(dirAuthorization); authDirective != nil {
		if rel.Auth, err = parseAuthorization(authDirective); err != nil {
			return fail("%v", err)
		}
	}
	entity.addRelationship(rel)
	return nil
}

func (b *builder) buildComputed(entity *Entity, field *ast.FieldDefinition) error {
	typeName := field.Type.Name()
	if b.isEntityType(typeName) {
		return newError(InvalidDirectiveArgument, entity.Name, field.Name, "@cypher fields must return scalar types")
	}
	args, err := directiveArgs(field.Directives.ForName(dirCypher))
	if err != nil {
		return newError(InvalidDirectiveArgument, entity.Name, field.Name, "@cypher: %v", err)
	}
	statement, _, err := stringArg(args, "statement")
	if err != nil || statement == "" {
		return newError(InvalidDirectiveArgument, entity.Name, field.Name, "@cypher: statement is required")
	}
	column, _, err := stringArg(args, "columnName")
	if err != nil || column == "" {
		return newError(InvalidDirectiveArgument, entity.Name, field.Name, "@cypher: columnName is required")
	}
	entity.addComputed(&Computed{
		Name:      field.Name,
		Type:      typeRef(field.Type),
		Semantic:  b.semantic(typeName),
		Statement: statement,
		Column:    column,
	})
	return nil
}

func (b *builder) buildAttribute(owner string, field *ast.FieldDefinition) (*Attribute, error) {
	attr := &Attribute{
		Name:     field.Name,
		Type:     typeRef(field.Type),
		Semantic: b.semantic(field.Type.Name()),
		Property: field.Name,
	}
	if !b.isScalarType(field.Type.Name()) {
		return nil, newError(UnresolvedRelationshipTarget, owner, field.Name, "unknown type %s", field.Type.Name())
	}
	for _, d := range field.Directives {
		if err := b.applyAttributeDirective(attr, d); err != nil {
			var serr *SchemaError
			if errors.As(err, &serr) {
				return nil, serr
			}
			return nil, &SchemaError{Kind: InvalidDirectiveArgument, Type: owner, Field: field.Name, Message: fmt.Sprintf("@%s: %v", d.Name, err), Err: err}
		}
	}
	return attr, nil
}

func (b *builder) applyAttributeDirective(attr *Attribute, d *ast.Directive) error {
	switch d.Name {
	case dirAlias:
		args, err := directiveArgs(d)
		if err != nil {
			return err
		}
		property, _, err := stringArg(args, "property")
		if err != nil {
			return err
		}
		if property == "" {
			return fmt.Errorf("property is required")
		}
		attr.Property = property
	case dirID:
		args, err := directiveArgs(d)
		if err != nil {
			return err
		}
		autogenerate, err := boolArg(args, "autogenerate", true)
		if err != nil {
			return err
		}
		if autogenerate && attr.Semantic != SemanticID && attr.Semantic != SemanticString {
			return fmt.Errorf("autogenerated ids must be ID or String")
		}
		attr.AutoID = autogenerate
		attr.Unique = true
	case dirUnique:
		attr.Unique = true
	case dirDefault:
		args, err := directiveArgs(d)
		if err != nil {
			return err
		}
		value, present := args["value"]
		if !present {
			return fmt.Errorf("value is required")
		}
		attr.Default = value
		attr.HasDefault = true
	case dirTimestamp:
		args, err := directiveArgs(d)
		if err != nil {
			return err
		}
		if attr.Semantic != SemanticDateTime && attr.Semantic != SemanticLocalDateTime && attr.Semantic != SemanticTime && attr.Semantic != SemanticLocalTime {
			return fmt.Errorf("timestamps require a DateTime, LocalDateTime, Time or LocalTime field")
		}
		ops, err := operationsArg(args, "operations", []Operation{OpCreate, OpUpdate}, []Operation{OpCreate, OpUpdate})
		if err != nil {
			return err
		}
		attr.Timestamps = ops
	case dirCallback, dirPopulatedBy:
		args, err := directiveArgs(d)
		if err != nil {
			return err
		}
		nameKey := "name"
		if d.Name == dirPopulatedBy {
			nameKey = "callback"
		}
		name, _, err := stringArg(args, nameKey)
		if err != nil {
			return err
		}
		if name == "" {
			return fmt.Errorf("%s is required", nameKey)
		}
		ops, err := operationsArg(args, "operations", []Operation{OpCreate, OpUpdate}, []Operation{OpCreate, OpUpdate})
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			return fmt.Errorf("operations must not be empty")
		}
		attr.Callback = &Callback{Name: name, Operations: ops}
	case dirAuthorization:
		auth, err := parseAuthorization(d)
		if err != nil {
			return err
		}
		attr.Auth = auth
	}
	return nil
}

// resolveAbstractTypes computes implementer lists (transitively through
// interface inheritance) in definition order.
func (b *builder) resolveAbstractTypes() error {
	for _, name := range b.model.order {
		entity := b.model.entities[name]
		for _, iface := range entity.Interfaces {
			target, ok := b.model.entities[iface]
			if !ok || target.Kind != KindInterface {
				return newError(InterfaceContractViolation, name, "", "implements %s, which is not an interface", iface)
			}
		}
		if entity.Kind == KindUnion {
			if len(entity.Members) == 0 {
				return newError(InterfaceContractViolation, name, "", "union has no members")
			}
			for _, member := range entity.Members {
				target, ok := b.model.entities[member]
				if !ok {
					return newError(UnresolvedRelationshipTarget, name, "", "union member %s is not defined", member)
				}
				if target.Kind != KindNode {
					return newError(InterfaceContractViolation, name, "", "union member %s is not an object type", member)
				}
			}
		}
	}
	for _, name := range b.model.order {
		entity := b.model.entities[name]
		if entity.Kind != KindNode {
			continue
		}
		for iface := range b.interfaceClosure(entity) {
			b.model.implementers[iface] = append(b.model.implementers[iface], entity)
		}
	}
	return nil
}

func (b *builder) interfaceClosure(entity *Entity) map[string]bool {
	seen := make(map[string]bool)
	stack := append([]string(nil), entity.Interfaces...)
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[name] {
			continue
		}
		seen[name] = true
		if iface, ok := b.model.entities[name]; ok {
			stack = append(stack, iface.Interfaces...)
		}
	}
	return seen
}

func (b *builder) isEntityType(name string) bool {
	def, ok := b.defs[name]
	if !ok {
		return false
	}
	if _, isProps := b.propTypes[name]; isProps {
		return false
	}
	return def.Kind == ast.Object || def.Kind == ast.Interface || def.Kind == ast.Union
}

func (b *builder) isScalarType(name string) bool {
	if _, ok := builtinSemantics[name]; ok {
		return true
	}
	def, ok := b.defs[name]
	return ok && (def.Kind == ast.Scalar || def.Kind == ast.Enum)
}

func (b *builder) semantic(name string) Semantic {
	if s, ok := builtinSemantics[name]; ok {
		return s
	}
	if def, ok := b.defs[name]; ok && def.Kind == ast.Enum {
		return SemanticEnum
	}
	return SemanticCustom
}

func typeRef(t *ast.Type) TypeRef {
	ref := TypeRef{Name: t.Name(), NonNull: t.NonNull}
	if t.Elem != nil {
		ref.List = true
		ref.ElemNonNull = t.Elem.NonNull
	}
	return ref
}
