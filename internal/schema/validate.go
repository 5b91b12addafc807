package schema

import (
	"fmt"
	"log/slog"
	"sort"
)

// validateRelationships checks that every relationship resolves to an entity
// and every referenced properties type exists.
func (b *builder) validateRelationships() error {
	for _, entity := range b.model.Entities() {
		for _, rel := range entity.Relationships() {
			if _, ok := b.model.entities[rel.Target]; !ok {
				return newError(UnresolvedRelationshipTarget, entity.Name, rel.Name, "target type %s is not defined", rel.Target)
			}
			if rel.Properties == "" {
				continue
			}
			if _, ok := b.model.properties[rel.Properties]; !ok {
				return newError(UnresolvedRelationshipTarget, entity.Name, rel.Name, "properties type %s is not defined or lacks @relationshipProperties", rel.Properties)
			}
		}
	}
	return nil
}

// validateInterfaces checks that implementers supply every interface field
// with a compatible declaration.
func (b *builder) validateInterfaces() error {
	for _, entity := range b.model.Entities() {
		for _, ifaceName := range entity.Interfaces {
			iface := b.model.entities[ifaceName]
			if err := b.checkContract(entity, iface); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *builder) checkContract(impl, iface *Entity) error {
	violation := func(field, format string, args ...any) error {
		return newError(InterfaceContractViolation, impl.Name, field, "interface %s: %s", iface.Name, fmt.Sprintf(format, args...))
	}
	for _, attr := range iface.Attributes() {
		own, ok := impl.Attribute(attr.Name)
		if !ok {
			return violation(attr.Name, "field is not implemented")
		}
		if own.Type.Name != attr.Type.Name || own.Type.List != attr.Type.List {
			return violation(attr.Name, "field type %s does not match %s", own.Type.Name, attr.Type.Name)
		}
	}
	for _, comp := range iface.ComputedFields() {
		if !impl.HasField(comp.Name) {
			return violation(comp.Name, "field is not implemented")
		}
	}
	for _, rel := range iface.Relationships() {
		own, ok := impl.Relationship(rel.Name)
		if !ok {
			return violation(rel.Name, "relationship is not implemented")
		}
		if own.Many != rel.Many {
			return violation(rel.Name, "cardinality does not match")
		}
		if rel.Declared {
			if own.Target != rel.Target && !b.implementsName(own.Target, rel.Target) {
				return violation(rel.Name, "target %s does not implement %s", own.Target, rel.Target)
			}
			continue
		}
		if own.Declared {
			return violation(rel.Name, "relationship must be declared with @relationship")
		}
		if own.Type != rel.Type || own.Direction != rel.Direction || own.Target != rel.Target {
			return violation(rel.Name, "relationship must match %s %s -> %s", rel.Direction, rel.Type, rel.Target)
		}
	}
	return nil
}

// implementsName reports whether the named type is the abstract type, a
// member of it or transitively implements it.
func (b *builder) implementsName(name, abstract string) bool {
	if name == abstract {
		return true
	}
	entity, ok := b.model.entities[name]
	if !ok {
		return false
	}
	if entity.Kind == KindInterface {
		return b.interfaceClosure(entity)[abstract]
	}
	return b.model.Implements(entity, abstract)
}

// validatePropertiesUsage rejects relationship labels bound to more than one
// properties type.
func (b *builder) validatePropertiesUsage() error {
	byLabel := make(map[string]*Relationship)
	for _, entity := range b.model.Entities() {
		for _, rel := range entity.Relationships() {
			if rel.Declared || rel.Properties == "" {
				continue
			}
			prev, seen := byLabel[rel.Type]
			if !seen {
				byLabel[rel.Type] = rel
				continue
			}
			if prev.Properties != rel.Properties {
				return newError(InvalidDirectiveArgument, entity.Name, rel.Name,
					"relationship %s uses properties %s, but %s.%s declares %s",
					rel.Type, rel.Properties, prev.Owner, prev.Name, prev.Properties)
			}
		}
	}
	return nil
}

func (b *builder) validateCallbacks() error {
	check := func(owner string, attrs []*Attribute) error {
		for _, attr := range attrs {
			if attr.Callback == nil {
				continue
			}
			if b.callbacks != nil && !b.callbacks[attr.Callback.Name] {
				return newError(InvalidDirectiveArgument, owner, attr.Name, "callback %q is not registered", attr.Callback.Name)
			}
			if attr.Type.NonNull && !attr.HasDefault && !attr.Callback.Covers(OpCreate) {
				return newError(CyclicNonNullableCallback, owner, attr.Name,
					"non-nullable field populated by callback %q must include CREATE", attr.Callback.Name)
			}
		}
		return nil
	}
	for _, entity := range b.model.Entities() {
		if err := check(entity.Name, entity.Attributes()); err != nil {
			return err
		}
	}
	for _, name := range sortedPropertyNames(b.model.properties) {
		if err := check(name, b.model.properties[name].Attributes()); err != nil {
			return err
		}
	}
	return nil
}

// registerRootFields assigns generated root field names. Abstract types get
// read and connection fields only.
func (b *builder) registerRootFields() error {
	for _, entity := range b.model.Entities() {
		root := b.namer.RegisterRootFields(entity.Name, entity.Plural, entity.Kind == KindNode)
		if entity.IsAbstract() {
			root.Aggregate = ""
		}
		entity.Root = root
		b.model.queries[root.Read] = RootField{Entity: entity, Kind: RootRead}
		b.model.queries[root.Connection] = RootField{Entity: entity, Kind: RootConnection}
		if root.Aggregate != "" {
			b.model.queries[root.Aggregate] = RootField{Entity: entity, Kind: RootAggregate}
		}
		if entity.Kind != KindNode {
			continue
		}
		b.model.mutations[root.Create] = RootField{Entity: entity, Kind: RootCreate}
		b.model.mutations[root.Update] = RootField{Entity: entity, Kind: RootUpdate}
		b.model.mutations[root.Delete] = RootField{Entity: entity, Kind: RootDelete}
	}
	b.logger.Debug("schema model built",
		slog.Int("entities", len(b.model.order)),
		slog.Int("query_fields", len(b.model.queries)),
		slog.Int("mutation_fields", len(b.model.mutations)))
	return nil
}

func sortedPropertyNames(m map[string]*RelationshipProperties) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
