// Package schema compiles directive-annotated GraphQL type definitions into
// an immutable model of node entities, relationships, abstract types and
// authorization rules.
package schema

import (
	"sort"

	"neo4j-graphql/internal/naming"
)

// Kind distinguishes concrete node types from abstract types.
type Kind int

const (
	KindNode Kind = iota
	KindInterface
	KindUnion
)

func (k Kind) String() string {
	switch k {
	case KindInterface:
		return "interface"
	case KindUnion:
		return "union"
	default:
		return "node"
	}
}

// Direction is the traversal direction of a relationship from its owner.
type Direction string

const (
	DirectionOut  Direction = "OUT"
	DirectionIn   Direction = "IN"
	DirectionBoth Direction = "BOTH"
)

// Operation is an operation kind authorization rules and callbacks attach to.
type Operation string

const (
	OpCreate             Operation = "CREATE"
	OpRead               Operation = "READ"
	OpUpdate             Operation = "UPDATE"
	OpDelete             Operation = "DELETE"
	OpCreateRelationship Operation = "CREATE_RELATIONSHIP"
	OpDeleteRelationship Operation = "DELETE_RELATIONSHIP"
)

// AllOperations lists every operation kind.
var AllOperations = []Operation{OpCreate, OpRead, OpUpdate, OpDelete, OpCreateRelationship, OpDeleteRelationship}

// DeleteBehavior controls what happens to relationships when their owner is deleted.
type DeleteBehavior string

const (
	DeleteDetach   DeleteBehavior = "DETACH"
	DeleteCascade  DeleteBehavior = "CASCADE"
	DeleteRestrict DeleteBehavior = "RESTRICT"
)

// Semantic is the scalar semantic type of an attribute. It selects the
// filter operators, aggregate functions and codec for the attribute.
type Semantic int

const (
	SemanticCustom Semantic = iota
	SemanticID
	SemanticString
	SemanticInt
	SemanticFloat
	SemanticBigInt
	SemanticBoolean
	SemanticDateTime
	SemanticDate
	SemanticTime
	SemanticLocalTime
	SemanticLocalDateTime
	SemanticDuration
	SemanticPoint
	SemanticCartesianPoint
	SemanticEnum
)

var builtinSemantics = map[string]Semantic{
	"ID":             SemanticID,
	"String":         SemanticString,
	"Int":            SemanticInt,
	"Float":          SemanticFloat,
	"BigInt":         SemanticBigInt,
	"Boolean":        SemanticBoolean,
	"DateTime":       SemanticDateTime,
	"Date":           SemanticDate,
	"Time":           SemanticTime,
	"LocalTime":      SemanticLocalTime,
	"LocalDateTime":  SemanticLocalDateTime,
	"Duration":       SemanticDuration,
	"Point":          SemanticPoint,
	"CartesianPoint": SemanticCartesianPoint,
}

// IsNumeric reports ordering and arithmetic support.
func (s Semantic) IsNumeric() bool {
	return s == SemanticInt || s == SemanticFloat || s == SemanticBigInt
}

// IsTemporal reports date/time semantics.
func (s Semantic) IsTemporal() bool {
	switch s {
	case SemanticDateTime, SemanticDate, SemanticTime, SemanticLocalTime, SemanticLocalDateTime, SemanticDuration:
		return true
	}
	return false
}

// IsTextual reports string-like semantics.
func (s Semantic) IsTextual() bool {
	return s == SemanticString || s == SemanticID
}

// IsSpatial reports point semantics.
func (s Semantic) IsSpatial() bool {
	return s == SemanticPoint || s == SemanticCartesianPoint
}

// TypeRef is a field's declared GraphQL type.
type TypeRef struct {
	Name        string
	NonNull     bool
	List        bool
	ElemNonNull bool
}

// Attribute is a scalar field stored as a node or relationship property.
type Attribute struct {
	Name       string
	Type       TypeRef
	Semantic   Semantic
	Property   string
	Default    any
	HasDefault bool
	AutoID     bool
	Unique     bool
	Timestamps []Operation
	Callback   *Callback
	Auth       *Authorization
}

// Nullable reports whether the attribute may be null.
func (a *Attribute) Nullable() bool { return !a.Type.NonNull }

// IsList reports list-typed attributes.
func (a *Attribute) IsList() bool { return a.Type.List }

// TimestampOn reports whether the attribute is stamped for op.
func (a *Attribute) TimestampOn(op Operation) bool {
	return containsOp(a.Timestamps, op)
}

// Settable reports whether callers may supply the attribute for op.
func (a *Attribute) Settable(op Operation) bool {
	if a.AutoID || a.TimestampOn(op) {
		return false
	}
	if a.Callback != nil && a.Callback.Covers(op) {
		return false
	}
	return true
}

// Callback binds an attribute to an externally supplied function.
type Callback struct {
	Name       string
	Operations []Operation
}

// Covers reports whether the callback runs for op.
func (c *Callback) Covers(op Operation) bool {
	return containsOp(c.Operations, op)
}

// Relationship is a field traversing to other nodes.
type Relationship struct {
	Name       string
	Owner      string
	Type       string
	Direction  Direction
	Target     string
	Properties string
	Many       bool
	NonNull    bool
	OnDelete   DeleteBehavior
	Declared   bool
	Auth       *Authorization
}

// Computed is a scalar field backed by an inline Cypher statement.
type Computed struct {
	Name      string
	Type      TypeRef
	Semantic  Semantic
	Statement string
	Column    string
}

// Limit bounds list sizes for an entity.
type Limit struct {
	Default int
	Max     int
}

// fieldSet holds the ordered attribute list shared by entities and
// relationship property types.
type fieldSet struct {
	attributes []*Attribute
	attrIndex  map[string]*Attribute
}

func (f *fieldSet) addAttribute(a *Attribute) {
	if f.attrIndex == nil {
		f.attrIndex = make(map[string]*Attribute)
	}
	f.attributes = append(f.attributes, a)
	f.attrIndex[a.Name] = a
}

// Attribute looks up an attribute by field name.
func (f *fieldSet) Attribute(name string) (*Attribute, bool) {
	a, ok := f.attrIndex[name]
	return a, ok
}

// Attributes returns attributes in declaration order.
func (f *fieldSet) Attributes() []*Attribute { return f.attributes }

// Entity is a node type, interface or union.
type Entity struct {
	fieldSet
	Name           string
	Kind           Kind
	Labels         []string
	Plural         string
	Interfaces     []string
	Members        []string
	Auth           *Authorization
	Authentication *Authentication
	Limit          *Limit
	Root           naming.RootFields

	relationships []*Relationship
	relIndex      map[string]*Relationship
	computed      []*Computed
	compIndex     map[string]*Computed
}

func (e *Entity) addRelationship(r *Relationship) {
	if e.relIndex == nil {
		e.relIndex = make(map[string]*Relationship)
	}
	e.relationships = append(e.relationships, r)
	e.relIndex[r.Name] = r
}

func (e *Entity) addComputed(c *Computed) {
	if e.compIndex == nil {
		e.compIndex = make(map[string]*Computed)
	}
	e.computed = append(e.computed, c)
	e.compIndex[c.Name] = c
}

// Relationship looks up a relationship field.
func (e *Entity) Relationship(name string) (*Relationship, bool) {
	r, ok := e.relIndex[name]
	return r, ok
}

// Relationships returns relationship fields in declaration order.
func (e *Entity) Relationships() []*Relationship { return e.relationships }

// Computed looks up a computed field.
func (e *Entity) Computed(name string) (*Computed, bool) {
	c, ok := e.compIndex[name]
	return c, ok
}

// ComputedFields returns computed fields in declaration order.
func (e *Entity) ComputedFields() []*Computed { return e.computed }

// IsAbstract reports interfaces and unions.
func (e *Entity) IsAbstract() bool { return e.Kind != KindNode }

// HasField reports whether name is any kind of field on the entity.
func (e *Entity) HasField(name string) bool {
	if _, ok := e.attrIndex[name]; ok {
		return true
	}
	if _, ok := e.relIndex[name]; ok {
		return true
	}
	_, ok := e.compIndex[name]
	return ok
}

// RelationshipProperties is the property bag carried by a relationship.
type RelationshipProperties struct {
	fieldSet
	Name string
}

// RootKind identifies the generated root field variants.
type RootKind int

const (
	RootRead RootKind = iota
	RootConnection
	RootAggregate
	RootCreate
	RootUpdate
	RootDelete
)

// RootField binds a generated root field to its entity.
type RootField struct {
	Entity *Entity
	Kind   RootKind
}

// Model is the immutable compiled schema.
type Model struct {
	entities     map[string]*Entity
	properties   map[string]*RelationshipProperties
	enums        map[string][]string
	order        []string
	implementers map[string][]*Entity
	queries      map[string]RootField
	mutations    map[string]RootField
	fingerprint  string
}

// Entity looks up an entity (node, interface or union) by type name.
func (m *Model) Entity(name string) (*Entity, bool) {
	e, ok := m.entities[name]
	return e, ok
}

// Entities returns all entities in definition order.
func (m *Model) Entities() []*Entity {
	out := make([]*Entity, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.entities[name])
	}
	return out
}

// Properties looks up a relationship properties type.
func (m *Model) Properties(name string) (*RelationshipProperties, bool) {
	p, ok := m.properties[name]
	return p, ok
}

// EnumValues returns the values of an enum type.
func (m *Model) EnumValues(name string) ([]string, bool) {
	v, ok := m.enums[name]
	return v, ok
}

// Query resolves a generated query root field.
func (m *Model) Query(field string) (RootField, bool) {
	r, ok := m.queries[field]
	return r, ok
}

// Mutation resolves a generated mutation root field.
func (m *Model) Mutation(field string) (RootField, bool) {
	r, ok := m.mutations[field]
	return r, ok
}

// QueryFields lists the generated query root field names, sorted.
func (m *Model) QueryFields() []string { return sortedKeys(m.queries) }

// MutationFields lists the generated mutation root field names, sorted.
func (m *Model) MutationFields() []string { return sortedKeys(m.mutations) }

// Fingerprint identifies the type definitions the model was built from.
func (m *Model) Fingerprint() string { return m.fingerprint }

// ConcreteTypes returns the node entities an entity can resolve to: itself
// for nodes, implementers for interfaces and members for unions.
func (m *Model) ConcreteTypes(e *Entity) []*Entity {
	switch e.Kind {
	case KindInterface:
		return m.implementers[e.Name]
	case KindUnion:
		out := make([]*Entity, 0, len(e.Members))
		for _, name := range e.Members {
			if member, ok := m.entities[name]; ok {
				out = append(out, member)
			}
		}
		return out
	default:
		return []*Entity{e}
	}
}

// Implements reports whether concrete is, implements or is a member of abstract.
func (m *Model) Implements(concrete *Entity, abstract string) bool {
	if concrete.Name == abstract {
		return true
	}
	target, ok := m.entities[abstract]
	if !ok {
		return false
	}
	for _, candidate := range m.ConcreteTypes(target) {
		if candidate.Name == concrete.Name {
			return true
		}
	}
	return false
}

// ResolveLabels picks the candidate whose label set is contained in labels,
// preferring the most specific (most labels) match.
func (m *Model) ResolveLabels(candidates []*Entity, labels []string) (*Entity, bool) {
	have := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		have[l] = struct{}{}
	}
	var best *Entity
	for _, candidate := range candidates {
		matched := true
		for _, l := range candidate.Labels {
			if _, ok := have[l]; !ok {
				matched = false
				break
			}
		}
		if matched && (best == nil || len(candidate.Labels) > len(best.Labels)) {
			best = candidate
		}
	}
	return best, best != nil
}

func containsOp(ops []Operation, op Operation) bool {
	for _, candidate := range ops {
		if candidate == op {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]RootField) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
