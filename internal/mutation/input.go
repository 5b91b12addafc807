package mutation

import (
	"sort"
	"strings"

	"neo4j-graphql/internal/schema"
	"neo4j-graphql/internal/validation"
)

// Nested operation keys.
const (
	opCreate          = "create"
	opConnect         = "connect"
	opConnectOrCreate = "connectOrCreate"
	opUpdate          = "update"
	opDisconnect      = "disconnect"
	opDelete          = "delete"

	keyWhere            = "where"
	keyNode             = "node"
	keyEdge             = "edge"
	keyOnCreate         = "onCreate"
	keyCreateDuplicates = "createDuplicates"
)

// updateSuffixes map update key suffixes to assignment operators.
var updateSuffixes = []struct {
	suffix string
	op     AssignOp
}{
	{"_SET", AssignSet},
	{"_INCREMENT", AssignIncrement},
	{"_DECREMENT", AssignDecrement},
	{"_ADD", AssignAdd},
	{"_SUBTRACT", AssignSubtract},
	{"_MULTIPLY", AssignMultiply},
	{"_DIVIDE", AssignDivide},
	{"_PUSH", AssignPush},
	{"_POP", AssignPop},
}

type attributes interface {
	Attribute(name string) (*schema.Attribute, bool)
	Attributes() []*schema.Attribute
}

// parseUpdateKey resolves `field` or `field_OP` against fields.
func parseUpdateKey(fields attributes, key string) (*schema.Attribute, AssignOp, bool) {
	if attr, ok := fields.Attribute(key); ok {
		return attr, AssignSet, true
	}
	for _, s := range updateSuffixes {
		if name, ok := strings.CutSuffix(key, s.suffix); ok {
			if attr, ok := fields.Attribute(name); ok {
				return attr, s.op, true
			}
		}
	}
	return nil, "", false
}

// member is the input for one concrete (or interface) target of a
// relationship. Union relationship inputs are keyed by member name.
type member struct {
	entity *schema.Entity
	value  any
	path   string
}

func (p *Planner) members(rel *schema.Relationship, value any, path string) ([]member, error) {
	target, ok := p.model.Entity(rel.Target)
	if !ok {
		return nil, validation.Errorf(path, "unknown type %s", rel.Target)
	}
	if target.Kind != schema.KindUnion {
		return []member{{entity: target, value: value, path: path}}, nil
	}
	m, err := asMap(value, path)
	if err != nil {
		return nil, err
	}
	var out []member
	for _, name := range sortedKeys(m) {
		entity, ok := p.model.Entity(name)
		if !ok || !p.model.Implements(entity, target.Name) {
			return nil, validation.Errorf(validation.Join(path, name), "%s is not a member of %s", name, target.Name)
		}
		out = append(out, member{entity: entity, value: m[name], path: validation.Join(path, name)})
	}
	return out, nil
}

// relationshipKeys returns the relationships named in input, in
// declaration order, and rejects keys that are neither attributes nor
// relationships of entity.
func relationshipKeys(entity *schema.Entity, input map[string]any, path string, update bool) ([]*schema.Relationship, error) {
	for _, key := range sortedKeys(input) {
		if _, ok := entity.Relationship(key); ok {
			continue
		}
		if update {
			if _, _, ok := parseUpdateKey(entity, key); ok {
				continue
			}
		} else if _, ok := entity.Attribute(key); ok {
			continue
		}
		return nil, validation.Errorf(validation.Join(path, key), "unknown field %s on %s", key, entity.Name)
	}
	var rels []*schema.Relationship
	for _, rel := range entity.Relationships() {
		if _, ok := input[rel.Name]; ok {
			rels = append(rels, rel)
		}
	}
	return rels, nil
}

// relationshipsOnly returns the relationships keyed in input, in
// declaration order, rejecting any other key.
func relationshipsOnly(entity *schema.Entity, input map[string]any, path string) ([]*schema.Relationship, error) {
	for _, key := range sortedKeys(input) {
		if _, ok := entity.Relationship(key); !ok {
			return nil, validation.Errorf(validation.Join(path, key), "unknown relationship %s on %s", key, entity.Name)
		}
	}
	var rels []*schema.Relationship
	for _, rel := range entity.Relationships() {
		if _, ok := input[rel.Name]; ok {
			rels = append(rels, rel)
		}
	}
	return rels, nil
}

// attributeInput drops relationship keys from input.
func attributeInput(entity *schema.Entity, input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for k, v := range input {
		if _, ok := entity.Relationship(k); !ok {
			out[k] = v
		}
	}
	return out
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

// asList coerces a single object to a one-element list, as input coercion
// does for ONE relationships.
func asList(value any) []any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}

// objects returns value as a list of objects with their paths.
func objects(value any, path string) ([]map[string]any, []string, error) {
	_, single := value.(map[string]any)
	items := asList(value)
	maps := make([]map[string]any, 0, len(items))
	paths := make([]string, 0, len(items))
	for i, item := range items {
		itemPath := validation.Index(path, i)
		if single {
			itemPath = path
		}
		m, err := asMap(item, itemPath)
		if err != nil {
			return nil, nil, err
		}
		maps = append(maps, m)
		paths = append(paths, itemPath)
	}
	return maps, paths, nil
}

func checkKeys(input map[string]any, path string, allowed ...string) error {
	for _, key := range sortedKeys(input) {
		found := false
		for _, a := range allowed {
			if key == a {
				found = true
				break
			}
		}
		if !found {
			return validation.Errorf(validation.Join(path, key), "unknown field %s", key)
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
