package mutation

import (
	"context"
	"fmt"

	"neo4j-graphql/internal/schema"
	"neo4j-graphql/internal/selection"
	"neo4j-graphql/internal/validation"
)

// Callback computes the value of a @callback field. parent holds the input
// values known for the object being written.
type Callback func(ctx context.Context, parent map[string]any, info CallbackInfo) (any, error)

// CallbackInfo describes the field a callback runs for.
type CallbackInfo struct {
	Operation schema.Operation
	Type      string
	Field     string
}

// createSet builds the assignments of a new node or relationship: input
// values, defaults, generated ids, CREATE timestamps and CREATE callbacks.
func (p *Planner) createSet(ctx context.Context, typeName string, fields attributes, input map[string]any, path string) ([]Assignment, error) {
	var (
		set      []Assignment
		deferred []*schema.Attribute
	)
	for _, key := range sortedKeys(input) {
		if _, ok := fields.Attribute(key); !ok {
			return nil, validation.Errorf(validation.Join(path, key), "unknown field %s on %s", key, typeName)
		}
	}
	for _, attr := range fields.Attributes() {
		attrPath := validation.Join(path, attr.Name)
		value, present := input[attr.Name]
		if present && !attr.Settable(schema.OpCreate) {
			return nil, validation.Errorf(attrPath, "%s.%s cannot be set", typeName, attr.Name)
		}
		switch {
		case attr.AutoID:
			set = append(set, generated(attr, SourceUUID))
		case attr.TimestampOn(schema.OpCreate):
			set = append(set, generated(attr, SourceTimestamp))
		case attr.Callback != nil && attr.Callback.Covers(schema.OpCreate):
			deferred = append(deferred, attr)
		case present:
			a, err := p.assignment(attr, AssignSet, value, attrPath)
			if err != nil {
				return nil, err
			}
			set = append(set, a)
		case attr.HasDefault:
			a, err := p.assignment(attr, AssignSet, attr.Default, attrPath)
			if err != nil {
				return nil, err
			}
			set = append(set, a)
		case attr.Type.NonNull:
			return nil, validation.Errorf(attrPath, "%s.%s is required", typeName, attr.Name)
		}
	}
	callbacks, err := p.runCallbacks(ctx, schema.OpCreate, typeName, deferred, input, path)
	if err != nil {
		return nil, err
	}
	return append(set, callbacks...), nil
}

// updateSet builds the assignments of an update. UPDATE timestamps and
// callbacks are added only when some property is written.
func (p *Planner) updateSet(ctx context.Context, typeName string, fields attributes, input map[string]any, path string) ([]Assignment, error) {
	var set []Assignment
	seen := make(map[string]string)
	for _, key := range sortedKeys(input) {
		attr, op, ok := parseUpdateKey(fields, key)
		if !ok {
			continue
		}
		keyPath := validation.Join(path, key)
		if !attr.Settable(schema.OpUpdate) {
			return nil, validation.Errorf(keyPath, "%s.%s cannot be set", typeName, attr.Name)
		}
		if prev, dup := seen[attr.Name]; dup {
			return nil, validation.Errorf(keyPath, "conflicting modification of %s: %s and %s", attr.Name, prev, key)
		}
		seen[attr.Name] = key
		a, err := p.assignment(attr, op, input[key], keyPath)
		if err != nil {
			return nil, err
		}
		set = append(set, a)
	}
	if len(set) == 0 {
		return nil, nil
	}

	var deferred []*schema.Attribute
	for _, attr := range fields.Attributes() {
		switch {
		case attr.TimestampOn(schema.OpUpdate):
			set = append(set, generated(attr, SourceTimestamp))
		case attr.Callback != nil && attr.Callback.Covers(schema.OpUpdate):
			deferred = append(deferred, attr)
		}
	}
	callbacks, err := p.runCallbacks(ctx, schema.OpUpdate, typeName, deferred, input, path)
	if err != nil {
		return nil, err
	}
	return append(set, callbacks...), nil
}

func generated(attr *schema.Attribute, source ValueSource) Assignment {
	return Assignment{Field: attr.Name, Property: attr.Property, Semantic: attr.Semantic, Op: AssignSet, Source: source}
}

// assignment validates op against the attribute type and parses value.
func (p *Planner) assignment(attr *schema.Attribute, op AssignOp, value any, path string) (Assignment, error) {
	a := Assignment{Field: attr.Name, Property: attr.Property, Semantic: attr.Semantic, Op: op}
	switch op {
	case AssignIncrement, AssignDecrement:
		if attr.IsList() || (attr.Semantic != schema.SemanticInt && attr.Semantic != schema.SemanticBigInt) {
			return a, validation.Errorf(path, "%s applies to Int and BigInt fields", op)
		}
	case AssignAdd, AssignSubtract, AssignMultiply, AssignDivide:
		if attr.IsList() || attr.Semantic != schema.SemanticFloat {
			return a, validation.Errorf(path, "%s applies to Float fields", op)
		}
	case AssignPush:
		if !attr.IsList() {
			return a, validation.Errorf(path, "%s applies to list fields", op)
		}
		value = asList(value)
	case AssignPop:
		if !attr.IsList() {
			return a, validation.Errorf(path, "%s applies to list fields", op)
		}
		n, ok := selection.ToInt(value)
		if !ok || n < 0 {
			return a, validation.Errorf(path, "expected a non-negative Int")
		}
		a.Value = int64(n)
		return a, nil
	}
	if value == nil && op != AssignSet {
		return a, validation.Errorf(path, "%s requires a value", op)
	}
	if value == nil && attr.Type.NonNull {
		return a, validation.Errorf(path, "%s cannot be null", attr.Name)
	}
	parsed, err := p.filters.ParseValue(attr, value, path)
	if err != nil {
		return a, err
	}
	a.Value = parsed
	return a, nil
}

// runCallbacks invokes the callbacks of attrs with the known sibling
// values and turns the results into assignments.
func (p *Planner) runCallbacks(ctx context.Context, op schema.Operation, typeName string, attrs []*schema.Attribute, input map[string]any, path string) ([]Assignment, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	parent := make(map[string]any, len(input))
	for k, v := range input {
		if _, isMap := v.(map[string]any); !isMap {
			parent[k] = v
		}
	}
	set := make([]Assignment, 0, len(attrs))
	for _, attr := range attrs {
		fn, ok := p.callbacks[attr.Callback.Name]
		if !ok {
			return nil, fmt.Errorf("callback %s for %s.%s is not registered", attr.Callback.Name, typeName, attr.Name)
		}
		value, err := fn(ctx, parent, CallbackInfo{Operation: op, Type: typeName, Field: attr.Name})
		if err != nil {
			return nil, fmt.Errorf("callback %s for %s.%s: %w", attr.Callback.Name, typeName, attr.Name, err)
		}
		a, err := p.assignment(attr, AssignSet, value, validation.Join(path, attr.Name))
		if err != nil {
			return nil, err
		}
		set = append(set, a)
	}
	return set, nil
}
