// Package selection holds the host-independent form of a GraphQL operation:
// fields with aliases, resolved argument values and flattened fragments.
package selection

import (
	"fmt"
	"math"
)

// Field is one selected field. Fields coming from an inline fragment or a
// fragment spread carry the fragment's type condition.
type Field struct {
	Alias         string
	Name          string
	Arguments     map[string]any
	TypeCondition string
	Selections    []*Field
}

// Key returns the response key: the alias when present, else the name.
func (f *Field) Key() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// Arg returns an argument value.
func (f *Field) Arg(name string) (any, bool) {
	v, ok := f.Arguments[name]
	return v, ok
}

// MapArg returns an object argument, or nil when absent or null.
func (f *Field) MapArg(name string) (map[string]any, error) {
	v, ok := f.Arguments[name]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("argument %s must be an object", name)
	}
	return m, nil
}

// IntArg returns an integer argument. Whole floats are accepted since JSON
// variables decode numbers as float64.
func (f *Field) IntArg(name string) (int, bool, error) {
	v, ok := f.Arguments[name]
	if !ok || v == nil {
		return 0, false, nil
	}
	n, ok := ToInt(v)
	if !ok {
		return 0, false, fmt.Errorf("argument %s must be an integer", name)
	}
	return n, true, nil
}

// Children returns the sub-selections named name, in order.
func (f *Field) Children(name string) []*Field {
	var out []*Field
	for _, child := range f.Selections {
		if child.Name == name {
			out = append(out, child)
		}
	}
	return out
}

// ToInt converts integral numeric values.
func ToInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

// Merge combines fields sharing a response key and type condition, joining
// their sub-selections. Order follows first occurrence.
func Merge(fields []*Field) []*Field {
	type key struct{ response, condition string }
	index := make(map[key]*Field, len(fields))
	out := make([]*Field, 0, len(fields))
	for _, f := range fields {
		k := key{f.Key(), f.TypeCondition}
		if existing, ok := index[k]; ok {
			existing.Selections = Merge(append(existing.Selections, f.Selections...))
			continue
		}
		copied := *f
		copied.Selections = Merge(f.Selections)
		index[k] = &copied
		out = append(out, &copied)
	}
	return out
}
