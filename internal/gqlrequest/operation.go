package gqlrequest

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/graphql-go/graphql/language/ast"

	"neo4j-graphql/internal/selection"
)

// RootFields converts the selected operation into selection fields.
// Arguments are resolved against the request variables and their declared
// defaults, fragments are flattened with their type conditions and
// @skip/@include are applied.
func (a *Analysis) RootFields() ([]*selection.Field, error) {
	if a == nil || a.Operation == nil {
		return nil, fmt.Errorf("no operation selected")
	}
	vars, err := a.variables()
	if err != nil {
		return nil, err
	}
	c := &converter{fragments: a.Fragments, vars: vars}
	return c.selections(a.Operation.SelectionSet, "", map[string]bool{})
}

func (a *Analysis) variables() (map[string]any, error) {
	vars := map[string]any{}
	if len(a.Envelope.VariablesRaw) > 0 {
		if err := json.Unmarshal(a.Envelope.VariablesRaw, &vars); err != nil {
			return nil, fmt.Errorf("variables must be a JSON object: %w", err)
		}
	}
	for _, def := range a.Operation.VariableDefinitions {
		if def == nil || def.Variable == nil || def.Variable.Name == nil {
			continue
		}
		name := def.Variable.Name.Value
		if _, ok := vars[name]; ok || def.DefaultValue == nil {
			continue
		}
		value, err := (&converter{}).value(def.DefaultValue)
		if err != nil {
			return nil, fmt.Errorf("default of $%s: %w", name, err)
		}
		vars[name] = value
	}
	return vars, nil
}

type converter struct {
	fragments map[string]*ast.FragmentDefinition
	vars      map[string]any
}

func (c *converter) selections(set *ast.SelectionSet, typeCondition string, inFlight map[string]bool) ([]*selection.Field, error) {
	if set == nil {
		return nil, nil
	}
	var out []*selection.Field
	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			include, err := c.included(s.Directives)
			if err != nil {
				return nil, err
			}
			if !include {
				continue
			}
			field, err := c.field(s, typeCondition, inFlight)
			if err != nil {
				return nil, err
			}
			out = append(out, field)
		case *ast.InlineFragment:
			include, err := c.included(s.Directives)
			if err != nil {
				return nil, err
			}
			if !include {
				continue
			}
			nested, err := c.selections(s.SelectionSet, conditionName(s.TypeCondition, typeCondition), inFlight)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		case *ast.FragmentSpread:
			include, err := c.included(s.Directives)
			if err != nil {
				return nil, err
			}
			if !include || s.Name == nil {
				continue
			}
			name := s.Name.Value
			fragment, ok := c.fragments[name]
			if !ok || fragment == nil {
				return nil, fmt.Errorf("unknown fragment %q", name)
			}
			if inFlight[name] {
				return nil, fmt.Errorf("fragment %q spreads itself", name)
			}
			inFlight[name] = true
			nested, err := c.selections(fragment.SelectionSet, conditionName(fragment.TypeCondition, typeCondition), inFlight)
			delete(inFlight, name)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		}
	}
	return out, nil
}

func (c *converter) field(f *ast.Field, typeCondition string, inFlight map[string]bool) (*selection.Field, error) {
	field := &selection.Field{TypeCondition: typeCondition}
	if f.Name != nil {
		field.Name = f.Name.Value
	}
	if f.Alias != nil {
		field.Alias = f.Alias.Value
	}
	if len(f.Arguments) > 0 {
		field.Arguments = make(map[string]any, len(f.Arguments))
		for _, arg := range f.Arguments {
			if arg == nil || arg.Name == nil {
				continue
			}
			value, err := c.value(arg.Value)
			if err != nil {
				return nil, fmt.Errorf("argument %s of %s: %w", arg.Name.Value, field.Key(), err)
			}
			field.Arguments[arg.Name.Value] = value
		}
	}
	children, err := c.selections(f.SelectionSet, "", inFlight)
	if err != nil {
		return nil, err
	}
	field.Selections = children
	return field, nil
}

func (c *converter) value(v ast.Value) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case *ast.Variable:
		if val.Name == nil {
			return nil, fmt.Errorf("unnamed variable")
		}
		return c.vars[val.Name.Value], nil
	case *ast.IntValue:
		n, err := strconv.ParseInt(val.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", val.Value)
		}
		return int(n), nil
	case *ast.FloatValue:
		f, err := strconv.ParseFloat(val.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q", val.Value)
		}
		return f, nil
	case *ast.StringValue:
		return val.Value, nil
	case *ast.BooleanValue:
		return val.Value, nil
	case *ast.EnumValue:
		return val.Value, nil
	case *ast.ListValue:
		out := make([]any, 0, len(val.Values))
		for _, item := range val.Values {
			converted, err := c.value(item)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	case *ast.ObjectValue:
		out := make(map[string]any, len(val.Fields))
		for _, f := range val.Fields {
			if f == nil || f.Name == nil {
				continue
			}
			converted, err := c.value(f.Value)
			if err != nil {
				return nil, err
			}
			out[f.Name.Value] = converted
		}
		return out, nil
	}
	return v.GetValue(), nil
}

// included evaluates @skip and @include.
func (c *converter) included(directives []*ast.Directive) (bool, error) {
	for _, d := range directives {
		if d == nil || d.Name == nil {
			continue
		}
		name := d.Name.Value
		if name != "skip" && name != "include" {
			continue
		}
		cond, err := c.ifArgument(d)
		if err != nil {
			return false, fmt.Errorf("@%s: %w", name, err)
		}
		if (name == "skip" && cond) || (name == "include" && !cond) {
			return false, nil
		}
	}
	return true, nil
}

func (c *converter) ifArgument(d *ast.Directive) (bool, error) {
	for _, arg := range d.Arguments {
		if arg == nil || arg.Name == nil || arg.Name.Value != "if" {
			continue
		}
		value, err := c.value(arg.Value)
		if err != nil {
			return false, err
		}
		b, ok := value.(bool)
		if !ok {
			return false, fmt.Errorf("argument if must be a Boolean")
		}
		return b, nil
	}
	return false, fmt.Errorf("argument if is required")
}

func conditionName(named *ast.Named, inherited string) string {
	if named == nil || named.Name == nil || named.Name.Value == "" {
		return inherited
	}
	return named.Name.Value
}
