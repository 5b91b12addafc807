package plan

import (
	"sort"
	"strings"

	"neo4j-graphql/internal/cursor"
	"neo4j-graphql/internal/filter"
	"neo4j-graphql/internal/schema"
	"neo4j-graphql/internal/selection"
	"neo4j-graphql/internal/validation"
)

const (
	sortAscending  = "ASC"
	sortDescending = "DESC"
)

// paginate reads sort, limit and offset from the field arguments or from
// the legacy options wrapper.
func (c *Compiler) paginate(node *Node, field *selection.Field, path string) error {
	args := field.Arguments
	argPath := path
	if opts, err := field.MapArg("options"); err != nil {
		return validation.Errorf(path, "%v", err)
	} else if opts != nil {
		args = opts
		argPath = validation.Join(path, "options")
	}
	wrapped := &selection.Field{Arguments: args}

	if raw, ok := args["sort"]; ok && raw != nil {
		keys, err := c.sortKeys(node.Entity, nil, raw, validation.Join(argPath, "sort"), false)
		if err != nil {
			return err
		}
		node.Sort = keys
	}
	offset, _, err := wrapped.IntArg("offset")
	if err != nil {
		return validation.Errorf(argPath, "%v", err)
	}
	if offset < 0 {
		return validation.Errorf(validation.Join(argPath, "offset"), "offset must be non-negative")
	}
	node.Offset = offset

	if node.Kind == KindSingle {
		return nil
	}
	requested, present, err := wrapped.IntArg("limit")
	if err != nil {
		return validation.Errorf(argPath, "%v", err)
	}
	return c.applyLimit(node, requested, present, validation.Join(argPath, "limit"))
}

// paginateConnection reads first, after and sort for a connection.
func (c *Compiler) paginateConnection(node *Node, field *selection.Field, path string) error {
	if raw, ok := field.Arg("sort"); ok && raw != nil {
		keys, err := c.sortKeys(node.Entity, node.Properties, raw, validation.Join(path, "sort"), node.Relationship != nil)
		if err != nil {
			return err
		}
		node.Sort = keys
	}
	if raw, ok := field.Arg("after"); ok && raw != nil {
		after, isString := raw.(string)
		if !isString {
			return validation.Errorf(validation.Join(path, "after"), "after must be a cursor string")
		}
		start, err := cursor.Start(after)
		if err != nil {
			return validation.Errorf(validation.Join(path, "after"), "%v", err)
		}
		node.Offset = start
	}
	first, present, err := field.IntArg("first")
	if err != nil {
		return validation.Errorf(path, "%v", err)
	}
	return c.applyLimit(node, first, present, validation.Join(path, "first"))
}

// applyLimit resolves the effective limit: the requested value capped at the
// maximum, or the default when nothing was requested.
func (c *Compiler) applyLimit(node *Node, requested int, present bool, path string) error {
	def, max := c.limits.DefaultLimit, c.limits.MaxLimit
	if l := node.Entity.Limit; l != nil {
		if l.Default > 0 {
			def = l.Default
		}
		if l.Max > 0 {
			max = l.Max
		}
	}
	if present {
		if requested < 0 {
			return validation.Errorf(path, "must be non-negative")
		}
		if max > 0 && requested > max {
			requested = max
		}
		node.Limit = &requested
		return nil
	}
	if def > 0 {
		node.Limit = &def
	} else if max > 0 {
		node.Limit = &max
	}
	return nil
}

// sortKeys parses a list of single-field sort objects. Connection sorts
// over relationships wrap keys in node and edge objects.
func (c *Compiler) sortKeys(entity *schema.Entity, props *schema.RelationshipProperties, raw any, path string, wrapped bool) ([]SortKey, error) {
	list, ok := raw.([]any)
	if !ok {
		list = []any{raw}
	}
	var keys []SortKey
	for i, item := range list {
		itemPath := validation.Index(path, i)
		m, ok := item.(map[string]any)
		if !ok {
			return nil, validation.Errorf(itemPath, "sort entries must be objects")
		}
		if !wrapped {
			parsed, err := c.sortObject(filter.ScopeNode, entity, nil, m, itemPath)
			if err != nil {
				return nil, err
			}
			keys = append(keys, parsed...)
			continue
		}
		for _, scopeKey := range sortedMapKeys(m) {
			inner, ok := m[scopeKey].(map[string]any)
			if !ok {
				return nil, validation.Errorf(validation.Join(itemPath, scopeKey), "expected an object")
			}
			var (
				parsed []SortKey
				err    error
			)
			switch scopeKey {
			case "node":
				parsed, err = c.sortObject(filter.ScopeNode, entity, nil, inner, validation.Join(itemPath, scopeKey))
			case "edge":
				if props == nil {
					return nil, validation.Errorf(validation.Join(itemPath, scopeKey), "relationship has no properties")
				}
				parsed, err = c.sortObject(filter.ScopeEdge, nil, props, inner, validation.Join(itemPath, scopeKey))
			default:
				return nil, validation.Errorf(validation.Join(itemPath, scopeKey), "unknown sort field %s", scopeKey)
			}
			if err != nil {
				return nil, err
			}
			keys = append(keys, parsed...)
		}
	}
	return keys, nil
}

func (c *Compiler) sortObject(scope filter.Scope, entity *schema.Entity, props *schema.RelationshipProperties, m map[string]any, path string) ([]SortKey, error) {
	var keys []SortKey
	for _, field := range sortedMapKeys(m) {
		fieldPath := validation.Join(path, field)
		var (
			attr *schema.Attribute
			ok   bool
		)
		if scope == filter.ScopeEdge {
			attr, ok = props.Attribute(field)
		} else {
			if entity.Kind == schema.KindUnion {
				return nil, validation.Errorf(fieldPath, "union %s cannot be sorted", entity.Name)
			}
			attr, ok = entity.Attribute(field)
		}
		if !ok {
			return nil, validation.Errorf(fieldPath, "unknown sort field %s", field)
		}
		if attr.IsList() || attr.Semantic.IsSpatial() {
			return nil, validation.Errorf(fieldPath, "%s is not sortable", field)
		}
		dir, _ := m[field].(string)
		switch strings.ToUpper(dir) {
		case sortAscending:
			keys = append(keys, SortKey{Scope: scope, Field: field})
		case sortDescending:
			keys = append(keys, SortKey{Scope: scope, Field: field, Descending: true})
		default:
			return nil, validation.Errorf(fieldPath, "sort direction must be ASC or DESC")
		}
	}
	return keys, nil
}

func sortedMapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
