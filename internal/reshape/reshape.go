// Package reshape maps statement results back into the nested values the
// selection tree asked for.
package reshape

import (
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"neo4j-graphql/internal/cursor"
	"neo4j-graphql/internal/plan"
	"neo4j-graphql/internal/scalars"
	"neo4j-graphql/internal/schema"
)

const labelsKey = "__labels"

// Shaper reshapes results of one model. It is safe for concurrent use.
type Shaper struct {
	model   *schema.Model
	scalars *scalars.Registry
}

// New creates a shaper serializing scalar values through registry.
func New(model *schema.Model, registry *scalars.Registry) *Shaper {
	if registry == nil {
		registry = scalars.Default()
	}
	return &Shaper{model: model, scalars: registry}
}

// Query reshapes the result column values of a read statement: one value
// per item for lists, a single value for connections and aggregates.
func (s *Shaper) Query(node *plan.Node, values []any) (any, error) {
	switch node.Kind {
	case plan.KindConnection:
		var raw any
		if len(values) > 0 {
			raw = values[0]
		}
		return s.connection(node, raw)
	case plan.KindAggregate:
		var raw any
		if len(values) > 0 {
			raw = values[0]
		}
		return s.aggregate(node, raw)
	}
	return s.items(node, values)
}

func (s *Shaper) items(node *plan.Node, values []any) ([]any, error) {
	out := make([]any, 0, len(values))
	for _, v := range values {
		item, ok, err := s.item(node, v)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// item shapes one projected node. Items of abstract traversals whose labels
// match no branch are dropped.
func (s *Shaper) item(node *plan.Node, raw any) (map[string]any, bool, error) {
	m, err := asMap(node.Key, raw)
	if err != nil {
		return nil, false, err
	}
	branch, ok := s.branch(node, m)
	if !ok {
		return nil, false, nil
	}
	out := make(map[string]any, len(branch.Fields))
	for _, proj := range branch.Fields {
		switch proj.Kind {
		case plan.ProjectTypename:
			out[proj.Key] = branch.Entity.Name
		case plan.ProjectAttribute:
			out[proj.Key] = s.serialize(proj.Attribute.Type.Name, m[proj.Key])
		case plan.ProjectComputed:
			out[proj.Key] = s.serialize(proj.Computed.Type.Name, m[proj.Key])
		case plan.ProjectRelationship:
			v, err := s.child(proj.Child, m[proj.Key])
			if err != nil {
				return nil, false, err
			}
			out[proj.Key] = v
		}
	}
	return out, true, nil
}

// branch picks the branch an item belongs to by its labels.
func (s *Shaper) branch(node *plan.Node, m map[string]any) (*plan.Branch, bool) {
	if len(node.Branches) == 0 {
		return nil, false
	}
	if !node.Abstract() {
		return node.Branches[0], true
	}
	labels := stringList(m[labelsKey])
	candidates := make([]*schema.Entity, len(node.Branches))
	for i, b := range node.Branches {
		candidates[i] = b.Entity
	}
	entity, ok := s.model.ResolveLabels(candidates, labels)
	if !ok {
		return nil, false
	}
	for _, b := range node.Branches {
		if b.Entity == entity {
			return b, true
		}
	}
	return nil, false
}

func (s *Shaper) child(node *plan.Node, raw any) (any, error) {
	switch node.Kind {
	case plan.KindSingle:
		if raw == nil {
			return nil, nil
		}
		item, ok, err := s.item(node, raw)
		if err != nil || !ok {
			return nil, err
		}
		return item, nil
	case plan.KindConnection:
		return s.connection(node, raw)
	case plan.KindAggregate:
		return s.aggregate(node, raw)
	}
	if raw == nil {
		return []any{}, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("reshape %s: expected a list, got %T", node.Key, raw)
	}
	return s.items(node, list)
}

// connection shapes a connection map holding the page of edges and the
// total count.
func (s *Shaper) connection(node *plan.Node, raw any) (map[string]any, error) {
	var (
		edges []any
		total int
	)
	if raw != nil {
		m, err := asMap(node.Key, raw)
		if err != nil {
			return nil, err
		}
		if list, ok := m["edges"].([]any); ok {
			edges = list
		}
		total = toInt(m["totalCount"])
	}

	shaped := make([]map[string]any, 0, len(edges))
	for i, e := range edges {
		em, err := asMap(node.Key, e)
		if err != nil {
			return nil, err
		}
		item, ok, err := s.edge(node, node.Offset+i, em)
		if err != nil {
			return nil, err
		}
		if ok {
			shaped = append(shaped, item)
		}
	}

	out := make(map[string]any, len(node.Connection.Fields))
	for _, f := range node.Connection.Fields {
		switch f.Kind {
		case plan.ConnTotalCount:
			out[f.Key] = total
		case plan.ConnTypename:
			out[f.Key] = f.Typename
		case plan.ConnPageInfo:
			out[f.Key] = pageInfo(f, cursor.Page(node.Offset, len(edges), total))
		case plan.ConnEdges:
			list := make([]any, len(shaped))
			for i, item := range shaped {
				list[i] = edgeFields(f, item)
			}
			out[f.Key] = list
		}
	}
	return out, nil
}

// edge shapes the node and properties of one edge; edgeFields later picks
// the selected parts under their response keys.
func (s *Shaper) edge(node *plan.Node, offset int, m map[string]any) (map[string]any, bool, error) {
	nm, err := asMap(node.Key, m["node"])
	if err != nil {
		return nil, false, err
	}
	branch, ok := s.branch(node, nm)
	if !ok {
		return nil, false, nil
	}
	item, _, err := s.item(node, nm)
	if err != nil {
		return nil, false, err
	}
	out := map[string]any{"cursor": cursor.Encode(offset), "node": item}
	if len(branch.Edge) > 0 || node.Properties != nil {
		props := map[string]any{}
		if pm, ok := m["properties"].(map[string]any); ok {
			for _, proj := range branch.Edge {
				switch proj.Kind {
				case plan.ProjectTypename:
					props[proj.Key] = node.Properties.Name
				case plan.ProjectAttribute:
					props[proj.Key] = s.serialize(proj.Attribute.Type.Name, pm[proj.Key])
				}
			}
		}
		out["properties"] = props
	}
	return out, true, nil
}

func edgeFields(f *plan.ConnectionField, item map[string]any) map[string]any {
	out := make(map[string]any, len(f.Children))
	for _, child := range f.Children {
		switch child.Kind {
		case plan.EdgeCursor:
			out[child.Key] = item["cursor"]
		case plan.EdgeNode:
			out[child.Key] = item["node"]
		case plan.EdgeProperties:
			out[child.Key] = item["properties"]
		case plan.ConnTypename:
			out[child.Key] = child.Typename
		}
	}
	return out
}

func pageInfo(f *plan.ConnectionField, page cursor.PageInfo) map[string]any {
	out := make(map[string]any, len(f.Children))
	for _, child := range f.Children {
		switch child.Kind {
		case plan.PageHasNext:
			out[child.Key] = page.HasNextPage
		case plan.PageHasPrevious:
			out[child.Key] = page.HasPreviousPage
		case plan.PageStartCursor:
			out[child.Key] = nullable(page.StartCursor)
		case plan.PageEndCursor:
			out[child.Key] = nullable(page.EndCursor)
		case plan.ConnTypename:
			out[child.Key] = child.Typename
		}
	}
	return out
}

// aggregate shapes an aggregate map. A missing row counts as zero matches.
func (s *Shaper) aggregate(node *plan.Node, raw any) (map[string]any, error) {
	m := map[string]any{}
	if raw != nil {
		var err error
		if m, err = asMap(node.Key, raw); err != nil {
			return nil, err
		}
	}
	return s.aggregateFields(node.Aggregate, m), nil
}

func (s *Shaper) aggregateFields(fields []*plan.AggregateField, m map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		switch f.Kind {
		case plan.AggregateCount:
			out[f.Key] = toInt(m[f.Key])
		case plan.AggregateTypename:
			out[f.Key] = f.Typename
		case plan.AggregateGroup:
			group, _ := m[f.Key].(map[string]any)
			out[f.Key] = s.aggregateFields(f.Children, group)
		case plan.AggregateAttribute:
			values, _ := m[f.Key].(map[string]any)
			fns := make(map[string]any, len(f.Functions))
			for _, fn := range f.Functions {
				switch fn.Name {
				case "__typename":
					fns[fn.Key] = f.Typename
				case plan.FuncAverage:
					fns[fn.Key] = s.serialize("Float", values[fn.Key])
				default:
					fns[fn.Key] = s.serialize(f.Attribute.Type.Name, values[fn.Key])
				}
			}
			out[f.Key] = fns
		}
	}
	return out
}

// serialize converts a driver value through the scalar codec for typeName.
// Nodes returned by computed fields are flattened to their properties.
func (s *Shaper) serialize(typeName string, value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case dbtype.Node:
		return v.Props
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.serialize(typeName, item)
		}
		return out
	}
	return s.scalars.Serialize(typeName, value)
}

func asMap(key string, raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case nil:
		return map[string]any{}, nil
	}
	return nil, fmt.Errorf("reshape %s: expected a map, got %T", key, raw)
}

func stringList(raw any) []string {
	list, _ := raw.([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toInt(raw any) int {
	switch v := raw.(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
