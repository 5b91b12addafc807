package plan

import (
	"neo4j-graphql/internal/filter"
	"neo4j-graphql/internal/schema"
	"neo4j-graphql/internal/selection"
	"neo4j-graphql/internal/validation"
)

// aggregate compiles a root `<plural>Aggregate` or a `<rel>Aggregate` field.
// Aggregates over interfaces and unions are not supported.
func (c *Compiler) aggregate(entity *schema.Entity, rel *schema.Relationship, field *selection.Field, path string) (*Node, error) {
	if entity.IsAbstract() {
		return nil, validation.Errorf(path, "aggregations over abstract type %s are not supported", entity.Name)
	}
	node := &Node{
		Kind:         KindAggregate,
		Key:          field.Key(),
		Entity:       entity,
		Relationship: rel,
		Properties:   c.properties(rel),
		Var:          c.names.Next("var"),
	}
	where, err := field.MapArg("where")
	if err != nil {
		return nil, validation.Errorf(path, "%v", err)
	}
	targets, err := c.filters.Branches(entity, where, validation.Join(path, "where"))
	if err != nil {
		return nil, err
	}
	if err := c.branches(node, targets, nil, path); err != nil {
		return nil, err
	}

	typename := entity.Name + "AggregateSelection"
	if rel != nil {
		typename = typeName(rel.Owner, entity.Name, rel.Name) + "AggregationSelection"
	}
	for _, sel := range selection.Merge(field.Selections) {
		selPath := validation.Join(path, sel.Key())
		switch {
		case sel.Name == "count":
			node.Aggregate = append(node.Aggregate, &AggregateField{Key: sel.Key(), Kind: AggregateCount})
		case sel.Name == typenameField:
			node.Aggregate = append(node.Aggregate, &AggregateField{Key: sel.Key(), Kind: AggregateTypename, Typename: typename})
		case rel != nil && sel.Name == "node":
			group, err := c.aggregateGroup(sel, filter.ScopeNode, node.Branches[0], entity, nil,
				typeName(rel.Owner, entity.Name, rel.Name)+"NodeAggregateSelection", selPath)
			if err != nil {
				return nil, err
			}
			node.Aggregate = append(node.Aggregate, group)
		case rel != nil && sel.Name == "edge":
			if node.Properties == nil {
				return nil, validation.Errorf(selPath, "relationship has no properties")
			}
			group, err := c.aggregateGroup(sel, filter.ScopeEdge, node.Branches[0], nil, node.Properties,
				typeName(rel.Owner, entity.Name, rel.Name)+"EdgeAggregateSelection", selPath)
			if err != nil {
				return nil, err
			}
			node.Aggregate = append(node.Aggregate, group)
		case rel == nil:
			attr, ok := entity.Attribute(sel.Name)
			if !ok {
				return nil, validation.Errorf(selPath, "cannot query field %s on type %s", sel.Name, typename)
			}
			af, err := c.aggregateAttribute(node.Branches[0], filter.ScopeNode, attr, sel, selPath)
			if err != nil {
				return nil, err
			}
			node.Aggregate = append(node.Aggregate, af)
		default:
			return nil, validation.Errorf(selPath, "cannot query field %s on type %s", sel.Name, typename)
		}
	}
	return node, nil
}

func (c *Compiler) aggregateGroup(sel *selection.Field, scope filter.Scope, branch *Branch, entity *schema.Entity, props *schema.RelationshipProperties, typename, path string) (*AggregateField, error) {
	group := &AggregateField{Key: sel.Key(), Kind: AggregateGroup, Scope: scope, Typename: typename}
	for _, sub := range selection.Merge(sel.Selections) {
		subPath := validation.Join(path, sub.Key())
		if sub.Name == typenameField {
			group.Children = append(group.Children, &AggregateField{Key: sub.Key(), Kind: AggregateTypename, Typename: typename})
			continue
		}
		var (
			attr *schema.Attribute
			ok   bool
		)
		if scope == filter.ScopeEdge {
			attr, ok = props.Attribute(sub.Name)
		} else {
			attr, ok = entity.Attribute(sub.Name)
		}
		if !ok {
			return nil, validation.Errorf(subPath, "cannot aggregate unknown field %s", sub.Name)
		}
		af, err := c.aggregateAttribute(branch, scope, attr, sub, subPath)
		if err != nil {
			return nil, err
		}
		group.Children = append(group.Children, af)
	}
	return group, nil
}

// aggregateAttribute validates the functions selected for one attribute.
func (c *Compiler) aggregateAttribute(branch *Branch, scope filter.Scope, attr *schema.Attribute, sel *selection.Field, path string) (*AggregateField, error) {
	if attr.IsList() {
		return nil, validation.Errorf(path, "list field %s cannot be aggregated", attr.Name)
	}
	if scope == filter.ScopeNode {
		guard, err := c.authz.Attribute(branch.Entity, attr, schema.OpRead, schema.WhenBefore)
		if err != nil {
			return nil, err
		}
		if guard != nil {
			branch.Guards = append(branch.Guards, guard)
		}
	}
	allowed := aggregateFunctions(attr.Semantic)
	af := &AggregateField{
		Key:       sel.Key(),
		Kind:      AggregateAttribute,
		Scope:     scope,
		Attribute: attr,
		Typename:  aggregateTypename(attr),
	}
	for _, fn := range selection.Merge(sel.Selections) {
		if fn.Name != typenameField && !allowed[fn.Name] {
			return nil, validation.Errorf(validation.Join(path, fn.Key()), "cannot query field %s on type %s", fn.Name, af.Typename)
		}
		af.Functions = append(af.Functions, AggregateFunction{Key: fn.Key(), Name: fn.Name})
	}
	return af, nil
}

func aggregateFunctions(s schema.Semantic) map[string]bool {
	switch {
	case s.IsNumeric():
		return map[string]bool{FuncMin: true, FuncMax: true, FuncAverage: true, FuncSum: true}
	case s.IsTemporal():
		return map[string]bool{FuncMin: true, FuncMax: true}
	case s.IsTextual():
		return map[string]bool{FuncShortest: true, FuncLongest: true}
	}
	return map[string]bool{}
}

func aggregateTypename(attr *schema.Attribute) string {
	name := attr.Type.Name
	if !attr.Type.NonNull {
		return name + "AggregateSelectionNullable"
	}
	return name + "AggregateSelectionNonNullable"
}
