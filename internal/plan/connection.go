package plan

import (
	"neo4j-graphql/internal/filter"
	"neo4j-graphql/internal/schema"
	"neo4j-graphql/internal/selection"
	"neo4j-graphql/internal/validation"
)

// connection compiles a root connection or a `<rel>Connection` field.
func (c *Compiler) connection(entity *schema.Entity, rel *schema.Relationship, field *selection.Field, path string) (*Node, error) {
	node := &Node{
		Kind:         KindConnection,
		Key:          field.Key(),
		Entity:       entity,
		Relationship: rel,
		Properties:   c.properties(rel),
		Var:          c.names.Next("var"),
		NonNull:      true,
	}

	where, err := field.MapArg("where")
	if err != nil {
		return nil, validation.Errorf(path, "%v", err)
	}
	wherePath := validation.Join(path, "where")
	var targets []filter.Target
	if rel != nil {
		targets, err = c.filters.Connection(rel, where, wherePath)
	} else {
		targets, err = c.filters.Branches(entity, where, wherePath)
	}
	if err != nil {
		return nil, err
	}

	conn, nodeSels, edgeSels, err := c.connectionFields(node, field, path)
	if err != nil {
		return nil, err
	}
	node.Connection = conn
	nodePath := validation.Join(validation.Join(path, "edges"), "node")
	if err := c.branches(node, targets, nodeSels, nodePath); err != nil {
		return nil, err
	}
	if len(edgeSels) > 0 {
		edgePath := validation.Join(validation.Join(path, "edges"), "properties")
		for _, branch := range node.Branches {
			if branch.Edge, err = c.edgeProjection(node.Properties, edgeSels, edgePath); err != nil {
				return nil, err
			}
		}
	}
	if err := c.paginateConnection(node, field, path); err != nil {
		return nil, err
	}
	return node, nil
}

// connectionFields sorts a connection's selections into connection fields,
// the selections made on edge nodes and those made on edge properties.
func (c *Compiler) connectionFields(node *Node, field *selection.Field, path string) (*Connection, []*selection.Field, []*selection.Field, error) {
	var (
		conn     = &Connection{}
		nodeSels []*selection.Field
		edgeSels []*selection.Field
	)
	connType, edgeType := connectionTypeNames(node)
	for _, sel := range selection.Merge(field.Selections) {
		selPath := validation.Join(path, sel.Key())
		switch sel.Name {
		case "totalCount":
			conn.Fields = append(conn.Fields, &ConnectionField{Key: sel.Key(), Kind: ConnTotalCount})
		case typenameField:
			conn.Fields = append(conn.Fields, &ConnectionField{Key: sel.Key(), Kind: ConnTypename, Typename: connType})
		case "pageInfo":
			page := &ConnectionField{Key: sel.Key(), Kind: ConnPageInfo}
			for _, sub := range selection.Merge(sel.Selections) {
				kind, ok := pageInfoFields[sub.Name]
				if !ok {
					return nil, nil, nil, validation.Errorf(validation.Join(selPath, sub.Key()), "cannot query field %s on type PageInfo", sub.Name)
				}
				page.Children = append(page.Children, &ConnectionField{Key: sub.Key(), Kind: kind, Typename: "PageInfo"})
			}
			conn.Fields = append(conn.Fields, page)
		case "edges":
			edges := &ConnectionField{Key: sel.Key(), Kind: ConnEdges}
			for _, sub := range selection.Merge(sel.Selections) {
				subPath := validation.Join(selPath, sub.Key())
				switch sub.Name {
				case "cursor":
					edges.Children = append(edges.Children, &ConnectionField{Key: sub.Key(), Kind: EdgeCursor})
				case typenameField:
					edges.Children = append(edges.Children, &ConnectionField{Key: sub.Key(), Kind: ConnTypename, Typename: edgeType})
				case "node":
					edges.Children = append(edges.Children, &ConnectionField{Key: sub.Key(), Kind: EdgeNode})
					nodeSels = append(nodeSels, sub.Selections...)
				case "properties":
					if node.Properties == nil {
						return nil, nil, nil, validation.Errorf(subPath, "relationship has no properties")
					}
					edges.Children = append(edges.Children, &ConnectionField{Key: sub.Key(), Kind: EdgeProperties, Typename: node.Properties.Name})
					edgeSels = append(edgeSels, sub.Selections...)
				default:
					return nil, nil, nil, validation.Errorf(subPath, "cannot query field %s on type %s", sub.Name, edgeType)
				}
			}
			conn.Fields = append(conn.Fields, edges)
		default:
			return nil, nil, nil, validation.Errorf(selPath, "cannot query field %s on type %s", sel.Name, connType)
		}
	}
	return conn, nodeSels, edgeSels, nil
}

var pageInfoFields = map[string]ConnectionFieldKind{
	"hasNextPage":     PageHasNext,
	"hasPreviousPage": PageHasPrevious,
	"startCursor":     PageStartCursor,
	"endCursor":       PageEndCursor,
	typenameField:     ConnTypename,
}

// edgeProjection resolves selections on relationship properties. Fragments
// on other properties types are skipped.
func (c *Compiler) edgeProjection(props *schema.RelationshipProperties, selections []*selection.Field, path string) ([]*Projection, error) {
	var out []*Projection
	for _, sel := range selection.Merge(selections) {
		selPath := validation.Join(path, sel.Key())
		if sel.TypeCondition != "" {
			if _, ok := c.model.Properties(sel.TypeCondition); !ok {
				return nil, validation.Errorf(selPath, "unknown type %s", sel.TypeCondition)
			}
			if sel.TypeCondition != props.Name {
				continue
			}
		}
		if sel.Name == typenameField {
			out = append(out, &Projection{Key: sel.Key(), Kind: ProjectTypename})
			continue
		}
		attr, ok := props.Attribute(sel.Name)
		if !ok {
			return nil, validation.Errorf(selPath, "cannot query field %s on type %s", sel.Name, props.Name)
		}
		out = append(out, &Projection{Key: sel.Key(), Kind: ProjectAttribute, Attribute: attr})
	}
	return out, nil
}

func connectionTypeNames(node *Node) (string, string) {
	if node.Relationship == nil {
		return node.Entity.Root.Plural + "Connection", node.Entity.Name + "Edge"
	}
	prefix := typeName(node.Relationship.Owner, node.Relationship.Name)
	return prefix + "Connection", prefix + "Relationship"
}
