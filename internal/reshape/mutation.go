package reshape

import (
	"neo4j-graphql/internal/mutation"
	"neo4j-graphql/internal/plan"
	"neo4j-graphql/internal/selection"
)

// Summary is what the database reported for a write statement.
type Summary struct {
	Counters mutation.Counters
	Bookmark string
}

// Mutation shapes a mutation response. Creates and updates return the
// written nodes and an info object; deletes return the info fields
// directly.
func (s *Shaper) Mutation(pl *mutation.Plan, field *selection.Field, raw any, summary Summary) (map[string]any, error) {
	if pl.Kind == mutation.KindDelete {
		return info(field.Selections, summary, "DeleteInfo"), nil
	}
	m, err := asMap(field.Key(), raw)
	if err != nil {
		return nil, err
	}
	verb, infoType := "Create", "CreateInfo"
	if pl.Kind == mutation.KindUpdate {
		verb, infoType = "Update", "UpdateInfo"
	}

	out := make(map[string]any, len(field.Selections))
	for _, sel := range selection.Merge(field.Selections) {
		switch sel.Name {
		case "__typename":
			out[sel.Key()] = verb + pl.Entity.Root.Plural + "MutationResponse"
		case mutation.FieldInfo:
			out[sel.Key()] = info(sel.Selections, summary, infoType)
		default:
			node := projection(pl, sel.Key())
			if node == nil {
				continue
			}
			list, _ := m[sel.Key()].([]any)
			items, err := s.items(node, list)
			if err != nil {
				return nil, err
			}
			out[sel.Key()] = items
		}
	}
	return out, nil
}

func projection(pl *mutation.Plan, key string) *plan.Node {
	for _, node := range pl.Projections {
		if node.Key == key {
			return node
		}
	}
	return nil
}

func info(selections []*selection.Field, summary Summary, typename string) map[string]any {
	out := make(map[string]any, len(selections))
	for _, sel := range selection.Merge(selections) {
		switch sel.Name {
		case mutation.FieldNodesCreated:
			out[sel.Key()] = summary.Counters.NodesCreated
		case mutation.FieldNodesDeleted:
			out[sel.Key()] = summary.Counters.NodesDeleted
		case mutation.FieldRelationshipsCreated:
			out[sel.Key()] = summary.Counters.RelationshipsCreated
		case mutation.FieldRelationshipsDeleted:
			out[sel.Key()] = summary.Counters.RelationshipsDeleted
		case mutation.FieldBookmark:
			out[sel.Key()] = nullable(summary.Bookmark)
		case "__typename":
			out[sel.Key()] = typename
		}
	}
	return out
}
