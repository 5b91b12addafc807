package filter

import (
	"math"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"neo4j-graphql/internal/auth"
	"neo4j-graphql/internal/scalars"
	"neo4j-graphql/internal/schema"
)

// Subject is a node as seen by Evaluate.
type Subject interface {
	Labels() []string
	Property(name string) (any, bool)
	Related(rel *schema.Relationship) []Related
}

// Related is a neighbour reached through a relationship, with the
// relationship's properties.
type Related struct {
	Node Subject
	Edge map[string]any
}

type env struct {
	node    Subject
	edge    map[string]any
	claims  map[string]any
	related []Related
}

// Evaluate tests p against node in memory with database comparison
// semantics: comparisons against missing values are false, and a nil
// predicate matches. node may be nil for claims-only predicates.
func Evaluate(p Predicate, node Subject, claims map[string]any) bool {
	return evaluate(p, env{node: node, claims: claims})
}

func evaluate(p Predicate, e env) bool {
	switch v := p.(type) {
	case nil:
		return true
	case Const:
		return v.Value
	case *And:
		for _, child := range v.Children {
			if !evaluate(child, e) {
				return false
			}
		}
		return true
	case *Or:
		for _, child := range v.Children {
			if evaluate(child, e) {
				return true
			}
		}
		return false
	case *Not:
		return !evaluate(v.Child, e)
	case *Comparison:
		return compare(e.read(v.Scope, v.Property), v.Operator, v.Value)
	case *Quantifier:
		return evaluateQuantifier(v, e)
	case *Aggregate:
		if e.node == nil {
			return false
		}
		related := matchingLabels(e.node.Related(v.Relationship), v.Target)
		return evaluate(v.Where, env{node: e.node, claims: e.claims, related: related})
	case *AggregateComparison:
		return compare(aggregateValue(v, e.related), v.Operator, v.Value)
	}
	return false
}

func (e env) read(scope Scope, property string) any {
	switch scope {
	case ScopeEdge:
		return e.edge[property]
	case ScopeJWT:
		return auth.Lookup(e.claims, property)
	}
	if e.node == nil {
		return nil
	}
	v, _ := e.node.Property(property)
	return v
}

func evaluateQuantifier(q *Quantifier, e env) bool {
	if e.node == nil {
		return false
	}
	var candidates, matches int
	for _, r := range e.node.Related(q.Relationship) {
		for _, target := range q.Targets {
			if !hasLabels(r.Node, target.Entity) {
				continue
			}
			candidates++
			if evaluate(target.Where, env{node: r.Node, edge: r.Edge, claims: e.claims}) {
				matches++
			}
			break
		}
	}
	switch q.Kind {
	case QuantSome:
		return matches > 0
	case QuantNone:
		return matches == 0
	case QuantAll:
		return candidates > 0 && matches == candidates
	case QuantSingle:
		return matches == 1
	}
	return false
}

func matchingLabels(related []Related, target *schema.Entity) []Related {
	out := make([]Related, 0, len(related))
	for _, r := range related {
		if hasLabels(r.Node, target) {
			out = append(out, r)
		}
	}
	return out
}

func hasLabels(node Subject, entity *schema.Entity) bool {
	have := node.Labels()
	for _, want := range entity.Labels {
		found := false
		for _, l := range have {
			if l == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func aggregateValue(a *AggregateComparison, related []Related) any {
	if a.Function == AggCount {
		return int64(len(related))
	}
	var values []any
	for _, r := range related {
		var v any
		if a.Scope == ScopeEdge {
			v = r.Edge[a.Property]
		} else {
			v, _ = r.Node.Property(a.Property)
		}
		if v != nil {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil
	}
	switch a.Function {
	case AggShortestLength, AggLongestLength, AggAverageLength:
		lengths := make([]any, 0, len(values))
		for _, v := range values {
			if s, ok := v.(string); ok {
				lengths = append(lengths, int64(len([]rune(s))))
			}
		}
		switch a.Function {
		case AggShortestLength:
			return extreme(lengths, -1)
		case AggLongestLength:
			return extreme(lengths, 1)
		}
		return average(lengths)
	case AggAverage:
		return average(values)
	case AggSum:
		var sum float64
		for _, v := range values {
			n, _ := number(v)
			sum += n
		}
		return sum
	case AggMin:
		return extreme(values, -1)
	case AggMax:
		return extreme(values, 1)
	}
	return nil
}

func average(values []any) any {
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		n, _ := number(v)
		sum += n
	}
	return sum / float64(len(values))
}

func extreme(values []any, sign int) any {
	var best any
	for _, v := range values {
		if best == nil {
			best = v
			continue
		}
		if c, ok := order(v, best); ok && c*sign > 0 {
			best = v
		}
	}
	return best
}

func compare(actual any, op Operator, operand any) bool {
	if op == OpEqual && operand == nil {
		return actual == nil
	}
	if actual == nil || operand == nil {
		return false
	}
	switch op {
	case OpEqual:
		return equal(actual, operand)
	case OpIn:
		list, _ := operand.([]any)
		for _, item := range list {
			if equal(actual, item) {
				return true
			}
		}
		return false
	case OpIncludes:
		list, ok := toList(actual)
		if !ok {
			return false
		}
		for _, item := range list {
			if equal(item, operand) {
				return true
			}
		}
		return false
	case OpContains, OpStartsWith, OpEndsWith, OpMatches:
		s, okA := actual.(string)
		sub, okB := operand.(string)
		if !okA || !okB {
			return false
		}
		switch op {
		case OpContains:
			return strings.Contains(s, sub)
		case OpStartsWith:
			return strings.HasPrefix(s, sub)
		case OpEndsWith:
			return strings.HasSuffix(s, sub)
		}
		re, err := regexp.Compile("^(?:" + sub + ")$")
		return err == nil && re.MatchString(s)
	}
	if pd, ok := operand.(PointDistance); ok {
		d, ok := distance(actual, pd.Point)
		if !ok {
			return false
		}
		return ordered(compareFloat(d, pd.Distance), op)
	}
	c, ok := order(actual, operand)
	return ok && ordered(c, op)
}

func ordered(c int, op Operator) bool {
	switch op {
	case OpLessThan:
		return c < 0
	case OpLessThanEqual:
		return c <= 0
	case OpGreaterThan:
		return c > 0
	case OpGreaterThanEqual:
		return c >= 0
	case OpDistance, OpEqual:
		return c == 0
	}
	return false
}

func equal(a, b any) bool {
	if c, ok := order(a, b); ok {
		return c == 0
	}
	la, okA := toList(a)
	lb, okB := toList(b)
	if okA && okB {
		if len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !equal(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// order compares numbers, strings and temporal values.
func order(a, b any) (int, bool) {
	if na, ok := number(a); ok {
		if nb, ok := number(b); ok {
			return compareFloat(na, nb), true
		}
		return 0, false
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb), true
		}
		return 0, false
	}
	if ta, ok := instant(a); ok {
		if tb, ok := instant(b); ok {
			return ta.Compare(tb), true
		}
	}
	return 0, false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func instant(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case dbtype.Date:
		return time.Time(t), true
	case dbtype.LocalDateTime:
		return time.Time(t), true
	case dbtype.LocalTime:
		return time.Time(t), true
	case dbtype.Time:
		return time.Time(t), true
	}
	return time.Time{}, false
}

func toList(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

const earthRadiusMeters = 6378140.0

// distance mirrors point.distance: euclidean for cartesian points and
// haversine for geographic ones.
func distance(a, b any) (float64, bool) {
	pa, okA := a.(dbtype.Point2D)
	pb, okB := b.(dbtype.Point2D)
	if !okA || !okB || pa.SpatialRefId != pb.SpatialRefId {
		return 0, false
	}
	if pa.SpatialRefId == scalars.SRIDCartesian {
		return math.Hypot(pa.X-pb.X, pa.Y-pb.Y), true
	}
	lat1, lat2 := pa.Y*math.Pi/180, pb.Y*math.Pi/180
	dLat := lat2 - lat1
	dLon := (pb.X - pa.X) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h)), true
}
