package filter

import (
	"strings"

	"neo4j-graphql/internal/naming"
	"neo4j-graphql/internal/schema"
)

type keyKind int

const (
	keyAttribute keyKind = iota
	keyRelationship
	keyConnection
	keyAggregate
	keyTypename
)

const typenameIn = "typename_IN"

// parsedKey is a where key split into field and operator.
type parsedKey struct {
	kind       keyKind
	field      string
	op         Operator
	quant      QuantifierKind
	negate     bool
	deprecated bool
}

type attributeSuffix struct {
	suffix string
	op     Operator
	negate bool
}

// Longest suffixes first so _NOT_IN wins over _IN.
var attributeSuffixes = []attributeSuffix{
	{"_NOT_STARTS_WITH", OpStartsWith, true},
	{"_NOT_ENDS_WITH", OpEndsWith, true},
	{"_NOT_CONTAINS", OpContains, true},
	{"_NOT_INCLUDES", OpIncludes, true},
	{"_STARTS_WITH", OpStartsWith, false},
	{"_ENDS_WITH", OpEndsWith, false},
	{"_CONTAINS", OpContains, false},
	{"_INCLUDES", OpIncludes, false},
	{"_DISTANCE", OpDistance, false},
	{"_MATCHES", OpMatches, false},
	{"_NOT_IN", OpIn, true},
	{"_GTE", OpGreaterThanEqual, false},
	{"_LTE", OpLessThanEqual, false},
	{"_NOT", OpEqual, true},
	{"_GT", OpGreaterThan, false},
	{"_LT", OpLessThan, false},
	{"_IN", OpIn, false},
}

var quantifierSuffixes = []struct {
	suffix string
	quant  QuantifierKind
}{
	{"_SINGLE", QuantSingle},
	{"_SOME", QuantSome},
	{"_NONE", QuantNone},
	{"_ALL", QuantAll},
	{"_NOT", QuantNone},
}

type attributeLookup interface {
	Attribute(name string) (*schema.Attribute, bool)
}

// parseKey resolves a where key against the fields of entity (nil for
// relationship property types, which only carry attributes).
func parseKey(attrs attributeLookup, entity *schema.Entity, key string) (parsedKey, bool) {
	if key == typenameIn && entity != nil {
		return parsedKey{kind: keyTypename, field: key, op: OpIn}, true
	}
	if _, ok := attrs.Attribute(key); ok {
		return parsedKey{kind: keyAttribute, field: key, op: OpEqual}, true
	}
	if entity != nil {
		if pk, ok := parseRelationshipKey(entity, key); ok {
			return pk, true
		}
	}
	for _, s := range attributeSuffixes {
		base, ok := strings.CutSuffix(key, s.suffix)
		if !ok {
			continue
		}
		if _, exists := attrs.Attribute(base); exists {
			return parsedKey{kind: keyAttribute, field: base, op: s.op, negate: s.negate, deprecated: s.negate}, true
		}
	}
	return parsedKey{}, false
}

func parseRelationshipKey(entity *schema.Entity, key string) (parsedKey, bool) {
	if rel, ok := entity.Relationship(key); ok {
		return parsedKey{kind: keyRelationship, field: key, quant: QuantSome, deprecated: rel.Many}, true
	}
	if base, ok := naming.TrimAggregate(key); ok {
		if _, exists := entity.Relationship(base); exists {
			return parsedKey{kind: keyAggregate, field: base}, true
		}
	}
	if base, ok := naming.TrimConnection(key); ok {
		if _, exists := entity.Relationship(base); exists {
			return parsedKey{kind: keyConnection, field: base, quant: QuantSome, deprecated: true}, true
		}
	}
	for _, s := range quantifierSuffixes {
		trimmed, ok := strings.CutSuffix(key, s.suffix)
		if !ok {
			continue
		}
		deprecated := s.suffix == "_NOT"
		if _, exists := entity.Relationship(trimmed); exists {
			return parsedKey{kind: keyRelationship, field: trimmed, quant: s.quant, deprecated: deprecated}, true
		}
		if base, isConn := naming.TrimConnection(trimmed); isConn {
			if _, exists := entity.Relationship(base); exists {
				return parsedKey{kind: keyConnection, field: base, quant: s.quant, deprecated: deprecated}, true
			}
		}
	}
	return parsedKey{}, false
}

// supports reports whether op applies to an attribute's semantic type.
func supports(attr *schema.Attribute, op Operator) bool {
	s := attr.Semantic
	if attr.IsList() {
		return op == OpEqual || op == OpIncludes
	}
	switch op {
	case OpEqual:
		return true
	case OpIn:
		return !s.IsSpatial()
	case OpLessThan, OpLessThanEqual, OpGreaterThan, OpGreaterThanEqual:
		return s.IsNumeric() || s.IsTemporal() || s.IsSpatial() || s == schema.SemanticString
	case OpContains, OpStartsWith, OpEndsWith, OpMatches:
		return s.IsTextual()
	case OpDistance:
		return s.IsSpatial()
	}
	return false
}

var aggregateOperators = map[string]Operator{
	"EQUAL": OpEqual,
	"GT":    OpGreaterThan,
	"GTE":   OpGreaterThanEqual,
	"LT":    OpLessThan,
	"LTE":   OpLessThanEqual,
}

var aggregateFunctions = []AggregateFunction{
	AggShortestLength, AggLongestLength, AggAverageLength, AggAverage, AggSum, AggMin, AggMax,
}

// parseAggregateKey splits `<field>_<FUNCTION>_<OP>`.
func parseAggregateKey(attrs attributeLookup, key string) (*schema.Attribute, AggregateFunction, Operator, bool) {
	idx := strings.LastIndex(key, "_")
	if idx <= 0 {
		return nil, "", "", false
	}
	op, ok := aggregateOperators[key[idx+1:]]
	if !ok {
		return nil, "", "", false
	}
	rest := key[:idx]
	for _, fn := range aggregateFunctions {
		base, found := strings.CutSuffix(rest, "_"+string(fn))
		if !found {
			continue
		}
		if attr, exists := attrs.Attribute(base); exists {
			return attr, fn, op, true
		}
	}
	return nil, "", "", false
}

func aggregateSupports(attr *schema.Attribute, fn AggregateFunction) bool {
	if attr.IsList() {
		return false
	}
	s := attr.Semantic
	switch fn {
	case AggShortestLength, AggLongestLength, AggAverageLength:
		return s.IsTextual()
	case AggAverage, AggSum:
		return s.IsNumeric()
	case AggMin, AggMax:
		return s.IsNumeric() || s.IsTemporal()
	}
	return false
}
