package filter

import (
	"neo4j-graphql/internal/schema"
	"neo4j-graphql/internal/validation"
)

const (
	connectionNode = "node"
	connectionEdge = "edge"
)

// relationship compiles `rel`, `rel_SOME` and the other quantifier forms.
func (c *Compiler) relationship(rel *schema.Relationship, pk parsedKey, value any, path string) (Predicate, error) {
	if err := c.checkQuantifier(rel, pk, path); err != nil {
		return nil, err
	}
	target := c.target(rel)
	if value == nil {
		// `rel: null` asks for nodes without any related node.
		kind := QuantNone
		if pk.quant == QuantNone {
			kind = QuantSome
		}
		targets, err := c.Branches(target, nil, path)
		if err != nil {
			return nil, err
		}
		return &Quantifier{Kind: kind, Relationship: rel, Targets: targets}, nil
	}
	where, err := asMap(value, path)
	if err != nil {
		return nil, err
	}
	targets, err := c.Branches(target, where, path)
	if err != nil {
		return nil, err
	}
	return &Quantifier{Kind: pk.quant, Relationship: rel, Targets: targets}, nil
}

// connection compiles `relConnection_SOME: {node, edge}` forms.
func (c *Compiler) connection(rel *schema.Relationship, pk parsedKey, value any, path string) (Predicate, error) {
	if err := c.checkQuantifier(rel, pk, path); err != nil {
		return nil, err
	}
	where, err := asMap(value, path)
	if err != nil {
		return nil, err
	}
	targets, err := c.Connection(rel, where, path)
	if err != nil {
		return nil, err
	}
	return &Quantifier{Kind: pk.quant, Relationship: rel, Targets: targets}, nil
}

// Connection compiles a `{node, edge}` connection where for every concrete
// target of rel. Union connection wheres are keyed by member name.
func (c *Compiler) Connection(rel *schema.Relationship, where map[string]any, path string) ([]Target, error) {
	var props *schema.RelationshipProperties
	if rel.Properties != "" {
		props, _ = c.model.Properties(rel.Properties)
	}
	return c.branches(c.target(rel), where, path, func(concrete *schema.Entity, m map[string]any, p string) (Predicate, error) {
		return c.connectionMap(concrete, props, m, p)
	}, false)
}

func (c *Compiler) connectionMap(node *schema.Entity, props *schema.RelationshipProperties, where map[string]any, path string) (Predicate, error) {
	return c.objectMap(where, path, func(key string, value any, keyPath string) (Predicate, error) {
		switch key {
		case connectionNode, connectionNode + "_NOT":
			m, err := asMap(value, keyPath)
			if err != nil {
				return nil, err
			}
			pred, err := c.nodeMap(node, m, keyPath)
			if err != nil {
				return nil, err
			}
			if key != connectionNode {
				c.deprecated(keyPath, "%s is deprecated; use NOT: { node: ... } instead", key)
				return &Not{Child: pred}, nil
			}
			return pred, nil
		case connectionEdge, connectionEdge + "_NOT":
			if props == nil {
				return nil, validation.Errorf(keyPath, "relationship has no properties")
			}
			m, err := asMap(value, keyPath)
			if err != nil {
				return nil, err
			}
			pred, err := c.edgeMap(props, m, keyPath)
			if err != nil {
				return nil, err
			}
			if key != connectionEdge {
				c.deprecated(keyPath, "%s is deprecated; use NOT: { edge: ... } instead", key)
				return &Not{Child: pred}, nil
			}
			return pred, nil
		}
		return nil, validation.Errorf(keyPath, "unknown connection filter field %s", key)
	}, func(m map[string]any, p string) (Predicate, error) {
		return c.connectionMap(node, props, m, p)
	})
}

func (c *Compiler) checkQuantifier(rel *schema.Relationship, pk parsedKey, path string) error {
	if !rel.Many && pk.quant != QuantSome && pk.quant != QuantNone {
		return validation.Errorf(path, "%s is not a list relationship", rel.Name)
	}
	if pk.deprecated {
		replacement := rel.Name + "_SOME"
		if pk.quant == QuantNone {
			replacement = rel.Name + "_NONE"
		}
		if pk.kind == keyConnection {
			replacement = rel.Name + "Connection_" + string(pk.quant)
		}
		c.deprecated(path, "%s is deprecated; use %s instead", lastSegment(path), replacement)
	}
	return nil
}

func (c *Compiler) target(rel *schema.Relationship) *schema.Entity {
	target, _ := c.model.Entity(rel.Target)
	return target
}

// aggregate compiles `relAggregate: {count_GT, node: {...}, edge: {...}}`.
func (c *Compiler) aggregate(rel *schema.Relationship, value any, path string) (Predicate, error) {
	target := c.target(rel)
	if target.IsAbstract() {
		return nil, validation.Errorf(path, "aggregation over abstract type %s is not supported", target.Name)
	}
	where, err := asMap(value, path)
	if err != nil {
		return nil, err
	}
	var props *schema.RelationshipProperties
	if rel.Properties != "" {
		props, _ = c.model.Properties(rel.Properties)
	}
	pred, err := c.aggregateMap(target, props, where, path)
	if err != nil {
		return nil, err
	}
	return &Aggregate{Relationship: rel, Target: target, Where: pred}, nil
}

var countOperators = map[string]Operator{
	"count":     OpEqual,
	"count_EQ":  OpEqual,
	"count_LT":  OpLessThan,
	"count_LTE": OpLessThanEqual,
	"count_GT":  OpGreaterThan,
	"count_GTE": OpGreaterThanEqual,
}

func (c *Compiler) aggregateMap(target *schema.Entity, props *schema.RelationshipProperties, where map[string]any, path string) (Predicate, error) {
	return c.objectMap(where, path, func(key string, value any, keyPath string) (Predicate, error) {
		if op, ok := countOperators[key]; ok {
			n, ok := toFloat(value)
			if !ok {
				return nil, validation.Errorf(keyPath, "expected an integer")
			}
			return &AggregateComparison{Scope: ScopeNode, Function: AggCount, Operator: op, Value: int64(n)}, nil
		}
		switch key {
		case connectionNode:
			m, err := asMap(value, keyPath)
			if err != nil {
				return nil, err
			}
			return c.aggregateFields(ScopeNode, target, m, keyPath)
		case connectionEdge:
			if props == nil {
				return nil, validation.Errorf(keyPath, "relationship has no properties")
			}
			m, err := asMap(value, keyPath)
			if err != nil {
				return nil, err
			}
			return c.aggregateFields(ScopeEdge, props, m, keyPath)
		}
		return nil, validation.Errorf(keyPath, "unknown aggregate filter field %s", key)
	}, func(m map[string]any, p string) (Predicate, error) {
		return c.aggregateMap(target, props, m, p)
	})
}

func (c *Compiler) aggregateFields(scope Scope, attrs attributeLookup, where map[string]any, path string) (Predicate, error) {
	return c.objectMap(where, path, func(key string, value any, keyPath string) (Predicate, error) {
		attr, fn, op, ok := parseAggregateKey(attrs, key)
		if !ok {
			return nil, validation.Errorf(keyPath, "unknown aggregate filter field %s", key)
		}
		if !aggregateSupports(attr, fn) {
			return nil, validation.Errorf(keyPath, "%s is not supported for %s", fn, attr.Type.Name)
		}
		operand, err := c.aggregateOperand(attr, fn, value, keyPath)
		if err != nil {
			return nil, err
		}
		return &AggregateComparison{
			Scope:    scope,
			Property: attr.Property,
			Semantic: attr.Semantic,
			Function: fn,
			Operator: op,
			Value:    operand,
		}, nil
	}, func(m map[string]any, p string) (Predicate, error) {
		return c.aggregateFields(scope, attrs, m, p)
	})
}

// aggregateOperand parses the comparison value: lengths and averages are
// numbers, MIN/MAX/SUM keep the attribute's type.
func (c *Compiler) aggregateOperand(attr *schema.Attribute, fn AggregateFunction, value any, path string) (any, error) {
	switch fn {
	case AggShortestLength, AggLongestLength:
		n, ok := toFloat(value)
		if !ok {
			return nil, validation.Errorf(path, "expected an integer")
		}
		return int64(n), nil
	case AggAverageLength, AggAverage:
		n, ok := toFloat(value)
		if !ok {
			return nil, validation.Errorf(path, "expected a number")
		}
		return n, nil
	}
	return c.parseScalar(attr, value, path)
}
