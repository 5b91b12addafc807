package filter

import (
	"strings"

	"neo4j-graphql/internal/validation"
)

// JWT compiles a predicate over token claims. Claims are untyped, so the
// operator suffix alone selects the comparison and values are used as is.
func (c *Compiler) JWT(where map[string]any, path string) (Predicate, error) {
	if len(where) == 0 {
		return nil, nil
	}
	resolved, _ := c.auth.Substitute(where).(map[string]any)
	return c.jwtMap(resolved, path)
}

func (c *Compiler) jwtMap(where map[string]any, path string) (Predicate, error) {
	return c.objectMap(where, path, func(key string, value any, keyPath string) (Predicate, error) {
		claim, op, negate := splitClaimKey(key)
		if claim == "" {
			return nil, validation.Errorf(keyPath, "invalid claim filter %s", key)
		}
		if op == OpIn && value != nil {
			list, err := asList(value, keyPath)
			if err != nil {
				return nil, err
			}
			value = list
		}
		cmp := &Comparison{Scope: ScopeJWT, Field: claim, Property: claim, Operator: op, Value: value}
		if negate {
			return &Not{Child: cmp}, nil
		}
		return cmp, nil
	}, c.jwtMap)
}

func splitClaimKey(key string) (string, Operator, bool) {
	for _, s := range attributeSuffixes {
		if s.op == OpDistance {
			continue
		}
		if claim, ok := strings.CutSuffix(key, s.suffix); ok && claim != "" {
			return claim, s.op, s.negate
		}
	}
	return key, OpEqual, false
}

// EvaluateClaims evaluates a JWT-only predicate.
func EvaluateClaims(p Predicate, claims map[string]any) bool {
	return Evaluate(p, nil, claims)
}
