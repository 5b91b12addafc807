package schema

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
)

// Directive names understood by the builder.
const (
	dirNode                   = "node"
	dirRelationship           = "relationship"
	dirDeclareRelationship    = "declareRelationship"
	dirRelationshipProperties = "relationshipProperties"
	dirAlias                  = "alias"
	dirID                     = "id"
	dirUnique                 = "unique"
	dirDefault                = "default"
	dirTimestamp              = "timestamp"
	dirCallback               = "callback"
	dirPopulatedBy            = "populatedBy"
	dirCypher                 = "cypher"
	dirAuthorization          = "authorization"
	dirAuthentication         = "authentication"
	dirPlural                 = "plural"
	dirLimit                  = "limit"
)

// directiveArgs converts a directive's arguments to plain Go values.
func directiveArgs(d *ast.Directive) (map[string]any, error) {
	out := make(map[string]any, len(d.Arguments))
	for _, arg := range d.Arguments {
		if arg.Value == nil {
			continue
		}
		v, err := arg.Value.Value(nil)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", arg.Name, err)
		}
		out[arg.Name] = v
	}
	return out, nil
}

func stringArg(args map[string]any, name string) (string, bool, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return "", false, nil
	}
	s, isString := raw.(string)
	if !isString {
		return "", true, fmt.Errorf("argument %q must be a string", name)
	}
	return s, true, nil
}

func boolArg(args map[string]any, name string, def bool) (bool, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return def, nil
	}
	b, isBool := raw.(bool)
	if !isBool {
		return false, fmt.Errorf("argument %q must be a boolean", name)
	}
	return b, nil
}

func intArg(args map[string]any, name string) (int, bool, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return 0, false, nil
	}
	n, isInt := raw.(int64)
	if !isInt {
		return 0, true, fmt.Errorf("argument %q must be an integer", name)
	}
	return int(n), true, nil
}

func stringListArg(args map[string]any, name string) ([]string, bool, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return nil, false, nil
	}
	// A single value is coerced to a list, as GraphQL input coercion does.
	if s, isString := raw.(string); isString {
		return []string{s}, true, nil
	}
	list, isList := raw.([]any)
	if !isList {
		return nil, true, fmt.Errorf("argument %q must be a list of strings", name)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, isString := item.(string)
		if !isString {
			return nil, true, fmt.Errorf("argument %q must be a list of strings", name)
		}
		out = append(out, s)
	}
	return out, true, nil
}

func operationsArg(args map[string]any, name string, def []Operation, allowed []Operation) ([]Operation, error) {
	values, present, err := stringListArg(args, name)
	if err != nil {
		return nil, err
	}
	if !present {
		return append([]Operation(nil), def...), nil
	}
	out := make([]Operation, 0, len(values))
	for _, v := range values {
		op := Operation(v)
		if !containsOp(allowed, op) {
			return nil, fmt.Errorf("argument %q: unsupported operation %s", name, v)
		}
		out = append(out, op)
	}
	return out, nil
}

func parseAuthorization(d *ast.Directive) (*Authorization, error) {
	args, err := directiveArgs(d)
	if err != nil {
		return nil, err
	}
	auth := &Authorization{}
	if auth.Filter, err = parseRules(args, "filter", filterOperations, false); err != nil {
		return nil, err
	}
	if auth.Validate, err = parseRules(args, "validate", validateOperations, true); err != nil {
		return nil, err
	}
	if len(auth.Filter) == 0 && len(auth.Validate) == 0 {
		return nil, fmt.Errorf("@authorization requires at least one filter or validate rule")
	}
	return auth, nil
}

func parseRules(args map[string]any, name string, defOps []Operation, withWhen bool) ([]*AuthRule, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return nil, nil
	}
	list, isList := raw.([]any)
	if !isList {
		list = []any{raw}
	}
	rules := make([]*AuthRule, 0, len(list))
	for i, item := range list {
		body, isMap := item.(map[string]any)
		if !isMap {
			return nil, fmt.Errorf("%s[%d] must be an object", name, i)
		}
		ops, err := operationsArg(body, "operations", defOps, defOps)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		requireAuth, err := boolArg(body, "requireAuthentication", true)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		rule := &AuthRule{Operations: ops, RequireAuthentication: requireAuth}
		if withWhen {
			whens, _, err := stringListArg(body, "when")
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
			}
			if len(whens) == 0 {
				rule.When = append([]When(nil), allWhen...)
			}
			for _, w := range whens {
				if When(w) != WhenBefore && When(w) != WhenAfter {
					return nil, fmt.Errorf("%s[%d]: unsupported when %s", name, i, w)
				}
				rule.When = append(rule.When, When(w))
			}
		}
		if where, present := body["where"]; present && where != nil {
			whereMap, isMap := where.(map[string]any)
			if !isMap {
				return nil, fmt.Errorf("%s[%d]: where must be an object", name, i)
			}
			rule.Where = whereMap
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseAuthentication(d *ast.Directive) (*Authentication, error) {
	args, err := directiveArgs(d)
	if err != nil {
		return nil, err
	}
	ops, err := operationsArg(args, "operations", AllOperations, AllOperations)
	if err != nil {
		return nil, err
	}
	authn := &Authentication{Operations: ops}
	if raw, ok := args["jwt"]; ok && raw != nil {
		jwt, isMap := raw.(map[string]any)
		if !isMap {
			return nil, fmt.Errorf("argument \"jwt\" must be an object")
		}
		authn.JWT = jwt
	}
	return authn, nil
}
