package schema

// When selects whether a validation rule runs before or after the write.
type When string

const (
	WhenBefore When = "BEFORE"
	WhenAfter  When = "AFTER"
)

// AuthRule is one filter or validate entry of an @authorization directive.
// Where holds the raw rule body: {node: {...}, jwt: {...}} plus AND/OR/NOT.
type AuthRule struct {
	Operations            []Operation
	RequireAuthentication bool
	When                  []When
	Where                 map[string]any
}

// Applies reports whether the rule covers op.
func (r *AuthRule) Applies(op Operation) bool {
	return containsOp(r.Operations, op)
}

// AppliesWhen reports whether a validate rule runs at the given phase.
func (r *AuthRule) AppliesWhen(w When) bool {
	for _, candidate := range r.When {
		if candidate == w {
			return true
		}
	}
	return false
}

// Authorization groups the rules of an @authorization directive.
type Authorization struct {
	Filter   []*AuthRule
	Validate []*AuthRule
}

// FilterRules returns the filter rules covering op.
func (a *Authorization) FilterRules(op Operation) []*AuthRule {
	if a == nil {
		return nil
	}
	return selectRules(a.Filter, op, "")
}

// ValidateRules returns the validate rules covering op at phase w.
func (a *Authorization) ValidateRules(op Operation, w When) []*AuthRule {
	if a == nil {
		return nil
	}
	return selectRules(a.Validate, op, w)
}

func selectRules(rules []*AuthRule, op Operation, w When) []*AuthRule {
	var out []*AuthRule
	for _, rule := range rules {
		if !rule.Applies(op) {
			continue
		}
		if w != "" && !rule.AppliesWhen(w) {
			continue
		}
		out = append(out, rule)
	}
	return out
}

// Authentication is the @authentication directive: operations that require
// a verified token, optionally matching a JWT predicate.
type Authentication struct {
	Operations []Operation
	JWT        map[string]any
}

// Applies reports whether authentication is required for op.
func (a *Authentication) Applies(op Operation) bool {
	return a != nil && containsOp(a.Operations, op)
}

var (
	filterOperations   = []Operation{OpRead, OpUpdate, OpDelete, OpCreateRelationship, OpDeleteRelationship}
	validateOperations = AllOperations
	allWhen            = []When{WhenBefore, WhenAfter}
)
