// Package authz turns @authentication and @authorization metadata into
// compile-time decisions and predicates for one operation.
package authz

import (
	"fmt"
	"sort"

	"neo4j-graphql/internal/auth"
	"neo4j-graphql/internal/filter"
	"neo4j-graphql/internal/schema"
	"neo4j-graphql/internal/validation"
)

const (
	ruleNode = "node"
	ruleJWT  = "jwt"
	ruleAnd  = "AND"
	ruleOr   = "OR"
	ruleNot  = "NOT"
)

// Authorizer evaluates rules against the request's claims. Parts of a rule
// that only read claims are decided immediately; node parts become
// predicates for the emitted statement.
type Authorizer struct {
	filters *filter.Compiler
	auth    *auth.Context
	model   *schema.Model
}

// New creates an authorizer sharing the operation's filter compiler.
func New(filters *filter.Compiler) *Authorizer {
	return &Authorizer{filters: filters, auth: filters.Auth(), model: filters.Model()}
}

// Authenticate enforces @authentication on entity for op.
func (a *Authorizer) Authenticate(entity *schema.Entity, op schema.Operation) error {
	for _, e := range a.lineage(entity) {
		if !e.Authentication.Applies(op) {
			continue
		}
		if !a.auth.IsAuthenticated() {
			return auth.ErrUnauthenticated
		}
		if len(e.Authentication.JWT) == 0 {
			continue
		}
		pred, err := a.filters.JWT(e.Authentication.JWT, fmt.Sprintf("@authentication(%s).jwt", e.Name))
		if err != nil {
			return err
		}
		if !filter.EvaluateClaims(pred, a.auth.JWT) {
			return auth.ErrForbidden
		}
	}
	return nil
}

// Filter returns the predicate restricting which nodes op may touch. Any
// matching rule grants access. A nil result means unrestricted.
func (a *Authorizer) Filter(entity *schema.Entity, op schema.Operation) (filter.Predicate, error) {
	var (
		grants []filter.Predicate
		found  bool
	)
	for _, e := range a.lineage(entity) {
		for i, rule := range e.Auth.FilterRules(op) {
			found = true
			if rule.RequireAuthentication && !a.auth.IsAuthenticated() {
				continue
			}
			pred, err := a.ruleWhere(entity, rule.Where, fmt.Sprintf("@authorization(%s).filter[%d]", e.Name, i))
			if err != nil {
				return nil, err
			}
			grants = append(grants, pred)
		}
	}
	if !found {
		return nil, nil
	}
	return filter.Disjoin(grants...), nil
}

// Validate returns the predicate every affected node must satisfy for op at
// phase when. Rules that fail on claims alone raise Forbidden immediately.
func (a *Authorizer) Validate(entity *schema.Entity, op schema.Operation, when schema.When) (filter.Predicate, error) {
	var checks []filter.Predicate
	for _, e := range a.lineage(entity) {
		rules := e.Auth.ValidateRules(op, when)
		pred, err := a.validateRules(entity, rules, fmt.Sprintf("@authorization(%s).validate", e.Name))
		if err != nil {
			return nil, err
		}
		checks = append(checks, pred)
	}
	return a.decide(filter.Conjoin(checks...))
}

// Attribute returns the check for reading or writing a guarded field. Field
// filter rules are enforced as validations since a field cannot filter its
// owner out of the result.
func (a *Authorizer) Attribute(entity *schema.Entity, attr *schema.Attribute, op schema.Operation, when schema.When) (filter.Predicate, error) {
	if attr.Auth == nil {
		return nil, nil
	}
	path := fmt.Sprintf("@authorization(%s.%s)", entity.Name, attr.Name)
	rules := append(append([]*schema.AuthRule(nil), attr.Auth.FilterRules(op)...), attr.Auth.ValidateRules(op, when)...)
	pred, err := a.validateRules(entity, rules, path)
	if err != nil {
		return nil, err
	}
	return a.decide(pred)
}

// Relationship returns the check for connecting or disconnecting through a
// guarded relationship field, evaluated against its owner.
func (a *Authorizer) Relationship(owner *schema.Entity, rel *schema.Relationship, op schema.Operation, when schema.When) (filter.Predicate, error) {
	if rel.Auth == nil {
		return nil, nil
	}
	path := fmt.Sprintf("@authorization(%s.%s)", owner.Name, rel.Name)
	rules := append(append([]*schema.AuthRule(nil), rel.Auth.FilterRules(op)...), rel.Auth.ValidateRules(op, when)...)
	pred, err := a.validateRules(owner, rules, path)
	if err != nil {
		return nil, err
	}
	return a.decide(pred)
}

func (a *Authorizer) validateRules(entity *schema.Entity, rules []*schema.AuthRule, path string) (filter.Predicate, error) {
	var checks []filter.Predicate
	for i, rule := range rules {
		if rule.RequireAuthentication && !a.auth.IsAuthenticated() {
			return nil, auth.ErrUnauthenticated
		}
		pred, err := a.ruleWhere(entity, rule.Where, validation.Index(path, i))
		if err != nil {
			return nil, err
		}
		checks = append(checks, pred)
	}
	return filter.Conjoin(checks...), nil
}

// decide turns constant checks into an immediate outcome.
func (a *Authorizer) decide(pred filter.Predicate) (filter.Predicate, error) {
	if c, ok := pred.(filter.Const); ok {
		if !c.Value {
			return nil, auth.ErrForbidden
		}
		return nil, nil
	}
	return pred, nil
}

// ruleWhere compiles a rule body. An empty body matches everything.
func (a *Authorizer) ruleWhere(entity *schema.Entity, where map[string]any, path string) (filter.Predicate, error) {
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]filter.Predicate, 0, len(keys))
	for _, key := range keys {
		keyPath := validation.Join(path, key)
		value := where[key]
		switch key {
		case ruleNode:
			m, ok := value.(map[string]any)
			if !ok {
				return nil, validation.Errorf(keyPath, "expected an object")
			}
			pred, err := a.filters.Substituted(entity, m, keyPath)
			if err != nil {
				return nil, err
			}
			parts = append(parts, pred)
		case ruleJWT:
			m, ok := value.(map[string]any)
			if !ok {
				return nil, validation.Errorf(keyPath, "expected an object")
			}
			pred, err := a.filters.JWT(m, keyPath)
			if err != nil {
				return nil, err
			}
			parts = append(parts, filter.Const{Value: filter.EvaluateClaims(pred, a.auth.JWT)})
		case ruleAnd, ruleOr:
			list, ok := value.([]any)
			if !ok {
				return nil, validation.Errorf(keyPath, "expected a list")
			}
			children := make([]filter.Predicate, 0, len(list))
			for i, item := range list {
				m, ok := item.(map[string]any)
				if !ok {
					return nil, validation.Errorf(validation.Index(keyPath, i), "expected an object")
				}
				pred, err := a.ruleWhere(entity, m, validation.Index(keyPath, i))
				if err != nil {
					return nil, err
				}
				children = append(children, pred)
			}
			if key == ruleAnd {
				parts = append(parts, filter.Conjoin(children...))
			} else {
				parts = append(parts, filter.Disjoin(children...))
			}
		case ruleNot:
			m, ok := value.(map[string]any)
			if !ok {
				return nil, validation.Errorf(keyPath, "expected an object")
			}
			pred, err := a.ruleWhere(entity, m, keyPath)
			if err != nil {
				return nil, err
			}
			parts = append(parts, filter.Negate(pred))
		default:
			return nil, validation.Errorf(keyPath, "unknown authorization key %s", key)
		}
	}
	return filter.Conjoin(parts...), nil
}

// lineage returns entity followed by every interface it implements, so
// interface rules apply to implementers.
func (a *Authorizer) lineage(entity *schema.Entity) []*schema.Entity {
	out := []*schema.Entity{entity}
	seen := map[string]bool{entity.Name: true}
	queue := append([]string(nil), entity.Interfaces...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		seen[name] = true
		if iface, ok := a.model.Entity(name); ok {
			out = append(out, iface)
			queue = append(queue, iface.Interfaces...)
		}
	}
	return out
}
