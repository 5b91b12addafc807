package engine

import (
	"fmt"
	"strings"

	"neo4j-graphql/internal/auth"
	"neo4j-graphql/internal/mutation"
)

// FieldError is the failure of one root field.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return e.Err.Error()
}

func (e *FieldError) Unwrap() error { return e.Err }

// RestrictError reports a delete blocked by a RESTRICT relationship.
type RestrictError struct {
	// Relationship is "<Type>.<field>".
	Relationship string
}

func (e *RestrictError) Error() string {
	return fmt.Sprintf("cannot delete node with existing %s relationships", e.Relationship)
}

// mapDatabaseError turns the sentinels raised inside statements into their
// errors. Other database errors pass through unchanged.
func mapDatabaseError(err error) error {
	msg := err.Error()
	if auth.IsForbiddenSentinel(msg) {
		return auth.ErrForbidden
	}
	if _, rest, ok := strings.Cut(msg, mutation.RestrictSentinel); ok {
		rel, _, _ := strings.Cut(strings.TrimSpace(rest), " ")
		return &RestrictError{Relationship: strings.Trim(rel, `"'.,)`)}
	}
	return err
}
