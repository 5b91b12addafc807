package schema

import "fmt"

// ErrorKind classifies schema build failures.
type ErrorKind string

const (
	InvalidSyntax                ErrorKind = "InvalidSyntax"
	DuplicateTypeName            ErrorKind = "DuplicateTypeName"
	UnresolvedRelationshipTarget ErrorKind = "UnresolvedRelationshipTarget"
	InvalidDirectiveArgument     ErrorKind = "InvalidDirectiveArgument"
	InterfaceContractViolation   ErrorKind = "InterfaceContractViolation"
	CyclicNonNullableCallback    ErrorKind = "CyclicNonNullableCallback"
)

// SchemaError is a fatal build-time error; no model is produced.
type SchemaError struct {
	Kind    ErrorKind
	Type    string
	Field   string
	Message string
	Err     error
}

func (e *SchemaError) Error() string {
	location := e.Type
	if e.Field != "" {
		location += "." + e.Field
	}
	if location == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, location, e.Message)
}

func (e *SchemaError) Unwrap() error { return e.Err }

func newError(kind ErrorKind, typeName, field, format string, args ...any) *SchemaError {
	return &SchemaError{
		Kind:    kind,
		Type:    typeName,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}
