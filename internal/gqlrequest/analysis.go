// Package gqlrequest decodes GraphQL HTTP requests once per request and
// shares the parsed operation and its metadata with the middleware chain and
// the engine.
package gqlrequest

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

// Analysis is everything derived from one request body. ParseError,
// SelectionError and CanonicalizeErr name the stage that stopped the
// analysis.
type Analysis struct {
	Envelope Envelope
	// RequestedOperationName is the operationName sent by the client;
	// OperationName is the selected operation's name or "<anonymous>".
	RequestedOperationName string
	OperationName          string
	OperationType          string

	Document  *ast.Document
	Fragments map[string]*ast.FragmentDefinition
	Operation *ast.OperationDefinition

	// FieldCount counts field selections with fragments expanded once;
	// SelectionDepth is the deepest field nesting, root fields at 1.
	FieldCount     int
	SelectionDepth int
	VariableCount  int

	CanonicalOperation string
	OperationHash      string

	DecodeError     error
	ParseError      error
	SelectionError  error
	CanonicalizeErr error
}

// AnalyzeRequest decodes the request body and analyzes it. The body is
// rewound for later readers.
func AnalyzeRequest(r *http.Request) *Analysis {
	env, err := DecodeEnvelope(r)
	analysis := AnalyzeEnvelope(env)
	analysis.DecodeError = err
	return analysis
}

// AnalyzeEnvelope parses the query and selects the operation to run. An empty
// query yields an analysis with no operation and no error.
func AnalyzeEnvelope(env Envelope) *Analysis {
	a := &Analysis{
		Envelope:               env,
		RequestedOperationName: env.OperationName,
		Fragments:              map[string]*ast.FragmentDefinition{},
	}
	if strings.TrimSpace(env.Query) == "" {
		return a
	}

	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(env.Query), Name: "graphql"}),
	})
	if err != nil {
		a.ParseError = err
		return a
	}
	a.Document = doc

	var operations []*ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.OperationDefinition:
			if d != nil {
				operations = append(operations, d)
			}
		case *ast.FragmentDefinition:
			if d != nil && d.Name != nil && d.Name.Value != "" {
				a.Fragments[d.Name.Value] = d
			}
		}
	}

	if a.Operation, a.SelectionError = pickOperation(operations, env.OperationName); a.SelectionError != nil {
		return a
	}
	a.OperationName = operationLabel(a.Operation)
	a.OperationType = string(a.Operation.Operation)
	a.VariableCount = len(a.Operation.VariableDefinitions)

	walk := &shapeWalker{fragments: a.Fragments, expanded: map[string]bool{}}
	a.FieldCount, a.SelectionDepth = walk.measure(a.Operation.SelectionSet, 1)

	a.CanonicalOperation, a.OperationHash, a.CanonicalizeErr = canonicalize(a.Operation, a.Fragments, walk.order)
	return a
}

var errNoOperation = errors.New("request does not include an operation")

func pickOperation(operations []*ast.OperationDefinition, name string) (*ast.OperationDefinition, error) {
	if name == "" {
		switch len(operations) {
		case 0:
			return nil, errNoOperation
		case 1:
			return operations[0], nil
		}
		return nil, errors.New("operationName is required when request has multiple operations")
	}
	for _, op := range operations {
		if op.Name != nil && op.Name.Value == name {
			return op, nil
		}
	}
	return nil, fmt.Errorf("unknown operation named %q", name)
}

// shapeWalker measures a selection set. Each named fragment is expanded at
// its first spread only, which also makes fragment cycles terminate.
type shapeWalker struct {
	fragments map[string]*ast.FragmentDefinition
	expanded  map[string]bool
	// order lists expanded fragments by first spread.
	order []string
}

// measure returns the fields under set and the deepest field depth reached,
// where fields directly in set sit at depth.
func (w *shapeWalker) measure(set *ast.SelectionSet, depth int) (fields, deepest int) {
	deepest = depth - 1
	if set == nil {
		return 0, deepest
	}
	visit := func(n, d int) {
		fields += n
		deepest = max(deepest, d)
	}
	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			visit(1, depth)
			if s.SelectionSet != nil {
				visit(w.measure(s.SelectionSet, depth+1))
			}
		case *ast.InlineFragment:
			visit(w.measure(s.SelectionSet, depth))
		case *ast.FragmentSpread:
			if s.Name == nil || w.expanded[s.Name.Value] {
				continue
			}
			name := s.Name.Value
			w.expanded[name] = true
			w.order = append(w.order, name)
			if fragment := w.fragments[name]; fragment != nil {
				visit(w.measure(fragment.SelectionSet, depth))
			}
		}
	}
	return fields, deepest
}
