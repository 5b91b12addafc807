package gqlrequest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/printer"
)

const anonymousOperationName = "<anonymous>"

// canonicalize prints the operation followed by the fragments it uses, in
// name order, and hashes the result together with the operation name.
// Printing drops comments and formatting, so equivalent documents share a
// hash.
func canonicalize(op *ast.OperationDefinition, fragments map[string]*ast.FragmentDefinition, used []string) (string, string, error) {
	names := slices.Sorted(slices.Values(used))
	definitions := make([]ast.Node, 0, 1+len(names))
	definitions = append(definitions, op)
	for _, name := range names {
		fragment := fragments[name]
		if fragment == nil {
			return "", "", fmt.Errorf("fragment %q not found", name)
		}
		definitions = append(definitions, fragment)
	}

	printed, ok := printer.Print(ast.NewDocument(&ast.Document{Definitions: definitions})).(string)
	if !ok {
		return "", "", fmt.Errorf("printer returned no text for operation %s", operationLabel(op))
	}
	return printed, framedSHA256(printed, operationLabel(op)), nil
}

func operationLabel(op *ast.OperationDefinition) string {
	if op == nil || op.Name == nil || op.Name.Value == "" {
		return anonymousOperationName
	}
	return op.Name.Value
}

// framedSHA256 hashes length-prefixed parts so ("ab", "c") and ("a", "bc")
// differ.
func framedSHA256(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		_, _ = fmt.Fprintf(h, "%d:%s|", len(part), part)
	}
	return hex.EncodeToString(h.Sum(nil))
}
