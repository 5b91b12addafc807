// Package auth carries the resolved claims of a request and the two stable
// authorization failures the engine reports.
package auth

import (
	"context"
	"errors"
	"strings"
)

// Exact messages are part of the public contract.
var (
	ErrUnauthenticated = errors.New("Unauthenticated")
	ErrForbidden       = errors.New("Forbidden")
)

// ForbiddenSentinel is raised inside statements by runtime validation and
// mapped back to ErrForbidden.
const ForbiddenSentinel = "@neo4j-graphql/FORBIDDEN"

const (
	jwtPrefix     = "$jwt."
	contextPrefix = "$context."
)

// Context is the authorization view of a request. JWT is nil when the
// request carried no verified token.
type Context struct {
	JWT    map[string]any
	Values map[string]any
}

// Anonymous returns a context without claims.
func Anonymous() *Context {
	return &Context{}
}

// FromClaims returns an authenticated context for verified claims.
func FromClaims(claims map[string]any) *Context {
	if claims == nil {
		claims = map[string]any{}
	}
	return &Context{JWT: claims}
}

// IsAuthenticated reports whether a verified token is present.
func (c *Context) IsAuthenticated() bool {
	return c != nil && c.JWT != nil
}

// Claim resolves a dotted claim path; missing paths resolve to nil.
func (c *Context) Claim(path string) any {
	if c == nil {
		return nil
	}
	return Lookup(c.JWT, path)
}

// Substitute replaces `$jwt.<path>` and `$context.<path>` tokens anywhere in
// value. Only whole string values are treated as tokens.
func (c *Context) Substitute(value any) any {
	switch v := value.(type) {
	case string:
		if path, ok := strings.CutPrefix(v, jwtPrefix); ok {
			return c.Claim(path)
		}
		if path, ok := strings.CutPrefix(v, contextPrefix); ok {
			if c == nil {
				return nil
			}
			return Lookup(c.Values, path)
		}
		return v
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = c.Substitute(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = c.Substitute(item)
		}
		return out
	default:
		return value
	}
}

// Lookup walks a dotted path through nested maps.
func Lookup(root map[string]any, path string) any {
	if root == nil || path == "" {
		return nil
	}
	// Claim names may themselves contain dots, e.g. namespaced claims.
	if v, ok := root[path]; ok {
		return v
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil
	}
	next, ok := root[head].(map[string]any)
	if !ok {
		return nil
	}
	return Lookup(next, rest)
}

type contextKey struct{}

// WithContext stores the authorization context on ctx.
func WithContext(ctx context.Context, authCtx *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, authCtx)
}

// FromContext returns the stored authorization context, or an anonymous one.
func FromContext(ctx context.Context) *Context {
	if authCtx, ok := ctx.Value(contextKey{}).(*Context); ok && authCtx != nil {
		return authCtx
	}
	return Anonymous()
}

// IsForbiddenSentinel reports whether a database error message carries the
// runtime validation sentinel.
func IsForbiddenSentinel(message string) bool {
	return strings.Contains(message, ForbiddenSentinel)
}
