// Package scalars provides the pluggable codecs that convert between GraphQL
// wire values and the native values Neo4j accepts as query parameters.
package scalars

import (
	"fmt"
	"sync"

	"github.com/graphql-go/graphql"
)

// Registry maps scalar type names to codecs. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	scalars map[string]*graphql.Scalar
}

// NewRegistry creates a registry holding the given codecs.
func NewRegistry(codecs ...*graphql.Scalar) *Registry {
	r := &Registry{scalars: make(map[string]*graphql.Scalar, len(codecs))}
	for _, codec := range codecs {
		r.Register(codec)
	}
	return r
}

// Default returns a registry with the built-in GraphQL scalars and every
// temporal and spatial codec.
func Default() *Registry {
	return NewRegistry(
		graphql.ID,
		graphql.String,
		graphql.Int,
		graphql.Float,
		graphql.Boolean,
		BigInt(),
		DateTime(),
		Date(),
		Time(),
		LocalTime(),
		LocalDateTime(),
		Duration(),
		Point(),
		CartesianPoint(),
	)
}

// Register adds or replaces a codec.
func (r *Registry) Register(codec *graphql.Scalar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scalars[codec.Name()] = codec
}

// Lookup returns the codec registered for name.
func (r *Registry) Lookup(name string) (*graphql.Scalar, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codec, ok := r.scalars[name]
	return codec, ok
}

// Parse converts a wire value into its native form. Lists are parsed element-wise.
// Unknown scalar names (enums, custom scalars) pass through unchanged.
func (r *Registry) Parse(name string, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	if list, ok := value.([]interface{}); ok {
		out := make([]interface{}, len(list))
		for i, item := range list {
			parsed, err := r.Parse(name, item)
			if err != nil {
				return nil, err
			}
			out[i] = parsed
		}
		return out, nil
	}
	codec, ok := r.Lookup(name)
	if !ok {
		return value, nil
	}
	parsed := codec.ParseValue(value)
	if parsed == nil {
		return nil, fmt.Errorf("invalid %s value %v", name, value)
	}
	return parsed, nil
}

// Serialize converts a native value into its wire form.
func (r *Registry) Serialize(name string, value interface{}) interface{} {
	if value == nil {
		return nil
	}
	if list, ok := value.([]interface{}); ok {
		out := make([]interface{}, len(list))
		for i, item := range list {
			out[i] = r.Serialize(name, item)
		}
		return out
	}
	codec, ok := r.Lookup(name)
	if !ok {
		return value
	}
	return codec.Serialize(value)
}
