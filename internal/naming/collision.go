package naming

import (
	"fmt"
	"log/slog"
)

// CollisionResolver tracks registered root field names and resolves
// collisions by applying numeric suffixes.
type CollisionResolver struct {
	seenQueries   map[string]string // query field name -> owning type
	seenMutations map[string]string // mutation field name -> owning type
	logger        *slog.Logger
}

// NewCollisionResolver creates a new collision resolver.
func NewCollisionResolver(logger *slog.Logger) *CollisionResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CollisionResolver{
		seenQueries:   make(map[string]string),
		seenMutations: make(map[string]string),
		logger:        logger,
	}
}

// RegisterQuery registers a query field name and returns the resolved name.
func (c *CollisionResolver) RegisterQuery(fieldName, typeName string) string {
	return c.resolveCollision(fieldName, c.seenQueries, "type:"+typeName)
}

// RegisterMutation registers a mutation field name and returns the resolved name.
func (c *CollisionResolver) RegisterMutation(fieldName, typeName string) string {
	return c.resolveCollision(fieldName, c.seenMutations, "type:"+typeName)
}

// resolveCollision attempts to register a name in the given map.
// If the name already exists, finds the next available numeric suffix.
func (c *CollisionResolver) resolveCollision(name string, seen map[string]string, source string) string {
	if _, exists := seen[name]; !exists {
		seen[name] = source
		return name
	}

	existingSource := seen[name]
	c.logger.Warn("naming collision detected, applying suffix",
		slog.String("name", name),
		slog.String("existing_source", existingSource),
		slog.String("new_source", source),
	)

	for i := 2; ; i++ {
		suffixed := fmt.Sprintf("%s%d", name, i)
		if _, exists := seen[suffixed]; !exists {
			seen[suffixed] = source
			return suffixed
		}
	}
}
