package naming

import (
	"log/slog"
	"strings"
	"unicode"
)

const (
	connectionSuffix = "Connection"
	aggregateSuffix  = "Aggregate"
)

// RootFields are the generated top-level field names for one schema type.
type RootFields struct {
	Plural      string // PascalCase plural, e.g. "Movies"
	Read        string // movies
	Connection  string // moviesConnection
	Aggregate   string // moviesAggregate
	Create      string // createMovies
	Update      string // updateMovies
	Delete      string // deleteMovies
	ResponseKey string // movies, the list key in create/update responses
}

// Namer provides all name transformation functions for converting schema type
// names to generated GraphQL field names. It handles pluralization and
// collisions between root fields.
type Namer struct {
	config   Config
	logger   *slog.Logger
	resolver *CollisionResolver
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config:   cfg,
		logger:   logger,
		resolver: NewCollisionResolver(logger),
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset clears the collision resolver state, allowing the namer to be reused
// for a new schema build.
func (n *Namer) Reset() {
	n.resolver = NewCollisionResolver(n.logger)
}

// PluralTypeName returns the PascalCase plural of a type name.
// Example: "Movie" -> "Movies", "Person" -> "People"
func (n *Namer) PluralTypeName(typeName, override string) string {
	if override != "" {
		return ToPascalCase(override)
	}
	return ToPascalCase(n.Pluralize(typeName))
}

// RegisterRootFields computes and registers the root fields for a type.
// Mutation fields are only registered when withMutations is set (object types).
func (n *Namer) RegisterRootFields(typeName, pluralOverride string, withMutations bool) RootFields {
	plural := n.PluralTypeName(typeName, pluralOverride)
	read := n.resolver.RegisterQuery(ToCamelCase(plural), typeName)

	fields := RootFields{
		Plural:      plural,
		Read:        read,
		Connection:  n.resolver.RegisterQuery(ConnectionField(read), typeName),
		Aggregate:   n.resolver.RegisterQuery(AggregateField(read), typeName),
		ResponseKey: ToCamelCase(plural),
	}
	if withMutations {
		fields.Create = n.resolver.RegisterMutation("create"+plural, typeName)
		fields.Update = n.resolver.RegisterMutation("update"+plural, typeName)
		fields.Delete = n.resolver.RegisterMutation("delete"+plural, typeName)
	}
	return fields
}

// ConnectionField returns the connection variant of a field.
// Example: "actors" -> "actorsConnection"
func ConnectionField(field string) string {
	return field + connectionSuffix
}

// AggregateField returns the aggregate variant of a field.
// Example: "actors" -> "actorsAggregate"
func AggregateField(field string) string {
	return field + aggregateSuffix
}

// TrimConnection reports the base field of a connection field name.
func TrimConnection(field string) (string, bool) {
	if base, ok := strings.CutSuffix(field, connectionSuffix); ok && base != "" {
		return base, true
	}
	return "", false
}

// TrimAggregate reports the base field of an aggregate field name.
func TrimAggregate(field string) (string, bool) {
	if base, ok := strings.CutSuffix(field, aggregateSuffix); ok && base != "" {
		return base, true
	}
	return "", false
}

// ToPascalCase upper-cases the first rune and removes underscores.
// Example: "user_profiles" -> "UserProfiles", "movies" -> "Movies"
func ToPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		parts[i] = upperFirst(part)
	}
	return strings.Join(parts, "")
}

// ToCamelCase lower-cases the leading rune of a PascalCase name.
// Example: "Movies" -> "movies", "user_profiles" -> "userProfiles"
func ToCamelCase(s string) string {
	pascal := ToPascalCase(s)
	if pascal == "" {
		return pascal
	}
	runes := []rune(pascal)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
