// Package naming derives the generated GraphQL field names (root query and
// mutation fields, connection and aggregate fields) from schema type names.
package naming

// Config holds naming customization options
type Config struct {
	// PluralOverrides maps type name -> custom plural
	// Example: {"Person": "People", "Status": "Statuses"}
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`

	// SingularOverrides maps plural -> custom singular
	SingularOverrides map[string]string `mapstructure:"singular_overrides"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		PluralOverrides:   make(map[string]string),
		SingularOverrides: make(map[string]string),
	}
}
