//go:build integration
// +build integration

package integration

import (
	"fmt"
	"os"
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func neo4jURI() string {
	return os.Getenv("NEO4J_TEST_URI")
}

func neo4jUser() string {
	return getEnvOrDefault("NEO4J_TEST_USER", "neo4j")
}

func neo4jPassword() string {
	return os.Getenv("NEO4J_TEST_PASSWORD")
}

func baseServerEnv(typeDefsFile string) []string {
	return []string{
		fmt.Sprintf("NEOGQL_NEO4J_URI=%s", neo4jURI()),
		fmt.Sprintf("NEOGQL_NEO4J_USERNAME=%s", neo4jUser()),
		fmt.Sprintf("NEOGQL_NEO4J_PASSWORD=%s", neo4jPassword()),
		fmt.Sprintf("NEOGQL_NEO4J_DATABASE=%s", getEnvOrDefault("NEO4J_TEST_DATABASE", "")),
		"NEOGQL_NEO4J_CONNECTION_TIMEOUT=30s",
		fmt.Sprintf("NEOGQL_SCHEMA_TYPE_DEFS_FILE=%s", typeDefsFile),
		"NEOGQL_OBSERVABILITY_LOGGING_LEVEL=debug",
	}
}
