//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/require"
)

const movieTypeDefs = `
type Movie @node {
	title: String!
	released: Int
	slug: String @callback(name: "slug", operations: [CREATE])
	actors: [Actor!]! @relationship(type: "ACTED_IN", direction: IN, properties: "ActedIn")
}

type Actor @node {
	name: String!
	movies: [Movie!]! @relationship(type: "ACTED_IN", direction: OUT, properties: "ActedIn")
}

type ActedIn @relationshipProperties {
	role: String
}
`

func requireIntegrationEnv(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if neo4jURI() == "" {
		t.Skip("NEO4J_TEST_URI not set")
	}
}

// openDriver connects to the test database and removes the nodes the tests
// write, before and after the test.
func openDriver(t *testing.T) neo4j.DriverWithContext {
	t.Helper()
	driver, err := neo4j.NewDriverWithContext(neo4jURI(), neo4j.BasicAuth(neo4jUser(), neo4jPassword(), ""))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, driver.VerifyConnectivity(ctx), "Neo4j should be reachable")

	clean := func() {
		_, err := neo4j.ExecuteQuery(context.Background(), driver,
			"MATCH (n) WHERE n:Movie OR n:Actor DETACH DELETE n", nil,
			neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(getEnvOrDefault("NEO4J_TEST_DATABASE", "")),
		)
		require.NoError(t, err)
	}
	clean()
	t.Cleanup(func() {
		clean()
		_ = driver.Close(context.Background())
	})
	return driver
}

func writeTypeDefs(t *testing.T, typeDefs string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.graphql")
	require.NoError(t, os.WriteFile(path, []byte(typeDefs), 0o600))
	return path
}

func startTestServer(t *testing.T, typeDefsFile string, port int, extraEnv ...string) *exec.Cmd {
	t.Helper()

	binaryName := filepath.Join(t.TempDir(), "neo4j-graphql-test")
	buildCmd := exec.Command("go", "build", "-o", binaryName, "../../cmd/server")
	out, err := buildCmd.CombinedOutput()
	require.NoError(t, err, "Failed to build server: %s", out)

	cmd := exec.Command(binaryName)
	env := append(os.Environ(), baseServerEnv(typeDefsFile)...)
	env = append(env, fmt.Sprintf("NEOGQL_SERVER_PORT=%d", port))
	cmd.Env = mergeEnv(env, extraEnv...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		if cmd.Process != nil && cmd.ProcessState == nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
		}
	})

	waitForHealthyWithLogs(t, port, &stdout, &stderr, cmd.Env)
	return cmd
}

func waitForHealthyWithLogs(t *testing.T, port int, stdout, stderr *bytes.Buffer, env []string) {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(200 * time.Millisecond)
		resp, err := http.Get(fmt.Sprintf("http://localhost:%d/health", port))
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
	}
	t.Fatalf("Server did not become ready within 30 seconds.\n%s", formatServerDebugInfo(stdout, stderr, env))
}

type graphQLResponse struct {
	Data   map[string]any   `json:"data"`
	Errors []map[string]any `json:"errors"`
}

// postGraphQL sends a request and returns the decoded body along with the
// bookmark the server reported.
func postGraphQL(t *testing.T, port int, query string, variables map[string]any, headers map[string]string) (graphQLResponse, string) {
	t.Helper()
	body, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("http://localhost:%d/graphql", port), bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out graphQLResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out, resp.Header.Get("X-Neo4j-Bookmark")
}

func mergeEnv(base []string, overrides ...string) []string {
	if len(overrides) == 0 {
		return base
	}

	overrideKeys := make(map[string]struct{}, len(overrides))
	for _, kv := range overrides {
		key := strings.SplitN(kv, "=", 2)[0]
		overrideKeys[key] = struct{}{}
	}

	merged := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key := strings.SplitN(kv, "=", 2)[0]
		if _, exists := overrideKeys[key]; exists {
			continue
		}
		merged = append(merged, kv)
	}
	return append(merged, overrides...)
}

func formatServerDebugInfo(stdout, stderr *bytes.Buffer, env []string) string {
	var envLines []string
	for _, kv := range env {
		if strings.HasPrefix(kv, "NEOGQL_") && !strings.HasPrefix(kv, "NEOGQL_NEO4J_PASSWORD") {
			envLines = append(envLines, kv)
		}
	}
	return fmt.Sprintf("Environment:\n%s\nSTDOUT:\n%s\nSTDERR:\n%s",
		strings.Join(envLines, "\n"),
		tailString(stdout, 4000),
		tailString(stderr, 4000),
	)
}

func tailString(buf *bytes.Buffer, max int) string {
	s := buf.String()
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
