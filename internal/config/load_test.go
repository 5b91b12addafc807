package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Defaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := decode(v)
	require.NoError(t, err)
	assert.Equal(t, "neo4j://localhost:7687", cfg.Neo4j.URI)
	assert.Equal(t, "db_user", cfg.Neo4j.Impersonation.ClaimName)
	assert.Equal(t, "schema.graphql", cfg.Schema.TypeDefsFile)
	assert.Equal(t, 5*time.Second, cfg.Schema.RefreshMinInterval)
	assert.Equal(t, "neo4j-graphql.events", cfg.Events.SubjectPrefix)
	assert.Contains(t, cfg.Server.CORSExposeHeaders, "X-Neo4j-Bookmark")
	assert.Equal(t, "neo4j-graphql", cfg.Observability.ServiceName)

	result := cfg.Validate()
	assert.False(t, result.HasErrors(), result.Error())
}

func TestDecode_FileAndEnvPrecedence(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
neo4j:
  uri: bolt://file-host:7687
  database: movies
schema:
  max_limit: 50
server:
  cors_allowed_origins: https://a.example.com
`)))

	t.Setenv("NEOGQL_NEO4J_URI", "neo4j+s://env-host:7687")
	t.Setenv("NEOGQL_SERVER_PORT", "9999")
	t.Setenv("NEOGQL_SCHEMA_CALLBACKS", "slug, touch")
	bindEnv(v)

	cfg, err := decode(v)
	require.NoError(t, err)
	assert.Equal(t, "neo4j+s://env-host:7687", cfg.Neo4j.URI)
	assert.Equal(t, "movies", cfg.Neo4j.Database)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Schema.MaxLimit)
	assert.Equal(t, []string{"slug", "touch"}, cfg.Schema.Callbacks)
	assert.Equal(t, []string{"https://a.example.com"}, cfg.Server.CORSAllowedOrigins)
}

func TestDecode_RejectsUnknownKeys(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
database:
  dsn: root@tcp(localhost:4000)/test
`)))

	_, err := decode(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database")
}

func TestResolveSecrets(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}
	noPrompt := func() (string, error) { return "", errors.New("unexpected prompt") }

	t.Run("files fill empty settings", func(t *testing.T) {
		v := viper.New()
		v.Set("neo4j.password_file", write("password", "s3cret\n"))
		v.Set("server.auth.jwt_secret_file", write("jwt", " signing-key "))
		v.Set("server.admin.auth_token_file", write("admin", "admin-token"))

		require.NoError(t, resolveSecrets(v, noPrompt))
		assert.Equal(t, "s3cret", v.GetString("neo4j.password"))
		assert.Equal(t, "signing-key", v.GetString("server.auth.jwt_secret"))
		assert.Equal(t, "admin-token", v.GetString("server.admin.auth_token"))
	})

	t.Run("inline value wins over file", func(t *testing.T) {
		v := viper.New()
		v.Set("neo4j.password", "inline")
		v.Set("neo4j.password_file", filepath.Join(dir, "missing"))

		require.NoError(t, resolveSecrets(v, noPrompt))
		assert.Equal(t, "inline", v.GetString("neo4j.password"))
	})

	t.Run("prompt", func(t *testing.T) {
		v := viper.New()
		v.Set("neo4j.password_prompt", true)

		require.NoError(t, resolveSecrets(v, func() (string, error) { return "typed", nil }))
		assert.Equal(t, "typed", v.GetString("neo4j.password"))
	})

	t.Run("empty token file", func(t *testing.T) {
		v := viper.New()
		v.Set("server.admin.auth_token_file", write("empty", "\n"))

		err := resolveSecrets(v, noPrompt)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is empty")
	})

	t.Run("missing password file", func(t *testing.T) {
		v := viper.New()
		v.Set("neo4j.password_file", filepath.Join(dir, "missing"))

		err := resolveSecrets(v, noPrompt)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "neo4j password file")
	})
}

func TestValidateSingleStdinFileSource(t *testing.T) {
	t.Run("one stdin source", func(t *testing.T) {
		v := viper.New()
		v.Set("neo4j.password_file", "@-")
		v.Set("server.admin.auth_token_file", "/tmp/admin-token")
		assert.NoError(t, validateSingleStdinFileSource(v))
	})

	t.Run("multiple stdin sources", func(t *testing.T) {
		v := viper.New()
		v.Set("neo4j.password_file", "@-")
		v.Set("server.auth.jwt_secret_file", " @- ")

		err := validateSingleStdinFileSource(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "neo4j.password_file")
		assert.Contains(t, err.Error(), "server.auth.jwt_secret_file")
	})
}
