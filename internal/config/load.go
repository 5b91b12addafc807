package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix prefixes every environment variable, e.g. NEOGQL_NEO4J_URI.
const EnvPrefix = "NEOGQL"

var defineFlagsOnce sync.Once

// Load loads configuration from multiple sources with the following precedence:
// 1. Explicit overrides (v.Set) – used only for secrets read from files or prompts
// 2. Command line flags
// 3. Environment variables
// 4. Config file
// 5. Default values
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	defineFlags()
	if !pflag.Parsed() {
		pflag.Parse()
	}

	cfgPath, _ := pflag.CommandLine.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("neo4j-graphql")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/neo4j-graphql/")
		v.AddConfigPath("$HOME/.neo4j-graphql")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnv(v)
	bindChangedFlagsToViper(v)

	if err := resolveSecrets(v, promptPassword); err != nil {
		return nil, err
	}
	return decode(v)
}

// bindEnv maps canonical keys to env vars: neo4j.max_connection_pool_size
// becomes NEOGQL_NEO4J_MAX_CONNECTION_POOL_SIZE.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// resolveSecrets fills password and token settings from their file or prompt
// alternatives when the inline value is empty.
func resolveSecrets(v *viper.Viper, prompt func() (string, error)) error {
	if err := validateSingleStdinFileSource(v); err != nil {
		return err
	}

	if v.GetString("neo4j.password") == "" && v.GetString("neo4j.password_file") != "" {
		pwd, err := readSecretFile(v.GetString("neo4j.password_file"))
		if err != nil {
			return fmt.Errorf("failed to read neo4j password file: %w", err)
		}
		v.Set("neo4j.password", pwd)
	}
	if v.GetString("neo4j.password") == "" && v.GetBool("neo4j.password_prompt") {
		pwd, err := prompt()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("neo4j.password", pwd)
	}

	if v.GetString("server.auth.jwt_secret") == "" && v.GetString("server.auth.jwt_secret_file") != "" {
		path := v.GetString("server.auth.jwt_secret_file")
		secret, err := readSecretFile(path)
		if err != nil {
			return fmt.Errorf("failed to read jwt secret file: %w", err)
		}
		if secret == "" {
			return fmt.Errorf("jwt secret file %q is empty", path)
		}
		v.Set("server.auth.jwt_secret", secret)
	}

	if v.GetString("server.admin.auth_token") == "" && v.GetString("server.admin.auth_token_file") != "" {
		path := v.GetString("server.admin.auth_token_file")
		token, err := readSecretFile(path)
		if err != nil {
			return fmt.Errorf("failed to read admin auth token file: %w", err)
		}
		if token == "" {
			return fmt.Errorf("admin auth token file %q is empty", path)
		}
		v.Set("server.admin.auth_token", token)
	}
	return nil
}

// decode unmarshals strictly so unknown keys are reported instead of ignored.
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToStringSliceHookFunc(","),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// bindChangedFlagsToViper copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlagsToViper(v *viper.Viper) {
	pflag.CommandLine.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "version" {
			return
		}

		switch f.Value.Type() {
		case "string":
			val, _ := pflag.CommandLine.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := pflag.CommandLine.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := pflag.CommandLine.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := pflag.CommandLine.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := pflag.CommandLine.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := pflag.CommandLine.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// defineFlags defines all command line flags using canonical snake_case keys.
func defineFlags() {
	defineFlagsOnce.Do(func() {
		// Neo4j connection flags
		pflag.String("neo4j.uri", "", "Neo4j driver URI (neo4j://host:7687)")
		pflag.String("neo4j.username", "", "Neo4j user")
		pflag.String("neo4j.password", "", "Neo4j password")
		pflag.String("neo4j.password_file", "", "Path to file containing the Neo4j password (use @- for stdin)")
		pflag.Bool("neo4j.password_prompt", false, "Prompt for the Neo4j password securely")
		pflag.String("neo4j.database", "", "Neo4j database name (empty uses the server default)")
		pflag.Int("neo4j.max_connection_pool_size", 0, "Maximum connections held by the driver")
		pflag.Duration("neo4j.connection_acquisition_timeout", 0, "Max time to wait for a pooled connection")
		pflag.Duration("neo4j.connection_timeout", 0, "Max time to wait for Neo4j on startup (0 = fail immediately)")
		pflag.Duration("neo4j.connection_retry_interval", 0, "Initial interval between connectivity checks")
		pflag.Bool("neo4j.impersonation.enabled", false, "Impersonate the database user named by a token claim")
		pflag.String("neo4j.impersonation.claim_name", "", "Token claim naming the database user (default: db_user)")
		pflag.StringSlice("neo4j.impersonation.allowed_users", nil, "Database users that may be impersonated (empty allows any)")

		// Schema flags
		pflag.String("schema.type_defs_file", "", "Path to the GraphQL type definitions")
		pflag.Duration("schema.refresh_min_interval", 0, "Minimum interval between type definition checks")
		pflag.Duration("schema.refresh_max_interval", 0, "Maximum interval between type definition checks")
		pflag.Int("schema.default_limit", 0, "Page size applied when a list field has no limit (0 = unbounded)")
		pflag.Int("schema.max_limit", 0, "Largest page size a client may request (0 = unbounded)")
		pflag.Int("schema.max_depth", 0, "Maximum selection depth (0 = unbounded)")
		pflag.StringSlice("schema.callbacks", nil, "Built-in @populatedBy callbacks to register")

		// Server flags
		pflag.Int("server.port", 0, "HTTP server port")
		pflag.String("server.auth.jwt_secret", "", "HS256 secret used to verify bearer tokens")
		pflag.String("server.auth.jwt_secret_file", "", "Path to file containing the HS256 secret (use @- for stdin)")
		pflag.String("server.auth.jwt_issuer", "", "Expected iss claim for HS256 tokens")
		pflag.String("server.auth.jwt_audience", "", "Expected aud claim for HS256 tokens")
		pflag.Bool("server.auth.oidc_enabled", false, "Enable OIDC/JWKS authentication middleware")
		pflag.String("server.auth.oidc_issuer_url", "", "OIDC issuer URL (for discovery and JWKS)")
		pflag.String("server.auth.oidc_audience", "", "Expected JWT audience (client ID)")
		pflag.Duration("server.auth.oidc_clock_skew", 0, "Allowed JWT clock skew (e.g. 2m)")
		pflag.String("server.auth.oidc_ca_file", "", "PEM CA bundle trusted when contacting the OIDC issuer")
		pflag.Bool("server.auth.require_token", false, "Reject requests without a bearer token")
		pflag.StringSlice("server.auth.context_headers", nil, "Request headers exposed to $context (comma-separated or repeated)")
		pflag.Bool("server.admin.schema_reload_enabled", false, "Enable /admin/reload-schema endpoint")
		pflag.String("server.admin.auth_token", "", "Shared secret required in X-Admin-Token header when no token auth is configured")
		pflag.String("server.admin.auth_token_file", "", "Path to file containing admin auth token (use @- for stdin)")
		pflag.Bool("server.rate_limit_enabled", false, "Enable global rate limiting for all HTTP endpoints")
		pflag.Float64("server.rate_limit_rps", 0, "Global rate limit requests per second")
		pflag.Int("server.rate_limit_burst", 0, "Global rate limit burst size")
		pflag.Bool("server.cors_enabled", false, "Enable CORS (Cross-Origin Resource Sharing)")
		pflag.StringSlice("server.cors_allowed_origins", nil, "Allowed CORS origins (comma-separated or repeated)")
		pflag.StringSlice("server.cors_allowed_methods", nil, "Allowed CORS methods (comma-separated or repeated)")
		pflag.StringSlice("server.cors_allowed_headers", nil, "Allowed CORS headers (comma-separated or repeated)")
		pflag.StringSlice("server.cors_expose_headers", nil, "CORS headers to expose to browser (comma-separated or repeated)")
		pflag.Bool("server.cors_allow_credentials", false, "Allow credentials in CORS requests")
		pflag.Int("server.cors_max_age", 0, "CORS preflight cache duration (seconds)")
		pflag.Duration("server.read_timeout", 0, "HTTP server read timeout")
		pflag.Duration("server.write_timeout", 0, "HTTP server write timeout")
		pflag.Duration("server.idle_timeout", 0, "HTTP server idle timeout")
		pflag.Duration("server.shutdown_timeout", 0, "HTTP server graceful shutdown timeout")
		pflag.Duration("server.health_check_timeout", 0, "Health check timeout")

		// Events flags
		pflag.Bool("events.enabled", false, "Publish mutation change events")
		pflag.String("events.nats_url", "", "NATS server URL for change events")
		pflag.String("events.subject_prefix", "", "Subject prefix for change events")

		// Observability flags
		pflag.String("observability.service_name", "", "Service name for observability")
		pflag.String("observability.service_version", "", "Service version for observability")
		pflag.String("observability.environment", "", "Environment name (dev, staging, prod)")
		pflag.Bool("observability.metrics_enabled", false, "Enable metrics collection")
		pflag.Bool("observability.tracing_enabled", false, "Enable distributed tracing")
		pflag.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio from 0.0 to 1.0")
		pflag.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
		pflag.String("observability.logging.format", "", "Log format (json, text)")
		pflag.Bool("observability.logging.exports_enabled", false, "Enable OTLP log export")

		// Global OTLP flags
		pflag.String("observability.otlp.endpoint", "", "OTLP endpoint for all signals (e.g., localhost:4317)")
		pflag.String("observability.otlp.protocol", "", "OTLP protocol for all signals (grpc, http/protobuf)")
		pflag.Bool("observability.otlp.insecure", false, "Use insecure connection (no TLS)")
		pflag.String("observability.otlp.tls_cert_file", "", "Path to TLS certificate file for server verification")
		pflag.String("observability.otlp.tls_client_cert_file", "", "Path to client certificate file for mTLS")
		pflag.String("observability.otlp.tls_client_key_file", "", "Path to client key file for mTLS")
		pflag.Duration("observability.otlp.timeout", 0, "OTLP export timeout")
		pflag.String("observability.otlp.compression", "", "OTLP compression (none, gzip)")
		pflag.Bool("observability.otlp.retry_enabled", false, "Enable retry on transient errors")
		pflag.Int("observability.otlp.retry_max_attempts", 0, "Maximum retry attempts")

		// Signal-specific OTLP flags
		pflag.String("observability.traces.endpoint", "", "OTLP endpoint for traces only")
		pflag.String("observability.traces.protocol", "", "OTLP protocol for traces (grpc, http/protobuf)")
		pflag.Bool("observability.traces.insecure", false, "Use insecure connection for traces")
		pflag.Duration("observability.traces.timeout", 0, "Timeout for trace exports")
		pflag.String("observability.logs.endpoint", "", "OTLP endpoint for logs only")
		pflag.String("observability.logs.protocol", "", "OTLP protocol for logs (grpc, http/protobuf)")
		pflag.Bool("observability.logs.insecure", false, "Use insecure connection for logs")
		pflag.Duration("observability.logs.timeout", 0, "Timeout for log exports")

		pflag.StringP("config", "c", "", "Config file path")
	})
}

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	v.SetDefault("neo4j.uri", "neo4j://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.password_file", "")
	v.SetDefault("neo4j.password_prompt", false)
	v.SetDefault("neo4j.database", "")
	v.SetDefault("neo4j.max_connection_pool_size", 100)
	v.SetDefault("neo4j.connection_acquisition_timeout", 60*time.Second)
	v.SetDefault("neo4j.connection_timeout", 60*time.Second)
	v.SetDefault("neo4j.connection_retry_interval", 2*time.Second)
	v.SetDefault("neo4j.impersonation.enabled", false)
	v.SetDefault("neo4j.impersonation.claim_name", "db_user")
	v.SetDefault("neo4j.impersonation.allowed_users", []string{})

	v.SetDefault("schema.type_defs_file", "schema.graphql")
	v.SetDefault("schema.refresh_min_interval", 5*time.Second)
	v.SetDefault("schema.refresh_max_interval", time.Minute)
	v.SetDefault("schema.default_limit", 0)
	v.SetDefault("schema.max_limit", 0)
	v.SetDefault("schema.max_depth", 0)
	v.SetDefault("schema.callbacks", []string{})

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.auth.jwt_secret", "")
	v.SetDefault("server.auth.jwt_secret_file", "")
	v.SetDefault("server.auth.jwt_issuer", "")
	v.SetDefault("server.auth.jwt_audience", "")
	v.SetDefault("server.auth.oidc_enabled", false)
	v.SetDefault("server.auth.oidc_issuer_url", "")
	v.SetDefault("server.auth.oidc_audience", "")
	v.SetDefault("server.auth.oidc_clock_skew", 2*time.Minute)
	v.SetDefault("server.auth.oidc_ca_file", "")
	v.SetDefault("server.auth.require_token", false)
	v.SetDefault("server.auth.context_headers", []string{})
	v.SetDefault("server.admin.schema_reload_enabled", false)
	v.SetDefault("server.admin.auth_token", "")
	v.SetDefault("server.admin.auth_token_file", "")
	v.SetDefault("server.rate_limit_enabled", false)
	v.SetDefault("server.rate_limit_rps", 0.0)
	v.SetDefault("server.rate_limit_burst", 0)
	v.SetDefault("server.cors_enabled", false)
	v.SetDefault("server.cors_allowed_origins", []string{})
	v.SetDefault("server.cors_allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("server.cors_allowed_headers", []string{"Content-Type", "Authorization", "X-Neo4j-Bookmark"})
	v.SetDefault("server.cors_expose_headers", []string{"X-Neo4j-Bookmark"})
	v.SetDefault("server.cors_allow_credentials", false)
	v.SetDefault("server.cors_max_age", 86400)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.health_check_timeout", 2*time.Second)

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("events.subject_prefix", "neo4j-graphql.events")

	v.SetDefault("observability.service_name", "neo4j-graphql")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.exports_enabled", false)

	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_key_file", "")
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)
	v.SetDefault("observability.otlp.retry_max_attempts", 3)

	v.SetDefault("naming.plural_overrides", map[string]string{})
	v.SetDefault("naming.singular_overrides", map[string]string{})
}

// promptPassword prompts the user for a password without echoing to terminal.
func promptPassword() (string, error) {
	fmt.Print("Enter Neo4j password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

// readSecretFile reads a trimmed secret from path; "@-" reads stdin.
func readSecretFile(path string) (string, error) {
	var data []byte
	var err error

	if path == "@-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func validateSingleStdinFileSource(v *viper.Viper) error {
	stdinBackedKeys := []string{
		"neo4j.password_file",
		"server.auth.jwt_secret_file",
		"server.admin.auth_token_file",
	}

	var configured []string
	for _, key := range stdinBackedKeys {
		if strings.TrimSpace(v.GetString(key)) == "@-" {
			configured = append(configured, key)
		}
	}

	if len(configured) > 1 {
		return fmt.Errorf(
			"multiple stdin-backed file settings use @- (%s); only one @- source is allowed",
			strings.Join(configured, ", "),
		)
	}
	return nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
