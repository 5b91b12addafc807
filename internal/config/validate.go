package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"neo4j-graphql/internal/logging"
	"neo4j-graphql/internal/naming"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) fail(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) warn(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.Neo4j.validate(result)
	c.Schema.validate(result)
	c.Server.validate(result, c.Neo4j.Impersonation)
	c.Events.validate(result)
	c.Observability.validate(result)
	validateNamingConfig(result, c.Naming)
	return result
}

var neo4jSchemes = map[string]bool{
	"neo4j": true, "neo4j+s": true, "neo4j+ssc": true,
	"bolt": true, "bolt+s": true, "bolt+ssc": true,
}

func (n *Neo4jConfig) validate(result *ValidationResult) {
	parsed, err := url.Parse(strings.TrimSpace(n.URI))
	switch {
	case strings.TrimSpace(n.URI) == "":
		result.fail("neo4j.uri", "uri is required", "set neo4j.uri, e.g. neo4j://localhost:7687")
	case err != nil:
		result.fail("neo4j.uri", fmt.Sprintf("invalid uri %q: %v", n.URI, err), "")
	case !neo4jSchemes[parsed.Scheme]:
		result.fail("neo4j.uri", fmt.Sprintf("unsupported scheme %q", parsed.Scheme),
			"valid schemes are: neo4j, neo4j+s, neo4j+ssc, bolt, bolt+s, bolt+ssc")
	case parsed.Host == "":
		result.fail("neo4j.uri", "uri has no host", "")
	default:
		if parsed.Scheme == "neo4j+ssc" || parsed.Scheme == "bolt+ssc" {
			result.warn("neo4j.uri", "+ssc schemes accept any server certificate",
				"use +s in production")
		}
	}

	if n.Username == "" {
		result.fail("neo4j.username", "username is required", "")
	}
	if n.Password == "" {
		result.warn("neo4j.password", "password is empty",
			"set neo4j.password, neo4j.password_file or neo4j.password_prompt")
	}
	if n.MaxConnectionPoolSize < 0 {
		result.fail("neo4j.max_connection_pool_size", "max_connection_pool_size cannot be negative", "")
	}
	if n.ConnectionAcquisitionTimeout < 0 {
		result.fail("neo4j.connection_acquisition_timeout", "connection_acquisition_timeout cannot be negative", "")
	}
	if n.ConnectionTimeout > 0 && n.ConnectionRetryInterval <= 0 {
		result.fail("neo4j.connection_retry_interval",
			"connection_retry_interval must be greater than 0 when connection_timeout is set", "")
	}
	if n.Impersonation.Enabled && strings.TrimSpace(n.Impersonation.ClaimName) == "" {
		result.fail("neo4j.impersonation.claim_name", "claim_name is required when impersonation is enabled", "")
	}
}

func (s *SchemaConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(s.TypeDefsFile) == "" {
		result.fail("schema.type_defs_file", "type_defs_file is required", "")
	}
	if s.RefreshMinInterval < 0 || s.RefreshMaxInterval < 0 {
		result.fail("schema.refresh_min_interval", "refresh intervals cannot be negative", "")
	}
	if s.RefreshMaxInterval > 0 && s.RefreshMinInterval > s.RefreshMaxInterval {
		result.fail("schema.refresh_min_interval",
			"refresh_min_interval cannot exceed refresh_max_interval", "")
	}
	if s.RefreshMinInterval == 0 && s.RefreshMaxInterval == 0 {
		result.warn("schema.refresh_min_interval", "type definition hot reload is disabled",
			"set refresh intervals to pick up edits without a restart")
	}
	if s.DefaultLimit < 0 {
		result.fail("schema.default_limit", "default_limit cannot be negative", "")
	}
	if s.MaxLimit < 0 {
		result.fail("schema.max_limit", "max_limit cannot be negative", "")
	}
	if s.MaxLimit > 0 && s.DefaultLimit > s.MaxLimit {
		result.fail("schema.default_limit", "default_limit cannot exceed max_limit", "")
	}
	if s.MaxDepth < 0 {
		result.fail("schema.max_depth", "max_depth cannot be negative", "")
	}
	for _, name := range s.Callbacks {
		if strings.TrimSpace(name) == "" {
			result.fail("schema.callbacks", "callback name cannot be empty", "")
		}
	}
}

func (s *ServerConfig) validate(result *ValidationResult, impersonation ImpersonationConfig) {
	if s.Port < 1 || s.Port > 65535 {
		result.fail("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}

	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.fail("server.rate_limit_rps", "rate_limit_rps must be greater than 0 when rate limiting is enabled", "")
		}
		if s.RateLimitBurst <= 0 {
			result.fail("server.rate_limit_burst", "rate_limit_burst must be greater than 0 when rate limiting is enabled", "")
		}
	}
	if !s.RateLimitEnabled && (s.RateLimitRPS > 0 || s.RateLimitBurst > 0) {
		result.warn("server.rate_limit_enabled", "rate limit values are set but rate limiting is disabled",
			"enable server.rate_limit_enabled to apply rate limits")
	}

	if s.CORSEnabled {
		if len(s.CORSAllowedOrigins) == 0 {
			result.fail("server.cors_allowed_origins", "CORS enabled but no allowed origins configured",
				"set cors_allowed_origins or disable CORS")
		}
		hasWildcard := false
		for _, origin := range s.CORSAllowedOrigins {
			if strings.TrimSpace(origin) == "*" {
				hasWildcard = true
				break
			}
		}
		if hasWildcard && s.CORSAllowCredentials {
			result.fail("server.cors_allowed_origins", "wildcard origin (*) cannot be used with credentials",
				"use specific origins with credentials, or wildcard without credentials")
		}
		if hasWildcard {
			result.warn("server.cors_allowed_origins", "CORS wildcard origin enabled",
				"use specific origins in production for better security")
		}
	}

	s.Auth.validate(result)
	if impersonation.Enabled && !s.Auth.OIDCEnabled && !s.Auth.JWTEnabled() {
		result.fail("neo4j.impersonation.enabled", "impersonation requires token authentication",
			"configure server.auth.jwt_secret or server.auth.oidc_enabled")
	}

	if s.Admin.SchemaReloadEnabled && s.Admin.AuthToken == "" && !s.Auth.OIDCEnabled && !s.Auth.JWTEnabled() {
		result.fail("server.admin.auth_token", "admin endpoint requires an auth token or token authentication",
			"set server.admin.auth_token or configure server.auth")
	}
}

func (a *AuthConfig) validate(result *ValidationResult) {
	if a.OIDCEnabled && a.JWTEnabled() {
		result.fail("server.auth.jwt_secret", "jwt_secret and oidc_enabled are mutually exclusive", "")
	}
	if a.JWTEnabled() && len(a.JWTSecret) < 32 {
		result.warn("server.auth.jwt_secret", "jwt_secret is shorter than 32 bytes",
			"use a longer random secret for HS256")
	}
	if a.OIDCEnabled {
		if a.OIDCIssuerURL == "" {
			result.fail("server.auth.oidc_issuer_url", "issuer URL is required when OIDC is enabled", "")
		}
		if a.OIDCAudience == "" {
			result.fail("server.auth.oidc_audience", "audience is required when OIDC is enabled", "")
		}
	}
	if a.RequireToken && !a.OIDCEnabled && !a.JWTEnabled() {
		result.fail("server.auth.require_token", "require_token needs a token verifier",
			"configure server.auth.jwt_secret or server.auth.oidc_enabled")
	}
	for _, header := range a.ContextHeaders {
		if strings.TrimSpace(header) == "" {
			result.fail("server.auth.context_headers", "header name cannot be empty", "")
		}
	}
}

func (e *EventsConfig) validate(result *ValidationResult) {
	if !e.Enabled {
		return
	}
	if strings.TrimSpace(e.NATSURL) == "" {
		result.fail("events.nats_url", "nats_url is required when events are enabled", "")
	}
	prefix := strings.TrimSpace(e.SubjectPrefix)
	if strings.ContainsAny(prefix, " *>") {
		result.fail("events.subject_prefix", fmt.Sprintf("invalid subject prefix %q", e.SubjectPrefix),
			"subject prefixes cannot contain spaces or wildcards")
	}
}

var pascalCaseTypePattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	for typeName, plural := range cfg.PluralOverrides {
		if !pascalCaseTypePattern.MatchString(strings.TrimSpace(typeName)) {
			result.fail("naming.plural_overrides", fmt.Sprintf("type name %q must be PascalCase", typeName), "")
			continue
		}
		if strings.TrimSpace(plural) == "" {
			result.fail("naming.plural_overrides", fmt.Sprintf("plural override for type %q cannot be empty", typeName), "")
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	if _, ok := logging.ParseLevel(o.Logging.Level); !ok {
		result.fail("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level),
			"valid values are: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.fail("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format),
			"valid values are: json, text")
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.fail("observability.trace_sample_ratio", "trace_sample_ratio must be between 0.0 and 1.0", "")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.fail(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			"valid values are: grpc, http/protobuf")
	}
	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.fail(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
			"use host:port or a full URL")
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.fail(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			"valid values are: none, gzip")
	}
	if o.RetryMaxAttempts < 0 {
		result.fail(prefix+".retry_max_attempts", "retry_max_attempts cannot be negative", "")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
