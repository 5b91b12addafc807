package serverapp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"neo4j-graphql/internal/config"
	"neo4j-graphql/internal/engine"
	"neo4j-graphql/internal/middleware"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type flakyChecker struct {
	failures int
	calls    int
}

func (f *flakyChecker) VerifyConnectivity(context.Context) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestWaitForNeo4j(t *testing.T) {
	t.Run("retries until reachable", func(t *testing.T) {
		cfg := &config.Config{Neo4j: config.Neo4jConfig{
			ConnectionTimeout:       time.Second,
			ConnectionRetryInterval: time.Millisecond,
		}}
		checker := &flakyChecker{failures: 2}
		require.NoError(t, waitForNeo4j(context.Background(), cfg, testLogger(), checker))
		assert.Equal(t, 3, checker.calls)
	})

	t.Run("single attempt without timeout", func(t *testing.T) {
		cfg := &config.Config{}
		checker := &flakyChecker{failures: 1}
		require.Error(t, waitForNeo4j(context.Background(), cfg, testLogger(), checker))
		assert.Equal(t, 1, checker.calls)
	})

	t.Run("gives up after the timeout", func(t *testing.T) {
		cfg := &config.Config{Neo4j: config.Neo4jConfig{
			ConnectionTimeout:       5 * time.Millisecond,
			ConnectionRetryInterval: 2 * time.Millisecond,
		}}
		checker := &flakyChecker{failures: 1 << 20}
		err := waitForNeo4j(context.Background(), cfg, testLogger(), checker)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "neo4j not available")
	})

	t.Run("honors cancellation", func(t *testing.T) {
		cfg := &config.Config{Neo4j: config.Neo4jConfig{
			ConnectionTimeout:       time.Minute,
			ConnectionRetryInterval: time.Minute,
		}}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := waitForNeo4j(ctx, cfg, testLogger(), &flakyChecker{failures: 1})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBuildTokenVerifier(t *testing.T) {
	t.Run("none configured", func(t *testing.T) {
		verifier, err := buildTokenVerifier(context.Background(), &config.Config{})
		require.NoError(t, err)
		assert.Nil(t, verifier)
	})

	t.Run("shared secret", func(t *testing.T) {
		cfg := &config.Config{Server: config.ServerConfig{Auth: config.AuthConfig{
			JWTSecret: strings.Repeat("k", 32),
		}}}
		verifier, err := buildTokenVerifier(context.Background(), cfg)
		require.NoError(t, err)
		assert.IsType(t, &middleware.HS256Verifier{}, verifier)
	})

	t.Run("oidc issuer must be https", func(t *testing.T) {
		cfg := &config.Config{Server: config.ServerConfig{Auth: config.AuthConfig{
			OIDCEnabled:   true,
			OIDCIssuerURL: "http://issuer.example",
			OIDCAudience:  "neo4j-graphql",
		}}}
		verifier, err := buildTokenVerifier(context.Background(), cfg)
		require.Error(t, err)
		assert.Nil(t, verifier)
	})
}

func TestBuildAdminHandler(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		handler, err := buildAdminHandler(&config.Config{}, testLogger(), &stubReloader{}, nil, nil)
		require.NoError(t, err)
		assert.Nil(t, handler)
	})

	t.Run("enabled without any authentication", func(t *testing.T) {
		cfg := &config.Config{Server: config.ServerConfig{Admin: config.AdminConfig{SchemaReloadEnabled: true}}}
		_, err := buildAdminHandler(cfg, testLogger(), &stubReloader{}, nil, nil)
		require.Error(t, err)
	})

	t.Run("admin token", func(t *testing.T) {
		cfg := &config.Config{Server: config.ServerConfig{Admin: config.AdminConfig{
			SchemaReloadEnabled: true,
			AuthToken:           "s3cret",
		}}}
		reloader := &stubReloader{}
		handler, err := buildAdminHandler(cfg, testLogger(), reloader, nil, nil)
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/reload-schema", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		req := httptest.NewRequest(http.MethodPost, "/admin/reload-schema", nil)
		req.Header.Set("X-Admin-Token", "s3cret")
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, reloader.calls)
	})
}

func TestBuildRouter(t *testing.T) {
	graphql := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	admin := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	tests := []struct {
		name         string
		adminEnabled bool
		method       string
		path         string
		wantStatus   int
	}{
		{name: "graphql", method: http.MethodPost, path: "/graphql", wantStatus: http.StatusTeapot},
		{name: "root redirects", method: http.MethodGet, path: "/", wantStatus: http.StatusFound},
		{name: "unknown path", method: http.MethodGet, path: "/nope", wantStatus: http.StatusNotFound},
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "admin disabled", method: http.MethodPost, path: "/admin/reload-schema", wantStatus: http.StatusNotFound},
		{name: "admin enabled", adminEnabled: true, method: http.MethodPost, path: "/admin/reload-schema", wantStatus: http.StatusAccepted},
		{name: "metrics disabled", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Server: config.ServerConfig{Admin: config.AdminConfig{SchemaReloadEnabled: tt.adminEnabled}}}
			mux := buildRouter(cfg, testLogger(), stubChecker{}, stubSchema("fp"), graphql, admin, nil)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestNormalizeHTTPSpanRoute(t *testing.T) {
	tests := map[string]string{
		"/":                    "/",
		"/graphql":             "/graphql",
		"/health":              "/health",
		"/metrics":             "/metrics",
		"/admin/reload-schema": "/admin/reload-schema",
		"/graphql/extra":       "/*",
		"/wp-admin":            "/*",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, normalizeHTTPSpanRoute(in))
		})
	}
}

func TestWrapHTTPHandler_NamesRootSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})

	cfg := &config.Config{Observability: config.ObservabilityConfig{TracingEnabled: true}}
	handler := wrapHTTPHandler(cfg, testLogger(), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/secret/path"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "GET /health", spans[0].Name())
	assert.Equal(t, "GET /*", spans[1].Name())
}

func TestBuildGraphQLHandler(t *testing.T) {
	secret := strings.Repeat("k", 32)
	cfg := &config.Config{Server: config.ServerConfig{Auth: config.AuthConfig{
		JWTSecret:    secret,
		RequireToken: true,
	}}}
	verifier, err := buildTokenVerifier(context.Background(), cfg)
	require.NoError(t, err)

	exec := &stubExecutor{result: &engine.Result{Data: map[string]any{"movies": []any{}}}}
	handler := buildGraphQLHandler(cfg, testLogger(), exec, stubSchema("fp"), verifier, nil, nil)

	rec := postGraphQL(t, handler, `{"query":"{ movies { title } }"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, exec.ops)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	rec = postGraphQL(t, handler, `{"query":"{ movies { title } }"}`, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, exec.ops, 1)
	assert.JSONEq(t, `{"data":{"movies":[]}}`, rec.Body.String())
}
