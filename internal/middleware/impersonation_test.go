package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"neo4j-graphql/internal/observability"
)

// newTestSecurityMetrics returns security metrics backed by a manual reader.
func newTestSecurityMetrics(t *testing.T) (*observability.SecurityMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	metrics, err := observability.NewSecurityMetrics(provider.Meter("test"))
	require.NoError(t, err)
	return metrics, reader
}

// counterByAttr sums the named counter grouped by one string attribute.
func counterByAttr(t *testing.T, reader *sdkmetric.ManualReader, name, key string) map[string]int64 {
	t.Helper()
	rm := collectMetrics(t, reader)
	out := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is %T", name, m.Data)
			for _, dp := range sum.DataPoints {
				value, _ := dp.Attributes.Value(attribute.Key(key))
				out[value.AsString()] += dp.Value
			}
		}
	}
	return out
}

func TestImpersonationMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		claimName  string
		allowed    []string
		auth       *AuthContext
		wantStatus int
		wantUser   string
		wantBody   string
		wantMetric observability.ImpersonationOutcome
	}{
		{
			name:       "unauthenticated",
			wantStatus: http.StatusUnauthorized,
			wantBody:   "missing authentication",
		},
		{
			name:       "default claim",
			auth:       &AuthContext{Claims: map[string]interface{}{"db_user": "reader"}},
			wantStatus: http.StatusOK,
			wantUser:   "reader",
			wantMetric: observability.ImpersonationGranted,
		},
		{
			name:       "custom claim",
			claimName:  "neo4j_user",
			auth:       &AuthContext{Claims: map[string]interface{}{"neo4j_user": "writer"}},
			wantStatus: http.StatusOK,
			wantUser:   "writer",
			wantMetric: observability.ImpersonationGranted,
		},
		{
			name:       "missing claim",
			auth:       &AuthContext{Claims: map[string]interface{}{"sub": "alice"}},
			wantStatus: http.StatusForbidden,
			wantBody:   "missing db_user claim",
			wantMetric: observability.ImpersonationMissingClaim,
		},
		{
			name:       "non string claim",
			auth:       &AuthContext{Claims: map[string]interface{}{"db_user": 42.0}},
			wantStatus: http.StatusBadRequest,
			wantBody:   "invalid db_user claim",
			wantMetric: observability.ImpersonationInvalidClaim,
		},
		{
			name:       "blank claim",
			auth:       &AuthContext{Claims: map[string]interface{}{"db_user": "  "}},
			wantStatus: http.StatusBadRequest,
			wantBody:   "invalid db_user claim",
			wantMetric: observability.ImpersonationInvalidClaim,
		},
		{
			name:       "user not allowed",
			allowed:    []string{"reader"},
			auth:       &AuthContext{Claims: map[string]interface{}{"db_user": "admin"}},
			wantStatus: http.StatusForbidden,
			wantBody:   "user admin may not be impersonated",
			wantMetric: observability.ImpersonationDenied,
		},
		{
			name:       "user allowed",
			allowed:    []string{"reader", "writer"},
			auth:       &AuthContext{Claims: map[string]interface{}{"db_user": "writer"}},
			wantStatus: http.StatusOK,
			wantUser:   "writer",
			wantMetric: observability.ImpersonationGranted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser, _ = ImpersonatedUserFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/graphql", nil)
			if tt.auth != nil {
				req = req.WithContext(WithAuthContext(req.Context(), *tt.auth))
			}
			rec := httptest.NewRecorder()
			metrics, reader := newTestSecurityMetrics(t)
			ImpersonationMiddleware(tt.claimName, tt.allowed, metrics)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantUser, gotUser)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
			outcomes := counterByAttr(t, reader, "security.impersonation.total", "outcome")
			if tt.wantMetric == "" {
				assert.Empty(t, outcomes)
			} else {
				assert.Equal(t, map[string]int64{string(tt.wantMetric): 1}, outcomes)
			}
		})
	}
}

func TestImpersonatedUserFromContext_EmptyUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := ImpersonatedUserFromContext(WithImpersonatedUser(req.Context(), ""))
	assert.False(t, ok)
}
