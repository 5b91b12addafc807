package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AuthOutcome labels how the auth middleware settled a request.
type AuthOutcome string

const (
	AuthAnonymous         AuthOutcome = "anonymous"
	AuthVerified          AuthOutcome = "verified"
	AuthMissingToken      AuthOutcome = "missing_token"
	AuthInvalidToken      AuthOutcome = "invalid_token"
	AuthInvalidAdminToken AuthOutcome = "invalid_admin_token"
)

// ImpersonationOutcome labels the result of resolving the database user a
// request runs as.
type ImpersonationOutcome string

const (
	ImpersonationGranted      ImpersonationOutcome = "granted"
	ImpersonationMissingClaim ImpersonationOutcome = "missing_claim"
	ImpersonationInvalidClaim ImpersonationOutcome = "invalid_claim"
	ImpersonationDenied       ImpersonationOutcome = "denied"
)

// SecurityMetrics counts request authentication, database user
// impersonation and admin endpoint use.
type SecurityMetrics struct {
	auth          metric.Int64Counter
	impersonation metric.Int64Counter
	admin         metric.Int64Counter
}

// InitSecurityMetrics registers the security counters on the global meter
// provider.
func InitSecurityMetrics() (*SecurityMetrics, error) {
	return NewSecurityMetrics(otel.Meter("neo4j-graphql/security"))
}

// NewSecurityMetrics registers the security counters on meter.
func NewSecurityMetrics(meter metric.Meter) (*SecurityMetrics, error) {
	m := &SecurityMetrics{}
	counters := []struct {
		target      *metric.Int64Counter
		name        string
		description string
	}{
		{&m.auth, "security.auth.total", "Requests seen by the auth middleware, by outcome"},
		{&m.impersonation, "security.impersonation.total", "Database user impersonation decisions, by outcome"},
		{&m.admin, "security.admin.requests.total", "Admin endpoint requests, by operation and result"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.description))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.target = counter
	}
	return m, nil
}

// RecordAuth records one auth decision. issuer is empty unless a token was
// verified.
func (m *SecurityMetrics) RecordAuth(ctx context.Context, endpoint string, outcome AuthOutcome, issuer string) {
	attrs := []attribute.KeyValue{
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", string(outcome)),
	}
	if issuer != "" {
		attrs = append(attrs, attribute.String("issuer", issuer))
	}
	m.auth.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordImpersonation records whether a request could run as the database
// user named by its token.
func (m *SecurityMetrics) RecordImpersonation(ctx context.Context, outcome ImpersonationOutcome) {
	m.impersonation.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
}

// RecordAdminRequest records an admin operation such as a schema reload.
func (m *SecurityMetrics) RecordAdminRequest(ctx context.Context, operation string, authenticated, success bool) {
	m.admin.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("authenticated", authenticated),
		attribute.Bool("success", success),
	))
}
