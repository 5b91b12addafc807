package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"neo4j-graphql/internal/observability"
)

type impersonationContextKey struct{}

// WithImpersonatedUser attaches the database user a request runs as.
func WithImpersonatedUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, impersonationContextKey{}, user)
}

// ImpersonatedUserFromContext returns the database user for the request, if any.
func ImpersonatedUserFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(impersonationContextKey{}).(string)
	return user, ok && user != ""
}

// ImpersonationMiddleware reads the database user from a verified token
// claim. Requests must be authenticated; allowedUsers, when non-empty,
// restricts which users may be impersonated. metrics may be nil.
func ImpersonationMiddleware(claimName string, allowedUsers []string, metrics *observability.SecurityMetrics) func(http.Handler) http.Handler {
	if claimName == "" {
		claimName = "db_user"
	}

	allowed := make(map[string]struct{}, len(allowedUsers))
	for _, user := range allowedUsers {
		allowed[user] = struct{}{}
	}

	record := func(r *http.Request, outcome observability.ImpersonationOutcome) {
		if metrics != nil {
			metrics.RecordImpersonation(r.Context(), outcome)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, authenticated := AuthFromContext(r.Context())
			if !authenticated {
				writeGraphQLError(w, http.StatusUnauthorized, "missing authentication", "UNAUTHENTICATED")
				return
			}

			raw, ok := authCtx.Claims[claimName]
			if !ok {
				record(r, observability.ImpersonationMissingClaim)
				writeGraphQLError(w, http.StatusForbidden, fmt.Sprintf("missing %s claim", claimName), "FORBIDDEN")
				return
			}

			user, ok := raw.(string)
			if !ok || strings.TrimSpace(user) == "" {
				record(r, observability.ImpersonationInvalidClaim)
				writeGraphQLError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s claim", claimName), "BAD_REQUEST")
				return
			}

			if len(allowed) > 0 {
				if _, ok := allowed[user]; !ok {
					record(r, observability.ImpersonationDenied)
					writeGraphQLError(w, http.StatusForbidden, fmt.Sprintf("user %s may not be impersonated", user), "FORBIDDEN")
					return
				}
			}

			record(r, observability.ImpersonationGranted)
			next.ServeHTTP(w, r.WithContext(WithImpersonatedUser(r.Context(), user)))
		})
	}
}
