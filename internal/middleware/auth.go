package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"neo4j-graphql/internal/auth"
	"neo4j-graphql/internal/logging"
	"neo4j-graphql/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type authContextKey struct{}

// AuthContext carries validated JWT claims.
type AuthContext struct {
	Subject  string
	Issuer   string
	Audience []string
	Claims   map[string]interface{}
}

// WithAuthContext attaches verified claims to ctx.
func WithAuthContext(ctx context.Context, authCtx AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, authCtx)
}

// AuthFromContext returns the auth context from a request context.
func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return AuthContext{}, false
	}
	authCtx, ok := value.(AuthContext)
	return authCtx, ok
}

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (map[string]interface{}, error)
}

// AuthConfig controls bearer token handling for GraphQL requests.
type AuthConfig struct {
	// Verifier validates tokens; nil leaves every request anonymous.
	Verifier TokenVerifier
	// RequireToken rejects requests that carry no bearer token.
	RequireToken bool
	// ContextHeaders are copied into $context.headers under lower-case names.
	ContextHeaders []string
}

// AuthMiddleware verifies bearer tokens and stores the authorization view of
// the request for the engine. Requests without a token proceed anonymously
// unless RequireToken is set; requests with an invalid token are rejected.
func AuthMiddleware(cfg AuthConfig, logger *logging.Logger, metrics *observability.SecurityMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			endpoint := r.URL.Path
			values := contextValues(r, cfg.ContextHeaders)

			tokenString := bearerToken(r.Header.Get("Authorization"))
			if tokenString == "" || cfg.Verifier == nil {
				if cfg.RequireToken {
					if metrics != nil {
						metrics.RecordAuth(r.Context(), endpoint, observability.AuthMissingToken, "")
					}
					if logger != nil {
						logging.FromContext(r.Context()).Warn("authentication failed: missing bearer token",
							slog.String("endpoint", endpoint),
							slog.String("remote_addr", r.RemoteAddr),
						)
					}
					writeUnauthorized(w, "missing bearer token")
					return
				}
				if metrics != nil {
					metrics.RecordAuth(r.Context(), endpoint, observability.AuthAnonymous, "")
				}
				ctx := auth.WithContext(r.Context(), &auth.Context{Values: values})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			claims, err := cfg.Verifier.Verify(r.Context(), tokenString)
			if err != nil {
				if metrics != nil {
					metrics.RecordAuth(r.Context(), endpoint, observability.AuthInvalidToken, "")
				}
				if logger != nil {
					logging.FromContext(r.Context()).Warn("token validation failed",
						slog.String("error", err.Error()),
						slog.String("endpoint", endpoint),
						slog.String("remote_addr", r.RemoteAddr),
					)
				}
				writeUnauthorized(w, "invalid token")
				return
			}

			subject, _ := claims["sub"].(string)
			issuer, _ := claims["iss"].(string)
			aud := extractAudience(claims)

			if metrics != nil {
				metrics.RecordAuth(r.Context(), endpoint, observability.AuthVerified, issuer)
			}
			if logger != nil {
				logging.FromContext(r.Context()).Debug("authentication successful",
					slog.String("subject", subject),
					slog.String("issuer", issuer),
					slog.String("endpoint", endpoint),
				)
			}

			if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
				span.SetAttributes(
					attribute.String("auth.subject", subject),
					attribute.String("auth.issuer", issuer),
					attribute.Bool("auth.authenticated", true),
				)
				if len(aud) > 0 {
					span.SetAttributes(attribute.StringSlice("auth.audience", aud))
				}
			}

			ctx := WithAuthContext(r.Context(), AuthContext{
				Subject:  subject,
				Issuer:   issuer,
				Audience: aud,
				Claims:   claims,
			})
			ctx = auth.WithContext(ctx, &auth.Context{JWT: claims, Values: values})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// contextValues builds the $context tree of a request.
func contextValues(r *http.Request, headers []string) map[string]any {
	values := map[string]any{}
	if requestID := logging.GetRequestID(r.Context()); requestID != "" {
		values["requestId"] = requestID
	}
	if len(headers) == 0 {
		return values
	}
	copied := make(map[string]any, len(headers))
	for _, name := range headers {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if value := r.Header.Get(name); value != "" {
			copied[strings.ToLower(name)] = value
		}
	}
	values["headers"] = copied
	return values
}

func bearerToken(value string) string {
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeGraphQLError(w, http.StatusUnauthorized, message, "UNAUTHENTICATED")
}

func writeGraphQLError(w http.ResponseWriter, status int, message string, code string) {
	payload := map[string]any{
		"errors": []map[string]any{
			{
				"message": message,
				"extensions": map[string]any{
					"code": code,
				},
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func validateTimeClaims(claims map[string]interface{}, skew time.Duration) error {
	if skew <= 0 {
		return nil
	}

	now := time.Now()
	if exp, ok := numericDate(claims["exp"]); ok {
		if now.After(exp.Add(skew)) {
			return errors.New("token expired")
		}
	}
	if nbf, ok := numericDate(claims["nbf"]); ok {
		if now.Add(skew).Before(nbf) {
			return errors.New("token not valid yet")
		}
	}
	return nil
}

func numericDate(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	case int:
		return time.Unix(int64(v), 0), true
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(parsed, 0), true
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(parsed, 0), true
	default:
		return time.Time{}, false
	}
}

func extractAudience(claims map[string]interface{}) []string {
	raw, ok := claims["aud"]
	if !ok {
		return nil
	}

	switch val := raw.(type) {
	case string:
		return []string{val}
	case []string:
		return val
	case []interface{}:
		result := make([]string, 0, len(val))
		for _, item := range val {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	default:
		return nil
	}
}
