package serverapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"neo4j-graphql/internal/auth"
	"neo4j-graphql/internal/engine"
	"neo4j-graphql/internal/gqlrequest"
	"neo4j-graphql/internal/logging"
	"neo4j-graphql/internal/middleware"
	"neo4j-graphql/internal/observability"
	"neo4j-graphql/internal/validation"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// operationExecutor runs parsed operations; *engine.Engine implements it.
type operationExecutor interface {
	Execute(ctx context.Context, op engine.Operation) *engine.Result
}

// schemaReloader rebuilds the schema model on demand.
type schemaReloader interface {
	Reload(ctx context.Context) error
}

type graphQLResponse struct {
	Data   map[string]any `json:"data"`
	Errors []graphQLError `json:"errors,omitempty"`
}

type graphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// graphqlHandler executes the analyzed request. Request level failures
// (decode, parse, operation selection) return 400 without data; root field
// failures return 200 with a null entry and an error per field.
func graphqlHandler(exec operationExecutor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET, POST")
			writeRequestError(w, http.StatusMethodNotAllowed, "method not allowed", "METHOD_NOT_ALLOWED")
			return
		}

		ctx := r.Context()
		analysis := gqlrequest.AnalysisFromContext(ctx)
		if analysis == nil {
			analysis = gqlrequest.AnalyzeRequest(r)
		}

		switch {
		case analysis.DecodeError != nil:
			writeRequestError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		case strings.TrimSpace(analysis.Envelope.Query) == "":
			writeRequestError(w, http.StatusBadRequest, "query is required", "BAD_REQUEST")
			return
		case analysis.ParseError != nil:
			writeRequestError(w, http.StatusBadRequest, analysis.ParseError.Error(), "GRAPHQL_PARSE_FAILED")
			return
		case analysis.SelectionError != nil:
			writeRequestError(w, http.StatusBadRequest, analysis.SelectionError.Error(), "GRAPHQL_VALIDATION_FAILED")
			return
		}

		var kind engine.OperationKind
		switch analysis.OperationType {
		case "query":
			kind = engine.KindQuery
		case "mutation":
			if r.Method != http.MethodPost {
				w.Header().Set("Allow", "POST")
				writeRequestError(w, http.StatusMethodNotAllowed, "mutations require POST", "METHOD_NOT_ALLOWED")
				return
			}
			kind = engine.KindMutation
		default:
			writeRequestError(w, http.StatusBadRequest, fmt.Sprintf("%s operations are not supported", analysis.OperationType), "GRAPHQL_VALIDATION_FAILED")
			return
		}

		fields, err := analysis.RootFields()
		if err != nil {
			writeRequestError(w, http.StatusBadRequest, err.Error(), "BAD_USER_INPUT")
			return
		}

		meta, ok := gqlrequest.ExecMetaFromContext(ctx)
		bookmarks := meta.Bookmarks
		if !ok {
			bookmarks = middleware.RequestBookmarks(r.Header)
		}

		result := exec.Execute(ctx, engine.Operation{
			Kind:      kind,
			Fields:    fields,
			Bookmarks: bookmarks,
		})

		resp := graphQLResponse{Data: result.Data}
		for _, fieldErr := range result.Errors {
			resp.Errors = append(resp.Errors, formatFieldError(fieldErr))
		}
		if len(resp.Errors) > 0 {
			logging.FromContext(ctx).Debug("operation completed with errors",
				slog.Int("errors", len(resp.Errors)),
				slog.String("first_error", resp.Errors[0].Message),
			)
		}

		if result.Bookmark != "" {
			w.Header().Set(middleware.BookmarkHeader, result.Bookmark)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func formatFieldError(fieldErr *engine.FieldError) graphQLError {
	out := graphQLError{
		Message:    fieldErr.Error(),
		Path:       []any{fieldErr.Field},
		Extensions: map[string]any{"code": errorCode(fieldErr.Err)},
	}
	var verr *validation.Error
	if errors.As(fieldErr.Err, &verr) && verr.Path != "" {
		out.Extensions["argumentPath"] = verr.Path
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(fieldErr.Err, &neoErr) {
		out.Extensions["neo4jCode"] = neoErr.Code
	}
	return out
}

// errorCode classifies a root field failure for extensions.code.
func errorCode(err error) string {
	var restrict *engine.RestrictError
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return "UNAUTHENTICATED"
	case errors.Is(err, auth.ErrForbidden):
		return "FORBIDDEN"
	case validation.Is(err):
		return "BAD_USER_INPUT"
	case errors.As(err, &restrict):
		return "DELETE_RESTRICTED"
	case errors.Is(err, engine.ErrNoModel):
		return "SCHEMA_UNAVAILABLE"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "TIMEOUT"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

func writeRequestError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, graphQLResponse{Errors: []graphQLError{{
		Message:    message,
		Extensions: map[string]any{"code": code},
	}}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// healthHandler returns an HTTP handler for health checks
func healthHandler(driver connectivityChecker, schema middleware.FingerprintSource, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())

		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if driver == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "neo4j": "unconfigured"})
			return
		}
		if err := driver.VerifyConnectivity(ctx); err != nil {
			reqLogger.Error("health check failed",
				slog.String("error", err.Error()),
				slog.String("check", "neo4j"),
			)
			// Generic message avoids leaking connection details.
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "neo4j": "failed"})
			return
		}

		body := map[string]string{"status": "healthy", "neo4j": "ok"}
		if schema != nil {
			body["schema"] = schema.Fingerprint()
		}
		reqLogger.Debug("health check passed")
		writeJSON(w, http.StatusOK, body)
	}
}

func schemaReloadHandler(reloader schemaReloader, securityMetrics *observability.SecurityMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())

		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		authCtx, authenticated := middleware.AuthFromContext(r.Context())
		logAttrs := []any{
			slog.String("operation", "schema_reload"),
			slog.String("remote_addr", r.RemoteAddr),
			slog.Bool("authenticated", authenticated),
		}
		if authenticated {
			logAttrs = append(logAttrs,
				slog.String("authenticated_user", authCtx.Subject),
				slog.String("issuer", authCtx.Issuer),
			)
		}
		reqLogger.Info("admin endpoint accessed", logAttrs...)

		reloadCtx, reloadCancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer reloadCancel()

		if err := reloader.Reload(reloadCtx); err != nil {
			if securityMetrics != nil {
				securityMetrics.RecordAdminRequest(r.Context(), "schema_reload", authenticated, false)
			}
			reqLogger.Error("schema reload failed", slog.String("error", err.Error()))
			// The previous model stays active; details go to the log only.
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"status": "error", "message": "schema reload failed"})
			return
		}

		if securityMetrics != nil {
			securityMetrics.RecordAdminRequest(r.Context(), "schema_reload", authenticated, true)
		}
		reqLogger.Info("schema reloaded successfully", logAttrs...)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
