package middleware

import (
	"net/http"

	"neo4j-graphql/internal/gqlrequest"
	"neo4j-graphql/internal/logging"
	"neo4j-graphql/internal/observability"
)

// FingerprintSource reports the fingerprint of the type definitions in use.
type FingerprintSource interface {
	Fingerprint() string
}

// GraphQLRequestAnalysisMiddleware decodes and analyzes the GraphQL request once
// and stores derived metadata in request context for downstream middleware.
// It runs after auth and impersonation so the metadata names the database user.
func GraphQLRequestAnalysisMiddleware(schema FingerprintSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			analysis := gqlrequest.AnalyzeRequest(r)
			ctx := gqlrequest.WithAnalysis(r.Context(), analysis)

			meta := gqlrequest.ExecMeta{
				Bookmarks: RequestBookmarks(r.Header),
			}
			if user, ok := ImpersonatedUserFromContext(ctx); ok {
				meta.User = user
			}
			if schema != nil {
				meta.Fingerprint = schema.Fingerprint()
			}
			if analysis != nil {
				meta.OperationName = analysis.OperationName
				meta.OperationType = analysis.OperationType
				meta.OperationHash = analysis.OperationHash
			}
			ctx = gqlrequest.WithExecMeta(ctx, meta)

			logger := logging.FromContext(ctx)
			logFields := observability.GraphQLLogFields(ctx, analysis, meta)
			if len(logFields) > 0 {
				ctx = logging.WithLogger(ctx, logger.WithFields(logFields...))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
