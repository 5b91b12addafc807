package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"neo4j-graphql/internal/config"
	"neo4j-graphql/internal/dbexec"
	"neo4j-graphql/internal/engine"
	"neo4j-graphql/internal/events"
	"neo4j-graphql/internal/logging"
	"neo4j-graphql/internal/middleware"
	"neo4j-graphql/internal/mutation"
	"neo4j-graphql/internal/observability"
	"neo4j-graphql/internal/plan"
	"neo4j-graphql/internal/schemarefresh"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	neo4jconfig "github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
		OTLPConfig:     exporterConfig(logsConfig),
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info("OpenTelemetry logging initialized successfully")

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func exporterConfig(c config.OTLPConfig) observability.OTLPExporterConfig {
	return observability.OTLPExporterConfig{
		Endpoint:          c.Endpoint,
		Protocol:          c.Protocol,
		Insecure:          c.Insecure,
		TLSCertFile:       c.TLSCertFile,
		TLSClientCertFile: c.TLSClientCertFile,
		TLSClientKeyFile:  c.TLSClientKeyFile,
		Headers:           c.Headers,
		Timeout:           c.Timeout,
		Compression:       c.Compression,
		RetryEnabled:      c.RetryEnabled,
		RetryMaxAttempts:  c.RetryMaxAttempts,
	}
}

// metricSet groups the instruments created when metrics are enabled. Every
// field is nil otherwise.
type metricSet struct {
	provider      *observability.MeterProvider
	graphql       *observability.GraphQLMetrics
	engine        *observability.EngineMetrics
	schemaRefresh *observability.SchemaRefreshMetrics
	security      *observability.SecurityMetrics
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (metricSet, error) {
	if !cfg.Observability.MetricsEnabled {
		return metricSet{}, nil
	}

	logger.Info("initializing OpenTelemetry metrics",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
	)

	provider, err := observability.InitMeterProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
	})
	if err != nil {
		return metricSet{}, err
	}
	logger.Info("OpenTelemetry metrics initialized successfully")

	set := metricSet{provider: provider}
	if set.graphql, err = observability.InitMetrics(logger.Logger); err != nil {
		return metricSet{}, err
	}
	if set.engine, err = observability.InitEngineMetrics(logger.Logger); err != nil {
		return metricSet{}, err
	}
	if set.schemaRefresh, err = observability.InitSchemaRefreshMetrics(logger.Logger); err != nil {
		return metricSet{}, err
	}
	if set.security, err = observability.InitSecurityMetrics(); err != nil {
		return metricSet{}, err
	}
	logger.Info("security metrics initialized")

	return set, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Bool("insecure", tracesConfig.Insecure),
	)

	tracerProvider, err := observability.InitTracerProvider(observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig:       exporterConfig(tracesConfig),
	})
	if err != nil {
		return nil, err
	}

	logger.Info("OpenTelemetry tracing initialized successfully")

	return tracerProvider, nil
}

func connectNeo4j(cfg *config.Config) (neo4j.DriverWithContext, error) {
	return neo4j.NewDriverWithContext(
		cfg.Neo4j.URI,
		neo4j.BasicAuth(cfg.Neo4j.Username, cfg.Neo4j.Password, ""),
		func(c *neo4jconfig.Config) {
			if cfg.Neo4j.MaxConnectionPoolSize > 0 {
				c.MaxConnectionPoolSize = cfg.Neo4j.MaxConnectionPoolSize
			}
			if cfg.Neo4j.ConnectionAcquisitionTimeout > 0 {
				c.ConnectionAcquisitionTimeout = cfg.Neo4j.ConnectionAcquisitionTimeout
			}
			c.UserAgent = "neo4j-graphql/" + cfg.Observability.ServiceVersion
		},
	)
}

// connectivityChecker is the part of the driver used for readiness checks.
type connectivityChecker interface {
	VerifyConnectivity(ctx context.Context) error
}

func waitForNeo4j(ctx context.Context, cfg *config.Config, logger *logging.Logger, driver connectivityChecker) error {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := cfg.Neo4j.ConnectionTimeout
	interval := cfg.Neo4j.ConnectionRetryInterval

	if timeout == 0 {
		return driver.VerifyConnectivity(ctx)
	}

	deadline := time.Now().Add(timeout)
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++
		err := driver.VerifyConnectivity(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("neo4j connection established", slog.Int("attempts", attempt))
			}
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("neo4j not available after %v: %w", timeout, err)
		}

		logger.Warn("neo4j not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		// Exponential backoff, capped at 30s
		interval = min(interval*2, 30*time.Second)
	}
}

func buildExecutor(cfg *config.Config, driver neo4j.DriverWithContext) dbexec.Executor {
	execCfg := dbexec.DriverExecutorConfig{
		Driver:       driver,
		DatabaseName: cfg.Neo4j.Database,
	}
	if cfg.Neo4j.Impersonation.Enabled {
		execCfg.UserFromCtx = middleware.ImpersonatedUserFromContext
		execCfg.AllowedUsers = cfg.Neo4j.Impersonation.AllowedUsers
		execCfg.ValidateUser = len(cfg.Neo4j.Impersonation.AllowedUsers) > 0
	}
	return dbexec.NewDriverExecutor(execCfg)
}

func connectEvents(cfg *config.Config, logger *logging.Logger) (events.Sink, *nats.Conn, error) {
	if !cfg.Events.Enabled {
		return nil, nil, nil
	}
	conn, err := events.Connect(cfg.Events.NATSURL, cfg.Observability.ServiceName)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("change events enabled",
		slog.String("nats_url", conn.ConnectedUrlRedacted()),
		slog.String("subject_prefix", cfg.Events.SubjectPrefix),
	)
	return events.NewNATSSink(conn, cfg.Events.SubjectPrefix), conn, nil
}

func startSchemaManager(ctx context.Context, cfg *config.Config, logger *logging.Logger, callbacks []string, metrics *observability.SchemaRefreshMetrics) (*schemarefresh.Manager, context.CancelFunc, error) {
	manager, err := schemarefresh.NewManager(ctx, schemarefresh.Config{
		TypeDefsFile: cfg.Schema.TypeDefsFile,
		Naming:       cfg.Naming,
		Callbacks:    callbacks,
		Logger:       logger,
		Metrics:      metrics,
		MinInterval:  cfg.Schema.RefreshMinInterval,
		MaxInterval:  cfg.Schema.RefreshMaxInterval,
	})
	if err != nil {
		return nil, nil, err
	}

	schemaCtx, schemaCancel := context.WithCancel(context.Background())
	manager.Start(schemaCtx)

	return manager, schemaCancel, nil
}

func buildEngine(cfg *config.Config, logger *logging.Logger, models engine.ModelSource, executor dbexec.Executor, sink events.Sink, callbacks map[string]mutation.Callback, metrics *observability.EngineMetrics) (*engine.Engine, error) {
	return engine.New(engine.Config{
		Models:    models,
		Executor:  executor,
		Sink:      sink,
		Callbacks: callbacks,
		Limits: plan.Limits{
			DefaultLimit: cfg.Schema.DefaultLimit,
			MaxLimit:     cfg.Schema.MaxLimit,
			MaxDepth:     cfg.Schema.MaxDepth,
		},
		Logger:  logger,
		Metrics: metrics,
	})
}

func buildTokenVerifier(ctx context.Context, cfg *config.Config) (middleware.TokenVerifier, error) {
	auth := cfg.Server.Auth
	switch {
	case auth.OIDCEnabled:
		verifier, err := middleware.NewOIDCVerifier(ctx, middleware.OIDCAuthConfig{
			IssuerURL: auth.OIDCIssuerURL,
			Audience:  auth.OIDCAudience,
			ClockSkew: auth.OIDCClockSkew,
			CAFile:    auth.OIDCCAFile,
		})
		if err != nil {
			return nil, err
		}
		return verifier, nil
	case auth.JWTEnabled():
		verifier, err := middleware.NewHS256Verifier(middleware.HS256Config{
			Secret:   []byte(auth.JWTSecret),
			Issuer:   auth.JWTIssuer,
			Audience: auth.JWTAudience,
			Leeway:   auth.OIDCClockSkew,
		})
		if err != nil {
			return nil, err
		}
		return verifier, nil
	default:
		return nil, nil
	}
}

func buildGraphQLHandler(cfg *config.Config, logger *logging.Logger, exec operationExecutor, schema middleware.FingerprintSource, verifier middleware.TokenVerifier, graphqlMetrics *observability.GraphQLMetrics, securityMetrics *observability.SecurityMetrics) http.Handler {
	var handler http.Handler = graphqlHandler(exec)

	handler = middleware.GraphQLTracingMiddleware()(handler)
	if cfg.Observability.MetricsEnabled && graphqlMetrics != nil {
		handler = middleware.GraphQLMetricsMiddleware(graphqlMetrics)(handler)
		logger.Info("GraphQL metrics middleware enabled")
	}

	// Analysis runs after impersonation so exec metadata names the database
	// user. The chain is:
	//   request -> logging -> auth -> impersonation -> analysis -> metrics -> tracing -> engine
	handler = middleware.GraphQLRequestAnalysisMiddleware(schema)(handler)
	if cfg.Neo4j.Impersonation.Enabled {
		handler = middleware.ImpersonationMiddleware(cfg.Neo4j.Impersonation.ClaimName, cfg.Neo4j.Impersonation.AllowedUsers, securityMetrics)(handler)
		logger.Info("impersonation middleware enabled", slog.String("claim", cfg.Neo4j.Impersonation.ClaimName))
	}

	handler = middleware.AuthMiddleware(middleware.AuthConfig{
		Verifier:       verifier,
		RequireToken:   cfg.Server.Auth.RequireToken,
		ContextHeaders: cfg.Server.Auth.ContextHeaders,
	}, logger, securityMetrics)(handler)
	if verifier == nil {
		logger.Warn("no token verifier configured - all GraphQL requests are anonymous")
	}

	return middleware.LoggingMiddleware(logger)(handler)
}

func buildAdminHandler(cfg *config.Config, logger *logging.Logger, reloader schemaReloader, verifier middleware.TokenVerifier, securityMetrics *observability.SecurityMetrics) (http.Handler, error) {
	if !cfg.Server.Admin.SchemaReloadEnabled {
		return nil, nil
	}

	var adminHandler http.Handler = schemaReloadHandler(reloader, securityMetrics)
	switch {
	case strings.TrimSpace(cfg.Server.Admin.AuthToken) != "":
		tokenMiddleware, err := middleware.AdminTokenAuthMiddleware(middleware.AdminTokenAuthConfig{
			Token:   cfg.Server.Admin.AuthToken,
			Metrics: securityMetrics,
		})
		if err != nil {
			return nil, err
		}
		adminHandler = tokenMiddleware(adminHandler)
		logger.Info("admin endpoints require the admin token")
	case verifier != nil:
		adminHandler = middleware.AuthMiddleware(middleware.AuthConfig{
			Verifier:     verifier,
			RequireToken: true,
		}, logger, securityMetrics)(adminHandler)
		logger.Info("admin endpoints require authentication")
	default:
		return nil, errors.New("schema reload endpoint requires an admin token or token authentication")
	}
	return middleware.LoggingMiddleware(logger)(adminHandler), nil
}

func buildRouter(cfg *config.Config, logger *logging.Logger, driver connectivityChecker, schema middleware.FingerprintSource, graphqlHandler http.Handler, adminHandler http.Handler, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/graphql", graphqlHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/graphql", http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})

	mux.HandleFunc("/health", healthHandler(driver, schema, cfg.Server.HealthCheckTimeout))
	if cfg.Server.Admin.SchemaReloadEnabled && adminHandler != nil {
		mux.Handle("/admin/reload-schema", adminHandler)
		logger.Info("schema reload endpoint enabled", slog.String("path", "/admin/reload-schema"))
	}

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}

	return mux
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	if cfg.Server.CORSEnabled {
		handler = middleware.CORSMiddleware(middleware.CORSConfig{
			Enabled:          cfg.Server.CORSEnabled,
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   cfg.Server.CORSAllowedMethods,
			AllowedHeaders:   cfg.Server.CORSAllowedHeaders,
			ExposeHeaders:    cfg.Server.CORSExposeHeaders,
			AllowCredentials: cfg.Server.CORSAllowCredentials,
			MaxAge:           cfg.Server.CORSMaxAge,
		})(handler)
	}

	if cfg.Server.RateLimitEnabled {
		handler = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Enabled: cfg.Server.RateLimitEnabled,
			RPS:     cfg.Server.RateLimitRPS,
			Burst:   cfg.Server.RateLimitBurst,
		})(handler)
	}

	return handler
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}

	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}

	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case "/", "/graphql", "/health", "/metrics", "/admin/reload-schema":
		return rawPath
	default:
		return "/*"
	}
}

func buildServer(cfg *config.Config, handler http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		logAttrs := []any{
			slog.String("address", serverAddr),
			slog.String("graphql_endpoint", "/graphql"),
			slog.String("health_endpoint", "/health"),
			slog.String("type_defs_file", cfg.Schema.TypeDefsFile),
			slog.Int("max_depth", cfg.Schema.MaxDepth),
			slog.String("log_level", cfg.Observability.Logging.Level),
			slog.String("log_format", cfg.Observability.Logging.Format),
			slog.Bool("events_enabled", cfg.Events.Enabled),
		}

		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", "/metrics"))
		}

		if cfg.Server.RateLimitEnabled {
			logAttrs = append(logAttrs,
				slog.Float64("rate_limit_rps", cfg.Server.RateLimitRPS),
				slog.Int("rate_limit_burst", cfg.Server.RateLimitBurst),
			)
		}

		logger.Info("server starting", logAttrs...)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}
