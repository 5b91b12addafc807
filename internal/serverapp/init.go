package serverapp

import (
	"context"
	"fmt"
	"log/slog"
)

// Init initializes all runtime resources. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	m, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if m.provider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return m.provider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	a.logger.Info("connecting to Neo4j",
		slog.String("uri", a.cfg.Neo4j.URI),
		slog.String("username", a.cfg.Neo4j.Username),
		slog.String("database", a.cfg.Neo4j.Database),
	)
	driver, err := connectNeo4j(a.cfg)
	if err != nil {
		return fmt.Errorf("failed to create Neo4j driver: %w", err)
	}
	cleanup.push("neo4j driver", driver.Close)

	if err := waitForNeo4j(ctx, a.cfg, a.logger, driver); err != nil {
		return fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}

	sink, natsConn, err := connectEvents(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect event sink: %w", err)
	}
	if natsConn != nil {
		cleanup.push("NATS connection", func(_ context.Context) error {
			return natsConn.Drain()
		})
	}

	callbacks, err := resolveCallbacks(a.cfg.Schema.Callbacks)
	if err != nil {
		return fmt.Errorf("failed to resolve schema callbacks: %w", err)
	}

	manager, schemaCancel, err := startSchemaManager(ctx, a.cfg, a.logger, callbackNames(callbacks), m.schemaRefresh)
	if err != nil {
		return fmt.Errorf("failed to initialize schema refresh manager: %w", err)
	}
	cleanup.push("schema manager", func(shutdownCtx context.Context) error {
		schemaCancel()
		return manager.Wait(shutdownCtx)
	})

	eng, err := buildEngine(a.cfg, a.logger, manager, buildExecutor(a.cfg, driver), sink, callbacks, m.engine)
	if err != nil {
		return fmt.Errorf("failed to initialize GraphQL engine: %w", err)
	}

	verifier, err := buildTokenVerifier(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize token verification: %w", err)
	}

	graphqlHandler := buildGraphQLHandler(a.cfg, a.logger, eng, manager, verifier, m.graphql, m.security)

	adminHandler, err := buildAdminHandler(a.cfg, a.logger, manager, verifier, m.security)
	if err != nil {
		return fmt.Errorf("failed to initialize admin handler: %w", err)
	}

	mux := buildRouter(a.cfg, a.logger, driver, manager, graphqlHandler, adminHandler, m.provider)
	handler := wrapHTTPHandler(a.cfg, a.logger, mux)

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := buildServer(a.cfg, handler, serverAddr)
	cleanup.push("HTTP server", func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})

	a.stateMu.Lock()
	a.meterProvider = m.provider
	a.graphqlMetrics = m.graphql
	a.engineMetrics = m.engine
	a.schemaRefreshMetrics = m.schemaRefresh
	a.securityMetrics = m.security
	a.tracerProvider = tracerProvider
	a.driver = driver
	a.natsConn = natsConn
	a.manager = manager
	a.schemaCancel = schemaCancel
	a.engine = eng
	a.graphqlHandler = graphqlHandler
	a.adminHandler = adminHandler
	a.mux = mux
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
