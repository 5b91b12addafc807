package serverapp

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"neo4j-graphql/internal/config"
	"neo4j-graphql/internal/engine"
	"neo4j-graphql/internal/logging"
	"neo4j-graphql/internal/observability"
	"neo4j-graphql/internal/schemarefresh"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// App owns runtime resources for the neo4j-graphql server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	meterProvider        *observability.MeterProvider
	graphqlMetrics       *observability.GraphQLMetrics
	engineMetrics        *observability.EngineMetrics
	schemaRefreshMetrics *observability.SchemaRefreshMetrics
	securityMetrics      *observability.SecurityMetrics
	tracerProvider       *observability.TracerProvider

	driver   neo4j.DriverWithContext
	natsConn *nats.Conn

	manager      *schemarefresh.Manager
	schemaCancel context.CancelFunc
	engine       *engine.Engine

	graphqlHandler http.Handler
	adminHandler   http.Handler
	mux            *http.ServeMux
	handler        http.Handler

	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the fully wrapped HTTP handler once Init has completed.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}
