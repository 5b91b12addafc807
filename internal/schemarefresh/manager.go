// Package schemarefresh builds schema model snapshots from the type
// definitions file and swaps them in when the file changes.
package schemarefresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"neo4j-graphql/internal/logging"
	"neo4j-graphql/internal/naming"
	"neo4j-graphql/internal/observability"
	"neo4j-graphql/internal/schema"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Snapshot contains an immutable view of the current schema state.
type Snapshot struct {
	Model       *schema.Model
	Source      string
	BuiltAt     time.Time
	Fingerprint string
}

// Config controls schema refresh behavior.
type Config struct {
	TypeDefsFile string
	Naming       naming.Config
	Callbacks    []string
	Logger       *logging.Logger
	Metrics      *observability.SchemaRefreshMetrics
	MinInterval  time.Duration
	MaxInterval  time.Duration
}

// Manager maintains and refreshes schema snapshots.
type Manager struct {
	typeDefsFile string
	namingConfig naming.Config
	callbacks    []string
	logger       *logging.Logger
	metrics      *observability.SchemaRefreshMetrics
	minInterval  time.Duration
	maxInterval  time.Duration

	active atomic.Pointer[Snapshot]
	// rejected is the fingerprint of the last file content that failed to build.
	rejected atomic.Value
	// mu serializes rebuilds between the poll loop and manual reloads.
	mu sync.Mutex
	wg sync.WaitGroup
}

// NewManager builds the initial snapshot and returns a manager. A startup
// build failure is fatal; later failures keep the previous snapshot.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.TypeDefsFile == "" {
		return nil, errors.New("schema refresh manager requires a type definitions file")
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.Logger{Logger: slog.Default()}
	}

	minInterval := cfg.MinInterval
	maxInterval := cfg.MaxInterval
	if maxInterval > 0 && maxInterval < minInterval {
		maxInterval = minInterval
	}

	manager := &Manager{
		typeDefsFile: cfg.TypeDefsFile,
		namingConfig: cfg.Naming,
		callbacks:    append([]string(nil), cfg.Callbacks...),
		logger:       cfg.Logger.WithFields(slog.String("component", "schema_refresh")),
		metrics:      cfg.Metrics,
		minInterval:  minInterval,
		maxInterval:  maxInterval,
	}

	start := time.Now()
	source, fingerprint, err := readTypeDefs(manager.typeDefsFile)
	if err != nil {
		manager.recordRefresh(ctx, "startup", observability.RefreshUnreadable, start, nil)
		return nil, err
	}
	snapshot, err := manager.buildSnapshot(ctx, source, fingerprint, "startup")
	if err != nil {
		manager.recordRefresh(ctx, "startup", observability.RefreshRejected, start, nil)
		return nil, err
	}
	manager.active.Store(snapshot)
	manager.recordRefresh(ctx, "startup", observability.RefreshSwapped, start, snapshot)
	manager.logger.Info("schema model built",
		slog.String("fingerprint", snapshot.Fingerprint),
		slog.Int("entities", len(snapshot.Model.Entities())),
	)

	return manager, nil
}

// Start begins the background refresh loop.
func (m *Manager) Start(ctx context.Context) {
	if m.minInterval <= 0 || m.maxInterval <= 0 {
		m.logger.Info("schema refresh disabled")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.refreshLoop(ctx)
	}()
}

// CurrentSnapshot returns the active schema snapshot.
func (m *Manager) CurrentSnapshot() *Snapshot {
	return m.active.Load()
}

// Model returns the active schema model.
func (m *Manager) Model() *schema.Model {
	if snapshot := m.active.Load(); snapshot != nil {
		return snapshot.Model
	}
	return nil
}

// Fingerprint returns the content hash of the active type definitions.
func (m *Manager) Fingerprint() string {
	if snapshot := m.active.Load(); snapshot != nil {
		return snapshot.Fingerprint
	}
	return ""
}

// Reload forces a rebuild from the type definitions file and swaps the result
// in. On failure the previous snapshot stays active and the error is returned.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	source, fingerprint, err := readTypeDefs(m.typeDefsFile)
	if err != nil {
		m.recordRefresh(ctx, "manual", observability.RefreshUnreadable, start, nil)
		return err
	}
	snapshot, err := m.buildSnapshot(ctx, source, fingerprint, "manual")
	if err != nil {
		m.rejected.Store(fingerprint)
		m.recordRefresh(ctx, "manual", observability.RefreshRejected, start, nil)
		return err
	}
	m.active.Store(snapshot)
	m.recordRefresh(ctx, "manual", observability.RefreshSwapped, start, snapshot)
	m.logger.Info("schema reloaded", slog.String("fingerprint", fingerprint))
	return nil
}

// Wait blocks until the refresh loop exits or the context is canceled.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refreshLoop(ctx context.Context) {
	interval := m.minInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("schema refresh stopped")
			return
		case <-timer.C:
			m.refreshOnce(ctx, &interval)
			timer.Reset(interval)
		}
	}
}

func (m *Manager) refreshOnce(ctx context.Context, interval *time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	source, fingerprint, err := readTypeDefs(m.typeDefsFile)
	if err != nil {
		m.logger.Warn("schema fingerprint check failed", slog.String("error", err.Error()))
		m.recordRefresh(ctx, "poll", observability.RefreshUnreadable, start, nil)
		*interval = m.minInterval
		return
	}

	if fingerprint == m.Fingerprint() || fingerprint == m.rejectedFingerprint() {
		m.recordRefresh(ctx, "poll", observability.RefreshUnchanged, start, nil)
		*interval = nextInterval(*interval, m.minInterval, m.maxInterval)
		return
	}

	m.logger.Info("schema change detected, rebuilding",
		slog.String("previous_fingerprint", m.Fingerprint()),
		slog.String("fingerprint", fingerprint),
	)
	snapshot, err := m.buildSnapshot(ctx, source, fingerprint, "poll")
	if err != nil {
		m.rejected.Store(fingerprint)
		m.logger.Error("failed to rebuild schema, keeping previous model", slog.String("error", err.Error()))
		m.recordRefresh(ctx, "poll", observability.RefreshRejected, start, nil)
		*interval = m.minInterval
		return
	}

	m.active.Store(snapshot)
	*interval = m.minInterval
	m.recordRefresh(ctx, "poll", observability.RefreshSwapped, start, snapshot)
	m.logger.Info("schema refresh complete", slog.String("fingerprint", snapshot.Fingerprint))
}

func (m *Manager) buildSnapshot(ctx context.Context, source, fingerprint, trigger string) (*Snapshot, error) {
	tracer := otel.Tracer("neo4j-graphql/schemarefresh")
	ctx, span := tracer.Start(ctx, "schema.build")
	defer span.End()
	span.SetAttributes(
		attribute.String("schema.trigger", trigger),
		attribute.String("schema.fingerprint", fingerprint),
	)

	model, err := BuildModel(ctx, BuildModelConfig{
		TypeDefs:  source,
		Naming:    m.namingConfig,
		Callbacks: m.callbacks,
		Logger:    m.logger.Logger,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "schema build failed")
		return nil, fmt.Errorf("%s: %w", m.typeDefsFile, err)
	}
	span.SetAttributes(attribute.Int("schema.entities", len(model.Entities())))

	return &Snapshot{
		Model:       model,
		Source:      source,
		BuiltAt:     time.Now(),
		Fingerprint: fingerprint,
	}, nil
}

func (m *Manager) rejectedFingerprint() string {
	value, _ := m.rejected.Load().(string)
	return value
}

func nextInterval(current, minInterval, maxInterval time.Duration) time.Duration {
	if current < minInterval {
		return minInterval
	}
	next := current + current/2
	if next > maxInterval {
		return maxInterval
	}
	return next
}

func (m *Manager) recordRefresh(ctx context.Context, trigger string, outcome observability.RefreshOutcome, start time.Time, snapshot *Snapshot) {
	if m.metrics == nil {
		return
	}
	entities := 0
	if snapshot != nil {
		entities = len(snapshot.Model.Entities())
	}
	m.metrics.RecordRefresh(ctx, trigger, outcome, time.Since(start), entities)
}
