package dbexec

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DriverExecutor executes statements in managed transactions of a Neo4j
// driver. When UserFromCtx yields a user, the session impersonates it so
// database-level privileges apply to the request.
type DriverExecutor struct {
	driver       neo4j.DriverWithContext
	databaseName string
	userFromCtx  func(context.Context) (string, bool)
	allowedUsers map[string]struct{}
	validateUser bool
	tracer       trace.Tracer
}

// DriverExecutorConfig controls driver execution behavior.
type DriverExecutorConfig struct {
	Driver       neo4j.DriverWithContext
	DatabaseName string
	UserFromCtx  func(context.Context) (string, bool)
	AllowedUsers []string
	ValidateUser bool
}

// NewDriverExecutor creates an executor over a shared driver.
func NewDriverExecutor(cfg DriverExecutorConfig) *DriverExecutor {
	allowed := make(map[string]struct{}, len(cfg.AllowedUsers))
	for _, user := range cfg.AllowedUsers {
		allowed[user] = struct{}{}
	}
	return &DriverExecutor{
		driver:       cfg.Driver,
		databaseName: cfg.DatabaseName,
		userFromCtx:  cfg.UserFromCtx,
		allowedUsers: allowed,
		validateUser: cfg.ValidateUser,
		tracer:       otel.Tracer("neo4j-graphql/dbexec"),
	}
}

// Execute runs req in a read or write transaction and collects every record.
func (e *DriverExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	if e.driver == nil {
		return nil, ErrNoDriver
	}
	session, err := e.session(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = session.Close(context.Background())
	}()

	ctx, span := e.tracer.Start(ctx, "neo4j.execute", trace.WithAttributes(
		attribute.String("db.system", "neo4j"),
		attribute.String("db.namespace", e.databaseName),
		attribute.String("db.neo4j.access_mode", req.Mode.String()),
	))
	defer span.End()

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, req.Statement, req.Params)
		if err != nil {
			return nil, err
		}
		collected, err := records.Collect(ctx)
		if err != nil {
			return nil, err
		}
		summary, err := records.Consume(ctx)
		if err != nil {
			return nil, err
		}
		result := &Result{Records: make([]map[string]any, len(collected))}
		for i, rec := range collected {
			result.Records[i] = rec.AsMap()
		}
		c := summary.Counters()
		result.Counters = Counters{
			NodesCreated:         c.NodesCreated(),
			NodesDeleted:         c.NodesDeleted(),
			RelationshipsCreated: c.RelationshipsCreated(),
			RelationshipsDeleted: c.RelationshipsDeleted(),
			PropertiesSet:        c.PropertiesSet(),
		}
		return result, nil
	}

	var out any
	if req.Mode == AccessWrite {
		out, err = session.ExecuteWrite(ctx, work)
	} else {
		out, err = session.ExecuteRead(ctx, work)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	result := out.(*Result)
	if raw := neo4j.BookmarksToRawValues(session.LastBookmarks()); len(raw) > 0 {
		result.Bookmark = raw[len(raw)-1]
	}
	span.SetAttributes(attribute.Int("db.response.returned_rows", len(result.Records)))
	return result, nil
}

func (e *DriverExecutor) session(ctx context.Context, req Request) (neo4j.SessionWithContext, error) {
	cfg := neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: e.databaseName,
		Bookmarks:    neo4j.BookmarksFromRawValues(req.Bookmarks...),
	}
	if req.Mode == AccessWrite {
		cfg.AccessMode = neo4j.AccessModeWrite
	}
	if e.userFromCtx != nil {
		user, ok := e.userFromCtx(ctx)
		if ok && user != "" {
			if e.validateUser {
				if _, allowed := e.allowedUsers[user]; !allowed {
					return nil, fmt.Errorf("impersonated user not allowed: %s", user)
				}
			}
			cfg.ImpersonatedUser = user
		}
	}
	return e.driver.NewSession(ctx, cfg), nil
}
