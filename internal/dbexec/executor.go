// Package dbexec provides statement execution abstractions.
// It supports direct execution against a Neo4j driver, optionally
// impersonating the user extracted from the request context.
package dbexec

import (
	"context"
	"errors"
)

// AccessMode routes a statement to readers or writers.
type AccessMode int

const (
	AccessRead AccessMode = iota
	AccessWrite
)

func (m AccessMode) String() string {
	if m == AccessWrite {
		return "write"
	}
	return "read"
}

// Request is one statement to run in its own transaction.
type Request struct {
	Statement string
	Params    map[string]any
	Mode      AccessMode
	// Bookmarks make the transaction observe earlier writes.
	Bookmarks []string
}

// Counters are the update statistics reported by the database.
type Counters struct {
	NodesCreated         int
	NodesDeleted         int
	RelationshipsCreated int
	RelationshipsDeleted int
	PropertiesSet        int
}

// Result holds the returned records keyed by column, the write counters
// and the bookmark of the committed transaction.
type Result struct {
	Records  []map[string]any
	Counters Counters
	Bookmark string
}

// Column returns the values of one column, in record order.
func (r *Result) Column(name string) []any {
	out := make([]any, 0, len(r.Records))
	for _, rec := range r.Records {
		out = append(out, rec[name])
	}
	return out
}

// Executor runs statements. Implementations must be safe for concurrent use.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// ErrNoDriver is returned when an executor has no database handle.
var ErrNoDriver = errors.New("dbexec: no database driver configured")
