// Package events carries the change events a mutation statement reports and
// delivers them to a sink.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Event is one change made by a mutation. Node events carry old and new
// properties; relationship events carry from, to and relationship.
type Event struct {
	ID               string         `json:"id"`
	Event            string         `json:"event"`
	Typename         string         `json:"typename"`
	RelationshipName string         `json:"relationshipName,omitempty"`
	ToTypename       string         `json:"toTypename,omitempty"`
	Properties       map[string]any `json:"properties"`
	Timestamp        int64          `json:"timestamp"`
}

// Relationship reports whether the event describes an edge change.
func (e Event) Relationship() bool {
	return e.RelationshipName != ""
}

// Sink receives the events of committed mutations.
type Sink interface {
	Publish(ctx context.Context, events []Event) error
}

// Decode converts the raw event list of a statement result. Database values
// are converted to JSON friendly forms. Every event of one statement shares
// the timestamp at.
func Decode(raw any, at time.Time) ([]Event, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("events: expected a list, got %T", raw)
	}
	out := make([]Event, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("events: item %d: expected a map, got %T", i, item)
		}
		ev := Event{
			ID:        uuid.NewString(),
			Timestamp: at.UnixMilli(),
		}
		ev.Event, _ = m["event"].(string)
		ev.Typename, _ = m["typename"].(string)
		ev.RelationshipName, _ = m["relationshipName"].(string)
		ev.ToTypename, _ = m["toTypename"].(string)
		if ev.Event == "" || ev.Typename == "" {
			return nil, fmt.Errorf("events: item %d: missing event or typename", i)
		}
		props, _ := m["properties"].(map[string]any)
		ev.Properties = make(map[string]any, len(props))
		for key, value := range props {
			ev.Properties[key] = plain(value)
		}
		out = append(out, ev)
	}
	return out, nil
}

func plain(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = plain(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = plain(item)
		}
		return out
	case dbtype.Node:
		return plain(v.Props)
	case dbtype.Relationship:
		return plain(v.Props)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case dbtype.Date, dbtype.LocalTime, dbtype.Time, dbtype.LocalDateTime, dbtype.Duration, dbtype.Point2D, dbtype.Point3D:
		return v.(fmt.Stringer).String()
	}
	return value
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish appends events.
func (r *Recorder) Publish(_ context.Context, events []Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
