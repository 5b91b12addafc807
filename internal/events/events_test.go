package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var at = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestDecode(t *testing.T) {
	raw := []any{
		map[string]any{
			"event":      "CREATE",
			"typename":   "Movie",
			"properties": map[string]any{"old": nil, "new": map[string]any{"title": "The Matrix", "released": dbtype.Date(time.Date(1999, 3, 31, 0, 0, 0, 0, time.UTC))}},
		},
		map[string]any{
			"event":            "CREATE_RELATIONSHIP",
			"typename":         "Movie",
			"relationshipName": "actors",
			"toTypename":       "Actor",
			"properties": map[string]any{
				"from":         map[string]any{"title": "The Matrix"},
				"to":           map[string]any{"name": "Keanu Reeves"},
				"relationship": map[string]any{"role": "Neo"},
			},
		},
	}

	events, err := Decode(raw, at)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "CREATE", events[0].Event)
	assert.Equal(t, "Movie", events[0].Typename)
	assert.False(t, events[0].Relationship())
	assert.Nil(t, events[0].Properties["old"])
	assert.Equal(t, "1999-03-31", events[0].Properties["new"].(map[string]any)["released"])
	assert.Equal(t, at.UnixMilli(), events[0].Timestamp)
	assert.NotEmpty(t, events[0].ID)

	assert.True(t, events[1].Relationship())
	assert.Equal(t, "Actor", events[1].ToTypename)
	assert.Equal(t, map[string]any{"role": "Neo"}, events[1].Properties["relationship"])
	assert.NotEqual(t, events[0].ID, events[1].ID)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want string
	}{
		{name: "not a list", raw: "x", want: "expected a list"},
		{name: "not a map", raw: []any{1}, want: "item 0: expected a map"},
		{name: "missing event", raw: []any{map[string]any{"typename": "Movie"}}, want: "missing event or typename"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw, at)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	events, err := Decode(nil, at)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	require.NoError(t, r.Publish(context.Background(), []Event{{Event: "CREATE", Typename: "Movie"}}))
	require.NoError(t, r.Publish(context.Background(), []Event{{Event: "DELETE", Typename: "Movie"}}))
	got := r.Events()
	require.Len(t, got, 2)
	assert.Equal(t, "DELETE", got[1].Event)

	r.Reset()
	assert.Empty(t, r.Events())
}

type capture struct {
	msgs []*nats.Msg
	err  error
}

func (c *capture) PublishMsg(msg *nats.Msg) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func TestNATSSinkSubjects(t *testing.T) {
	tests := []struct {
		prefix string
		ev     Event
		want   string
	}{
		{prefix: "", ev: Event{Event: "CREATE", Typename: "Movie"}, want: "neo4j-graphql.events.Movie.create"},
		{prefix: "app.changes.", ev: Event{Event: "DELETE_RELATIONSHIP", Typename: "Movie"}, want: "app.changes.Movie.delete_relationship"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, NewNATSSink(&capture{}, tt.prefix).Subject(tt.ev))
		})
	}
}

func TestNATSSinkPublish(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "mutation")
	defer span.End()

	conn := &capture{}
	sink := NewNATSSink(conn, "events")
	err := sink.Publish(ctx, []Event{
		{ID: "1", Event: "CREATE", Typename: "Movie", Properties: map[string]any{"old": nil, "new": map[string]any{"title": "A"}}},
		{ID: "2", Event: "UPDATE", Typename: "Movie"},
	})
	require.NoError(t, err)
	require.Len(t, conn.msgs, 2)

	assert.Equal(t, "events.Movie.create", conn.msgs[0].Subject)
	assert.NotEmpty(t, conn.msgs[0].Header.Get("traceparent"))

	var decoded Event
	require.NoError(t, json.Unmarshal(conn.msgs[0].Data, &decoded))
	assert.Equal(t, "1", decoded.ID)
	assert.Equal(t, map[string]any{"title": "A"}, decoded.Properties["new"])

	conn.err = errors.New("closed")
	err = sink.Publish(ctx, []Event{{Event: "DELETE", Typename: "Movie"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish events.Movie.delete")
}

func TestHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*natsHeaderCarrier)(msg)
	assert.Empty(t, carrier.Get("missing"))
	assert.Nil(t, carrier.Keys())

	carrier.Set("traceparent", "00-abc-def-01")
	assert.Equal(t, "00-abc-def-01", carrier.Get("traceparent"))
	assert.Len(t, carrier.Keys(), 1)
}
