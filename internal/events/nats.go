package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "neo4j-graphql.events"

// natsHeaderCarrier adapts message headers for trace propagation.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, value string) {
	if c.Header == nil {
		c.Header = nats.Header{}
	}
	c.Header.Set(key, value)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Publisher is the part of a NATS connection the sink uses.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

// NATSSink publishes each event as JSON to <prefix>.<typename>.<event>.
type NATSSink struct {
	conn   Publisher
	prefix string
}

// NewNATSSink creates a sink over an established connection.
func NewNATSSink(conn Publisher, prefix string) *NATSSink {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{conn: conn, prefix: prefix}
}

// Connect dials url with reconnects enabled.
func Connect(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return conn, nil
}

// Subject returns the subject an event is published to.
func (s *NATSSink) Subject(ev Event) string {
	return s.prefix + "." + ev.Typename + "." + strings.ToLower(ev.Event)
}

// Publish sends events in order and stops at the first failure.
func (s *NATSSink) Publish(ctx context.Context, events []Event) error {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal %s event: %w", ev.Event, err)
		}
		msg := &nats.Msg{Subject: s.Subject(ev), Data: data}
		otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
		if err := s.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("publish %s: %w", msg.Subject, err)
		}
	}
	return nil
}
