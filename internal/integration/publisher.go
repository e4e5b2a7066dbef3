package integration

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "stories.integrated"

// Event describes one integration.
type Event struct {
	Kind      string `json:"kind"`
	StoryIDs  []any  `json:"story_ids"`
	File      string `json:"file"`
	Timestamp string `json:"integrated_at"`
}

// Event kinds.
const (
	KindStory = "story"
	KindAll   = "all"
)

// Publisher announces integrations.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// NATSPublisher publishes events to NATS.
//
// Events are published to subjects:
//
//	<prefix>.story
//	<prefix>.all
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher returns a publisher using an established connection.
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: nc, prefix: prefix}
}

// Subject returns the subject an event kind is published to.
func (p *NATSPublisher) Subject(kind string) string {
	return p.prefix + "." + kind
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(ev.Kind), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
