package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/stanzahq/stanza/internal/logging"
	"github.com/stanzahq/stanza/internal/models"
)

// NATSOptions configures a NATSChannel.
type NATSOptions struct {
	// URL is the NATS server address.
	URL string

	// SubjectPrefix is prepended to the event type to form the subject,
	// e.g. stanza.events.message.inserted.
	SubjectPrefix string

	// BufferSize is the initial mailbox capacity of a local subscription.
	BufferSize int

	// Name identifies this client to the server.
	Name string

	// Repository, if set, persists every event this process publishes.
	Repository Repository
}

// NATSChannel is a Channel shared between processes through a NATS server.
// Events are published as JSON on <prefix>.<event type>; one wildcard
// subscription per process feeds a local publisher that applies filters
// and per-subscriber ordering.
type NATSChannel struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	prefix string
	local  *InMemoryPublisher
	repo   Repository
	logger zerolog.Logger
}

// ConnectNATS connects to the server and starts receiving events.
func ConnectNATS(opts NATSOptions) (*NATSChannel, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	prefix := strings.TrimSuffix(strings.TrimSpace(opts.SubjectPrefix), ".")
	if prefix == "" {
		return nil, fmt.Errorf("nats subject prefix is required")
	}
	name := opts.Name
	if name == "" {
		name = "stanza-" + uuid.New().String()[:8]
	}

	logger := logging.Component("events.nats")
	conn, err := nats.Connect(opts.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("disconnected from nats")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", logging.RedactURL(nc.ConnectedUrl())).Msg("reconnected to nats")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	c := &NATSChannel{
		conn:   conn,
		prefix: prefix,
		local:  NewInMemoryPublisher(WithBufferSize(opts.BufferSize)),
		repo:   opts.Repository,
		logger: logger,
	}

	sub, err := conn.Subscribe(prefix+".>", c.receive)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to %s.>: %w", prefix, err)
	}
	c.sub = sub

	if err := conn.Flush(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to flush nats subscription: %w", err)
	}

	logger.Debug().Str("url", logging.RedactURL(opts.URL)).Str("prefix", prefix).Msg("connected to nats")
	return c, nil
}

// Subject returns the subject events of type t are published on.
func (c *NATSChannel) Subject(t models.EventType) string {
	return c.prefix + "." + string(t)
}

// Publish sends an event to every process subscribed to the prefix,
// including this one.
func (c *NATSChannel) Publish(ctx context.Context, event *models.Event) error {
	if event == nil {
		return ErrNilEvent
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if c.repo != nil {
		if err := c.repo.Append(ctx, event); err != nil {
			c.logger.Warn().Err(err).Str("event_id", event.ID).Msg("failed to persist event")
		}
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject := c.Subject(event.Type)
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event to subject '%s': %w", subject, err)
	}
	return nil
}

func (c *NATSChannel) receive(msg *nats.Msg) {
	var event models.Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		c.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("failed to decode event")
		return
	}
	c.local.dispatch(&event)
}

// Subscribe registers a handler to receive events matching the filter.
func (c *NATSChannel) Subscribe(filter Filter, handler EventHandler) (Handle, error) {
	return c.local.Subscribe(filter, handler)
}

// SubscriberCount returns the number of active subscribers in this process.
func (c *NATSChannel) SubscriberCount() int {
	return c.local.SubscriberCount()
}

// Close cancels local subscriptions and drains the connection.
func (c *NATSChannel) Close() error {
	_ = c.local.Close()
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to drain nats connection: %w", err)
	}
	return nil
}
