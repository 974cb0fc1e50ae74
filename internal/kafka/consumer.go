package kafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kgo"
	"vn.io.arda/storefront-notifier/internal/events/registry"
)

// Deliverer stores a mapped event. Implemented by application.Agent.
type Deliverer interface {
	Deliver(ctx context.Context, event string, payload json.RawMessage, source string) (bool, error)
}

// Consumer wraps the franz-go Kafka client. Only events addressed to userID
// (or to no user in particular) are delivered.
type Consumer struct {
	client    *kgo.Client
	deliverer Deliverer
	userID    string
}

// New creates a Consumer with the given brokers, group ID, and topics.
func New(brokers []string, groupID string, topics []string, userID string, d Deliverer) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, err
	}
	return &Consumer{client: client, deliverer: d, userID: userID}, nil
}

// Start begins polling Kafka and processing records. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	log.Info().Msg("kafka consumer started")

	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			break
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			log.Error().Err(err).Str("topic", topic).Int32("partition", partition).Msg("kafka fetch error")
		})

		fetches.EachRecord(func(r *kgo.Record) {
			c.Process(ctx, r.Topic, r.Value)
		})

		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			log.Error().Err(err).Msg("kafka commit error")
		}
	}

	c.client.Close()
	log.Info().Msg("kafka consumer stopped")
}

// Process decodes one record value and hands it to the deliverer.
// It reports whether a new notification was stored.
func (c *Consumer) Process(ctx context.Context, topic string, value []byte) bool {
	env, err := ParseEnvelope(value)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("malformed kafka record, skipping")
		return false
	}
	if env.UserID != "" && env.UserID != c.userID {
		return false
	}

	log.Debug().Str("topic", topic).Str("event", env.Event).Msg("processing kafka record")

	inserted, err := c.deliverer.Deliver(ctx, env.Event, env.Payload, "kafka")
	if err != nil {
		if errors.Is(err, registry.ErrUnknownEvent) {
			log.Debug().Str("event", env.Event).Msg("no handler matched, skipping")
		} else {
			log.Error().Err(err).Str("topic", topic).Str("event", env.Event).Msg("failed to deliver kafka event")
		}
		return false
	}
	return inserted
}

// --- Shared event envelope ---

// EventEnvelope is the storefront event wrapper. eventType is accepted as an
// alias of event for producers using the platform-wide envelope.
type EventEnvelope struct {
	Event     string          `json:"event"`
	EventType string          `json:"eventType"`
	UserID    string          `json:"user_id"`
	Payload   json.RawMessage `json:"payload"`
}

// ParseEnvelope decodes the event envelope.
func ParseEnvelope(data []byte) (*EventEnvelope, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Event == "" {
		env.Event = env.EventType
	}
	if env.Event == "" {
		return nil, registry.ErrMalformed
	}
	return &env, nil
}
