// Package kafkatransport is the Kafka binding for the transport-agnostic
// contracts in internal/relay (Publisher) and internal/transport
// (Consumer), built on github.com/segmentio/kafka-go. It owns the one
// transport-specific decision the rest of the framework defers to it:
// which publish failures are worth retrying (spec.md §4.5).
package kafkatransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/time/rate"

	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/outbox"
	"github.com/correlator-io/outboxkit/internal/relay"
)

// WriterConfig configures one Kafka topic's producer side.
type WriterConfig struct {
	Brokers      []string
	Topic        string
	RequiredAcks kafka.RequiredAcks
	// RateLimit throttles publish throughput in messages/second; zero
	// disables throttling.
	RateLimit rate.Limit
	RateBurst int
}

// orderingKeyFunc extracts the FIFO partition key from an envelope payload.
type orderingKeyFunc[P any] func(payload P) string

// Publisher implements relay.Publisher[P] over a single Kafka topic,
// partitioning by ordering key via kafka.Hash so records sharing a key
// always land on the same partition (spec.md §4.6 "per-ordering-key
// order").
type Publisher[P any] struct {
	writer  *kafka.Writer
	limiter *rate.Limiter
	keyFunc orderingKeyFunc[P]
}

// NewPublisher builds a Publisher. keyFunc derives the ordering key from
// each record's payload; NewEventPublisher/NewCommandPublisher supply the
// right one for event.EventEnvelope/event.CommandEnvelope.
func NewPublisher[P any](cfg WriterConfig, keyFunc orderingKeyFunc[P]) *Publisher[P] {
	requiredAcks := cfg.RequiredAcks
	if requiredAcks == 0 {
		requiredAcks = kafka.RequireAll
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: requiredAcks,
		WriteTimeout: 10 * time.Second,
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(cfg.RateLimit, cfg.RateBurst)
	}

	return &Publisher[P]{writer: writer, limiter: limiter, keyFunc: keyFunc}
}

// NewEventPublisher builds a Publisher for the event outbox topic.
func NewEventPublisher(cfg WriterConfig) *Publisher[event.EventEnvelope] {
	return NewPublisher[event.EventEnvelope](cfg, func(env event.EventEnvelope) string {
		return env.OrderingKey.String()
	})
}

// NewCommandPublisher builds a Publisher for the command outbox topic.
func NewCommandPublisher(cfg WriterConfig) *Publisher[event.CommandEnvelope] {
	return NewPublisher[event.CommandEnvelope](cfg, func(cmd event.CommandEnvelope) string {
		return cmd.OrderingKey.String()
	})
}

// Publish implements relay.Publisher[P] (spec.md §4.6): it writes the
// whole batch in one call and maps kafka-go's per-message WriteErrors back
// onto one PublishOutcome per input record, preserving index order.
func (p *Publisher[P]) Publish(ctx context.Context, batch []outbox.Record[P]) ([]relay.PublishOutcome, error) {
	if p.limiter != nil {
		if err := p.limiter.WaitN(ctx, len(batch)); err != nil {
			return nil, fmt.Errorf("kafka publisher: rate limit wait: %w", err)
		}
	}

	messages := make([]kafka.Message, len(batch))

	for i, record := range batch {
		value, err := json.Marshal(record.Payload)
		if err != nil {
			return nil, fmt.Errorf("kafka publisher: marshal record %s: %w", record.ID, err)
		}

		messages[i] = kafka.Message{
			Key:   []byte(p.keyFunc(record.Payload)),
			Value: value,
			Time:  time.Now().UTC(),
		}
	}

	outcomes := make([]relay.PublishOutcome, len(batch))

	writeErr := p.writer.WriteMessages(ctx, messages...)
	if writeErr == nil {
		for i := range outcomes {
			outcomes[i] = relay.PublishOutcome{Success: true}
		}

		return outcomes, nil
	}

	var perMessage kafka.WriteErrors
	if errors.As(writeErr, &perMessage) {
		for i, msgErr := range perMessage {
			if msgErr == nil {
				outcomes[i] = relay.PublishOutcome{Success: true}
			} else {
				outcomes[i] = relay.PublishOutcome{Cause: classify(msgErr)}
			}
		}

		return outcomes, nil
	}

	cause := classify(writeErr)
	for i := range outcomes {
		outcomes[i] = relay.PublishOutcome{Cause: cause}
	}

	return outcomes, nil
}

// Close releases the underlying Kafka connections.
func (p *Publisher[P]) Close() error {
	return p.writer.Close()
}

// classify maps a kafka-go error to transient/permanent per spec.md §4.5's
// classification rule, translated to kafka-go's broker error codes.
// Unrecognized errors default to permanent: the relay should not spin
// retrying a failure it cannot name.
func classify(err error) outbox.DispatchError {
	var brokerErr kafka.Error
	if errors.As(err, &brokerErr) {
		switch brokerErr {
		case kafka.LeaderNotAvailable:
			return outbox.TransientDispatchError("leader_not_available", brokerErr.Error())
		case kafka.RequestTimedOut:
			return outbox.TransientDispatchError("request_timed_out", brokerErr.Error())
		case kafka.NotEnoughReplicas:
			return outbox.TransientDispatchError("not_enough_replicas", brokerErr.Error())
		case kafka.NotEnoughReplicasAfterAppend:
			return outbox.TransientDispatchError("not_enough_replicas_after_append", brokerErr.Error())
		case kafka.MessageSizeTooLarge:
			return outbox.PermanentDispatchError("message_size_too_large", brokerErr.Error())
		case kafka.InvalidTopic:
			return outbox.PermanentDispatchError("invalid_topic", brokerErr.Error())
		}

		if brokerErr.Temporary() {
			return outbox.TransientDispatchError("broker_temporary_error", brokerErr.Error())
		}

		return outbox.PermanentDispatchError("broker_error", brokerErr.Error())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return outbox.TransientDispatchError("deadline_exceeded", err.Error())
	}

	return outbox.PermanentDispatchError("unknown", err.Error())
}
