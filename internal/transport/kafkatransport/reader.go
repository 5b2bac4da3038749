package kafkatransport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/transport"
)

// ReaderConfig configures one Kafka topic's consumer side. GroupID is the
// consumer group used for offset tracking and fan-out across replicas
// (spec.md §4.10).
type ReaderConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
}

func (cfg ReaderConfig) readerConfig() kafka.ReaderConfig {
	minBytes, maxBytes := cfg.MinBytes, cfg.MaxBytes
	if minBytes <= 0 {
		minBytes = 1
	}

	if maxBytes <= 0 {
		maxBytes = 10e6
	}

	return kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: minBytes,
		MaxBytes: maxBytes,
	}
}

// unmarshalFunc decodes a raw Kafka message value into the Worker Loop's
// message type M.
type unmarshalFunc[M any] func(data []byte) (M, error)

// Consumer implements transport.Consumer[M] over a kafka.Reader, using
// manual offset commit as the ack (spec.md §4.10): Nack leaves the message
// uncommitted so the consumer group redelivers it.
type Consumer[M any] struct {
	reader    *kafka.Reader
	unmarshal unmarshalFunc[M]
}

// NewConsumer builds a Consumer. unmarshal decodes the wire payload into M;
// NewEventConsumer/NewCommandConsumer supply the right one for
// event.Event/event.CommandEnvelope.
func NewConsumer[M any](cfg ReaderConfig, unmarshal unmarshalFunc[M]) *Consumer[M] {
	return &Consumer[M]{reader: kafka.NewReader(cfg.readerConfig()), unmarshal: unmarshal}
}

// NewEventConsumer builds a Consumer over the event topic. The wire
// payload is an event.EventEnvelope; only its wrapped Event is handed to
// the Worker Loop, matching transport.EventSelector's signature.
func NewEventConsumer(cfg ReaderConfig) *Consumer[event.Event] {
	return NewConsumer[event.Event](cfg, func(data []byte) (event.Event, error) {
		var envelope event.EventEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			return event.Event{}, fmt.Errorf("unmarshal event envelope: %w", err)
		}

		return envelope.Event, nil
	})
}

// NewCommandConsumer builds a Consumer over the command topic.
func NewCommandConsumer(cfg ReaderConfig) *Consumer[event.CommandEnvelope] {
	return NewConsumer[event.CommandEnvelope](cfg, func(data []byte) (event.CommandEnvelope, error) {
		var cmd event.CommandEnvelope
		if err := json.Unmarshal(data, &cmd); err != nil {
			return event.CommandEnvelope{}, fmt.Errorf("unmarshal command envelope: %w", err)
		}

		return cmd, nil
	})
}

// Next implements transport.Consumer[M].
func (c *Consumer[M]) Next(ctx context.Context) (transport.Delivery[M], error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return transport.Delivery[M]{}, fmt.Errorf("kafka consumer: fetch message: %w", err)
	}

	message, err := c.unmarshal(msg.Value)
	if err != nil {
		return transport.Delivery[M]{}, fmt.Errorf("kafka consumer: decode message: %w", err)
	}

	ack := func(ctx context.Context) error {
		return c.reader.CommitMessages(ctx, msg)
	}

	nack := func(context.Context) error {
		return nil
	}

	return transport.NewDelivery(message, ack, nack), nil
}

// Close implements transport.Consumer[M].
func (c *Consumer[M]) Close() error {
	return c.reader.Close()
}
