// Package transport defines the transport-agnostic Consumer/Subscription
// contract Worker Loops (spec.md §3 component K, §4.10) bind to. The
// publishing half of the transport contract lives on
// internal/relay.Publisher, implemented concretely by
// internal/transport/kafkatransport; this package only carries what a
// Worker Loop needs to pull deliveries and ack/nack them.
package transport

import "context"

// Delivery is one message handed to a Worker Loop by a Consumer, together
// with the ack/nack callbacks that report back to the transport
// (spec.md §4.10).
type Delivery[M any] struct {
	Message M

	ack  func(ctx context.Context) error
	nack func(ctx context.Context) error
}

// NewDelivery builds a Delivery. ack and nack must each be safe to call
// exactly once per Delivery.
func NewDelivery[M any](message M, ack, nack func(ctx context.Context) error) Delivery[M] {
	return Delivery[M]{Message: message, ack: ack, nack: nack}
}

// Ack acknowledges successful processing of the delivery.
func (d Delivery[M]) Ack(ctx context.Context) error { return d.ack(ctx) }

// Nack reports failed processing; the transport redelivers per its own
// retry policy.
func (d Delivery[M]) Nack(ctx context.Context) error { return d.nack(ctx) }

// Consumer pulls deliveries of message type M from one subscription.
type Consumer[M any] interface {
	// Next blocks until a delivery is available or ctx is cancelled.
	Next(ctx context.Context) (Delivery[M], error)
	// Close releases the underlying transport connection.
	Close() error
}

// Subscription selects which deliveries a Worker Loop wants: either every
// message (All) or only those matched by at least one Selector (Only),
// per spec.md §4.10. The transport MAY push selectors down as a
// server-side filter.
type Subscription[M any] struct {
	all       bool
	selectors []Selector[M]
}

// Selector is a predicate over one message's routing facts
// (spec.md §4.10): for events, (aggregate_type, event_name); for
// commands, command_name. This package's EventSelector/CommandSelector
// (selector.go) implement this via their Matches method.
type Selector[M any] interface {
	Matches(message M) bool
}

// All subscribes to every message on the topic.
func All[M any]() Subscription[M] {
	return Subscription[M]{all: true}
}

// Only subscribes to messages matched by at least one selector.
func Only[M any](selectors ...Selector[M]) Subscription[M] {
	return Subscription[M]{selectors: selectors}
}

// Matches reports whether message should be delivered under this
// subscription.
func (s Subscription[M]) Matches(message M) bool {
	if s.all {
		return true
	}

	for _, selector := range s.selectors {
		if selector.Matches(message) {
			return true
		}
	}

	return false
}
