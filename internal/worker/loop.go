// Package worker implements Worker Loops (spec.md §3 component K, §4.10):
// the glue that binds a transport.Consumer to a Runner (projection.Runner,
// saga.Runner, or command.Pipeline), filtering deliveries through a
// Subscription before handing them to the Runner and ack/nack-ing the
// delivery on the Runner's result.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/correlator-io/outboxkit/internal/transport"
)

// HandleFunc runs one message through whichever Runner this Loop is bound
// to. A non-nil error both nacks the delivery and is what Run logs; the
// message is retried per the transport's own redelivery policy.
type HandleFunc[M any] func(ctx context.Context, message M) error

// Loop binds one transport.Consumer to one HandleFunc, filtering through
// a Subscription, per spec.md §4.10's pseudocode.
type Loop[M any] struct {
	name         string
	consumer     transport.Consumer[M]
	subscription transport.Subscription[M]
	handle       HandleFunc[M]
	logger       *slog.Logger
}

// New builds a Loop.
func New[M any](
	name string,
	consumer transport.Consumer[M],
	subscription transport.Subscription[M],
	handle HandleFunc[M],
	logger *slog.Logger,
) *Loop[M] {
	if logger == nil {
		logger = slog.Default()
	}

	return &Loop[M]{name: name, consumer: consumer, subscription: subscription, handle: handle, logger: logger}
}

// Run pulls deliveries until stopRequested reports true or ctx is
// cancelled, applying the subscription filter and ack/nack-ing per
// spec.md §4.10. A delivery that does not match the subscription is acked
// immediately without running handle, same as a successfully-handled one.
func (l *Loop[M]) Run(ctx context.Context, stopRequested func() bool) error {
	l.logger.Info("worker loop started", slog.String("worker", l.name))

	for !stopRequested() {
		if err := l.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}

			l.logger.Error("worker loop delivery failed", slog.String("worker", l.name), slog.String("error", err.Error()))
		}
	}

	l.logger.Info("worker loop stopped", slog.String("worker", l.name))

	return l.consumer.Close()
}

func (l *Loop[M]) runOnce(ctx context.Context) error {
	delivery, err := l.consumer.Next(ctx)
	if err != nil {
		return fmt.Errorf("worker %s: next delivery: %w", l.name, err)
	}

	if !l.subscription.Matches(delivery.Message) {
		if err := delivery.Ack(ctx); err != nil {
			return fmt.Errorf("worker %s: ack unmatched delivery: %w", l.name, err)
		}

		return nil
	}

	if handleErr := l.handle(ctx, delivery.Message); handleErr != nil {
		if err := delivery.Nack(ctx); err != nil {
			return fmt.Errorf("worker %s: nack failed delivery: %w", l.name, err)
		}

		return fmt.Errorf("worker %s: handle delivery: %w", l.name, handleErr)
	}

	if err := delivery.Ack(ctx); err != nil {
		return fmt.Errorf("worker %s: ack delivery: %w", l.name, err)
	}

	return nil
}
