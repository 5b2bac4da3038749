// Command relay hosts the Outbox Relay (spec.md §3 component G, §4.6):
// one instance draining event_outbox to Kafka, one draining
// command_outbox, both against the same Postgres database. It is the
// illustrative wiring spec.md §1 scopes in — a real deployment supplies
// its own main with its own domain model, but drains the same two tables
// through the same framework pieces.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/time/rate"

	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/outbox"
	"github.com/correlator-io/outboxkit/internal/outbox/pgoutbox"
	"github.com/correlator-io/outboxkit/internal/relay"
	"github.com/correlator-io/outboxkit/internal/relayconfig"
	"github.com/correlator-io/outboxkit/internal/transport/kafkatransport"
	"github.com/correlator-io/outboxkit/internal/uow"
)

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	config, err := relayconfig.LoadConfig(*configPath)
	if err != nil {
		slog.Error("load relay config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := config.Validate(); err != nil {
		slog.Error("invalid relay config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.LogLevel}))
	slog.SetDefault(logger)

	db, err := sql.Open("postgres", config.DatabaseURL)
	if err != nil {
		logger.Error("open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	owner, err := outbox.NewRelayInstance(config.InstanceID, uint32(config.ProcessID)) //nolint:gosec // process ids are small and operator-supplied
	if err != nil {
		logger.Error("build relay instance", slog.String("error", err.Error()))
		os.Exit(1)
	}

	factory := uow.NewFactory(db)

	multiplier, err := outbox.NewBackoffMultiplier(config.Poll.Multiplier)
	if err != nil {
		logger.Error("invalid poll multiplier", slog.String("error", err.Error()))
		os.Exit(1)
	}

	jitter, err := outbox.NewJitterRatio(config.Poll.Jitter)
	if err != nil {
		logger.Error("invalid poll jitter", slog.String("error", err.Error()))
		os.Exit(1)
	}

	retry, err := outbox.NewRetryOptions(time.Duration(config.Retry.Backoff), config.Retry.MaxAttempts)
	if err != nil {
		logger.Error("invalid retry options", slog.String("error", err.Error()))
		os.Exit(1)
	}

	poll, err := outbox.NewPollingOptions(time.Duration(config.Poll.Base), time.Duration(config.Poll.Max), multiplier, jitter)
	if err != nil {
		logger.Error("invalid poll options", slog.String("error", err.Error()))
		os.Exit(1)
	}

	opts := relay.Options{
		BatchSize: config.BatchSize,
		LeaseFor:  time.Duration(config.LeaseFor),
		Retry:     retry,
		Poll:      poll,
	}

	eventPublisher := kafkatransport.NewEventPublisher(kafkatransport.WriterConfig{
		Brokers:   config.Kafka.Brokers,
		Topic:     config.Kafka.EventTopic,
		RateLimit: rate.Limit(config.Kafka.RateLimit),
		RateBurst: config.Kafka.RateBurst,
	})
	defer func() { _ = eventPublisher.Close() }()

	commandPublisher := kafkatransport.NewCommandPublisher(kafkatransport.WriterConfig{
		Brokers:   config.Kafka.Brokers,
		Topic:     config.Kafka.CommandTopic,
		RateLimit: rate.Limit(config.Kafka.RateLimit),
		RateBurst: config.Kafka.RateBurst,
	})
	defer func() { _ = commandPublisher.Close() }()

	eventRelay := relay.New[event.EventEnvelope](
		factory,
		func(tx *sql.Tx) relay.Fetcher[event.EventEnvelope] { return pgoutbox.NewEventFetcher(tx) },
		func(tx *sql.Tx) relay.Writer[event.EventEnvelope] { return pgoutbox.NewEventWriter(tx) },
		eventPublisher,
		owner,
		opts,
		logger.With(slog.String("relay", "event")),
	)

	commandRelay := relay.New[event.CommandEnvelope](
		factory,
		func(tx *sql.Tx) relay.Fetcher[event.CommandEnvelope] { return pgoutbox.NewCommandFetcher(tx) },
		func(tx *sql.Tx) relay.Writer[event.CommandEnvelope] { return pgoutbox.NewCommandWriter(tx) },
		commandPublisher,
		owner,
		opts,
		logger.With(slog.String("relay", "command")),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var stopRequested atomic.Bool

	go func() {
		<-ctx.Done()
		stopRequested.Store(true)
	}()

	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()

		if err := eventRelay.Run(ctx, stopRequested.Load); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event relay stopped", slog.String("error", err.Error()))
		}
	}()

	go func() {
		defer wg.Done()

		if err := commandRelay.Run(ctx, stopRequested.Load); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("command relay stopped", slog.String("error", err.Error()))
		}
	}()

	wg.Wait()
}
