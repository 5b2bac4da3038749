// Command worker hosts one Worker Loop (spec.md §3 component K, §4.10)
// bound to the Command Pipeline: it consumes command_outbox deliveries
// from Kafka and runs them through the idempotent command pipeline
// (spec.md §4.7). It is the illustrative wiring spec.md §1 scopes in — a
// real deployment registers its own command.Handler implementations;
// this binary registers one no-op handler so the wiring runs end to end
// out of the box.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/correlator-io/outboxkit/internal/command"
	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/idempotency/pgidempotency"
	"github.com/correlator-io/outboxkit/internal/names"
	"github.com/correlator-io/outboxkit/internal/transport"
	"github.com/correlator-io/outboxkit/internal/transport/kafkatransport"
	"github.com/correlator-io/outboxkit/internal/uow"
	"github.com/correlator-io/outboxkit/internal/worker"
	"github.com/correlator-io/outboxkit/internal/workerconfig"
)

// noopCommandName is the demo registration proving the pipeline runs
// end to end; real deployments register their own command names against
// their own command.Handler implementations.
const noopCommandName = "noop_command"

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	config, err := workerconfig.LoadConfig(*configPath)
	if err != nil {
		slog.Error("load worker config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := config.Validate(); err != nil {
		slog.Error("invalid worker config", slog.String("error", err.Error()))
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

	factory := uow.NewFactory(db)
	pipeline := command.NewPipeline(factory, pgidempotency.New())

	noopName, err := names.NewCommandName(noopCommandName)
	if err != nil {
		logger.Error("build demo command name", slog.String("error", err.Error()))
		os.Exit(1)
	}

	pipeline.Register(noopName, command.HandlerFunc(
		func(_ context.Context, _ uow.UnitOfWork, cmd event.CommandEnvelope) (json.RawMessage, error) {
			logger.Info("handled command", slog.String("command", cmd.CommandName.String()), slog.String("message_id", cmd.MessageId.String()))

			return json.RawMessage(`{}`), nil
		},
	))

	consumer := kafkatransport.NewCommandConsumer(kafkatransport.ReaderConfig{
		Brokers:  config.Kafka.Brokers,
		Topic:    config.Kafka.Topic,
		GroupID:  config.Kafka.ConsumerGroup,
		MinBytes: config.Kafka.MinBytes,
		MaxBytes: config.Kafka.MaxBytes,
	})

	loop := worker.New[event.CommandEnvelope](
		config.WorkerName,
		consumer,
		transport.All[event.CommandEnvelope](),
		worker.CommandHandleFunc(pipeline),
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopRequested := func() bool { return ctx.Err() != nil }

	if err := loop.Run(ctx, stopRequested); err != nil {
		logger.Error("worker loop exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
