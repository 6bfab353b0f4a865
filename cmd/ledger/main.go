// Command ledger runs the event-sourced account ledger: an HTTP API over
// a SQLite event log with projected read models and optional NATS
// publication of committed events.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/corebank/ledger/internal/account"
	"github.com/corebank/ledger/internal/config"
	"github.com/corebank/ledger/internal/projection"
	"github.com/corebank/ledger/internal/query"
	"github.com/corebank/ledger/internal/server"
	"github.com/corebank/ledger/pkg/eventsourcing"
	ledgernats "github.com/corebank/ledger/pkg/nats"
	"github.com/corebank/ledger/pkg/observability"
	"github.com/corebank/ledger/pkg/runner"
	"github.com/corebank/ledger/pkg/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("ledger exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	telemetry, err := observability.Init(context.Background(), observability.Config{
		ServiceName:    "ledger",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := telemetry.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	eventStore, err := sqlite.NewEventStore(
		sqlite.WithDSN(cfg.DBDSN),
		sqlite.WithWALMode(true),
	)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer eventStore.Close()

	snapshotStore := sqlite.NewSnapshotStore(eventStore.DB())
	statusStore, err := sqlite.NewProjectionStatusStore(eventStore.DB())
	if err != nil {
		return fmt.Errorf("open projection status store: %w", err)
	}

	readModels, err := projection.NewReadModelStore(eventStore.DB())
	if err != nil {
		return fmt.Errorf("open read models: %w", err)
	}
	projector, err := projection.NewProjector(eventStore.DB(), readModels,
		eventStore, statusStore, logger, telemetry.Metrics)
	if err != nil {
		return fmt.Errorf("create projector: %w", err)
	}

	var strategy eventsourcing.SnapshotStrategy
	if cfg.SnapshotInterval > 0 {
		strategy = eventsourcing.NewIntervalSnapshotStrategy(cfg.SnapshotInterval)
	}

	repo := account.NewRepository(eventStore, snapshotStore, strategy,
		projector, logger, telemetry.Metrics)

	var services []runner.Service

	publisher, embedded, err := setupEventBus(cfg, logger)
	if err != nil {
		return err
	}
	if embedded != nil {
		defer embedded.Shutdown()
	}
	if publisher != nil {
		defer publisher.Close()
	}

	var busPublisher account.EventPublisher
	if publisher != nil {
		busPublisher = publisher
	}
	commands := account.NewService(repo, busPublisher, logger, telemetry.Metrics)
	queries := query.NewService(eventStore, readModels, projector)

	httpServer := server.New(cfg.Addr, commands, queries, projector, logger)
	services = append(services, httpServer)

	logger.Info("starting ledger",
		"addr", cfg.Addr,
		"db", cfg.DBDSN,
		"snapshot_interval", cfg.SnapshotInterval)

	return runner.New(services,
		runner.WithLogger(logger),
	).Run(context.Background())
}

// setupEventBus connects the committed-event publisher. An embedded NATS
// server is started when configured; otherwise an external URL is used,
// and an empty URL disables publication entirely.
func setupEventBus(cfg *config.Config, logger *slog.Logger) (*ledgernats.Publisher, *ledgernats.EmbeddedServer, error) {
	busConfig := ledgernats.DefaultConfig()

	switch {
	case cfg.NATSEmbedded:
		embedded, err := ledgernats.StartEmbeddedServer()
		if err != nil {
			return nil, nil, fmt.Errorf("start embedded nats: %w", err)
		}
		busConfig.URL = embedded.URL()
		publisher, err := ledgernats.NewPublisher(busConfig)
		if err != nil {
			embedded.Shutdown()
			return nil, nil, fmt.Errorf("connect event publisher: %w", err)
		}
		logger.Info("publishing events to embedded nats", "url", embedded.URL())
		return publisher, embedded, nil

	case cfg.NATSURL != "":
		busConfig.URL = cfg.NATSURL
		publisher, err := ledgernats.NewPublisher(busConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("connect event publisher: %w", err)
		}
		logger.Info("publishing events to nats", "url", cfg.NATSURL)
		return publisher, nil, nil

	default:
		return nil, nil, nil
	}
}
