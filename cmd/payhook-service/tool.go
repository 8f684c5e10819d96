package main

import (
	"context"
	"database/sql"
	"fmt"

	"payhook/internal/broker"
	"payhook/internal/config"
	"payhook/internal/constants"
	"payhook/internal/events"
	"payhook/internal/ledger"
	"payhook/internal/logger"
	"payhook/internal/router"
	"payhook/pkg/bootstrap"
	"payhook/pkg/migrations"
	"payhook/pkg/models"
)

// Tool backs the operator commands. Connections are opened on first use.
type Tool struct {
	config      *config.Config
	logger      logger.Logger
	dbConnector *bootstrap.DatabaseConnector
	db          *sql.DB
	producer    broker.Producer
}

func NewTool(cfg *config.Config, log logger.Logger) *Tool {
	toolCfg := *cfg
	toolCfg.Database.RunMigrations = false
	return &Tool{
		config:      &toolCfg,
		logger:      log,
		dbConnector: bootstrap.NewDatabaseConnector(&toolCfg, log),
	}
}

func (t *Tool) database(ctx context.Context) (*sql.DB, error) {
	if t.db != nil {
		return t.db, nil
	}
	db, err := t.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	t.db = db
	return db, nil
}

func (t *Tool) MigrateUp(ctx context.Context) error {
	db, err := t.database(ctx)
	if err != nil {
		return err
	}
	if err := migrations.Up(db); err != nil {
		return err
	}
	t.logger.InfowCtx(ctx, "Migrations applied")
	return nil
}

func (t *Tool) MigrateDown(ctx context.Context, steps int) error {
	db, err := t.database(ctx)
	if err != nil {
		return err
	}
	if err := migrations.Down(db, steps); err != nil {
		return err
	}
	t.logger.InfowCtx(ctx, "Migrations rolled back", "steps", steps)
	return nil
}

func (t *Tool) MigrationVersion(ctx context.Context) (uint, bool, error) {
	db, err := t.database(ctx)
	if err != nil {
		return 0, false, err
	}
	return migrations.Version(db)
}

func (t *Tool) Requeue(ctx context.Context, eventID string) (*ledger.Entry, error) {
	db, err := t.database(ctx)
	if err != nil {
		return nil, err
	}
	svc := ledger.NewService(ledger.NewRepository(db), t.logger, t.config.App.IsProduction(), t.config.Routing.RetryErroredEvents)
	return svc.Requeue(ctx, eventID)
}

// Replay publishes body to the replay topic after checking it decodes.
func (t *Tool) Replay(ctx context.Context, provider, region string, body []byte) error {
	evts, err := router.ParseBody(events.Provider(provider), region, body)
	if err != nil {
		return err
	}

	if t.producer == nil {
		producer, err := broker.NewProducer(t.config.Broker, t.logger)
		if err != nil {
			return fmt.Errorf("failed to create producer: %w", err)
		}
		t.producer = producer
	}

	topic := t.config.Broker.Kafka.ReplayTopic
	if topic == "" {
		topic = constants.DefaultReplayTopic
	}

	msg := models.NewReplay(constants.ServiceName, provider, region, body)
	if err := t.producer.Publish(ctx, topic, *msg); err != nil {
		return fmt.Errorf("failed to publish replay: %w", err)
	}

	t.logger.InfowCtx(ctx, "Replay published",
		"topic", topic,
		"provider", provider,
		"region", region,
		"events", len(evts),
	)
	return nil
}

func (t *Tool) Close() {
	if t.producer != nil {
		if err := t.producer.Close(); err != nil {
			t.logger.Warnw("Producer close error", "error", err)
		}
	}
	for _, err := range t.dbConnector.ShutdownDatabases(context.Background(), nil, t.db) {
		t.logger.Warnw("Database close error", "error", err)
	}
}
