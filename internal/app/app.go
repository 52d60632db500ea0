// Package app assembles the storage, brokers and rules shared by the api and worker binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jwalitptl/clinic-booking/internal/config"
	"github.com/jwalitptl/clinic-booking/internal/migrations"
	"github.com/jwalitptl/clinic-booking/internal/policy"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	"github.com/jwalitptl/clinic-booking/internal/repository/memory"
	"github.com/jwalitptl/clinic-booking/internal/repository/postgres"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/messaging"
	"github.com/jwalitptl/clinic-booking/pkg/messaging/kafka"
	"github.com/jwalitptl/clinic-booking/pkg/messaging/redis"
)

const migrateTimeout = 2 * time.Minute

// NewLogger builds the zerolog logger for the environment.
func NewLogger(cfg *config.Config) *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.LogLevel),
		TimeFormat: time.RFC3339,
		JSON:       cfg.Env == "production",
	})
}

// Rules turns the booking settings into the rule set.
func Rules(cfg *config.Config) (policy.Rules, error) {
	loc, err := cfg.Clinic.Location()
	if err != nil {
		return policy.Rules{}, err
	}
	rules := policy.DefaultRules(loc)
	b := cfg.Booking
	if b.LeadTime > 0 {
		rules.LeadTime = b.LeadTime
	}
	if b.HorizonDays > 0 {
		rules.HorizonDays = b.HorizonDays
	}
	if b.RefundWindow > 0 {
		rules.RefundWindow = b.RefundWindow
	}
	if b.DailyLimit > 0 {
		rules.DailyLimit = b.DailyLimit
	}
	if b.WeeklyLimit > 0 {
		rules.WeeklyLimit = b.WeeklyLimit
	}
	if b.ReminderLead > 0 {
		rules.ReminderLead = b.ReminderLead
	}
	return rules, nil
}

// OpenStore opens the configured backend. Postgres is migrated first when enabled.
func OpenStore(cfg *config.Config, sugar *zap.SugaredLogger) (*repository.Store, error) {
	if cfg.Storage.Driver == "memory" {
		return memory.NewStore(), nil
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return nil, err
	}

	if cfg.Database.Migrate {
		migrator, err := migrations.NewMigrator(db.DB, logger.GooseLogger{SugaredLogger: sugar})
		if err != nil {
			db.Close()
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
		defer cancel()
		if err := migrator.Up(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	return postgres.NewStore(db), nil
}

// Brokers holds the change feed broker and the broker domain events are exported to. They
// may be the same value.
type Brokers struct {
	Feed   messaging.Broker
	Events messaging.Broker
}

func (b *Brokers) Close() error {
	var firstErr error
	if b.Events != nil && b.Events != b.Feed {
		firstErr = b.Events.Close()
	}
	if b.Feed != nil {
		if err := b.Feed.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Ping checks the feed broker when it is backed by redis.
func (b *Brokers) Ping(ctx context.Context) error {
	if rb, ok := b.Feed.(*redis.RedisBroker); ok {
		return rb.Client().Ping(ctx).Err()
	}
	return nil
}

// OpenBrokers connects the feed to redis and the event export to redis or kafka. The memory
// storage driver keeps everything in process.
func OpenBrokers(cfg *config.Config, log *logger.Logger) (*Brokers, error) {
	if cfg.Storage.Driver == "memory" {
		b := messaging.NewInMemoryBroker()
		return &Brokers{Feed: b, Events: b}, nil
	}

	feed, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), log.Zerolog())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	brokers := &Brokers{Feed: feed, Events: feed}

	if cfg.Outbox.Broker == "kafka" {
		events, err := kafka.NewBroker(kafka.Config{
			Brokers:      cfg.Kafka.Brokers,
			TopicPrefix:  cfg.Kafka.TopicPrefix,
			DLQTopic:     cfg.Kafka.DLQTopic,
			Compression:  cfg.Kafka.Compression,
			MaxAttempts:  cfg.Kafka.MaxAttempts,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, log.Zerolog())
		if err != nil {
			feed.Close()
			return nil, fmt.Errorf("failed to create kafka broker: %w", err)
		}
		brokers.Events = events
	}
	return brokers, nil
}
