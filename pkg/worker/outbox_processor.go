package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/messaging"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
	"github.com/jwalitptl/clinic-booking/pkg/repository"
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	// Retention is how long processed events are kept; zero keeps them forever.
	Retention time.Duration
	// FeedChannel, when set, also receives every event payload on the feed broker.
	FeedChannel string
	// MaxRetries is how many relay rounds an event gets before it is marked failed.
	MaxRetries int
}

type OutboxProcessor struct {
	repo        repository.OutboxStore
	broker      messaging.Broker
	feed        messaging.Broker
	config      OutboxProcessorConfig
	logger      *logger.Logger
	metrics     *metrics.Metrics
	lastCleanup time.Time
	now         func() time.Time
}

// NewOutboxProcessor relays outbox rows to broker. feed may be nil or the same broker.
func NewOutboxProcessor(
	repo repository.OutboxStore,
	broker messaging.Broker,
	feed messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be greater than 0")
	}
	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		return nil, fmt.Errorf("retry attempts must be greater than 0")
	}
	if config.RetryDelay < 0 {
		return nil, fmt.Errorf("retry delay must not be negative")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 10
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		feed:    feed,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
			p.cleanup(ctx)
		}
	}
}

// ProcessOnce relays one batch and returns how many events were published.
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	lease := p.config.PollInterval * 5
	events, err := p.repo.ClaimPending(ctx, p.config.BatchSize, lease)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("claim_outbox_events", "error").Inc()
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("claim_outbox_events", "success").Inc()

	published := 0
	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error(err, "Failed to process event",
				"event_id", event.ID.String(),
				"event_type", event.EventType)
			continue
		}
		published++
	}

	return published, nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	err := retry(ctx, p.config.RetryAttempts, p.config.RetryDelay, func() error {
		return p.broker.Publish(ctx, event.EventType, event.Payload)
	})
	if err != nil {
		return p.fail(ctx, event, err)
	}

	// the feed only carries hints; a lost one is repaired by the next full read
	if p.feed != nil && p.config.FeedChannel != "" {
		if ferr := p.feed.Publish(ctx, p.config.FeedChannel, event.Payload); ferr != nil {
			p.logger.Warn("Failed to publish change notice", "event_id", event.ID.String(), "error", ferr.Error())
		}
	}

	p.metrics.OutboxEventsProcessed.Inc()
	if err := p.repo.MarkProcessed(ctx, event.ID); err != nil {
		p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
		return err
	}
	return nil
}

func (p *OutboxProcessor) fail(ctx context.Context, event *model.OutboxEvent, cause error) error {
	msg := cause.Error()
	p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()

	if event.RetryCount+1 >= p.config.MaxRetries {
		p.metrics.OutboxEventsFailed.Inc()
		if err := p.repo.MarkFailed(ctx, event.ID, msg); err != nil {
			p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
		}
		return cause
	}

	backoff := p.config.PollInterval * time.Duration(1<<min(event.RetryCount, 6))
	if err := p.repo.MarkRetry(ctx, event.ID, msg, p.now().Add(backoff)); err != nil {
		p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
	}
	return cause
}

func (p *OutboxProcessor) cleanup(ctx context.Context) {
	if p.config.Retention <= 0 {
		return
	}
	now := p.now()
	if now.Sub(p.lastCleanup) < time.Hour {
		return
	}
	p.lastCleanup = now

	n, err := p.repo.DeleteProcessedBefore(ctx, now.Add(-p.config.Retention))
	if err != nil {
		p.logger.Error(err, "Failed to clean up outbox")
		return
	}
	if n > 0 {
		p.logger.Info("Cleaned up outbox", "deleted", n)
	}
}

func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
