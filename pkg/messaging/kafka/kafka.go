package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"github.com/jwalitptl/clinic-booking/pkg/messaging"
)

type Config struct {
	Brokers      []string
	TopicPrefix  string
	DLQTopic     string
	Compression  string
	MaxAttempts  int
	BatchTimeout time.Duration
}

// Broker publishes each channel to its own topic, "<prefix>.<channel>".
type Broker struct {
	cfg       Config
	writer    *kafka.Writer
	dlqWriter *kafka.Writer
	logger    *zerolog.Logger
	closed    bool
	mu        sync.RWMutex
}

func compression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.Snappy
	}
}

func NewBroker(cfg Config, logger *zerolog.Logger) (*Broker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	errorLogger := kafka.LoggerFunc(func(msg string, args ...any) {
		logger.Error().Msgf(msg, args...)
	})

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            compression(cfg.Compression),
		MaxAttempts:            cfg.MaxAttempts,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
		ErrorLogger:            errorLogger,
	}

	b := &Broker{cfg: cfg, writer: writer, logger: logger}
	if cfg.DLQTopic != "" {
		b.dlqWriter = &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.DLQTopic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			MaxAttempts:            3,
			AllowAutoTopicCreation: true,
			ErrorLogger:            errorLogger,
		}
	}
	return b, nil
}

// Topic maps a channel name to its topic.
func (b *Broker) Topic(channel string) string {
	if b.cfg.TopicPrefix == "" {
		return channel
	}
	return b.cfg.TopicPrefix + "." + strings.TrimPrefix(channel, b.cfg.TopicPrefix+".")
}

func (b *Broker) Publish(ctx context.Context, channel string, message interface{}) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return messaging.ErrBrokerClosed
	}

	value, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := kafka.Message{
		Topic: b.Topic(channel),
		Key:   []byte(messageKey(value)),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "channel", Value: []byte(channel)},
		},
	}

	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		if dlqErr := b.sendToDLQ(ctx, msg, err); dlqErr != nil {
			return fmt.Errorf("failed to send to DLQ: %v (original error: %w)", dlqErr, err)
		}
		return fmt.Errorf("failed to publish to %s: %w", msg.Topic, err)
	}
	return nil
}

func (b *Broker) sendToDLQ(ctx context.Context, msg kafka.Message, cause error) error {
	if b.dlqWriter == nil {
		return nil
	}
	dlq := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Time:  time.Now(),
		Headers: append(msg.Headers,
			kafka.Header{Key: "original-topic", Value: []byte(msg.Topic)},
			kafka.Header{Key: "dlq-error", Value: []byte(cause.Error())},
		),
	}
	return b.dlqWriter.WriteMessages(ctx, dlq)
}

// messageKey keys change notices by slot so one slot's events stay ordered.
func messageKey(value []byte) string {
	var head struct {
		SlotID string `json:"slot_id"`
	}
	if err := json.Unmarshal(value, &head); err == nil && head.SlotID != "" {
		return head.SlotID
	}
	return ""
}

// Subscribe tails the topic from its end; it does not join a consumer group.
func (b *Broker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, messaging.ErrBrokerClosed
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.cfg.Brokers,
		Topic:       b.Topic(channel),
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    1 << 20,
	})

	out := make(chan []byte, 100)
	go func() {
		defer func() {
			reader.Close()
			close(out)
		}()
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
					return
				}
				b.logger.Error().Err(err).Str("topic", reader.Config().Topic).Msg("kafka read failed")
				continue
			}
			select {
			case out <- msg.Value:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if err := b.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	if b.dlqWriter != nil {
		if err := b.dlqWriter.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ messaging.Broker = (*Broker)(nil)
