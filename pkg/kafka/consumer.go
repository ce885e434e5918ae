package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler processes one decoded event. Returning an error wrapped with
// Permanent skips the retry loop.
type Handler func(ctx context.Context, event *Event) error

// MessageReader is the subset of *kafka.Reader the consumer relies on.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying, e.g. a payload that fails validation.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers    []string
	GroupID    string
	Topic      string
	MinBytes   int
	MaxBytes   int
	MaxRetries int
	RetryWait  time.Duration
}

// DefaultConsumerConfig returns a config for one topic in one consumer group.
func DefaultConsumerConfig(brokers []string, groupID, topic string) ConsumerConfig {
	return ConsumerConfig{
		Brokers:    brokers,
		GroupID:    groupID,
		Topic:      topic,
		MinBytes:   1,
		MaxBytes:   10e6,
		MaxRetries: 3,
		RetryWait:  100 * time.Millisecond,
	}
}

// Consumer reads one topic and feeds each event to a Handler, committing
// offsets only after the message is handled, skipped, or dead-lettered.
type Consumer struct {
	reader    MessageReader
	cfg       ConsumerConfig
	handler   Handler
	dlq       *DLQProducer
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewConsumer creates a consumer backed by a kafka-go reader.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return NewConsumerWithReader(r, cfg, handler, logger)
}

// NewConsumerWithReader creates a consumer around an existing reader.
func NewConsumerWithReader(r MessageReader, cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &Consumer{
		reader:  r,
		cfg:     cfg,
		handler: handler,
		logger:  logger.With(slog.String("topic", cfg.Topic), slog.String("group", cfg.GroupID)),
	}
}

// WithDLQ forwards messages that fail permanently to a dead-letter topic.
func (c *Consumer) WithDLQ(dlq *DLQProducer) *Consumer {
	c.dlq = dlq
	return c
}

// Start consumes until ctx is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping")
				return nil
			}
			if errors.Is(err, io.EOF) {
				// kafka-go returns io.EOF once the reader has been closed.
				return nil
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			continue
		}
		ConsumerMessagesReceived.WithLabelValues(c.cfg.Topic, c.cfg.GroupID).Inc()

		if stop := c.process(ctx, msg); stop {
			return nil
		}
	}
}

// process handles one message and reports whether the loop should stop.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.Error("dropping undecodable message",
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		c.fail(ctx, msg, err)
		return false
	}

	msgCtx := ExtractTraceContext(ctx, msg)
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		lastErr = c.handler(msgCtx, event)
		if lastErr == nil || IsPermanent(lastErr) {
			break
		}

		c.logger.Warn("handler failed, will retry",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)
		if attempt < c.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return true
			case <-time.After(time.Duration(attempt) * c.cfg.RetryWait):
			}
		}
	}
	ConsumerProcessingDuration.WithLabelValues(c.cfg.Topic, c.cfg.GroupID).Observe(time.Since(start).Seconds())

	if lastErr != nil {
		c.logger.Error("skipping message after handler failure",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.Bool("permanent", IsPermanent(lastErr)),
			slog.String("error", lastErr.Error()),
		)
		c.fail(ctx, msg, lastErr)
		return false
	}

	ConsumerMessagesProcessed.WithLabelValues(c.cfg.Topic, c.cfg.GroupID).Inc()
	c.commit(ctx, msg)
	return false
}

func (c *Consumer) fail(ctx context.Context, msg kafka.Message, cause error) {
	ConsumerMessagesFailed.WithLabelValues(c.cfg.Topic, c.cfg.GroupID).Inc()
	if c.dlq != nil {
		if err := c.dlq.Publish(ctx, msg, cause, c.cfg.GroupID); err == nil {
			ConsumerDLQPublished.WithLabelValues(c.cfg.Topic, c.cfg.GroupID).Inc()
		}
	}
	c.commit(ctx, msg)
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("failed to commit message",
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// Topic returns the topic this consumer reads.
func (c *Consumer) Topic() string {
	return c.cfg.Topic
}

// Close releases the reader. Safe to call more than once.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if cerr := c.reader.Close(); cerr != nil {
			err = fmt.Errorf("close reader for %s: %w", c.cfg.Topic, cerr)
		}
	})
	return err
}
