package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	kafka_config "appointease/pkg/kafka/config"
	"appointease/pkg/logger"

	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader     messageReader
	dlqWriter  messageWriter
	topic      string
	groupID    string
	maxRetries int
	backoff    time.Duration
	handler    MessageHandler
	log        *logger.Logger
	middleware []ConsumerMiddleware
	closed     bool
	mu         sync.RWMutex
	wg         sync.WaitGroup
}

type ConsumerMiddleware func(ctx context.Context, msg Message, next MessageHandler) error

func NewConsumer(cfg *kafka_config.Config, log *logger.Logger, topic, groupID, dlqTopic string, handler MessageHandler) (*Consumer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	if groupID == "" {
		return nil, fmt.Errorf("group ID cannot be empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("message handler cannot be nil")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		Topic:             topic,
		GroupID:           groupID,
		MinBytes:          cfg.ConsumerMinBytes,
		MaxBytes:          cfg.ConsumerMaxBytes,
		MaxWait:           cfg.ConsumerMaxWait,
		CommitInterval:    cfg.ConsumerCommitInterval,
		HeartbeatInterval: cfg.ConsumerHeartbeatInterval,
		SessionTimeout:    cfg.ConsumerSessionTimeout,
		RebalanceTimeout:  cfg.ConsumerRebalanceTimeout,
		StartOffset:       cfg.ConsumerStartOffset,
		ErrorLogger:       errorLogger(log),
	})

	var dlqWriter messageWriter
	if dlqTopic != "" {
		dlqWriter = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        dlqTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
			ErrorLogger:  errorLogger(log),
		}
	}

	c := newConsumer(reader, dlqWriter, log, topic, groupID, handler)
	c.maxRetries = cfg.ConsumerMaxRetries
	c.backoff = cfg.ConsumerFetchBackoff
	return c, nil
}

func newConsumer(reader messageReader, dlqWriter messageWriter, log *logger.Logger, topic, groupID string, handler MessageHandler) *Consumer {
	if log == nil {
		log = logger.Discard()
	}
	return &Consumer{
		reader:     reader,
		dlqWriter:  dlqWriter,
		topic:      topic,
		groupID:    groupID,
		maxRetries: kafka_config.DefaultConsumerMaxRetries,
		backoff:    kafka_config.DefaultConsumerFetchBackoff,
		handler:    handler,
		log:        log,
	}
}

func (c *Consumer) Use(middleware ConsumerMiddleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middleware = append(c.middleware, middleware)
}

// Start consumes until ctx is cancelled. Every fetched message is committed
// once handled, retried, or parked on the DLQ.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrConsumerClosed
	}
	c.wg.Add(1)
	c.mu.RUnlock()
	defer c.wg.Done()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		km, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.log.Error("Failed to fetch message", "topic", c.topic, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff):
			}
			continue
		}

		if err := c.processMessage(ctx, fromKafkaMessage(km)); err != nil {
			c.log.Error("Message processing failed", "topic", c.topic, "offset", km.Offset, "error", err)
		}

		if err := c.reader.CommitMessages(ctx, km); err != nil {
			c.log.Error("Failed to commit offset", "topic", c.topic, "offset", km.Offset, "error", err)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg Message) error {
	c.mu.RLock()
	chain := c.middleware
	c.mu.RUnlock()

	handler := c.handler
	for i := len(chain) - 1; i >= 0; i-- {
		mw := chain[i]
		next := handler
		handler = func(ctx context.Context, m Message) error {
			return mw(ctx, m, next)
		}
	}

	for {
		err := handler(ctx, msg)
		if err == nil {
			return nil
		}

		retries := msg.GetRetryCount()
		if !ShouldRetry(err, retries, c.maxRetries) {
			c.sendToDLQ(ctx, msg, err)
			return err
		}

		msg.IncrementRetryCount()
		c.log.Warn("Retrying message", "attempt", retries+1, "max_retries", c.maxRetries, "error", err)
	}
}

func (c *Consumer) sendToDLQ(ctx context.Context, msg Message, cause error) {
	if c.dlqWriter == nil {
		return
	}
	if err := c.dlqWriter.WriteMessages(ctx, dlqMessage(msg, c.topic, c.groupID, cause, time.Now().UTC())); err != nil {
		c.log.Error("Failed to send message to DLQ", "error", err, "cause", cause)
		return
	}
	c.log.Warn("Message sent to DLQ", "retries", msg.GetRetryCount(), "cause", cause)
}

// Close waits for Start to return before closing the reader. Cancel the
// context passed to Start first.
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()

	err := c.reader.Close()
	if c.dlqWriter != nil {
		err = errors.Join(err, c.dlqWriter.Close())
	}
	return err
}
