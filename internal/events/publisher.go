package events

import (
	"context"
	"sync"
	"time"

	"appointease/pkg/kafka"
	"appointease/pkg/logger"
	"appointease/pkg/middleware"
	"appointease/pkg/model"
)

const (
	Source        = "appointments"
	SchemaVersion = "1"

	publishTimeout = 5 * time.Second
	queueSize      = 1024
)

// Publisher emits domain events. Publishing is best effort: failures are
// logged and never reach the caller.
type Publisher interface {
	Publish(ctx context.Context, event model.Event)
	Close() error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, model.Event) {}

func (NoopPublisher) Close() error { return nil }

type messageProducer interface {
	Publish(ctx context.Context, msg kafka.Message) error
	Close() error
}

// KafkaPublisher hands events to a single background writer so a slow
// broker never stretches a booking. One writer keeps events in the order
// they were published. Close drains the queue.
type KafkaPublisher struct {
	producer messageProducer
	log      *logger.Logger

	mu     sync.Mutex
	closed bool
	queue  chan queued
	done   chan struct{}
}

type queued struct {
	ctx       context.Context
	msg       kafka.Message
	eventType model.EventType
}

func NewKafkaPublisher(producer messageProducer, log *logger.Logger) *KafkaPublisher {
	p := &KafkaPublisher{
		producer: producer,
		log:      log,
		queue:    make(chan queued, queueSize),
		done:     make(chan struct{}),
	}

	go p.run()

	return p
}

func (p *KafkaPublisher) Publish(ctx context.Context, event model.Event) {
	msg, err := kafka.NewMessage().
		WithKey(event.PartitionKey()).
		WithValue(event).
		WithEventType(string(event.Type)).
		WithSource(Source).
		WithSchemaVersion(SchemaVersion).
		WithCorrelationID(middleware.RequestIDFromContext(ctx)).
		WithTimestamp(event.OccurredAt).
		Build()
	if err != nil {
		p.log.Error("Failed to build event message", "event_type", event.Type, "error", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.log.Warn("Event dropped, publisher closed", "event_type", event.Type)
		return
	}
	select {
	case p.queue <- queued{ctx: context.WithoutCancel(ctx), msg: msg, eventType: event.Type}:
	default:
		p.log.Warn("Event dropped, publish queue full", "event_type", event.Type, "key", msg.Key)
	}
}

func (p *KafkaPublisher) run() {
	defer close(p.done)

	for item := range p.queue {
		ctx, cancel := context.WithTimeout(item.ctx, publishTimeout)
		if err := p.producer.Publish(ctx, item.msg); err != nil {
			p.log.Error("Failed to publish event", "event_type", item.eventType, "key", item.msg.Key, "error", err)
		}
		cancel()
	}
}

func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.producer.Close()
}
