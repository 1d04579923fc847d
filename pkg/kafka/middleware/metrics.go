package kafka_middleware

import (
	"context"

	"appointease/pkg/kafka"
	"appointease/pkg/metrics"
)

func MetricsProducerMiddleware(rec metrics.Recorder) kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		err := next(ctx, msg)
		rec.RecordEventPublished(msg.GetEventType(), err)
		return err
	}
}

func MetricsConsumerMiddleware(rec metrics.Recorder) kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		err := next(ctx, msg)
		rec.RecordEventConsumed(msg.GetEventType(), err)
		return err
	}
}
