package repository

import (
	"context"

	"FxSignal/internal/domain/models"
	domrepo "FxSignal/internal/domain/repository"
)

// Producer is the subset of pkg/kafka.Producer used for signal events.
type Producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaEventPublisher sends each event to the topic named after its type, keyed
// by signal id so events of one signal stay ordered.
type KafkaEventPublisher struct {
	producer Producer
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)

func NewKafkaEventPublisher(producer Producer) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer}
}

func (p *KafkaEventPublisher) PublishSignalEvent(ctx context.Context, ev models.SignalEvent) error {
	return p.producer.Publish(ctx, ev.Type, []byte(ev.Signal.ID), ev)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NoopPublisher drops events. Used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishSignalEvent(context.Context, models.SignalEvent) error { return nil }
func (NoopPublisher) Close() error                                              { return nil }
