package kafka

import (
	"errors"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

// OutboxTopicPublisher отдаёт записи outbox в topic как ChangeEnvelope.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт publisher для outbox worker; пустой topic означает TopicChangeEvents.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicChangeEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

func (p *OutboxTopicPublisher) Publish(record domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}
	env := NewChangeEnvelope(record)
	return p.producer.PublishJSON(p.topic, env.Key(), env, env.headers()...)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
