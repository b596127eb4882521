package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
	"github.com/vladislavdragonenkov/barflow/internal/messaging/kafka"
)

const relayMaxRetries = 3

// kafkaRelay связывает экземпляры через Kafka: outbox worker пишет в topic изменений,
// а consumer каждого экземпляра возвращает события в локальный Hub.
type kafkaRelay struct {
	producer *kafka.Producer
	consumer *kafka.Consumer
	topic    string
	groupID  string
	logger   *log.Entry
}

// relayGroupID выдаёт каждому экземпляру свою consumer group: все экземпляры должны видеть все изменения.
func relayGroupID(base string) string {
	if base == "" {
		base = "bar-service"
	}
	return fmt.Sprintf("%s-%s", base, uuid.NewString()[:8])
}

// startKafkaRelay возвращает nil, nil без брокеров. При ошибке всё созданное уже закрыто.
func startKafkaRelay(ctx context.Context, cfg Config, dispatch func(domain.ChangeEvent), logger *log.Entry) (*kafkaRelay, error) {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, logger.WithField("component", "kafka-producer"))
	if err != nil {
		return nil, err
	}
	r := &kafkaRelay{
		producer: producer,
		topic:    cfg.KafkaTopic,
		groupID:  relayGroupID(cfg.KafkaGroup),
		logger:   logger,
	}

	r.consumer, err = kafka.NewConsumer(
		brokers,
		r.groupID,
		[]string{r.topic},
		kafka.ChangeRelayHandler(dispatch, logger.WithField("component", "kafka-change-relay")),
		kafka.WithDeadLetter(producer, kafka.TopicDeadLetterQueue),
		kafka.WithMaxRetries(relayMaxRetries),
		kafka.WithConsumerLogger(logger.WithField("component", "kafka-consumer")),
	)
	if err == nil {
		err = r.consumer.Start(ctx)
	}
	if err != nil {
		r.close()
		return nil, fmt.Errorf("start kafka change relay: %w", err)
	}

	logger.WithFields(log.Fields{
		"brokers": brokers,
		"topic":   r.topic,
		"group":   r.groupID,
	}).Info("kafka change relay started")
	return r, nil
}

// publishers возвращает publisher изменений и DLQ для outbox worker.
// Без relay изменения идут прямо в local, DLQ нет.
func (r *kafkaRelay) publishers(local domain.OutboxPublisher) (changes, deadLetters domain.OutboxPublisher) {
	if r == nil {
		return local, nil
	}
	return kafka.NewOutboxPublisher(r.producer, r.topic), kafka.NewOutboxPublisher(r.producer, kafka.TopicDeadLetterQueue)
}

// close сначала останавливает consumer, потому что он пишет в DLQ через producer.
func (r *kafkaRelay) close() {
	if r == nil {
		return
	}
	if r.consumer != nil {
		if err := r.consumer.Stop(); err != nil {
			r.logger.WithError(err).Warn("failed to stop kafka consumer")
		}
	}
	if err := r.producer.Close(); err != nil {
		r.logger.WithError(err).Warn("failed to close kafka producer")
	}
}
