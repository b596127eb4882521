package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const clientID = "bar-service"

var producedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bar_kafka_produced_total",
	Help: "Messages sent to Kafka grouped by topic and result.",
}, []string{"topic", "result"})

// Producer — синхронный producer: Send возвращается после подтверждения всех реплик.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
}

// ProducerConfig — идемпотентный producer с ожиданием всех ISR.
func ProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	return config
}

// NewProducer подключается к брокерам.
func NewProducer(brokers []string, logger *log.Entry) (*Producer, error) {
	sync, err := sarama.NewSyncProducer(brokers, ProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return newProducer(sync, logger), nil
}

func newProducer(sync sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{sync: sync, logger: logger}
}

// Send отправляет готовое сообщение.
func (p *Producer) Send(msg *sarama.ProducerMessage) error {
	if p == nil || p.sync == nil {
		return fmt.Errorf("kafka producer is not initialized")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	partition, offset, err := p.sync.SendMessage(msg)
	if err != nil {
		producedMessages.WithLabelValues(msg.Topic, "error").Inc()
		p.logger.WithError(err).WithField("topic", msg.Topic).Error("failed to send message to kafka")
		return fmt.Errorf("send to %s: %w", msg.Topic, err)
	}

	producedMessages.WithLabelValues(msg.Topic, "ok").Inc()
	p.logger.WithFields(log.Fields{
		"topic":     msg.Topic,
		"partition": partition,
		"offset":    offset,
	}).Debug("message sent to kafka")
	return nil
}

// PublishJSON кодирует value в JSON и отправляет с ключом key.
func (p *Producer) PublishJSON(topic, key string, value any, headers ...sarama.RecordHeader) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal kafka message for %s: %w", topic, err)
	}
	return p.Send(&sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.StringEncoder(key),
		Value:   sarama.ByteEncoder(body),
		Headers: headers,
	})
}

func (p *Producer) Close() error {
	if p == nil || p.sync == nil {
		return nil
	}
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
