package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 100 * time.Millisecond
)

var consumedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bar_kafka_consumed_total",
	Help: "Messages read from Kafka grouped by topic and outcome.",
}, []string{"topic", "outcome"})

// MessageHandler обрабатывает одно сообщение. Ошибка означает повтор.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*Consumer)

// WithDeadLetter включает DLQ: сообщение, не обработанное за maxRetries попыток, уходит в topic.
func WithDeadLetter(producer *Producer, topic string) ConsumerOption {
	return func(c *Consumer) {
		c.dlq = producer
		if topic != "" {
			c.dlqTopic = topic
		}
	}
}

func WithMaxRetries(n int) ConsumerOption {
	return func(c *Consumer) { c.maxRetries = n }
}

func WithRetryDelay(d time.Duration) ConsumerOption {
	return func(c *Consumer) { c.retryDelay = d }
}

func WithConsumerLogger(logger *log.Entry) ConsumerOption {
	return func(c *Consumer) { c.logger = logger }
}

// Consumer читает topics в consumer group и передаёт сообщения handler.
// Смещение фиксируется после успешной обработки или после отправки в DLQ.
type Consumer struct {
	group      sarama.ConsumerGroup
	topics     []string
	handler    MessageHandler
	logger     *log.Entry
	dlq        *Producer
	dlqTopic   string
	maxRetries int
	retryDelay time.Duration
	wg         sync.WaitGroup
}

// ConsumerConfig — группа начинает с новых сообщений: представления всё равно делают начальную загрузку.
func ConsumerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true
	return config
}

// NewConsumer подключается к брокерам как участник groupID.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler, opts ...ConsumerOption) (*Consumer, error) {
	group, err := sarama.NewConsumerGroup(brokers, groupID, ConsumerConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group %s: %w", groupID, err)
	}
	return newConsumer(group, topics, handler, opts...), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		group:      group,
		topics:     topics,
		handler:    handler,
		dlqTopic:   TopicDeadLetterQueue,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 1
	}
	if c.retryDelay < 0 {
		c.retryDelay = 0
	}
	if c.logger == nil {
		c.logger = log.WithField("component", "kafka-consumer")
	}
	return c
}

// Start запускает чтение в фоне до отмены ctx или Stop.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		// Consume возвращается на каждом rebalance.
		for ctx.Err() == nil {
			if err := c.group.Consume(ctx, c.topics, c); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.WithError(err).Error("consume session failed")
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.WithError(err).Warn("consumer group error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает группу и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	err := c.group.Close()
	c.wg.Wait()
	if err != nil {
		return fmt.Errorf("close kafka consumer group: %w", err)
	}
	c.logger.Info("kafka consumer stopped")
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim обрабатывает сообщения одной partition по порядку.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			if err := c.process(ctx, message); err != nil {
				c.logger.WithError(err).WithFields(messageFields(message)).Error("message left unprocessed")
				continue
			}
			session.MarkMessage(message, "")
		}
	}
}

// process вызывает handler до исчерпания попыток. Попытки, сделанные до повторной
// публикации сообщения, берутся из заголовка HeaderRetryCount.
func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) error {
	prior := retryCount(message)
	budget := max(c.maxRetries-prior, 1)

	var err error
	for attempt := 1; attempt <= budget; attempt++ {
		if err = c.handler(ctx, message); err == nil {
			consumedMessages.WithLabelValues(message.Topic, "processed").Inc()
			return nil
		}
		if attempt == budget {
			break
		}
		c.logger.WithError(err).WithFields(messageFields(message)).WithField("attempt", prior+attempt).
			Warn("message handler failed, retrying")
		if c.retryDelay == 0 {
			continue
		}
		timer := time.NewTimer(c.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	consumedMessages.WithLabelValues(message.Topic, "failed").Inc()
	if c.dlq == nil {
		return err
	}
	if dlqErr := c.deadLetter(message, err, prior+budget); dlqErr != nil {
		return fmt.Errorf("handler failed (%v) and dead letter failed: %w", err, dlqErr)
	}
	consumedMessages.WithLabelValues(message.Topic, "dead_letter").Inc()
	c.logger.WithFields(messageFields(message)).Info("message moved to DLQ")
	return nil
}

func (c *Consumer) deadLetter(message *sarama.ConsumerMessage, cause error, attempts int) error {
	return c.dlq.PublishJSON(c.dlqTopic, string(message.Key), newDeadLetter(message, cause, attempts),
		sarama.RecordHeader{Key: []byte(HeaderRetryCount), Value: []byte(strconv.Itoa(attempts))},
		sarama.RecordHeader{Key: []byte(HeaderOriginalTopic), Value: []byte(message.Topic)},
	)
}

// retryCount читает HeaderRetryCount; без заголовка или с мусором возвращает 0.
func retryCount(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if header == nil || string(header.Key) != HeaderRetryCount {
			continue
		}
		if n, err := strconv.Atoi(string(header.Value)); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func messageFields(message *sarama.ConsumerMessage) log.Fields {
	return log.Fields{
		"topic":     message.Topic,
		"partition": message.Partition,
		"offset":    message.Offset,
	}
}

// ChangeRelayHandler передаёт события из topic изменений в локальную ленту.
// Нечитаемое сообщение пропускается: повтор не сделает его читаемым.
func ChangeRelayHandler(dispatch func(domain.ChangeEvent), logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "kafka-change-relay")
	}
	return func(_ context.Context, message *sarama.ConsumerMessage) error {
		ev, err := ParseChangeEvent(message)
		if err != nil {
			logger.WithError(err).WithFields(messageFields(message)).Warn("skipping malformed change event")
			return nil
		}
		dispatch(ev)
		return nil
	}
}
