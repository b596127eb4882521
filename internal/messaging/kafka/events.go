package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

const (
	TopicChangeEvents    = "bar.changes"
	TopicDeadLetterQueue = "bar.changes.dlq"
)

// Заголовки сообщений. Таблица и тип изменения дублируются в заголовках,
// чтобы их можно было фильтровать без разбора тела.
const (
	HeaderTable         = "x-bar-table"
	HeaderChangeType    = "x-bar-change"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
)

// ChangeEnvelope — запись outbox в виде сообщения Kafka.
type ChangeEnvelope struct {
	ID          string          `json:"id"`
	Table       string          `json:"table"`
	RowID       string          `json:"row_id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
	PublishedAt time.Time       `json:"published_at"`
}

func NewChangeEnvelope(msg domain.OutboxMessage) ChangeEnvelope {
	env := ChangeEnvelope{
		ID:          msg.ID,
		Table:       msg.AggregateType,
		RowID:       msg.AggregateID,
		EventType:   msg.EventType,
		OccurredAt:  msg.CreatedAt,
		PublishedAt: time.Now().UTC(),
	}
	if json.Valid(msg.Payload) {
		env.Payload = json.RawMessage(msg.Payload)
	}
	return env
}

// Key — ключ партиционирования: изменения одной строки попадают в одну partition.
func (e ChangeEnvelope) Key() string {
	if e.RowID != "" {
		return e.RowID
	}
	return e.ID
}

func (e ChangeEnvelope) headers() []sarama.RecordHeader {
	return []sarama.RecordHeader{
		{Key: []byte(HeaderTable), Value: []byte(e.Table)},
		{Key: []byte(HeaderChangeType), Value: []byte(e.EventType)},
	}
}

// OutboxMessage восстанавливает запись outbox из конверта.
func (e ChangeEnvelope) OutboxMessage() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            e.ID,
		AggregateType: e.Table,
		AggregateID:   e.RowID,
		EventType:     e.EventType,
		Payload:       []byte(e.Payload),
		CreatedAt:     e.OccurredAt,
	}
}

// ParseChangeEvent читает ChangeEnvelope из сообщения и переводит его в событие ленты.
func ParseChangeEvent(message *sarama.ConsumerMessage) (domain.ChangeEvent, error) {
	var envelope ChangeEnvelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("unmarshal change envelope: %w", err)
	}
	if envelope.Table == "" || envelope.EventType == "" {
		return domain.ChangeEvent{}, fmt.Errorf("change envelope %q has no table or event type", envelope.ID)
	}
	return domain.ChangeEventFromOutbox(envelope.OutboxMessage()), nil
}

// DeadLetter — сообщение, которое relay не смог обработать.
type DeadLetter struct {
	OriginalTopic     string          `json:"original_topic"`
	OriginalPartition int32           `json:"original_partition"`
	OriginalOffset    int64           `json:"original_offset"`
	Key               string          `json:"key,omitempty"`
	Value             json.RawMessage `json:"value,omitempty"`
	RawValue          string          `json:"raw_value,omitempty"`
	Error             string          `json:"error"`
	Attempts          int             `json:"attempts"`
	FailedAt          time.Time       `json:"failed_at"`
}

func newDeadLetter(message *sarama.ConsumerMessage, cause error, attempts int) DeadLetter {
	letter := DeadLetter{
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		Key:               string(message.Key),
		Error:             cause.Error(),
		Attempts:          attempts,
		FailedAt:          time.Now().UTC(),
	}
	if json.Valid(message.Value) {
		letter.Value = json.RawMessage(message.Value)
	} else {
		letter.RawValue = string(message.Value)
	}
	return letter
}
