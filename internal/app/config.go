package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/barflow/internal/messaging/kafka"
)

const (
	// StorageDriverMemory хранит данные в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит данные в PostgreSQL.
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска bar-service.
type Config struct {
	GRPCAddr string
	HTTPAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// KafkaBrokers — список брокеров через запятую; пустая строка отключает Kafka relay.
	KafkaBrokers string
	KafkaTopic   string
	KafkaGroup   string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int
	OutboxMaxAge       time.Duration
	OutboxRetention    time.Duration

	SeedDemo bool
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:            ":50051",
		HTTPAddr:            ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		KafkaTopic:          kafka.TopicChangeEvents,
		KafkaGroup:          "bar-service",
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
		OutboxMaxPending:    1000,
		OutboxMaxAge:        time.Minute,
		OutboxRetention:     24 * time.Hour,
	}
}

// Brokers разбирает KafkaBrokers, пропуская пустые элементы.
func (c Config) Brokers() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("postgres storage requires a DSN")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	if c.GRPCAddr == "" || c.HTTPAddr == "" {
		return fmt.Errorf("grpc and http addresses are required")
	}
	if len(c.Brokers()) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("kafka relay requires a topic")
	}
	return nil
}
