package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/barflow/internal/app"
)

const (
	envGRPCAddr            = "BAR_GRPC_ADDR"
	envHTTPAddr            = "BAR_HTTP_ADDR"
	envStorageDriver       = "BAR_STORAGE_DRIVER"
	envPostgresDSN         = "BAR_POSTGRES_DSN"
	envPostgresAutoMigrate = "BAR_POSTGRES_AUTO_MIGRATE"
	envKafkaBrokers        = "BAR_KAFKA_BROKERS"
	envKafkaTopic          = "BAR_KAFKA_TOPIC"
	envKafkaGroup          = "BAR_KAFKA_GROUP"
	envOutboxPollInterval  = "BAR_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize     = "BAR_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "BAR_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "BAR_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending    = "BAR_OUTBOX_MAX_PENDING"
	envOutboxMaxAge        = "BAR_OUTBOX_MAX_AGE"
	envOutboxRetention     = "BAR_OUTBOX_RETENTION"
	envSeedDemo            = "BAR_SEED_DEMO"
)

// envLookup совпадает с os.LookupEnv; в тестах подменяется map.
type envLookup func(key string) (string, bool)

// envReader накапливает предупреждения о значениях, которые не удалось применить.
type envReader struct {
	lookup   envLookup
	warnings []string
}

// raw возвращает обрезанное значение; пустая переменная считается незаданной.
func (r *envReader) raw(key string) (string, bool) {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.raw(key); ok {
		*dst = v
	}
}

// readEnv разбирает key через parse и, если значение прошло проверку, пишет его в dst.
func readEnv[T any](r *envReader, key string, dst *T, parse func(string) (T, error), check rule[T]) {
	v, ok := r.raw(key)
	if !ok {
		return
	}
	parsed, err := parse(v)
	if err == nil && check.ok != nil && !check.ok(parsed) {
		err = fmt.Errorf("%v %s", parsed, check.msg)
	}
	if err != nil {
		r.warnings = append(r.warnings, fmt.Sprintf("%s=%q ignored: %v", key, v, err))
		return
	}
	*dst = parsed
}

// rule — ограничение на разобранное значение; нулевое значение пропускает всё.
type rule[T any] struct {
	ok  func(T) bool
	msg string
}

var (
	positiveInt      = rule[int]{ok: func(v int) bool { return v > 0 }, msg: "must be > 0"}
	nonNegativeInt   = rule[int]{ok: func(v int) bool { return v >= 0 }, msg: "must be >= 0"}
	positiveDuration = rule[time.Duration]{ok: func(v time.Duration) bool { return v > 0 }, msg: "must be > 0"}
	nonNegativeDelay = rule[time.Duration]{ok: func(v time.Duration) bool { return v >= 0 }, msg: "must be >= 0"}
)

// readConfigFromEnv накладывает переменные окружения на app.DefaultConfig.
// Некорректное значение оставляет default и добавляет предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	r := &envReader{lookup: lookup}

	r.str(envGRPCAddr, &cfg.GRPCAddr)
	r.str(envHTTPAddr, &cfg.HTTPAddr)
	r.str(envStorageDriver, &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	r.str(envPostgresDSN, &cfg.PostgresDSN)
	readEnv(r, envPostgresAutoMigrate, &cfg.PostgresAutoMigrate, parseBool, rule[bool]{})
	r.str(envKafkaBrokers, &cfg.KafkaBrokers)
	r.str(envKafkaTopic, &cfg.KafkaTopic)
	r.str(envKafkaGroup, &cfg.KafkaGroup)

	readEnv(r, envOutboxPollInterval, &cfg.OutboxPollInterval, time.ParseDuration, positiveDuration)
	readEnv(r, envOutboxBatchSize, &cfg.OutboxBatchSize, strconv.Atoi, positiveInt)
	readEnv(r, envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, strconv.Atoi, positiveInt)
	readEnv(r, envOutboxRetryDelay, &cfg.OutboxRetryDelay, time.ParseDuration, nonNegativeDelay)
	readEnv(r, envOutboxMaxPending, &cfg.OutboxMaxPending, strconv.Atoi, nonNegativeInt)
	// 0 отключает проверку возраста backlog
	readEnv(r, envOutboxMaxAge, &cfg.OutboxMaxAge, time.ParseDuration, nonNegativeDelay)
	readEnv(r, envOutboxRetention, &cfg.OutboxRetention, time.ParseDuration, positiveDuration)
	readEnv(r, envSeedDemo, &cfg.SeedDemo, parseBool, rule[bool]{})

	return cfg, r.warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", raw)
	}
}
