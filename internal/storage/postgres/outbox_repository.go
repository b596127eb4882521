package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

const defaultPullLimit = 100

type outboxStatus string

const (
	outboxPending outboxStatus = "pending"
	outboxSent    outboxStatus = "sent"
	outboxFailed  outboxStatus = "failed"
)

const (
	insertChangeSQL = `
INSERT INTO outbox_messages (id, aggregate_type, aggregate_id, event_type, payload, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`

	selectPendingSQL = `
SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
FROM outbox_messages
WHERE status = $1
ORDER BY created_at, id
LIMIT $2`

	pendingStatsSQL = `SELECT COUNT(*), MIN(created_at) FROM outbox_messages WHERE status = $1`

	finishChangeSQL = `
UPDATE outbox_messages
SET status = $2, attempt_count = attempt_count + 1, updated_at = NOW()
WHERE id = $1 AND status = 'pending'`

	purgeChangesSQL = `DELETE FROM outbox_messages WHERE status IN ($1, $2) AND updated_at < $3`
)

// OutboxRepository читает change-записи, которые пишут триггеры bar_record_change.
// Методы без ctx ограничены opTimeout.
type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{db: store.DB()}
}

// Enqueue нужен для записей вне триггеров, например принудительного resync.
func (r *OutboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	if len(msg.Payload) == 0 {
		msg.Payload = []byte("{}")
	}

	if _, err := r.db.ExecContext(ctx, insertChangeSQL,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, string(outboxPending), msg.CreatedAt,
	); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue change record for %s: %w", msg.AggregateType, err)
	}
	return msg, nil
}

// PullPending возвращает до limit старейших недоставленных записей в порядке их создания.
func (r *OutboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = defaultPullLimit
	}
	rows, err := r.db.QueryContext(ctx, selectPendingSQL, string(outboxPending), limit)
	if err != nil {
		return nil, fmt.Errorf("pull pending change records: %w", err)
	}
	defer rows.Close()

	var pending []domain.OutboxMessage
	for rows.Next() {
		msg, err := scanChangeRecord(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read pending change records: %w", err)
	}
	return pending, nil
}

func scanChangeRecord(rows *sql.Rows) (domain.OutboxMessage, error) {
	var msg domain.OutboxMessage
	if err := rows.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload, &msg.CreatedAt); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("scan change record: %w", err)
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return msg, nil
}

func (r *OutboxRepository) Stats() (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	if err := r.db.QueryRowContext(ctx, pendingStatsSQL, string(outboxPending)).Scan(&stats.PendingCount, &oldest); err != nil {
		return domain.OutboxStats{}, fmt.Errorf("query outbox stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(id string) error   { return r.finish(id, outboxSent) }
func (r *OutboxRepository) MarkFailed(id string) error { return r.finish(id, outboxFailed) }

// finish переводит pending-запись в конечный статус. Запись, которой нет
// или которая уже завершена, даёт domain.ErrOutboxPublish.
func (r *OutboxRepository) finish(id string, status outboxStatus) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, finishChangeSQL, id, string(status))
	if err != nil {
		return fmt.Errorf("mark change record %s as %s: %w", id, status, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("mark change record %s: %w", id, err)
	} else if n == 0 {
		return fmt.Errorf("change record %s is not pending: %w", id, domain.ErrOutboxPublish)
	}
	return nil
}

// PurgeFinished удаляет sent- и failed-записи, обновлённые раньше olderThan.
func (r *OutboxRepository) PurgeFinished(ctx context.Context, olderThan time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, purgeChangesSQL, string(outboxSent), string(outboxFailed), olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge finished change records: %w", err)
	}
	return res.RowsAffected()
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
