package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

const defaultPullLimit = 100

type changeState uint8

const (
	changePending changeState = iota
	changeSent
	changeFailed
)

type changeRecord struct {
	msg      domain.OutboxMessage
	state    changeState
	attempts int
	doneAt   time.Time
}

// OutboxRepository — журнал change-записей в памяти. Записи хранятся в порядке
// постановки, поэтому PullPending не сортирует.
type OutboxRepository struct {
	mu     sync.RWMutex
	log    []*changeRecord
	byID   map[string]*changeRecord
	notify func()
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{byID: make(map[string]*changeRecord)}
}

// OnEnqueue задаёт колбэк после каждой постановки, обычно outbox.Worker.Wake.
func (r *OutboxRepository) OnEnqueue(fn func()) {
	r.mu.Lock()
	r.notify = fn
	r.mu.Unlock()
}

func (r *OutboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	rec := &changeRecord{msg: msg}
	r.log = append(r.log, rec)
	r.byID[msg.ID] = rec
	notify := r.notify
	r.mu.Unlock()

	if notify != nil {
		notify()
	}
	return msg, nil
}

func (r *OutboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultPullLimit
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pending(limit), nil
}

func (r *OutboxRepository) Stats() (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.OutboxStats
	for _, rec := range r.log {
		if rec.state != changePending {
			continue
		}
		if stats.PendingCount == 0 {
			stats.OldestPendingAt = rec.msg.CreatedAt
		}
		stats.PendingCount++
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(id string) error   { return r.finish(id, changeSent) }
func (r *OutboxRepository) MarkFailed(id string) error { return r.finish(id, changeFailed) }

// finish завершает pending-запись; как и в PostgreSQL, повторное завершение даёт ErrOutboxPublish.
func (r *OutboxRepository) finish(id string, state changeState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok || rec.state != changePending {
		return fmt.Errorf("change record %s is not pending: %w", id, domain.ErrOutboxPublish)
	}
	rec.state = state
	rec.attempts++
	rec.doneAt = time.Now().UTC()
	return nil
}

// PurgeFinished удаляет завершённые записи (sent и failed), закрытые раньше olderThan.
// Pending-записи не трогает.
func (r *OutboxRepository) PurgeFinished(ctx context.Context, olderThan time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.log)
	r.log = slices.DeleteFunc(r.log, func(rec *changeRecord) bool {
		if rec.state != changePending && rec.doneAt.Before(olderThan) {
			delete(r.byID, rec.msg.ID)
			return true
		}
		return false
	})
	return int64(before - len(r.log)), nil
}

// AllPending возвращает все недоставленные записи.
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pending(len(r.log))
}

func (r *OutboxRepository) pending(limit int) []domain.OutboxMessage {
	var out []domain.OutboxMessage
	for _, rec := range r.log {
		if len(out) == limit {
			break
		}
		if rec.state == changePending {
			out = append(out, rec.msg)
		}
	}
	return out
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
