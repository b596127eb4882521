package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
	"github.com/vladislavdragonenkov/barflow/internal/storage/memory"
)

type stubPurger struct {
	cutoffs []time.Time
	purged  int64
	err     error
}

func (s *stubPurger) PurgeFinished(_ context.Context, olderThan time.Time) (int64, error) {
	s.cutoffs = append(s.cutoffs, olderThan)
	return s.purged, s.err
}

func TestRetentionWorker_PurgeOnceUsesRetentionCutoff(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	purger := &stubPurger{purged: 4}
	worker := NewRetentionWorker(purger, WithRetention(time.Hour))
	worker.now = func() time.Time { return now }

	assert.Equal(t, int64(4), worker.PurgeOnce(context.Background()))
	require.Len(t, purger.cutoffs, 1)
	assert.Equal(t, now.Add(-time.Hour), purger.cutoffs[0])
}

func TestRetentionWorker_PurgeOnceSwallowsErrors(t *testing.T) {
	t.Parallel()

	worker := NewRetentionWorker(&stubPurger{err: errors.New("db down")})
	assert.Zero(t, worker.PurgeOnce(context.Background()))
}

func TestRetentionWorker_RemovesDeliveredMemoryRecords(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	delivered, err := repo.Enqueue(domain.OutboxMessage{AggregateType: string(domain.TableOrders)})
	require.NoError(t, err)
	_, err = repo.Enqueue(domain.OutboxMessage{AggregateType: string(domain.TableOrders)})
	require.NoError(t, err)
	require.NoError(t, repo.MarkSent(delivered.ID))

	worker := NewRetentionWorker(repo, WithRetention(time.Nanosecond))
	worker.now = func() time.Time { return time.Now().UTC().Add(time.Minute) }

	assert.Equal(t, int64(1), worker.PurgeOnce(context.Background()))
	assert.Len(t, repo.AllPending(), 1)
}

func TestRetentionWorker_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	worker := NewRetentionWorker(&stubPurger{}, WithRetentionInterval(5*time.Millisecond))

	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("retention worker did not stop")
	}
}
