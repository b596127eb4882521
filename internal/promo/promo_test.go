package promo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/barflow/internal/changefeed"
	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

func TestBroadcaster_ReplacesActivePromo(t *testing.T) {
	t.Parallel()

	repo := newStubPromos()
	b := NewBroadcaster(repo, nil)

	first, err := b.Broadcast(context.Background(), "  Happy hour!  ")
	require.NoError(t, err)
	assert.Equal(t, "Happy hour!", first.Message)

	second, err := b.Broadcast(context.Background(), "Shots 2 for 1")
	require.NoError(t, err)

	active, err := repo.ListActivePromos(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
	assert.False(t, repo.get(first.ID).Active)
}

func TestBroadcaster_ValidatesMessage(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster(newStubPromos(), nil)

	_, err := b.Broadcast(context.Background(), "   ")
	assert.True(t, domain.IsValidation(err))

	long := make([]rune, MaxMessageLen+1)
	for i := range long {
		long[i] = 'ж'
	}
	_, err = b.Broadcast(context.Background(), string(long))
	assert.True(t, domain.IsValidation(err))
}

func TestBanner_DeleteAndDeactivateBothHide(t *testing.T) {
	t.Parallel()

	hub := changefeed.NewHub()
	repo := newStubPromos()
	b := NewBroadcaster(repo, nil)
	banner := NewBanner(repo)
	require.NoError(t, banner.Start(context.Background(), changefeed.NewSubscriber(hub, nil, nil)))
	defer banner.Close()

	_, shown := banner.Current()
	require.False(t, shown)

	p, err := b.Broadcast(context.Background(), "Happy hour!")
	require.NoError(t, err)
	hub.Dispatch(domain.ChangeEvent{Table: domain.TableFlashPromos, Type: domain.ChangeInsert, RowID: p.ID})
	require.Eventually(t, func() bool {
		cur, ok := banner.Current()
		return ok && cur.ID == p.ID
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Clear(context.Background()))
	hub.Dispatch(domain.ChangeEvent{Table: domain.TableFlashPromos, Type: domain.ChangeUpdate, RowID: p.ID})
	require.Eventually(t, func() bool {
		_, ok := banner.Current()
		return !ok
	}, time.Second, 5*time.Millisecond)

	p2, err := b.Broadcast(context.Background(), "Last call")
	require.NoError(t, err)
	hub.Dispatch(domain.ChangeEvent{Table: domain.TableFlashPromos, Type: domain.ChangeInsert, RowID: p2.ID})
	require.Eventually(t, func() bool {
		_, ok := banner.Current()
		return ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Remove(context.Background(), p2.ID))
	hub.Dispatch(domain.ChangeEvent{Table: domain.TableFlashPromos, Type: domain.ChangeDelete, RowID: p2.ID})
	require.Eventually(t, func() bool {
		_, ok := banner.Current()
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestBanner_OverlappingReconcileKeepsNewestPromo(t *testing.T) {
	t.Parallel()

	repo := newStubPromos()
	b := NewBroadcaster(repo, nil)
	banner := NewBanner(repo)
	p, err := b.Broadcast(context.Background(), "Happy hour!")
	require.NoError(t, err)
	require.NoError(t, banner.Reconcile(context.Background()))

	hold := make(chan struct{})
	repo.mu.Lock()
	repo.holdList = hold
	repo.mu.Unlock()

	slow := make(chan error, 1)
	go func() { slow <- banner.Reconcile(context.Background()) }()
	<-hold

	require.NoError(t, b.Remove(context.Background(), p.ID))
	require.NoError(t, banner.Reconcile(context.Background()))
	_, shown := banner.Current()
	require.False(t, shown)

	hold <- struct{}{}
	require.NoError(t, <-slow)

	_, shown = banner.Current()
	assert.False(t, shown)
}

type stubPromos struct {
	mu       sync.Mutex
	promos   map[string]domain.FlashPromo
	holdList chan struct{}
}

func newStubPromos() *stubPromos {
	return &stubPromos{promos: make(map[string]domain.FlashPromo)}
}

func (s *stubPromos) get(id string) domain.FlashPromo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promos[id]
}

func (s *stubPromos) ListActivePromos(context.Context) ([]domain.FlashPromo, error) {
	s.mu.Lock()
	var result []domain.FlashPromo
	for _, p := range s.promos {
		if p.Active {
			result = append(result, p)
		}
	}
	hold := s.holdList
	s.holdList = nil
	s.mu.Unlock()

	if hold != nil {
		hold <- struct{}{}
		<-hold
	}
	return result, nil
}

func (s *stubPromos) SavePromo(_ context.Context, p domain.FlashPromo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promos[p.ID] = p
	return nil
}

func (s *stubPromos) DeletePromo(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.promos[id]; !ok {
		return domain.ErrPromoNotFound
	}
	delete(s.promos, id)
	return nil
}
