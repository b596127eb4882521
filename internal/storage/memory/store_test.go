package memory_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
	"github.com/vladislavdragonenkov/barflow/internal/storage/memory"
)

var t0 = time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

func seedOrder(t *testing.T, s *memory.Store, id string, createdAt time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.InsertOrder(ctx, domain.Order{ID: id, TableNumber: "5", TotalMinor: 4500, CreatedAt: createdAt}))
	require.NoError(t, s.InsertOrderLines(ctx, []domain.OrderLine{
		{ID: id + "-b", OrderID: id, MenuItemID: "ipa", Qty: 2, UnitPriceMinor: 1000, CreatedAt: createdAt},
		{ID: id + "-c", OrderID: id, MenuItemID: "mojito", Qty: 1, UnitPriceMinor: 2500, CreatedAt: createdAt.Add(time.Millisecond)},
	}))
}

func TestStore_ListAvailableFiltersUnavailable(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	require.NoError(t, s.SaveMenuItem(ctx, domain.MenuItem{ID: "ipa", Name: "IPA", Category: domain.CategoryBeers, PriceMinor: 1000, Available: true}))
	require.NoError(t, s.SaveMenuItem(ctx, domain.MenuItem{ID: "old", Name: "Old", Category: domain.CategoryBeers, PriceMinor: 1000, Available: false}))
	require.Error(t, s.SaveMenuItem(ctx, domain.MenuItem{ID: "bad", Category: "wine"}))

	items, err := s.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "ipa", items[0].ID)
}

func TestStore_OrderRoundTripWithLines(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, s.SaveMenuItem(ctx, domain.MenuItem{ID: "ipa", Name: "IPA", Category: domain.CategoryBeers, PriceMinor: 1000, Available: true}))

	seedOrder(t, s, "o-1", t0)

	order, err := s.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	require.Len(t, order.Lines, 2)
	assert.Equal(t, int32(2), order.Lines[0].Qty)
	require.NotNil(t, order.Lines[0].MenuItem)
	assert.Equal(t, "IPA", order.Lines[0].MenuItem.Name)
	assert.Nil(t, order.Lines[1].MenuItem)
	assert.True(t, order.Consistent())
}

func TestStore_InsertOrderRejectsDuplicate(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	order := domain.Order{ID: "o-1", TableNumber: "5", TotalMinor: 100}

	require.NoError(t, s.InsertOrder(ctx, order))
	require.ErrorIs(t, s.InsertOrder(ctx, order), domain.ErrOrderAlreadyExists)
}

func TestStore_InsertOrderLinesIsAllOrNothing(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, s.InsertOrder(ctx, domain.Order{ID: "o-1", TableNumber: "5", TotalMinor: 100}))

	err := s.InsertOrderLines(ctx, []domain.OrderLine{
		{ID: "l-1", OrderID: "o-1", MenuItemID: "ipa", Qty: 1, UnitPriceMinor: 100},
		{ID: "l-2", OrderID: "missing", MenuItemID: "ipa", Qty: 1, UnitPriceMinor: 100},
	})
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	order, err := s.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.Empty(t, order.Lines)
}

func TestStore_ListPendingOldestFirst(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	seedOrder(t, s, "o-late", t0.Add(time.Minute))
	seedOrder(t, s, "o-early", t0)
	seedOrder(t, s, "o-done", t0.Add(-time.Minute))
	require.NoError(t, s.UpdateOrderStatus(ctx, "o-done", domain.OrderStatusDelivered))

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "o-early", pending[0].ID)
	assert.Equal(t, "o-late", pending[1].ID)
}

func TestStore_UpdateOrderStatusIsMonotone(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	seedOrder(t, s, "o-1", t0)

	require.NoError(t, s.UpdateOrderStatus(ctx, "o-1", domain.OrderStatusDelivered))
	require.NoError(t, s.UpdateOrderStatus(ctx, "o-1", domain.OrderStatusDelivered))
	require.ErrorIs(t, s.UpdateOrderStatus(ctx, "o-1", domain.OrderStatusPending), domain.ErrInvalidStatusTransition)
	require.ErrorIs(t, s.UpdateOrderStatus(ctx, "o-1", domain.OrderStatusCanceled), domain.ErrInvalidStatusTransition)
	require.ErrorIs(t, s.UpdateOrderStatus(ctx, "missing", domain.OrderStatusDelivered), domain.ErrOrderNotFound)
	require.ErrorIs(t, s.UpdateOrderStatus(ctx, "o-1", domain.OrderStatus("lost")), domain.ErrOrderStatusInvalid)
}

func TestStore_IncrementVoteConcurrent(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, s.CreateBattle(ctx, domain.GenreBattle{ID: "b-1", GenreA: "rock", GenreB: "jazz", Active: true}))

	const voters = 500
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			choice := domain.ChoiceA
			if i%5 == 0 {
				choice = domain.ChoiceB
			}
			assert.NoError(t, s.IncrementVote(ctx, "b-1", choice))
		}(i)
	}
	wg.Wait()

	battles, err := s.ListActiveBattles(ctx)
	require.NoError(t, err)
	require.Len(t, battles, 1)
	assert.Equal(t, int64(400), battles[0].VotesA)
	assert.Equal(t, int64(100), battles[0].VotesB)

	require.ErrorIs(t, s.IncrementVote(ctx, "missing", domain.ChoiceA), domain.ErrBattleNotFound)
	require.ErrorIs(t, s.IncrementVote(ctx, "b-1", domain.Choice("x")), domain.ErrUnknownChoice)
}

func TestStore_PromoLifecycle(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	require.NoError(t, s.SavePromo(ctx, domain.FlashPromo{ID: "p-1", Message: "Happy hour", Active: true}))
	active, err := s.ListActivePromos(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, s.SavePromo(ctx, domain.FlashPromo{ID: "p-1", Message: "Happy hour", Active: false}))
	active, err = s.ListActivePromos(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, s.DeletePromo(ctx, "p-1"))
	require.ErrorIs(t, s.DeletePromo(ctx, "p-1"), domain.ErrPromoNotFound)
}

func TestStore_WritesProduceChangeRecords(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	seedOrder(t, s, "o-1", t0)
	require.NoError(t, s.UpdateOrderStatus(ctx, "o-1", domain.OrderStatusDelivered))

	pending := s.Outbox().AllPending()
	require.Len(t, pending, 4)

	events := make([]domain.ChangeEvent, 0, len(pending))
	for _, msg := range pending {
		events = append(events, domain.ChangeEventFromOutbox(msg))
	}
	assert.Equal(t, domain.TableOrders, events[0].Table)
	assert.Equal(t, domain.ChangeInsert, events[0].Type)
	assert.Equal(t, domain.TableOrderItems, events[1].Table)
	assert.Equal(t, domain.TableOrderItems, events[2].Table)
	assert.Equal(t, domain.ChangeUpdate, events[3].Type)
	assert.Equal(t, "o-1", events[3].RowID)

	var row struct {
		Status     string `json:"status"`
		TotalPrice int64  `json:"total_price"`
	}
	require.NoError(t, json.Unmarshal(events[3].NewRow, &row))
	assert.Equal(t, "delivered", row.Status)
	assert.Equal(t, int64(4500), row.TotalPrice)
	require.NoError(t, json.Unmarshal(events[3].OldRow, &row))
	assert.Equal(t, "pending", row.Status)
}

func TestStore_CanceledContextWritesNothing(t *testing.T) {
	s := memory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, s.InsertOrder(ctx, domain.Order{ID: "o-1", TableNumber: "5"}), context.Canceled)
	assert.Empty(t, s.Outbox().AllPending())
}
