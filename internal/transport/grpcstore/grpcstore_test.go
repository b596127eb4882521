package grpcstore

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
	"github.com/vladislavdragonenkov/barflow/internal/storage/memory"
)

func startStore(t *testing.T) (*Client, *memory.Store) {
	t.Helper()

	store := memory.NewStore()
	lis := bufconn.Listen(1 << 20)

	srv := grpc.NewServer()
	RegisterStoreServer(srv, NewServer(Repositories{
		Menu:    store,
		Orders:  store,
		Battles: store,
		Promos:  store,
	}, nil))
	go func() {
		_ = srv.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
	})
	return NewClient(conn), store
}

func TestClient_OrderRoundTrip(t *testing.T) {
	client, _ := startStore(t)
	ctx := context.Background()

	require.NoError(t, client.SaveMenuItem(ctx, domain.MenuItem{
		ID: "beer-1", Name: "Lager", PriceMinor: 1000, Category: domain.CategoryBeers, Available: true,
	}))

	created := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	require.NoError(t, client.InsertOrder(ctx, domain.Order{
		ID: "order-1", TableNumber: "5", TotalMinor: 2000, Status: domain.OrderStatusPending, CreatedAt: created,
	}))
	require.NoError(t, client.InsertOrderLines(ctx, []domain.OrderLine{{
		ID: "line-1", OrderID: "order-1", MenuItemID: "beer-1", Qty: 2, UnitPriceMinor: 1000, CreatedAt: created,
	}}))

	pending, err := client.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "5", pending[0].TableNumber)
	assert.True(t, pending[0].CreatedAt.Equal(created))
	require.Len(t, pending[0].Lines, 1)
	require.NotNil(t, pending[0].Lines[0].MenuItem)
	assert.Equal(t, "Lager", pending[0].Lines[0].MenuItem.Name)
	assert.True(t, pending[0].Consistent())

	require.NoError(t, client.UpdateOrderStatus(ctx, "order-1", domain.OrderStatusDelivered))

	got, err := client.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, got.Status)

	pending, err = client.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestClient_MapsDomainErrors(t *testing.T) {
	client, _ := startStore(t)
	ctx := context.Background()

	_, err := client.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
	assert.Equal(t, codes.NotFound, status.Code(err))

	order := domain.Order{ID: "order-1", TableNumber: "1", TotalMinor: 0, Status: domain.OrderStatusPending}
	require.NoError(t, client.InsertOrder(ctx, order))
	require.ErrorIs(t, client.InsertOrder(ctx, order), domain.ErrOrderAlreadyExists)

	require.NoError(t, client.UpdateOrderStatus(ctx, "order-1", domain.OrderStatusCanceled))
	err = client.UpdateOrderStatus(ctx, "order-1", domain.OrderStatusDelivered)
	require.ErrorIs(t, err, domain.ErrInvalidStatusTransition)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	err = client.InsertOrder(ctx, domain.Order{ID: "order-2", TableNumber: "12345678901", Status: domain.OrderStatusPending})
	require.ErrorIs(t, err, domain.ErrValidation)

	err = client.InsertOrderLines(ctx, []domain.OrderLine{{
		ID: "line-x", OrderID: "ghost", MenuItemID: "beer-1", Qty: 1, UnitPriceMinor: 100,
	}})
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	require.ErrorIs(t, client.IncrementVote(ctx, "missing", domain.ChoiceA), domain.ErrBattleNotFound)
	require.ErrorIs(t, client.DeletePromo(ctx, "missing"), domain.ErrPromoNotFound)
}

func TestClient_ConcurrentVotesAreNotLost(t *testing.T) {
	client, store := startStore(t)
	ctx := context.Background()

	require.NoError(t, client.CreateBattle(ctx, domain.GenreBattle{
		ID: "battle-1", GenreA: "Rock", GenreB: "Jazz", Active: true,
	}))

	const voters = 100
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			choice := domain.ChoiceA
			if i%4 == 0 {
				choice = domain.ChoiceB
			}
			assert.NoError(t, client.IncrementVote(ctx, "battle-1", choice))
		}(i)
	}
	wg.Wait()

	battles, err := store.ListActiveBattles(ctx)
	require.NoError(t, err)
	require.Len(t, battles, 1)
	assert.Equal(t, int64(75), battles[0].VotesA)
	assert.Equal(t, int64(25), battles[0].VotesB)

	remote, err := client.ListActiveBattles(ctx)
	require.NoError(t, err)
	require.Len(t, remote, 1)
	assert.Equal(t, battles[0].VotesA+battles[0].VotesB, remote[0].VotesA+remote[0].VotesB)
}

func TestClient_PromosAndCatalog(t *testing.T) {
	client, _ := startStore(t)
	ctx := context.Background()

	require.NoError(t, client.SavePromo(ctx, domain.FlashPromo{ID: "p-1", Message: "Two for one", Active: true}))
	promos, err := client.ListActivePromos(ctx)
	require.NoError(t, err)
	require.Len(t, promos, 1)
	assert.Equal(t, "Two for one", promos[0].Message)
	require.NoError(t, client.DeletePromo(ctx, "p-1"))

	require.NoError(t, client.SaveMenuItem(ctx, domain.MenuItem{ID: "m-1", Name: "Nachos", PriceMinor: 900, Category: domain.CategoryFood, Available: true}))
	require.NoError(t, client.SaveMenuItem(ctx, domain.MenuItem{ID: "m-2", Name: "Gone", PriceMinor: 900, Category: domain.CategoryFood}))
	items, err := client.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "m-1", items[0].ID)

	require.ErrorIs(t, client.SaveMenuItem(ctx, domain.MenuItem{ID: "m-3", Category: "wine"}), domain.ErrCategoryInvalid)
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{name: "not found", err: domain.ErrOrderNotFound, code: codes.NotFound},
		{name: "wrapped duplicate", err: errors.Join(errors.New("insert"), domain.ErrOrderAlreadyExists), code: codes.AlreadyExists},
		{name: "validation", err: &domain.ValidationError{Field: "table_number", Reason: "is required"}, code: codes.InvalidArgument},
		{name: "no battle", err: domain.ErrNoActiveBattle, code: codes.FailedPrecondition},
		{name: "deadline", err: context.DeadlineExceeded, code: codes.DeadlineExceeded},
		{name: "unknown", err: errors.New("disk on fire"), code: codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, status.Code(toStatus(tt.err)))
		})
	}

	assert.NoError(t, toStatus(nil))
	assert.Equal(t, "store operation failed", status.Convert(toStatus(errors.New("secret dsn"))).Message())
}

func TestFromStatus(t *testing.T) {
	err := fromStatus(status.Error(codes.FailedPrecondition, "vote for b-1: no active genre battle"))
	require.ErrorIs(t, err, domain.ErrNoActiveBattle)
	assert.Equal(t, "vote for b-1: no active genre battle", err.Error())

	err = fromStatus(status.Error(codes.InvalidArgument, "table_number is required"))
	require.ErrorIs(t, err, domain.ErrValidation)

	err = fromStatus(status.Error(codes.Unavailable, "connection refused"))
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.False(t, errors.Is(err, domain.ErrOrderNotFound))

	plain := errors.New("plain")
	assert.Same(t, plain, fromStatus(plain))
	assert.NoError(t, fromStatus(nil))
}

func TestJSONCodec(t *testing.T) {
	codec := jsonCodec{}
	assert.Equal(t, CodecName, codec.Name())

	data, err := codec.Marshal(&incrementVoteRequest{BattleID: "b-1", Choice: "a"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"battle_id":"b-1","choice":"a"}`, string(data))

	var req incrementVoteRequest
	require.NoError(t, codec.Unmarshal(data, &req))
	assert.Equal(t, "b-1", req.BattleID)

	require.NoError(t, codec.Unmarshal(nil, &req))
	require.Error(t, codec.Unmarshal([]byte("{"), &req))
}
