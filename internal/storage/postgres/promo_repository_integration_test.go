package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

func TestPromoRepository_PostgresSaveListDelete(t *testing.T) {
	store := storeForTest(t)
	repo := NewPromoRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	if err := repo.SavePromo(ctx, domain.FlashPromo{ID: "promo-1", Message: "Happy hour", Active: true, CreatedAt: now}); err != nil {
		t.Fatalf("save promo: %v", err)
	}
	if err := repo.SavePromo(ctx, domain.FlashPromo{ID: "promo-2", Message: "Old news", Active: false}); err != nil {
		t.Fatalf("save inactive promo: %v", err)
	}

	active, err := repo.ListActivePromos(ctx)
	if err != nil {
		t.Fatalf("list active promos: %v", err)
	}
	if len(active) != 1 || active[0].Message != "Happy hour" || !active[0].CreatedAt.Equal(now) {
		t.Fatalf("unexpected active promos: %+v", active)
	}

	// Повторный Save с тем же id обновляет строку.
	if err := repo.SavePromo(ctx, domain.FlashPromo{ID: "promo-1", Message: "Happy hour", Active: false}); err != nil {
		t.Fatalf("deactivate promo: %v", err)
	}
	active, err = repo.ListActivePromos(ctx)
	if err != nil {
		t.Fatalf("list after deactivate: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active promos, got %+v", active)
	}

	if err := repo.DeletePromo(ctx, "promo-2"); err != nil {
		t.Fatalf("delete promo: %v", err)
	}
	if err := repo.DeletePromo(ctx, "promo-2"); !errors.Is(err, domain.ErrPromoNotFound) {
		t.Fatalf("expected ErrPromoNotFound, got %v", err)
	}
}
