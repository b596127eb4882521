package postgres

import (
	"context"
	"testing"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

func TestMenuRepository_PostgresListAvailable(t *testing.T) {
	store := storeForTest(t)
	repo := NewMenuRepository(store)
	ctx := context.Background()

	items := []domain.MenuItem{
		{ID: "m-3", Name: "Wings", PriceMinor: 1800, Category: domain.CategoryFood, Available: true},
		{ID: "m-1", Name: "Stout", PriceMinor: 1200, Category: domain.CategoryBeers, Available: true, Description: "dark"},
		{ID: "m-2", Name: "Ale", PriceMinor: 1100, Category: domain.CategoryBeers, Available: true},
		{ID: "m-4", Name: "Sold out", PriceMinor: 900, Category: domain.CategoryShots, Available: false},
	}
	for _, item := range items {
		if err := repo.SaveMenuItem(ctx, item); err != nil {
			t.Fatalf("save %s: %v", item.ID, err)
		}
	}

	got, err := repo.ListAvailable(ctx)
	if err != nil {
		t.Fatalf("list available: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 available items, got %d", len(got))
	}
	if got[0].ID != "m-2" || got[1].ID != "m-1" || got[2].ID != "m-3" {
		t.Fatalf("unexpected order: %s %s %s", got[0].ID, got[1].ID, got[2].ID)
	}
	if got[1].Description != "dark" || got[0].Description != "" {
		t.Fatalf("unexpected descriptions: %+v", got[:2])
	}

	// Upsert: позиция снята с продажи.
	items[0].Available = false
	if err := repo.SaveMenuItem(ctx, items[0]); err != nil {
		t.Fatalf("update item: %v", err)
	}
	got, err = repo.ListAvailable(ctx)
	if err != nil {
		t.Fatalf("list after update: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 available items, got %d", len(got))
	}

	if err := repo.SaveMenuItem(ctx, domain.MenuItem{ID: "bad", Category: "wine"}); err == nil {
		t.Fatal("expected validation error for unknown category")
	}
}
