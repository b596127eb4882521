package domain

import (
	"testing"
	"time"
)

func TestResolveActiveBattle(t *testing.T) {
	base := time.Date(2026, 10, 19, 21, 0, 0, 0, time.UTC)

	t.Run("none active", func(t *testing.T) {
		_, ok := ResolveActiveBattle([]GenreBattle{{ID: "b1", Active: false}})
		if ok {
			t.Fatal("expected no active battle")
		}
	})

	t.Run("earliest wins", func(t *testing.T) {
		got, ok := ResolveActiveBattle([]GenreBattle{
			{ID: "late", Active: true, CreatedAt: base.Add(time.Minute)},
			{ID: "inactive", Active: false, CreatedAt: base.Add(-time.Hour)},
			{ID: "early", Active: true, CreatedAt: base},
		})
		if !ok || got.ID != "early" {
			t.Fatalf("expected early, got %+v", got)
		}
	})

	t.Run("id tiebreak", func(t *testing.T) {
		got, _ := ResolveActiveBattle([]GenreBattle{
			{ID: "b2", Active: true, CreatedAt: base},
			{ID: "b1", Active: true, CreatedAt: base},
		})
		if got.ID != "b1" {
			t.Fatalf("expected b1, got %s", got.ID)
		}
	})
}

func TestResolveActivePromo(t *testing.T) {
	base := time.Now()
	got, ok := ResolveActivePromo([]FlashPromo{
		{ID: "p2", Active: true, CreatedAt: base.Add(time.Second)},
		{ID: "p1", Active: true, CreatedAt: base},
	})
	if !ok || got.ID != "p1" {
		t.Fatalf("expected p1, got %+v", got)
	}
	if _, ok := ResolveActivePromo(nil); ok {
		t.Fatal("expected no promo")
	}
}

func TestEventFilterMatch(t *testing.T) {
	var all EventFilter
	if !all.Match(ChangeDelete) {
		t.Fatal("empty filter must match everything")
	}

	updates := EventFilter{ChangeUpdate}
	if updates.Match(ChangeInsert) {
		t.Fatal("insert must not match update-only filter")
	}
	if !updates.Match(ChangeResync) {
		t.Fatal("resync must pass every filter")
	}
}

func TestChangeEventFromOutbox(t *testing.T) {
	at := time.Now().UTC()
	ev := ChangeEventFromOutbox(OutboxMessage{
		ID:            "evt-1",
		AggregateType: string(TableOrders),
		AggregateID:   "order-1",
		EventType:     string(ChangeUpdate),
		Payload:       []byte(`{"new":{"status":"delivered"},"old":{"status":"pending"}}`),
		CreatedAt:     at,
	})

	if ev.Table != TableOrders || ev.Type != ChangeUpdate || ev.RowID != "order-1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if string(ev.NewRow) != `{"status":"delivered"}` || string(ev.OldRow) != `{"status":"pending"}` {
		t.Fatalf("unexpected rows: %s / %s", ev.NewRow, ev.OldRow)
	}
	if !ev.OccurredAt.Equal(at) {
		t.Fatal("expected occurred_at from outbox record")
	}
}

func TestTableValid(t *testing.T) {
	for _, table := range Tables() {
		if !table.Valid() {
			t.Fatalf("expected %s to be valid", table)
		}
	}
	if Table("outbox_messages").Valid() {
		t.Fatal("outbox table must not be published")
	}
	if Table("").Valid() {
		t.Fatal("empty table must be invalid")
	}
}
