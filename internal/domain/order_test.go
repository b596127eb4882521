package domain_test

import (
	"strings"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

// helper для создания заказа 2×1000 + 1×2500.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:          "order-1",
		TableNumber: "5",
		TotalMinor:  4500,
		Status:      domain.OrderStatusPending,
		CreatedAt:   now,
		Lines: []domain.OrderLine{
			{ID: "line-1", OrderID: "order-1", MenuItemID: "beer", Qty: 2, UnitPriceMinor: 1000, CreatedAt: now},
			{ID: "line-2", OrderID: "order-1", MenuItemID: "burger", Qty: 1, UnitPriceMinor: 2500, CreatedAt: now},
		},
	}
}

func TestOrderConsistent(t *testing.T) {
	order := makeOrder()
	if got := order.LinesTotalMinor(); got != 4500 {
		t.Fatalf("expected lines total 4500, got %d", got)
	}
	if !order.Consistent() {
		t.Fatal("expected consistent order")
	}

	order.TotalMinor = 4499
	if order.Consistent() {
		t.Fatal("expected mismatch to be inconsistent")
	}

	orphan := makeOrder()
	orphan.Lines = nil
	if orphan.Consistent() {
		t.Fatal("order without lines is a partial submission, not consistent")
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to domain.OrderStatus
		want     bool
	}{
		{domain.OrderStatusPending, domain.OrderStatusDelivered, true},
		{domain.OrderStatusPending, domain.OrderStatusCanceled, true},
		{domain.OrderStatusPending, domain.OrderStatusPending, false},
		{domain.OrderStatusDelivered, domain.OrderStatusPending, false},
		{domain.OrderStatusDelivered, domain.OrderStatusCanceled, false},
		{domain.OrderStatusCanceled, domain.OrderStatusDelivered, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
				t.Fatalf("CanTransitionTo = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValidateTableNumber(t *testing.T) {
	cases := []struct {
		name    string
		table   string
		wantErr bool
	}{
		{name: "single digit", table: "5"},
		{name: "ten chars", table: strings.Repeat("9", 10)},
		{name: "ten multibyte runes", table: strings.Repeat("ñ", 10)},
		{name: "empty", table: "", wantErr: true},
		{name: "eleven chars", table: strings.Repeat("1", 11), wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := domain.ValidateTableNumber(tc.table)
			if tc.wantErr && !domain.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestOrderLineValidate(t *testing.T) {
	line := makeOrder().Lines[0]
	if errs := line.Validate(); len(errs) != 0 {
		t.Fatalf("expected valid line, got %v", errs)
	}

	line.Qty = 0
	line.UnitPriceMinor = -1
	if errs := line.Validate(); len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
}
