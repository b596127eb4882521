package domain

import (
	"time"
	"unicode/utf8"
)

// OrderStatus описывает жизненный цикл заказа у стойки.
type OrderStatus string

const (
	// OrderStatusPending — заказ принят и ждёт выдачи.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusDelivered — заказ выдан за столик.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCanceled — заказ отменён персоналом.
	OrderStatusCanceled OrderStatus = "canceled"
)

// MaxTableNumberLen — максимальная длина номера столика в символах.
const MaxTableNumberLen = 10

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusDelivered, OrderStatusCanceled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса больше нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCanceled
}

// CanTransitionTo реализует монотонность статусов: только pending → delivered|canceled.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return s == OrderStatusPending && next.Terminal()
}

// OrderLine — позиция заказа с ценой, зафиксированной на момент заказа.
type OrderLine struct {
	ID         string
	OrderID    string
	MenuItemID string
	Qty        int32
	// UnitPriceMinor не зависит от последующих изменений каталога.
	UnitPriceMinor int64
	CreatedAt      time.Time
	// MenuItem заполняется хранилищем при чтении, если позиция каталога существует.
	MenuItem *MenuItem
}

// ExtensionMinor возвращает стоимость строки: qty * цена.
func (l OrderLine) ExtensionMinor() int64 {
	return int64(l.Qty) * l.UnitPriceMinor
}

// Order — заголовок заказа и его позиции.
type Order struct {
	ID          string
	TableNumber string
	// TotalMinor считается клиентом и хранилищем не пересчитывается.
	TotalMinor int64
	Status     OrderStatus
	CreatedAt  time.Time
	Lines      []OrderLine
}

// LinesTotalMinor суммирует стоимость позиций заказа.
func (o Order) LinesTotalMinor() int64 {
	var sum int64
	for _, line := range o.Lines {
		sum += line.ExtensionMinor()
	}
	return sum
}

// Consistent сообщает, что сумма позиций совпадает с TotalMinor.
// Заказ без позиций после частичной отправки здесь не согласован.
func (o Order) Consistent() bool {
	return len(o.Lines) > 0 && o.LinesTotalMinor() == o.TotalMinor
}

// ValidateTableNumber проверяет номер столика: 1..MaxTableNumberLen символов.
func ValidateTableNumber(table string) error {
	n := utf8.RuneCountInString(table)
	switch {
	case n == 0:
		return &ValidationError{Field: "table_number", Reason: "is required"}
	case n > MaxTableNumberLen:
		return &ValidationError{Field: "table_number", Reason: "must be at most 10 characters"}
	default:
		return nil
	}
}

// ValidateHeader проверяет заголовок заказа перед записью.
func (o Order) ValidateHeader() []error {
	var errs []error
	if o.ID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if err := ValidateTableNumber(o.TableNumber); err != nil {
		errs = append(errs, err)
	}
	if o.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrOrderStatusInvalid)
	}
	return errs
}

// Validate проверяет позицию заказа перед записью.
func (l OrderLine) Validate() []error {
	var errs []error
	if l.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if l.MenuItemID == "" {
		errs = append(errs, ErrMenuItemIDRequired)
	}
	if l.Qty <= 0 {
		errs = append(errs, ErrItemQtyInvalid)
	}
	if l.UnitPriceMinor < 0 {
		errs = append(errs, ErrItemPriceInvalid)
	}
	return errs
}
