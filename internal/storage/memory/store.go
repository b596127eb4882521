// Package memory — хранилище бара в памяти процесса для локальной разработки и тестов.
//
// Каждая запись под тем же мьютексом кладёт change-запись в outbox, поэтому
// уведомление не может опередить изменение, которое оно описывает.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

// Store реализует репозитории каталога, заказов, битв и промо.
type Store struct {
	mu      sync.RWMutex
	menu    map[string]domain.MenuItem
	orders  map[string]domain.Order
	lines   map[string][]domain.OrderLine
	lineIDs map[string]struct{}
	battles map[string]domain.GenreBattle
	promos  map[string]domain.FlashPromo

	outbox *OutboxRepository
	now    func() time.Time
}

// NewStore создаёт пустое хранилище со своим outbox.
func NewStore() *Store {
	return &Store{
		menu:    make(map[string]domain.MenuItem),
		orders:  make(map[string]domain.Order),
		lines:   make(map[string][]domain.OrderLine),
		lineIDs: make(map[string]struct{}),
		battles: make(map[string]domain.GenreBattle),
		promos:  make(map[string]domain.FlashPromo),
		outbox:  NewOutboxRepository(),
		now:     time.Now,
	}
}

// Outbox возвращает журнал изменений хранилища.
func (s *Store) Outbox() *OutboxRepository {
	return s.outbox
}

// Ping всегда успешен: хранилище локальное.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// ListAvailable возвращает доступные позиции меню по категории и имени.
func (s *Store) ListAvailable(ctx context.Context) ([]domain.MenuItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.MenuItem, 0, len(s.menu))
	for _, item := range s.menu {
		if item.Available {
			result = append(result, item)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Category != result[j].Category {
			return result[i].Category < result[j].Category
		}
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// SaveMenuItem вставляет или обновляет позицию меню.
func (s *Store) SaveMenuItem(ctx context.Context, item domain.MenuItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if errs := item.Validate(); len(errs) > 0 {
		return errors.Join(errs...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.menu[item.ID]
	if item.CreatedAt.IsZero() {
		if exists {
			item.CreatedAt = prev.CreatedAt
		} else {
			item.CreatedAt = s.now().UTC()
		}
	}
	s.menu[item.ID] = item

	if exists {
		return s.recordLocked(domain.TableMenuItems, domain.ChangeUpdate, item.ID, toMenuItemRow(item), toMenuItemRow(prev))
	}
	return s.recordLocked(domain.TableMenuItems, domain.ChangeInsert, item.ID, toMenuItemRow(item), nil)
}

// InsertOrder записывает заголовок заказа без позиций.
func (s *Store) InsertOrder(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	if errs := order.ValidateHeader(); len(errs) > 0 {
		return errors.Join(errs...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return domain.ErrOrderAlreadyExists
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now().UTC()
	}
	order.Lines = nil
	s.orders[order.ID] = order

	return s.recordLocked(domain.TableOrders, domain.ChangeInsert, order.ID, toOrderRow(order), nil)
}

// InsertOrderLines записывает позиции одним батчем: либо все, либо ни одной.
func (s *Store) InsertOrderLines(ctx context.Context, lines []domain.OrderLine) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	for _, line := range lines {
		if strings.TrimSpace(line.ID) == "" {
			return &domain.ValidationError{Field: "line_id", Reason: "is required"}
		}
		if errs := line.Validate(); len(errs) > 0 {
			return errors.Join(errs...)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := s.orders[line.OrderID]; !ok {
			return fmt.Errorf("line %s: %w", line.ID, domain.ErrOrderNotFound)
		}
		if _, dup := s.lineIDs[line.ID]; dup {
			return fmt.Errorf("line %s: %w", line.ID, domain.ErrOrderAlreadyExists)
		}
		if _, dup := batch[line.ID]; dup {
			return fmt.Errorf("line %s: %w", line.ID, domain.ErrOrderAlreadyExists)
		}
		batch[line.ID] = struct{}{}
	}

	now := s.now().UTC()
	for _, line := range lines {
		if line.CreatedAt.IsZero() {
			line.CreatedAt = now
		}
		line.MenuItem = nil
		s.lines[line.OrderID] = append(s.lines[line.OrderID], line)
		s.lineIDs[line.ID] = struct{}{}
		if err := s.recordLocked(domain.TableOrderItems, domain.ChangeInsert, line.ID, toOrderItemRow(line), nil); err != nil {
			return err
		}
	}
	return nil
}

// UpdateOrderStatus переводит pending-заказ в delivered или canceled.
// Повтор того же терминального статуса ничего не меняет.
func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !status.Valid() {
		return domain.ErrOrderStatusInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[strings.TrimSpace(id)]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if order.Status == status {
		return nil
	}
	if !order.Status.CanTransitionTo(status) {
		return fmt.Errorf("%s -> %s: %w", order.Status, status, domain.ErrInvalidStatusTransition)
	}

	prev := order
	order.Status = status
	s.orders[order.ID] = order
	return s.recordLocked(domain.TableOrders, domain.ChangeUpdate, order.ID, toOrderRow(order), toOrderRow(prev))
}

// ListPending возвращает pending-заказы с позициями, старые первыми.
func (s *Store) ListPending(ctx context.Context) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range s.orders {
		if order.Status != domain.OrderStatusPending {
			continue
		}
		result = append(result, s.withLinesLocked(order))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Get возвращает заказ с позициями или ErrOrderNotFound.
func (s *Store) Get(ctx context.Context, id string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return s.withLinesLocked(order), nil
}

func (s *Store) withLinesLocked(order domain.Order) domain.Order {
	stored := s.lines[order.ID]
	lines := make([]domain.OrderLine, 0, len(stored))
	for _, line := range stored {
		if item, ok := s.menu[line.MenuItemID]; ok {
			item := item
			line.MenuItem = &item
		}
		lines = append(lines, line)
	}
	sort.SliceStable(lines, func(i, j int) bool {
		if !lines[i].CreatedAt.Equal(lines[j].CreatedAt) {
			return lines[i].CreatedAt.Before(lines[j].CreatedAt)
		}
		return lines[i].ID < lines[j].ID
	})
	order.Lines = lines
	return order
}

// ListActiveBattles возвращает все битвы с is_active.
func (s *Store) ListActiveBattles(ctx context.Context) ([]domain.GenreBattle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.GenreBattle, 0, 1)
	for _, b := range s.battles {
		if b.Active {
			result = append(result, b)
		}
	}
	return result, nil
}

// IncrementVote увеличивает счётчик под мьютексом хранилища.
func (s *Store) IncrementVote(ctx context.Context, battleID string, choice domain.Choice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !choice.Valid() {
		return domain.ErrUnknownChoice
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	battle, ok := s.battles[battleID]
	if !ok {
		return domain.ErrBattleNotFound
	}
	if !battle.Active {
		return domain.ErrNoActiveBattle
	}

	prev := battle
	if choice == domain.ChoiceA {
		battle.VotesA++
	} else {
		battle.VotesB++
	}
	s.battles[battleID] = battle
	return s.recordLocked(domain.TableGenreBattles, domain.ChangeUpdate, battleID, toGenreBattleRow(battle), toGenreBattleRow(prev))
}

// CreateBattle вставляет или заменяет битву.
func (s *Store) CreateBattle(ctx context.Context, battle domain.GenreBattle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(battle.ID) == "" {
		return &domain.ValidationError{Field: "battle_id", Reason: "is required"}
	}
	if battle.VotesA < 0 || battle.VotesB < 0 {
		return &domain.ValidationError{Field: "votes", Reason: "must be non-negative"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.battles[battle.ID]
	if battle.CreatedAt.IsZero() {
		battle.CreatedAt = s.now().UTC()
	}
	s.battles[battle.ID] = battle
	if exists {
		return s.recordLocked(domain.TableGenreBattles, domain.ChangeUpdate, battle.ID, toGenreBattleRow(battle), toGenreBattleRow(prev))
	}
	return s.recordLocked(domain.TableGenreBattles, domain.ChangeInsert, battle.ID, toGenreBattleRow(battle), nil)
}

// ListActivePromos возвращает промо с is_active.
func (s *Store) ListActivePromos(ctx context.Context) ([]domain.FlashPromo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.FlashPromo, 0, 1)
	for _, p := range s.promos {
		if p.Active {
			result = append(result, p)
		}
	}
	return result, nil
}

// SavePromo вставляет или обновляет промо.
func (s *Store) SavePromo(ctx context.Context, promo domain.FlashPromo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(promo.ID) == "" {
		return &domain.ValidationError{Field: "promo_id", Reason: "is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.promos[promo.ID]
	if promo.CreatedAt.IsZero() {
		if exists {
			promo.CreatedAt = prev.CreatedAt
		} else {
			promo.CreatedAt = s.now().UTC()
		}
	}
	s.promos[promo.ID] = promo
	if exists {
		return s.recordLocked(domain.TableFlashPromos, domain.ChangeUpdate, promo.ID, toFlashPromoRow(promo), toFlashPromoRow(prev))
	}
	return s.recordLocked(domain.TableFlashPromos, domain.ChangeInsert, promo.ID, toFlashPromoRow(promo), nil)
}

// DeletePromo удаляет промо.
func (s *Store) DeletePromo(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.promos[id]
	if !ok {
		return domain.ErrPromoNotFound
	}
	delete(s.promos, id)
	return s.recordLocked(domain.TableFlashPromos, domain.ChangeDelete, id, nil, toFlashPromoRow(prev))
}

// recordLocked кладёт change-запись в outbox. Вызывается под s.mu.
func (s *Store) recordLocked(table domain.Table, change domain.ChangeType, rowID string, newRow, oldRow any) error {
	payload, err := json.Marshal(struct {
		New any `json:"new,omitempty"`
		Old any `json:"old,omitempty"`
	}{New: newRow, Old: oldRow})
	if err != nil {
		return fmt.Errorf("marshal change payload: %w", err)
	}

	_, err = s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: string(table),
		AggregateID:   rowID,
		EventType:     string(change),
		Payload:       payload,
		CreatedAt:     s.now().UTC(),
	})
	return err
}

var (
	_ domain.MenuRepository   = (*Store)(nil)
	_ domain.OrderRepository  = (*Store)(nil)
	_ domain.BattleRepository = (*Store)(nil)
	_ domain.PromoRepository  = (*Store)(nil)
)
