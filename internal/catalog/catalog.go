// Package catalog читает доступные позиции меню для экрана заказа.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/barflow/internal/changefeed"
	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

// ViewName — имя представления в логах и метриках.
const ViewName = "menu"

// Menu — локальная копия доступных позиций, сгруппированная по категориям.
type Menu struct {
	repo domain.CatalogRepository

	mu    sync.RWMutex
	items []domain.MenuItem
	sub   *changefeed.Subscription
}

// NewMenu создаёт пустое меню.
func NewMenu(repo domain.CatalogRepository) *Menu {
	return &Menu{repo: repo}
}

// Load перечитывает доступные позиции.
func (m *Menu) Load(ctx context.Context) error {
	items, err := m.repo.ListAvailable(ctx)
	if err != nil {
		return fmt.Errorf("list available menu items: %w", err)
	}

	available := make([]domain.MenuItem, 0, len(items))
	for _, item := range items {
		if item.Available {
			available = append(available, item)
		}
	}
	sort.SliceStable(available, func(i, j int) bool {
		if available[i].Category != available[j].Category {
			return available[i].Category < available[j].Category
		}
		return available[i].Name < available[j].Name
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = available
	return nil
}

// Start держит меню актуальным по изменениям menu_items.
func (m *Menu) Start(ctx context.Context, subscriber *changefeed.Subscriber) error {
	sub, err := subscriber.Subscribe(ctx, changefeed.TableTopic(ViewName, domain.TableMenuItems), nil, m.Load)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sub = sub
	m.mu.Unlock()
	return nil
}

// Close отписывает меню.
func (m *Menu) Close() {
	m.mu.RLock()
	sub := m.sub
	m.mu.RUnlock()
	if sub != nil {
		sub.Close()
	}
}

// Items возвращает все доступные позиции.
func (m *Menu) Items() []domain.MenuItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.MenuItem(nil), m.items...)
}

// ByCategory возвращает позиции одной категории.
func (m *Menu) ByCategory(category domain.Category) []domain.MenuItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []domain.MenuItem
	for _, item := range m.items {
		if item.Category == category {
			result = append(result, item)
		}
	}
	return result
}

// Find ищет позицию по id.
func (m *Menu) Find(id string) (domain.MenuItem, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, item := range m.items {
		if item.ID == id {
			return item, true
		}
	}
	return domain.MenuItem{}, false
}
