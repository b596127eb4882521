// Package changefeed доставляет уведомления об изменении строк хранилища подписчикам.
//
// Hub — транспорт внутри процесса: принимает события (из outbox worker, Kafka consumer
// или WebSocket-клиента) и раздаёт их подписчикам таблицы. Subscriber поверх любого
// транспорта превращает уведомления в сверку: подписчик не применяет дельту, а
// перечитывает свой срез данных целиком.
package changefeed

import (
	"sync"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

// DeliverFunc получает событие. Не должна блокироваться: Hub вызывает её в потоке публикации.
type DeliverFunc func(ev domain.ChangeEvent)

// Handle отменяет подписку на транспорте. Повторный Close безопасен.
type Handle interface {
	Close()
}

// Transport — push-канал изменений: subscribe(table, eventFilter, callback) → handle.
type Transport interface {
	Subscribe(table domain.Table, filter domain.EventFilter, deliver DeliverFunc) (Handle, error)
}

type hubSubscriber struct {
	table   domain.Table
	filter  domain.EventFilter
	deliver DeliverFunc
}

// Hub раздаёт события подписчикам внутри процесса.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]hubSubscriber
}

// NewHub создаёт пустой Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]hubSubscriber)}
}

// Subscribe регистрирует получателя событий таблицы.
func (h *Hub) Subscribe(table domain.Table, filter domain.EventFilter, deliver DeliverFunc) (Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.subs[id] = hubSubscriber{table: table, filter: filter, deliver: deliver}
	return &hubHandle{hub: h, id: id}, nil
}

// Dispatch раздаёт событие всем подписчикам его таблицы.
// Resync без таблицы получают все подписчики.
func (h *Hub) Dispatch(ev domain.ChangeEvent) {
	h.mu.RLock()
	targets := make([]DeliverFunc, 0, len(h.subs))
	for _, sub := range h.subs {
		if ev.Table != "" && sub.table != ev.Table {
			continue
		}
		if !sub.filter.Match(ev.Type) {
			continue
		}
		targets = append(targets, sub.deliver)
	}
	h.mu.RUnlock()

	for _, deliver := range targets {
		deliver(ev)
	}
}

// Publish позволяет использовать Hub как domain.OutboxPublisher.
func (h *Hub) Publish(msg domain.OutboxMessage) error {
	h.Dispatch(domain.ChangeEventFromOutbox(msg))
	return nil
}

// Len возвращает число активных подписок.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

type hubHandle struct {
	hub  *Hub
	id   uint64
	once sync.Once
}

func (h *hubHandle) Close() {
	h.once.Do(func() {
		h.hub.remove(h.id)
	})
}

var (
	_ Transport              = (*Hub)(nil)
	_ domain.OutboxPublisher = (*Hub)(nil)
)
