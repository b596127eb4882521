// Package promo — флеш-промо: оператор публикует сообщение, экраны показывают активное.
//
// Удаление строки и active=false для зрителя равнозначны: показывать нечего.
package promo

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/barflow/internal/changefeed"
	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

// ViewName — имя представления в логах и метриках.
const ViewName = "flash_promo"

// MaxMessageLen ограничивает длину сообщения в символах.
const MaxMessageLen = 280

// Broadcaster публикует и снимает промо.
type Broadcaster struct {
	repo   domain.PromoRepository
	logger *log.Entry
	newID  func() string
	now    func() time.Time
}

// NewBroadcaster создаёт Broadcaster. logger может быть nil.
func NewBroadcaster(repo domain.PromoRepository, logger *log.Entry) *Broadcaster {
	if logger == nil {
		logger = log.WithField("component", "promo-broadcaster")
	}
	return &Broadcaster{
		repo:   repo,
		logger: logger,
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// Broadcast снимает текущие активные промо и публикует новое.
func (b *Broadcaster) Broadcast(ctx context.Context, message string) (domain.FlashPromo, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return domain.FlashPromo{}, &domain.ValidationError{Field: "message", Reason: "is required"}
	}
	if len([]rune(message)) > MaxMessageLen {
		return domain.FlashPromo{}, &domain.ValidationError{Field: "message", Reason: fmt.Sprintf("must be at most %d characters", MaxMessageLen)}
	}

	if err := b.deactivateAll(ctx); err != nil {
		return domain.FlashPromo{}, err
	}

	promo := domain.FlashPromo{
		ID:        b.newID(),
		Message:   message,
		Active:    true,
		CreatedAt: b.now().UTC(),
	}
	if err := b.repo.SavePromo(ctx, promo); err != nil {
		return domain.FlashPromo{}, &domain.RemoteWriteError{Op: "save promo", Err: err}
	}

	b.logger.WithField("promo_id", promo.ID).Info("flash promo broadcast")
	return promo, nil
}

// Clear снимает все активные промо.
func (b *Broadcaster) Clear(ctx context.Context) error {
	if err := b.deactivateAll(ctx); err != nil {
		return err
	}
	b.logger.Info("flash promo cleared")
	return nil
}

// Remove удаляет промо целиком.
func (b *Broadcaster) Remove(ctx context.Context, id string) error {
	if err := b.repo.DeletePromo(ctx, id); err != nil {
		return &domain.RemoteWriteError{Op: "delete promo", Err: err}
	}
	return nil
}

func (b *Broadcaster) deactivateAll(ctx context.Context) error {
	active, err := b.repo.ListActivePromos(ctx)
	if err != nil {
		return fmt.Errorf("list active promos: %w", err)
	}
	for _, p := range active {
		p.Active = false
		if err := b.repo.SavePromo(ctx, p); err != nil {
			return &domain.RemoteWriteError{Op: "deactivate promo", Err: err}
		}
	}
	return nil
}

// Banner — зрительская сторона: держит текущее активное промо.
type Banner struct {
	repo domain.PromoRepository

	mu      sync.RWMutex
	current domain.FlashPromo
	shown   bool
	seq     uint64
	applied uint64
	sub     *changefeed.Subscription
}

// NewBanner создаёт пустой баннер.
func NewBanner(repo domain.PromoRepository) *Banner {
	return &Banner{repo: repo}
}

// Start подписывает баннер на flash_promos и загружает текущее промо.
func (b *Banner) Start(ctx context.Context, subscriber *changefeed.Subscriber) error {
	sub, err := subscriber.Subscribe(ctx,
		changefeed.TableTopic(ViewName, domain.TableFlashPromos),
		nil, b.Reconcile)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.sub = sub
	b.mu.Unlock()
	return nil
}

// Close отписывает баннер.
func (b *Banner) Close() {
	b.mu.RLock()
	sub := b.sub
	b.mu.RUnlock()
	if sub != nil {
		sub.Close()
	}
}

// Reconcile перечитывает активное промо.
func (b *Banner) Reconcile(ctx context.Context) error {
	b.mu.Lock()
	b.seq++
	startSeq := b.seq
	b.mu.Unlock()

	promos, err := b.repo.ListActivePromos(ctx)
	if err != nil {
		return fmt.Errorf("list active promos: %w", err)
	}
	current, ok := domain.ResolveActivePromo(promos)

	b.mu.Lock()
	defer b.mu.Unlock()
	if startSeq < b.applied {
		return nil
	}
	b.applied = startSeq
	b.current = current
	b.shown = ok
	return nil
}

// Current возвращает промо для показа; при false показывать нечего.
func (b *Banner) Current() (domain.FlashPromo, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current, b.shown
}
