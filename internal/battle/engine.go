// Package battle — голосование в битве жанров.
//
// Инкремент выполняется только в хранилище (BattleRepository.IncrementVote), клиент
// никогда не пишет прочитанное значение обратно. Кулдаун между голосами локальный
// и защищает только от двойного нажатия.
package battle

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/barflow/internal/changefeed"
	"github.com/vladislavdragonenkov/barflow/internal/domain"
	"github.com/vladislavdragonenkov/barflow/internal/metrics"
)

// DefaultCooldown — пауза после успешного голоса.
const DefaultCooldown = 2 * time.Second

// ViewName — имя представления в логах и метриках.
const ViewName = "genre_battle"

// Options задаёт параметры Engine.
type Options struct {
	Logger   *log.Entry
	Metrics  *metrics.BarMetrics
	Cooldown time.Duration
	Now      func() time.Time
}

// Option настраивает Engine.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.BarMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithCooldown задаёт паузу между голосами; 0 отключает её.
func WithCooldown(d time.Duration) Option {
	return func(opts *Options) {
		opts.Cooldown = d
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}

// Engine голосует в активной битве и держит её текущий счёт.
type Engine struct {
	repo     domain.BattleRepository
	logger   *log.Entry
	metrics  *metrics.BarMetrics
	cooldown time.Duration
	now      func() time.Time

	mu        sync.Mutex
	voting    bool
	lastVote  time.Time
	current   Tally
	hasBattle bool
	seq       uint64
	applied   uint64
	sub       *changefeed.Subscription
}

// NewEngine создаёт движок голосования.
func NewEngine(repo domain.BattleRepository, options ...Option) *Engine {
	opts := Options{
		Cooldown: DefaultCooldown,
		Now:      time.Now,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "battle-engine")
	}
	if opts.Cooldown < 0 {
		opts.Cooldown = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Engine{
		repo:     repo,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		cooldown: opts.Cooldown,
		now:      opts.Now,
	}
}

// Vote отдаёт голос за вариант в единственной активной битве.
func (e *Engine) Vote(ctx context.Context, choice domain.Choice) error {
	if !choice.Valid() {
		e.metrics.RecordVote(string(choice), "invalid")
		return &domain.ValidationError{Field: "choice", Reason: "must be a or b"}
	}

	if err := e.acquire(); err != nil {
		e.metrics.RecordVote(string(choice), "cooldown")
		return err
	}
	voted := false
	defer func() { e.release(voted) }()

	battles, err := e.repo.ListActiveBattles(ctx)
	if err != nil {
		e.metrics.RecordVote(string(choice), "error")
		return fmt.Errorf("list active battles: %w", err)
	}
	active, ok := domain.ResolveActiveBattle(battles)
	if !ok {
		e.metrics.RecordVote(string(choice), "no_battle")
		return domain.ErrNoActiveBattle
	}

	if err := e.repo.IncrementVote(ctx, active.ID, choice); err != nil {
		e.metrics.RecordVote(string(choice), "error")
		e.logger.WithError(err).WithFields(log.Fields{
			"battle_id": active.ID,
			"choice":    choice,
		}).Warn("vote increment failed")
		return &domain.RemoteWriteError{Op: "increment vote", Err: err}
	}

	voted = true
	e.metrics.RecordVote(string(choice), "ok")
	return nil
}

// CooldownRemaining возвращает, сколько ещё ждать до следующего голоса.
func (e *Engine) CooldownRemaining() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remainingLocked()
}

func (e *Engine) remainingLocked() time.Duration {
	if e.lastVote.IsZero() || e.cooldown == 0 {
		return 0
	}
	left := e.cooldown - e.now().Sub(e.lastVote)
	if left < 0 {
		return 0
	}
	return left
}

func (e *Engine) acquire() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.voting || e.remainingLocked() > 0 {
		return domain.ErrVoteCooldown
	}
	e.voting = true
	return nil
}

func (e *Engine) release(voted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.voting = false
	if voted {
		e.lastVote = e.now()
	}
}

// Start подписывает движок на genre_battles и загружает текущий счёт.
func (e *Engine) Start(ctx context.Context, subscriber *changefeed.Subscriber) error {
	sub, err := subscriber.Subscribe(ctx,
		changefeed.TableTopic(ViewName, domain.TableGenreBattles),
		nil, e.Reconcile)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.sub = sub
	e.mu.Unlock()
	return nil
}

// Close отписывает движок.
func (e *Engine) Close() {
	e.mu.Lock()
	sub := e.sub
	e.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}

// Reconcile перечитывает активную битву и заменяет счёт.
func (e *Engine) Reconcile(ctx context.Context) error {
	e.mu.Lock()
	e.seq++
	startSeq := e.seq
	e.mu.Unlock()

	battles, err := e.repo.ListActiveBattles(ctx)
	if err != nil {
		return fmt.Errorf("list active battles: %w", err)
	}
	active, ok := domain.ResolveActiveBattle(battles)

	e.mu.Lock()
	defer e.mu.Unlock()
	// ответ перечитывания, начатого раньше уже применённого, устарел
	if startSeq < e.applied {
		return nil
	}
	e.applied = startSeq
	e.hasBattle = ok
	if ok {
		e.current = NewTally(active)
	} else {
		e.current = Tally{}
	}
	return nil
}

// Current возвращает последний счёт; false, если активной битвы нет.
func (e *Engine) Current() (Tally, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, e.hasBattle
}
