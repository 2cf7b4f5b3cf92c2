// Package ledger хранит состояние всех компонентов и выполняет изменения как атомарные единицы работы.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
	"github.com/ignatzorin/bounty-escrow/internal/logger"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
)

// Clock это источник времени транзакций.
type Clock interface {
	Now() time.Time
}

// SystemClock возвращает текущее время в UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Journal сохраняет зафиксированный пакет изменений до того, как он станет видимым.
type Journal interface {
	Persist(ctx context.Context, records []Record, events []entity.Event) error
}

// Publisher получает события уже зафиксированных транзакций.
type Publisher interface {
	Publish(ctx context.Context, events []entity.Event)
}

// Observer получает длительность и результат каждой транзакции.
type Observer interface {
	ObserveTx(op string, duration time.Duration, err error)
}

type Ledger struct {
	mu        sync.RWMutex
	state     *State
	clock     Clock
	journal   Journal
	publisher Publisher
	observer  Observer
}

type Option func(*Ledger)

func WithJournal(j Journal) Option {
	return func(l *Ledger) { l.journal = j }
}

func WithPublisher(p Publisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

func WithObserver(o Observer) Option {
	return func(l *Ledger) { l.observer = o }
}

// New создаёт пустой реестр.
func New(clock Clock, opts ...Option) *Ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	l := &Ledger{state: newState(), clock: clock}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Restore загружает записи журнала. Вызывается до начала обслуживания запросов.
func (l *Ledger) Restore(records []Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	state := newState()
	for _, rec := range records {
		if err := state.restore(rec); err != nil {
			return err
		}
	}
	if report := state.audit(); !report.Balanced {
		return fmt.Errorf("ledger: восстановленное состояние не сходится: %+v", report)
	}
	l.state = state
	return nil
}

// Execute выполняет fn как одну единицу работы: либо применяются все изменения, либо ни одно.
func (l *Ledger) Execute(ctx context.Context, op string, fn func(tx *Tx) error) error {
	start := time.Now()
	events, err := l.commit(ctx, fn)
	l.observe(op, time.Since(start), err)

	if err == nil && l.publisher != nil && len(events) > 0 {
		l.publisher.Publish(ctx, events)
	}
	return err
}

func (l *Ledger) commit(ctx context.Context, fn func(tx *Tx) error) ([]entity.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := newTx(l.state, l.clock.Now())
	if err := fn(tx); err != nil {
		return nil, err
	}
	if err := tx.checkConservation(); err != nil {
		return nil, err
	}

	if l.journal != nil {
		records, err := tx.records()
		if err != nil {
			return nil, err
		}
		if err := l.journal.Persist(ctx, records, tx.events); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить изменения")
		}
	}

	tx.merge()
	return tx.events, nil
}

// View выполняет fn над зафиксированным состоянием. Изменения, сделанные внутри, отбрасываются.
func (l *Ledger) View(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn(newTx(l.state, l.clock.Now()))
}

// Audit пересчитывает итоговые суммы по всем строкам.
func (l *Ledger) Audit() AuditReport {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.audit()
}

func (l *Ledger) observe(op string, duration time.Duration, err error) {
	if l.observer != nil {
		l.observer.ObserveTx(op, duration, err)
	}
	if logger.Log == nil {
		return
	}

	fields := logrus.Fields{
		"op":          op,
		"duration_ms": duration.Milliseconds(),
	}
	if err == nil {
		logger.Log.WithFields(fields).Debug("ledger: транзакция зафиксирована")
		return
	}

	fields["error"] = err.Error()
	if kind := apperror.KindOf(err); kind != "" {
		fields["kind"] = kind
	}
	if kind := apperror.KindOf(err); kind == apperror.KindConservationViolated || kind == "" {
		logger.Log.WithFields(fields).Error("ledger: транзакция отклонена")
		return
	}
	logger.Log.WithFields(fields).Info("ledger: транзакция отклонена")
}
