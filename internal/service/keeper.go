package service

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-escrow/internal/goroutine"
	"github.com/ignatzorin/bounty-escrow/internal/ledger"
	"github.com/ignatzorin/bounty-escrow/internal/logger"
)

// SweepReport показывает, сколько элементов обработал один проход.
type SweepReport struct {
	Expired       int `json:"expired"`
	Cancellations int `json:"cancellations"`
	AutoAccepted  int `json:"auto_accepted"`
	TimedOut      int `json:"timed_out"`
	Finalized     int `json:"finalized"`
	Decayed       int `json:"decayed"`
	Failed        int `json:"failed"`
}

// Counts возвращает счётчики по видам работы.
func (r SweepReport) Counts() map[string]int {
	return map[string]int{
		"expire":       r.Expired,
		"cancellation": r.Cancellations,
		"auto_accept":  r.AutoAccepted,
		"timeout":      r.TimedOut,
		"finalize":     r.Finalized,
		"decay":        r.Decayed,
		"failed":       r.Failed,
	}
}

// SweepObserver получает итог каждого прохода и результат сверки после него.
type SweepObserver interface {
	ObserveSweep(at time.Time, processed map[string]int)
	ObserveAudit(balanced bool, custodied, fees *big.Int)
}

// Keeper периодически выполняет действия, которые зависят только от времени.
type Keeper struct {
	sys      *System
	interval time.Duration
	identity common.Address
	observer SweepObserver
}

func NewKeeper(sys *System, interval time.Duration) *Keeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Keeper{sys: sys, interval: interval, identity: KeeperIdentity}
}

// WithObserver подключает метрики проходов.
func (k *Keeper) WithObserver(o SweepObserver) *Keeper {
	k.observer = o
	return k
}

// Start запускает цикл в отдельной горутине до отмены ctx.
func (k *Keeper) Start(ctx context.Context) {
	goroutine.GoWithContext(ctx, "keeper", k.Run)
}

// Run выполняет проходы с заданным интервалом до отмены ctx.
func (k *Keeper) Run(ctx context.Context) {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			goroutine.Run("keeper sweep", func() {
				report := k.Sweep(ctx)
				k.observe(report)
				if logger.Log != nil {
					logger.Log.WithFields(logrus.Fields{
						"expired":       report.Expired,
						"cancellations": report.Cancellations,
						"auto_accepted": report.AutoAccepted,
						"timed_out":     report.TimedOut,
						"finalized":     report.Finalized,
						"decayed":       report.Decayed,
						"failed":        report.Failed,
					}).Debug("keeper: проход завершён")
				}
			})
		}
	}
}

func (k *Keeper) observe(report SweepReport) {
	if k.observer == nil {
		return
	}
	k.observer.ObserveSweep(time.Now(), report.Counts())

	audit := k.sys.Audit()
	if !audit.Balanced {
		logger.WithFields(logrus.Fields{
			"custodied": audit.Custodied.String(),
			"escrowed":  audit.Escrowed.String(),
			"available": audit.Available.String(),
		}).Error("keeper: сверка реестра не сошлась")
	}
	k.observer.ObserveAudit(audit.Balanced, audit.Custodied, audit.FeeBalance)
}

type sweepPlan struct {
	expire        []uint64
	cancellations []uint64
	autoAccept    []uint64
	timeout       []uint64
	finalize      []uint64
	decay         []common.Address
}

// Sweep собирает просроченные элементы и обрабатывает каждый отдельной транзакцией.
func (k *Keeper) Sweep(ctx context.Context) SweepReport {
	var report SweepReport

	plan, err := k.plan(ctx)
	if err != nil {
		k.logFailure("plan", 0, err)
		report.Failed++
		return report
	}

	for _, id := range plan.expire {
		if k.do("expire_bounty", id, func() error {
			_, err := k.sys.Registry.ExpireBounty(ctx, k.identity, id)
			return err
		}) {
			report.Expired++
		} else {
			report.Failed++
		}
	}
	for _, id := range plan.cancellations {
		if k.do("process_expired_cancellation", id, func() error {
			_, err := k.sys.Registry.ProcessExpiredCancellation(ctx, k.identity, id)
			return err
		}) {
			report.Cancellations++
		} else {
			report.Failed++
		}
	}
	for _, id := range plan.autoAccept {
		if k.do("auto_accept_review", id, func() error {
			_, err := k.sys.Submissions.AutoAcceptExpiredReview(ctx, k.identity, id)
			return err
		}) {
			report.AutoAccepted++
		} else {
			report.Failed++
		}
	}
	for _, id := range plan.timeout {
		if k.do("resolve_by_timeout", id, func() error {
			_, err := k.sys.Disputes.ResolveByTimeout(ctx, k.identity, id)
			return err
		}) {
			report.TimedOut++
		} else {
			report.Failed++
		}
	}
	for _, id := range plan.finalize {
		if k.do("finalize_ruling", id, func() error {
			_, err := k.sys.Disputes.FinalizeRuling(ctx, k.identity, id)
			return err
		}) {
			report.Finalized++
		} else {
			report.Failed++
		}
	}
	for _, addr := range plan.decay {
		addr := addr
		if k.do("apply_decay", 0, func() error {
			_, err := k.sys.Oracle.ApplyDecay(ctx, k.identity, addr)
			return err
		}) {
			report.Decayed++
		} else {
			report.Failed++
		}
	}
	return report
}

func (k *Keeper) plan(ctx context.Context) (sweepPlan, error) {
	var plan sweepPlan
	err := k.sys.ledger.View(ctx, func(tx *ledger.Tx) error {
		now := tx.Now()
		expiring := map[uint64]bool{}
		for _, b := range tx.Bounties() {
			if (b.Status == valueobject.BountyStatusOpen || b.Status == valueobject.BountyStatusInProgress) && deadlinePassed(b, now) {
				plan.expire = append(plan.expire, b.ID)
				expiring[b.ID] = true
			}
		}
		// истёкшая задача закрывает и свой запрос на отмену
		for _, c := range tx.Cancellations() {
			if c.IsLive() && now.After(c.ReviewDeadline) && !expiring[c.BountyID] {
				plan.cancellations = append(plan.cancellations, c.BountyID)
			}
		}
		for _, s := range tx.Submissions() {
			if s.ReviewExpired(now) {
				plan.autoAccept = append(plan.autoAccept, s.ID)
			}
		}
		for _, d := range tx.Disputes() {
			switch {
			case d.Status.AwaitsArbitrator() && now.After(d.ArbitrationDeadline):
				plan.timeout = append(plan.timeout, d.ID)
			case d.Status == valueobject.DisputeStatusRulingIssued && d.AppealDeadline != nil && now.After(*d.AppealDeadline):
				plan.finalize = append(plan.finalize, d.ID)
			}
		}
		for _, r := range tx.Reputations() {
			if r.DecayPoints(now) > r.DecayApplied && r.Overall > 0 {
				plan.decay = append(plan.decay, r.Address)
			}
		}
		return nil
	})
	return plan, err
}

// do выполняет одно действие. Ошибка логируется, проход продолжается.
func (k *Keeper) do(op string, id uint64, fn func() error) bool {
	var err error
	if goroutine.Run("keeper "+op, func() { err = fn() }) {
		return false
	}
	if err != nil {
		k.logFailure(op, id, err)
		return false
	}
	return true
}

func (k *Keeper) logFailure(op string, id uint64, err error) {
	if logger.Log == nil {
		return
	}
	logger.Log.WithFields(logrus.Fields{
		"op":    op,
		"id":    id,
		"error": err.Error(),
	}).Warn("keeper: действие не выполнено")
}
