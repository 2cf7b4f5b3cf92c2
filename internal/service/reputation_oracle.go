package service

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ignatzorin/bounty-escrow/internal/authz"
	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-escrow/internal/ledger"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
	"github.com/ignatzorin/bounty-escrow/internal/signer"
)

const (
	// UpdateCooldown это минимальный интервал между обновлениями репутации одного адреса.
	UpdateCooldown = time.Hour
	// MaxAdminAdjustment это предел ручной корректировки общего балла.
	MaxAdminAdjustment = 100
)

// ReputationUpdate это подписанное провайдером обновление.
type ReputationUpdate struct {
	User            common.Address
	Quality         uint16
	Reliability     uint16
	Professionalism uint16
	Signature       []byte
}

// DisputeStats это статистика споров адреса.
type DisputeStats struct {
	Initiated uint32 `json:"initiated"`
	Lost      uint32 `json:"lost"`
	WinRate   uint32 `json:"win_rate"`
}

type ReputationOracle struct {
	ledger *ledger.Ledger
}

// UpdateReputation применяет подписанное обновление от провайдера из списка.
func (o *ReputationOracle) UpdateReputation(ctx context.Context, caller common.Address, req ReputationUpdate) (*entity.ReputationScore, error) {
	var out *entity.ReputationScore
	err := o.ledger.Execute(ctx, "update_reputation", func(tx *ledger.Tx) error {
		if err := ensureActive(tx, entity.ComponentOracle); err != nil {
			return err
		}
		rep, err := o.update(tx, tx.Auth(caller), req)
		out = rep
		return err
	})
	return out, err
}

func (o *ReputationOracle) update(tx *ledger.Tx, caller authz.Context, req ReputationUpdate) (*entity.ReputationScore, error) {
	scores := []struct {
		field string
		value uint16
	}{
		{"quality", req.Quality},
		{"reliability", req.Reliability},
		{"professionalism", req.Professionalism},
	}
	for _, s := range scores {
		if s.value > valueobject.MaxScore {
			return nil, apperror.Reject(apperror.KindScoreOutOfBounds, "балл вне шкалы").
				With("field", s.field).
				With("value", s.value).
				With("max", valueobject.MaxScore)
		}
	}
	if err := requireAddress(req.User, "user"); err != nil {
		return nil, err
	}

	g := tx.Globals()
	if !g.Updaters[caller.Address] {
		return nil, apperror.Reject(apperror.KindUnauthorizedUpdater, "адрес не входит в список провайдеров").
			With("caller", caller.Address.Hex())
	}

	update := signer.Update{
		User:            req.User,
		Quality:         req.Quality,
		Reliability:     req.Reliability,
		Professionalism: req.Professionalism,
	}
	verifier := signer.NewVerifier(func(addr common.Address) bool { return g.Updaters[addr] })
	if _, err := verifier.Verify(update, tx.Now(), req.Signature); err != nil {
		return nil, err
	}

	rep := reputationOf(tx, req.User)
	if rep.LastUpdated != nil {
		next := rep.LastUpdated.Add(UpdateCooldown)
		if tx.Now().Before(next) {
			return nil, apperror.Reject(apperror.KindUpdateTooFrequent, "репутация обновлялась меньше часа назад").
				With("now", tx.Now()).
				With("next_allowed", next)
		}
	}

	previous := rep.Tier
	tierChanged := rep.SetComponents(req.Quality, req.Reliability, req.Professionalism, tx.Now())
	tx.PutReputation(rep)

	tx.Emit(entity.EventReputationUpdated, []common.Address{req.User}, map[string]any{
		"user":            req.User.Hex(),
		"quality":         rep.Quality,
		"reliability":     rep.Reliability,
		"professionalism": rep.Professionalism,
		"overall":         rep.Overall,
		"tier":            rep.Tier,
	})
	if tierChanged {
		emitTierChanged(tx, req.User, previous, rep.Tier)
	}
	return rep, nil
}

// ApplyDecay списывает баллы за неактивность дольше 90 дней. Возвращает списанное количество.
func (o *ReputationOracle) ApplyDecay(ctx context.Context, caller common.Address, user common.Address) (uint16, error) {
	var applied uint16
	err := o.ledger.Execute(ctx, "apply_decay", func(tx *ledger.Tx) error {
		if err := tx.Auth(caller).Require(authz.RoleKeeper); err != nil {
			return err
		}
		if err := ensureActive(tx, entity.ComponentOracle); err != nil {
			return err
		}
		rep, ok := tx.Reputation(user)
		if !ok {
			return nil
		}
		applied = rep.ApplyDecay(tx.Now())
		if applied == 0 {
			return nil
		}
		tx.PutReputation(rep)
		tx.Emit(entity.EventReputationDecayed, []common.Address{user}, map[string]any{
			"user":    user.Hex(),
			"decayed": applied,
			"overall": rep.Overall,
		})
		return nil
	})
	return applied, err
}

// AdminAdjustReputation вручную задаёт общий балл в пределах ±100 от текущего.
func (o *ReputationOracle) AdminAdjustReputation(ctx context.Context, caller, user common.Address, newOverall uint16, justification string) (*entity.ReputationScore, error) {
	var out *entity.ReputationScore
	err := o.ledger.Execute(ctx, "admin_adjust_reputation", func(tx *ledger.Tx) error {
		if err := tx.Auth(caller).Require(authz.RoleAdmin); err != nil {
			return err
		}
		if err := ensureActive(tx, entity.ComponentOracle); err != nil {
			return err
		}
		if newOverall > valueobject.MaxScore {
			return apperror.Reject(apperror.KindScoreOutOfBounds, "балл вне шкалы").
				With("value", newOverall).
				With("max", valueobject.MaxScore)
		}
		if err := requireAddress(user, "user"); err != nil {
			return err
		}

		rep := reputationOf(tx, user)
		diff := int(newOverall) - int(rep.Overall)
		if diff > MaxAdminAdjustment || diff < -MaxAdminAdjustment {
			return apperror.Reject(apperror.KindInvalidAdjustmentRange, "корректировка больше допустимой").
				With("current", rep.Overall).
				With("requested", newOverall).
				With("max_delta", MaxAdminAdjustment)
		}

		previous := rep.Tier
		tierChanged := rep.Adjust(newOverall, tx.Now())
		tx.PutReputation(rep)
		out = rep

		tx.Emit(entity.EventReputationUpdated, []common.Address{user}, map[string]any{
			"user":          user.Hex(),
			"overall":       rep.Overall,
			"tier":          rep.Tier,
			"adjusted_by":   caller.Hex(),
			"justification": justification,
		})
		if tierChanged {
			emitTierChanged(tx, user, previous, rep.Tier)
		}
		return nil
	})
	return out, err
}

// RecordCompletion учитывает завершённую задачу и заработок исполнителя.
func (o *ReputationOracle) RecordCompletion(ctx context.Context, caller, user common.Address, earnings *big.Int) error {
	return o.ledger.Execute(ctx, "record_completion", func(tx *ledger.Tx) error {
		return o.recordCompletion(tx, tx.Auth(caller), user, earnings)
	})
}

// RecordDisputeLoss учитывает проигранный спор.
func (o *ReputationOracle) RecordDisputeLoss(ctx context.Context, caller, user common.Address) error {
	return o.ledger.Execute(ctx, "record_dispute_loss", func(tx *ledger.Tx) error {
		return o.recordDisputeLoss(tx, tx.Auth(caller), user)
	})
}

// RecordDisputeInitiation учитывает открытый адресом спор.
func (o *ReputationOracle) RecordDisputeInitiation(ctx context.Context, caller, user common.Address) error {
	return o.ledger.Execute(ctx, "record_dispute_initiation", func(tx *ledger.Tx) error {
		return o.recordDisputeInitiation(tx, tx.Auth(caller), user)
	})
}

// RecordActivity сбрасывает отсчёт неактивности.
func (o *ReputationOracle) RecordActivity(ctx context.Context, caller, user common.Address) error {
	return o.ledger.Execute(ctx, "record_activity", func(tx *ledger.Tx) error {
		return o.recordActivity(tx, tx.Auth(caller), user)
	})
}

func (o *ReputationOracle) recordCompletion(tx *ledger.Tx, caller authz.Context, user common.Address, earnings *big.Int) error {
	if err := caller.Require(authz.RoleSubmissionManager, authz.RoleDisputeResolver); err != nil {
		return err
	}
	if err := requireAddress(user, "user"); err != nil {
		return err
	}
	rep := reputationOf(tx, user)
	rep.CompletedBounties++
	if earnings != nil {
		rep.TotalEarnings.Add(rep.TotalEarnings, earnings)
	}
	rep.TouchActivity(tx.Now())
	tx.PutReputation(rep)
	return nil
}

func (o *ReputationOracle) recordDisputeLoss(tx *ledger.Tx, caller authz.Context, user common.Address) error {
	if err := caller.Require(authz.RoleDisputeResolver); err != nil {
		return err
	}
	if err := requireAddress(user, "user"); err != nil {
		return err
	}
	rep := reputationOf(tx, user)
	rep.DisputesLost++
	tx.PutReputation(rep)
	return nil
}

func (o *ReputationOracle) recordDisputeInitiation(tx *ledger.Tx, caller authz.Context, user common.Address) error {
	if err := caller.Require(authz.RoleDisputeResolver); err != nil {
		return err
	}
	if err := requireAddress(user, "user"); err != nil {
		return err
	}
	rep := reputationOf(tx, user)
	rep.DisputesInitiated++
	rep.TouchActivity(tx.Now())
	tx.PutReputation(rep)
	return nil
}

func (o *ReputationOracle) recordActivity(tx *ledger.Tx, caller authz.Context, user common.Address) error {
	if err := caller.Require(authz.RoleSubmissionManager, authz.RoleDisputeResolver, authz.RoleBountyRegistry); err != nil {
		return err
	}
	if err := requireAddress(user, "user"); err != nil {
		return err
	}
	rep := reputationOf(tx, user)
	rep.TouchActivity(tx.Now())
	tx.PutReputation(rep)
	return nil
}

// AddAuthorizedUpdater добавляет провайдера в список.
func (o *ReputationOracle) AddAuthorizedUpdater(ctx context.Context, caller, updater common.Address) error {
	return o.setUpdater(ctx, caller, updater, true)
}

// RemoveAuthorizedUpdater убирает провайдера из списка.
func (o *ReputationOracle) RemoveAuthorizedUpdater(ctx context.Context, caller, updater common.Address) error {
	return o.setUpdater(ctx, caller, updater, false)
}

func (o *ReputationOracle) setUpdater(ctx context.Context, caller, updater common.Address, allowed bool) error {
	return o.ledger.Execute(ctx, "set_updater", func(tx *ledger.Tx) error {
		if err := tx.Auth(caller).Require(authz.RoleAdmin); err != nil {
			return err
		}
		if err := requireAddress(updater, "updater"); err != nil {
			return err
		}
		g := tx.Globals()
		action := "add_updater"
		if allowed {
			g.Updaters[updater] = true
		} else {
			delete(g.Updaters, updater)
			action = "remove_updater"
		}
		tx.PutGlobals(g)
		tx.Emit(entity.EventRoleChanged, []common.Address{updater}, map[string]any{
			"action":  action,
			"address": updater.Hex(),
			"by":      caller.Hex(),
		})
		return nil
	})
}

// GetReputation возвращает репутацию. Неизвестный адрес имеет нулевой балл и уровень Bronze.
func (o *ReputationOracle) GetReputation(ctx context.Context, user common.Address) (*entity.ReputationScore, error) {
	var out *entity.ReputationScore
	err := o.ledger.View(ctx, func(tx *ledger.Tx) error {
		out = reputationOf(tx, user)
		return nil
	})
	return out, err
}

func (o *ReputationOracle) GetTier(ctx context.Context, user common.Address) (valueobject.Tier, error) {
	rep, err := o.GetReputation(ctx, user)
	if err != nil {
		return valueobject.TierBronze, err
	}
	return rep.Tier, nil
}

func (o *ReputationOracle) GetDisputeStats(ctx context.Context, user common.Address) (DisputeStats, error) {
	rep, err := o.GetReputation(ctx, user)
	if err != nil {
		return DisputeStats{}, err
	}
	return DisputeStats{
		Initiated: rep.DisputesInitiated,
		Lost:      rep.DisputesLost,
		WinRate:   rep.WinRate(),
	}, nil
}

// Updaters возвращает список провайдеров.
func (o *ReputationOracle) Updaters(ctx context.Context) ([]common.Address, error) {
	var out []common.Address
	err := o.ledger.View(ctx, func(tx *ledger.Tx) error {
		for addr, ok := range tx.Globals().Updaters {
			if ok {
				out = append(out, addr)
			}
		}
		return nil
	})
	return out, err
}

func emitTierChanged(tx *ledger.Tx, user common.Address, from, to valueobject.Tier) {
	tx.Emit(entity.EventTierChanged, []common.Address{user}, map[string]any{
		"user": user.Hex(),
		"from": from,
		"to":   to,
	})
}
