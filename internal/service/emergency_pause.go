package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ignatzorin/bounty-escrow/internal/authz"
	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
	"github.com/ignatzorin/bounty-escrow/internal/ledger"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
)

// EmergencyPause управляет флагами экстренной остановки компонентов.
type EmergencyPause struct {
	ledger *ledger.Ledger
}

func (p *EmergencyPause) Pause(ctx context.Context, caller common.Address, component entity.Component) error {
	return p.set(ctx, caller, "pause", func(state *entity.PauseState) error {
		if !component.IsValid() {
			return unknownComponent(component)
		}
		state.Components[component] = true
		return nil
	})
}

func (p *EmergencyPause) Unpause(ctx context.Context, caller common.Address, component entity.Component) error {
	return p.set(ctx, caller, "unpause", func(state *entity.PauseState) error {
		if !component.IsValid() {
			return unknownComponent(component)
		}
		delete(state.Components, component)
		return nil
	})
}

// PauseAll останавливает все компоненты. Вывод средств остаётся доступен.
func (p *EmergencyPause) PauseAll(ctx context.Context, caller common.Address, reason string) error {
	return p.set(ctx, caller, "pause_all", func(state *entity.PauseState) error {
		state.All = true
		state.Reason = reason
		return nil
	})
}

func (p *EmergencyPause) UnpauseAll(ctx context.Context, caller common.Address) error {
	return p.set(ctx, caller, "unpause_all", func(state *entity.PauseState) error {
		state.All = false
		state.Reason = ""
		return nil
	})
}

// Status возвращает текущие флаги.
func (p *EmergencyPause) Status(ctx context.Context) (entity.PauseState, error) {
	var out entity.PauseState
	err := p.ledger.View(ctx, func(tx *ledger.Tx) error {
		out = tx.Globals().Pause
		return nil
	})
	return out, err
}

func (p *EmergencyPause) set(ctx context.Context, caller common.Address, action string, change func(*entity.PauseState) error) error {
	return p.ledger.Execute(ctx, action, func(tx *ledger.Tx) error {
		if err := tx.Auth(caller).Require(authz.RolePauser); err != nil {
			return err
		}
		g := tx.Globals()
		if err := change(&g.Pause); err != nil {
			return err
		}
		now := tx.Now()
		g.Pause.ChangedAt = &now
		tx.PutGlobals(g)

		tx.Emit(entity.EventPauseChanged, nil, map[string]any{
			"action":     action,
			"all":        g.Pause.All,
			"components": g.Pause.Components,
			"reason":     g.Pause.Reason,
			"by":         caller.Hex(),
		})
		return nil
	})
}

func unknownComponent(c entity.Component) error {
	return apperror.Reject(apperror.KindInvalidInput, "неизвестный компонент").With("component", c)
}
