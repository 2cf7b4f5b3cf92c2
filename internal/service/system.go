package service

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ignatzorin/bounty-escrow/internal/authz"
	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-escrow/internal/ledger"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
)

// Адреса, от имени которых компоненты вызывают друг друга.
var (
	RegistryIdentity   = authz.ComponentAddress("bounty-registry")
	SubmissionIdentity = authz.ComponentAddress("submission-manager")
	DisputeIdentity    = authz.ComponentAddress("dispute-resolver")
	KeeperIdentity     = authz.ComponentAddress("keeper")
	AdvisoryIdentity   = authz.ComponentAddress("ai-service")
)

var componentRoles = map[common.Address]authz.Role{
	RegistryIdentity:   authz.RoleBountyRegistry,
	SubmissionIdentity: authz.RoleSubmissionManager,
	DisputeIdentity:    authz.RoleDisputeResolver,
	KeeperIdentity:     authz.RoleKeeper,
	AdvisoryIdentity:   authz.RoleAIService,
}

// Genesis это параметры первичной инициализации.
type Genesis struct {
	Admin           common.Address
	Treasury        common.Address
	FeeBps          uint16
	AppealThreshold *big.Int
	Updaters        []common.Address
	Grants          map[authz.Role][]common.Address
}

// System связывает все компоненты поверх одного реестра.
type System struct {
	ledger *ledger.Ledger

	Oracle      *ReputationOracle
	Escrow      *PaymentEscrow
	Registry    *BountyRegistry
	Submissions *SubmissionManager
	Disputes    *DisputeResolver
	Pause       *EmergencyPause
}

func NewSystem(l *ledger.Ledger) *System {
	s := &System{ledger: l}
	s.Oracle = &ReputationOracle{ledger: l}
	s.Escrow = &PaymentEscrow{ledger: l}
	s.Pause = &EmergencyPause{ledger: l}
	s.Registry = &BountyRegistry{ledger: l, escrow: s.Escrow, oracle: s.Oracle, pause: s.Pause}
	s.Submissions = &SubmissionManager{ledger: l, escrow: s.Escrow, oracle: s.Oracle}
	s.Disputes = &DisputeResolver{ledger: l, escrow: s.Escrow, oracle: s.Oracle}
	return s
}

func (s *System) Ledger() *ledger.Ledger {
	return s.ledger
}

// Initialized сообщает, прошла ли первичная инициализация.
func (s *System) Initialized(ctx context.Context) (bool, error) {
	var ok bool
	err := s.ledger.View(ctx, func(tx *ledger.Tx) error {
		ok = tx.Globals().Initialized
		return nil
	})
	return ok, err
}

// Bootstrap выполняет первичную инициализацию. Повторный вызов отклоняется.
func (s *System) Bootstrap(ctx context.Context, genesis Genesis) error {
	return s.ledger.Execute(ctx, "bootstrap", func(tx *ledger.Tx) error {
		g := tx.Globals()
		if g.Initialized {
			return apperror.Reject(apperror.KindAlreadyInitialized, "система уже инициализирована")
		}
		if genesis.FeeBps > valueobject.MaxFeeBps {
			return feeTooHigh(genesis.FeeBps)
		}
		if err := requireAddress(genesis.Admin, "admin"); err != nil {
			return err
		}
		if err := requireAddress(genesis.Treasury, "treasury"); err != nil {
			return err
		}

		g.Initialized = true
		g.Admin = genesis.Admin
		g.Treasury = genesis.Treasury
		g.FeeBps = genesis.FeeBps
		if genesis.AppealThreshold != nil {
			g.AppealThreshold = valueobject.CopyAmount(genesis.AppealThreshold)
		}

		g.Roles.Grant(authz.RoleAdmin, genesis.Admin)
		g.Roles.Grant(authz.RolePauser, genesis.Admin)
		g.Roles.Grant(authz.RoleTreasury, genesis.Treasury)
		for addr, role := range componentRoles {
			g.Roles.Grant(role, addr)
		}
		for role, members := range genesis.Grants {
			if !role.IsValid() {
				return apperror.Reject(apperror.KindInvalidInput, "неизвестная роль").With("role", role)
			}
			for _, addr := range members {
				if err := requireAddress(addr, string(role)); err != nil {
					return err
				}
				g.Roles.Grant(role, addr)
			}
		}
		for _, addr := range genesis.Updaters {
			if err := requireAddress(addr, "updater"); err != nil {
				return err
			}
			g.Updaters[addr] = true
		}
		tx.PutGlobals(g)

		tx.Emit(entity.EventRoleChanged, []common.Address{genesis.Admin}, map[string]any{
			"action":   "bootstrap",
			"admin":    genesis.Admin.Hex(),
			"treasury": genesis.Treasury.Hex(),
			"fee_bps":  genesis.FeeBps,
		})
		return nil
	})
}

// GrantRole выдаёт роль адресу.
func (s *System) GrantRole(ctx context.Context, caller common.Address, role authz.Role, addr common.Address) error {
	return s.changeRole(ctx, caller, role, addr, true)
}

// RevokeRole отзывает роль. Последнего администратора отозвать нельзя.
func (s *System) RevokeRole(ctx context.Context, caller common.Address, role authz.Role, addr common.Address) error {
	return s.changeRole(ctx, caller, role, addr, false)
}

func (s *System) changeRole(ctx context.Context, caller common.Address, role authz.Role, addr common.Address, grant bool) error {
	return s.ledger.Execute(ctx, "change_role", func(tx *ledger.Tx) error {
		if err := tx.Auth(caller).Require(authz.RoleAdmin); err != nil {
			return err
		}
		if !role.IsValid() {
			return apperror.Reject(apperror.KindInvalidInput, "неизвестная роль").With("role", role)
		}
		if err := requireAddress(addr, "address"); err != nil {
			return err
		}

		g := tx.Globals()
		action := "grant"
		if grant {
			g.Roles.Grant(role, addr)
		} else {
			if role == authz.RoleAdmin && len(g.Roles.Members(authz.RoleAdmin)) == 1 && g.Roles.Holds(role, addr) {
				return apperror.Reject(apperror.KindInvalidInput, "нельзя отозвать роль у последнего администратора")
			}
			g.Roles.Revoke(role, addr)
			action = "revoke"
		}
		tx.PutGlobals(g)

		tx.Emit(entity.EventRoleChanged, []common.Address{addr}, map[string]any{
			"action":  action,
			"role":    role,
			"address": addr.Hex(),
			"by":      caller.Hex(),
		})
		return nil
	})
}

// Roles возвращает роли адреса.
func (s *System) Roles(ctx context.Context, addr common.Address) ([]authz.Role, error) {
	var roles []authz.Role
	err := s.ledger.View(ctx, func(tx *ledger.Tx) error {
		roles = tx.Auth(addr).Roles()
		return nil
	})
	return roles, err
}

// Audit пересчитывает итоговые суммы эскроу.
func (s *System) Audit() ledger.AuditReport {
	return s.ledger.Audit()
}

// ensureActive отклоняет вызов, если компонент или вся система на паузе.
func ensureActive(tx *ledger.Tx, component entity.Component) error {
	pause := tx.Globals().Pause
	if pause.IsPaused(component) {
		return apperror.Reject(apperror.KindSystemPaused, "компонент приостановлен").
			With("component", component).
			With("reason", pause.Reason)
	}
	return nil
}

func requireAddress(addr common.Address, field string) error {
	if addr == (common.Address{}) {
		return apperror.Reject(apperror.KindInvalidAddress, "нулевой адрес").With("field", field)
	}
	return nil
}

func requireHash(hash, field string) error {
	if hash == "" {
		return apperror.Reject(apperror.KindInvalidInput, "не указан хеш").With("field", field)
	}
	return nil
}

func feeTooHigh(bps uint16) error {
	return apperror.Reject(apperror.KindInvalidFeePercentage, "комиссия выше допустимого потолка").
		With("fee_bps", bps).
		With("max", valueobject.MaxFeeBps)
}

// reputationOf возвращает запись репутации или пустую запись уровня Bronze.
func reputationOf(tx *ledger.Tx, addr common.Address) *entity.ReputationScore {
	if rep, ok := tx.Reputation(addr); ok {
		return rep
	}
	return entity.NewReputationScore(addr, tx.Now())
}

// releaseSlot уменьшает число активных задач исполнителя.
func releaseSlot(tx *ledger.Tx, freelancer common.Address) {
	if freelancer == (common.Address{}) {
		return
	}
	w := tx.Workload(freelancer)
	if w.ActiveBounties > 0 {
		w.ActiveBounties--
	}
	tx.PutWorkload(w)
}

// dropCancellation закрывает открытый запрос на отмену без одобрения, когда задача
// перешла в состояние, из которого отмена невозможна.
func dropCancellation(tx *ledger.Tx, bounty *entity.Bounty, by common.Address, cause string) {
	req, ok := tx.Cancellation(bounty.ID)
	if !ok || !req.IsLive() {
		return
	}
	req.Close(by, false, tx.Now())
	tx.PutCancellation(req)
	tx.Emit(entity.EventCancellationDenied, []common.Address{bounty.Client, bounty.ClaimedBy}, map[string]any{
		"bounty_id": bounty.ID,
		"by":        by.Hex(),
		"cause":     cause,
	})
}
