package service

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/ignatzorin/bounty-escrow/internal/authz"
	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-escrow/internal/ledger"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
)

// PaymentEscrow хранит средства задач, балансы адресов и пул комиссий.
type PaymentEscrow struct {
	ledger *ledger.Ledger
}

// Settlement это результат выплаты по задаче.
type Settlement struct {
	BountyID     uint64   `json:"bounty_id"`
	Freelancer   *big.Int `json:"freelancer_net"`
	Fee          *big.Int `json:"fee"`
	ClientRefund *big.Int `json:"client_refund"`
}

// DepositToEscrow зачисляет депозит задачи.
func (e *PaymentEscrow) DepositToEscrow(ctx context.Context, caller, payer common.Address, bountyID uint64, value *big.Int) error {
	return e.ledger.Execute(ctx, "deposit_to_escrow", func(tx *ledger.Tx) error {
		return e.deposit(tx, tx.Auth(caller), payer, bountyID, value)
	})
}

// LockFunds блокирует весь остаток задачи на время спора.
func (e *PaymentEscrow) LockFunds(ctx context.Context, caller, payer common.Address, amount *big.Int, bountyID uint64) error {
	return e.ledger.Execute(ctx, "lock_funds", func(tx *ledger.Tx) error {
		return e.lockFunds(tx, tx.Auth(caller), payer, amount, bountyID)
	})
}

// ReleasePayment выплачивает весь остаток задачи исполнителю за вычетом комиссии.
func (e *PaymentEscrow) ReleasePayment(ctx context.Context, caller common.Address, bountyID uint64, freelancer common.Address, amount *big.Int) (*Settlement, error) {
	var out *Settlement
	err := e.ledger.Execute(ctx, "release_payment", func(tx *ledger.Tx) error {
		s, err := e.releasePayment(tx, tx.Auth(caller), bountyID, freelancer, amount)
		out = s
		return err
	})
	return out, err
}

// ReleasePartialPayment делит заблокированную сумму между исполнителем и клиентом.
func (e *PaymentEscrow) ReleasePartialPayment(ctx context.Context, caller common.Address, bountyID uint64, freelancer, client common.Address, pct uint8) (*Settlement, error) {
	var out *Settlement
	err := e.ledger.Execute(ctx, "release_partial_payment", func(tx *ledger.Tx) error {
		s, err := e.releasePartialPayment(tx, tx.Auth(caller), bountyID, freelancer, client, pct)
		out = s
		return err
	})
	return out, err
}

// RefundClient возвращает клиенту весь остаток задачи без комиссии.
func (e *PaymentEscrow) RefundClient(ctx context.Context, caller common.Address, bountyID uint64, client common.Address, amount *big.Int, reason string) error {
	return e.ledger.Execute(ctx, "refund_client", func(tx *ledger.Tx) error {
		return e.refundClient(tx, tx.Auth(caller), bountyID, client, amount, reason)
	})
}

func (e *PaymentEscrow) deposit(tx *ledger.Tx, caller authz.Context, payer common.Address, bountyID uint64, value *big.Int) error {
	if err := caller.Require(authz.RoleBountyRegistry); err != nil {
		return err
	}
	if err := ensureActive(tx, entity.ComponentEscrow); err != nil {
		return err
	}
	if value == nil || value.Sign() <= 0 {
		return apperror.Reject(apperror.KindZeroAmount, "пустой депозит").With("bounty_id", bountyID)
	}
	if err := requireAddress(payer, "payer"); err != nil {
		return err
	}

	slot := tx.Slot(bountyID)
	slot.Payer = payer
	slot.Balance.Add(slot.Balance, value)
	tx.PutSlot(slot)

	acc := tx.Account(payer)
	acc.TotalDeposited.Add(acc.TotalDeposited, value)
	tx.PutAccount(acc)

	g := tx.Globals()
	g.Custodied.Add(g.Custodied, value)
	tx.PutGlobals(g)
	return nil
}

func (e *PaymentEscrow) lockFunds(tx *ledger.Tx, caller authz.Context, payer common.Address, amount *big.Int, bountyID uint64) error {
	if err := caller.Require(authz.RoleBountyRegistry, authz.RoleDisputeResolver); err != nil {
		return err
	}
	if err := ensureActive(tx, entity.ComponentEscrow); err != nil {
		return err
	}

	slot := tx.Slot(bountyID)
	if slot.Balance.Sign() == 0 {
		return insufficientEscrow(bountyID, slot.Balance)
	}
	if amount == nil || amount.Cmp(slot.Balance) != 0 {
		return invalidAmount(bountyID, amount, slot.Balance)
	}

	slot.Locked.Add(slot.Locked, slot.Balance)
	slot.Balance = valueobject.Zero()
	tx.PutSlot(slot)

	acc := tx.Account(payer)
	acc.Locked.Add(acc.Locked, amount)
	tx.PutAccount(acc)
	return nil
}

func (e *PaymentEscrow) releasePayment(tx *ledger.Tx, caller authz.Context, bountyID uint64, freelancer common.Address, amount *big.Int) (*Settlement, error) {
	if err := caller.Require(authz.RoleSubmissionManager, authz.RoleDisputeResolver); err != nil {
		return nil, err
	}
	if err := ensureActive(tx, entity.ComponentEscrow); err != nil {
		return nil, err
	}
	if err := requireAddress(freelancer, "freelancer"); err != nil {
		return nil, err
	}

	slot := tx.Slot(bountyID)
	if slot.Balance.Sign() == 0 {
		return nil, insufficientEscrow(bountyID, slot.Balance)
	}
	bounty, err := tx.Bounty(bountyID)
	if err != nil {
		return nil, err
	}
	if bounty.Status != valueobject.BountyStatusUnderReview && bounty.Status != valueobject.BountyStatusDisputed {
		return nil, apperror.Reject(apperror.KindInvalidBountyState, "выплата возможна только по задаче на проверке или в споре").
			With("bounty_id", bountyID).
			With("status", bounty.Status)
	}
	if amount == nil || amount.Cmp(slot.Balance) != 0 {
		return nil, invalidAmount(bountyID, amount, slot.Balance)
	}

	fee := valueobject.FeeOf(amount, bounty.FeeBps)
	net := new(big.Int).Sub(amount, fee)

	slot.Balance = valueobject.Zero()
	tx.PutSlot(slot)
	e.credit(tx, freelancer, net)
	e.collectFee(tx, fee)

	tx.Emit(entity.EventPaymentReleased, []common.Address{freelancer, bounty.Client}, map[string]any{
		"bounty_id":  bountyID,
		"freelancer": freelancer.Hex(),
		"amount":     valueobject.FormatEther(net),
		"fee":        valueobject.FormatEther(fee),
	})
	return &Settlement{BountyID: bountyID, Freelancer: net, Fee: fee, ClientRefund: valueobject.Zero()}, nil
}

func (e *PaymentEscrow) releasePartialPayment(tx *ledger.Tx, caller authz.Context, bountyID uint64, freelancer, client common.Address, pct uint8) (*Settlement, error) {
	if err := caller.Require(authz.RoleDisputeResolver); err != nil {
		return nil, err
	}
	if err := ensureActive(tx, entity.ComponentEscrow); err != nil {
		return nil, err
	}
	if pct > 100 {
		return nil, apperror.Reject(apperror.KindInvalidPaymentPercentage, "процент выплаты вне диапазона 0..100").
			With("percentage", pct)
	}
	if err := requireAddress(client, "client"); err != nil {
		return nil, err
	}

	slot := tx.Slot(bountyID)
	locked := valueobject.CopyAmount(slot.Locked)
	if locked.Sign() == 0 {
		return nil, insufficientEscrow(bountyID, locked)
	}
	bounty, err := tx.Bounty(bountyID)
	if err != nil {
		return nil, err
	}

	gross := valueobject.PercentOf(locked, pct)
	fee := valueobject.FeeOf(gross, bounty.FeeBps)
	net := new(big.Int).Sub(gross, fee)
	refund := new(big.Int).Sub(locked, gross)
	if gross.Sign() > 0 {
		if err := requireAddress(freelancer, "freelancer"); err != nil {
			return nil, err
		}
	}

	slot.Locked = valueobject.Zero()
	tx.PutSlot(slot)

	payer := tx.Account(slot.Payer)
	payer.Locked.Sub(payer.Locked, locked)
	if payer.Locked.Sign() < 0 {
		payer.Locked = valueobject.Zero()
	}
	tx.PutAccount(payer)

	if net.Sign() > 0 {
		e.credit(tx, freelancer, net)
	}
	if refund.Sign() > 0 {
		e.credit(tx, client, refund)
	}
	e.collectFee(tx, fee)

	if gross.Sign() > 0 {
		tx.Emit(entity.EventPaymentReleased, []common.Address{freelancer, client}, map[string]any{
			"bounty_id":  bountyID,
			"freelancer": freelancer.Hex(),
			"amount":     valueobject.FormatEther(net),
			"fee":        valueobject.FormatEther(fee),
			"percentage": pct,
		})
	}
	if refund.Sign() > 0 {
		tx.Emit(entity.EventFundsRefunded, []common.Address{client}, map[string]any{
			"bounty_id": bountyID,
			"client":    client.Hex(),
			"amount":    valueobject.FormatEther(refund),
			"reason":    "dispute",
		})
	}
	return &Settlement{BountyID: bountyID, Freelancer: net, Fee: fee, ClientRefund: refund}, nil
}

func (e *PaymentEscrow) refundClient(tx *ledger.Tx, caller authz.Context, bountyID uint64, client common.Address, amount *big.Int, reason string) error {
	if err := caller.Require(authz.RoleBountyRegistry); err != nil {
		return err
	}
	if err := ensureActive(tx, entity.ComponentEscrow); err != nil {
		return err
	}
	if err := requireAddress(client, "client"); err != nil {
		return err
	}

	slot := tx.Slot(bountyID)
	if slot.Balance.Sign() == 0 {
		return insufficientEscrow(bountyID, slot.Balance)
	}
	if amount == nil || amount.Cmp(slot.Balance) != 0 {
		return invalidAmount(bountyID, amount, slot.Balance)
	}

	slot.Balance = valueobject.Zero()
	tx.PutSlot(slot)
	e.credit(tx, client, amount)

	tx.Emit(entity.EventFundsRefunded, []common.Address{client}, map[string]any{
		"bounty_id": bountyID,
		"client":    client.Hex(),
		"amount":    valueobject.FormatEther(amount),
		"reason":    reason,
	})
	return nil
}

// Withdraw выводит доступные средства. Пауза вывод не блокирует.
func (e *PaymentEscrow) Withdraw(ctx context.Context, caller common.Address, amount *big.Int) (*entity.Withdrawal, error) {
	var out *entity.Withdrawal
	err := e.ledger.Execute(ctx, "withdraw", func(tx *ledger.Tx) error {
		if amount == nil || amount.Sign() <= 0 {
			return apperror.Reject(apperror.KindZeroAmount, "пустая сумма вывода")
		}
		acc := tx.Account(caller)
		if amount.Cmp(acc.Available) > 0 {
			return apperror.Reject(apperror.KindInsufficientBalance, "недостаточно доступных средств").
				With("requested", valueobject.FormatEther(amount)).
				With("available", valueobject.FormatEther(acc.Available))
		}

		tier := reputationOf(tx, caller).Tier
		if acc.LastWithdrawalAt != nil {
			next := acc.LastWithdrawalAt.Add(tier.WithdrawalCooldown())
			if tx.Now().Before(next) {
				return apperror.Reject(apperror.KindWithdrawalTooFrequent, "слишком частый вывод для уровня").
					With("tier", tier).
					With("now", tx.Now()).
					With("next_allowed", next)
			}
		}

		now := tx.Now()
		acc.Available.Sub(acc.Available, amount)
		acc.TotalWithdrawn.Add(acc.TotalWithdrawn, amount)
		acc.LastWithdrawalAt = &now
		tx.PutAccount(acc)

		g := tx.Globals()
		g.Custodied.Sub(g.Custodied, amount)
		tx.PutGlobals(g)

		out = &entity.Withdrawal{ID: uuid.New(), Account: caller, Amount: valueobject.CopyAmount(amount), Tier: tier, At: now}
		tx.AddWithdrawal(out)
		tx.Emit(entity.EventWithdrawalMade, []common.Address{caller}, map[string]any{
			"account": caller.Hex(),
			"amount":  valueobject.FormatEther(amount),
			"tier":    tier,
		})
		return nil
	})
	return out, err
}

// WithdrawPlatformFees переводит накопленные комиссии казначейству.
func (e *PaymentEscrow) WithdrawPlatformFees(ctx context.Context, caller common.Address) (*entity.Withdrawal, error) {
	var out *entity.Withdrawal
	err := e.ledger.Execute(ctx, "withdraw_platform_fees", func(tx *ledger.Tx) error {
		if err := tx.Auth(caller).Require(authz.RoleTreasury); err != nil {
			return err
		}
		if err := ensureActive(tx, entity.ComponentEscrow); err != nil {
			return err
		}
		g := tx.Globals()
		if g.FeeBalance.Sign() == 0 {
			return apperror.Reject(apperror.KindZeroAmount, "пул комиссий пуст")
		}

		amount := valueobject.CopyAmount(g.FeeBalance)
		g.FeeBalance = valueobject.Zero()
		g.Custodied.Sub(g.Custodied, amount)
		tx.PutGlobals(g)

		out = &entity.Withdrawal{ID: uuid.New(), Account: g.Treasury, Amount: amount, Fees: true, At: tx.Now()}
		tx.AddWithdrawal(out)
		tx.Emit(entity.EventWithdrawalMade, []common.Address{g.Treasury}, map[string]any{
			"account": g.Treasury.Hex(),
			"amount":  valueobject.FormatEther(amount),
			"fees":    true,
		})
		return nil
	})
	return out, err
}

// SetPlatformFee меняет комиссию для новых задач.
func (e *PaymentEscrow) SetPlatformFee(ctx context.Context, caller common.Address, bps uint16) error {
	return e.ledger.Execute(ctx, "set_platform_fee", func(tx *ledger.Tx) error {
		if err := tx.Auth(caller).Require(authz.RoleAdmin); err != nil {
			return err
		}
		if bps > valueobject.MaxFeeBps {
			return feeTooHigh(bps)
		}
		g := tx.Globals()
		g.FeeBps = bps
		tx.PutGlobals(g)
		return nil
	})
}

// SetTreasury меняет получателя комиссий и передаёт ему роль казначейства.
func (e *PaymentEscrow) SetTreasury(ctx context.Context, caller, treasury common.Address) error {
	return e.ledger.Execute(ctx, "set_treasury", func(tx *ledger.Tx) error {
		if err := tx.Auth(caller).Require(authz.RoleAdmin); err != nil {
			return err
		}
		if err := requireAddress(treasury, "treasury"); err != nil {
			return err
		}
		g := tx.Globals()
		g.Roles.Revoke(authz.RoleTreasury, g.Treasury)
		g.Roles.Grant(authz.RoleTreasury, treasury)
		g.Treasury = treasury
		tx.PutGlobals(g)
		tx.Emit(entity.EventRoleChanged, []common.Address{treasury}, map[string]any{
			"action":  "set_treasury",
			"address": treasury.Hex(),
			"by":      caller.Hex(),
		})
		return nil
	})
}

func (e *PaymentEscrow) GetAccount(ctx context.Context, addr common.Address) (*entity.EscrowAccount, error) {
	var out *entity.EscrowAccount
	err := e.ledger.View(ctx, func(tx *ledger.Tx) error {
		out = tx.Account(addr)
		return nil
	})
	return out, err
}

func (e *PaymentEscrow) GetEscrowBalance(ctx context.Context, bountyID uint64) (*entity.EscrowSlot, error) {
	var out *entity.EscrowSlot
	err := e.ledger.View(ctx, func(tx *ledger.Tx) error {
		out = tx.Slot(bountyID)
		return nil
	})
	return out, err
}

func (e *PaymentEscrow) PlatformFeeBalance(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := e.ledger.View(ctx, func(tx *ledger.Tx) error {
		out = tx.Globals().FeeBalance
		return nil
	})
	return out, err
}

// FeeBps возвращает текущую комиссию.
func (e *PaymentEscrow) FeeBps(ctx context.Context) (uint16, error) {
	var out uint16
	err := e.ledger.View(ctx, func(tx *ledger.Tx) error {
		out = tx.Globals().FeeBps
		return nil
	})
	return out, err
}

func (e *PaymentEscrow) ListWithdrawals(ctx context.Context, addr common.Address) ([]*entity.Withdrawal, error) {
	var out []*entity.Withdrawal
	err := e.ledger.View(ctx, func(tx *ledger.Tx) error {
		out = tx.Withdrawals(addr)
		return nil
	})
	return out, err
}

func (e *PaymentEscrow) credit(tx *ledger.Tx, addr common.Address, amount *big.Int) {
	acc := tx.Account(addr)
	acc.Available.Add(acc.Available, amount)
	tx.PutAccount(acc)
}

func (e *PaymentEscrow) collectFee(tx *ledger.Tx, fee *big.Int) {
	if fee.Sign() == 0 {
		return
	}
	g := tx.Globals()
	g.FeeBalance.Add(g.FeeBalance, fee)
	tx.PutGlobals(g)
}

func insufficientEscrow(bountyID uint64, balance *big.Int) error {
	return apperror.Reject(apperror.KindInsufficientEscrowBalance, "по задаче нет средств в эскроу").
		With("bounty_id", bountyID).
		With("balance", valueobject.FormatEther(balance))
}

func invalidAmount(bountyID uint64, requested, balance *big.Int) error {
	return apperror.Reject(apperror.KindInvalidAmount, "сумма должна совпадать с остатком задачи").
		With("bounty_id", bountyID).
		With("requested", valueobject.FormatEther(requested)).
		With("balance", valueobject.FormatEther(balance))
}
