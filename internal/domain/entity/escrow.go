package entity

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
)

// EscrowAccount это баланс адреса в эскроу.
type EscrowAccount struct {
	Address          common.Address `json:"address"`
	TotalDeposited   *big.Int       `json:"total_deposited"`
	Available        *big.Int       `json:"available"`
	Locked           *big.Int       `json:"locked"`
	TotalWithdrawn   *big.Int       `json:"total_withdrawn"`
	LastWithdrawalAt *time.Time     `json:"last_withdrawal_at,omitempty"`
}

func NewEscrowAccount(addr common.Address) *EscrowAccount {
	return &EscrowAccount{
		Address:        addr,
		TotalDeposited: valueobject.Zero(),
		Available:      valueobject.Zero(),
		Locked:         valueobject.Zero(),
		TotalWithdrawn: valueobject.Zero(),
	}
}

func (a *EscrowAccount) Clone() *EscrowAccount {
	c := *a
	c.TotalDeposited = valueobject.CopyAmount(a.TotalDeposited)
	c.Available = valueobject.CopyAmount(a.Available)
	c.Locked = valueobject.CopyAmount(a.Locked)
	c.TotalWithdrawn = valueobject.CopyAmount(a.TotalWithdrawn)
	c.LastWithdrawalAt = copyTime(a.LastWithdrawalAt)
	return &c
}

// EscrowSlot это средства конкретной задачи: свободный остаток и заблокированная на время спора часть.
type EscrowSlot struct {
	BountyID uint64         `json:"bounty_id"`
	Payer    common.Address `json:"payer"`
	Balance  *big.Int       `json:"balance"`
	Locked   *big.Int       `json:"locked"`
}

func NewEscrowSlot(bountyID uint64, payer common.Address) *EscrowSlot {
	return &EscrowSlot{
		BountyID: bountyID,
		Payer:    payer,
		Balance:  valueobject.Zero(),
		Locked:   valueobject.Zero(),
	}
}

// Held это всё, что эскроу держит по задаче.
func (s *EscrowSlot) Held() *big.Int {
	return new(big.Int).Add(s.Balance, s.Locked)
}

func (s *EscrowSlot) Clone() *EscrowSlot {
	c := *s
	c.Balance = valueobject.CopyAmount(s.Balance)
	c.Locked = valueobject.CopyAmount(s.Locked)
	return &c
}

// Withdrawal это запись об успешном выводе средств.
type Withdrawal struct {
	ID      uuid.UUID        `json:"id"`
	Account common.Address   `json:"account"`
	Amount  *big.Int         `json:"amount"`
	Tier    valueobject.Tier `json:"tier"`
	Fees    bool             `json:"fees"`
	At      time.Time        `json:"at"`
}

func (w *Withdrawal) Clone() *Withdrawal {
	c := *w
	c.Amount = valueobject.CopyAmount(w.Amount)
	return &c
}
