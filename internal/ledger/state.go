package ledger

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
)

// Виды записей журнала.
const (
	KindGlobals      = "globals"
	KindBounty       = "bounty"
	KindSubmission   = "submission"
	KindDispute      = "dispute"
	KindAccount      = "account"
	KindSlot         = "slot"
	KindReputation   = "reputation"
	KindCancellation = "cancellation"
	KindWorkload     = "workload"
	KindWithdrawal   = "withdrawal"
)

const globalsKey = "singleton"

// Record это сериализованная строка состояния для журнала.
type Record struct {
	Kind string          `db:"kind"`
	Key  string          `db:"key"`
	Data json.RawMessage `db:"data"`
}

// State это зафиксированное состояние всех компонентов.
type State struct {
	globals       *entity.Globals
	bounties      *table[uint64, entity.Bounty]
	submissions   *table[uint64, entity.Submission]
	disputes      *table[uint64, entity.Dispute]
	accounts      *table[common.Address, entity.EscrowAccount]
	slots         *table[uint64, entity.EscrowSlot]
	reputations   *table[common.Address, entity.ReputationScore]
	cancellations *table[uint64, entity.CancellationRequest]
	workloads     *table[common.Address, entity.Workload]
	withdrawals   *table[uuid.UUID, entity.Withdrawal]
}

func newState() *State {
	return &State{
		globals:       entity.NewGlobals(),
		bounties:      newTable((*entity.Bounty).Clone, cmp.Compare[uint64]),
		submissions:   newTable((*entity.Submission).Clone, cmp.Compare[uint64]),
		disputes:      newTable((*entity.Dispute).Clone, cmp.Compare[uint64]),
		accounts:      newTable((*entity.EscrowAccount).Clone, compareAddress),
		slots:         newTable((*entity.EscrowSlot).Clone, cmp.Compare[uint64]),
		reputations:   newTable((*entity.ReputationScore).Clone, compareAddress),
		cancellations: newTable((*entity.CancellationRequest).Clone, cmp.Compare[uint64]),
		workloads:     newTable((*entity.Workload).Clone, compareAddress),
		withdrawals:   newTable((*entity.Withdrawal).Clone, compareUUID),
	}
}

func compareAddress(a, b common.Address) int {
	return bytes.Compare(a[:], b[:])
}

func compareUUID(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

// restore загружает одну запись журнала в состояние.
func (s *State) restore(rec Record) error {
	switch rec.Kind {
	case KindGlobals:
		g := entity.NewGlobals()
		if err := json.Unmarshal(rec.Data, g); err != nil {
			return fmt.Errorf("ledger: globals: %w", err)
		}
		s.globals = g
		return nil
	case KindBounty:
		return restoreRow(s.bounties, rec, func(v *entity.Bounty) uint64 { return v.ID })
	case KindSubmission:
		return restoreRow(s.submissions, rec, func(v *entity.Submission) uint64 { return v.ID })
	case KindDispute:
		return restoreRow(s.disputes, rec, func(v *entity.Dispute) uint64 { return v.ID })
	case KindAccount:
		return restoreRow(s.accounts, rec, func(v *entity.EscrowAccount) common.Address { return v.Address })
	case KindSlot:
		return restoreRow(s.slots, rec, func(v *entity.EscrowSlot) uint64 { return v.BountyID })
	case KindReputation:
		return restoreRow(s.reputations, rec, func(v *entity.ReputationScore) common.Address { return v.Address })
	case KindCancellation:
		return restoreRow(s.cancellations, rec, func(v *entity.CancellationRequest) uint64 { return v.BountyID })
	case KindWorkload:
		return restoreRow(s.workloads, rec, func(v *entity.Workload) common.Address { return v.Address })
	case KindWithdrawal:
		return restoreRow(s.withdrawals, rec, func(v *entity.Withdrawal) uuid.UUID { return v.ID })
	default:
		return fmt.Errorf("ledger: неизвестный вид записи %q", rec.Kind)
	}
}

func restoreRow[K comparable, V any](t *table[K, V], rec Record, key func(*V) K) error {
	v := new(V)
	if err := json.Unmarshal(rec.Data, v); err != nil {
		return fmt.Errorf("ledger: %s %s: %w", rec.Kind, rec.Key, err)
	}
	t.rows[key(v)] = v
	return nil
}

// AuditReport это суммы, пересчитанные по всем строкам.
type AuditReport struct {
	Escrowed      *big.Int `json:"escrowed"`
	Locked        *big.Int `json:"locked"`
	Available     *big.Int `json:"available"`
	AccountLocked *big.Int `json:"account_locked"`
	FeeBalance    *big.Int `json:"fee_balance"`
	Custodied     *big.Int `json:"custodied"`
	Balanced      bool     `json:"balanced"`
}

func (s *State) audit() AuditReport {
	r := AuditReport{
		Escrowed:      new(big.Int),
		Locked:        new(big.Int),
		Available:     new(big.Int),
		AccountLocked: new(big.Int),
		FeeBalance:    new(big.Int).Set(s.globals.FeeBalance),
		Custodied:     new(big.Int).Set(s.globals.Custodied),
	}
	for _, slot := range s.slots.rows {
		r.Escrowed.Add(r.Escrowed, slot.Balance)
		r.Locked.Add(r.Locked, slot.Locked)
	}
	for _, acc := range s.accounts.rows {
		r.Available.Add(r.Available, acc.Available)
		r.AccountLocked.Add(r.AccountLocked, acc.Locked)
	}

	total := new(big.Int).Add(r.Escrowed, r.Locked)
	total.Add(total, r.Available)
	total.Add(total, r.FeeBalance)
	r.Balanced = total.Cmp(r.Custodied) == 0 && r.Locked.Cmp(r.AccountLocked) == 0
	return r
}

func uintKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}
