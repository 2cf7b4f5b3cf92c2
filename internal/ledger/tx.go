package ledger

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/ignatzorin/bounty-escrow/internal/authz"
	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
)

// Tx это единица работы. Все изменения видны только внутри неё до фиксации.
type Tx struct {
	state *State
	now   time.Time

	globals      *entity.Globals
	globalsDirty bool

	bounties      *overlay[uint64, entity.Bounty]
	submissions   *overlay[uint64, entity.Submission]
	disputes      *overlay[uint64, entity.Dispute]
	accounts      *overlay[common.Address, entity.EscrowAccount]
	slots         *overlay[uint64, entity.EscrowSlot]
	reputations   *overlay[common.Address, entity.ReputationScore]
	cancellations *overlay[uint64, entity.CancellationRequest]
	workloads     *overlay[common.Address, entity.Workload]
	withdrawals   *overlay[uuid.UUID, entity.Withdrawal]

	events []entity.Event
}

func newTx(state *State, now time.Time) *Tx {
	return &Tx{
		state:         state,
		now:           now,
		bounties:      newOverlay(state.bounties),
		submissions:   newOverlay(state.submissions),
		disputes:      newOverlay(state.disputes),
		accounts:      newOverlay(state.accounts),
		slots:         newOverlay(state.slots),
		reputations:   newOverlay(state.reputations),
		cancellations: newOverlay(state.cancellations),
		workloads:     newOverlay(state.workloads),
		withdrawals:   newOverlay(state.withdrawals),
	}
}

// Now это время транзакции. Одинаково для всех проверок внутри неё.
func (tx *Tx) Now() time.Time {
	return tx.now
}

// Auth вычисляет контекст авторизации адреса по текущим выдачам ролей.
func (tx *Tx) Auth(addr common.Address) authz.Context {
	return tx.Globals().Roles.Resolve(addr)
}

func (tx *Tx) Globals() *entity.Globals {
	if tx.globals != nil {
		return tx.globals.Clone()
	}
	return tx.state.globals.Clone()
}

func (tx *Tx) PutGlobals(g *entity.Globals) {
	tx.globals = g.Clone()
	tx.globalsDirty = true
}

func (tx *Tx) Bounty(id uint64) (*entity.Bounty, error) {
	b, ok := tx.bounties.get(id)
	if !ok {
		return nil, notFound("задача не найдена", "bounty_id", id)
	}
	return b, nil
}

func (tx *Tx) PutBounty(b *entity.Bounty) {
	tx.bounties.put(b.ID, b)
}

func (tx *Tx) Bounties() []*entity.Bounty {
	return tx.bounties.list()
}

func (tx *Tx) Submission(id uint64) (*entity.Submission, error) {
	s, ok := tx.submissions.get(id)
	if !ok {
		return nil, notFound("работа не найдена", "submission_id", id)
	}
	return s, nil
}

func (tx *Tx) PutSubmission(s *entity.Submission) {
	tx.submissions.put(s.ID, s)
}

func (tx *Tx) Submissions() []*entity.Submission {
	return tx.submissions.list()
}

func (tx *Tx) Dispute(id uint64) (*entity.Dispute, error) {
	d, ok := tx.disputes.get(id)
	if !ok {
		return nil, notFound("спор не найден", "dispute_id", id)
	}
	return d, nil
}

func (tx *Tx) PutDispute(d *entity.Dispute) {
	tx.disputes.put(d.ID, d)
}

func (tx *Tx) Disputes() []*entity.Dispute {
	return tx.disputes.list()
}

// Account возвращает счёт адреса. Несуществующий счёт возвращается пустым.
func (tx *Tx) Account(addr common.Address) *entity.EscrowAccount {
	if acc, ok := tx.accounts.get(addr); ok {
		return acc
	}
	return entity.NewEscrowAccount(addr)
}

func (tx *Tx) PutAccount(acc *entity.EscrowAccount) {
	tx.accounts.put(acc.Address, acc)
}

func (tx *Tx) Accounts() []*entity.EscrowAccount {
	return tx.accounts.list()
}

// Slot возвращает средства задачи. Для задачи без депозита возвращается пустой слот.
func (tx *Tx) Slot(bountyID uint64) *entity.EscrowSlot {
	if slot, ok := tx.slots.get(bountyID); ok {
		return slot
	}
	return entity.NewEscrowSlot(bountyID, common.Address{})
}

func (tx *Tx) PutSlot(slot *entity.EscrowSlot) {
	tx.slots.put(slot.BountyID, slot)
}

func (tx *Tx) Reputation(addr common.Address) (*entity.ReputationScore, bool) {
	return tx.reputations.get(addr)
}

func (tx *Tx) PutReputation(r *entity.ReputationScore) {
	tx.reputations.put(r.Address, r)
}

func (tx *Tx) Reputations() []*entity.ReputationScore {
	return tx.reputations.list()
}

func (tx *Tx) Cancellation(bountyID uint64) (*entity.CancellationRequest, bool) {
	return tx.cancellations.get(bountyID)
}

func (tx *Tx) PutCancellation(c *entity.CancellationRequest) {
	tx.cancellations.put(c.BountyID, c)
}

func (tx *Tx) Cancellations() []*entity.CancellationRequest {
	return tx.cancellations.list()
}

func (tx *Tx) Workload(addr common.Address) *entity.Workload {
	if w, ok := tx.workloads.get(addr); ok {
		return w
	}
	return &entity.Workload{Address: addr}
}

func (tx *Tx) PutWorkload(w *entity.Workload) {
	tx.workloads.put(w.Address, w)
}

func (tx *Tx) AddWithdrawal(w *entity.Withdrawal) {
	tx.withdrawals.put(w.ID, w)
}

// Withdrawals возвращает выводы адреса от новых к старым.
func (tx *Tx) Withdrawals(addr common.Address) []*entity.Withdrawal {
	var out []*entity.Withdrawal
	for _, w := range tx.withdrawals.list() {
		if w.Account == addr {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out
}

// Emit ставит событие в очередь. События публикуются только после фиксации.
func (tx *Tx) Emit(eventType string, parties []common.Address, payload map[string]any) {
	tx.events = append(tx.events, entity.Event{
		ID:      uuid.New(),
		Type:    eventType,
		Parties: parties,
		Payload: payload,
		At:      tx.now,
	})
}

func (tx *Tx) Events() []entity.Event {
	return tx.events
}

// checkConservation сверяет изменения сумм в слотах, счетах и пуле комиссий с изменением хранимого итога.
func (tx *Tx) checkConservation() error {
	delta := new(big.Int)

	for _, id := range tx.slots.dirtyKeys() {
		delta.Add(delta, tx.slots.dirty[id].Held())
		if old, ok := tx.slots.committed(id); ok {
			delta.Sub(delta, old.Held())
		}
	}
	for _, addr := range tx.accounts.dirtyKeys() {
		delta.Add(delta, tx.accounts.dirty[addr].Available)
		if old, ok := tx.accounts.committed(addr); ok {
			delta.Sub(delta, old.Available)
		}
	}
	if tx.globalsDirty {
		before := tx.state.globals
		delta.Add(delta, tx.globals.FeeBalance)
		delta.Sub(delta, before.FeeBalance)
		delta.Sub(delta, tx.globals.Custodied)
		delta.Add(delta, before.Custodied)
	}

	if delta.Sign() != 0 {
		return apperror.Reject(apperror.KindConservationViolated, "нарушен баланс средств эскроу").
			With("delta", valueobject.FormatEther(delta))
	}
	return nil
}

// records сериализует изменённые строки для журнала.
func (tx *Tx) records() ([]Record, error) {
	var out []Record
	add := func(kind, key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("ledger: сериализация %s %s: %w", kind, key, err)
		}
		out = append(out, Record{Kind: kind, Key: key, Data: raw})
		return nil
	}

	if tx.globalsDirty {
		if err := add(KindGlobals, globalsKey, tx.globals); err != nil {
			return nil, err
		}
	}
	if err := collect(tx.bounties, KindBounty, uintKey, add); err != nil {
		return nil, err
	}
	if err := collect(tx.submissions, KindSubmission, uintKey, add); err != nil {
		return nil, err
	}
	if err := collect(tx.disputes, KindDispute, uintKey, add); err != nil {
		return nil, err
	}
	if err := collect(tx.accounts, KindAccount, common.Address.Hex, add); err != nil {
		return nil, err
	}
	if err := collect(tx.slots, KindSlot, uintKey, add); err != nil {
		return nil, err
	}
	if err := collect(tx.reputations, KindReputation, common.Address.Hex, add); err != nil {
		return nil, err
	}
	if err := collect(tx.cancellations, KindCancellation, uintKey, add); err != nil {
		return nil, err
	}
	if err := collect(tx.workloads, KindWorkload, common.Address.Hex, add); err != nil {
		return nil, err
	}
	if err := collect(tx.withdrawals, KindWithdrawal, uuid.UUID.String, add); err != nil {
		return nil, err
	}
	return out, nil
}

func collect[K comparable, V any](o *overlay[K, V], kind string, keyFn func(K) string, add func(kind, key string, v any) error) error {
	for _, k := range o.dirtyKeys() {
		if err := add(kind, keyFn(k), o.dirty[k]); err != nil {
			return err
		}
	}
	return nil
}

// merge переносит изменения транзакции в зафиксированное состояние.
func (tx *Tx) merge() {
	if tx.globalsDirty {
		tx.state.globals = tx.globals
	}
	tx.bounties.merge()
	tx.submissions.merge()
	tx.disputes.merge()
	tx.accounts.merge()
	tx.slots.merge()
	tx.reputations.merge()
	tx.cancellations.merge()
	tx.workloads.merge()
	tx.withdrawals.merge()
}

func notFound(message, key string, id uint64) error {
	return apperror.Reject(apperror.KindNotFound, message).With(key, id)
}
