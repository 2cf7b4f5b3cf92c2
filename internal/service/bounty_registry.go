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
)

// BountyRegistry ведёт жизненный цикл задач.
type BountyRegistry struct {
	ledger *ledger.Ledger
	escrow *PaymentEscrow
	oracle *ReputationOracle
	pause  *EmergencyPause
}

// BountyFilter это условия выборки задач. Пустые поля не фильтруют.
type BountyFilter struct {
	Status     valueobject.BountyStatus
	Client     common.Address
	Freelancer common.Address
}

func (f BountyFilter) matches(b *entity.Bounty) bool {
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.Client != (common.Address{}) && b.Client != f.Client {
		return false
	}
	if f.Freelancer != (common.Address{}) && b.ClaimedBy != f.Freelancer {
		return false
	}
	return true
}

// CreateBounty создаёт задачу и переводит депозит в эскроу.
func (r *BountyRegistry) CreateBounty(ctx context.Context, caller common.Address, terms entity.BountyTerms) (*entity.Bounty, error) {
	var out *entity.Bounty
	err := r.ledger.Execute(ctx, "create_bounty", func(tx *ledger.Tx) error {
		if err := ensureActive(tx, entity.ComponentRegistry); err != nil {
			return err
		}
		if err := requireAddress(caller, "client"); err != nil {
			return err
		}

		g := tx.Globals()
		id := g.AllocateBountyID()
		bounty, err := entity.NewBounty(id, caller, terms, g.FeeBps, tx.Now())
		if err != nil {
			return err
		}
		tx.PutGlobals(g)
		tx.PutBounty(bounty)

		if err := r.escrow.deposit(tx, r.self(tx), caller, id, terms.Value); err != nil {
			return err
		}

		tx.Emit(entity.EventBountyCreated, []common.Address{caller}, map[string]any{
			"bounty_id":         id,
			"client":            caller.Hex(),
			"escrow_amount":     valueobject.FormatEther(bounty.EscrowAmount),
			"platform_fee":      valueobject.FormatEther(bounty.PlatformFee),
			"min_rep_required":  bounty.MinRepRequired,
			"deadline":          bounty.Deadline,
			"requirements_hash": bounty.RequirementsHash,
		})
		out = bounty
		return nil
	})
	return out, err
}

// ClaimBounty закрепляет открытую задачу за исполнителем с подходящей репутацией и уровнем.
func (r *BountyRegistry) ClaimBounty(ctx context.Context, caller common.Address, bountyID uint64) (*entity.Bounty, error) {
	var out *entity.Bounty
	err := r.ledger.Execute(ctx, "claim_bounty", func(tx *ledger.Tx) error {
		if err := ensureActive(tx, entity.ComponentRegistry); err != nil {
			return err
		}
		bounty, err := tx.Bounty(bountyID)
		if err != nil {
			return err
		}
		if bounty.Status != valueobject.BountyStatusOpen {
			return apperror.Reject(apperror.KindBountyNotOpen, "задача не открыта").
				With("bounty_id", bountyID).
				With("status", bounty.Status)
		}
		if caller == bounty.Client {
			return apperror.Reject(apperror.KindUnauthorizedCaller, "клиент не может взять свою задачу").
				With("bounty_id", bountyID)
		}

		rep := reputationOf(tx, caller)
		if rep.Overall < bounty.MinRepRequired {
			return apperror.Reject(apperror.KindInsufficientReputation, "недостаточная репутация").
				With("required", bounty.MinRepRequired).
				With("actual", rep.Overall)
		}

		workload := tx.Workload(caller)
		if limit := rep.Tier.MaxConcurrent(); workload.ActiveBounties >= limit {
			return apperror.Reject(apperror.KindCapacityLimitReached, "достигнут лимит одновременных задач").
				With("tier", rep.Tier).
				With("current", workload.ActiveBounties).
				With("max", limit)
		}
		if limit := rep.Tier.MaxBountyValue(); limit != nil && bounty.EscrowAmount.Cmp(limit) > 0 {
			return apperror.Reject(apperror.KindBountyValueExceedsTierLimit, "сумма задачи выше лимита уровня").
				With("tier", rep.Tier).
				With("value", valueobject.FormatEther(bounty.EscrowAmount)).
				With("max", valueobject.FormatEther(limit))
		}

		if err := bounty.Claim(caller, tx.Now()); err != nil {
			return err
		}
		tx.PutBounty(bounty)
		workload.ActiveBounties++
		tx.PutWorkload(workload)

		if err := r.oracle.recordActivity(tx, r.self(tx), caller); err != nil {
			return err
		}

		tx.Emit(entity.EventBountyClaimed, []common.Address{caller, bounty.Client}, map[string]any{
			"bounty_id":  bountyID,
			"freelancer": caller.Hex(),
		})
		out = bounty
		return nil
	})
	return out, err
}

// RequestCancellation открывает запрос клиента на отмену задачи.
func (r *BountyRegistry) RequestCancellation(ctx context.Context, caller common.Address, bountyID uint64, reasonHash string) (*entity.CancellationRequest, error) {
	var out *entity.CancellationRequest
	err := r.ledger.Execute(ctx, "request_cancellation", func(tx *ledger.Tx) error {
		if err := ensureActive(tx, entity.ComponentRegistry); err != nil {
			return err
		}
		bounty, err := tx.Bounty(bountyID)
		if err != nil {
			return err
		}
		if caller != bounty.Client {
			return apperror.Reject(apperror.KindNotBountyClient, "отмену запрашивает только клиент").
				With("bounty_id", bountyID)
		}
		if bounty.SubmissionID != 0 {
			return apperror.Reject(apperror.KindCannotCancelWithSubmissions, "по задаче уже сдана работа").
				With("bounty_id", bountyID)
		}
		if bounty.Status != valueobject.BountyStatusOpen && bounty.Status != valueobject.BountyStatusInProgress {
			return apperror.Reject(apperror.KindInvalidBountyState, "задачу в этом статусе отменить нельзя").
				With("bounty_id", bountyID).
				With("status", bounty.Status)
		}
		if existing, ok := tx.Cancellation(bountyID); ok && existing.IsLive() {
			return apperror.Reject(apperror.KindCancellationAlreadyRequested, "запрос на отмену уже открыт").
				With("bounty_id", bountyID).
				With("review_deadline", existing.ReviewDeadline)
		}

		req := &entity.CancellationRequest{
			BountyID:       bountyID,
			Requester:      caller,
			RequestedAt:    tx.Now(),
			ReviewDeadline: tx.Now().Add(entity.CancellationWindow),
			ReasonHash:     reasonHash,
		}
		tx.PutCancellation(req)
		tx.Emit(entity.EventCancellationFiled, r.parties(bounty), map[string]any{
			"bounty_id":       bountyID,
			"review_deadline": req.ReviewDeadline,
			"reason_hash":     reasonHash,
		})
		out = req
		return nil
	})
	return out, err
}

// ApproveCancellation одобряет отмену: депозит возвращается клиенту.
func (r *BountyRegistry) ApproveCancellation(ctx context.Context, caller common.Address, bountyID uint64) (*entity.Bounty, error) {
	var out *entity.Bounty
	err := r.ledger.Execute(ctx, "approve_cancellation", func(tx *ledger.Tx) error {
		if err := tx.Auth(caller).Require(authz.RoleModerator); err != nil {
			return err
		}
		if err := ensureActive(tx, entity.ComponentRegistry); err != nil {
			return err
		}
		req, err := liveCancellation(tx, bountyID)
		if err != nil {
			return err
		}
		out, err = r.cancel(tx, req, caller)
		return err
	})
	return out, err
}

// RejectCancellation отклоняет запрос, задача продолжается.
func (r *BountyRegistry) RejectCancellation(ctx context.Context, caller common.Address, bountyID uint64) error {
	return r.ledger.Execute(ctx, "reject_cancellation", func(tx *ledger.Tx) error {
		if err := tx.Auth(caller).Require(authz.RoleModerator); err != nil {
			return err
		}
		if err := ensureActive(tx, entity.ComponentRegistry); err != nil {
			return err
		}
		req, err := liveCancellation(tx, bountyID)
		if err != nil {
			return err
		}
		bounty, err := tx.Bounty(bountyID)
		if err != nil {
			return err
		}
		req.Close(caller, false, tx.Now())
		tx.PutCancellation(req)
		tx.Emit(entity.EventCancellationDenied, r.parties(bounty), map[string]any{
			"bounty_id": bountyID,
			"by":        caller.Hex(),
		})
		return nil
	})
}

// ProcessExpiredCancellation одобряет запрос, который модератор не рассмотрел за 7 дней.
func (r *BountyRegistry) ProcessExpiredCancellation(ctx context.Context, caller common.Address, bountyID uint64) (*entity.Bounty, error) {
	var out *entity.Bounty
	err := r.ledger.Execute(ctx, "process_expired_cancellation", func(tx *ledger.Tx) error {
		if err := ensureActive(tx, entity.ComponentRegistry); err != nil {
			return err
		}
		req, err := liveCancellation(tx, bountyID)
		if err != nil {
			return err
		}
		if !tx.Now().After(req.ReviewDeadline) {
			return apperror.Reject(apperror.KindCancellationWindowActive, "срок рассмотрения отмены ещё не истёк").
				With("review_deadline", req.ReviewDeadline).
				With("now", tx.Now())
		}
		out, err = r.cancel(tx, req, caller)
		return err
	})
	return out, err
}

func (r *BountyRegistry) cancel(tx *ledger.Tx, req *entity.CancellationRequest, by common.Address) (*entity.Bounty, error) {
	bounty, err := tx.Bounty(req.BountyID)
	if err != nil {
		return nil, err
	}
	if err := bounty.Cancel(tx.Now()); err != nil {
		return nil, err
	}
	tx.PutBounty(bounty)

	if err := r.refundAll(tx, bounty, "cancelled"); err != nil {
		return nil, err
	}
	if bounty.IsClaimed() {
		releaseSlot(tx, bounty.ClaimedBy)
	}
	req.Close(by, true, tx.Now())
	tx.PutCancellation(req)

	tx.Emit(entity.EventBountyCancelled, r.parties(bounty), map[string]any{
		"bounty_id": bounty.ID,
		"by":        by.Hex(),
	})
	return bounty, nil
}

// ExpireBounty закрывает задачу с истёкшим дедлайном и возвращает депозит.
func (r *BountyRegistry) ExpireBounty(ctx context.Context, caller common.Address, bountyID uint64) (*entity.Bounty, error) {
	var out *entity.Bounty
	err := r.ledger.Execute(ctx, "expire_bounty", func(tx *ledger.Tx) error {
		if err := tx.Auth(caller).Require(authz.RoleKeeper); err != nil {
			return err
		}
		if err := ensureActive(tx, entity.ComponentRegistry); err != nil {
			return err
		}
		bounty, err := tx.Bounty(bountyID)
		if err != nil {
			return err
		}
		if err := bounty.Expire(tx.Now()); err != nil {
			return err
		}
		tx.PutBounty(bounty)

		if err := r.refundAll(tx, bounty, "expired"); err != nil {
			return err
		}
		if bounty.IsClaimed() {
			releaseSlot(tx, bounty.ClaimedBy)
		}
		dropCancellation(tx, bounty, caller, "expired")

		tx.Emit(entity.EventBountyExpired, r.parties(bounty), map[string]any{
			"bounty_id": bountyID,
			"deadline":  bounty.Deadline,
		})
		out = bounty
		return nil
	})
	return out, err
}

// Pause приостанавливает реестр.
func (r *BountyRegistry) Pause(ctx context.Context, caller common.Address) error {
	return r.pause.Pause(ctx, caller, entity.ComponentRegistry)
}

func (r *BountyRegistry) Unpause(ctx context.Context, caller common.Address) error {
	return r.pause.Unpause(ctx, caller, entity.ComponentRegistry)
}

func (r *BountyRegistry) GetBounty(ctx context.Context, bountyID uint64) (*entity.Bounty, error) {
	var out *entity.Bounty
	err := r.ledger.View(ctx, func(tx *ledger.Tx) error {
		b, err := tx.Bounty(bountyID)
		out = b
		return err
	})
	return out, err
}

// ListBounties возвращает задачи по фильтру в порядке создания.
func (r *BountyRegistry) ListBounties(ctx context.Context, filter BountyFilter) ([]*entity.Bounty, error) {
	var out []*entity.Bounty
	err := r.ledger.View(ctx, func(tx *ledger.Tx) error {
		for _, b := range tx.Bounties() {
			if filter.matches(b) {
				out = append(out, b)
			}
		}
		return nil
	})
	return out, err
}

func (r *BountyRegistry) ActiveBountyCount(ctx context.Context, addr common.Address) (uint32, error) {
	var out uint32
	err := r.ledger.View(ctx, func(tx *ledger.Tx) error {
		out = tx.Workload(addr).ActiveBounties
		return nil
	})
	return out, err
}

func (r *BountyRegistry) GetCancellation(ctx context.Context, bountyID uint64) (*entity.CancellationRequest, error) {
	var out *entity.CancellationRequest
	err := r.ledger.View(ctx, func(tx *ledger.Tx) error {
		req, ok := tx.Cancellation(bountyID)
		if !ok {
			return apperror.Reject(apperror.KindNotFound, "запрос на отмену не найден").With("bounty_id", bountyID)
		}
		out = req
		return nil
	})
	return out, err
}

// refundAll возвращает клиенту весь остаток задачи, если он есть.
func (r *BountyRegistry) refundAll(tx *ledger.Tx, bounty *entity.Bounty, reason string) error {
	balance := tx.Slot(bounty.ID).Balance
	if balance.Sign() == 0 {
		return nil
	}
	return r.escrow.refundClient(tx, r.self(tx), bounty.ID, bounty.Client, new(big.Int).Set(balance), reason)
}

func (r *BountyRegistry) self(tx *ledger.Tx) authz.Context {
	return tx.Auth(RegistryIdentity)
}

func (r *BountyRegistry) parties(b *entity.Bounty) []common.Address {
	if b.IsClaimed() {
		return []common.Address{b.Client, b.ClaimedBy}
	}
	return []common.Address{b.Client}
}

func liveCancellation(tx *ledger.Tx, bountyID uint64) (*entity.CancellationRequest, error) {
	req, ok := tx.Cancellation(bountyID)
	if !ok || !req.IsLive() {
		return nil, apperror.Reject(apperror.KindNotFound, "открытого запроса на отмену нет").With("bounty_id", bountyID)
	}
	return req, nil
}

// deadlinePassed сообщает, что дедлайн задачи истёк к моменту now.
func deadlinePassed(b *entity.Bounty, now time.Time) bool {
	return now.After(b.Deadline)
}
