package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ignatzorin/bounty-escrow/internal/authz"
	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-escrow/internal/ledger"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
)

const (
	// Порог защиты от злоупотреблений: не меньше abuseMinDisputes споров при доле побед ниже abuseMinWinRate.
	abuseMinDisputes = 3
	abuseMinWinRate  = 30
	timeoutSplitPct  = 50
)

// DisputeResolver ведёт споры от открытия до выплаты по решению арбитра.
type DisputeResolver struct {
	ledger *ledger.Ledger
	escrow *PaymentEscrow
	oracle *ReputationOracle
}

// DisputeRequest это параметры нового спора.
type DisputeRequest struct {
	BountyID     uint64
	SubmissionID uint64
	Reason       valueobject.DisputeReason
	EvidenceHash string
}

// InitiateDispute открывает спор и блокирует средства задачи.
func (r *DisputeResolver) InitiateDispute(ctx context.Context, caller common.Address, req DisputeRequest) (*entity.Dispute, error) {
	var out *entity.Dispute
	err := r.ledger.Execute(ctx, "initiate_dispute", func(tx *ledger.Tx) error {
		if err := ensureActive(tx, entity.ComponentDisputes); err != nil {
			return err
		}
		bounty, err := tx.Bounty(req.BountyID)
		if err != nil {
			return err
		}
		if caller != bounty.Client && !(bounty.IsClaimed() && caller == bounty.ClaimedBy) {
			return apperror.Reject(apperror.KindNotPartyToDispute, "спор открывает сторона задачи").
				With("bounty_id", req.BountyID)
		}

		rep := reputationOf(tx, caller)
		if rep.DisputesInitiated >= abuseMinDisputes && rep.WinRate() < abuseMinWinRate {
			return apperror.Reject(apperror.KindDisputeAbusePrevention, "слишком много проигранных споров").
				With("initiated", rep.DisputesInitiated).
				With("win_rate", rep.WinRate())
		}
		if bounty.DisputeID != 0 {
			return apperror.Reject(apperror.KindDisputeAlreadyExists, "по задаче уже открыт спор").
				With("bounty_id", req.BountyID).
				With("dispute_id", bounty.DisputeID)
		}
		if bounty.Status != valueobject.BountyStatusInProgress && bounty.Status != valueobject.BountyStatusUnderReview {
			return apperror.Reject(apperror.KindInvalidBountyState, "спор возможен по задаче в работе или на проверке").
				With("bounty_id", req.BountyID).
				With("status", bounty.Status)
		}
		if !req.Reason.IsValid() {
			return apperror.Reject(apperror.KindInvalidInput, "неизвестная причина спора").With("reason", req.Reason)
		}

		submissionID := req.SubmissionID
		if submissionID == 0 {
			submissionID = bounty.SubmissionID
		}
		if submissionID != 0 {
			sub, err := tx.Submission(submissionID)
			if err != nil {
				return err
			}
			if sub.BountyID != bounty.ID {
				return apperror.Reject(apperror.KindInvalidInput, "работа относится к другой задаче").
					With("submission_id", submissionID).
					With("bounty_id", bounty.ID)
			}
			if err := sub.MarkDisputed(tx.Now()); err != nil {
				return err
			}
			tx.PutSubmission(sub)
		}

		self := tx.Auth(DisputeIdentity)
		locked := valueobject.CopyAmount(tx.Slot(bounty.ID).Balance)
		if err := r.escrow.lockFunds(tx, self, bounty.Client, locked, bounty.ID); err != nil {
			return err
		}

		g := tx.Globals()
		id := g.AllocateDisputeID()
		tx.PutGlobals(g)

		dispute := entity.NewDispute(id, bounty, submissionID, caller, req.Reason, req.EvidenceHash, locked, tx.Now())
		if err := bounty.MarkDisputed(id, tx.Now()); err != nil {
			return err
		}
		tx.PutDispute(dispute)
		tx.PutBounty(bounty)
		dropCancellation(tx, bounty, DisputeIdentity, "dispute")

		if err := r.oracle.recordDisputeInitiation(tx, self, caller); err != nil {
			return err
		}

		tx.Emit(entity.EventDisputeInitiated, []common.Address{dispute.Client, dispute.Freelancer}, map[string]any{
			"dispute_id":    id,
			"bounty_id":     bounty.ID,
			"initiator":     caller.Hex(),
			"reason":        req.Reason,
			"locked_amount": valueobject.FormatEther(locked),
			"evidence_hash": req.EvidenceHash,
		})
		out = dispute
		return nil
	})
	return out, err
}

// SubmitAIAnalysis сохраняет рекомендацию AI сервиса. Рекомендация не исполняется.
func (r *DisputeResolver) SubmitAIAnalysis(ctx context.Context, caller common.Address, disputeID uint64, analysis entity.AIAnalysis) (*entity.Dispute, error) {
	var out *entity.Dispute
	err := r.ledger.Execute(ctx, "submit_ai_analysis", func(tx *ledger.Tx) error {
		if err := tx.Auth(caller).Require(authz.RoleAIService); err != nil {
			return err
		}
		if err := ensureActive(tx, entity.ComponentDisputes); err != nil {
			return err
		}
		dispute, err := tx.Dispute(disputeID)
		if err != nil {
			return err
		}
		if analysis.ProposedOutcome != valueobject.DisputeOutcomeNone && !analysis.ProposedOutcome.IsValid() {
			return apperror.Reject(apperror.KindInvalidInput, "неизвестный исход").With("outcome", analysis.ProposedOutcome)
		}
		analysis.SubmittedAt = tx.Now()
		if err := dispute.AttachAnalysis(analysis); err != nil {
			return err
		}
		tx.PutDispute(dispute)
		tx.Emit(entity.EventDisputeAnalysis, []common.Address{dispute.Client, dispute.Freelancer}, map[string]any{
			"dispute_id":          disputeID,
			"recommendation_hash": analysis.RecommendationHash,
			"confidence":          analysis.Confidence,
			"proposed_outcome":    analysis.ProposedOutcome,
		})
		out = dispute
		return nil
	})
	return out, err
}

// AssignArbitrator берёт спор на рассмотрение.
func (r *DisputeResolver) AssignArbitrator(ctx context.Context, caller common.Address, disputeID uint64) (*entity.Dispute, error) {
	var out *entity.Dispute
	err := r.ledger.Execute(ctx, "assign_arbitrator", func(tx *ledger.Tx) error {
		if err := tx.Auth(caller).Require(authz.RoleArbitrator); err != nil {
			return err
		}
		if err := ensureActive(tx, entity.ComponentDisputes); err != nil {
			return err
		}
		dispute, err := tx.Dispute(disputeID)
		if err != nil {
			return err
		}
		if dispute.IsParty(caller) {
			return apperror.Reject(apperror.KindUnauthorizedCaller, "сторона спора не может быть арбитром").
				With("dispute_id", disputeID)
		}
		if err := dispute.Assign(caller, tx.Now()); err != nil {
			return err
		}
		tx.PutDispute(dispute)
		out = dispute
		return nil
	})
	return out, err
}

// ResolveDispute выносит решение. Крупный спор получает окно обжалования, остальные исполняются сразу.
func (r *DisputeResolver) ResolveDispute(ctx context.Context, caller common.Address, disputeID uint64, outcome valueobject.DisputeOutcome, freelancerPct uint8) (*entity.Dispute, error) {
	var out *entity.Dispute
	err := r.ledger.Execute(ctx, "resolve_dispute", func(tx *ledger.Tx) error {
		if err := tx.Auth(caller).Require(authz.RoleArbitrator); err != nil {
			return err
		}
		if err := ensureActive(tx, entity.ComponentDisputes); err != nil {
			return err
		}
		if !outcome.IsValid() {
			return apperror.Reject(apperror.KindInvalidInput, "неизвестный исход").With("outcome", outcome)
		}
		if freelancerPct > 100 {
			return apperror.Reject(apperror.KindInvalidPaymentPercentage, "процент выплаты вне диапазона 0..100").
				With("percentage", freelancerPct)
		}
		dispute, err := tx.Dispute(disputeID)
		if err != nil {
			return err
		}

		pct := outcome.FreelancerPercentage(freelancerPct)
		threshold := tx.Globals().AppealThreshold
		appealable := !dispute.IsAppealed() && threshold.Sign() > 0 && dispute.LockedAmount.Cmp(threshold) >= 0
		if err := dispute.Rule(caller, outcome, pct, appealable, tx.Now()); err != nil {
			return err
		}

		if appealable {
			tx.PutDispute(dispute)
			tx.Emit(entity.EventDisputeRuling, []common.Address{dispute.Client, dispute.Freelancer}, map[string]any{
				"dispute_id":      disputeID,
				"outcome":         outcome,
				"freelancer_pct":  pct,
				"appeal_deadline": dispute.AppealDeadline,
			})
			out = dispute
			return nil
		}
		if err := r.settle(tx, dispute, outcome, pct, false); err != nil {
			return err
		}
		out = dispute
		return nil
	})
	return out, err
}

// AppealRuling обжалует решение в пределах окна. Повторное решение выносит другой арбитр и оно окончательно.
func (r *DisputeResolver) AppealRuling(ctx context.Context, caller common.Address, disputeID uint64) (*entity.Dispute, error) {
	var out *entity.Dispute
	err := r.ledger.Execute(ctx, "appeal_ruling", func(tx *ledger.Tx) error {
		if err := ensureActive(tx, entity.ComponentDisputes); err != nil {
			return err
		}
		dispute, err := tx.Dispute(disputeID)
		if err != nil {
			return err
		}
		if !dispute.IsParty(caller) {
			return apperror.Reject(apperror.KindNotPartyToDispute, "обжаловать может только сторона спора").
				With("dispute_id", disputeID)
		}
		if err := dispute.Appeal(caller, tx.Now()); err != nil {
			return err
		}
		tx.PutDispute(dispute)
		tx.Emit(entity.EventDisputeAppealed, []common.Address{dispute.Client, dispute.Freelancer}, map[string]any{
			"dispute_id":           disputeID,
			"appealed_by":          caller.Hex(),
			"arbitration_deadline": dispute.ArbitrationDeadline,
		})
		out = dispute
		return nil
	})
	return out, err
}

// FinalizeRuling исполняет решение после закрытия окна обжалования.
func (r *DisputeResolver) FinalizeRuling(ctx context.Context, caller common.Address, disputeID uint64) (*entity.Dispute, error) {
	var out *entity.Dispute
	err := r.ledger.Execute(ctx, "finalize_ruling", func(tx *ledger.Tx) error {
		if err := ensureActive(tx, entity.ComponentDisputes); err != nil {
			return err
		}
		dispute, err := tx.Dispute(disputeID)
		if err != nil {
			return err
		}
		if err := dispute.EnsureFinalizable(tx.Now()); err != nil {
			return err
		}
		if err := r.settle(tx, dispute, dispute.Outcome, dispute.FreelancerPct, false); err != nil {
			return err
		}
		out = dispute
		return nil
	})
	return out, err
}

// ResolveByTimeout делит средства пополам, если арбитр не вынес решения в срок.
func (r *DisputeResolver) ResolveByTimeout(ctx context.Context, caller common.Address, disputeID uint64) (*entity.Dispute, error) {
	var out *entity.Dispute
	err := r.ledger.Execute(ctx, "resolve_by_timeout", func(tx *ledger.Tx) error {
		if err := tx.Auth(caller).Require(authz.RoleKeeper); err != nil {
			return err
		}
		if err := ensureActive(tx, entity.ComponentDisputes); err != nil {
			return err
		}
		dispute, err := tx.Dispute(disputeID)
		if err != nil {
			return err
		}
		if err := dispute.EnsureTimedOut(tx.Now()); err != nil {
			return err
		}
		if err := r.settle(tx, dispute, valueobject.DisputeOutcomeSplit, timeoutSplitPct, true); err != nil {
			return err
		}
		out = dispute
		return nil
	})
	return out, err
}

// settle распределяет заблокированные средства и закрывает спор.
func (r *DisputeResolver) settle(tx *ledger.Tx, dispute *entity.Dispute, outcome valueobject.DisputeOutcome, pct uint8, byTimeout bool) error {
	self := tx.Auth(DisputeIdentity)

	settlement, err := r.escrow.releasePartialPayment(tx, self, dispute.BountyID, dispute.Freelancer, dispute.Client, pct)
	if err != nil {
		return err
	}
	if err := dispute.Resolve(outcome, pct, byTimeout, tx.Now()); err != nil {
		return err
	}
	tx.PutDispute(dispute)

	if loser := dispute.Loser(); loser != (common.Address{}) {
		if err := r.oracle.recordDisputeLoss(tx, self, loser); err != nil {
			return err
		}
	}
	if pct > 0 {
		if err := r.oracle.recordCompletion(tx, self, dispute.Freelancer, settlement.Freelancer); err != nil {
			return err
		}
	}
	releaseSlot(tx, dispute.Freelancer)

	tx.Emit(entity.EventDisputeResolved, []common.Address{dispute.Client, dispute.Freelancer}, map[string]any{
		"dispute_id":     dispute.ID,
		"bounty_id":      dispute.BountyID,
		"outcome":        outcome,
		"freelancer_pct": pct,
		"freelancer_net": valueobject.FormatEther(settlement.Freelancer),
		"client_refund":  valueobject.FormatEther(settlement.ClientRefund),
		"fee":            valueobject.FormatEther(settlement.Fee),
		"by_timeout":     byTimeout,
	})
	return nil
}

func (r *DisputeResolver) GetDispute(ctx context.Context, disputeID uint64) (*entity.Dispute, error) {
	var out *entity.Dispute
	err := r.ledger.View(ctx, func(tx *ledger.Tx) error {
		d, err := tx.Dispute(disputeID)
		out = d
		return err
	})
	return out, err
}

// ListDisputes возвращает споры в указанном статусе или все, если статус пуст.
func (r *DisputeResolver) ListDisputes(ctx context.Context, status valueobject.DisputeStatus) ([]*entity.Dispute, error) {
	var out []*entity.Dispute
	err := r.ledger.View(ctx, func(tx *ledger.Tx) error {
		for _, d := range tx.Disputes() {
			if status == "" || d.Status == status {
				out = append(out, d)
			}
		}
		return nil
	})
	return out, err
}
