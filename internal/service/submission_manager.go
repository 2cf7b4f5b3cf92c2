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

// SubmissionManager принимает работы исполнителей и проводит их проверку клиентом.
type SubmissionManager struct {
	ledger *ledger.Ledger
	escrow *PaymentEscrow
	oracle *ReputationOracle
}

// SubmitWork сдаёт работу по задаче. На задачу допускается одна работа.
func (m *SubmissionManager) SubmitWork(ctx context.Context, caller common.Address, bountyID uint64, workHash string) (*entity.Submission, error) {
	var out *entity.Submission
	err := m.ledger.Execute(ctx, "submit_work", func(tx *ledger.Tx) error {
		if err := ensureActive(tx, entity.ComponentSubmissions); err != nil {
			return err
		}
		if err := requireHash(workHash, "work_hash"); err != nil {
			return err
		}
		bounty, err := tx.Bounty(bountyID)
		if err != nil {
			return err
		}
		if !bounty.IsClaimed() || caller != bounty.ClaimedBy {
			return apperror.Reject(apperror.KindUnauthorizedCaller, "работу сдаёт назначенный исполнитель").
				With("bounty_id", bountyID)
		}
		if bounty.SubmissionID != 0 {
			return apperror.Reject(apperror.KindSubmissionAlreadyExists, "работа по задаче уже сдана").
				With("bounty_id", bountyID).
				With("submission_id", bounty.SubmissionID)
		}
		if bounty.Status != valueobject.BountyStatusInProgress {
			return apperror.Reject(apperror.KindInvalidBountyState, "задача не в работе").
				With("bounty_id", bountyID).
				With("status", bounty.Status)
		}

		g := tx.Globals()
		id := g.AllocateSubmissionID()
		tx.PutGlobals(g)

		sub := entity.NewSubmission(id, bountyID, caller, workHash, tx.Now())
		if err := bounty.MarkUnderReview(id, tx.Now()); err != nil {
			return err
		}
		tx.PutSubmission(sub)
		tx.PutBounty(bounty)
		dropCancellation(tx, bounty, SubmissionIdentity, "submission")

		tx.Emit(entity.EventSubmissionSubmitted, []common.Address{caller, bounty.Client}, map[string]any{
			"bounty_id":     bountyID,
			"submission_id": id,
			"work_hash":     workHash,
		})
		out = sub
		return nil
	})
	return out, err
}

// StartReview начинает проверку. Срок проверки берётся из задачи.
func (m *SubmissionManager) StartReview(ctx context.Context, caller common.Address, submissionID uint64) (*entity.Submission, error) {
	var out *entity.Submission
	err := m.ledger.Execute(ctx, "start_review", func(tx *ledger.Tx) error {
		if err := ensureActive(tx, entity.ComponentSubmissions); err != nil {
			return err
		}
		sub, bounty, err := m.load(tx, submissionID)
		if err != nil {
			return err
		}
		if err := requireClient(bounty, caller); err != nil {
			return err
		}
		if err := sub.StartReview(bounty.ReviewPeriod, tx.Now()); err != nil {
			return err
		}
		tx.PutSubmission(sub)
		tx.Emit(entity.EventSubmissionReview, []common.Address{sub.Freelancer, bounty.Client}, map[string]any{
			"submission_id":   submissionID,
			"review_deadline": sub.ReviewDeadline,
		})
		out = sub
		return nil
	})
	return out, err
}

// AcceptSubmission принимает работу и выплачивает вознаграждение.
func (m *SubmissionManager) AcceptSubmission(ctx context.Context, caller common.Address, submissionID uint64, feedbackHash string) (*entity.Submission, error) {
	var out *entity.Submission
	err := m.ledger.Execute(ctx, "accept_submission", func(tx *ledger.Tx) error {
		if err := ensureActive(tx, entity.ComponentSubmissions); err != nil {
			return err
		}
		sub, bounty, err := m.load(tx, submissionID)
		if err != nil {
			return err
		}
		if err := requireClient(bounty, caller); err != nil {
			return err
		}
		if err := sub.Accept(feedbackHash, tx.Now()); err != nil {
			return err
		}
		if err := m.settle(tx, sub, bounty, false); err != nil {
			return err
		}
		out = sub
		return nil
	})
	return out, err
}

// RejectSubmission отклоняет работу. Пока лимит правок не исчерпан, исполнитель может доработать.
func (m *SubmissionManager) RejectSubmission(ctx context.Context, caller common.Address, submissionID uint64, feedbackHash string) (*entity.Submission, error) {
	var out *entity.Submission
	err := m.ledger.Execute(ctx, "reject_submission", func(tx *ledger.Tx) error {
		if err := ensureActive(tx, entity.ComponentSubmissions); err != nil {
			return err
		}
		sub, bounty, err := m.load(tx, submissionID)
		if err != nil {
			return err
		}
		if err := requireClient(bounty, caller); err != nil {
			return err
		}
		if err := sub.Reject(feedbackHash, bounty.MaxRevisions, tx.Now()); err != nil {
			return err
		}
		tx.PutSubmission(sub)
		tx.Emit(entity.EventSubmissionRejected, []common.Address{sub.Freelancer, bounty.Client}, map[string]any{
			"submission_id":  submissionID,
			"status":         sub.Status,
			"revision_count": sub.RevisionCount,
			"max_revisions":  bounty.MaxRevisions,
			"feedback_hash":  feedbackHash,
		})
		out = sub
		return nil
	})
	return out, err
}

// ResubmitWork сдаёт доработанную версию.
func (m *SubmissionManager) ResubmitWork(ctx context.Context, caller common.Address, submissionID uint64, workHash string) (*entity.Submission, error) {
	var out *entity.Submission
	err := m.ledger.Execute(ctx, "resubmit_work", func(tx *ledger.Tx) error {
		if err := ensureActive(tx, entity.ComponentSubmissions); err != nil {
			return err
		}
		if err := requireHash(workHash, "work_hash"); err != nil {
			return err
		}
		sub, bounty, err := m.load(tx, submissionID)
		if err != nil {
			return err
		}
		if caller != sub.Freelancer {
			return apperror.Reject(apperror.KindUnauthorizedCaller, "доработку сдаёт автор работы").
				With("submission_id", submissionID)
		}
		if err := sub.Resubmit(workHash, tx.Now()); err != nil {
			return err
		}
		tx.PutSubmission(sub)
		tx.Emit(entity.EventSubmissionSubmitted, []common.Address{caller, bounty.Client}, map[string]any{
			"bounty_id":      bounty.ID,
			"submission_id":  submissionID,
			"work_hash":      workHash,
			"revision_count": sub.RevisionCount,
		})
		out = sub
		return nil
	})
	return out, err
}

// AutoAcceptExpiredReview принимает работу, если клиент не уложился в срок проверки.
func (m *SubmissionManager) AutoAcceptExpiredReview(ctx context.Context, caller common.Address, submissionID uint64) (*entity.Submission, error) {
	var out *entity.Submission
	err := m.ledger.Execute(ctx, "auto_accept_review", func(tx *ledger.Tx) error {
		if err := tx.Auth(caller).Require(authz.RoleKeeper); err != nil {
			return err
		}
		if err := ensureActive(tx, entity.ComponentSubmissions); err != nil {
			return err
		}
		sub, bounty, err := m.load(tx, submissionID)
		if err != nil {
			return err
		}
		if sub.Status != valueobject.SubmissionStatusUnderReview {
			return apperror.Reject(apperror.KindSubmissionNotUnderReview, "работа не на проверке").
				With("submission_id", submissionID).
				With("status", sub.Status)
		}
		if !sub.ReviewExpired(tx.Now()) {
			return apperror.Reject(apperror.KindReviewPeriodActive, "срок проверки ещё не истёк").
				With("review_deadline", sub.ReviewDeadline).
				With("now", tx.Now())
		}
		if err := sub.Accept("", tx.Now()); err != nil {
			return err
		}
		if err := m.settle(tx, sub, bounty, true); err != nil {
			return err
		}
		out = sub
		return nil
	})
	return out, err
}

// settle выплачивает остаток задачи, закрывает её и обновляет репутацию сторон.
func (m *SubmissionManager) settle(tx *ledger.Tx, sub *entity.Submission, bounty *entity.Bounty, auto bool) error {
	self := tx.Auth(SubmissionIdentity)

	balance := valueobject.CopyAmount(tx.Slot(bounty.ID).Balance)
	settlement, err := m.escrow.releasePayment(tx, self, bounty.ID, sub.Freelancer, balance)
	if err != nil {
		return err
	}
	if err := bounty.Complete(tx.Now()); err != nil {
		return err
	}
	tx.PutSubmission(sub)
	tx.PutBounty(bounty)

	if err := m.oracle.recordCompletion(tx, self, sub.Freelancer, settlement.Freelancer); err != nil {
		return err
	}
	if err := m.oracle.recordActivity(tx, self, bounty.Client); err != nil {
		return err
	}
	releaseSlot(tx, sub.Freelancer)

	tx.Emit(entity.EventSubmissionAccepted, []common.Address{sub.Freelancer, bounty.Client}, map[string]any{
		"bounty_id":     bounty.ID,
		"submission_id": sub.ID,
		"net_amount":    valueobject.FormatEther(settlement.Freelancer),
		"fee":           valueobject.FormatEther(settlement.Fee),
		"auto_accepted": auto,
	})
	return nil
}

func (m *SubmissionManager) load(tx *ledger.Tx, submissionID uint64) (*entity.Submission, *entity.Bounty, error) {
	sub, err := tx.Submission(submissionID)
	if err != nil {
		return nil, nil, err
	}
	bounty, err := tx.Bounty(sub.BountyID)
	if err != nil {
		return nil, nil, err
	}
	return sub, bounty, nil
}

func (m *SubmissionManager) GetSubmission(ctx context.Context, submissionID uint64) (*entity.Submission, error) {
	var out *entity.Submission
	err := m.ledger.View(ctx, func(tx *ledger.Tx) error {
		s, err := tx.Submission(submissionID)
		out = s
		return err
	})
	return out, err
}

func (m *SubmissionManager) GetSubmissionForBounty(ctx context.Context, bountyID uint64) (*entity.Submission, error) {
	var out *entity.Submission
	err := m.ledger.View(ctx, func(tx *ledger.Tx) error {
		bounty, err := tx.Bounty(bountyID)
		if err != nil {
			return err
		}
		if bounty.SubmissionID == 0 {
			return apperror.Reject(apperror.KindNotFound, "по задаче нет работы").With("bounty_id", bountyID)
		}
		out, err = tx.Submission(bounty.SubmissionID)
		return err
	})
	return out, err
}

func requireClient(b *entity.Bounty, caller common.Address) error {
	if caller != b.Client {
		return apperror.Reject(apperror.KindNotBountyClient, "действие доступно только клиенту задачи").
			With("bounty_id", b.ID)
	}
	return nil
}
