package entity

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
)

// DefaultReviewPeriod подставляется, если клиент не указал срок проверки.
const DefaultReviewPeriod = 3 * 24 * time.Hour

type Bounty struct {
	ID               uint64                   `json:"id"`
	Client           common.Address           `json:"client"`
	EscrowAmount     *big.Int                 `json:"escrow_amount"`
	PlatformFee      *big.Int                 `json:"platform_fee"`
	FeeBps           uint16                   `json:"fee_bps"`
	MinRepRequired   uint16                   `json:"min_rep_required"`
	MaxRevisions     uint8                    `json:"max_revisions"`
	Deadline         time.Time                `json:"deadline"`
	ReviewPeriod     time.Duration            `json:"review_period"`
	Status           valueobject.BountyStatus `json:"status"`
	RequirementsHash string                   `json:"requirements_hash"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
	ClaimedBy        common.Address           `json:"claimed_by"`
	ClaimedAt        *time.Time               `json:"claimed_at,omitempty"`
	SubmissionID     uint64                   `json:"submission_id,omitempty"`
	DisputeID        uint64                   `json:"dispute_id,omitempty"`
}

// BountyTerms это параметры новой задачи.
type BountyTerms struct {
	Value            *big.Int
	RequirementsHash string
	Deadline         time.Time
	MinRepRequired   uint16
	MaxRevisions     uint8
	ReviewPeriod     time.Duration
}

// NewBounty проверяет условия и создаёт задачу в статусе Open.
func NewBounty(id uint64, client common.Address, terms BountyTerms, feeBps uint16, now time.Time) (*Bounty, error) {
	if !terms.Deadline.After(now) {
		return nil, apperror.Reject(apperror.KindInvalidDeadline, "дедлайн должен быть в будущем").
			With("deadline", terms.Deadline).
			With("now", now)
	}
	if terms.Value == nil || terms.Value.Cmp(valueobject.MinEscrow) < 0 {
		return nil, apperror.Reject(apperror.KindInvalidEscrowAmount, "сумма депозита меньше минимальной").
			With("value", valueobject.FormatEther(terms.Value)).
			With("min", valueobject.FormatEther(valueobject.MinEscrow))
	}
	if terms.MinRepRequired > valueobject.MaxScore {
		return nil, apperror.Reject(apperror.KindInvalidMinRepRequirement, "требование к репутации вне шкалы").
			With("min_rep_required", terms.MinRepRequired).
			With("max", valueobject.MaxScore)
	}

	reviewPeriod := terms.ReviewPeriod
	if reviewPeriod <= 0 {
		reviewPeriod = DefaultReviewPeriod
	}

	return &Bounty{
		ID:               id,
		Client:           client,
		EscrowAmount:     valueobject.CopyAmount(terms.Value),
		PlatformFee:      valueobject.FeeOf(terms.Value, feeBps),
		FeeBps:           feeBps,
		MinRepRequired:   terms.MinRepRequired,
		MaxRevisions:     terms.MaxRevisions,
		Deadline:         terms.Deadline,
		ReviewPeriod:     reviewPeriod,
		Status:           valueobject.BountyStatusOpen,
		RequirementsHash: terms.RequirementsHash,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func (b *Bounty) IsClaimed() bool {
	return b.ClaimedBy != (common.Address{})
}

// Claim закрепляет задачу за исполнителем.
func (b *Bounty) Claim(freelancer common.Address, now time.Time) error {
	if b.Status != valueobject.BountyStatusOpen {
		return apperror.Reject(apperror.KindBountyNotOpen, "задача не открыта").
			With("bounty_id", b.ID).
			With("status", b.Status)
	}
	b.ClaimedBy = freelancer
	b.ClaimedAt = &now
	return b.transition(valueobject.BountyStatusInProgress, now)
}

func (b *Bounty) MarkUnderReview(submissionID uint64, now time.Time) error {
	if err := b.transition(valueobject.BountyStatusUnderReview, now); err != nil {
		return err
	}
	b.SubmissionID = submissionID
	return nil
}

func (b *Bounty) Complete(now time.Time) error {
	return b.transition(valueobject.BountyStatusCompleted, now)
}

func (b *Bounty) MarkDisputed(disputeID uint64, now time.Time) error {
	if err := b.transition(valueobject.BountyStatusDisputed, now); err != nil {
		return err
	}
	b.DisputeID = disputeID
	return nil
}

// Cancel переводит задачу в Cancelled. Задача с работой на проверке отменена быть не может.
func (b *Bounty) Cancel(now time.Time) error {
	if b.SubmissionID != 0 {
		return apperror.Reject(apperror.KindCannotCancelWithSubmissions, "по задаче уже сдана работа").
			With("bounty_id", b.ID).
			With("submission_id", b.SubmissionID)
	}
	return b.transition(valueobject.BountyStatusCancelled, now)
}

func (b *Bounty) Expire(now time.Time) error {
	if !now.After(b.Deadline) {
		return apperror.Reject(apperror.KindBountyNotExpired, "дедлайн задачи ещё не наступил").
			With("bounty_id", b.ID).
			With("deadline", b.Deadline).
			With("now", now)
	}
	return b.transition(valueobject.BountyStatusExpired, now)
}

func (b *Bounty) transition(to valueobject.BountyStatus, now time.Time) error {
	if !b.Status.CanTransitionTo(to) {
		return apperror.Reject(apperror.KindInvalidBountyState, "недопустимый переход статуса задачи").
			With("bounty_id", b.ID).
			With("from", b.Status).
			With("to", to)
	}
	b.Status = to
	b.UpdatedAt = now
	return nil
}

func (b *Bounty) Clone() *Bounty {
	c := *b
	c.EscrowAmount = valueobject.CopyAmount(b.EscrowAmount)
	c.PlatformFee = valueobject.CopyAmount(b.PlatformFee)
	if b.ClaimedAt != nil {
		at := *b.ClaimedAt
		c.ClaimedAt = &at
	}
	return &c
}
