package entity

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
)

const (
	// AppealWindow это срок обжалования решения по крупному спору.
	AppealWindow = 3 * 24 * time.Hour
	// ArbitrationTimeout это срок, после которого спор без решения делится пополам.
	ArbitrationTimeout = 14 * 24 * time.Hour
)

// AIAnalysis это рекомендация AI сервиса. Хранится рядом со спором и никогда не применяется сама.
type AIAnalysis struct {
	RecommendationHash string                     `json:"recommendation_hash"`
	Confidence         uint8                      `json:"confidence"`
	ProposedOutcome    valueobject.DisputeOutcome `json:"proposed_outcome"`
	SubmittedAt        time.Time                  `json:"submitted_at"`
}

type Dispute struct {
	ID                  uint64                     `json:"id"`
	BountyID            uint64                     `json:"bounty_id"`
	SubmissionID        uint64                     `json:"submission_id,omitempty"`
	Initiator           common.Address             `json:"initiator"`
	Client              common.Address             `json:"client"`
	Freelancer          common.Address             `json:"freelancer"`
	Reason              valueobject.DisputeReason  `json:"reason"`
	EvidenceHash        string                     `json:"evidence_hash"`
	Status              valueobject.DisputeStatus  `json:"status"`
	Outcome             valueobject.DisputeOutcome `json:"outcome,omitempty"`
	FreelancerPct       uint8                      `json:"freelancer_pct"`
	LockedAmount        *big.Int                   `json:"locked_amount"`
	AI                  *AIAnalysis                `json:"ai,omitempty"`
	AssignedArbitrator  common.Address             `json:"assigned_arbitrator"`
	RulingArbitrator    common.Address             `json:"ruling_arbitrator"`
	RulingAt            *time.Time                 `json:"ruling_at,omitempty"`
	AppealDeadline      *time.Time                 `json:"appeal_deadline,omitempty"`
	AppealedBy          common.Address             `json:"appealed_by"`
	ArbitrationDeadline time.Time                  `json:"arbitration_deadline"`
	ResolvedByTimeout   bool                       `json:"resolved_by_timeout"`
	CreatedAt           time.Time                  `json:"created_at"`
	ResolvedAt          *time.Time                 `json:"resolved_at,omitempty"`
	UpdatedAt           time.Time                  `json:"updated_at"`
}

func NewDispute(id uint64, bounty *Bounty, submissionID uint64, initiator common.Address, reason valueobject.DisputeReason, evidenceHash string, locked *big.Int, now time.Time) *Dispute {
	return &Dispute{
		ID:                  id,
		BountyID:            bounty.ID,
		SubmissionID:        submissionID,
		Initiator:           initiator,
		Client:              bounty.Client,
		Freelancer:          bounty.ClaimedBy,
		Reason:              reason,
		EvidenceHash:        evidenceHash,
		Status:              valueobject.DisputeStatusOpen,
		LockedAmount:        valueobject.CopyAmount(locked),
		ArbitrationDeadline: now.Add(ArbitrationTimeout),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// IsParty сообщает, является ли адрес стороной спора.
func (d *Dispute) IsParty(addr common.Address) bool {
	return addr == d.Client || addr == d.Freelancer
}

func (d *Dispute) IsAppealed() bool {
	return d.AppealedBy != (common.Address{})
}

func (d *Dispute) AttachAnalysis(analysis AIAnalysis) error {
	if !d.Status.AwaitsArbitrator() {
		return d.stateError("спор уже рассмотрен")
	}
	if analysis.Confidence == 0 || analysis.Confidence > 100 {
		return apperror.Reject(apperror.KindInvalidConfidence, "уверенность должна быть в диапазоне 1..100").
			With("confidence", analysis.Confidence)
	}
	d.AI = &analysis
	d.UpdatedAt = analysis.SubmittedAt
	return nil
}

// Assign назначает арбитра. После апелляции повторно решать спор тот же арбитр не может.
func (d *Dispute) Assign(arbitrator common.Address, now time.Time) error {
	if d.IsAppealed() && arbitrator == d.RulingArbitrator {
		return apperror.Reject(apperror.KindUnauthorizedCaller, "обжалованный спор рассматривает другой арбитр").
			With("arbitrator", arbitrator.Hex())
	}
	if err := d.transition(valueobject.DisputeStatusUnderArbitration, now); err != nil {
		return err
	}
	d.AssignedArbitrator = arbitrator
	return nil
}

// Rule фиксирует решение арбитра. Если requireAppealWindow, решение ждёт окончания окна обжалования.
func (d *Dispute) Rule(arbitrator common.Address, outcome valueobject.DisputeOutcome, pct uint8, requireAppealWindow bool, now time.Time) error {
	if d.Status != valueobject.DisputeStatusUnderArbitration {
		return d.stateError("спор не на рассмотрении")
	}
	if arbitrator != d.AssignedArbitrator {
		return apperror.Reject(apperror.KindUnauthorizedCaller, "решение выносит назначенный арбитр").
			With("arbitrator", arbitrator.Hex()).
			With("assigned", d.AssignedArbitrator.Hex())
	}
	d.Outcome = outcome
	d.FreelancerPct = pct
	d.RulingArbitrator = arbitrator
	d.RulingAt = &now
	d.UpdatedAt = now
	if requireAppealWindow {
		deadline := now.Add(AppealWindow)
		d.AppealDeadline = &deadline
		return d.transition(valueobject.DisputeStatusRulingIssued, now)
	}
	return nil
}

func (d *Dispute) Appeal(party common.Address, now time.Time) error {
	if d.Status != valueobject.DisputeStatusRulingIssued {
		return d.stateError("нет решения для обжалования")
	}
	if now.After(*d.AppealDeadline) {
		return apperror.Reject(apperror.KindAppealWindowClosed, "срок обжалования истёк").
			With("appeal_deadline", *d.AppealDeadline).
			With("now", now)
	}
	d.AppealedBy = party
	d.AssignedArbitrator = common.Address{}
	d.ArbitrationDeadline = now.Add(ArbitrationTimeout)
	return d.transition(valueobject.DisputeStatusAppealed, now)
}

// EnsureFinalizable проверяет, что окно обжалования закрыто.
func (d *Dispute) EnsureFinalizable(now time.Time) error {
	if d.Status != valueobject.DisputeStatusRulingIssued {
		return d.stateError("нет решения для исполнения")
	}
	if !now.After(*d.AppealDeadline) {
		return apperror.Reject(apperror.KindAppealWindowActive, "окно обжалования ещё открыто").
			With("appeal_deadline", *d.AppealDeadline).
			With("now", now)
	}
	return nil
}

// EnsureTimedOut проверяет, что арбитр не вынес решения в срок.
func (d *Dispute) EnsureTimedOut(now time.Time) error {
	if !d.Status.AwaitsArbitrator() {
		return d.stateError("по спору уже есть решение")
	}
	if !now.After(d.ArbitrationDeadline) {
		return apperror.Reject(apperror.KindArbitrationWindowActive, "срок арбитража ещё не истёк").
			With("arbitration_deadline", d.ArbitrationDeadline).
			With("now", now)
	}
	return nil
}

func (d *Dispute) Resolve(outcome valueobject.DisputeOutcome, pct uint8, byTimeout bool, now time.Time) error {
	if err := d.transition(valueobject.DisputeStatusResolved, now); err != nil {
		return err
	}
	d.Outcome = outcome
	d.FreelancerPct = pct
	d.ResolvedByTimeout = byTimeout
	d.ResolvedAt = &now
	return nil
}

// Loser возвращает проигравшую сторону или нулевой адрес, если проигравшего нет.
func (d *Dispute) Loser() common.Address {
	if d.ResolvedByTimeout {
		return common.Address{}
	}
	switch d.Outcome {
	case valueobject.DisputeOutcomeFullPayment:
		return d.Client
	case valueobject.DisputeOutcomeFullRefund:
		return d.Freelancer
	default:
		return common.Address{}
	}
}

func (d *Dispute) transition(to valueobject.DisputeStatus, now time.Time) error {
	if !d.Status.CanTransitionTo(to) {
		return apperror.Reject(apperror.KindInvalidDisputeState, "недопустимый переход статуса спора").
			With("dispute_id", d.ID).
			With("from", d.Status).
			With("to", to)
	}
	d.Status = to
	d.UpdatedAt = now
	return nil
}

func (d *Dispute) stateError(message string) error {
	return apperror.Reject(apperror.KindInvalidDisputeState, message).
		With("dispute_id", d.ID).
		With("status", d.Status)
}

func (d *Dispute) Clone() *Dispute {
	c := *d
	c.LockedAmount = valueobject.CopyAmount(d.LockedAmount)
	if d.AI != nil {
		ai := *d.AI
		c.AI = &ai
	}
	c.RulingAt = copyTime(d.RulingAt)
	c.AppealDeadline = copyTime(d.AppealDeadline)
	c.ResolvedAt = copyTime(d.ResolvedAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
