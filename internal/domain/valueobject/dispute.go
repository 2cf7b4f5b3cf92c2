package valueobject

import "github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"

type DisputeReason string

const (
	DisputeReasonQualityIssues     DisputeReason = "quality_issues"
	DisputeReasonMissedDeadline    DisputeReason = "missed_deadline"
	DisputeReasonIncompleteWork    DisputeReason = "incomplete_work"
	DisputeReasonScopeDisagreement DisputeReason = "scope_disagreement"
	DisputeReasonNonPayment        DisputeReason = "non_payment"
	DisputeReasonOther             DisputeReason = "other"
)

func (r DisputeReason) IsValid() bool {
	switch r {
	case DisputeReasonQualityIssues, DisputeReasonMissedDeadline, DisputeReasonIncompleteWork,
		DisputeReasonScopeDisagreement, DisputeReasonNonPayment, DisputeReasonOther:
		return true
	}
	return false
}

func NewDisputeReason(reason string) (DisputeReason, error) {
	r := DisputeReason(reason)
	if !r.IsValid() {
		return "", apperror.Reject(apperror.KindInvalidInput, "некорректная причина спора").With("reason", reason)
	}
	return r, nil
}

type DisputeOutcome string

const (
	DisputeOutcomeNone           DisputeOutcome = ""
	DisputeOutcomeFullPayment    DisputeOutcome = "full_payment"
	DisputeOutcomePartialPayment DisputeOutcome = "partial_payment"
	DisputeOutcomeFullRefund     DisputeOutcome = "full_refund"
	DisputeOutcomeSplit          DisputeOutcome = "split"
)

func (o DisputeOutcome) IsValid() bool {
	switch o {
	case DisputeOutcomeFullPayment, DisputeOutcomePartialPayment, DisputeOutcomeFullRefund, DisputeOutcomeSplit:
		return true
	}
	return false
}

func NewDisputeOutcome(outcome string) (DisputeOutcome, error) {
	o := DisputeOutcome(outcome)
	if !o.IsValid() {
		return "", apperror.Reject(apperror.KindInvalidInput, "некорректный исход спора").With("outcome", outcome)
	}
	return o, nil
}

// FreelancerPercentage переводит решение в долю исполнителя.
// Для частичной оплаты используется переданный процент.
func (o DisputeOutcome) FreelancerPercentage(partial uint8) uint8 {
	switch o {
	case DisputeOutcomeFullPayment:
		return 100
	case DisputeOutcomeFullRefund:
		return 0
	case DisputeOutcomeSplit:
		return 50
	default:
		return partial
	}
}
