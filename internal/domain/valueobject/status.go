package valueobject

import "github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"

type BountyStatus string

const (
	BountyStatusOpen        BountyStatus = "open"
	BountyStatusInProgress  BountyStatus = "in_progress"
	BountyStatusUnderReview BountyStatus = "under_review"
	BountyStatusCompleted   BountyStatus = "completed"
	BountyStatusDisputed    BountyStatus = "disputed"
	BountyStatusCancelled   BountyStatus = "cancelled"
	BountyStatusExpired     BountyStatus = "expired"
)

var bountyTransitions = map[BountyStatus][]BountyStatus{
	BountyStatusOpen:        {BountyStatusInProgress, BountyStatusCancelled, BountyStatusExpired},
	BountyStatusInProgress:  {BountyStatusUnderReview, BountyStatusDisputed, BountyStatusCancelled, BountyStatusExpired},
	BountyStatusUnderReview: {BountyStatusCompleted, BountyStatusDisputed},
	BountyStatusCompleted:   {},
	BountyStatusDisputed:    {},
	BountyStatusCancelled:   {},
	BountyStatusExpired:     {},
}

func (s BountyStatus) IsValid() bool {
	_, ok := bountyTransitions[s]
	return ok
}

func (s BountyStatus) CanTransitionTo(newStatus BountyStatus) bool {
	return canTransition(bountyTransitions, s, newStatus)
}

// IsTerminal сообщает, что из статуса нет переходов.
func (s BountyStatus) IsTerminal() bool {
	return len(bountyTransitions[s]) == 0
}

func NewBountyStatus(status string) (BountyStatus, error) {
	s := BountyStatus(status)
	if !s.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус задачи")
	}
	return s, nil
}

type SubmissionStatus string

const (
	SubmissionStatusPending           SubmissionStatus = "pending"
	SubmissionStatusUnderReview       SubmissionStatus = "under_review"
	SubmissionStatusAccepted          SubmissionStatus = "accepted"
	SubmissionStatusRejected          SubmissionStatus = "rejected"
	SubmissionStatusRevisionRequested SubmissionStatus = "revision_requested"
	SubmissionStatusDisputed          SubmissionStatus = "disputed"
)

var submissionTransitions = map[SubmissionStatus][]SubmissionStatus{
	SubmissionStatusPending: {SubmissionStatusUnderReview, SubmissionStatusDisputed},
	SubmissionStatusUnderReview: {
		SubmissionStatusAccepted,
		SubmissionStatusRejected,
		SubmissionStatusRevisionRequested,
		SubmissionStatusDisputed,
	},
	SubmissionStatusRevisionRequested: {SubmissionStatusPending, SubmissionStatusDisputed},
	SubmissionStatusRejected:          {SubmissionStatusDisputed},
	SubmissionStatusAccepted:          {},
	SubmissionStatusDisputed:          {},
}

func (s SubmissionStatus) IsValid() bool {
	_, ok := submissionTransitions[s]
	return ok
}

func (s SubmissionStatus) CanTransitionTo(newStatus SubmissionStatus) bool {
	return canTransition(submissionTransitions, s, newStatus)
}

type DisputeStatus string

const (
	DisputeStatusOpen             DisputeStatus = "open"
	DisputeStatusUnderArbitration DisputeStatus = "under_arbitration"
	DisputeStatusRulingIssued     DisputeStatus = "ruling_issued"
	DisputeStatusAppealed         DisputeStatus = "appealed"
	DisputeStatusResolved         DisputeStatus = "resolved"
)

var disputeTransitions = map[DisputeStatus][]DisputeStatus{
	DisputeStatusOpen:             {DisputeStatusUnderArbitration, DisputeStatusResolved},
	DisputeStatusUnderArbitration: {DisputeStatusRulingIssued, DisputeStatusResolved},
	DisputeStatusRulingIssued:     {DisputeStatusAppealed, DisputeStatusResolved},
	DisputeStatusAppealed:         {DisputeStatusUnderArbitration, DisputeStatusResolved},
	DisputeStatusResolved:         {},
}

func (s DisputeStatus) IsValid() bool {
	_, ok := disputeTransitions[s]
	return ok
}

func (s DisputeStatus) CanTransitionTo(newStatus DisputeStatus) bool {
	return canTransition(disputeTransitions, s, newStatus)
}

// AwaitsArbitrator сообщает, что по спору ещё нет решения арбитра.
func (s DisputeStatus) AwaitsArbitrator() bool {
	return s == DisputeStatusOpen || s == DisputeStatusUnderArbitration || s == DisputeStatusAppealed
}

func canTransition[S comparable](table map[S][]S, from, to S) bool {
	allowed, ok := table[from]
	if !ok {
		return false
	}

	for _, status := range allowed {
		if status == to {
			return true
		}
	}
	return false
}
