package entity

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
)

type Submission struct {
	ID              uint64                       `json:"id"`
	BountyID        uint64                       `json:"bounty_id"`
	Freelancer      common.Address               `json:"freelancer"`
	WorkHash        string                       `json:"work_hash"`
	Status          valueobject.SubmissionStatus `json:"status"`
	RevisionCount   uint8                        `json:"revision_count"`
	SubmittedAt     time.Time                    `json:"submitted_at"`
	ReviewStartedAt *time.Time                   `json:"review_started_at,omitempty"`
	ReviewDeadline  *time.Time                   `json:"review_deadline,omitempty"`
	FeedbackHash    string                       `json:"feedback_hash,omitempty"`
	UpdatedAt       time.Time                    `json:"updated_at"`
}

func NewSubmission(id, bountyID uint64, freelancer common.Address, workHash string, now time.Time) *Submission {
	return &Submission{
		ID:          id,
		BountyID:    bountyID,
		Freelancer:  freelancer,
		WorkHash:    workHash,
		Status:      valueobject.SubmissionStatusPending,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
}

// StartReview запускает отсчёт срока проверки.
func (s *Submission) StartReview(period time.Duration, now time.Time) error {
	if err := s.transition(valueobject.SubmissionStatusUnderReview, now); err != nil {
		return err
	}
	deadline := now.Add(period)
	s.ReviewStartedAt = &now
	s.ReviewDeadline = &deadline
	return nil
}

func (s *Submission) Accept(feedbackHash string, now time.Time) error {
	if s.Status != valueobject.SubmissionStatusUnderReview {
		return apperror.Reject(apperror.KindSubmissionNotUnderReview, "работа не на проверке").
			With("submission_id", s.ID).
			With("status", s.Status)
	}
	s.FeedbackHash = feedbackHash
	return s.transition(valueobject.SubmissionStatusAccepted, now)
}

// Reject отклоняет работу. Пока не исчерпан лимит правок, запрашивается доработка.
func (s *Submission) Reject(feedbackHash string, maxRevisions uint8, now time.Time) error {
	if s.Status != valueobject.SubmissionStatusUnderReview {
		return apperror.Reject(apperror.KindSubmissionNotUnderReview, "работа не на проверке").
			With("submission_id", s.ID).
			With("status", s.Status)
	}
	if feedbackHash == "" {
		return apperror.Reject(apperror.KindInvalidFeedback, "отклонение требует отзыва")
	}
	s.FeedbackHash = feedbackHash
	if s.RevisionCount < maxRevisions {
		return s.transition(valueobject.SubmissionStatusRevisionRequested, now)
	}
	return s.transition(valueobject.SubmissionStatusRejected, now)
}

func (s *Submission) Resubmit(workHash string, now time.Time) error {
	if s.Status != valueobject.SubmissionStatusRevisionRequested {
		return apperror.Reject(apperror.KindInvalidSubmissionState, "доработка не запрашивалась").
			With("submission_id", s.ID).
			With("status", s.Status)
	}
	if err := s.transition(valueobject.SubmissionStatusPending, now); err != nil {
		return err
	}
	s.WorkHash = workHash
	s.RevisionCount++
	s.SubmittedAt = now
	s.ReviewStartedAt = nil
	s.ReviewDeadline = nil
	return nil
}

func (s *Submission) MarkDisputed(now time.Time) error {
	return s.transition(valueobject.SubmissionStatusDisputed, now)
}

// ReviewExpired сообщает, что срок проверки истёк.
func (s *Submission) ReviewExpired(now time.Time) bool {
	return s.Status == valueobject.SubmissionStatusUnderReview && s.ReviewDeadline != nil && now.After(*s.ReviewDeadline)
}

func (s *Submission) transition(to valueobject.SubmissionStatus, now time.Time) error {
	if !s.Status.CanTransitionTo(to) {
		return apperror.Reject(apperror.KindInvalidSubmissionState, "недопустимый переход статуса работы").
			With("submission_id", s.ID).
			With("from", s.Status).
			With("to", to)
	}
	s.Status = to
	s.UpdatedAt = now
	return nil
}

func (s *Submission) Clone() *Submission {
	c := *s
	if s.ReviewStartedAt != nil {
		at := *s.ReviewStartedAt
		c.ReviewStartedAt = &at
	}
	if s.ReviewDeadline != nil {
		at := *s.ReviewDeadline
		c.ReviewDeadline = &at
	}
	return &c
}
