package dto

import "time"

// CreateBountyRequest это параметры новой задачи. Value передаётся десятичной строкой в нативных единицах.
type CreateBountyRequest struct {
	Value             string    `json:"value" binding:"required"`
	RequirementsHash  string    `json:"requirements_hash" binding:"required"`
	Deadline          time.Time `json:"deadline" binding:"required"`
	MinRepRequired    uint16    `json:"min_rep_required"`
	MaxRevisions      uint8     `json:"max_revisions"`
	ReviewPeriodHours uint32    `json:"review_period_hours"`
}

type CancellationRequest struct {
	ReasonHash string `json:"reason_hash" binding:"required"`
}

type SubmitWorkRequest struct {
	WorkHash string `json:"work_hash" binding:"required"`
}

type FeedbackRequest struct {
	FeedbackHash string `json:"feedback_hash"`
}

type InitiateDisputeRequest struct {
	BountyID     uint64 `json:"bounty_id" binding:"required"`
	SubmissionID uint64 `json:"submission_id"`
	Reason       string `json:"reason" binding:"required"`
	EvidenceHash string `json:"evidence_hash" binding:"required"`
}

// ResolveDisputeRequest это решение арбитра. FreelancerPct учитывается только для partial_payment.
type ResolveDisputeRequest struct {
	Outcome       string `json:"outcome" binding:"required"`
	FreelancerPct uint8  `json:"freelancer_pct"`
}

// AIAnalysisRequest это анализ спора от AI сервиса.
type AIAnalysisRequest struct {
	RecommendationHash string `json:"recommendation_hash" binding:"required"`
	Confidence         uint8  `json:"confidence"`
	ProposedOutcome    string `json:"proposed_outcome"`
}

// ReputationUpdateRequest это подписанное обновление репутации. Signature в hex.
type ReputationUpdateRequest struct {
	User            string `json:"user" binding:"required"`
	Quality         uint16 `json:"quality"`
	Reliability     uint16 `json:"reliability"`
	Professionalism uint16 `json:"professionalism"`
	Signature       string `json:"signature" binding:"required"`
}

type AdjustReputationRequest struct {
	NewOverall    uint16 `json:"new_overall"`
	Justification string `json:"justification" binding:"required"`
}

type WithdrawRequest struct {
	Amount string `json:"amount" binding:"required"`
}

type PlatformFeeRequest struct {
	FeeBps uint16 `json:"fee_bps"`
}

type AddressRequest struct {
	Address string `json:"address" binding:"required"`
}

type RoleRequest struct {
	Role    string `json:"role" binding:"required"`
	Address string `json:"address" binding:"required"`
}

type PauseRequest struct {
	Component string `json:"component"`
	Reason    string `json:"reason"`
}

// DevTokenRequest выдаёт токен на произвольный адрес. Доступно только вне production.
type DevTokenRequest struct {
	Address string `json:"address" binding:"required"`
}
