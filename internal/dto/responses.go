package dto

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-escrow/internal/ledger"
	"github.com/ignatzorin/bounty-escrow/internal/service"
)

const weiExp = -18

// Amount переводит wei в десятичную сумму нативных единиц.
func Amount(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, weiExp)
}

// optionalAddress возвращает nil для нулевого адреса.
func optionalAddress(addr common.Address) *common.Address {
	if addr == (common.Address{}) {
		return nil
	}
	return &addr
}

type BountyResponse struct {
	ID                uint64                   `json:"id"`
	Client            common.Address           `json:"client"`
	EscrowAmount      decimal.Decimal          `json:"escrow_amount"`
	PlatformFee       decimal.Decimal          `json:"platform_fee"`
	FeeBps            uint16                   `json:"fee_bps"`
	MinRepRequired    uint16                   `json:"min_rep_required"`
	MaxRevisions      uint8                    `json:"max_revisions"`
	Deadline          time.Time                `json:"deadline"`
	ReviewPeriodHours float64                  `json:"review_period_hours"`
	Status            valueobject.BountyStatus `json:"status"`
	RequirementsHash  string                   `json:"requirements_hash"`
	ClaimedBy         *common.Address          `json:"claimed_by,omitempty"`
	ClaimedAt         *time.Time               `json:"claimed_at,omitempty"`
	SubmissionID      uint64                   `json:"submission_id,omitempty"`
	DisputeID         uint64                   `json:"dispute_id,omitempty"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

func NewBountyResponse(b *entity.Bounty) BountyResponse {
	return BountyResponse{
		ID:                b.ID,
		Client:            b.Client,
		EscrowAmount:      Amount(b.EscrowAmount),
		PlatformFee:       Amount(b.PlatformFee),
		FeeBps:            b.FeeBps,
		MinRepRequired:    b.MinRepRequired,
		MaxRevisions:      b.MaxRevisions,
		Deadline:          b.Deadline,
		ReviewPeriodHours: b.ReviewPeriod.Hours(),
		Status:            b.Status,
		RequirementsHash:  b.RequirementsHash,
		ClaimedBy:         optionalAddress(b.ClaimedBy),
		ClaimedAt:         b.ClaimedAt,
		SubmissionID:      b.SubmissionID,
		DisputeID:         b.DisputeID,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

func NewBountyList(bounties []*entity.Bounty) []BountyResponse {
	out := make([]BountyResponse, 0, len(bounties))
	for _, b := range bounties {
		out = append(out, NewBountyResponse(b))
	}
	return out
}

type DisputeResponse struct {
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
	LockedAmount        decimal.Decimal            `json:"locked_amount"`
	AI                  *entity.AIAnalysis         `json:"ai,omitempty"`
	AssignedArbitrator  *common.Address            `json:"assigned_arbitrator,omitempty"`
	RulingArbitrator    *common.Address            `json:"ruling_arbitrator,omitempty"`
	RulingAt            *time.Time                 `json:"ruling_at,omitempty"`
	AppealDeadline      *time.Time                 `json:"appeal_deadline,omitempty"`
	AppealedBy          *common.Address            `json:"appealed_by,omitempty"`
	ArbitrationDeadline time.Time                  `json:"arbitration_deadline"`
	ResolvedByTimeout   bool                       `json:"resolved_by_timeout"`
	CreatedAt           time.Time                  `json:"created_at"`
	ResolvedAt          *time.Time                 `json:"resolved_at,omitempty"`
}

func NewDisputeResponse(d *entity.Dispute) DisputeResponse {
	return DisputeResponse{
		ID:                  d.ID,
		BountyID:            d.BountyID,
		SubmissionID:        d.SubmissionID,
		Initiator:           d.Initiator,
		Client:              d.Client,
		Freelancer:          d.Freelancer,
		Reason:              d.Reason,
		EvidenceHash:        d.EvidenceHash,
		Status:              d.Status,
		Outcome:             d.Outcome,
		FreelancerPct:       d.FreelancerPct,
		LockedAmount:        Amount(d.LockedAmount),
		AI:                  d.AI,
		AssignedArbitrator:  optionalAddress(d.AssignedArbitrator),
		RulingArbitrator:    optionalAddress(d.RulingArbitrator),
		RulingAt:            d.RulingAt,
		AppealDeadline:      d.AppealDeadline,
		AppealedBy:          optionalAddress(d.AppealedBy),
		ArbitrationDeadline: d.ArbitrationDeadline,
		ResolvedByTimeout:   d.ResolvedByTimeout,
		CreatedAt:           d.CreatedAt,
		ResolvedAt:          d.ResolvedAt,
	}
}

func NewDisputeList(disputes []*entity.Dispute) []DisputeResponse {
	out := make([]DisputeResponse, 0, len(disputes))
	for _, d := range disputes {
		out = append(out, NewDisputeResponse(d))
	}
	return out
}

type AccountResponse struct {
	Address          common.Address  `json:"address"`
	TotalDeposited   decimal.Decimal `json:"total_deposited"`
	Available        decimal.Decimal `json:"available"`
	Locked           decimal.Decimal `json:"locked"`
	TotalWithdrawn   decimal.Decimal `json:"total_withdrawn"`
	LastWithdrawalAt *time.Time      `json:"last_withdrawal_at,omitempty"`
}

func NewAccountResponse(a *entity.EscrowAccount) AccountResponse {
	return AccountResponse{
		Address:          a.Address,
		TotalDeposited:   Amount(a.TotalDeposited),
		Available:        Amount(a.Available),
		Locked:           Amount(a.Locked),
		TotalWithdrawn:   Amount(a.TotalWithdrawn),
		LastWithdrawalAt: a.LastWithdrawalAt,
	}
}

type EscrowSlotResponse struct {
	BountyID uint64          `json:"bounty_id"`
	Payer    common.Address  `json:"payer"`
	Balance  decimal.Decimal `json:"balance"`
	Locked   decimal.Decimal `json:"locked"`
}

func NewEscrowSlotResponse(s *entity.EscrowSlot) EscrowSlotResponse {
	return EscrowSlotResponse{
		BountyID: s.BountyID,
		Payer:    s.Payer,
		Balance:  Amount(s.Balance),
		Locked:   Amount(s.Locked),
	}
}

type WithdrawalResponse struct {
	ID      uuid.UUID        `json:"id"`
	Account common.Address   `json:"account"`
	Amount  decimal.Decimal  `json:"amount"`
	Tier    valueobject.Tier `json:"tier"`
	Fees    bool             `json:"fees"`
	At      time.Time        `json:"at"`
}

func NewWithdrawalResponse(w *entity.Withdrawal) WithdrawalResponse {
	return WithdrawalResponse{
		ID:      w.ID,
		Account: w.Account,
		Amount:  Amount(w.Amount),
		Tier:    w.Tier,
		Fees:    w.Fees,
		At:      w.At,
	}
}

func NewWithdrawalList(items []*entity.Withdrawal) []WithdrawalResponse {
	out := make([]WithdrawalResponse, 0, len(items))
	for _, w := range items {
		out = append(out, NewWithdrawalResponse(w))
	}
	return out
}

type ReputationResponse struct {
	Address           common.Address   `json:"address"`
	Quality           uint16           `json:"quality"`
	Reliability       uint16           `json:"reliability"`
	Professionalism   uint16           `json:"professionalism"`
	Overall           uint16           `json:"overall"`
	Tier              valueobject.Tier `json:"tier"`
	LastUpdated       *time.Time       `json:"last_updated,omitempty"`
	LastActivity      time.Time        `json:"last_activity"`
	CompletedBounties uint32           `json:"completed_bounties"`
	TotalEarnings     decimal.Decimal  `json:"total_earnings"`
	DisputesInitiated uint32           `json:"disputes_initiated"`
	DisputesLost      uint32           `json:"disputes_lost"`
}

func NewReputationResponse(r *entity.ReputationScore) ReputationResponse {
	return ReputationResponse{
		Address:           r.Address,
		Quality:           r.Quality,
		Reliability:       r.Reliability,
		Professionalism:   r.Professionalism,
		Overall:           r.Overall,
		Tier:              r.Tier,
		LastUpdated:       r.LastUpdated,
		LastActivity:      r.LastActivity,
		CompletedBounties: r.CompletedBounties,
		TotalEarnings:     Amount(r.TotalEarnings),
		DisputesInitiated: r.DisputesInitiated,
		DisputesLost:      r.DisputesLost,
	}
}

type SettlementResponse struct {
	BountyID     uint64          `json:"bounty_id"`
	Freelancer   decimal.Decimal `json:"freelancer_net"`
	Fee          decimal.Decimal `json:"fee"`
	ClientRefund decimal.Decimal `json:"client_refund"`
}

func NewSettlementResponse(s *service.Settlement) SettlementResponse {
	return SettlementResponse{
		BountyID:     s.BountyID,
		Freelancer:   Amount(s.Freelancer),
		Fee:          Amount(s.Fee),
		ClientRefund: Amount(s.ClientRefund),
	}
}

type AuditResponse struct {
	Escrowed      decimal.Decimal `json:"escrowed"`
	Locked        decimal.Decimal `json:"locked"`
	Available     decimal.Decimal `json:"available"`
	AccountLocked decimal.Decimal `json:"account_locked"`
	FeeBalance    decimal.Decimal `json:"fee_balance"`
	Custodied     decimal.Decimal `json:"custodied"`
	Balanced      bool            `json:"balanced"`
}

func NewAuditResponse(r ledger.AuditReport) AuditResponse {
	return AuditResponse{
		Escrowed:      Amount(r.Escrowed),
		Locked:        Amount(r.Locked),
		Available:     Amount(r.Available),
		AccountLocked: Amount(r.AccountLocked),
		FeeBalance:    Amount(r.FeeBalance),
		Custodied:     Amount(r.Custodied),
		Balanced:      r.Balanced,
	}
}

type FeeResponse struct {
	FeeBps  uint16          `json:"fee_bps"`
	Balance decimal.Decimal `json:"balance"`
}

type TierResponse struct {
	Address        common.Address   `json:"address"`
	Tier           valueobject.Tier `json:"tier"`
	MaxConcurrent  uint32           `json:"max_concurrent"`
	MaxBountyValue *decimal.Decimal `json:"max_bounty_value,omitempty"`
	ActiveBounties uint32           `json:"active_bounties"`
}

// NewTierResponse описывает лимиты уровня. У Platinum лимит суммы не задан.
func NewTierResponse(addr common.Address, tier valueobject.Tier, active uint32) TierResponse {
	resp := TierResponse{
		Address:        addr,
		Tier:           tier,
		MaxConcurrent:  tier.MaxConcurrent(),
		ActiveBounties: active,
	}
	if limit := tier.MaxBountyValue(); limit != nil {
		v := Amount(limit)
		resp.MaxBountyValue = &v
	}
	return resp
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func NewTokenResponse(t *service.AccessToken) TokenResponse {
	return TokenResponse{
		AccessToken: t.Token,
		ExpiresIn:   int64(t.ExpiresIn.Seconds()),
		ExpiresAt:   t.ExpiresAt,
	}
}

type ListResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func NewList[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Total: len(items)}
}
