package entity

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/ignatzorin/bounty-escrow/internal/authz"
	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
)

// Component это компонент, который можно поставить на паузу отдельно.
type Component string

const (
	ComponentRegistry    Component = "registry"
	ComponentSubmissions Component = "submissions"
	ComponentDisputes    Component = "disputes"
	ComponentEscrow      Component = "escrow"
	ComponentOracle      Component = "oracle"
)

var Components = []Component{ComponentRegistry, ComponentSubmissions, ComponentDisputes, ComponentEscrow, ComponentOracle}

func (c Component) IsValid() bool {
	for _, known := range Components {
		if c == known {
			return true
		}
	}
	return false
}

// PauseState это флаги экстренной остановки.
type PauseState struct {
	All        bool               `json:"all"`
	Reason     string             `json:"reason,omitempty"`
	Components map[Component]bool `json:"components"`
	ChangedAt  *time.Time         `json:"changed_at,omitempty"`
}

func (p PauseState) IsPaused(c Component) bool {
	return p.All || p.Components[c]
}

// Globals это единственная строка глобального состояния реестра.
type Globals struct {
	Initialized     bool                    `json:"initialized"`
	Admin           common.Address          `json:"admin"`
	Treasury        common.Address          `json:"treasury"`
	FeeBps          uint16                  `json:"fee_bps"`
	FeeBalance      *big.Int                `json:"fee_balance"`
	Custodied       *big.Int                `json:"custodied"`
	AppealThreshold *big.Int                `json:"appeal_threshold"`
	NextBountyID    uint64                  `json:"next_bounty_id"`
	NextSubmission  uint64                  `json:"next_submission_id"`
	NextDisputeID   uint64                  `json:"next_dispute_id"`
	Roles           authz.Grants            `json:"roles"`
	Updaters        map[common.Address]bool `json:"updaters"`
	Pause           PauseState              `json:"pause"`
}

func NewGlobals() *Globals {
	return &Globals{
		FeeBalance:      valueobject.Zero(),
		Custodied:       valueobject.Zero(),
		AppealThreshold: valueobject.Zero(),
		Roles:           authz.Grants{},
		Updaters:        map[common.Address]bool{},
		Pause:           PauseState{Components: map[Component]bool{}},
	}
}

func (g *Globals) AllocateBountyID() uint64 {
	g.NextBountyID++
	return g.NextBountyID
}

func (g *Globals) AllocateSubmissionID() uint64 {
	g.NextSubmission++
	return g.NextSubmission
}

func (g *Globals) AllocateDisputeID() uint64 {
	g.NextDisputeID++
	return g.NextDisputeID
}

func (g *Globals) Clone() *Globals {
	c := *g
	c.FeeBalance = valueobject.CopyAmount(g.FeeBalance)
	c.Custodied = valueobject.CopyAmount(g.Custodied)
	c.AppealThreshold = valueobject.CopyAmount(g.AppealThreshold)
	c.Roles = g.Roles.Clone()
	c.Updaters = make(map[common.Address]bool, len(g.Updaters))
	for addr, ok := range g.Updaters {
		c.Updaters[addr] = ok
	}
	c.Pause.Components = make(map[Component]bool, len(g.Pause.Components))
	for comp, paused := range g.Pause.Components {
		c.Pause.Components[comp] = paused
	}
	c.Pause.ChangedAt = copyTime(g.Pause.ChangedAt)
	return &c
}

// Event это доменное событие для внешних индексаторов и подписчиков.
type Event struct {
	ID      uuid.UUID        `json:"id"`
	Type    string           `json:"type"`
	Parties []common.Address `json:"parties,omitempty"`
	Payload map[string]any   `json:"payload"`
	At      time.Time        `json:"at"`
}

// Типы событий.
const (
	EventReputationUpdated   = "reputation-updated"
	EventTierChanged         = "tier-changed"
	EventReputationDecayed   = "reputation-decayed"
	EventBountyCreated       = "bounty-created"
	EventBountyClaimed       = "bounty-claimed"
	EventBountyCancelled     = "bounty-cancelled"
	EventBountyExpired       = "bounty-expired"
	EventCancellationFiled   = "cancellation-requested"
	EventCancellationDenied  = "cancellation-rejected"
	EventSubmissionSubmitted = "submission-submitted"
	EventSubmissionReview    = "submission-review-started"
	EventSubmissionAccepted  = "submission-accepted"
	EventSubmissionRejected  = "submission-rejected"
	EventDisputeInitiated    = "dispute-initiated"
	EventDisputeAnalysis     = "dispute-ai-analysis"
	EventDisputeRuling       = "dispute-ruling-issued"
	EventDisputeAppealed     = "dispute-appealed"
	EventDisputeResolved     = "dispute-resolved"
	EventPaymentReleased     = "payment-released"
	EventFundsRefunded       = "funds-refunded"
	EventWithdrawalMade      = "withdrawal-made"
	EventPauseChanged        = "pause-changed"
	EventRoleChanged         = "role-changed"
)
