package entity

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
)

const (
	decayGracePeriod = 90 * 24 * time.Hour
	decayStepDays    = 30
	day              = 24 * time.Hour
)

// Веса компонент общего балла, в процентах.
const (
	qualityWeight         = 40
	reliabilityWeight     = 35
	professionalismWeight = 25
)

type ReputationScore struct {
	Address           common.Address   `json:"address"`
	Quality           uint16           `json:"quality"`
	Reliability       uint16           `json:"reliability"`
	Professionalism   uint16           `json:"professionalism"`
	Overall           uint16           `json:"overall"`
	Tier              valueobject.Tier `json:"tier"`
	LastUpdated       *time.Time       `json:"last_updated,omitempty"`
	LastActivity      time.Time        `json:"last_activity"`
	DecayApplied      uint16           `json:"decay_applied"`
	CompletedBounties uint32           `json:"completed_bounties"`
	TotalEarnings     *big.Int         `json:"total_earnings"`
	DisputesInitiated uint32           `json:"disputes_initiated"`
	DisputesLost      uint32           `json:"disputes_lost"`
}

// NewReputationScore создаёт пустую запись. Активность отсчитывается с момента создания.
func NewReputationScore(addr common.Address, now time.Time) *ReputationScore {
	return &ReputationScore{
		Address:       addr,
		Tier:          valueobject.TierBronze,
		LastActivity:  now,
		TotalEarnings: valueobject.Zero(),
	}
}

// OverallScore считает взвешенный балл 40/35/25 с округлением вниз.
func OverallScore(quality, reliability, professionalism uint16) uint16 {
	sum := uint32(quality)*qualityWeight + uint32(reliability)*reliabilityWeight + uint32(professionalism)*professionalismWeight
	return uint16(sum / 100)
}

// SetComponents записывает компоненты и пересчитывает общий балл и уровень.
// Новый балл ещё не уменьшался, поэтому счётчик списанного затухания обнуляется.
// Возвращает true, если уровень изменился.
func (r *ReputationScore) SetComponents(quality, reliability, professionalism uint16, now time.Time) bool {
	r.Quality = quality
	r.Reliability = reliability
	r.Professionalism = professionalism
	r.LastUpdated = &now
	r.DecayApplied = 0
	return r.setOverall(OverallScore(quality, reliability, professionalism))
}

// Adjust задаёт общий балл напрямую и пересчитывает уровень.
func (r *ReputationScore) Adjust(overall uint16, now time.Time) bool {
	r.LastUpdated = &now
	return r.setOverall(overall)
}

func (r *ReputationScore) setOverall(overall uint16) bool {
	previous := r.Tier
	r.Overall = overall
	r.Tier = valueobject.TierForScore(overall)
	return previous != r.Tier
}

// DecayPoints считает, сколько баллов положено списать за текущий период неактивности.
func (r *ReputationScore) DecayPoints(now time.Time) uint16 {
	inactive := now.Sub(r.LastActivity)
	if inactive <= decayGracePeriod {
		return 0
	}
	inactiveDays := int64(inactive / day)
	points := (inactiveDays - int64(decayGracePeriod/day)) / decayStepDays
	if points <= 0 {
		return 0
	}
	if points > valueobject.MaxScore {
		points = valueobject.MaxScore
	}
	return uint16(points)
}

// ApplyDecay списывает ещё не списанные баллы. Уровень не пересчитывается.
// Возвращает фактически списанное количество.
func (r *ReputationScore) ApplyDecay(now time.Time) uint16 {
	points := r.DecayPoints(now)
	if points <= r.DecayApplied {
		return 0
	}
	delta := points - r.DecayApplied
	r.DecayApplied = points
	if delta > r.Overall {
		delta = r.Overall
	}
	r.Overall -= delta
	return delta
}

func (r *ReputationScore) TouchActivity(now time.Time) {
	r.LastActivity = now
	r.DecayApplied = 0
}

// WinRate считает долю выигранных споров: (initiated−lost)·100/initiated, 100 без споров.
func (r *ReputationScore) WinRate() uint32 {
	if r.DisputesInitiated == 0 {
		return 100
	}
	lost := r.DisputesLost
	if lost > r.DisputesInitiated {
		lost = r.DisputesInitiated
	}
	return (r.DisputesInitiated - lost) * 100 / r.DisputesInitiated
}

func (r *ReputationScore) Clone() *ReputationScore {
	c := *r
	c.LastUpdated = copyTime(r.LastUpdated)
	c.TotalEarnings = valueobject.CopyAmount(r.TotalEarnings)
	return &c
}

// Workload это число задач, которые исполнитель ведёт одновременно.
type Workload struct {
	Address        common.Address `json:"address"`
	ActiveBounties uint32         `json:"active_bounties"`
}

func (w *Workload) Clone() *Workload {
	c := *w
	return &c
}

// CancellationRequest это запрос клиента на отмену задачи.
type CancellationRequest struct {
	BountyID       uint64         `json:"bounty_id"`
	Requester      common.Address `json:"requester"`
	RequestedAt    time.Time      `json:"requested_at"`
	ReviewDeadline time.Time      `json:"review_deadline"`
	ReasonHash     string         `json:"reason_hash"`
	Processed      bool           `json:"processed"`
	Approved       bool           `json:"approved"`
	ProcessedBy    common.Address `json:"processed_by"`
	ProcessedAt    *time.Time     `json:"processed_at,omitempty"`
}

// CancellationWindow это срок рассмотрения запроса модератором.
const CancellationWindow = 7 * 24 * time.Hour

func (c *CancellationRequest) IsLive() bool {
	return !c.Processed
}

func (c *CancellationRequest) Close(by common.Address, approved bool, now time.Time) {
	c.Processed = true
	c.Approved = approved
	c.ProcessedBy = by
	c.ProcessedAt = &now
}

func (c *CancellationRequest) Clone() *CancellationRequest {
	cp := *c
	cp.ProcessedAt = copyTime(c.ProcessedAt)
	return &cp
}
