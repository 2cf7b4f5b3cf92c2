package valueobject

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// MaxScore это верхняя граница шкалы репутации.
const MaxScore = 2000

type Tier uint8

const (
	TierBronze Tier = iota
	TierSilver
	TierGold
	TierPlatinum
)

type tierPolicy struct {
	name               string
	minScore           uint16
	maxConcurrent      uint32
	maxValueEther      int64 // 0 означает без ограничения
	withdrawalCooldown time.Duration
}

var tierPolicies = map[Tier]tierPolicy{
	TierBronze:   {name: "bronze", minScore: 0, maxConcurrent: 2, maxValueEther: 500, withdrawalCooldown: 7 * 24 * time.Hour},
	TierSilver:   {name: "silver", minScore: 800, maxConcurrent: 5, maxValueEther: 2500, withdrawalCooldown: 3 * 24 * time.Hour},
	TierGold:     {name: "gold", minScore: 1400, maxConcurrent: 10, maxValueEther: 10000, withdrawalCooldown: 24 * time.Hour},
	TierPlatinum: {name: "platinum", minScore: 1800, maxConcurrent: 20},
}

// TierForScore определяет уровень по общему баллу на шкале 0–2000.
func TierForScore(score uint16) Tier {
	switch {
	case score >= tierPolicies[TierPlatinum].minScore:
		return TierPlatinum
	case score >= tierPolicies[TierGold].minScore:
		return TierGold
	case score >= tierPolicies[TierSilver].minScore:
		return TierSilver
	default:
		return TierBronze
	}
}

// MaxConcurrent это лимит одновременно взятых задач.
func (t Tier) MaxConcurrent() uint32 {
	return tierPolicies[t].maxConcurrent
}

// MaxBountyValue возвращает предел стоимости задачи в wei. nil означает отсутствие предела.
func (t Tier) MaxBountyValue() *big.Int {
	ether := tierPolicies[t].maxValueEther
	if ether == 0 {
		return nil
	}
	return Ether(ether)
}

// WithdrawalCooldown это минимальный интервал между выводами средств.
func (t Tier) WithdrawalCooldown() time.Duration {
	return tierPolicies[t].withdrawalCooldown
}

func (t Tier) String() string {
	if p, ok := tierPolicies[t]; ok {
		return p.name
	}
	return fmt.Sprintf("tier(%d)", uint8(t))
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for tier, p := range tierPolicies {
		if p.name == name {
			*t = tier
			return nil
		}
	}
	return fmt.Errorf("valueobject: неизвестный уровень %q", text)
}

// ScoreFromPercent переводит балл со шкалы 0–100 внешнего сервиса на шкалу 0–2000.
func ScoreFromPercent(percent uint8) uint16 {
	if percent > 100 {
		percent = 100
	}
	return uint16(percent) * (MaxScore / 100)
}
