package signer

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
)

// ProviderReport это данные внешнего провайдера репутации.
type ProviderReport struct {
	User     common.Address `json:"user"`
	Score    uint16         `json:"score"`
	Positive uint32         `json:"positive"`
	Negative uint32         `json:"negative"`
	Neutral  uint32         `json:"neutral"`
}

// ToUpdate раскладывает отчёт провайдера на три компоненты шкалы 0..2000.
// quality берётся из общего балла, reliability из доли положительных отзывов,
// professionalism из доли неотрицательных. Без отзывов обе доли равны баллу.
func (r ProviderReport) ToUpdate() Update {
	score := clamp(uint32(r.Score))
	u := Update{User: r.User, Quality: score, Reliability: score, Professionalism: score}

	total := uint64(r.Positive) + uint64(r.Negative) + uint64(r.Neutral)
	if total == 0 {
		return u
	}
	u.Reliability = clamp(uint32(uint64(r.Positive) * valueobject.MaxScore / total))
	u.Professionalism = clamp(uint32((uint64(r.Positive) + uint64(r.Neutral)) * valueobject.MaxScore / total))
	return u
}

func clamp(v uint32) uint16 {
	if v > valueobject.MaxScore {
		return valueobject.MaxScore
	}
	return uint16(v)
}
