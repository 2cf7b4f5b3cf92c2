package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Candidate это исполнитель, подходящий под задачу.
type Candidate struct {
	Address           string `json:"address"`
	Score             uint16 `json:"score"`
	Tier              uint8  `json:"tier"`
	CompletedBounties uint32 `json:"completed_bounties"`
	WinRate           uint32 `json:"win_rate"`
}

// Ranking это место исполнителя в рекомендации.
type Ranking struct {
	Address string  `json:"address"`
	Score   float64 `json:"score"`
	Reason  string  `json:"reason"`
}

// RankingResult это упорядоченный список и признак того, что использовалась формула.
type RankingResult struct {
	Rankings   []Ranking `json:"rankings"`
	Fallback   bool      `json:"fallback"`
	Disclaimer string    `json:"disclaimer"`
}

const (
	maxScore           = 2000
	maxTier            = 3
	completionsCeiling = 20
)

// RankFreelancers упорядочивает кандидатов. Если модель недоступна, используется
// взвешенная формула: балл 60%, уровень 20%, завершённые задачи 10%, доля побед в спорах 10%.
func (c *Client) RankFreelancers(ctx context.Context, requirementsHash string, candidates []Candidate) (*RankingResult, error) {
	if len(candidates) == 0 {
		return &RankingResult{Disclaimer: Disclaimer}, nil
	}
	if !c.Enabled() {
		return FallbackRanking(candidates), nil
	}

	payload, err := json.Marshal(candidates)
	if err != nil {
		return FallbackRanking(candidates), err
	}
	user := fmt.Sprintf("Требования: %s\nКандидаты: %s", requirementsHash, payload)
	content, err := c.complete(ctx, prompt(rankingSystemPrompt, user), deterministic)
	if err != nil {
		return FallbackRanking(candidates), err
	}

	var parsed struct {
		Rankings []Ranking `json:"rankings"`
	}
	if err := extractJSON(content, &parsed); err != nil {
		return FallbackRanking(candidates), err
	}

	// модель может вернуть лишние или повторные адреса, оставляем только кандидатов
	known := make(map[string]bool, len(candidates))
	for _, cand := range candidates {
		known[strings.ToLower(cand.Address)] = true
	}
	out := make([]Ranking, 0, len(parsed.Rankings))
	for _, r := range parsed.Rankings {
		key := strings.ToLower(r.Address)
		if known[key] {
			out = append(out, r)
			delete(known, key)
		}
	}
	if len(out) == 0 {
		return FallbackRanking(candidates), fmt.Errorf("ai: в ответе нет известных кандидатов")
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return &RankingResult{Rankings: out, Disclaimer: Disclaimer}, nil
}

// FallbackRanking считает детерминированный рейтинг по формуле.
func FallbackRanking(candidates []Candidate) *RankingResult {
	out := make([]Ranking, 0, len(candidates))
	for _, cand := range candidates {
		out = append(out, Ranking{
			Address: cand.Address,
			Score:   fallbackScore(cand),
			Reason:  fmt.Sprintf("балл %d, уровень %d, задач %d, побед в спорах %d%%", cand.Score, cand.Tier, cand.CompletedBounties, cand.WinRate),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Address < out[j].Address
		}
		return out[i].Score > out[j].Score
	})
	return &RankingResult{Rankings: out, Fallback: true, Disclaimer: Disclaimer}
}

func fallbackScore(c Candidate) float64 {
	completed := c.CompletedBounties
	if completed > completionsCeiling {
		completed = completionsCeiling
	}
	winRate := c.WinRate
	if winRate > 100 {
		winRate = 100
	}
	tier := c.Tier
	if tier > maxTier {
		tier = maxTier
	}
	return float64(c.Score)/maxScore*60 +
		float64(tier)/maxTier*20 +
		float64(completed)/completionsCeiling*10 +
		float64(winRate)/100*10
}

const rankingSystemPrompt = `Упорядочи исполнителей по пригодности для задачи. Ответь строго JSON:
{"rankings": [{"address": "0x...", "score": 0-100, "reason": "кратко"}]}`
