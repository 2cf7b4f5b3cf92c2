package ai

import (
	"context"
	"fmt"
	"strings"
)

// DisputeCase это сведения о споре, которые получает модель.
type DisputeCase struct {
	DisputeID        uint64 `json:"dispute_id"`
	BountyID         uint64 `json:"bounty_id"`
	Reason           string `json:"reason"`
	Initiator        string `json:"initiator"`
	EvidenceHash     string `json:"evidence_hash"`
	RequirementsHash string `json:"requirements_hash"`
	WorkHash         string `json:"work_hash,omitempty"`
	LockedAmount     string `json:"locked_amount"`
	RevisionCount    uint8  `json:"revision_count"`
	MaxRevisions     uint8  `json:"max_revisions"`
	ClientWinRate    uint32 `json:"client_win_rate"`
	FreelancerScore  uint16 `json:"freelancer_score"`
}

// DisputeAnalysis это рекомендация модели. При RequiresArbitrator рекомендации нет.
type DisputeAnalysis struct {
	Recommendation     string `json:"recommendation"`
	Confidence         uint8  `json:"confidence"`
	ProposedOutcome    string `json:"proposed_outcome"`
	FreelancerPct      uint8  `json:"freelancer_pct"`
	RequiresArbitrator bool   `json:"requires_arbitrator"`
	Disclaimer         string `json:"disclaimer"`
}

var knownOutcomes = map[string]bool{
	"full_payment":    true,
	"partial_payment": true,
	"full_refund":     true,
	"split":           true,
}

// AnalyzeDispute запрашивает рекомендацию. При любой ошибке возвращается ответ
// с RequiresArbitrator=true и нулевой уверенностью вместе с ошибкой.
func (c *Client) AnalyzeDispute(ctx context.Context, dc DisputeCase) (*DisputeAnalysis, error) {
	content, err := c.complete(ctx, prompt(disputeSystemPrompt, disputePrompt(dc)), deterministic)
	if err != nil {
		return fallbackAnalysis(), err
	}

	var parsed struct {
		Recommendation  string  `json:"recommendation"`
		Confidence      float64 `json:"confidence"`
		ProposedOutcome string  `json:"proposed_outcome"`
		FreelancerPct   float64 `json:"freelancer_pct"`
	}
	if err := extractJSON(content, &parsed); err != nil {
		return fallbackAnalysis(), err
	}

	outcome := strings.ToLower(strings.TrimSpace(parsed.ProposedOutcome))
	if !knownOutcomes[outcome] {
		return fallbackAnalysis(), fmt.Errorf("ai: неизвестный исход %q", parsed.ProposedOutcome)
	}
	if parsed.Confidence < 1 || parsed.Confidence > 100 {
		return fallbackAnalysis(), fmt.Errorf("ai: уверенность вне диапазона: %v", parsed.Confidence)
	}
	pct := parsed.FreelancerPct
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	return &DisputeAnalysis{
		Recommendation:  strings.TrimSpace(parsed.Recommendation),
		Confidence:      uint8(parsed.Confidence),
		ProposedOutcome: outcome,
		FreelancerPct:   uint8(pct),
		Disclaimer:      Disclaimer,
	}, nil
}

func fallbackAnalysis() *DisputeAnalysis {
	return &DisputeAnalysis{
		Recommendation:     "Автоматический анализ недоступен. Спор передан арбитру.",
		RequiresArbitrator: true,
		Disclaimer:         Disclaimer,
	}
}

const disputeSystemPrompt = `Ты помогаешь арбитру фриланс-платформы. Оцени спор и ответь строго JSON:
{"recommendation": "краткое обоснование", "confidence": 1-100,
 "proposed_outcome": "full_payment|partial_payment|full_refund|split", "freelancer_pct": 0-100}`

func disputePrompt(dc DisputeCase) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Спор #%d по задаче #%d\n", dc.DisputeID, dc.BountyID)
	fmt.Fprintf(&b, "Причина: %s, инициатор: %s\n", dc.Reason, dc.Initiator)
	fmt.Fprintf(&b, "Сумма в споре: %s\n", dc.LockedAmount)
	fmt.Fprintf(&b, "Хеш требований: %s\n", dc.RequirementsHash)
	if dc.WorkHash != "" {
		fmt.Fprintf(&b, "Хеш работы: %s, правок: %d из %d\n", dc.WorkHash, dc.RevisionCount, dc.MaxRevisions)
	}
	fmt.Fprintf(&b, "Хеш доказательств: %s\n", dc.EvidenceHash)
	fmt.Fprintf(&b, "Доля выигранных споров клиента: %d%%, балл исполнителя: %d/2000\n", dc.ClientWinRate, dc.FreelancerScore)
	return b.String()
}
