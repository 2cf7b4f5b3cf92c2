package service

import (
	"context"
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/sha3"

	"github.com/ignatzorin/bounty-escrow/internal/ai"
	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-escrow/internal/ledger"
	"github.com/ignatzorin/bounty-escrow/internal/logger"
)

// Advisor это источник рекомендаций по спорам и подбору исполнителей.
type Advisor interface {
	AnalyzeDispute(ctx context.Context, dc ai.DisputeCase) (*ai.DisputeAnalysis, error)
	RankFreelancers(ctx context.Context, requirementsHash string, candidates []ai.Candidate) (*ai.RankingResult, error)
}

// AdvisoryService передаёт споры AI и записывает рекомендации от имени AI_SERVICE.
type AdvisoryService struct {
	sys     *System
	advisor Advisor
}

func NewAdvisoryService(sys *System, advisor Advisor) *AdvisoryService {
	return &AdvisoryService{sys: sys, advisor: advisor}
}

// AnalyzeDispute запрашивает рекомендацию и, если она есть, сохраняет её у спора.
// Ответ без рекомендации возвращается, но не записывается.
func (s *AdvisoryService) AnalyzeDispute(ctx context.Context, disputeID uint64) (*ai.DisputeAnalysis, error) {
	dc, err := s.disputeCase(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	analysis, err := s.advisor.AnalyzeDispute(ctx, dc)
	if err != nil && logger.Log != nil {
		logger.Log.WithFields(logrus.Fields{
			"dispute_id": disputeID,
			"error":      err.Error(),
		}).Warn("ai: анализ спора недоступен")
	}
	if analysis == nil || analysis.RequiresArbitrator {
		return analysis, nil
	}

	_, err = s.sys.Disputes.SubmitAIAnalysis(ctx, AdvisoryIdentity, disputeID, entity.AIAnalysis{
		RecommendationHash: recommendationHash(analysis.Recommendation),
		Confidence:         analysis.Confidence,
		ProposedOutcome:    valueobject.DisputeOutcome(analysis.ProposedOutcome),
	})
	if err != nil {
		return nil, err
	}
	return analysis, nil
}

// RankCandidates упорядочивает исполнителей, которые проходят порог репутации задачи.
func (s *AdvisoryService) RankCandidates(ctx context.Context, bountyID uint64) (*ai.RankingResult, error) {
	var (
		requirements string
		candidates   []ai.Candidate
	)
	err := s.sys.ledger.View(ctx, func(tx *ledger.Tx) error {
		bounty, err := tx.Bounty(bountyID)
		if err != nil {
			return err
		}
		requirements = bounty.RequirementsHash
		for _, rep := range tx.Reputations() {
			if rep.Address == bounty.Client || rep.Overall < bounty.MinRepRequired {
				continue
			}
			if isComponent(rep.Address) {
				continue
			}
			candidates = append(candidates, ai.Candidate{
				Address:           rep.Address.Hex(),
				Score:             rep.Overall,
				Tier:              uint8(rep.Tier),
				CompletedBounties: rep.CompletedBounties,
				WinRate:           rep.WinRate(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, err := s.advisor.RankFreelancers(ctx, requirements, candidates)
	if err != nil && logger.Log != nil {
		logger.Log.WithFields(logrus.Fields{
			"bounty_id": bountyID,
			"error":     err.Error(),
		}).Warn("ai: ранжирование по формуле")
	}
	return result, nil
}

func (s *AdvisoryService) disputeCase(ctx context.Context, disputeID uint64) (ai.DisputeCase, error) {
	var dc ai.DisputeCase
	err := s.sys.ledger.View(ctx, func(tx *ledger.Tx) error {
		d, err := tx.Dispute(disputeID)
		if err != nil {
			return err
		}
		b, err := tx.Bounty(d.BountyID)
		if err != nil {
			return err
		}
		dc = ai.DisputeCase{
			DisputeID:        d.ID,
			BountyID:         b.ID,
			Reason:           string(d.Reason),
			Initiator:        d.Initiator.Hex(),
			EvidenceHash:     d.EvidenceHash,
			RequirementsHash: b.RequirementsHash,
			LockedAmount:     valueobject.FormatEther(d.LockedAmount),
			MaxRevisions:     b.MaxRevisions,
			ClientWinRate:    reputationOf(tx, d.Client).WinRate(),
			FreelancerScore:  reputationOf(tx, d.Freelancer).Overall,
		}
		if d.SubmissionID != 0 {
			if sub, err := tx.Submission(d.SubmissionID); err == nil {
				dc.WorkHash = sub.WorkHash
				dc.RevisionCount = sub.RevisionCount
			}
		}
		return nil
	})
	return dc, err
}

func recommendationHash(text string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(text))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

func isComponent(addr common.Address) bool {
	_, ok := componentRoles[addr]
	return ok
}
