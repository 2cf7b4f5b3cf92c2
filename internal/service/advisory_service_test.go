package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/bounty-escrow/internal/ai"
	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
)

type mockAdvisor struct {
	mock.Mock
}

func (m *mockAdvisor) AnalyzeDispute(ctx context.Context, dc ai.DisputeCase) (*ai.DisputeAnalysis, error) {
	args := m.Called(ctx, dc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ai.DisputeAnalysis), args.Error(1)
}

func (m *mockAdvisor) RankFreelancers(ctx context.Context, requirementsHash string, candidates []ai.Candidate) (*ai.RankingResult, error) {
	args := m.Called(ctx, requirementsHash, candidates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ai.RankingResult), args.Error(1)
}

func TestAdvisory_AnalyzeDisputeStoresRecommendation(t *testing.T) {
	f := newFixture(t)
	_, d := f.openDispute(valueobject.Ether(1))

	advisor := new(mockAdvisor)
	advisor.On("AnalyzeDispute", mock.Anything, mock.MatchedBy(func(dc ai.DisputeCase) bool {
		return dc.DisputeID == d.ID && dc.WorkHash == "0x3c01" && dc.LockedAmount == "1"
	})).Return(&ai.DisputeAnalysis{
		Recommendation:  "работа выполнена",
		Confidence:      85,
		ProposedOutcome: "full_payment",
	}, nil)

	svc := NewAdvisoryService(f.sys, advisor)
	res, err := svc.AnalyzeDispute(f.ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, uint8(85), res.Confidence)

	d, err = f.sys.Disputes.GetDispute(f.ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, d.AI)
	assert.Equal(t, recommendationHash("работа выполнена"), d.AI.RecommendationHash)
	assert.Equal(t, valueobject.DisputeOutcomeFullPayment, d.AI.ProposedOutcome)
	// рекомендация не исполняется
	assert.Equal(t, valueobject.DisputeStatusOpen, d.Status)
	assert.Zero(t, f.account(f.freelancer).Available.Sign())
	advisor.AssertExpectations(t)
}

func TestAdvisory_FallbackIsNotStored(t *testing.T) {
	f := newFixture(t)
	_, d := f.openDispute(valueobject.Ether(1))

	advisor := new(mockAdvisor)
	advisor.On("AnalyzeDispute", mock.Anything, mock.Anything).
		Return(&ai.DisputeAnalysis{RequiresArbitrator: true}, errors.New("timeout"))

	res, err := NewAdvisoryService(f.sys, advisor).AnalyzeDispute(f.ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, res.RequiresArbitrator)

	d, err = f.sys.Disputes.GetDispute(f.ctx, d.ID)
	require.NoError(t, err)
	assert.Nil(t, d.AI)
}

func TestAdvisory_RankCandidatesFiltersIneligible(t *testing.T) {
	f := newFixture(t)
	f.setScore(f.freelancer, 1200)
	f.setScore(f.other, 300)

	terms := f.terms(valueobject.Ether(1))
	terms.MinRepRequired = 500
	b, err := f.sys.Registry.CreateBounty(f.ctx, f.client, terms)
	require.NoError(t, err)

	advisor := new(mockAdvisor)
	advisor.On("RankFreelancers", mock.Anything, "0x7e9a", mock.MatchedBy(func(c []ai.Candidate) bool {
		return len(c) == 1 && c[0].Address == f.freelancer.Hex() && c[0].Score == 1200
	})).Return(&ai.RankingResult{Rankings: []ai.Ranking{{Address: f.freelancer.Hex(), Score: 90}}}, nil)

	res, err := NewAdvisoryService(f.sys, advisor).RankCandidates(f.ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, res.Rankings, 1)
	advisor.AssertExpectations(t)
}
