package service

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
)

func TestCreateBounty_DepositsAndSnapshotsFee(t *testing.T) {
	f := newFixture(t)
	b := f.createBounty(valueobject.Ether(2))

	assert.Equal(t, uint64(1), b.ID)
	assert.Equal(t, valueobject.BountyStatusOpen, b.Status)
	assert.Equal(t, uint16(1000), b.FeeBps)
	assert.Equal(t, "0.2", valueobject.FormatEther(b.PlatformFee))
	assert.Equal(t, entity.DefaultReviewPeriod, b.ReviewPeriod)

	slot, err := f.sys.Escrow.GetEscrowBalance(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "2", valueobject.FormatEther(slot.Balance))
	assert.Equal(t, "2", valueobject.FormatEther(f.account(f.client).TotalDeposited))
	f.requireBalanced()

	// новая комиссия не меняет уже созданные задачи
	require.NoError(t, f.sys.Escrow.SetPlatformFee(f.ctx, f.admin, 500))
	assert.Equal(t, uint16(1000), f.bounty(b.ID).FeeBps)
	assert.Equal(t, uint16(500), f.createBounty(valueobject.Ether(1)).FeeBps)
}

func TestCreateBounty_Validation(t *testing.T) {
	f := newFixture(t)

	terms := f.terms(valueobject.Ether(1))
	terms.Deadline = f.clock.Now()
	_, err := f.sys.Registry.CreateBounty(f.ctx, f.client, terms)
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidDeadline))

	_, err = f.sys.Registry.CreateBounty(f.ctx, f.client, f.terms(milli(9)))
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidEscrowAmount))

	terms = f.terms(valueobject.Ether(1))
	terms.MinRepRequired = 2001
	_, err = f.sys.Registry.CreateBounty(f.ctx, f.client, terms)
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidMinRepRequirement))

	// отклонённые задачи не расходуют идентификаторы
	assert.Equal(t, uint64(1), f.createBounty(valueobject.Ether(1)).ID)
	f.requireBalanced()
}

func TestClaimBounty_ReputationGate(t *testing.T) {
	f := newFixture(t)
	terms := f.terms(valueobject.Ether(1))
	terms.MinRepRequired = 1000
	b, err := f.sys.Registry.CreateBounty(f.ctx, f.client, terms)
	require.NoError(t, err)

	_, err = f.sys.Registry.ClaimBounty(f.ctx, f.client, b.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthorizedCaller))

	f.setScore(f.freelancer, 900)
	_, err = f.sys.Registry.ClaimBounty(f.ctx, f.freelancer, b.ID)
	require.True(t, apperror.IsKind(err, apperror.KindInsufficientReputation))
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, uint16(1000), appErr.Details["required"])
	assert.Equal(t, uint16(900), appErr.Details["actual"])

	f.clock.Advance(time.Hour)
	f.setScore(f.freelancer, 1000)
	b, err = f.sys.Registry.ClaimBounty(f.ctx, f.freelancer, b.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.BountyStatusInProgress, b.Status)
	assert.Equal(t, f.freelancer, b.ClaimedBy)

	_, err = f.sys.Registry.ClaimBounty(f.ctx, f.other, b.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindBountyNotOpen))
}

func TestClaimBounty_BronzeCapacity(t *testing.T) {
	f := newFixture(t)
	f.claimedBounty(valueobject.Ether(1))
	f.claimedBounty(valueobject.Ether(1))

	third := f.createBounty(valueobject.Ether(1))
	_, err := f.sys.Registry.ClaimBounty(f.ctx, f.freelancer, third.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindCapacityLimitReached))

	count, err := f.sys.Registry.ActiveBountyCount(f.ctx, f.freelancer)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), count)
}

func TestClaimBounty_TierValueLimit(t *testing.T) {
	f := newFixture(t)
	large := f.createBounty(valueobject.Ether(501))

	_, err := f.sys.Registry.ClaimBounty(f.ctx, f.freelancer, large.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindBountyValueExceedsTierLimit))

	f.setScore(f.freelancer, 800)
	_, err = f.sys.Registry.ClaimBounty(f.ctx, f.freelancer, large.ID)
	assert.NoError(t, err)
}

func TestClaimBounty_TierGates(t *testing.T) {
	tiers := []struct {
		tier  valueobject.Tier
		score uint16
	}{
		{valueobject.TierBronze, 0},
		{valueobject.TierSilver, 800},
		{valueobject.TierGold, 1400},
		{valueobject.TierPlatinum, 1800},
	}
	gates := []struct {
		name     string
		minRep   func(score uint16) uint16
		active   func(limit uint32) uint32
		overCap  bool
		wantKind apperror.Kind
	}{
		{name: "all checks pass"},
		{name: "score below requirement", minRep: func(score uint16) uint16 { return score + 1 }, wantKind: apperror.KindInsufficientReputation},
		{name: "capacity reached", active: func(limit uint32) uint32 { return limit }, wantKind: apperror.KindCapacityLimitReached},
		{name: "value above tier cap", overCap: true, wantKind: apperror.KindBountyValueExceedsTierLimit},
	}

	for _, tt := range tiers {
		for _, gate := range gates {
			if gate.overCap && tt.tier.MaxBountyValue() == nil {
				continue
			}
			t.Run(tt.tier.String()+"/"+gate.name, func(t *testing.T) {
				f := newFixture(t)
				if tt.score > 0 {
					f.setScore(f.freelancer, tt.score)
				}
				require.Equal(t, tt.tier, f.reputation(f.freelancer).Tier)

				limit := tt.tier.MaxConcurrent()
				active := limit - 1
				if gate.active != nil {
					active = gate.active(limit)
				}
				for i := uint32(0); i < active; i++ {
					f.claimedBounty(valueobject.Ether(1))
				}

				// базовая задача стоит ровно предел уровня и требует ровно текущий балл
				value := valueobject.Ether(100000)
				if limitValue := tt.tier.MaxBountyValue(); limitValue != nil {
					value = new(big.Int).Set(limitValue)
				}
				if gate.overCap {
					value.Add(value, big.NewInt(1))
				}
				terms := f.terms(value)
				terms.MinRepRequired = tt.score
				if gate.minRep != nil {
					terms.MinRepRequired = gate.minRep(tt.score)
				}
				b, err := f.sys.Registry.CreateBounty(f.ctx, f.client, terms)
				require.NoError(t, err)

				_, err = f.sys.Registry.ClaimBounty(f.ctx, f.freelancer, b.ID)
				if gate.wantKind == "" {
					require.NoError(t, err)
					assert.Equal(t, f.freelancer, f.bounty(b.ID).ClaimedBy)
					active++
				} else {
					assert.True(t, apperror.IsKind(err, gate.wantKind), "err: %v", err)
					assert.Equal(t, valueobject.BountyStatusOpen, f.bounty(b.ID).Status)
				}

				count, err := f.sys.Registry.ActiveBountyCount(f.ctx, f.freelancer)
				require.NoError(t, err)
				assert.Equal(t, active, count)
				f.requireBalanced()
			})
		}
	}
}

func TestCancellation_ModeratorApproves(t *testing.T) {
	f := newFixture(t)
	b := f.claimedBounty(valueobject.Ether(1))

	_, err := f.sys.Registry.RequestCancellation(f.ctx, f.freelancer, b.ID, "0x5a17")
	assert.True(t, apperror.IsKind(err, apperror.KindNotBountyClient))

	req, err := f.sys.Registry.RequestCancellation(f.ctx, f.client, b.ID, "0x5a17")
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(entity.CancellationWindow), req.ReviewDeadline)

	_, err = f.sys.Registry.RequestCancellation(f.ctx, f.client, b.ID, "0xa9a1")
	assert.True(t, apperror.IsKind(err, apperror.KindCancellationAlreadyRequested))

	_, err = f.sys.Registry.ApproveCancellation(f.ctx, f.client, b.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthorizedCaller))

	b, err = f.sys.Registry.ApproveCancellation(f.ctx, f.moderator, b.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.BountyStatusCancelled, b.Status)
	assert.Equal(t, "1", valueobject.FormatEther(f.account(f.client).Available))

	count, err := f.sys.Registry.ActiveBountyCount(f.ctx, f.freelancer)
	require.NoError(t, err)
	assert.Zero(t, count)

	req, err = f.sys.Registry.GetCancellation(f.ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, req.Processed)
	assert.True(t, req.Approved)
	assert.Equal(t, f.moderator, req.ProcessedBy)
	f.requireBalanced()
}

func TestCancellation_RejectedThenRequestedAgain(t *testing.T) {
	f := newFixture(t)
	b := f.createBounty(valueobject.Ether(1))

	_, err := f.sys.Registry.RequestCancellation(f.ctx, f.client, b.ID, "0x5a17")
	require.NoError(t, err)
	require.NoError(t, f.sys.Registry.RejectCancellation(f.ctx, f.moderator, b.ID))
	assert.Equal(t, valueobject.BountyStatusOpen, f.bounty(b.ID).Status)

	err = f.sys.Registry.RejectCancellation(f.ctx, f.moderator, b.ID)
	assert.True(t, apperror.IsNotFound(err))

	_, err = f.sys.Registry.RequestCancellation(f.ctx, f.client, b.ID, "0xa9a1")
	assert.NoError(t, err)
}

func TestCancellation_BlockedBySubmission(t *testing.T) {
	f := newFixture(t)
	b := f.claimedBounty(valueobject.Ether(1))
	_, err := f.sys.Registry.RequestCancellation(f.ctx, f.client, b.ID, "0x5a17")
	require.NoError(t, err)

	_, err = f.sys.Submissions.SubmitWork(f.ctx, f.freelancer, b.ID, "0x3c01")
	require.NoError(t, err)

	// сдача работы закрывает запрос без одобрения
	req, err := f.sys.Registry.GetCancellation(f.ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, req.IsLive())
	assert.False(t, req.Approved)
	assert.Equal(t, SubmissionIdentity, req.ProcessedBy)

	_, err = f.sys.Registry.ApproveCancellation(f.ctx, f.moderator, b.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
	f.clock.Advance(entity.CancellationWindow + time.Second)
	_, err = f.sys.Registry.ProcessExpiredCancellation(f.ctx, f.other, b.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
	assert.Equal(t, valueobject.BountyStatusUnderReview, f.bounty(b.ID).Status)

	other := f.claimedBounty(valueobject.Ether(1))
	_, err = f.sys.Submissions.SubmitWork(f.ctx, f.freelancer, other.ID, "0x3c01")
	require.NoError(t, err)
	_, err = f.sys.Registry.RequestCancellation(f.ctx, f.client, other.ID, "0x5a17")
	assert.True(t, apperror.IsKind(err, apperror.KindCannotCancelWithSubmissions))
	f.requireBalanced()
}

func TestCancellation_ClosedByDispute(t *testing.T) {
	f := newFixture(t)
	b := f.claimedBounty(valueobject.Ether(1))
	_, err := f.sys.Registry.RequestCancellation(f.ctx, f.client, b.ID, "0x5a17")
	require.NoError(t, err)

	_, err = f.sys.Disputes.InitiateDispute(f.ctx, f.freelancer, DisputeRequest{BountyID: b.ID, Reason: valueobject.DisputeReasonNonPayment})
	require.NoError(t, err)

	req, err := f.sys.Registry.GetCancellation(f.ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, req.IsLive())
	assert.Equal(t, DisputeIdentity, req.ProcessedBy)
	f.requireBalanced()
}

func TestProcessExpiredCancellation(t *testing.T) {
	f := newFixture(t)
	b := f.createBounty(valueobject.Ether(1))
	_, err := f.sys.Registry.RequestCancellation(f.ctx, f.client, b.ID, "0x5a17")
	require.NoError(t, err)

	_, err = f.sys.Registry.ProcessExpiredCancellation(f.ctx, f.other, b.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindCancellationWindowActive))

	f.clock.Advance(entity.CancellationWindow + time.Second)
	b, err = f.sys.Registry.ProcessExpiredCancellation(f.ctx, f.other, b.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.BountyStatusCancelled, b.Status)
	assert.Equal(t, "1", valueobject.FormatEther(f.account(f.client).Available))
	f.requireBalanced()
}

func TestExpireBounty(t *testing.T) {
	f := newFixture(t)
	b := f.claimedBounty(valueobject.Ether(1))
	_, err := f.sys.Registry.RequestCancellation(f.ctx, f.client, b.ID, "0x5a17")
	require.NoError(t, err)

	_, err = f.sys.Registry.ExpireBounty(f.ctx, KeeperIdentity, b.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindBountyNotExpired))

	f.clock.Advance(31 * day)
	_, err = f.sys.Registry.ExpireBounty(f.ctx, f.client, b.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthorizedCaller))

	b, err = f.sys.Registry.ExpireBounty(f.ctx, KeeperIdentity, b.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.BountyStatusExpired, b.Status)
	assert.Equal(t, "1", valueobject.FormatEther(f.account(f.client).Available))

	req, err := f.sys.Registry.GetCancellation(f.ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, req.IsLive())
	assert.False(t, req.Approved)
	f.requireBalanced()
}

func TestListBounties_Filter(t *testing.T) {
	f := newFixture(t)
	f.createBounty(valueobject.Ether(1))
	claimed := f.claimedBounty(valueobject.Ether(1))

	all, err := f.sys.Registry.ListBounties(f.ctx, BountyFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	open, err := f.sys.Registry.ListBounties(f.ctx, BountyFilter{Status: valueobject.BountyStatusOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.NotEqual(t, claimed.ID, open[0].ID)

	mine, err := f.sys.Registry.ListBounties(f.ctx, BountyFilter{Freelancer: f.freelancer})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, claimed.ID, mine[0].ID)

	_, err = f.sys.Registry.GetBounty(f.ctx, 99)
	assert.True(t, apperror.IsNotFound(err))
}
