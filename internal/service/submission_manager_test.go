package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
)

func TestEndToEnd_AcceptAndWithdraw(t *testing.T) {
	f := newFixture(t)
	f.setScore(f.freelancer, 2000)
	require.Equal(t, valueobject.TierPlatinum, f.reputation(f.freelancer).Tier)

	b, sub := f.reviewedSubmission(valueobject.Ether(1))
	_, err := f.sys.Submissions.AcceptSubmission(f.ctx, f.client, sub.ID, "0xfeed")
	require.NoError(t, err)

	slot, err := f.sys.Escrow.GetEscrowBalance(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, slot.Balance.Sign())
	assert.Equal(t, "0.9", valueobject.FormatEther(f.account(f.freelancer).Available))
	fees, err := f.sys.Escrow.PlatformFeeBalance(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.1", valueobject.FormatEther(fees))
	assert.Equal(t, valueobject.BountyStatusCompleted, f.bounty(b.ID).Status)
	f.requireBalanced()

	w, err := f.sys.Escrow.Withdraw(f.ctx, f.freelancer, milli(900))
	require.NoError(t, err)
	assert.Equal(t, "0.9", valueobject.FormatEther(w.Amount))
	assert.Zero(t, f.account(f.freelancer).Available.Sign())
	f.requireBalanced()

	rep := f.reputation(f.freelancer)
	assert.Equal(t, uint32(1), rep.CompletedBounties)
	assert.Equal(t, "0.9", valueobject.FormatEther(rep.TotalEarnings))

	count, err := f.sys.Registry.ActiveBountyCount(f.ctx, f.freelancer)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSubmitWork_Rules(t *testing.T) {
	f := newFixture(t)
	b := f.claimedBounty(valueobject.Ether(1))

	_, err := f.sys.Submissions.SubmitWork(f.ctx, f.other, b.ID, "0x3c01")
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthorizedCaller))

	_, err = f.sys.Submissions.SubmitWork(f.ctx, f.freelancer, b.ID, "")
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidInput))

	_, err = f.sys.Submissions.SubmitWork(f.ctx, f.freelancer, b.ID, "0x3c01")
	require.NoError(t, err)
	assert.Equal(t, valueobject.BountyStatusUnderReview, f.bounty(b.ID).Status)

	_, err = f.sys.Submissions.SubmitWork(f.ctx, f.freelancer, b.ID, "0x3c02")
	assert.True(t, apperror.IsKind(err, apperror.KindSubmissionAlreadyExists))
}

func TestAcceptSubmission_RequiresReview(t *testing.T) {
	f := newFixture(t)
	b := f.claimedBounty(valueobject.Ether(1))
	sub, err := f.sys.Submissions.SubmitWork(f.ctx, f.freelancer, b.ID, "0x3c01")
	require.NoError(t, err)

	_, err = f.sys.Submissions.AcceptSubmission(f.ctx, f.client, sub.ID, "")
	assert.True(t, apperror.IsKind(err, apperror.KindSubmissionNotUnderReview))

	_, err = f.sys.Submissions.StartReview(f.ctx, f.freelancer, sub.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindNotBountyClient))
}

func TestRejectSubmission_RevisionsThenFinalRejection(t *testing.T) {
	f := newFixture(t)
	b, sub := f.reviewedSubmission(valueobject.Ether(1))

	_, err := f.sys.Submissions.RejectSubmission(f.ctx, f.client, sub.ID, "")
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidFeedback))

	for i := 0; i < int(b.MaxRevisions); i++ {
		sub, err = f.sys.Submissions.RejectSubmission(f.ctx, f.client, sub.ID, "0xf1c5")
		require.NoError(t, err)
		assert.Equal(t, valueobject.SubmissionStatusRevisionRequested, sub.Status)

		_, err = f.sys.Submissions.ResubmitWork(f.ctx, f.other, sub.ID, "0x3c01")
		assert.True(t, apperror.IsKind(err, apperror.KindUnauthorizedCaller))

		sub, err = f.sys.Submissions.ResubmitWork(f.ctx, f.freelancer, sub.ID, "0x3c03")
		require.NoError(t, err)
		sub, err = f.sys.Submissions.StartReview(f.ctx, f.client, sub.ID)
		require.NoError(t, err)
	}

	sub, err = f.sys.Submissions.RejectSubmission(f.ctx, f.client, sub.ID, "0x0a0b")
	require.NoError(t, err)
	assert.Equal(t, valueobject.SubmissionStatusRejected, sub.Status)
	assert.Equal(t, uint8(2), sub.RevisionCount)
	// средства остаются в эскроу до спора
	assert.Equal(t, valueobject.BountyStatusUnderReview, f.bounty(b.ID).Status)
	f.requireBalanced()
}

func TestAutoAcceptExpiredReview(t *testing.T) {
	f := newFixture(t)
	_, sub := f.reviewedSubmission(valueobject.Ether(1))

	_, err := f.sys.Submissions.AutoAcceptExpiredReview(f.ctx, f.client, sub.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthorizedCaller))

	_, err = f.sys.Submissions.AutoAcceptExpiredReview(f.ctx, KeeperIdentity, sub.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindReviewPeriodActive))

	f.clock.Advance(3*day + 1)
	sub, err = f.sys.Submissions.AutoAcceptExpiredReview(f.ctx, KeeperIdentity, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.SubmissionStatusAccepted, sub.Status)
	assert.Equal(t, "0.9", valueobject.FormatEther(f.account(f.freelancer).Available))
	f.requireBalanced()
}

func TestReleasePayment_NoDoubleRelease(t *testing.T) {
	f := newFixture(t)
	b, sub := f.reviewedSubmission(valueobject.Ether(1))
	_, err := f.sys.Submissions.AcceptSubmission(f.ctx, f.client, sub.ID, "")
	require.NoError(t, err)

	_, err = f.sys.Escrow.ReleasePayment(f.ctx, SubmissionIdentity, b.ID, f.freelancer, valueobject.Ether(1))
	assert.True(t, apperror.IsKind(err, apperror.KindInsufficientEscrowBalance))

	_, err = f.sys.Submissions.AcceptSubmission(f.ctx, f.client, sub.ID, "")
	assert.True(t, apperror.IsKind(err, apperror.KindSubmissionNotUnderReview))
	assert.Equal(t, "0.9", valueobject.FormatEther(f.account(f.freelancer).Available))
	f.requireBalanced()
}

func TestGetSubmissionForBounty(t *testing.T) {
	f := newFixture(t)
	b := f.claimedBounty(valueobject.Ether(1))

	_, err := f.sys.Submissions.GetSubmissionForBounty(f.ctx, b.ID)
	assert.True(t, apperror.IsNotFound(err))

	sub, err := f.sys.Submissions.SubmitWork(f.ctx, f.freelancer, b.ID, "0x3c01")
	require.NoError(t, err)
	got, err := f.sys.Submissions.GetSubmissionForBounty(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)
}
