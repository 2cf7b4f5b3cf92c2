package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
)

func TestPause_ComponentBlocksOnlyItself(t *testing.T) {
	f := newFixture(t)
	b := f.createBounty(valueobject.Ether(1))

	err := f.sys.Pause.Pause(f.ctx, f.client, entity.ComponentRegistry)
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthorizedCaller))

	require.NoError(t, f.sys.Registry.Pause(f.ctx, f.admin))
	_, err = f.sys.Registry.ClaimBounty(f.ctx, f.freelancer, b.ID)
	require.True(t, apperror.IsKind(err, apperror.KindSystemPaused))

	// остальные компоненты работают
	f.setScore(f.freelancer, 500)

	require.NoError(t, f.sys.Registry.Unpause(f.ctx, f.admin))
	_, err = f.sys.Registry.ClaimBounty(f.ctx, f.freelancer, b.ID)
	assert.NoError(t, err)
}

func TestPauseAll_WithdrawStillWorks(t *testing.T) {
	f := newFixture(t)
	_, sub := f.reviewedSubmission(valueobject.Ether(1))
	_, err := f.sys.Submissions.AcceptSubmission(f.ctx, f.client, sub.ID, "")
	require.NoError(t, err)

	require.NoError(t, f.sys.Pause.PauseAll(f.ctx, f.admin, "инцидент"))
	status, err := f.sys.Pause.Status(f.ctx)
	require.NoError(t, err)
	assert.True(t, status.All)
	assert.Equal(t, "инцидент", status.Reason)
	for _, c := range entity.Components {
		assert.True(t, status.IsPaused(c), c)
	}

	_, err = f.sys.Registry.CreateBounty(f.ctx, f.client, f.terms(valueobject.Ether(1)))
	require.True(t, apperror.IsKind(err, apperror.KindSystemPaused))
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "инцидент", appErr.Details["reason"])

	w, err := f.sys.Escrow.Withdraw(f.ctx, f.freelancer, milli(900))
	require.NoError(t, err)
	assert.Equal(t, "0.9", valueobject.FormatEther(w.Amount))
	f.requireBalanced()

	require.NoError(t, f.sys.Pause.UnpauseAll(f.ctx, f.admin))
	f.createBounty(valueobject.Ether(1))
}

func TestPause_UnknownComponent(t *testing.T) {
	f := newFixture(t)
	err := f.sys.Pause.Pause(f.ctx, f.admin, entity.Component("treasury"))
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidInput))
}

func TestPause_EscrowBlocksDependentOperations(t *testing.T) {
	f := newFixture(t)
	_, sub := f.reviewedSubmission(valueobject.Ether(1))

	require.NoError(t, f.sys.Pause.Pause(f.ctx, f.admin, entity.ComponentEscrow))
	_, err := f.sys.Submissions.AcceptSubmission(f.ctx, f.client, sub.ID, "")
	require.True(t, apperror.IsKind(err, apperror.KindSystemPaused))

	// операция откатилась целиком
	got, err := f.sys.Submissions.GetSubmission(f.ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.SubmissionStatusUnderReview, got.Status)
	f.requireBalanced()
}
