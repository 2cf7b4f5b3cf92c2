package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReject_DerivesCodeAndStatus(t *testing.T) {
	cases := []struct {
		kind   Kind
		code   ErrorCode
		status int
	}{
		{KindUnauthorizedCaller, ErrCodeForbidden, http.StatusForbidden},
		{KindBountyNotOpen, ErrCodeConflict, http.StatusConflict},
		{KindInvalidDeadline, ErrCodeValidation, http.StatusBadRequest},
		{KindInsufficientBalance, ErrCodeEconomicSafety, http.StatusUnprocessableEntity},
		{KindInvalidSignature, ErrCodeCryptographic, http.StatusForbidden},
		{KindSystemPaused, ErrCodePaused, http.StatusServiceUnavailable},
		{Kind("something-else"), ErrCodeInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		err := Reject(tc.kind, "msg")
		assert.Equal(t, tc.code, err.Code, tc.kind)
		assert.Equal(t, tc.status, err.HTTPStatus, tc.kind)
	}
}

func TestKindOf_UnwrapsChain(t *testing.T) {
	base := Reject(KindInsufficientBalance, "недостаточно средств").
		With("requested", "10").
		With("available", "5")
	wrapped := fmt.Errorf("escrow: withdraw: %w", base)

	assert.Equal(t, KindInsufficientBalance, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindInsufficientBalance))
	assert.False(t, IsKind(nil, KindInsufficientBalance))
	assert.Equal(t, "5", base.Details["available"])
	assert.Contains(t, base.Error(), "insufficient-balance")
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.False(t, IsNotFound(errors.New("boom")))
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, ErrCodeDatabaseError, "не удалось сохранить")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus)
}
