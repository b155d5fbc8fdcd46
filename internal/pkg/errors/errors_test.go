package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := New(KindRateLimited, "explorer.account.balance", errors.New("429"))
	assert.Equal(t, KindRateLimited, KindOf(err))

	wrapped := fmt.Errorf("cycle aborted: %w", err)
	assert.Equal(t, KindRateLimited, KindOf(wrapped), "kind survives wrapping")

	assert.Equal(t, KindTransient, KindOf(errors.New("plain")), "unclassified errors retry conservatively")
}

func TestIsNoData(t *testing.T) {
	assert.True(t, IsNoData(Newf(KindNoData, "op", "no records found")))
	assert.False(t, IsNoData(Newf(KindTransient, "op", "boom")))
	assert.False(t, IsNoData(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Newf(KindRateLimited, "op", "429")))
	assert.True(t, IsRetryable(Newf(KindTransient, "op", "502")))
	assert.True(t, IsRetryable(Newf(KindShapeMismatch, "op", "short row")))
	assert.False(t, IsRetryable(Newf(KindPermanent, "op", "403")))
	assert.False(t, IsRetryable(Newf(KindNoData, "op", "empty")))
	assert.False(t, IsRetryable(Newf(KindFatal, "op", "db gone")))
}

func TestPipelineErrorMessage(t *testing.T) {
	err := New(KindPermanent, "rpc.eth_getLogs", errors.New("unauthorized"))
	assert.Equal(t, "rpc.eth_getLogs: permanent: unauthorized", err.Error())
	assert.Equal(t, "unauthorized", errors.Unwrap(err).Error())
}

func TestAsAPIError(t *testing.T) {
	assert.Equal(t, ErrNotFound, AsAPIError(ErrNotFound))
	assert.Equal(t, ErrInternal, AsAPIError(errors.New("anything else")))

	ve := NewValidationError("limit", "must be positive")
	assert.Equal(t, 400, ve.StatusCode)
	assert.Equal(t, "validation_error", ve.Code)
}

func TestWithMessageCopies(t *testing.T) {
	custom := ErrBadRequest.WithMessage("limit out of range")
	assert.Equal(t, "limit out of range", custom.Message)
	assert.Equal(t, ErrBadRequest.Code, custom.Code)
	assert.Equal(t, "Invalid request", ErrBadRequest.Message, "shared sentinel must not mutate")
}
