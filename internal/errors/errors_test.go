package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchpad-settlement/internal/types"
)

func TestCategorizePassesThroughCategorizedErrors(t *testing.T) {
	orig := NewCollaboratorError("escrow store", fmt.Errorf("rpc timeout"))
	catErr := Categorize(orig)
	assert.Same(t, orig, catErr)
}

func TestCategorizeServiceError(t *testing.T) {
	svcErr := &types.ServiceError{Code: "INVALID_FEE_POLICY", Message: "fee sub-buckets do not sum to total bps"}
	catErr := Categorize(svcErr)
	require.NotNil(t, catErr)
	assert.Equal(t, CategoryValidation, catErr.Category)
	assert.Equal(t, "INVALID_FEE_POLICY", catErr.Code)
	assert.Equal(t, http.StatusBadRequest, catErr.StatusCode)
}

func TestCategorizeUnknownErrorAssumesTransient(t *testing.T) {
	catErr := Categorize(fmt.Errorf("connection reset"))
	require.NotNil(t, catErr)
	assert.Equal(t, CategoryCollaborator, catErr.Category)
	assert.True(t, IsRetryable(catErr))
}

func TestCategorizeNil(t *testing.T) {
	assert.Nil(t, Categorize(nil))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"collaborator", NewCollaboratorError("lock vault", fmt.Errorf("timeout")), true},
		{"database", NewDatabaseError("upsert fee split", fmt.Errorf("connection refused")), true},
		{"cache", NewCacheError("set round", fmt.Errorf("connection refused")), true},
		{"plain error", fmt.Errorf("socket closed"), true},

		{"token budget", NewInsufficientTokenBudgetError("800000", "500000"), false},
		{"escrow integrity", NewEscrowIntegrityError("round-1", "1000", "999"), false},
		{"overflow", NewArithmeticOverflowError("add"), false},
		{"division by zero", NewDivisionByZeroError("split"), false},
		{"invalid status", NewInvalidStatusError("round-1", types.RoundActive, "finalize"), false},
		{"unauthorized", NewUnauthorizedFinalizerError("0xff"), false},
		{"invalid parameter", NewInvalidParameterError("amount", "negative"), false},
		{"not found", NewNotFoundError("round", "round-1"), false},
		{"proof invalid", NewProofInvalidError("0x01"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestInvalidStatusIsConflict(t *testing.T) {
	err := NewInvalidStatusError("round-1", types.RoundActive, "finalize")
	assert.Equal(t, CategoryConflict, err.Category)
	assert.Equal(t, http.StatusConflict, err.StatusCode)
	assert.False(t, IsRetryable(err))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(NewInsufficientTokenBudgetError("2", "1")))
	assert.True(t, IsFatal(NewUnauthorizedFinalizerError("0xff")))
	assert.False(t, IsFatal(NewCollaboratorError("venue", fmt.Errorf("timeout"))))
	assert.False(t, IsFatal(NewProofInvalidError("0x01")))
	assert.False(t, IsFatal(nil))
}

func TestGetHTTPStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, GetHTTPStatusCode(NewNotFoundError("round", "x")))
	assert.Equal(t, http.StatusForbidden, GetHTTPStatusCode(NewUnauthorizedFinalizerError("0xff")))
	assert.Equal(t, http.StatusConflict, GetHTTPStatusCode(NewInvalidStatusError("x", types.RoundEnded, "cancel")))
	assert.Equal(t, http.StatusBadGateway, GetHTTPStatusCode(NewCollaboratorError("venue", nil)))
	assert.Equal(t, http.StatusUnprocessableEntity, GetHTTPStatusCode(NewProofInvalidError("0x01")))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := NewCollaboratorError("escrow store", fmt.Errorf("rpc timeout"))
	assert.Contains(t, err.Error(), "rpc timeout")
	assert.Contains(t, err.Error(), CodeCollaboratorError)

	require.Error(t, err.Unwrap())
}
