// Package errors provides the categorized error taxonomy for the settlement engine.
//
// Errors fall into three buckets that the state machine treats differently:
// fatal errors (configuration or data problems a blind retry cannot fix),
// retryable errors (transient collaborator or infrastructure failures), and
// claim-local errors (invalid proofs, which never affect round state).
package errors

import (
	"fmt"
	"net/http"

	"github.com/launchpad-settlement/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryFatal represents non-retryable configuration or data errors
	CategoryFatal ErrorCategory = "fatal"
	// CategoryValidation represents input validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryCollaborator represents external collaborator call failures
	CategoryCollaborator ErrorCategory = "collaborator"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents conflict errors
	CategoryConflict ErrorCategory = "conflict"
	// CategoryClaim represents per-claim proof errors, local to one claimant
	CategoryClaim ErrorCategory = "claim"
)

// Error codes surfaced to operators and dashboards.
const (
	CodeInsufficientTokenBudget = "INSUFFICIENT_TOKEN_BUDGET"
	CodeEscrowIntegrity         = "ESCROW_INTEGRITY"
	CodeArithmeticOverflow      = "ARITHMETIC_OVERFLOW"
	CodeDivisionByZero          = "DIVISION_BY_ZERO"
	CodeInvalidStatus           = "INVALID_STATUS"
	CodeProofInvalid            = "PROOF_INVALID"
	CodeCollaboratorError       = "COLLABORATOR_ERROR"
	CodeDatabaseError           = "DATABASE_ERROR"
	CodeCacheError              = "CACHE_ERROR"
	CodeNotFound                = "NOT_FOUND"
	CodeInvalidParameter        = "INVALID_PARAMETER"
	CodeUnauthorizedFinalizer   = "UNAUTHORIZED_FINALIZER"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Fatal / non-retryable errors

// NewInsufficientTokenBudgetError reports that the deposited sale-token balance
// cannot cover allocations, liquidity and burn. No partial transfer is attempted.
func NewInsufficientTokenBudgetError(required, available string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryFatal,
		StatusCode: http.StatusConflict,
		Code:       CodeInsufficientTokenBudget,
		Message:    "deposited token balance does not cover allocations, liquidity and burn",
		Details: map[string]interface{}{
			"required":  required,
			"available": available,
		},
	}
}

// NewEscrowIntegrityError reports a deposit/balance mismatch in the escrow store.
// Not retried automatically; an operator must investigate.
func NewEscrowIntegrityError(projectID string, expected, observed string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryFatal,
		StatusCode: http.StatusConflict,
		Code:       CodeEscrowIntegrity,
		Message:    fmt.Sprintf("escrow balance delta mismatch for project %s", projectID),
		Details: map[string]interface{}{
			"projectId": projectID,
			"expected":  expected,
			"observed":  observed,
		},
	}
}

// NewArithmeticOverflowError reports an amount operation exceeding 256 bits.
func NewArithmeticOverflowError(operation string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryFatal,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeArithmeticOverflow,
		Message:    fmt.Sprintf("arithmetic overflow during %s", operation),
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewDivisionByZeroError reports a proportional computation against a zero total.
func NewDivisionByZeroError(operation string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryFatal,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeDivisionByZero,
		Message:    fmt.Sprintf("division by zero during %s", operation),
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInvalidStatusError reports an operation attempted from the wrong round
// state. A conflict, not a fatal error: another writer may have legitimately
// moved the round first.
func NewInvalidStatusError(roundID string, have types.RoundStatus, operation string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       CodeInvalidStatus,
		Message:    fmt.Sprintf("operation %s not valid for round %s in status %s", operation, roundID, have),
		Details: map[string]interface{}{
			"roundId":   roundID,
			"status":    string(have),
			"operation": operation,
		},
	}
}

// NewUnauthorizedFinalizerError reports a finalize attempt by a non-finalizer.
func NewUnauthorizedFinalizerError(caller string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryFatal,
		StatusCode: http.StatusForbidden,
		Code:       CodeUnauthorizedFinalizer,
		Message:    fmt.Sprintf("caller %s is not the authorized finalizer", caller),
		Details: map[string]interface{}{
			"caller": caller,
		},
	}
}

// Validation errors

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidParameter,
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// Retryable errors

// NewCollaboratorError wraps a failed external collaborator call. The phase flag
// stays untouched, so a subsequent finalize call resumes at this phase.
func NewCollaboratorError(collaborator string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCollaborator,
		StatusCode: http.StatusBadGateway,
		Code:       CodeCollaboratorError,
		Message:    fmt.Sprintf("collaborator call failed: %s", collaborator),
		Cause:      cause,
		Details: map[string]interface{}{
			"collaborator": collaborator,
		},
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeDatabaseError,
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeCacheError,
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// Claim-local errors

// NewProofInvalidError reports a failed Merkle proof verification. Local to a
// single claim attempt; never aborts unrelated claims or round state.
func NewProofInvalidError(beneficiary string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryClaim,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodeProofInvalid,
		Message:    fmt.Sprintf("allocation proof invalid for beneficiary %s", beneficiary),
		Details: map[string]interface{}{
			"beneficiary": beneficiary,
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}
	if catErr, ok := err.(*CategorizedError); ok {
		return catErr
	}
	if svcErr, ok := err.(*types.ServiceError); ok {
		return &CategorizedError{
			Category:   CategoryValidation,
			StatusCode: http.StatusBadRequest,
			Code:       svcErr.Code,
			Message:    svcErr.Message,
			Details:    svcErr.Details,
		}
	}
	return &CategorizedError{
		Category:   CategoryCollaborator,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    "unexpected error",
		Cause:      err,
	}
}

// IsRetryable determines if an error is retryable. Collaborator, database and
// cache failures are retryable by construction: the phase simply did not advance.
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	switch catErr.Category {
	case CategoryCollaborator, CategoryDatabase, CategoryCache:
		return true
	default:
		return false
	}
}

// IsFatal determines if an error signals a configuration or data problem that a
// blind retry cannot fix.
func IsFatal(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryFatal
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}
