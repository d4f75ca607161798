// Package apperror provides structured error handling for the engine.
// All business errors must use AppError so callers (POS, transfer UI,
// return UI) get machine-readable codes and consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"lotkeeper/internal/core/types"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Business rule violations (422)
	CodeBusinessRule = "BUSINESS_RULE_VIOLATION"
	// CodeInsufficientStock: total available across eligible batches is
	// below the requested quantity. Reflects real-world state; never
	// retried automatically.
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	// CodeInsufficientBatchQuantity: a single batch came up short at
	// decrement time (concurrent consumption). Recoverable by re-planning
	// the whole allocation.
	CodeInsufficientBatchQuantity = "INSUFFICIENT_BATCH_QUANTITY"
	// CodeDuplicateLot: a batch with the same (product, location, lot
	// reference) already exists with different cost/price/expiration.
	// Surfaced for manual resolution, never auto-resolved.
	CodeDuplicateLot           = "DUPLICATE_LOT"
	CodeTransferPartialFailure = "TRANSFER_PARTIAL_FAILURE"
	CodeTransferNotPending     = "TRANSFER_NOT_PENDING"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict    = "CONFLICT"
	CodeDuplicate   = "DUPLICATE_ENTRY"
	CodeIdempotency = "IDEMPOTENCY_CONFLICT"
)

// AppError is the standard error type for the engine.
// It implements the error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (batch ids, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInsufficientStock reports a real stock shortfall for a product at a
// location. requested/available are total quantities across eligible batches.
func NewInsufficientStock(productID, locationID string, requested, available types.Quantity) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"product_id":  productID,
			"location_id": locationID,
			"requested":   requested.String(),
			"available":   available.String(),
		},
	}
}

// NewInsufficientBatchQuantity reports a mid-transaction race on a single
// batch: the quantity observed at planning time was gone by decrement time.
func NewInsufficientBatchQuantity(batchID string, requested, available types.Quantity) *AppError {
	return &AppError{
		Code:       CodeInsufficientBatchQuantity,
		Message:    "Batch quantity exhausted by concurrent operation",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"batch_id":  batchID,
			"requested": requested.String(),
			"available": available.String(),
		},
	}
}

// NewDuplicateLot reports ambiguous provenance: same lot key, different
// identity attributes.
func NewDuplicateLot(productID, locationID, batchReference string) *AppError {
	return &AppError{
		Code:       CodeDuplicateLot,
		Message:    "Lot reference already exists with different cost/price/expiration",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"product_id":      productID,
			"location_id":     locationID,
			"batch_reference": batchReference,
		},
	}
}

// NewTransferPartialFailure reports that some lines of a partial-mode
// transfer failed while others committed.
func NewTransferPartialFailure(transferRef string, failedLines map[string]string) *AppError {
	return &AppError{
		Code:       CodeTransferPartialFailure,
		Message:    "One or more transfer lines failed",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"transfer_ref": transferRef,
			"failed_lines": failedLines,
		},
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified by another operation. Please refresh and try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// NewIdempotencyConflict creates error when operation is already in progress
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Operation already in progress or completed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyMismatch is returned when the same idempotency key is reused
// for a different request (different operation/body hash).
func NewIdempotencyMismatch(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Idempotency key mismatch",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsInsufficientStock checks if error is CodeInsufficientStock
func IsInsufficientStock(err error) bool {
	return hasCode(err, CodeInsufficientStock)
}

// IsInsufficientBatchQuantity checks if error is CodeInsufficientBatchQuantity
func IsInsufficientBatchQuantity(err error) bool {
	return hasCode(err, CodeInsufficientBatchQuantity)
}

// IsDuplicateLot checks if error is CodeDuplicateLot
func IsDuplicateLot(err error) bool {
	return hasCode(err, CodeDuplicateLot)
}

func hasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}
