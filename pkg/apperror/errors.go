package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Code extracts the AppError code from err, or "" when err is not an AppError.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given AppError code.
func IsCode(err error, code string) bool {
	return Code(err) == code
}

// Error codes grouped by concern.
const (
	CodeValidation          = "VAL_001"
	CodeInsufficientBalance = "LED_001"
	CodeWalletNotFound      = "LED_002"
	CodeWalletFrozen        = "LED_003"
	CodeDuplicateEvent      = "LED_004"
	CodeEntryNotFound       = "LED_005"
	CodeEntryStateConflict  = "LED_006"
	CodeInvariantViolation  = "LED_007"
	CodeInvalidPin          = "TRF_001"
	CodeProviderTransient   = "TRF_002"
	CodeProviderRejected    = "TRF_003"
	CodeInvalidSignature    = "WHK_001"
	CodeEventRejected       = "WHK_002"
	CodeInternal            = "SYS_001"
)

// ---- Validation (VAL) ----

// Validation returns a rejected-immediately malformed-input error.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

// ---- Ledger (LED) ----

func ErrInsufficientBalance() *AppError {
	return New(CodeInsufficientBalance, "Insufficient wallet balance", http.StatusPaymentRequired)
}

func ErrWalletNotFound() *AppError {
	return New(CodeWalletNotFound, "Wallet not found", http.StatusNotFound)
}

func ErrWalletFrozen() *AppError {
	return New(CodeWalletFrozen, "Wallet is frozen", http.StatusForbidden)
}

// ErrDuplicateEvent marks an idempotent no-op: an entry for the same
// idempotency key already exists. Callers treat it as success.
func ErrDuplicateEvent(key string) *AppError {
	return New(CodeDuplicateEvent, fmt.Sprintf("Duplicate event: %s", key), http.StatusConflict)
}

func ErrEntryNotFound() *AppError {
	return New(CodeEntryNotFound, "Ledger entry not found", http.StatusNotFound)
}

// ErrEntryStateConflict marks an operation illegal for the entry's current
// state (e.g. reversing a credit, applying a reversed debit).
func ErrEntryStateConflict(detail string) *AppError {
	return New(CodeEntryStateConflict, fmt.Sprintf("Ledger entry state conflict: %s", detail), http.StatusUnprocessableEntity)
}

// ErrInvariantViolation flags a balance/ledger mismatch. Never auto-silenced;
// always surfaced to reconciliation and alerting.
func ErrInvariantViolation(detail string) *AppError {
	return New(CodeInvariantViolation, fmt.Sprintf("Ledger invariant violated: %s", detail), http.StatusInternalServerError)
}

// ---- Transfers (TRF) ----

func ErrInvalidPin() *AppError {
	return New(CodeInvalidPin, "Invalid transaction PIN", http.StatusUnauthorized)
}

// ErrProviderTransient marks a network/5xx provider failure; retried with
// backoff and failover.
func ErrProviderTransient(provider string, err error) *AppError {
	return Wrap(CodeProviderTransient, fmt.Sprintf("Provider %s unavailable", provider), http.StatusServiceUnavailable, err)
}

// ErrProviderRejected marks a definitive provider business failure; triggers
// reversal, never retried.
func ErrProviderRejected(provider string, reason string) *AppError {
	return New(CodeProviderRejected, fmt.Sprintf("Provider %s rejected transfer: %s", provider, reason), http.StatusUnprocessableEntity)
}

// ---- Webhooks (WHK) ----

func ErrInvalidSignature() *AppError {
	return New(CodeInvalidSignature, "Invalid webhook signature", http.StatusUnauthorized)
}

// ErrEventRejected carries the reason a webhook delivery was terminally
// refused; the message doubles as the stored reject reason.
func ErrEventRejected(reason string) *AppError {
	return New(CodeEventRejected, reason, http.StatusUnprocessableEntity)
}

// ---- System (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}
