package payfac

import "errors"

// Sentinel errors for payment request operations.
var (
	// ErrValidation indicates malformed create or verify input.
	// Not retryable; the caller must fix the request.
	ErrValidation = errors.New("payfac: invalid request input")

	// ErrNotFound indicates an unknown payment request id.
	ErrNotFound = errors.New("payfac: payment request not found")

	// ErrExpired indicates the request deadline passed. The client must
	// create a new request.
	ErrExpired = errors.New("payfac: payment request expired")

	// ErrVerificationFailed indicates the ledger data contradicts the
	// request terms. Terminal for this request id.
	ErrVerificationFailed = errors.New("payfac: payment verification failed")

	// ErrConflict indicates a settlement reference that differs from the
	// one already accepted for a verified request.
	ErrConflict = errors.New("payfac: conflicting settlement reference")

	// ErrChainUnavailable indicates a transient ledger adapter fault.
	// Retryable with backoff.
	ErrChainUnavailable = errors.New("payfac: ledger adapter unavailable")

	// ErrRateLimited indicates the caller exceeded a request quota.
	ErrRateLimited = errors.New("payfac: rate limit exceeded")
)

// ErrorCode identifies error kinds for programmatic handling. Codes are
// stable across releases and safe to expose to clients; they never carry
// ledger-internal detail.
type ErrorCode string

const (
	CodeValidation         ErrorCode = "VALIDATION_ERROR"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeExpired            ErrorCode = "EXPIRED"
	CodeVerificationFailed ErrorCode = "VERIFICATION_FAILED"
	CodeConflict           ErrorCode = "CONFLICT"
	CodeChainUnavailable   ErrorCode = "CHAIN_UNAVAILABLE"
	CodeRateLimited        ErrorCode = "RATE_LIMITED"
	CodeInternal           ErrorCode = "INTERNAL"
)

// Error provides structured error information for payment operations.
type Error struct {
	// Code is the stable error code for programmatic handling.
	Code ErrorCode

	// Message is the human-readable error message.
	Message string

	// Reason is a short diagnostic for verification failures
	// (e.g., "memo_mismatch"). It never echoes raw ledger responses.
	Reason string

	// Err is the underlying sentinel error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Reason != "" {
		return e.Message + " (" + e.Reason + ")"
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a structured Error with the given code and message.
func NewError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithReason attaches a short diagnostic reason code.
func (e *Error) WithReason(reason string) *Error {
	e.Reason = reason
	return e
}

// CodeOf extracts the ErrorCode from an error chain, mapping bare
// sentinels to their codes and anything unknown to CodeInternal.
func CodeOf(err error) ErrorCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrExpired):
		return CodeExpired
	case errors.Is(err, ErrVerificationFailed):
		return CodeVerificationFailed
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrChainUnavailable):
		return CodeChainUnavailable
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	}
	return CodeInternal
}
