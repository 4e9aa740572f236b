package goidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrorCodeAccessDenied           ErrorCode = "access_denied"
	ErrorCodeInvalidClient          ErrorCode = "invalid_client"
	ErrorCodeInvalidGrant           ErrorCode = "invalid_grant"
	ErrorCodeInvalidRequest         ErrorCode = "invalid_request"
	ErrorCodeUnauthorizedClient     ErrorCode = "unauthorized_client"
	ErrorCodeInvalidScope           ErrorCode = "invalid_scope"
	ErrorCodeUnsupportedGrantType   ErrorCode = "unsupported_grant_type"
	ErrorCodeInvalidToken           ErrorCode = "invalid_token"
	ErrorCodeInternalError          ErrorCode = "internal_error"
	ErrorCodeTemporarilyUnavailable ErrorCode = "temporarily_unavailable"
	ErrorCodeAuthPending            ErrorCode = "authorization_pending"
	ErrorCodeSlowDown               ErrorCode = "slow_down"
	ErrorCodeExpiredToken           ErrorCode = "expired_token"
	ErrorCodeInvalidUserCode        ErrorCode = "invalid_user_code"
	ErrorCodeNeedInfo               ErrorCode = "need_info"
	ErrorCodeRequestSubmitted       ErrorCode = "request_submitted"
	ErrorCodeInvalidResourceID      ErrorCode = "invalid_resource_id"
)

func (c ErrorCode) StatusCode() int {
	switch c {
	case ErrorCodeAccessDenied, ErrorCodeNeedInfo, ErrorCodeRequestSubmitted:
		return http.StatusForbidden
	case ErrorCodeInvalidClient, ErrorCodeInvalidToken, ErrorCodeUnauthorizedClient:
		return http.StatusUnauthorized
	case ErrorCodeInternalError:
		return http.StatusInternalServerError
	case ErrorCodeTemporarilyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// Error is the protocol level error returned by the lifecycle managers.
// Lower level errors, e.g. crypto or storage failures, are kept as the
// wrapped error so callers can still match them with [errors.Is].
type Error struct {
	Code        ErrorCode `json:"error"`
	Description string    `json:"error_description,omitempty"`
	wrapped     error
}

func NewError(code ErrorCode, desc string) Error {
	return Error{
		Code:        code,
		Description: desc,
	}
}

func WrapError(code ErrorCode, desc string, err error) Error {
	return Error{
		Code:        code,
		Description: desc,
		wrapped:     err,
	}
}

func (err Error) Error() string {
	if err.wrapped == nil {
		return fmt.Sprintf("%s %s", err.Code, err.Description)
	}

	return fmt.Sprintf("%s %s: %v", err.Code, err.Description, err.wrapped)
}

func (err Error) StatusCode() int {
	return err.Code.StatusCode()
}

func (err Error) Unwrap() error {
	return err.wrapped
}

// IsRetryable reports whether the operation failed for a transient reason,
// e.g. the store or a remote JWKS endpoint timed out.
func (err Error) IsRetryable() bool {
	return err.Code == ErrorCodeTemporarilyUnavailable
}

var (
	// ErrNotFound is returned by the managers when no entity matches the key.
	ErrNotFound = errors.New("entity not found")
	// ErrSessionStateRegression is returned when an update would move an
	// authenticated session back to unauthenticated.
	ErrSessionStateRegression = errors.New("session state cannot move back to unauthenticated")
	// ErrPendingStatusChanged is returned by a conditional save when the
	// stored request no longer has the expected status or is gone.
	ErrPendingStatusChanged = errors.New("the authorization request status changed")
	// ErrTemporarilyUnavailable marks failures a caller may retry.
	ErrTemporarilyUnavailable = errors.New("temporarily unavailable")

	ErrKeyNotFound          = errors.New("key not found")
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrDecryption           = errors.New("decryption failed")
	ErrMalformedToken       = errors.New("malformed token")
)

// StoreError converts a storage failure into a protocol error. Timeouts are
// reported as retryable.
func StoreError(desc string, err error) Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTemporarilyUnavailable) {
		return WrapError(ErrorCodeTemporarilyUnavailable, desc, err)
	}
	return WrapError(ErrorCodeInternalError, desc, err)
}
