package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	InvalidInput      ErrorCode = "invalid_input"
	InvalidAmount     ErrorCode = "invalid_amount"
	InsufficientFunds ErrorCode = "insufficient_funds"
	RecipientNotFound ErrorCode = "recipient_not_found"
	SelfTransfer      ErrorCode = "self_transfer"
	LoanDenied        ErrorCode = "loan_denied"
	InvalidCredential ErrorCode = "invalid_credential"
	AccountNotFound   ErrorCode = "account_not_found"
	DuplicateUsername ErrorCode = "duplicate_username"
	StorageFailure    ErrorCode = "storage_failure"
	RateLimited       ErrorCode = "rate_limited"
)

// AppError is the user-displayable failure reported by every layer.
// Values are treated as immutable: WithDetails and WithCause return copies.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	cause   error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// Is matches any AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func (e *AppError) WithCause(err error) *AppError {
	cp := *e
	cp.cause = err
	return &cp
}

// HTTPStatus maps the error code to the status returned to API callers.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case InvalidInput, InvalidAmount, InsufficientFunds, RecipientNotFound, SelfTransfer, LoanDenied:
		return http.StatusBadRequest
	case InvalidCredential:
		return http.StatusUnauthorized
	case AccountNotFound:
		return http.StatusNotFound
	case DuplicateUsername:
		return http.StatusConflict
	case RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// NewStorageFailure wraps a driver or connectivity error.
func NewStorageFailure(message string, err error) *AppError {
	appErr := NewAppError(StorageFailure, message).WithCause(err)
	if err != nil {
		appErr.Details = err.Error()
	}
	return appErr
}

// AsAppError unwraps err into an AppError. Errors of any other type are
// reported as storage failures so callers never see a raw driver error.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewStorageFailure("an unexpected error occurred", err)
}

// Predefined errors for common cases
var (
	ErrInvalidInput      = NewAppError(InvalidInput, "invalid request")
	ErrInvalidAmount     = NewAppError(InvalidAmount, "amount must be a positive number")
	ErrInvalidAccountID  = NewAppError(InvalidInput, "invalid account id")
	ErrInsufficientFunds = NewAppError(InsufficientFunds, "insufficient funds")
	ErrRecipientNotFound = NewAppError(RecipientNotFound, "recipient not found")
	ErrSelfTransfer      = NewAppError(SelfTransfer, "cannot transfer to yourself")
	ErrLoanDenied        = NewAppError(LoanDenied, "loan request denied, insufficient deposit history")
	ErrInvalidCredential = NewAppError(InvalidCredential, "invalid credentials")
	ErrSessionExpired    = NewAppError(InvalidCredential, "session expired")
	ErrAccountNotFound   = NewAppError(AccountNotFound, "account not found")
	ErrDuplicateUsername = NewAppError(DuplicateUsername, "username already taken")
	ErrRateLimited       = NewAppError(RateLimited, "too many requests")
)
