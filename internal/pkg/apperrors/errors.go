package apperrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/GoPolymarket/polyfactory/internal/model"
)

type ErrorType string

const (
	ErrRiskReject     ErrorType = "RISK_REJECT"
	ErrAuthFailed     ErrorType = "AUTH_FAILED"
	ErrNonce          ErrorType = "NONCE_ERROR"
	ErrRateLimited    ErrorType = "RATE_LIMITED"
	ErrReadOnly       ErrorType = "READ_ONLY"
	ErrInvalidRequest ErrorType = "INVALID_REQUEST"
	ErrInternal       ErrorType = "INTERNAL_ERROR"
	ErrNotFound       ErrorType = "NOT_FOUND"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Kind       string    `json:"kind,omitempty"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewRiskReject(msg string) *AppError {
	return New(ErrRiskReject, msg, nil)
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewAuthFailed(msg string) *AppError {
	return New(ErrAuthFailed, msg, nil)
}

// Wrap converts any error into an AppError. Domain errors keep their code
// and kind; anything else is reported as internal.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if domainErr := FromDomain(err); domainErr != nil {
		return domainErr
	}
	return New(ErrInternal, err.Error(), err)
}

// FromDomain maps a *model.Error anywhere in err's chain, or returns nil.
func FromDomain(err error) *AppError {
	var de *model.Error
	if !errors.As(err, &de) {
		return nil
	}
	return &AppError{
		Type:       ErrorType(de.Code),
		Kind:       string(de.Kind),
		Message:    err.Error(),
		Suggestion: kindSuggestion(de.Kind),
		HTTPStatus: kindStatus(de.Kind),
		Cause:      err,
	}
}

func kindStatus(k model.ErrorKind) int {
	switch k {
	case model.KindUnauthorized:
		return http.StatusForbidden
	case model.KindInvalidState:
		return http.StatusConflict
	case model.KindInvalidParams:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindExhausted:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func kindSuggestion(k model.ErrorKind) string {
	switch k {
	case model.KindUnauthorized:
		return "The authenticated address lacks the role or reputation for this action."
	case model.KindInvalidState:
		return "Refresh the market state and retry if the transition is still valid."
	case model.KindExhausted:
		return "Nothing further can be taken from this market for the caller."
	default:
		return ""
	}
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrRiskReject, ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrNonce:
		return http.StatusConflict
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrReadOnly:
		return http.StatusServiceUnavailable
	case ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrRiskReject:
		return "Check the deposit against the daily limits."
	case ErrNonce:
		return "Request a fresh nonce and sign again."
	case ErrAuthFailed:
		return "Log in again with a wallet signature."
	case ErrRateLimited:
		return "Slow down and retry after a second."
	case ErrReadOnly:
		return "Wait for maintenance to end."
	default:
		return ""
	}
}
