package models

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable, machine readable class of a core error.
type ErrorCode string

const (
	CodeValidation           ErrorCode = "VALIDATION_ERROR"
	CodeNetworkUnsupported   ErrorCode = "NETWORK_UNSUPPORTED"
	CodeVerificationNotFound ErrorCode = "VERIFICATION_NOT_FOUND"
	CodeVerificationFailed   ErrorCode = "VERIFICATION_FAILED"
	CodeAPIError             ErrorCode = "API_ERROR"
	CodeAlreadyApplied       ErrorCode = "ALREADY_APPLIED"
	CodePaymentClaimed       ErrorCode = "PAYMENT_CLAIMED"
	CodePersistence          ErrorCode = "PERSISTENCE_ERROR"
	CodeSubscriptionNotFound ErrorCode = "SUBSCRIPTION_NOT_FOUND"
	CodeInvalidTransition    ErrorCode = "INVALID_TRANSITION"
)

// Reason narrows a failed verification down to something the user can act on.
type Reason string

const (
	ReasonNotFound           Reason = "not_found"
	ReasonInsufficientAmount Reason = "insufficient_amount"
	ReasonStale              Reason = "stale"
	ReasonWrongDestination   Reason = "wrong_destination"
	ReasonWrongAsset         Reason = "wrong_asset"
	ReasonTxFailed           Reason = "tx_failed"
	ReasonUnconfirmed        Reason = "unconfirmed"
	ReasonRateLimited        Reason = "rate_limited"
	ReasonUnavailable        Reason = "unavailable"
	ReasonMalformedResponse  Reason = "malformed_response"
)

// Error is the error value carried across the core boundary.
type Error struct {
	Code    ErrorCode `json:"code"`
	Reason  Reason    `json:"reason,omitempty"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on code, and on reason too when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// Retryable reports whether the caller may simply try again later.
func (e *Error) Retryable() bool {
	return e.Code == CodeAPIError || e.Code == CodePersistence
}

func NewError(code ErrorCode, reason Reason, message string, err error) *Error {
	return &Error{Code: code, Reason: reason, Message: message, Err: err}
}

func ValidationError(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

func NotFoundError(reason Reason, message string) *Error {
	return &Error{Code: CodeVerificationNotFound, Reason: reason, Message: message}
}

func APIError(reason Reason, message string, err error) *Error {
	return &Error{Code: CodeAPIError, Reason: reason, Message: message, Err: err}
}

func PersistenceError(err error) *Error {
	return &Error{Code: CodePersistence, Message: "failed to persist subscription", Err: err}
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation           = &Error{Code: CodeValidation}
	ErrNetworkUnsupported   = &Error{Code: CodeNetworkUnsupported}
	ErrVerificationNotFound = &Error{Code: CodeVerificationNotFound}
	ErrVerificationFailed   = &Error{Code: CodeVerificationFailed}
	ErrAPI                  = &Error{Code: CodeAPIError}
	ErrAlreadyApplied       = &Error{Code: CodeAlreadyApplied}
	ErrPaymentClaimed       = &Error{Code: CodePaymentClaimed}
	ErrPersistence          = &Error{Code: CodePersistence}
	ErrSubscriptionNotFound = &Error{Code: CodeSubscriptionNotFound}
	ErrInvalidTransition    = &Error{Code: CodeInvalidTransition}
)

// AsError extracts a core error from err, wrapping unknown errors as VERIFICATION_FAILED.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: CodeVerificationFailed, Message: err.Error(), Err: err}
}
