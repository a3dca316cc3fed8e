package checkout

import (
	"errors"
	"fmt"
)

// ErrorKind classifies checkout failures by how they are handled
type ErrorKind string

const (
	// KindIncompleteForm is user-correctable and shown inline
	KindIncompleteForm ErrorKind = "incomplete_form"
	// KindRecoverableRemoteFailure is a declined or rejected remote call; it counts toward the rate limit
	KindRecoverableRemoteFailure ErrorKind = "recoverable_remote_failure"
	// KindFatalConfiguration means checkout cannot proceed on this page
	KindFatalConfiguration ErrorKind = "fatal_configuration"
	// KindRateLimited is a local refusal; no remote call was made
	KindRateLimited ErrorKind = "rate_limited"
)

// Common error codes
const (
	ErrCodeIncompletePayment    = "incomplete_payment_information"
	ErrCodeFieldValidation      = "field_validation"
	ErrCodeIntentCreateFailed   = "intent_create_failed"
	ErrCodeIntentUpdateFailed   = "intent_update_failed"
	ErrCodeConfirmFailed        = "confirm_failed"
	ErrCodeFingerprintFailed    = "fingerprint_unavailable"
	ErrCodeMissingConfiguration = "missing_configuration"
	ErrCodeTooManyAttempts      = "too_many_attempts"
	ErrCodeAuthenticationFailed = "authentication_failed"
	ErrCodeAttemptAborted       = "attempt_aborted"
)

var (
	ErrSavedMethodSelected = errors.New("checkout: saved payment method selected")
	ErrNotMounted          = errors.New("checkout: no element mounted")
	ErrMissingClient       = errors.New("checkout: payment service client is required")
	ErrMissingPage         = errors.New("checkout: page is required")
	ErrContainerMissing    = errors.New("checkout: element container is not on the page")
)

// CheckoutError is a classified checkout failure
type CheckoutError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	// Charge is set when the failure is scoped to a processor charge
	Charge string `json:"charge,omitempty"`
	Err    error  `json:"-"`
}

func (e *CheckoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}

// NewCheckoutError creates a new checkout error
func NewCheckoutError(kind ErrorKind, code, message string, err error) *CheckoutError {
	return &CheckoutError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewIncompleteFormError creates an error for an incomplete payment form
func NewIncompleteFormError(message string) *CheckoutError {
	return NewCheckoutError(KindIncompleteForm, ErrCodeIncompletePayment, message, nil)
}

// NewRateLimitedError creates the local refusal returned by the guard
func NewRateLimitedError(message string) *CheckoutError {
	return NewCheckoutError(KindRateLimited, ErrCodeTooManyAttempts, message, nil)
}

// NewFatalConfigurationError creates an error for a checkout that cannot proceed
func NewFatalConfigurationError(code, message string, err error) *CheckoutError {
	return NewCheckoutError(KindFatalConfiguration, code, message, err)
}

// ProcessorError is the error shape returned by the processor and the store
// endpoints wrapping it.
type ProcessorError struct {
	Message string `json:"message"`
	Charge  string `json:"charge,omitempty"`
	Code    string `json:"code,omitempty"`
	Type    string `json:"type,omitempty"`
}

func (e *ProcessorError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("processor error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("processor error: %s", e.Message)
}

// IsChargeScoped reports whether the failure refers to a specific charge
func (e *ProcessorError) IsChargeScoped() bool {
	return e.Charge != ""
}

// AsProcessorError extracts a processor-shaped error from err
func AsProcessorError(err error) (*ProcessorError, bool) {
	var pe *ProcessorError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// KindOf returns the kind of a classified error. Unclassified errors are
// treated as recoverable remote failures.
func KindOf(err error) ErrorKind {
	var ce *CheckoutError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindRecoverableRemoteFailure
}

// IsRecoverable reports whether err should count toward the rate limit
func IsRecoverable(err error) bool {
	return err != nil && KindOf(err) == KindRecoverableRemoteFailure
}

// IsRateLimited reports whether err is a local rate-limit refusal
func IsRateLimited(err error) bool {
	return err != nil && KindOf(err) == KindRateLimited
}
