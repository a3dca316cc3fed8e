// Package http provides the HTTP transport between the checkout and the
// store's intent API. The same route table and wire types are served by
// pkg/gin and consumed by StoreClient.
package http

import (
	"net/url"

	checkout "github.com/payelement/checkout/go"
)

// ============================================================================
// Routes
// ============================================================================

const (
	RouteIntents               = "/checkout/intents"
	RouteSetupIntents          = "/checkout/setup-intents"
	RouteSetupConfirm          = "/checkout/setup-intents/confirm"
	RoutePendingAuthentication = "/checkout/pending-authentication"
	RouteLogError              = "/checkout/errors"
)

// HeaderIdempotencyKey is sent with every mutating request
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderSession carries the shopping session id the duplicate-payment guard
// counts declines for.
const HeaderSession = "X-Checkout-Session"

// IntentPath is the update route of an intent
func IntentPath(intentID string) string {
	return RouteIntents + "/" + url.PathEscape(intentID)
}

// ConfirmPath is the confirmation route of a payment intent
func ConfirmPath(intentID string) string {
	return IntentPath(intentID) + "/confirm"
}

// ============================================================================
// Wire Types
// ============================================================================

// CreateIntentRequest asks the store for a payment intent
type CreateIntentRequest struct {
	Fingerprint checkout.Fingerprint `json:"fingerprint"`
	OrderID     string               `json:"order_id,omitempty"`
}

// ConfirmRequest confirms an intent with a tokenized payment method
type ConfirmRequest struct {
	ClientSecret  string                 `json:"client_secret" binding:"required"`
	PaymentMethod string                 `json:"payment_method" binding:"required"`
	Params        checkout.ConfirmParams `json:"params"`
}

// PendingAuthenticationResponse is the continuation after out-of-band
// authentication.
type PendingAuthenticationResponse struct {
	RedirectURL string `json:"redirect_url"`
}

// LogErrorRequest reports a failed charge
type LogErrorRequest struct {
	Charge string `json:"charge" binding:"required"`
}

// ErrorResponse is the body of every non-2xx answer of the intent API
type ErrorResponse struct {
	Error *checkout.ProcessorError `json:"error"`
}
