package checkout

import (
	"strings"
)

// IntentStatus is the processor-reported lifecycle status of an intent
type IntentStatus string

const (
	StatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	StatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	StatusRequiresAction        IntentStatus = "requires_action"
	StatusProcessing            IntentStatus = "processing"
	StatusSucceeded             IntentStatus = "succeeded"
	StatusCanceled              IntentStatus = "canceled"
	StatusFailed                IntentStatus = "failed"
)

// IsTerminal reports whether no further transition is possible for the status.
func (s IntentStatus) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusCanceled, StatusFailed:
		return true
	}
	return false
}

// IntentKind distinguishes payment intents from setup intents
type IntentKind string

const (
	KindPayment IntentKind = "payment"
	KindSetup   IntentKind = "setup"
)

// Fingerprint is the cart-content hash a cached intent belongs to
type Fingerprint string

// Intent is a server-tracked record of an in-progress charge or a future-charge
// authorization.
type Intent struct {
	ID                string            `json:"id"`
	ClientSecret      string            `json:"client_secret"`
	Kind              IntentKind        `json:"kind,omitempty"`
	Status            IntentStatus      `json:"status,omitempty"`
	Amount            int64             `json:"amount,omitempty"`
	Currency          string            `json:"currency,omitempty"`
	PaymentMethodType string            `json:"payment_method_type,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Address is a postal address passed to the processor
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// BillingDetails are attached to the payment method on confirmation
type BillingDetails struct {
	Name    string  `json:"name,omitempty"`
	Email   string  `json:"email,omitempty"`
	Phone   string  `json:"phone,omitempty"`
	Address Address `json:"address"`
}

// ShippingDetails are only sent for sub-methods that require them
type ShippingDetails struct {
	Name    string  `json:"name"`
	Phone   string  `json:"phone,omitempty"`
	Address Address `json:"address"`
}

// ConfirmParams are passed to the processor when confirming an intent
type ConfirmParams struct {
	ReturnURL      string           `json:"return_url"`
	BillingDetails *BillingDetails  `json:"billing_details,omitempty"`
	Shipping       *ShippingDetails `json:"shipping,omitempty"`
}

// ConfirmResult is the outcome of a successful confirmation call.
// RedirectURL is set when the processor requires the shopper to continue
// elsewhere (out-of-band authentication or an offsite sub-method).
type ConfirmResult struct {
	IntentID    string       `json:"intent_id"`
	Status      IntentStatus `json:"status"`
	RedirectURL string       `json:"redirect_url,omitempty"`
}

// UpdateIntentRequest carries the finalized order metadata for an intent
type UpdateIntentRequest struct {
	IntentID          string            `json:"intent_id" validate:"required"`
	OrderID           string            `json:"order_id" validate:"omitempty,numeric"`
	SavePaymentMethod bool              `json:"save_payment_method"`
	PaymentMethodType string            `json:"payment_method_type"`
	PaymentCountry    string            `json:"payment_country" validate:"omitempty,len=2"`
	Fingerprint       Fingerprint       `json:"fingerprint,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// UpdateIntentResponse is the store's answer to an intent update.
// Duplicate is set when the processor already charged this exact order.
type UpdateIntentResponse struct {
	Duplicate     bool            `json:"duplicate"`
	RedirectURL   string          `json:"redirect_url,omitempty"`
	PaymentNeeded *bool           `json:"payment_needed,omitempty"`
	Error         *ProcessorError `json:"error,omitempty"`
}

// NeedsPayment reports whether the intent must be confirmed as a payment.
// Orders with nothing to pay (free trials) only set up the method.
func (r *UpdateIntentResponse) NeedsPayment() bool {
	return r.PaymentNeeded == nil || *r.PaymentNeeded
}

// PendingAuthentication is decoded from the authentication marker in the URL
// fragment after the store asked the shopper to authenticate out of band.
type PendingAuthentication struct {
	Kind         IntentKind `json:"kind"`
	OrderID      string     `json:"order_id"`
	ClientSecret string     `json:"client_secret"`
	Nonce        string     `json:"nonce"`

	// PaymentMethodToSave is only set when the shopper asked to save the method.
	PaymentMethodToSave string `json:"payment_method_to_save,omitempty"`
}

// IntentID derives the intent id from the client secret, which has the
// form <id>_secret_<random>.
func (p PendingAuthentication) IntentID() string {
	return IntentIDFromSecret(p.ClientSecret)
}

// IntentIDFromSecret returns the intent id prefix of a client secret, or ""
// when the secret is malformed.
func IntentIDFromSecret(secret string) string {
	if i := strings.Index(secret, "_secret_"); i > 0 {
		return secret[:i]
	}
	return ""
}

// PaymentMethodConfig describes a payment sub-method the element may offer
type PaymentMethodConfig struct {
	Type       string `json:"type" toml:"type" validate:"required"`
	Title      string `json:"title,omitempty" toml:"title"`
	IsReusable bool   `json:"is_reusable" toml:"is_reusable"`
}

// ElementChange is emitted by the mounted element whenever the shopper
// edits it.
type ElementChange struct {
	Type     string
	Country  string
	Complete bool
}

// DeferredPaymentMethod is the sub-method that requires shipping details on
// confirmation.
const DeferredPaymentMethod = "afterpay_clearpay"

// Terms display values for the element when the save checkbox toggles
const (
	TermsAlways = "always"
	TermsNever  = "never"
)

// ElementOptions configure a created or updated element
type ElementOptions struct {
	Terms          string   `json:"terms,omitempty"`
	HiddenBilling  []string `json:"hidden_billing,omitempty"`
	DisableWallets bool     `json:"disable_wallets,omitempty"`
}
