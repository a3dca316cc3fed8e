package checkout

import (
	"context"
)

// ============================================================================
// Remote Collaborators
// ============================================================================

// PaymentServiceClient is the remote payment service used by the checkout.
// Failures are either a *ProcessorError or a generic error.
type PaymentServiceClient interface {
	// CreateIntent creates a payment intent for the cart, or for the order when
	// orderID is set (pay-for-order).
	CreateIntent(ctx context.Context, fingerprint Fingerprint, orderID string) (*Intent, error)

	// InitSetupIntent creates a setup intent for saving a payment method.
	InitSetupIntent(ctx context.Context) (*Intent, error)

	// UpdateIntent attaches the finalized order metadata to a held intent.
	UpdateIntent(ctx context.Context, req UpdateIntentRequest) (*UpdateIntentResponse, error)

	// Confirm confirms a payment intent. An empty clientSecret asks the
	// processor to validate the element fields without committing.
	Confirm(ctx context.Context, elements Elements, params ConfirmParams, clientSecret string) (*ConfirmResult, error)

	// ConfirmSetup confirms the setup intent the elements were created for.
	ConfirmSetup(ctx context.Context, elements Elements, params ConfirmParams) (*ConfirmResult, error)

	// ConfirmPendingAuthentication completes an out-of-band authentication
	// and returns the URL the shopper continues to.
	ConfirmPendingAuthentication(ctx context.Context, pending PendingAuthentication) (string, error)

	// LogError reports a failed charge for audit.
	LogError(ctx context.Context, chargeRef string) error

	// Elements fetches the processor-hosted element group for a client secret.
	Elements(ctx context.Context, clientSecret string) (Elements, error)
}

// Elements is the processor-hosted element group bound to one client secret
type Elements interface {
	Create(opts ElementOptions) (Element, error)
	ClientSecret() string

	// PaymentMethod returns the payment method collected so far, or "" when
	// the shopper has not completed the element.
	PaymentMethod() string
}

// Element is a mounted processor UI element
type Element interface {
	Mount(container Region) error
	Unmount() error
	Update(opts ElementOptions) error
	OnChange(handler func(ElementChange))
}

// Fingerprinter produces the device fingerprint used as a risk signal
type Fingerprinter interface {
	Fingerprint(ctx context.Context) (string, error)
}

// ============================================================================
// Page Surface
// ============================================================================

// Region identifies a part of the checkout page
type Region string

const (
	RegionCheckoutForm   Region = "form.checkout"
	RegionOrderReview    Region = "#order_review"
	RegionAddMethodForm  Region = "form#add_payment_method"
	RegionElement        Region = "#wcpay-upe-element"
	RegionPaymentBox     Region = ".payment_box.payment_method_woocommerce_payments"
	RegionPaymentSection Region = "#payment"
	RegionSaveNewMethod  Region = ".woocommerce-SavedPaymentMethods-saveNew"
)

// Page is the view the checkout drives
type Page interface {
	Block(region Region)
	Unblock(region Region)
	ShowError(message string)
	ReplaceContent(region Region, message string)
	SetVisible(region Region, visible bool)
	HasRegion(region Region) bool
	Navigate(url string)
	ReplaceHistory(url string)
}

// ============================================================================
// Session Storage
// ============================================================================

// SessionStore holds the per-session fields that survive page loads.
// Values are cleared when the shopping session ends.
type SessionStore interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// RateLimitRegistry counts declined attempts per session within a rolling
// window. Implementations must be safe for concurrent use.
type RateLimitRegistry interface {
	// Attempts returns the declined attempts inside the current window.
	Attempts(ctx context.Context, session string) (int, error)

	// RecordDecline counts a declined attempt and returns the new count.
	RecordDecline(ctx context.Context, session string) (int, error)

	// Reset clears the counter after a successful attempt.
	Reset(ctx context.Context, session string) error
}
