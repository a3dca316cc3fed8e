// Package stripe implements the processor side of the intent API on Stripe
// payment and setup intents.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"go.uber.org/zap"

	checkout "github.com/payelement/checkout/go"
)

// Metadata keys written on intents
const (
	MetadataOrderID     = "order_id"
	MetadataFingerprint = "cart_fingerprint"
	MetadataMethodType  = "payment_method_type"
	MetadataCountry     = "payment_country"
)

// ErrMissingKey is returned when no secret key is configured
var ErrMissingKey = errors.New("stripe: secret key is required")

// Pricer prices the cart a fingerprint identifies, or the order when
// orderID is set. Amounts are in the currency's minor unit.
type Pricer interface {
	Price(ctx context.Context, fingerprint checkout.Fingerprint, orderID string) (amount int64, currency string, err error)
}

// PricerFunc adapts a function to Pricer
type PricerFunc func(ctx context.Context, fingerprint checkout.Fingerprint, orderID string) (int64, string, error)

func (f PricerFunc) Price(ctx context.Context, fingerprint checkout.Fingerprint, orderID string) (int64, string, error) {
	return f(ctx, fingerprint, orderID)
}

// Processor implements checkout.PaymentServiceClient on the Stripe API
type Processor struct {
	api              *client.API
	backends         *stripe.Backends
	pricer           Pricer
	orderReceivedURL string
	logger           *zap.Logger
	newNonce         func() string
}

// Option configures a Processor
type Option func(*Processor)

// WithBackends routes API calls through custom backends
func WithBackends(backends *stripe.Backends) Option {
	return func(p *Processor) {
		p.backends = backends
	}
}

// WithOrderReceivedURL sets the page shoppers return to; the order id is
// appended.
func WithOrderReceivedURL(url string) Option {
	return func(p *Processor) {
		p.orderReceivedURL = url
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// New creates a processor for the secret key
func New(key string, pricer Pricer, opts ...Option) (*Processor, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	p := &Processor{
		api:      &client.API{},
		pricer:   pricer,
		logger:   zap.NewNop(),
		newNonce: uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.api.Init(key, p.backends)
	return p, nil
}

// ============================================================================
// Intents
// ============================================================================

func (p *Processor) CreateIntent(ctx context.Context, fingerprint checkout.Fingerprint, orderID string) (*checkout.Intent, error) {
	amount, currency, err := p.pricer.Price(ctx, fingerprint, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to price cart: %w", err)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataFingerprint, string(fingerprint))
	if orderID != "" {
		params.AddMetadata(MetadataOrderID, orderID)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, mapError(err)
	}
	return intentFromPaymentIntent(pi), nil
}

func (p *Processor) InitSetupIntent(ctx context.Context) (*checkout.Intent, error) {
	params := &stripe.SetupIntentParams{
		Usage: stripe.String(string(stripe.SetupIntentUsageOffSession)),
		AutomaticPaymentMethods: &stripe.SetupIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx

	si, err := p.api.SetupIntents.New(params)
	if err != nil {
		return nil, mapError(err)
	}
	return intentFromSetupIntent(si), nil
}

// UpdateIntent reprices the intent for the order and attaches its
// metadata. An order already paid by another intent is reported as a
// duplicate and the intent is left unchanged.
func (p *Processor) UpdateIntent(ctx context.Context, req checkout.UpdateIntentRequest) (*checkout.UpdateIntentResponse, error) {
	resp := &checkout.UpdateIntentResponse{RedirectURL: p.returnURL(req.OrderID)}

	if req.OrderID != "" {
		paid, err := p.orderPaid(ctx, req.OrderID, req.IntentID)
		if err != nil {
			return nil, err
		}
		if paid {
			resp.Duplicate = true
			return resp, nil
		}
	}

	amount, currency, err := p.pricer.Price(ctx, req.Fingerprint, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to price order %s: %w", req.OrderID, err)
	}
	if amount == 0 {
		needed := false
		resp.PaymentNeeded = &needed
		return resp, nil
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
	}
	params.Context = ctx
	params.AddMetadata(MetadataOrderID, req.OrderID)
	params.AddMetadata(MetadataMethodType, req.PaymentMethodType)
	params.AddMetadata(MetadataCountry, req.PaymentCountry)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.SavePaymentMethod {
		params.SetupFutureUsage = stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession))
	}

	if _, err := p.api.PaymentIntents.Update(req.IntentID, params); err != nil {
		return nil, mapError(err)
	}
	return resp, nil
}

// searchQuoter escapes a value for a quoted search query clause
var searchQuoter = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// orderPaid reports whether an intent other than intentID already charged
// the order.
func (p *Processor) orderPaid(ctx context.Context, orderID, intentID string) (bool, error) {
	params := &stripe.PaymentIntentSearchParams{}
	params.Context = ctx
	params.Query = fmt.Sprintf("metadata['%s']:'%s' AND status:'succeeded'", MetadataOrderID, searchQuoter.Replace(orderID))

	iter := p.api.PaymentIntents.Search(params)
	for iter.Next() {
		if pi := iter.PaymentIntent(); pi.ID != intentID {
			p.logger.Info("order already paid", zap.String("order_id", orderID), zap.String("intent_id", pi.ID))
			return true, nil
		}
	}
	if err := iter.Err(); err != nil {
		return false, mapError(err)
	}
	return false, nil
}

// ============================================================================
// Confirmation
// ============================================================================

func (p *Processor) Confirm(ctx context.Context, elements checkout.Elements, params checkout.ConfirmParams, clientSecret string) (*checkout.ConfirmResult, error) {
	pm := elements.PaymentMethod()
	if clientSecret == "" || pm == "" {
		return nil, incompleteError()
	}
	intentID := checkout.IntentIDFromSecret(clientSecret)
	if err := p.attachBilling(ctx, pm, params.BillingDetails); err != nil {
		return nil, err
	}

	confirm := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(pm),
		Shipping:      shippingParams(params.Shipping),
	}
	if params.ReturnURL != "" {
		confirm.ReturnURL = stripe.String(params.ReturnURL)
	}
	confirm.Context = ctx

	pi, err := p.api.PaymentIntents.Confirm(intentID, confirm)
	if err != nil {
		return nil, mapError(err)
	}
	return p.paymentResult(pi), nil
}

func (p *Processor) ConfirmSetup(ctx context.Context, elements checkout.Elements, params checkout.ConfirmParams) (*checkout.ConfirmResult, error) {
	pm := elements.PaymentMethod()
	if pm == "" {
		return nil, incompleteError()
	}
	intentID := checkout.IntentIDFromSecret(elements.ClientSecret())
	if err := p.attachBilling(ctx, pm, params.BillingDetails); err != nil {
		return nil, err
	}

	confirm := &stripe.SetupIntentConfirmParams{PaymentMethod: stripe.String(pm)}
	if params.ReturnURL != "" {
		confirm.ReturnURL = stripe.String(params.ReturnURL)
	}
	confirm.Context = ctx

	si, err := p.api.SetupIntents.Confirm(intentID, confirm)
	if err != nil {
		return nil, mapError(err)
	}
	return p.setupResult(si), nil
}

// attachBilling writes the store's billing details onto the payment method
// the element collected.
func (p *Processor) attachBilling(ctx context.Context, pm string, billing *checkout.BillingDetails) error {
	if billing == nil {
		return nil
	}
	params := &stripe.PaymentMethodParams{BillingDetails: billingParams(billing)}
	params.Context = ctx
	if _, err := p.api.PaymentMethods.Update(pm, params); err != nil {
		return mapError(err)
	}
	return nil
}

// ConfirmPendingAuthentication checks the intent after the shopper
// authenticated and returns the order received page on success.
func (p *Processor) ConfirmPendingAuthentication(ctx context.Context, pending checkout.PendingAuthentication) (string, error) {
	id := pending.IntentID()
	if id == "" {
		return "", fmt.Errorf("malformed client secret")
	}

	var (
		status    checkout.IntentStatus
		lastError *checkout.ProcessorError
	)
	if pending.Kind == checkout.KindSetup {
		params := &stripe.SetupIntentParams{}
		params.Context = ctx
		si, err := p.api.SetupIntents.Get(id, params)
		if err != nil {
			return "", mapError(err)
		}
		status = checkout.IntentStatus(si.Status)
		lastError = processorErrorFromStripe(si.LastSetupError)
	} else {
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		pi, err := p.api.PaymentIntents.Get(id, params)
		if err != nil {
			return "", mapError(err)
		}
		status = checkout.IntentStatus(pi.Status)
		lastError = processorErrorFromStripe(pi.LastPaymentError)
	}

	switch status {
	case checkout.StatusSucceeded, checkout.StatusProcessing, checkout.StatusRequiresConfirmation:
		return p.returnURL(pending.OrderID), nil
	}
	if lastError != nil {
		return "", lastError
	}
	return "", &checkout.ProcessorError{Message: "We could not authenticate your payment method.", Code: string(status)}
}

// LogError records the failure of a charge for audit
func (p *Processor) LogError(ctx context.Context, chargeRef string) error {
	params := &stripe.ChargeParams{}
	params.Context = ctx
	ch, err := p.api.Charges.Get(chargeRef, params)
	if err != nil {
		return mapError(err)
	}

	intentID := ""
	if ch.PaymentIntent != nil {
		intentID = ch.PaymentIntent.ID
	}
	p.logger.Warn("charge failed",
		zap.String("charge", ch.ID),
		zap.String("intent_id", intentID),
		zap.String("failure_code", ch.FailureCode),
		zap.String("failure_message", ch.FailureMessage),
		zap.String("order_id", ch.Metadata[MetadataOrderID]))
	return nil
}

// Elements returns a headless element group; the payment method is
// tokenized by the processor before it reaches the store.
func (p *Processor) Elements(ctx context.Context, clientSecret string) (checkout.Elements, error) {
	return checkout.NewTokenElements(clientSecret, ""), nil
}

func (p *Processor) returnURL(orderID string) string {
	if p.orderReceivedURL == "" || orderID == "" {
		return p.orderReceivedURL
	}
	return p.orderReceivedURL + orderID
}

// paymentResult maps a confirmed payment intent. Intents that need the
// processor's in-page authentication get a confirmation marker the checkout
// resumes from.
func (p *Processor) paymentResult(pi *stripe.PaymentIntent) *checkout.ConfirmResult {
	result := &checkout.ConfirmResult{IntentID: pi.ID, Status: checkout.IntentStatus(pi.Status)}
	if pi.Status != stripe.PaymentIntentStatusRequiresAction {
		return result
	}
	if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil && pi.NextAction.RedirectToURL.URL != "" {
		result.RedirectURL = pi.NextAction.RedirectToURL.URL
		return result
	}
	result.RedirectURL = confirmationMarker(checkout.KindPayment, pi.Metadata[MetadataOrderID], pi.ClientSecret, p.newNonce())
	return result
}

func (p *Processor) setupResult(si *stripe.SetupIntent) *checkout.ConfirmResult {
	result := &checkout.ConfirmResult{IntentID: si.ID, Status: checkout.IntentStatus(si.Status)}
	if si.Status != stripe.SetupIntentStatusRequiresAction {
		return result
	}
	if si.NextAction != nil && si.NextAction.RedirectToURL != nil && si.NextAction.RedirectToURL.URL != "" {
		result.RedirectURL = si.NextAction.RedirectToURL.URL
		return result
	}
	result.RedirectURL = confirmationMarker(checkout.KindSetup, si.Metadata[MetadataOrderID], si.ClientSecret, p.newNonce())
	return result
}

// confirmationMarker builds the fragment ParseConfirmationMarker reads
func confirmationMarker(kind checkout.IntentKind, orderID, clientSecret, nonce string) string {
	prefix := "pi"
	if kind == checkout.KindSetup {
		prefix = "si"
	}
	if orderID == "" {
		orderID = "0"
	}
	return fmt.Sprintf("%s%s:%s:%s:%s", checkout.ConfirmationMarkerPrefix, prefix, orderID, clientSecret, nonce)
}

var _ checkout.PaymentServiceClient = (*Processor)(nil)

