// Package processor provides scripted in-memory stand-ins for the payment
// processor and the checkout page, for tests that wire real components.
package processor

import (
	"context"
	"fmt"
	"sync"

	checkout "github.com/payelement/checkout/go"
)

// ============================================================================
// Scripted Processor
// ============================================================================

// Well-known payment method tokens
const (
	PaymentMethodOK            = "pm_card_visa"
	PaymentMethodDeclined      = "pm_card_chargeDeclined"
	PaymentMethodAuthenticated = "pm_card_authenticationRequired"
)

// Client is a scripted processor implementing checkout.PaymentServiceClient.
// Intents live in memory; confirmations succeed unless the payment method is
// one of the scripted failures.
type Client struct {
	mu       sync.Mutex
	seq      int
	intents  map[string]*checkout.Intent
	orders   map[string]string
	calls    map[string]int
	logged   []string
	elements []*checkout.TokenElements

	// ReturnURL is the continuation of successful payments
	ReturnURL string
	// Duplicates lists order ids the processor already charged
	Duplicates map[string]bool
	// Free lists order ids with nothing to pay
	Free map[string]bool
	hook func(op string)
}

// NewClient creates a scripted processor
func NewClient() *Client {
	return &Client{
		intents:    make(map[string]*checkout.Intent),
		orders:     make(map[string]string),
		calls:      make(map[string]int),
		ReturnURL:  "https://store.test/order-received/",
		Duplicates: make(map[string]bool),
		Free:       make(map[string]bool),
	}
}

// Calls returns how many times op was called
func (c *Client) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// Logged returns the charges reported through LogError
func (c *Client) Logged() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.logged...)
}

// Intent returns a copy of a stored intent
func (c *Client) Intent(id string) (checkout.Intent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	intent, ok := c.intents[id]
	if !ok {
		return checkout.Intent{}, false
	}
	return *intent, true
}

// SetHook runs fn at the start of every call with the operation name
func (c *Client) SetHook(fn func(op string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hook = fn
}

// LastElements returns the most recently handed out element group
func (c *Client) LastElements() *checkout.TokenElements {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.elements) == 0 {
		return nil
	}
	return c.elements[len(c.elements)-1]
}

func (c *Client) record(op string) {
	c.mu.Lock()
	c.calls[op]++
	hook := c.hook
	c.mu.Unlock()
	if hook != nil {
		hook(op)
	}
}

func (c *Client) newIntentLocked(kind checkout.IntentKind, prefix string) *checkout.Intent {
	c.seq++
	id := fmt.Sprintf("%s_%d", prefix, c.seq)
	intent := &checkout.Intent{
		ID:           id,
		ClientSecret: id + "_secret_mock",
		Kind:         kind,
		Status:       checkout.StatusRequiresPaymentMethod,
	}
	c.intents[id] = intent
	return intent
}

func (c *Client) CreateIntent(ctx context.Context, fingerprint checkout.Fingerprint, orderID string) (*checkout.Intent, error) {
	c.record("CreateIntent")
	c.mu.Lock()
	defer c.mu.Unlock()
	intent := c.newIntentLocked(checkout.KindPayment, "pi")
	intent.Metadata = map[string]string{"fingerprint": string(fingerprint)}
	if orderID != "" {
		c.orders[intent.ID] = orderID
	}
	copied := *intent
	return &copied, nil
}

func (c *Client) InitSetupIntent(ctx context.Context) (*checkout.Intent, error) {
	c.record("InitSetupIntent")
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *c.newIntentLocked(checkout.KindSetup, "seti")
	return &copied, nil
}

func (c *Client) UpdateIntent(ctx context.Context, req checkout.UpdateIntentRequest) (*checkout.UpdateIntentResponse, error) {
	c.record("UpdateIntent")
	c.mu.Lock()
	defer c.mu.Unlock()

	intent, ok := c.intents[req.IntentID]
	if !ok {
		return nil, missingIntent(req.IntentID)
	}
	if c.Duplicates[req.OrderID] {
		return &checkout.UpdateIntentResponse{Duplicate: true, RedirectURL: c.ReturnURL + req.OrderID}, nil
	}
	c.orders[intent.ID] = req.OrderID
	intent.PaymentMethodType = req.PaymentMethodType

	resp := &checkout.UpdateIntentResponse{RedirectURL: c.ReturnURL + req.OrderID}
	if c.Free[req.OrderID] {
		needed := false
		resp.PaymentNeeded = &needed
	}
	return resp, nil
}

func (c *Client) Confirm(ctx context.Context, elements checkout.Elements, params checkout.ConfirmParams, clientSecret string) (*checkout.ConfirmResult, error) {
	c.record("Confirm")
	pm := elements.PaymentMethod()
	if clientSecret == "" || pm == "" {
		return nil, &checkout.ProcessorError{Message: "Your card number is incomplete.", Code: "incomplete_number", Type: "validation_error"}
	}
	return c.confirm(checkout.IntentIDFromSecret(clientSecret), pm)
}

func (c *Client) ConfirmSetup(ctx context.Context, elements checkout.Elements, params checkout.ConfirmParams) (*checkout.ConfirmResult, error) {
	c.record("ConfirmSetup")
	pm := elements.PaymentMethod()
	if pm == "" {
		return nil, &checkout.ProcessorError{Message: "Your card number is incomplete.", Code: "incomplete_number", Type: "validation_error"}
	}
	return c.confirm(checkout.IntentIDFromSecret(elements.ClientSecret()), pm)
}

func (c *Client) confirm(intentID, pm string) (*checkout.ConfirmResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	intent, ok := c.intents[intentID]
	if !ok {
		return nil, missingIntent(intentID)
	}
	switch pm {
	case PaymentMethodDeclined:
		c.seq++
		return nil, &checkout.ProcessorError{
			Message: "Your card was declined.",
			Charge:  fmt.Sprintf("ch_%d", c.seq),
			Code:    "card_declined",
			Type:    "card_error",
		}
	case PaymentMethodAuthenticated:
		intent.Status = checkout.StatusRequiresAction
		kind := "pi"
		if intent.Kind == checkout.KindSetup {
			kind = "si"
		}
		marker := fmt.Sprintf("%s%s:%s:%s:nonce", checkout.ConfirmationMarkerPrefix, kind, c.orders[intentID], intent.ClientSecret)
		return &checkout.ConfirmResult{IntentID: intentID, Status: intent.Status, RedirectURL: marker}, nil
	}

	intent.Status = checkout.StatusSucceeded
	return &checkout.ConfirmResult{IntentID: intentID, Status: intent.Status}, nil
}

func (c *Client) ConfirmPendingAuthentication(ctx context.Context, pending checkout.PendingAuthentication) (string, error) {
	c.record("ConfirmPendingAuthentication")
	c.mu.Lock()
	defer c.mu.Unlock()

	intent, ok := c.intents[pending.IntentID()]
	if !ok {
		return "", missingIntent(pending.IntentID())
	}
	intent.Status = checkout.StatusSucceeded
	return c.ReturnURL + pending.OrderID, nil
}

func (c *Client) LogError(ctx context.Context, chargeRef string) error {
	c.record("LogError")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logged = append(c.logged, chargeRef)
	return nil
}

func (c *Client) Elements(ctx context.Context, clientSecret string) (checkout.Elements, error) {
	c.record("Elements")
	elements := checkout.NewTokenElements(clientSecret, "")
	c.mu.Lock()
	c.elements = append(c.elements, elements)
	c.mu.Unlock()
	return elements, nil
}

func missingIntent(id string) error {
	return &checkout.ProcessorError{
		Message: fmt.Sprintf("No such payment intent: '%s'", id),
		Code:    "resource_missing",
		Type:    "invalid_request_error",
	}
}

var _ checkout.PaymentServiceClient = (*Client)(nil)
