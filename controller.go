package checkout

import (
	"context"
	"errors"
	"sync"

	EventBus "github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

// ElementState is the mounting state of the embedded payment element
type ElementState int

const (
	StateUnmounted ElementState = iota
	StateMounting
	StateMounted
	StateSubmitting
	StateRedirecting
)

func (s ElementState) String() string {
	switch s {
	case StateUnmounted:
		return "unmounted"
	case StateMounting:
		return "mounting"
	case StateMounted:
		return "mounted"
	case StateSubmitting:
		return "submitting"
	case StateRedirecting:
		return "redirecting"
	}
	return "unknown"
}

// billingFields maps store billing fields to the element fields they replace
var billingFields = map[string]string{
	"billing_first_name": "name",
	"billing_last_name":  "name",
	"billing_email":      "email",
	"billing_phone":      "phone",
	"billing_country":    "address.country",
	"billing_address_1":  "address.line1",
	"billing_address_2":  "address.line2",
	"billing_city":       "address.city",
	"billing_state":      "address.state",
	"billing_postcode":   "address.postalCode",
}

// ElementController owns the embedded payment element for one page view.
// It holds at most one intent and mounts at most one element into its
// container.
type ElementController struct {
	client        PaymentServiceClient
	page          Page
	session       SessionStore
	cache         *IntentCache
	fingerprinter Fingerprinter
	messages      *Messages
	logger        *zap.Logger
	bus           EventBus.Bus

	container      Region
	methods        map[string]PaymentMethodConfig
	billingEnabled []string
	orderID        string
	useSetupIntent bool

	// Guarded by mu. The lock is never held across remote calls.
	mu             sync.Mutex
	cart           Fingerprint
	generation     uint64
	state          ElementState
	intent         *Intent
	elements       Elements
	element        Element
	deviceID       string
	complete       bool
	selectedMethod string
	country        string
	saveNewMethod  bool
}

// ControllerOption configures an ElementController
type ControllerOption func(*ElementController)

// WithControllerLogger sets the logger
func WithControllerLogger(logger *zap.Logger) ControllerOption {
	return func(c *ElementController) {
		c.logger = logger
	}
}

// WithMessages sets the shopper message catalog
func WithMessages(messages *Messages) ControllerOption {
	return func(c *ElementController) {
		c.messages = messages
	}
}

// WithFingerprinter sets the device fingerprint source. Without one the
// element is never mounted.
func WithFingerprinter(f Fingerprinter) ControllerOption {
	return func(c *ElementController) {
		c.fingerprinter = f
	}
}

// WithPaymentMethods sets the sub-methods the element may offer
func WithPaymentMethods(methods ...PaymentMethodConfig) ControllerOption {
	return func(c *ElementController) {
		for _, m := range methods {
			c.methods[m.Type] = m
		}
	}
}

// WithCartFingerprint sets the current cart fingerprint
func WithCartFingerprint(fp Fingerprint) ControllerOption {
	return func(c *ElementController) {
		c.cart = fp
	}
}

// WithOrderPay creates the intent from an existing order instead of the cart
func WithOrderPay(orderID string) ControllerOption {
	return func(c *ElementController) {
		c.orderID = orderID
	}
}

// WithSetupIntent mounts the element for a setup intent, as on the add
// payment method page.
func WithSetupIntent() ControllerOption {
	return func(c *ElementController) {
		c.useSetupIntent = true
	}
}

// WithEnabledBillingFields hides the element fields the store form already collects
func WithEnabledBillingFields(fields ...string) ControllerOption {
	return func(c *ElementController) {
		c.billingEnabled = append(c.billingEnabled, fields...)
	}
}

// WithEventBus routes element change notifications through the bus
func WithEventBus(bus EventBus.Bus) ControllerOption {
	return func(c *ElementController) {
		c.bus = bus
	}
}

// NewElementController creates a controller for one checkout view
func NewElementController(client PaymentServiceClient, page Page, session SessionStore, opts ...ControllerOption) *ElementController {
	c := &ElementController{
		client:    client,
		page:      page,
		session:   session,
		cache:     NewIntentCache(session),
		container: RegionElement,
		methods:   make(map[string]PaymentMethodConfig),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.messages == nil {
		c.messages = MustMessages()
	}
	return c
}

// State returns the current element state
func (c *ElementController) State() ElementState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Intent returns the held intent, if any
func (c *ElementController) Intent() *Intent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intent
}

// Create resolves or creates the intent and mounts the element. It is a
// no-op while an intent is held or an element is mounted. ErrNotMounted is
// returned when the cart changed while the intent was being resolved.
func (c *ElementController) Create(ctx context.Context) error {
	c.mu.Lock()
	if c.intent != nil || c.element != nil || c.state != StateUnmounted {
		c.mu.Unlock()
		return nil
	}
	c.state = StateMounting
	cart, generation := c.cart, c.generation
	c.mu.Unlock()

	if err := c.ensureDeviceFingerprint(ctx); err != nil {
		c.setState(StateUnmounted)
		c.page.ShowError(c.messages.Text(MsgFingerprintUnavailable))
		return err
	}

	c.page.Block(c.container)
	defer c.page.Unblock(c.container)

	intent, err := c.resolveIntent(ctx, cart)
	if err != nil {
		c.setState(StateUnmounted)
		c.page.ShowError(shopperMessage(err, c.messages))
		c.page.ReplaceContent(RegionPaymentBox, c.messages.Text(MsgPreparingFormFailed))
		c.logger.Warn("failed to prepare payment intent", zap.Error(err))
		return NewCheckoutError(KindRecoverableRemoteFailure, ErrCodeIntentCreateFailed, c.messages.Text(MsgPreparingFormFailed), err)
	}

	c.mu.Lock()
	if c.generation != generation {
		c.mu.Unlock()
		if intent.Kind == KindPayment {
			c.cache.Invalidate(cart)
		}
		c.logger.Debug("cart changed while preparing intent", zap.String("intent_id", intent.ID))
		return ErrNotMounted
	}
	if c.intent != nil || c.element != nil || c.state != StateMounting {
		c.mu.Unlock()
		return nil
	}
	c.intent = intent
	c.mu.Unlock()

	if err := c.mount(ctx, intent); err != nil {
		c.mu.Lock()
		c.intent = nil
		c.elements = nil
		c.element = nil
		c.state = StateUnmounted
		c.mu.Unlock()
		c.page.ReplaceContent(RegionPaymentBox, c.messages.Text(MsgPreparingFormFailed))
		c.logger.Warn("failed to mount payment element", zap.String("intent_id", intent.ID), zap.Error(err))
		return NewCheckoutError(KindRecoverableRemoteFailure, ErrCodeIntentCreateFailed, c.messages.Text(MsgPreparingFormFailed), err)
	}

	c.setState(StateMounted)
	c.logger.Debug("payment element mounted", zap.String("intent_id", intent.ID), zap.String("kind", string(intent.Kind)))
	return nil
}

func (c *ElementController) ensureDeviceFingerprint(ctx context.Context) error {
	c.mu.Lock()
	cached := c.deviceID
	c.mu.Unlock()
	if cached != "" {
		return nil
	}
	if c.fingerprinter == nil {
		return NewFatalConfigurationError(ErrCodeFingerprintFailed, c.messages.Text(MsgFingerprintUnavailable), nil)
	}

	id, err := c.fingerprinter.Fingerprint(ctx)
	if err != nil || id == "" {
		c.logger.Warn("device fingerprint unavailable", zap.Error(err))
		return NewFatalConfigurationError(ErrCodeFingerprintFailed, c.messages.Text(MsgFingerprintUnavailable), err)
	}

	c.mu.Lock()
	c.deviceID = id
	c.mu.Unlock()
	return nil
}

func (c *ElementController) resolveIntent(ctx context.Context, cart Fingerprint) (*Intent, error) {
	if c.useSetupIntent {
		if intent, ok := c.cache.GetSetup(); ok {
			return intent, nil
		}
		intent, err := c.client.InitSetupIntent(ctx)
		if err != nil {
			return nil, err
		}
		intent.Kind = KindSetup
		c.cache.PutSetup(intent)
		return intent, nil
	}

	if intent, ok := c.cache.Get(cart); ok {
		return intent, nil
	}
	intent, err := c.client.CreateIntent(ctx, cart, c.orderID)
	if err != nil {
		return nil, err
	}
	intent.Kind = KindPayment
	c.cache.Put(cart, intent)
	return intent, nil
}

func (c *ElementController) mount(ctx context.Context, intent *Intent) error {
	elements, err := c.client.Elements(ctx, intent.ClientSecret)
	if err != nil {
		return err
	}
	element, err := elements.Create(c.elementOptions())
	if err != nil {
		return err
	}
	if err := element.Mount(c.container); err != nil {
		return err
	}
	element.OnChange(c.notifyChange)

	c.mu.Lock()
	c.elements = elements
	c.element = element
	c.mu.Unlock()
	return nil
}

func (c *ElementController) elementOptions() ElementOptions {
	opts := ElementOptions{DisableWallets: true}
	if !c.useSetupIntent && c.orderID == "" {
		seen := make(map[string]bool)
		for _, field := range c.billingEnabled {
			if hidden, ok := billingFields[field]; ok && !seen[hidden] {
				seen[hidden] = true
				opts.HiddenBilling = append(opts.HiddenBilling, hidden)
			}
		}
	}
	return opts
}

func (c *ElementController) notifyChange(change ElementChange) {
	if c.bus != nil && c.bus.HasCallback(TopicElementChange) {
		c.bus.Publish(TopicElementChange, change)
		return
	}
	c.HandleChange(change)
}

// HandleChange applies an element change notification: the selected
// sub-method, the save control visibility, the payment country and the
// completeness flag.
func (c *ElementController) HandleChange(change ElementChange) {
	reusable := c.methods[change.Type].IsReusable

	c.mu.Lock()
	c.selectedMethod = change.Type
	c.country = change.Country
	c.complete = change.Complete
	if !reusable {
		c.saveNewMethod = false
	}
	c.mu.Unlock()

	c.page.SetVisible(RegionSaveNewMethod, reusable)
	c.session.Set(SessionKeySelectedMethod, change.Type)
	c.session.Set(SessionKeyPaymentCountry, change.Country)
}

// SetSaveNewMethod records the save checkbox and updates the terms shown by
// the element.
func (c *ElementController) SetSaveNewMethod(save bool) error {
	c.mu.Lock()
	c.saveNewMethod = save
	element := c.element
	c.mu.Unlock()

	if element == nil {
		return nil
	}
	terms := TermsNever
	if save {
		terms = TermsAlways
	}
	return element.Update(ElementOptions{Terms: terms})
}

// CheckoutUpdated handles a re-render of the checkout section. The held
// element is attached to the new container, or created if none exists.
func (c *ElementController) CheckoutUpdated(ctx context.Context) error {
	if !c.page.HasRegion(c.container) {
		return nil
	}
	c.mu.Lock()
	element := c.element
	c.mu.Unlock()

	if element != nil {
		return element.Mount(c.container)
	}
	return c.Create(ctx)
}

// CartChanged unmounts the element and forgets the held intent so the next
// Create resolves one for the new cart.
func (c *ElementController) CartChanged(fp Fingerprint) error {
	c.mu.Lock()
	element := c.element
	c.cart = fp
	c.generation++
	c.intent = nil
	c.elements = nil
	c.element = nil
	c.complete = false
	c.state = StateUnmounted
	c.mu.Unlock()

	if element != nil {
		return element.Unmount()
	}
	return nil
}

func (c *ElementController) setState(s ElementState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// ============================================================================
// Submission support
// ============================================================================

// elementSnapshot is the controller state a submission works from
type elementSnapshot struct {
	intent         *Intent
	elements       Elements
	element        Element
	complete       bool
	selectedMethod string
	country        string
	saveNewMethod  bool
	cart           Fingerprint
	orderID        string
	deviceID       string
}

func (c *ElementController) snapshot() elementSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return elementSnapshot{
		intent:         c.intent,
		elements:       c.elements,
		element:        c.element,
		complete:       c.complete,
		selectedMethod: c.selectedMethod,
		country:        c.country,
		saveNewMethod:  c.saveNewMethod,
		cart:           c.cart,
		orderID:        c.orderID,
		deviceID:       c.deviceID,
	}
}

// beginSubmit moves mounted to submitting. It fails when a submission is
// already running or the element is not mounted.
func (c *ElementController) beginSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateMounted {
		return false
	}
	c.state = StateSubmitting
	return true
}

// endSubmit leaves submitting for redirecting on success or mounted on failure
func (c *ElementController) endSubmit(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateSubmitting {
		return
	}
	if success {
		c.state = StateRedirecting
	} else {
		c.state = StateMounted
	}
}

// authenticationFailed returns a controller that redirected to an
// authentication marker to mounted, so the next submission runs.
func (c *ElementController) authenticationFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRedirecting && c.element != nil {
		c.state = StateMounted
	}
}

// shopperMessage returns the text shown for err. Only processor-shaped
// errors carry a message fit for the shopper.
func shopperMessage(err error, messages *Messages) string {
	if pe, ok := AsProcessorError(err); ok && pe.Message != "" {
		return pe.Message
	}
	var ce *CheckoutError
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	return messages.Text(MsgGenericError)
}
