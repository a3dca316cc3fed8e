package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Form is the submitted checkout form as seen by the orchestrator
type Form struct {
	OrderID          string
	UsingSavedMethod bool
	Billing          *BillingDetails
	Shipping         *ShippingDetails
	Metadata         map[string]string
}

// ConfirmationOrchestrator drives a submitted form through intent update,
// confirmation and redirect.
type ConfirmationOrchestrator struct {
	controller *ElementController
	client     PaymentServiceClient
	page       Page
	guard      *DuplicatePaymentGuard
	messages   *Messages
	logger     *zap.Logger
	validate   *validator.Validate
	now        func() time.Time

	session            string
	checkoutReturnURL  string
	orderReturnURL     string
	addMethodReturnURL string

	hooksMu               sync.RWMutex
	beforeConfirmHooks    []BeforeConfirmHook
	afterConfirmHooks     []AfterConfirmHook
	onConfirmFailureHooks []OnConfirmFailureHook
}

// OrchestratorOption configures a ConfirmationOrchestrator
type OrchestratorOption func(*ConfirmationOrchestrator)

// WithGuard consults the guard before each payment attempt for the session
func WithGuard(guard *DuplicatePaymentGuard, session string) OrchestratorOption {
	return func(o *ConfirmationOrchestrator) {
		o.guard = guard
		o.session = session
	}
}

// WithOrchestratorLogger sets the logger
func WithOrchestratorLogger(logger *zap.Logger) OrchestratorOption {
	return func(o *ConfirmationOrchestrator) {
		o.logger = logger
	}
}

// WithCheckoutReturnURL sets the return URL used when the store does not
// provide one with the intent update.
func WithCheckoutReturnURL(url string) OrchestratorOption {
	return func(o *ConfirmationOrchestrator) {
		o.checkoutReturnURL = url
	}
}

// WithOrderReturnURL sets the return URL for the pay-for-order page
func WithOrderReturnURL(url string) OrchestratorOption {
	return func(o *ConfirmationOrchestrator) {
		o.orderReturnURL = url
	}
}

// WithAddPaymentMethodReturnURL sets the return URL for the add payment method page
func WithAddPaymentMethodReturnURL(url string) OrchestratorOption {
	return func(o *ConfirmationOrchestrator) {
		o.addMethodReturnURL = url
	}
}

// WithClock overrides the time source used for hook timestamps
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *ConfirmationOrchestrator) {
		o.now = now
	}
}

// NewConfirmationOrchestrator creates an orchestrator sharing the
// controller's client, page and messages.
func NewConfirmationOrchestrator(controller *ElementController, opts ...OrchestratorOption) *ConfirmationOrchestrator {
	o := &ConfirmationOrchestrator{
		controller: controller,
		client:     controller.client,
		page:       controller.page,
		messages:   controller.messages,
		logger:     controller.logger,
		validate:   validator.New(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// attempt describes one submission variant
type attempt struct {
	region    Region
	returnURL string
	// update is nil for setup-only submissions
	update  *UpdateIntentRequest
	billing *BillingDetails
	ship    *ShippingDetails
	guarded bool
}

// Submit handles the checkout page form.
func (o *ConfirmationOrchestrator) Submit(ctx context.Context, form Form) error {
	if form.UsingSavedMethod {
		return ErrSavedMethodSelected
	}
	snap, err := o.checkForm(ctx, RegionCheckoutForm, "#")
	if err != nil {
		return err
	}
	return o.run(ctx, snap, attempt{
		region:    RegionCheckoutForm,
		returnURL: o.checkoutReturnURL,
		update:    &UpdateIntentRequest{OrderID: form.OrderID, Metadata: form.Metadata},
		billing:   form.Billing,
		ship:      form.Shipping,
		guarded:   true,
	})
}

// SubmitOrderPay handles the pay-for-order form. The intent belongs to the
// existing order and the return URL carries the save flag.
func (o *ConfirmationOrchestrator) SubmitOrderPay(ctx context.Context, form Form) error {
	if form.UsingSavedMethod {
		return ErrSavedMethodSelected
	}
	save := "no"
	if o.controller.snapshot().saveNewMethod {
		save = "yes"
	}
	returnURL := o.orderReturnURL + "&save_payment_method=" + save

	snap, err := o.checkForm(ctx, RegionOrderReview, returnURL)
	if err != nil {
		return err
	}
	orderID := snap.orderID
	if orderID == "" {
		orderID = form.OrderID
	}
	return o.run(ctx, snap, attempt{
		region:    RegionOrderReview,
		returnURL: returnURL,
		update:    &UpdateIntentRequest{OrderID: orderID, Metadata: form.Metadata},
		billing:   form.Billing,
		ship:      form.Shipping,
		guarded:   true,
	})
}

// SubmitAddPaymentMethod confirms the setup intent on the add payment
// method page. Nothing is charged, so the guard is not consulted.
func (o *ConfirmationOrchestrator) SubmitAddPaymentMethod(ctx context.Context) error {
	snap, err := o.checkForm(ctx, RegionAddMethodForm, o.addMethodReturnURL)
	if err != nil {
		return err
	}
	return o.run(ctx, snap, attempt{
		region:    RegionAddMethodForm,
		returnURL: o.addMethodReturnURL,
	})
}

// checkForm rejects a submission without a mounted, complete element.
func (o *ConfirmationOrchestrator) checkForm(ctx context.Context, region Region, returnURL string) (elementSnapshot, error) {
	snap := o.controller.snapshot()
	if snap.element == nil || snap.intent == nil {
		msg := o.messages.Text(MsgIncompletePayment)
		o.page.ShowError(msg)
		return snap, NewIncompleteFormError(msg)
	}
	if !snap.complete {
		return snap, o.SurfaceFieldValidation(ctx, snap.elements, region, returnURL)
	}
	return snap, nil
}

// SurfaceFieldValidation asks the processor to confirm without a client
// secret. Nothing is committed; the call only yields the field-level
// validation error for an incomplete element, which is shown to the shopper.
// It always returns an incomplete form error.
func (o *ConfirmationOrchestrator) SurfaceFieldValidation(ctx context.Context, elements Elements, region Region, returnURL string) error {
	msg := o.messages.Text(MsgIncompletePayment)
	_, err := o.client.Confirm(ctx, elements, ConfirmParams{ReturnURL: returnURL}, "")
	if pe, ok := AsProcessorError(err); ok && pe.Message != "" {
		msg = pe.Message
	}
	o.page.Unblock(region)
	o.page.ShowError(msg)
	return NewCheckoutError(KindIncompleteForm, ErrCodeFieldValidation, msg, err)
}

func (o *ConfirmationOrchestrator) guardKey(snap elementSnapshot) string {
	if o.session != "" {
		return o.session
	}
	return string(snap.cart)
}

func (o *ConfirmationOrchestrator) run(ctx context.Context, snap elementSnapshot, a attempt) error {
	if !o.controller.beginSubmit() {
		return nil
	}

	hc := ConfirmContext{
		Ctx:               ctx,
		Session:           o.guardKey(snap),
		IntentID:          snap.intent.ID,
		Kind:              snap.intent.Kind,
		PaymentMethodType: snap.selectedMethod,
		Timestamp:         o.now(),
	}
	if a.update != nil {
		hc.OrderID = a.update.OrderID
	}

	if a.guarded && o.guard != nil {
		if err := o.guard.Allow(ctx, hc.Session); err != nil {
			o.page.ShowError(shopperMessage(err, o.messages))
			o.controller.endSubmit(false)
			return err
		}
	}

	o.page.Block(a.region)

	if err := o.runBeforeHooks(hc); err != nil {
		return o.fail(ctx, hc, a, err)
	}

	result, duplicate, err := o.confirm(ctx, snap, a)
	if err != nil {
		return o.fail(ctx, hc, a, err)
	}

	if a.guarded && o.guard != nil {
		o.guard.RecordOutcome(ctx, hc.Session, nil)
	}
	if a.update != nil && (duplicate || result.Status.IsTerminal()) {
		o.controller.cache.Invalidate(snap.cart)
	}
	o.controller.endSubmit(true)

	o.runAfterHooks(ConfirmResultContext{
		ConfirmContext: hc,
		Result:         result,
		Duplicate:      duplicate,
		Duration:       o.now().Sub(hc.Timestamp),
	})
	o.logger.Info("payment attempt completed",
		zap.String("intent_id", hc.IntentID),
		zap.String("status", string(result.Status)),
		zap.Bool("duplicate", duplicate))

	if result.RedirectURL != "" && result.RedirectURL != "#" {
		o.page.Navigate(result.RedirectURL)
	}
	return nil
}

// confirm performs the remote part of an attempt. The returned result
// carries the URL the shopper continues to.
func (o *ConfirmationOrchestrator) confirm(ctx context.Context, snap elementSnapshot, a attempt) (*ConfirmResult, bool, error) {
	params := ConfirmParams{ReturnURL: a.returnURL, BillingDetails: a.billing}
	if snap.selectedMethod == DeferredPaymentMethod {
		params.Shipping = a.ship
	}

	if a.update == nil {
		result, err := o.client.ConfirmSetup(ctx, snap.elements, params)
		return withReturnURL(result, err, params.ReturnURL)
	}

	req := *a.update
	req.IntentID = snap.intent.ID
	req.SavePaymentMethod = snap.saveNewMethod
	req.PaymentMethodType = snap.selectedMethod
	req.PaymentCountry = snap.country
	req.Fingerprint = snap.cart
	if err := o.validate.Struct(req); err != nil {
		return nil, false, NewCheckoutError(KindIncompleteForm, ErrCodeFieldValidation, o.messages.Text(MsgIncompletePayment), err)
	}

	resp, err := o.client.UpdateIntent(ctx, req)
	if err != nil {
		return nil, false, err
	}
	if resp == nil {
		resp = &UpdateIntentResponse{}
	}
	if resp.Error != nil {
		return nil, false, resp.Error
	}
	if resp.Duplicate {
		return &ConfirmResult{IntentID: req.IntentID, Status: StatusSucceeded, RedirectURL: resp.RedirectURL}, true, nil
	}

	if params.ReturnURL == "" {
		params.ReturnURL = resp.RedirectURL
	}
	if !resp.NeedsPayment() {
		result, err := o.client.ConfirmSetup(ctx, snap.elements, params)
		return withReturnURL(result, err, params.ReturnURL)
	}
	result, err := o.client.Confirm(ctx, snap.elements, params, snap.intent.ClientSecret)
	return withReturnURL(result, err, params.ReturnURL)
}

// withReturnURL defaults the continuation of a confirmed attempt to the
// return URL it was confirmed with.
func withReturnURL(result *ConfirmResult, err error, returnURL string) (*ConfirmResult, bool, error) {
	if err != nil {
		return nil, false, err
	}
	if result == nil {
		result = &ConfirmResult{Status: StatusProcessing}
	}
	if result.RedirectURL == "" {
		result.RedirectURL = returnURL
	}
	return result, false, nil
}

func (o *ConfirmationOrchestrator) fail(ctx context.Context, hc ConfirmContext, a attempt, err error) error {
	pe, isProcessor := AsProcessorError(err)
	if isProcessor && pe.IsChargeScoped() {
		if logErr := o.client.LogError(ctx, pe.Charge); logErr != nil {
			o.logger.Warn("failed to log payment error", zap.String("charge", pe.Charge), zap.Error(logErr))
		}
	}

	o.page.Unblock(a.region)
	msg := shopperMessage(err, o.messages)
	o.page.ShowError(msg)

	classified := classify(err, msg)
	if a.guarded && o.guard != nil {
		o.guard.RecordOutcome(ctx, hc.Session, classified)
	}
	o.controller.endSubmit(false)

	o.runFailureHooks(ConfirmFailureContext{
		ConfirmContext: hc,
		Error:          classified,
		Duration:       o.now().Sub(hc.Timestamp),
	})
	o.logger.Info("payment attempt failed",
		zap.String("intent_id", hc.IntentID),
		zap.String("kind", string(classified.Kind)),
		zap.Error(err))
	return classified
}

func classify(err error, msg string) *CheckoutError {
	var ce *CheckoutError
	if errors.As(err, &ce) {
		return ce
	}
	classified := NewCheckoutError(KindRecoverableRemoteFailure, ErrCodeConfirmFailed, msg, err)
	if pe, ok := AsProcessorError(err); ok {
		classified.Charge = pe.Charge
	}
	return classified
}

func (o *ConfirmationOrchestrator) runBeforeHooks(hc ConfirmContext) error {
	o.hooksMu.RLock()
	hooks := o.beforeConfirmHooks
	o.hooksMu.RUnlock()

	for _, hook := range hooks {
		result, err := hook(hc)
		if err != nil {
			return err
		}
		if result != nil && result.Abort {
			return NewCheckoutError(KindFatalConfiguration, ErrCodeAttemptAborted, result.Reason, nil)
		}
	}
	return nil
}

func (o *ConfirmationOrchestrator) runAfterHooks(rc ConfirmResultContext) {
	o.hooksMu.RLock()
	hooks := o.afterConfirmHooks
	o.hooksMu.RUnlock()

	for _, hook := range hooks {
		if err := hook(rc); err != nil {
			o.logger.Warn("after confirm hook failed", zap.Error(err))
		}
	}
}

func (o *ConfirmationOrchestrator) runFailureHooks(fc ConfirmFailureContext) {
	o.hooksMu.RLock()
	hooks := o.onConfirmFailureHooks
	o.hooksMu.RUnlock()

	for _, hook := range hooks {
		if err := hook(fc); err != nil {
			o.logger.Warn("confirm failure hook failed", zap.Error(err))
		}
	}
}
