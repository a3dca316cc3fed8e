package checkout

import (
	"context"
	"net/url"
	"strings"

	EventBus "github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

// Page event topics
const (
	TopicPageLoaded        = "page:loaded"
	TopicCheckoutUpdated   = "checkout:updated"
	TopicElementChange     = "element:change"
	TopicSaveMethodToggled = "save_payment_method:change"
	TopicPlaceOrder        = "checkout:place_order"
	TopicOrderPaySubmit    = "order_review:submit"
	TopicAddMethodSubmit   = "add_payment_method:submit"
	TopicHashChange        = "location:hashchange"
)

// Dispatcher routes page events to the controller, orchestrator and
// resumption handler of one checkout view. Handlers run synchronously on the
// publishing goroutine while the bus is locked, so they never publish.
type Dispatcher struct {
	bus          EventBus.Bus
	controller   *ElementController
	orchestrator *ConfirmationOrchestrator
	resumption   *AuthenticationResumptionHandler
	logger       *zap.Logger

	// SavedPaymentMethod returns the payment method id to save after an
	// authentication, or "" when the shopper did not ask to save it.
	SavedPaymentMethod func() string
}

// NewDispatcher subscribes the view's components to the bus
func NewDispatcher(bus EventBus.Bus, controller *ElementController, orchestrator *ConfirmationOrchestrator, resumption *AuthenticationResumptionHandler, logger *zap.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		bus:          bus,
		controller:   controller,
		orchestrator: orchestrator,
		resumption:   resumption,
		logger:       logger,
	}

	subscriptions := map[string]interface{}{
		TopicPageLoaded:        d.onPageLoaded,
		TopicCheckoutUpdated:   d.onCheckoutUpdated,
		TopicElementChange:     controller.HandleChange,
		TopicSaveMethodToggled: d.onSaveMethodToggled,
		TopicPlaceOrder:        d.onPlaceOrder,
		TopicOrderPaySubmit:    d.onOrderPaySubmit,
		TopicAddMethodSubmit:   d.onAddMethodSubmit,
		TopicHashChange:        d.onHashChange,
	}
	for topic, handler := range subscriptions {
		if err := bus.Subscribe(topic, handler); err != nil {
			return nil, err
		}
	}
	controller.bus = bus
	if resumption != nil && resumption.controller == nil {
		resumption.controller = controller
	}
	return d, nil
}

// PageLoaded mounts the element and resumes any pending authentication
func (d *Dispatcher) PageLoaded(ctx context.Context, location *url.URL) {
	if location == nil {
		location = &url.URL{}
	}
	d.bus.Publish(TopicPageLoaded, ctx, location)
}

// CheckoutUpdated signals that the checkout section was re-rendered
func (d *Dispatcher) CheckoutUpdated(ctx context.Context) {
	d.bus.Publish(TopicCheckoutUpdated, ctx)
}

// SaveMethodToggled signals a change of the save payment method checkbox
func (d *Dispatcher) SaveMethodToggled(save bool) {
	d.bus.Publish(TopicSaveMethodToggled, save)
}

// PlaceOrder signals submission of the checkout form
func (d *Dispatcher) PlaceOrder(ctx context.Context, form Form) {
	d.bus.Publish(TopicPlaceOrder, ctx, form)
}

// OrderPaySubmit signals submission of the pay-for-order form
func (d *Dispatcher) OrderPaySubmit(ctx context.Context, form Form) {
	d.bus.Publish(TopicOrderPaySubmit, ctx, form)
}

// AddMethodSubmit signals submission of the add payment method form
func (d *Dispatcher) AddMethodSubmit(ctx context.Context) {
	d.bus.Publish(TopicAddMethodSubmit, ctx)
}

// HashChange signals a change of the location fragment
func (d *Dispatcher) HashChange(ctx context.Context, location *url.URL) {
	if location == nil {
		return
	}
	d.bus.Publish(TopicHashChange, ctx, location)
}

func (d *Dispatcher) onPageLoaded(ctx context.Context, location *url.URL) {
	if d.resumption != nil {
		if _, err := d.resumption.Resume(ctx, location, d.savedPaymentMethod()); err != nil {
			d.logger.Debug("resume on load", zap.Error(err))
		}
	}
	if err := d.controller.Create(ctx); err != nil {
		d.logger.Debug("create on load", zap.Error(err))
	}
}

func (d *Dispatcher) onCheckoutUpdated(ctx context.Context) {
	if err := d.controller.CheckoutUpdated(ctx); err != nil {
		d.logger.Debug("remount after checkout update", zap.Error(err))
	}
}

func (d *Dispatcher) onSaveMethodToggled(save bool) {
	if err := d.controller.SetSaveNewMethod(save); err != nil {
		d.logger.Debug("update element terms", zap.Error(err))
	}
}

func (d *Dispatcher) onPlaceOrder(ctx context.Context, form Form) {
	if d.orchestrator == nil {
		return
	}
	if err := d.orchestrator.Submit(ctx, form); err != nil {
		d.logger.Debug("place order", zap.Error(err))
	}
}

func (d *Dispatcher) onOrderPaySubmit(ctx context.Context, form Form) {
	if d.orchestrator == nil {
		return
	}
	if err := d.orchestrator.SubmitOrderPay(ctx, form); err != nil {
		d.logger.Debug("order pay", zap.Error(err))
	}
}

func (d *Dispatcher) onAddMethodSubmit(ctx context.Context) {
	if d.orchestrator == nil {
		return
	}
	if err := d.orchestrator.SubmitAddPaymentMethod(ctx); err != nil {
		d.logger.Debug("add payment method", zap.Error(err))
	}
}

func (d *Dispatcher) onHashChange(ctx context.Context, location *url.URL) {
	if d.resumption == nil || location == nil {
		return
	}
	if !strings.HasPrefix("#"+location.Fragment, ConfirmationMarkerPrefix) {
		return
	}
	if _, err := d.resumption.Resume(ctx, location, d.savedPaymentMethod()); err != nil {
		d.logger.Debug("resume on hash change", zap.Error(err))
	}
}

func (d *Dispatcher) savedPaymentMethod() string {
	if d.SavedPaymentMethod == nil {
		return ""
	}
	return d.SavedPaymentMethod()
}
