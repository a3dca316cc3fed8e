package checkout

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// ConfirmationMarkerPrefix starts the URL fragment written by the store when
// the shopper must authenticate out of band.
const ConfirmationMarkerPrefix = "#wcpay-confirm-"

// ParseConfirmationMarker decodes a fragment of the form
// #wcpay-confirm-<pi|si>:<orderId>:<clientSecret>:<nonce>.
func ParseConfirmationMarker(fragment string) (PendingAuthentication, bool) {
	if !strings.HasPrefix(fragment, "#") {
		fragment = "#" + fragment
	}
	if !strings.HasPrefix(fragment, ConfirmationMarkerPrefix) {
		return PendingAuthentication{}, false
	}

	parts := strings.Split(strings.TrimPrefix(fragment, ConfirmationMarkerPrefix), ":")
	if len(parts) != 4 {
		return PendingAuthentication{}, false
	}
	for _, p := range parts {
		if p == "" {
			return PendingAuthentication{}, false
		}
	}

	pending := PendingAuthentication{
		OrderID:      parts[1],
		ClientSecret: parts[2],
		Nonce:        parts[3],
	}
	switch parts[0] {
	case "pi":
		pending.Kind = KindPayment
	case "si":
		pending.Kind = KindSetup
	default:
		return PendingAuthentication{}, false
	}
	return pending, true
}

// AuthenticationResumptionHandler resumes a checkout after the shopper was
// sent to authenticate a payment out of band.
type AuthenticationResumptionHandler struct {
	client     PaymentServiceClient
	page       Page
	controller *ElementController
	messages   *Messages
	logger     *zap.Logger
}

// ResumptionOption configures an AuthenticationResumptionHandler
type ResumptionOption func(*AuthenticationResumptionHandler)

// WithResumptionLogger sets the logger
func WithResumptionLogger(logger *zap.Logger) ResumptionOption {
	return func(h *AuthenticationResumptionHandler) {
		h.logger = logger
	}
}

// WithResumptionController shares the view's controller, which is returned
// to mounted when an authentication fails so the shopper can submit again.
func WithResumptionController(controller *ElementController) ResumptionOption {
	return func(h *AuthenticationResumptionHandler) {
		h.controller = controller
	}
}

// WithResumptionMessages sets the catalog used for the generic message
func WithResumptionMessages(messages *Messages) ResumptionOption {
	return func(h *AuthenticationResumptionHandler) {
		h.messages = messages
	}
}

// NewAuthenticationResumptionHandler creates a handler
func NewAuthenticationResumptionHandler(client PaymentServiceClient, page Page, opts ...ResumptionOption) *AuthenticationResumptionHandler {
	h := &AuthenticationResumptionHandler{
		client: client,
		page:   page,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.messages == nil {
		h.messages = MustMessages()
	}
	return h
}

// Resume checks the location for a pending authentication and completes it.
// paymentMethodToSave is the payment method id when the shopper asked to
// save it, empty otherwise. It reports whether an authentication was pending.
func (h *AuthenticationResumptionHandler) Resume(ctx context.Context, location *url.URL, paymentMethodToSave string) (bool, error) {
	if location == nil {
		return false, nil
	}
	pending, ok := ParseConfirmationMarker("#" + location.Fragment)
	if !ok {
		return false, nil
	}
	pending.PaymentMethodToSave = paymentMethodToSave

	// Drop the marker first so back and forward navigation cannot trigger
	// a second confirmation.
	clean := location.Path
	if location.RawQuery != "" {
		clean += "?" + location.RawQuery
	}
	h.page.ReplaceHistory(clean)

	orderPage := isOrderPage(location)
	if orderPage {
		h.page.Block(RegionOrderReview)
		h.page.SetVisible(RegionPaymentSection, false)
	}

	redirectURL, err := h.client.ConfirmPendingAuthentication(ctx, pending)
	if err != nil {
		h.page.Unblock(RegionCheckoutForm)
		h.page.Unblock(RegionOrderReview)
		h.page.SetVisible(RegionPaymentSection, true)
		if h.controller != nil {
			h.controller.authenticationFailed()
		}

		msg := h.messages.Text(MsgGenericError)
		if pe, ok := AsProcessorError(err); ok && pe.Message != "" {
			msg = pe.Message
		}
		h.page.ShowError(msg)
		h.logger.Info("authentication resumption failed",
			zap.String("order_id", pending.OrderID),
			zap.String("intent_id", pending.IntentID()),
			zap.Error(err))
		return true, NewCheckoutError(KindRecoverableRemoteFailure, ErrCodeAuthenticationFailed, msg, err)
	}

	h.page.Navigate(redirectURL)
	return true, nil
}

func isOrderPage(location *url.URL) bool {
	return strings.Contains(location.Path, "order-pay") || location.Query().Has("order-pay")
}
