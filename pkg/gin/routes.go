package gin

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	checkout "github.com/payelement/checkout/go"
	"github.com/payelement/checkout/go/decoupled"
	checkouthttp "github.com/payelement/checkout/go/http"
)

// ============================================================================
// Intent API
// ============================================================================

// StoreAPIBase is where the daemon mounts the intent routes, inside the
// path range decoupled checkouts are recognized in.
const StoreAPIBase = "/wp-json/wc/store/v1"

// IntentAPI serves the store's intent routes over a processor-side
// PaymentServiceClient.
type IntentAPI struct {
	backend  checkout.PaymentServiceClient
	cache    *checkout.ConfirmationCache
	guard    *checkout.DuplicatePaymentGuard
	resolver *decoupled.Resolver
	logger   *zap.Logger
	validate *validator.Validate
}

// APIOption configures an IntentAPI
type APIOption func(*IntentAPI)

// WithConfirmationCache deduplicates concurrent confirmations of an intent
func WithConfirmationCache(cache *checkout.ConfirmationCache) APIOption {
	return func(a *IntentAPI) {
		a.cache = cache
	}
}

// WithGuard refuses confirmations for sessions with too many declines
func WithGuard(guard *checkout.DuplicatePaymentGuard) APIOption {
	return func(a *IntentAPI) {
		a.guard = guard
	}
}

// WithResolver detaches guest orders once the customer is resolved
func WithResolver(resolver *decoupled.Resolver) APIOption {
	return func(a *IntentAPI) {
		a.resolver = resolver
	}
}

// WithAPILogger sets the logger
func WithAPILogger(logger *zap.Logger) APIOption {
	return func(a *IntentAPI) {
		a.logger = logger
	}
}

// NewIntentAPI creates the intent API
func NewIntentAPI(backend checkout.PaymentServiceClient, opts ...APIOption) *IntentAPI {
	a := &IntentAPI{
		backend:  backend,
		logger:   zap.NewNop(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register mounts the routes on r
func (a *IntentAPI) Register(r gin.IRouter) {
	r.POST(checkouthttp.RouteIntents, a.createIntent)
	r.POST(checkouthttp.RouteIntents+"/:id", a.updateIntent)
	r.POST(checkouthttp.RouteIntents+"/:id/confirm", a.confirm)
	r.POST(checkouthttp.RouteSetupIntents, a.createSetupIntent)
	r.POST(checkouthttp.RouteSetupConfirm, a.confirmSetup)
	r.POST(checkouthttp.RoutePendingAuthentication, a.confirmPending)
	r.POST(checkouthttp.RouteLogError, a.logError)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func (a *IntentAPI) createIntent(c *gin.Context) {
	var req checkouthttp.CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	intent, err := a.backend.CreateIntent(c.Request.Context(), req.Fingerprint, req.OrderID)
	if err != nil {
		a.fail(c, "create intent", err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (a *IntentAPI) createSetupIntent(c *gin.Context) {
	intent, err := a.backend.InitSetupIntent(c.Request.Context())
	if err != nil {
		a.fail(c, "create setup intent", err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (a *IntentAPI) updateIntent(c *gin.Context) {
	var req checkout.UpdateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.IntentID = c.Param("id")
	if err := a.validate.Struct(req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := a.backend.UpdateIntent(c.Request.Context(), req)
	if err != nil {
		a.fail(c, "update intent", err)
		return
	}
	a.detach(c, req.OrderID)
	c.JSON(http.StatusOK, resp)
}

// detach reconciles the order with the customer resolved by
// DecoupledCheckout. Failures do not fail the update.
func (a *IntentAPI) detach(c *gin.Context, orderID string) {
	if a.resolver == nil {
		return
	}
	email := VerifiedEmail(c)
	id, err := strconv.ParseInt(orderID, 10, 64)
	if email == "" || err != nil {
		return
	}
	if err := a.resolver.DetachGuestOrder(c.Request.Context(), id, email, UserID(c)); err != nil {
		a.logger.Warn("failed to detach guest order", zap.Int64("order_id", id), zap.Error(err))
	}
}

func (a *IntentAPI) confirm(c *gin.Context) {
	var req checkouthttp.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	intentID := c.Param("id")
	if checkout.IntentIDFromSecret(req.ClientSecret) != intentID {
		badRequest(c, errors.New("client secret does not belong to the intent"))
		return
	}

	ctx := c.Request.Context()
	session := a.session(c)
	if a.guard != nil {
		if err := a.guard.Allow(ctx, session); err != nil {
			a.fail(c, "confirm", err)
			return
		}
	}

	run := func() (*checkout.ConfirmResult, error) {
		elements := checkout.NewTokenElements(req.ClientSecret, req.PaymentMethod)
		return a.backend.Confirm(ctx, elements, req.Params, req.ClientSecret)
	}
	var (
		result *checkout.ConfirmResult
		err    error
	)
	if a.cache != nil {
		result, err = a.cache.Do(ctx, intentID, run)
	} else {
		result, err = run()
	}

	if a.guard != nil {
		a.guard.RecordOutcome(ctx, session, err)
	}
	if err != nil {
		a.fail(c, "confirm", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *IntentAPI) confirmSetup(c *gin.Context) {
	var req checkouthttp.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	elements := checkout.NewTokenElements(req.ClientSecret, req.PaymentMethod)
	result, err := a.backend.ConfirmSetup(c.Request.Context(), elements, req.Params)
	if err != nil {
		a.fail(c, "confirm setup", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *IntentAPI) confirmPending(c *gin.Context) {
	var pending checkout.PendingAuthentication
	if err := c.ShouldBindJSON(&pending); err != nil {
		badRequest(c, err)
		return
	}
	if pending.IntentID() == "" || pending.OrderID == "" {
		badRequest(c, errors.New("order_id and client_secret are required"))
		return
	}
	url, err := a.backend.ConfirmPendingAuthentication(c.Request.Context(), pending)
	if err != nil {
		a.fail(c, "confirm pending authentication", err)
		return
	}
	c.JSON(http.StatusOK, checkouthttp.PendingAuthenticationResponse{RedirectURL: url})
}

func (a *IntentAPI) logError(c *gin.Context) {
	var req checkouthttp.LogErrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := a.backend.LogError(c.Request.Context(), req.Charge); err != nil {
		a.fail(c, "log error", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// session is the key the guard counts declines under
func (a *IntentAPI) session(c *gin.Context) string {
	if s := c.GetHeader(checkouthttp.HeaderSession); s != "" {
		return s
	}
	return c.ClientIP()
}

// ============================================================================
// Errors
// ============================================================================

const genericMessage = "There was an error processing the payment. Please try again."

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, checkouthttp.ErrorResponse{
		Error: &checkout.ProcessorError{Message: err.Error(), Code: "invalid_request", Type: "invalid_request_error"},
	})
}

// fail writes processor errors through and hides everything else behind
// the generic message.
func (a *IntentAPI) fail(c *gin.Context, op string, err error) {
	var ce *checkout.CheckoutError
	switch {
	case checkout.IsRateLimited(err) && errors.As(err, &ce):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, checkouthttp.ErrorResponse{
			Error: &checkout.ProcessorError{Message: ce.Message, Code: ce.Code},
		})
		return
	case errors.Is(err, context.Canceled):
		c.Abort()
		return
	}

	if pe, ok := checkout.AsProcessorError(err); ok {
		status := http.StatusPaymentRequired
		if pe.Type == "invalid_request_error" {
			status = http.StatusBadRequest
		}
		a.logger.Info("processor refused request", zap.String("op", op), zap.String("code", pe.Code), zap.String("charge", pe.Charge))
		c.AbortWithStatusJSON(status, checkouthttp.ErrorResponse{Error: pe})
		return
	}

	a.logger.Error("processor call failed", zap.String("op", op), zap.Error(err))
	c.AbortWithStatusJSON(http.StatusBadGateway, checkouthttp.ErrorResponse{
		Error: &checkout.ProcessorError{Message: genericMessage, Code: "processor_unavailable"},
	})
}
