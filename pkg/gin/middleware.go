package gin

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/payelement/checkout/go/decoupled"
)

// Context keys set by DecoupledCheckout
const (
	ContextUserID        = "checkout.user_id"
	ContextVerifiedEmail = "checkout.verified_email"
	ContextDecoupled     = "checkout.decoupled"
)

// MiddlewareOptions configures DecoupledCheckout
type MiddlewareOptions struct {
	Logger *zap.Logger
}

// Options is the type for the options for DecoupledCheckout
type Options func(*MiddlewareOptions)

// WithLogger sets the logger of the middleware
func WithLogger(logger *zap.Logger) Options {
	return func(options *MiddlewareOptions) {
		options.Logger = logger
	}
}

// DecoupledCheckout resolves the customer of requests carrying a cart token
// and stores the user id in the gin context. Resolution failures are logged
// and the request continues as a guest.
func DecoupledCheckout(resolver *decoupled.Resolver, opts ...Options) gin.HandlerFunc {
	options := &MiddlewareOptions{Logger: zap.NewNop()}
	for _, opt := range opts {
		opt(options)
	}

	return func(c *gin.Context) {
		req := decoupled.RequestFromHTTP(c.Request)
		if req.CartToken == "" {
			c.Next()
			return
		}

		res, err := resolver.Resolve(c.Request.Context(), req)
		if err != nil {
			options.Logger.Debug("continuing as guest", zap.String("path", req.Path), zap.Error(err))
		}

		c.Set(ContextUserID, res.UserID)
		c.Set(ContextDecoupled, req.IsDecoupled())
		if res.VerifiedEmail != "" {
			c.Set(ContextVerifiedEmail, res.VerifiedEmail)
		}
		c.Next()
	}
}

// UserID returns the customer resolved for the request, or 0 for guests
func UserID(c *gin.Context) int64 {
	return c.GetInt64(ContextUserID)
}

// VerifiedEmail returns the verified email the customer was resolved from.
// It is empty unless the hint itself identified the customer.
func VerifiedEmail(c *gin.Context) string {
	return c.GetString(ContextVerifiedEmail)
}
