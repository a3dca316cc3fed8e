// Package stdlib provides the decoupled checkout middleware for net/http
// servers that do not use gin.
package stdlib

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/payelement/checkout/go/decoupled"
)

type contextKey int

const (
	userIDKey contextKey = iota
	verifiedEmailKey
	decoupledKey
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
// and stores the user id in the request context. Resolution failures are
// logged and the request continues as a guest.
func DecoupledCheckout(resolver *decoupled.Resolver, opts ...Options) func(http.Handler) http.Handler {
	options := &MiddlewareOptions{Logger: zap.NewNop()}
	for _, opt := range opts {
		opt(options)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := decoupled.RequestFromHTTP(r)
			if req.CartToken == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := resolver.Resolve(r.Context(), req)
			if err != nil {
				options.Logger.Debug("continuing as guest", zap.String("path", req.Path), zap.Error(err))
			}

			ctx := context.WithValue(r.Context(), userIDKey, res.UserID)
			ctx = context.WithValue(ctx, decoupledKey, req.IsDecoupled())
			if res.VerifiedEmail != "" {
				ctx = context.WithValue(ctx, verifiedEmailKey, res.VerifiedEmail)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the customer resolved for the request, or 0 for guests
func UserID(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey).(int64)
	return id
}

// VerifiedEmail returns the verified email the customer was resolved from.
// It is empty unless the hint itself identified the customer.
func VerifiedEmail(ctx context.Context) string {
	email, _ := ctx.Value(verifiedEmailKey).(string)
	return email
}

// IsDecoupled reports whether the request came from the remote checkout
func IsDecoupled(ctx context.Context) bool {
	d, _ := ctx.Value(decoupledKey).(bool)
	return d
}
