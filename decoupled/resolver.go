package decoupled

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Outcome labels how a resolution ended
type Outcome string

const (
	OutcomeTokenOwner   Outcome = "token_owner"
	OutcomeGuest        Outcome = "guest"
	OutcomeVerified     Outcome = "verified_email"
	OutcomeInvalidToken Outcome = "invalid_token"
	OutcomeAmbiguous    Outcome = "ambiguous"
	OutcomeError        Outcome = "error"
)

// Observer is notified of every resolution
type Observer func(ctx context.Context, outcome Outcome)

// Resolver resolves the user id that owns a decoupled checkout request
type Resolver struct {
	tokens    *TokenCodec
	users     UserDirectory
	sessions  SessionReader
	orders    OrderStore
	runtime   RuntimeInspector
	allowlist Allowlist
	observers []Observer
	logger    *zap.Logger
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithAllowlist sets the adapted-extensions allowlist
func WithAllowlist(allowlist Allowlist) ResolverOption {
	return func(r *Resolver) {
		r.allowlist = allowlist
	}
}

// WithRuntime sets the runtime inspector. Without one, verified-email
// corroboration always fails.
func WithRuntime(runtime RuntimeInspector) ResolverOption {
	return func(r *Resolver) {
		r.runtime = runtime
	}
}

// WithOrderStore enables DetachGuestOrder
func WithOrderStore(orders OrderStore) ResolverOption {
	return func(r *Resolver) {
		r.orders = orders
	}
}

// WithObserver registers an observer, such as a metrics counter
func WithObserver(observer Observer) ResolverOption {
	return func(r *Resolver) {
		r.observers = append(r.observers, observer)
	}
}

// WithResolverLogger sets the logger
func WithResolverLogger(logger *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver
func NewResolver(tokens *TokenCodec, users UserDirectory, sessions SessionReader, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		tokens:   tokens,
		users:    users,
		sessions: sessions,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolution is the identity a request was resolved to
type Resolution struct {
	UserID  int64
	Outcome Outcome
	// VerifiedEmail is set only when the user was resolved from the hint
	VerifiedEmail string
}

// ResolveUserID returns the user id owning the request, 0 for a guest.
// ErrInvalidToken means the request is anonymous; ErrAmbiguousIdentity means
// it must not be tied to any user. Both are expected outcomes.
func (r *Resolver) ResolveUserID(ctx context.Context, req Request) (int64, error) {
	res, err := r.Resolve(ctx, req)
	return res.UserID, err
}

// Resolve resolves the request like ResolveUserID and reports how
func (r *Resolver) Resolve(ctx context.Context, req Request) (Resolution, error) {
	id, outcome, err := r.resolve(ctx, req)
	for _, observe := range r.observers {
		observe(ctx, outcome)
	}
	if err != nil {
		r.logger.Info("identity not resolved",
			zap.String("outcome", string(outcome)),
			zap.String("path", req.Path),
			zap.Error(err))
		return Resolution{Outcome: outcome}, err
	}

	res := Resolution{UserID: id, Outcome: outcome}
	if outcome == OutcomeVerified {
		res.VerifiedEmail = strings.TrimSpace(req.VerifiedEmail)
	}
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, req Request) (int64, Outcome, error) {
	claims, err := r.tokens.Decode(req.CartToken)
	if err != nil {
		return 0, OutcomeInvalidToken, err
	}

	// An authenticated cart wins over any hint.
	if claims.UserID != 0 {
		return claims.UserID, OutcomeTokenOwner, nil
	}
	if req.VerifiedEmail == "" {
		return 0, OutcomeGuest, nil
	}

	customer, found, err := r.sessions.Customer(ctx, claims.CartKey())
	if err != nil {
		return 0, OutcomeError, fmt.Errorf("failed to read session: %w", err)
	}
	if !found {
		return 0, OutcomeGuest, nil
	}
	if !numericID(customer.ID) {
		return 0, OutcomeAmbiguous, fmt.Errorf("%w: non-numeric session customer id", ErrAmbiguousIdentity)
	}
	if customer.Email == "" {
		return 0, OutcomeGuest, nil
	}
	if !sameEmail(customer.Email, req.VerifiedEmail) {
		return 0, OutcomeAmbiguous, fmt.Errorf("%w: session email does not match verified email", ErrAmbiguousIdentity)
	}

	if err := r.corroborate(ctx, req); err != nil {
		return 0, OutcomeAmbiguous, err
	}

	userID, found, err := r.users.UserIDByEmail(ctx, strings.TrimSpace(req.VerifiedEmail))
	if err != nil {
		return 0, OutcomeError, fmt.Errorf("failed to look up user: %w", err)
	}
	if !found {
		return 0, OutcomeAmbiguous, fmt.Errorf("%w: no user for verified email", ErrAmbiguousIdentity)
	}
	return userID, OutcomeVerified, nil
}

// corroborate checks that the runtime agrees session adapters are active and
// that no unvetted plugin could have written the session.
func (r *Resolver) corroborate(ctx context.Context, req Request) error {
	if r.runtime == nil || !r.runtime.FeatureEnabled(ctx) {
		return fmt.Errorf("%w: decoupled checkout disabled", ErrAmbiguousIdentity)
	}
	if !req.IsDecoupled() {
		return fmt.Errorf("%w: not a decoupled request", ErrAmbiguousIdentity)
	}
	active, err := r.runtime.ActivePlugins(ctx)
	if err != nil {
		return fmt.Errorf("%w: active plugins unavailable: %v", ErrAmbiguousIdentity, err)
	}
	if !AllowlistPermits(active, r.allowlist) {
		return fmt.Errorf("%w: active plugins not allowlisted", ErrAmbiguousIdentity)
	}
	return nil
}

// DetachGuestOrder reconciles an order created under a verified email before
// identity was resolved. The merchant customer id marker is always cleared;
// when the billing email matches, a guest order is assigned to
// resolvedUserID. Orders another customer owns are never reassigned.
// It is a no-op without a verified email and safe to repeat.
func (r *Resolver) DetachGuestOrder(ctx context.Context, orderID int64, verifiedEmail string, resolvedUserID int64) error {
	if verifiedEmail == "" {
		return nil
	}
	if r.orders == nil {
		return errors.New("decoupled: no order store configured")
	}

	order, err := r.orders.Order(ctx, orderID)
	if err != nil {
		return err
	}

	changed := false
	if _, ok := order.Meta[MerchantCustomerIDMeta]; ok {
		delete(order.Meta, MerchantCustomerIDMeta)
		changed = true
	}
	if sameEmail(order.BillingEmail, verifiedEmail) && order.CustomerID == 0 && resolvedUserID != 0 {
		order.CustomerID = resolvedUserID
		changed = true
	}
	if !changed {
		return nil
	}

	if err := r.orders.SaveOrder(ctx, order); err != nil {
		return fmt.Errorf("failed to save order %d: %w", orderID, err)
	}
	r.logger.Debug("guest order detached",
		zap.Int64("order_id", orderID),
		zap.Int64("customer_id", order.CustomerID))
	return nil
}

// numericID accepts an unset id; plugins that replace the session may store
// other values, which cannot be reconciled with a user.
func numericID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return true
	}
	_, err := strconv.ParseInt(id, 10, 64)
	return err == nil
}

// sameEmail compares addresses exactly; only surrounding whitespace is ignored
func sameEmail(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}
