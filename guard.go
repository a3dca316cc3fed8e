package checkout

import (
	"context"

	"go.uber.org/zap"
)

// DefaultAttemptThreshold is how many declines a session may collect within
// the registry window before further attempts are refused
const DefaultAttemptThreshold = 5

// DuplicatePaymentGuard refuses confirmation attempts once a session has
// been declined too often within the registry window.
type DuplicatePaymentGuard struct {
	registry  RateLimitRegistry
	threshold int
	messages  *Messages
	logger    *zap.Logger
}

// GuardOption configures a DuplicatePaymentGuard
type GuardOption func(*DuplicatePaymentGuard)

// WithThreshold sets how many declines are allowed within the window
func WithThreshold(n int) GuardOption {
	return func(g *DuplicatePaymentGuard) {
		if n > 0 {
			g.threshold = n
		}
	}
}

// WithGuardLogger sets the logger
func WithGuardLogger(logger *zap.Logger) GuardOption {
	return func(g *DuplicatePaymentGuard) {
		g.logger = logger
	}
}

// WithGuardMessages sets the catalog used for the cool-down message
func WithGuardMessages(messages *Messages) GuardOption {
	return func(g *DuplicatePaymentGuard) {
		g.messages = messages
	}
}

// NewDuplicatePaymentGuard creates a guard over the registry
func NewDuplicatePaymentGuard(registry RateLimitRegistry, opts ...GuardOption) *DuplicatePaymentGuard {
	g := &DuplicatePaymentGuard{
		registry:  registry,
		threshold: DefaultAttemptThreshold,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.messages == nil {
		g.messages = MustMessages()
	}
	return g
}

// Threshold returns the configured threshold
func (g *DuplicatePaymentGuard) Threshold() int {
	return g.threshold
}

// Allow returns a rate-limited error when the session reached the threshold.
// A registry failure does not block checkout.
func (g *DuplicatePaymentGuard) Allow(ctx context.Context, session string) error {
	attempts, err := g.registry.Attempts(ctx, session)
	if err != nil {
		g.logger.Warn("rate limit registry unavailable", zap.String("session", session), zap.Error(err))
		return nil
	}
	if attempts >= g.threshold {
		g.logger.Info("payment attempt refused",
			zap.String("session", session),
			zap.Int("attempts", attempts),
			zap.Int("threshold", g.threshold))
		return NewRateLimitedError(g.messages.Text(MsgTooManyAttempts))
	}
	return nil
}

// RecordOutcome resets the counter on success and counts recoverable
// failures. Other failures leave the counter untouched.
func (g *DuplicatePaymentGuard) RecordOutcome(ctx context.Context, session string, outcome error) {
	if outcome == nil {
		if err := g.registry.Reset(ctx, session); err != nil {
			g.logger.Warn("failed to reset rate limit", zap.String("session", session), zap.Error(err))
		}
		return
	}
	if !IsRecoverable(outcome) {
		return
	}
	count, err := g.registry.RecordDecline(ctx, session)
	if err != nil {
		g.logger.Warn("failed to record declined attempt", zap.String("session", session), zap.Error(err))
		return
	}
	g.logger.Debug("declined attempt recorded", zap.String("session", session), zap.Int("attempts", count))
}
