package checkout

import (
	"context"
	"time"
)

// ============================================================================
// Confirmation Hook Context Types
// ============================================================================

// ConfirmContext describes the attempt passed to confirmation hooks
type ConfirmContext struct {
	Ctx               context.Context
	Session           string
	IntentID          string
	Kind              IntentKind
	PaymentMethodType string
	OrderID           string
	Timestamp         time.Time
}

// ConfirmResultContext contains a completed attempt
type ConfirmResultContext struct {
	ConfirmContext
	Result    *ConfirmResult
	Duplicate bool
	Duration  time.Duration
}

// ConfirmFailureContext contains a failed attempt
type ConfirmFailureContext struct {
	ConfirmContext
	Error    error
	Duration time.Duration
}

// BeforeHookResult represents the result of a "before" hook
// If Abort is true, the attempt is refused with the given Reason
type BeforeHookResult struct {
	Abort  bool
	Reason string
}

// ============================================================================
// Hook Function Types
// ============================================================================

// BeforeConfirmHook runs before the intent is updated and confirmed
type BeforeConfirmHook func(ConfirmContext) (*BeforeHookResult, error)

// AfterConfirmHook runs after an attempt completed, including duplicates
type AfterConfirmHook func(ConfirmResultContext) error

// OnConfirmFailureHook runs after an attempt failed
type OnConfirmFailureHook func(ConfirmFailureContext) error

// ============================================================================
// Hook Registration
// ============================================================================

// OnBeforeConfirm registers a hook to execute before each confirmation attempt
func (o *ConfirmationOrchestrator) OnBeforeConfirm(hook BeforeConfirmHook) *ConfirmationOrchestrator {
	o.hooksMu.Lock()
	defer o.hooksMu.Unlock()
	o.beforeConfirmHooks = append(o.beforeConfirmHooks, hook)
	return o
}

// OnAfterConfirm registers a hook to execute after a successful attempt
func (o *ConfirmationOrchestrator) OnAfterConfirm(hook AfterConfirmHook) *ConfirmationOrchestrator {
	o.hooksMu.Lock()
	defer o.hooksMu.Unlock()
	o.afterConfirmHooks = append(o.afterConfirmHooks, hook)
	return o
}

// OnConfirmFailure registers a hook to execute when an attempt fails
func (o *ConfirmationOrchestrator) OnConfirmFailure(hook OnConfirmFailureHook) *ConfirmationOrchestrator {
	o.hooksMu.Lock()
	defer o.hooksMu.Unlock()
	o.onConfirmFailureHooks = append(o.onConfirmFailureHooks, hook)
	return o
}
