package checkout

import (
	"context"
	"sync"
	"time"
)

// ConfirmationCache deduplicates confirmations of the same intent on the
// server. A confirmation that is already running is shared with later
// callers, and a settled one is replayed until its TTL expires, so a
// retried request never charges twice.
type ConfirmationCache struct {
	mu       sync.Mutex
	results  map[string]*ConfirmResult
	expiry   map[string]time.Time
	inFlight map[string]chan struct{}
	ttl      time.Duration
	now      func() time.Time
}

// NewConfirmationCache creates a cache keeping completed confirmations for ttl
func NewConfirmationCache(ttl time.Duration) *ConfirmationCache {
	return &ConfirmationCache{
		results:  make(map[string]*ConfirmResult),
		expiry:   make(map[string]time.Time),
		inFlight: make(map[string]chan struct{}),
		ttl:      ttl,
		now:      time.Now,
	}
}

// ConfirmationStatus is the result of looking up an intent in the cache
type ConfirmationStatus int

const (
	// ConfirmationNotFound means the caller now owns the confirmation
	ConfirmationNotFound ConfirmationStatus = iota
	// ConfirmationCached means a completed result is available
	ConfirmationCached
	// ConfirmationInFlight means another caller is confirming the intent
	ConfirmationInFlight
)

// CheckAndMark looks up the intent and marks it in flight when absent.
// The returned channel must be passed to Complete or Fail by the owner, and
// waited on by everyone else.
func (c *ConfirmationCache) CheckAndMark(intentID string) (ConfirmationStatus, *ConfirmResult, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if result, ok := c.getLocked(intentID); ok {
		return ConfirmationCached, result, nil
	}
	if done, exists := c.inFlight[intentID]; exists {
		return ConfirmationInFlight, nil, done
	}

	done := make(chan struct{})
	c.inFlight[intentID] = done
	return ConfirmationNotFound, nil, done
}

// WaitForResult waits for the in-flight confirmation. A nil result means the
// other caller failed and the confirmation may be retried.
func (c *ConfirmationCache) WaitForResult(ctx context.Context, intentID string, done chan struct{}) (*ConfirmResult, error) {
	select {
	case <-done:
		c.mu.Lock()
		defer c.mu.Unlock()
		result, _ := c.getLocked(intentID)
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Complete stores the result and releases waiters
func (c *ConfirmationCache) Complete(intentID string, result *ConfirmResult, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[intentID] = result
	c.expiry[intentID] = c.now().Add(c.ttl)
	delete(c.inFlight, intentID)
	close(done)

	c.cleanupExpiredLocked()
}

// Fail releases waiters without storing a result
func (c *ConfirmationCache) Fail(intentID string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, intentID)
	close(done)
}

// Do runs confirm once per intent. Concurrent callers share the outcome of
// the running call; callers arriving after a failure or a result that needs
// the shopper run it again.
func (c *ConfirmationCache) Do(ctx context.Context, intentID string, confirm func() (*ConfirmResult, error)) (*ConfirmResult, error) {
	for {
		status, result, done := c.CheckAndMark(intentID)
		switch status {
		case ConfirmationCached:
			return result, nil
		case ConfirmationInFlight:
			result, err := c.WaitForResult(ctx, intentID, done)
			if err != nil {
				return nil, err
			}
			if result != nil {
				return result, nil
			}
			continue
		}

		result, err := confirm()
		if err != nil {
			c.Fail(intentID, done)
			return nil, err
		}
		if !replayable(result) {
			c.Fail(intentID, done)
			return result, nil
		}
		c.Complete(intentID, result, done)
		return result, nil
	}
}

// replayable reports whether a result still holds once the shopper acts.
// An intent waiting on authentication or a new payment method is confirmed
// again by the next request.
func replayable(result *ConfirmResult) bool {
	return result != nil && (result.Status.IsTerminal() || result.Status == StatusProcessing)
}

// getLocked returns a live result. Must be called with lock held.
func (c *ConfirmationCache) getLocked(intentID string) (*ConfirmResult, bool) {
	expiry, exists := c.expiry[intentID]
	if !exists {
		return nil, false
	}
	if !c.now().Before(expiry) {
		delete(c.results, intentID)
		delete(c.expiry, intentID)
		return nil, false
	}
	return c.results[intentID], true
}

// cleanupExpiredLocked removes expired entries. Must be called with lock held.
func (c *ConfirmationCache) cleanupExpiredLocked() {
	now := c.now()
	for key, expiry := range c.expiry {
		if !now.Before(expiry) {
			delete(c.results, key)
			delete(c.expiry, key)
		}
	}
}
