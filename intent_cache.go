package checkout

import (
	"strings"
)

const cacheSeparator = "-"

// IntentCache maps a cart fingerprint to the intent already created for it,
// so a reload or re-render does not create a second intent for the same cart.
//
// Payment intents are stored as <fingerprint>-<id>-<secret>[-<status>] and
// are only returned while the stored value starts with the current cart
// fingerprint. Setup intents are stored as <id>-<secret> and are valid for
// the whole session.
type IntentCache struct {
	store SessionStore
}

// NewIntentCache creates an intent cache over the session store
func NewIntentCache(store SessionStore) *IntentCache {
	return &IntentCache{store: store}
}

// EncodeCachedIntent renders the session value for a payment intent
func EncodeCachedIntent(fingerprint Fingerprint, intent *Intent) string {
	parts := []string{string(fingerprint), intent.ID, intent.ClientSecret}
	if intent.Status != "" {
		parts = append(parts, string(intent.Status))
	}
	return strings.Join(parts, cacheSeparator)
}

// Get returns the cached payment intent for the fingerprint. Entries written
// for another cart, malformed entries and terminal intents are treated as
// absent.
func (c *IntentCache) Get(fingerprint Fingerprint) (*Intent, bool) {
	if fingerprint == "" {
		return nil, false
	}
	value, ok := c.store.Get(SessionKeyPaymentIntent)
	if !ok || !strings.HasPrefix(value, string(fingerprint)) {
		return nil, false
	}

	rest := strings.TrimPrefix(value, string(fingerprint))
	if !strings.HasPrefix(rest, cacheSeparator) {
		return nil, false
	}
	intent, ok := decodeIntent(strings.TrimPrefix(rest, cacheSeparator))
	if !ok || intent.Status.IsTerminal() {
		return nil, false
	}
	intent.Kind = KindPayment
	return intent, true
}

// Put caches a payment intent for the fingerprint. Terminal intents are not
// reusable and are not cached.
func (c *IntentCache) Put(fingerprint Fingerprint, intent *Intent) {
	if fingerprint == "" || intent == nil || intent.ID == "" {
		return
	}
	if intent.Status.IsTerminal() {
		c.store.Delete(SessionKeyPaymentIntent)
		return
	}
	c.store.Set(SessionKeyPaymentIntent, EncodeCachedIntent(fingerprint, intent))
}

// Invalidate drops the payment intent cached for the fingerprint
func (c *IntentCache) Invalidate(fingerprint Fingerprint) {
	if _, ok := c.Get(fingerprint); ok {
		c.store.Delete(SessionKeyPaymentIntent)
	}
}

// GetSetup returns the setup intent cached for the session
func (c *IntentCache) GetSetup() (*Intent, bool) {
	value, ok := c.store.Get(SessionKeySetupIntent)
	if !ok {
		return nil, false
	}
	intent, ok := decodeIntent(value)
	if !ok || intent.Status.IsTerminal() {
		return nil, false
	}
	intent.Kind = KindSetup
	return intent, true
}

// PutSetup caches a setup intent for the session
func (c *IntentCache) PutSetup(intent *Intent) {
	if intent == nil || intent.ID == "" {
		return
	}
	if intent.Status.IsTerminal() {
		c.store.Delete(SessionKeySetupIntent)
		return
	}
	parts := []string{intent.ID, intent.ClientSecret}
	if intent.Status != "" {
		parts = append(parts, string(intent.Status))
	}
	c.store.Set(SessionKeySetupIntent, strings.Join(parts, cacheSeparator))
}

func decodeIntent(value string) (*Intent, bool) {
	parts := strings.Split(value, cacheSeparator)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, false
	}
	intent := &Intent{ID: parts[0], ClientSecret: parts[1]}
	if len(parts) > 2 {
		intent.Status = IntentStatus(parts[2])
	}
	return intent, true
}
