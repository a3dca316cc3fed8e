package checkout

import (
	"testing"
)

func TestIntentCache_PutThenGet(t *testing.T) {
	cache := NewIntentCache(NewMemorySession())
	intent := &Intent{ID: "pi_123", ClientSecret: "pi_123_secret_abc", Status: StatusRequiresPaymentMethod}

	cache.Put("cart0a1b", intent)

	got, ok := cache.Get("cart0a1b")
	if !ok {
		t.Fatal("Expected cached intent to be found")
	}
	if got.ID != "pi_123" || got.ClientSecret != "pi_123_secret_abc" {
		t.Errorf("Expected pi_123 with its secret, got %+v", got)
	}
	if got.Kind != KindPayment {
		t.Errorf("Expected payment kind, got %s", got.Kind)
	}
}

func TestIntentCache_StaleCart(t *testing.T) {
	cache := NewIntentCache(NewMemorySession())
	cache.Put("cart0a1b", &Intent{ID: "pi_123", ClientSecret: "pi_123_secret_abc"})

	if _, ok := cache.Get("cart9f9f"); ok {
		t.Error("Expected intent for a changed cart to be absent")
	}
	if _, ok := cache.Get(""); ok {
		t.Error("Expected empty fingerprint to never match")
	}
}

func TestIntentCache_PrefixMatch(t *testing.T) {
	session := NewMemorySession()
	cache := NewIntentCache(session)

	// Values rendered by the store carry the cart hash as the first part.
	session.Set(SessionKeyPaymentIntent, "abc123-pi_9-pi_9_secret_x")

	got, ok := cache.Get("abc123")
	if !ok || got.ID != "pi_9" || got.ClientSecret != "pi_9_secret_x" {
		t.Errorf("Expected pi_9 from prefix match, got %+v (found=%v)", got, ok)
	}

	// A prefix of the fingerprint that does not end on a separator is not a match.
	if _, ok := cache.Get("abc12"); ok {
		t.Error("Expected partial fingerprint to be rejected")
	}
}

func TestIntentCache_SecretWithoutMatchingCart(t *testing.T) {
	session := NewMemorySession()
	session.Set(SessionKeyPaymentIntent, "othercart-pi_1-pi_1_secret_y")
	cache := NewIntentCache(session)

	if _, ok := cache.Get("mycart"); ok {
		t.Error("Expected mismatched cart to be rejected even though a secret is present")
	}
}

func TestIntentCache_MalformedEntries(t *testing.T) {
	tests := []string{
		"cart",
		"cart-",
		"cart-pi_1",
		"cart--secret",
	}
	for _, value := range tests {
		session := NewMemorySession()
		session.Set(SessionKeyPaymentIntent, value)
		if got, ok := NewIntentCache(session).Get("cart"); ok {
			t.Errorf("Expected %q to be absent, got %+v", value, got)
		}
	}
}

func TestIntentCache_TerminalIntents(t *testing.T) {
	cache := NewIntentCache(NewMemorySession())

	cache.Put("cart", &Intent{ID: "pi_1", ClientSecret: "s1", Status: StatusSucceeded})
	if _, ok := cache.Get("cart"); ok {
		t.Error("Expected terminal intent not to be cached")
	}

	session := NewMemorySession()
	session.Set(SessionKeyPaymentIntent, "cart-pi_2-s2-canceled")
	if _, ok := NewIntentCache(session).Get("cart"); ok {
		t.Error("Expected stored canceled intent to be absent")
	}
}

func TestIntentCache_TerminalPutReplacesLiveEntry(t *testing.T) {
	cache := NewIntentCache(NewMemorySession())
	cache.Put("cart", &Intent{ID: "pi_1", ClientSecret: "s1"})
	cache.Put("cart", &Intent{ID: "pi_1", ClientSecret: "s1", Status: StatusFailed})

	if _, ok := cache.Get("cart"); ok {
		t.Error("Expected entry to be dropped once the intent failed")
	}
}

func TestIntentCache_Invalidate(t *testing.T) {
	cache := NewIntentCache(NewMemorySession())
	cache.Put("cart", &Intent{ID: "pi_1", ClientSecret: "s1"})

	cache.Invalidate("othercart")
	if _, ok := cache.Get("cart"); !ok {
		t.Error("Expected invalidating another cart to keep the entry")
	}

	cache.Invalidate("cart")
	if _, ok := cache.Get("cart"); ok {
		t.Error("Expected entry to be gone after invalidate")
	}
}

func TestIntentCache_SetupIntent(t *testing.T) {
	session := NewMemorySession()
	session.Set(SessionKeySetupIntent, "seti_1-seti_1_secret_z")
	cache := NewIntentCache(session)

	got, ok := cache.GetSetup()
	if !ok || got.ID != "seti_1" || got.ClientSecret != "seti_1_secret_z" || got.Kind != KindSetup {
		t.Errorf("Expected seti_1 setup intent, got %+v (found=%v)", got, ok)
	}

	cache.PutSetup(&Intent{ID: "seti_2", ClientSecret: "seti_2_secret"})
	got, _ = cache.GetSetup()
	if got.ID != "seti_2" {
		t.Errorf("Expected seti_2, got %s", got.ID)
	}
}
