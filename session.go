package checkout

import "sync"

// Session field keys
const (
	SessionKeyPaymentIntent  = "upe_payment_intent"
	SessionKeySetupIntent    = "upe_setup_intent"
	SessionKeySelectedMethod = "wcpay_selected_upe_payment_type"
	SessionKeyPaymentCountry = "wcpay_payment_country"
)

// MemorySession is a SessionStore backed by a map
type MemorySession struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemorySession creates an empty session
func NewMemorySession() *MemorySession {
	return &MemorySession{values: make(map[string]string)}
}

func (s *MemorySession) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemorySession) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *MemorySession) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Clear drops every field, as when the shopping session ends.
func (s *MemorySession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
}

var _ SessionStore = (*MemorySession)(nil)
