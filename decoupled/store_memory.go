package decoupled

import (
	"context"
	"sync"
)

// MemoryStore keeps users, sessions and orders in memory
type MemoryStore struct {
	mu       sync.RWMutex
	nextUser int64
	users    map[string]int64
	sessions map[string]SessionCustomer
	orders   map[int64]*Order
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]int64),
		sessions: make(map[string]SessionCustomer),
		orders:   make(map[int64]*Order),
	}
}

// AddUser registers a user and returns its id
func (s *MemoryStore) AddUser(email string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUser++
	s.users[email] = s.nextUser
	return s.nextUser
}

// PutSession stores the session customer for a cart key
func (s *MemoryStore) PutSession(cartKey string, customer SessionCustomer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[cartKey] = customer
}

// PutOrder stores a copy of the order
func (s *MemoryStore) PutOrder(order *Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = copyOrder(order)
}

func (s *MemoryStore) UserIDByEmail(ctx context.Context, email string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.users[email]
	return id, ok, nil
}

func (s *MemoryStore) Customer(ctx context.Context, cartKey string) (SessionCustomer, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	customer, ok := s.sessions[cartKey]
	return customer, ok, nil
}

func (s *MemoryStore) Order(ctx context.Context, id int64) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return copyOrder(order), nil
}

func (s *MemoryStore) SaveOrder(ctx context.Context, order *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; !ok {
		return ErrOrderNotFound
	}
	s.orders[order.ID] = copyOrder(order)
	return nil
}

func copyOrder(o *Order) *Order {
	c := *o
	c.Meta = make(map[string]string, len(o.Meta))
	for k, v := range o.Meta {
		c.Meta[k] = v
	}
	return &c
}

var (
	_ UserDirectory = (*MemoryStore)(nil)
	_ SessionReader = (*MemoryStore)(nil)
	_ OrderStore    = (*MemoryStore)(nil)
)
