package decoupled

import (
	"context"
	"errors"
)

// MerchantCustomerIDMeta is the order meta cleared once identity is resolved
const MerchantCustomerIDMeta = "woopay_merchant_customer_id"

var (
	// ErrInvalidToken means the cart token could not be trusted; the request is anonymous
	ErrInvalidToken = errors.New("decoupled: invalid cart token")
	// ErrAmbiguousIdentity means the request must not be tied to any specific user
	ErrAmbiguousIdentity = errors.New("decoupled: ambiguous identity")
	// ErrOrderNotFound is returned by order stores for an unknown order
	ErrOrderNotFound = errors.New("decoupled: order not found")
	// ErrMissingSecret is returned when no token secret is configured
	ErrMissingSecret = errors.New("decoupled: token secret is required")
)

// SessionCustomer is the customer part of a shopping session. ID is kept as
// stored; sessions written by plugins may hold non-numeric values.
type SessionCustomer struct {
	ID    string
	Email string
}

// Order holds the fields identity resolution reads or writes
type Order struct {
	ID           int64
	CustomerID   int64
	BillingEmail string
	Meta         map[string]string
}

// UserDirectory looks up store users
type UserDirectory interface {
	// UserIDByEmail returns the id of the user with exactly this email
	UserIDByEmail(ctx context.Context, email string) (int64, bool, error)
}

// SessionReader reads shopping sessions by cart key
type SessionReader interface {
	Customer(ctx context.Context, cartKey string) (SessionCustomer, bool, error)
}

// OrderStore reads and writes orders
type OrderStore interface {
	Order(ctx context.Context, id int64) (*Order, error)
	SaveOrder(ctx context.Context, order *Order) error
}

// RuntimeInspector reports the runtime state corroboration depends on
type RuntimeInspector interface {
	// FeatureEnabled reports whether decoupled checkout is enabled for the store
	FeatureEnabled(ctx context.Context) bool
	// ActivePlugins lists the active plugins that affect session state
	ActivePlugins(ctx context.Context) ([]string, error)
}

// StaticRuntime is a RuntimeInspector with fixed answers
type StaticRuntime struct {
	Enabled bool
	Plugins []string
}

func (s StaticRuntime) FeatureEnabled(ctx context.Context) bool {
	return s.Enabled
}

func (s StaticRuntime) ActivePlugins(ctx context.Context) ([]string, error) {
	return s.Plugins, nil
}
