package config

import "errors"

// Config validation errors
var (
	ErrInvalidEnv         = errors.New("config: CHECKOUT_ENV must be development or production")
	ErrMissingPort        = errors.New("config: port is required")
	ErrMissingStripeKey   = errors.New("config: STRIPE_SECRET_KEY is required")
	ErrInvalidTokenSecret = errors.New("config: CHECKOUT_TOKEN_SECRET must be at least 32 bytes")
	ErrInvalidReturnURL   = errors.New("config: order received URL must be absolute")
	ErrInvalidStoreURL    = errors.New("config: CHECKOUT_STORE_URL must be an absolute URL")
	ErrInvalidThreshold   = errors.New("config: rate limit threshold must be positive")
	ErrInvalidWindow      = errors.New("config: rate limit window must be positive")
	ErrInvalidMethod      = errors.New("config: payment method type is required")
	ErrInvalidConfig      = errors.New("config: invalid configuration")
)

// File errors
var (
	ErrReadFile   = errors.New("config: failed to read config file")
	ErrDecodeFile = errors.New("config: failed to decode config file")
)
