package ratelimit

import "time"

// config holds the configuration shared by the registries.
type config struct {
	window    time.Duration
	keyPrefix string
	now       func() time.Time
}

func defaultConfig() config {
	return config{
		window:    DefaultWindow,
		keyPrefix: DefaultKeyPrefix,
		now:       time.Now,
	}
}

// Option configures a registry.
type Option func(*config)

// WithWindow sets how long a session's declines are counted.
//
// Default: 10 minutes
func WithWindow(window time.Duration) Option {
	return func(c *config) {
		if window > 0 {
			c.window = window
		}
	}
}

// WithKeyPrefix namespaces the Redis keys, for example per store.
//
// Only applies to RedisRegistry.
func WithKeyPrefix(prefix string) Option {
	return func(c *config) {
		c.keyPrefix = prefix
	}
}

// WithClock overrides the time source of MemoryRegistry, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}
