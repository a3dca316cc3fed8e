package ratelimit

import (
	"errors"
	"time"
)

const (
	// DefaultWindow is the rolling window of declined attempts
	DefaultWindow = 10 * time.Minute
	// DefaultKeyPrefix namespaces Redis counters
	DefaultKeyPrefix = "checkout:ratelimit:"
)

// ErrEmptySession is returned for an empty session key; without a key every
// shopper would share one counter.
var ErrEmptySession = errors.New("ratelimit: session key is required")
