// Package ratelimit throttles requests per source key within a fixed window.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether a request from key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Config sets the window length and the number of requests allowed per window.
type Config struct {
	Window      time.Duration
	MaxRequests int
}

// DefaultConfig is the payment callback budget: 10 requests per hour per source.
func DefaultConfig() Config {
	return Config{
		Window:      time.Hour,
		MaxRequests: 10,
	}
}
