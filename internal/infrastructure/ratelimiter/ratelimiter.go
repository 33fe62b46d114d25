package ratelimiter

import (
	"fmt"
	"time"

	"github.com/hilthontt/codenexus/internal/infrastructure/configs"
)

const (
	StrategyFixedWindow = "fixed-window"
	StrategyTokenBucket = "token-bucket"
)

// Limiter decides per client key whether a request may pass. The duration
// is a retry hint and is zero when the request is allowed.
type Limiter interface {
	Allow(key string) (bool, time.Duration)
	Close()
}

func New(cfg configs.RateLimiterConfig) (Limiter, error) {
	switch cfg.Strategy {
	case "", StrategyFixedWindow:
		if cfg.RequestsPerTimeFrame <= 0 || cfg.TimeFrame <= 0 {
			return nil, fmt.Errorf("ratelimiter: fixed window needs a positive limit and time frame")
		}
		return NewFixedWindowRateLimiter(cfg.RequestsPerTimeFrame, cfg.TimeFrame), nil
	case StrategyTokenBucket:
		if cfg.MaxRatePerSecond <= 0 || cfg.MaxBurst <= 0 {
			return nil, fmt.Errorf("ratelimiter: token bucket needs a positive rate and burst")
		}
		return NewTokenBucketRateLimiter(cfg.MaxRatePerSecond, cfg.MaxBurst, time.Minute), nil
	default:
		return nil, fmt.Errorf("ratelimiter: unknown strategy %q, supported: [%s, %s]", cfg.Strategy, StrategyFixedWindow, StrategyTokenBucket)
	}
}
