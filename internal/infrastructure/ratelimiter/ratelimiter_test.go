package ratelimiter

import (
	"testing"
	"time"

	"github.com/hilthontt/codenexus/internal/infrastructure/configs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     configs.RateLimiterConfig
		want    any
		wantErr bool
	}{
		{
			name: "default strategy is fixed window",
			cfg:  configs.RateLimiterConfig{RequestsPerTimeFrame: 1, TimeFrame: time.Minute},
			want: &FixedWindowRateLimiter{},
		},
		{
			name: "token bucket",
			cfg:  configs.RateLimiterConfig{Strategy: StrategyTokenBucket, MaxRatePerSecond: 1, MaxBurst: 1},
			want: &TokenBucketRateLimiter{},
		},
		{
			name:    "fixed window without limit",
			cfg:     configs.RateLimiterConfig{Strategy: StrategyFixedWindow},
			wantErr: true,
		},
		{
			name:    "unknown strategy",
			cfg:     configs.RateLimiterConfig{Strategy: "leaky"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer l.Close()
			assert.IsType(t, tt.want, l)
		})
	}
}

func TestFixedWindow_Allow(t *testing.T) {
	rl := NewFixedWindowRateLimiter(2, time.Minute)
	defer rl.Close()

	base := time.Date(2024, 1, 1, 12, 0, 10, 0, time.UTC)
	rl.now = func() time.Time { return base }

	ok, _ := rl.Allow("a")
	assert.True(t, ok)
	ok, _ = rl.Allow("a")
	assert.True(t, ok)

	ok, retry := rl.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, 50*time.Second, retry)

	ok, _ = rl.Allow("b")
	assert.True(t, ok, "clients are counted separately")

	rl.now = func() time.Time { return base.Add(time.Minute) }
	ok, _ = rl.Allow("a")
	assert.True(t, ok, "a new window resets the count")
}

func TestTokenBucket_Allow(t *testing.T) {
	rl := NewTokenBucketRateLimiter(1, 2, time.Minute)
	defer rl.Close()

	ok, _ := rl.Allow("a")
	assert.True(t, ok)
	ok, _ = rl.Allow("a")
	assert.True(t, ok)

	ok, retry := rl.Allow("a")
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))

	ok, _ = rl.Allow("b")
	assert.True(t, ok)
}

func TestClose_Idempotent(t *testing.T) {
	rl := NewFixedWindowRateLimiter(1, time.Minute)
	rl.Close()
	assert.NotPanics(t, rl.Close)
}
