package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/swg-labs/smssend-api/pkg/config"
	appErrors "github.com/swg-labs/smssend-api/pkg/errors"
)

type recordingStore struct {
	keys    []string
	limited bool
	retry   time.Duration
	err     error
}

func (s *recordingStore) Hit(ctx context.Context, key string, maxCount int, window, block time.Duration) (bool, time.Duration, error) {
	s.keys = append(s.keys, key)
	return s.limited, s.retry, s.err
}

func testRatePolicies() config.RateLimitConfig {
	policy := config.RatePolicy{MaxCount: 5, Window: 10 * time.Minute, Block: 15 * time.Minute}
	return config.RateLimitConfig{
		LoginIP:    policy,
		LoginEmail: policy,
		RegisterIP: policy,
		ForgotIP:   policy,
		ResetIP:    policy,
		ResetEmail: policy,
	}
}

func TestRateLimiterKeyComposition(t *testing.T) {
	store := &recordingStore{}
	limiter := NewRateLimiter(store, testRatePolicies(), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, limiter.LoginIP(ctx, "203.0.113.10"))
	require.NoError(t, limiter.LoginEmail(ctx, "user@example.com"))
	require.NoError(t, limiter.RegisterIP(ctx, "203.0.113.10"))
	require.NoError(t, limiter.ForgotIP(ctx, "203.0.113.10"))
	require.NoError(t, limiter.ResetIP(ctx, "203.0.113.10"))
	require.NoError(t, limiter.ResetEmail(ctx, "user@example.com"))

	assert.Equal(t, []string{
		"login:ip:203.0.113.10",
		"login:email:user@example.com",
		"register:ip:203.0.113.10",
		"forgot:ip:203.0.113.10",
		"reset:ip:203.0.113.10",
		"reset:email:user@example.com",
	}, store.keys)
}

func TestRateLimiterLimitedCarriesRetryAfter(t *testing.T) {
	store := &recordingStore{limited: true, retry: 61 * time.Second}
	limiter := NewRateLimiter(store, testRatePolicies(), zap.NewNop())

	err := limiter.LoginIP(context.Background(), "203.0.113.10")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrRateLimited.Code, appErr.Code)
	assert.Equal(t, 61, appErr.RetryAfter)
}

func TestRateLimiterSubSecondRetryRoundsUp(t *testing.T) {
	store := &recordingStore{limited: true, retry: 200 * time.Millisecond}
	limiter := NewRateLimiter(store, testRatePolicies(), zap.NewNop())

	err := limiter.ResetEmail(context.Background(), "user@example.com")
	require.Error(t, err)
	assert.Equal(t, 1, appErrors.FromError(err).RetryAfter)
}

func TestRateLimiterStoreErrorIsInternal(t *testing.T) {
	store := &recordingStore{err: assert.AnError}
	limiter := NewRateLimiter(store, testRatePolicies(), zap.NewNop())

	err := limiter.LoginEmail(context.Background(), "user@example.com")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
