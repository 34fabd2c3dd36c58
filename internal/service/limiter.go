package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/swg-labs/smssend-api/pkg/config"
	appErrors "github.com/swg-labs/smssend-api/pkg/errors"
)

type rateLimitStore interface {
	Hit(ctx context.Context, key string, maxCount int, window, block time.Duration) (bool, time.Duration, error)
}

// RateLimiter applies the per-action sliding-window policies. Keys are
// "action:dimension:value" so one table serves every flow. Every hit
// counts, successful or not.
type RateLimiter struct {
	store    rateLimitStore
	policies config.RateLimitConfig
	logger   *zap.Logger
}

// NewRateLimiter constructs a RateLimiter.
func NewRateLimiter(store rateLimitStore, policies config.RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{store: store, policies: policies, logger: logger}
}

// LoginIP throttles login attempts per client address.
func (l *RateLimiter) LoginIP(ctx context.Context, ip string) error {
	return l.check(ctx, "login:ip:"+ip, l.policies.LoginIP)
}

// LoginEmail throttles login attempts per target account.
func (l *RateLimiter) LoginEmail(ctx context.Context, email string) error {
	return l.check(ctx, "login:email:"+email, l.policies.LoginEmail)
}

// RegisterIP throttles registrations per client address.
func (l *RateLimiter) RegisterIP(ctx context.Context, ip string) error {
	return l.check(ctx, "register:ip:"+ip, l.policies.RegisterIP)
}

// ForgotIP throttles reset-code requests per client address.
func (l *RateLimiter) ForgotIP(ctx context.Context, ip string) error {
	return l.check(ctx, "forgot:ip:"+ip, l.policies.ForgotIP)
}

// ResetIP throttles reset confirmations per client address.
func (l *RateLimiter) ResetIP(ctx context.Context, ip string) error {
	return l.check(ctx, "reset:ip:"+ip, l.policies.ResetIP)
}

// ResetEmail throttles reset confirmations per target account, the main
// brake on brute-forcing short codes.
func (l *RateLimiter) ResetEmail(ctx context.Context, email string) error {
	return l.check(ctx, "reset:email:"+email, l.policies.ResetEmail)
}

func (l *RateLimiter) check(ctx context.Context, key string, policy config.RatePolicy) error {
	limited, retry, err := l.store.Hit(ctx, key, policy.MaxCount, policy.Window, policy.Block)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("rate limit check for %s failed", key))
	}
	if limited {
		seconds := int(math.Ceil(retry.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		l.logger.Warn("rate limited", zap.String("key", key), zap.Int("retry_after", seconds))
		return appErrors.RateLimited(seconds)
	}
	return nil
}
