package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swg-labs/smssend-api/internal/models"
	"github.com/swg-labs/smssend-api/internal/repository"
	"github.com/swg-labs/smssend-api/internal/security"
	"github.com/swg-labs/smssend-api/pkg/config"
	appErrors "github.com/swg-labs/smssend-api/pkg/errors"
)

type authUserRepository interface {
	FindByNormalizedEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	RecordLoginFailure(ctx context.Context, id string, threshold int, lockedUntil time.Time) (int, *time.Time, error)
	ClearLockout(ctx context.Context, id string) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

type authTokenRepository interface {
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	FindRefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldHash string, next *models.RefreshToken) error
	RevokeRefreshTokenByHash(ctx context.Context, hash string, ts time.Time) (bool, error)
}

type loginLimiter interface {
	LoginIP(ctx context.Context, ip string) error
	LoginEmail(ctx context.Context, email string) error
}

type authMetrics interface {
	ObserveAuthOutcome(outcome string)
}

// AuthService orchestrates login, refresh rotation, and logout.
type AuthService struct {
	users     authUserRepository
	tokens    authTokenRepository
	audit     auditRecorder
	limiter   loginLimiter
	hasher    *security.PasswordHasher
	codec     *security.TokenCodec
	metrics   authMetrics
	validator *validator.Validate
	logger    *zap.Logger
	config    config.AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	users authUserRepository,
	tokens authTokenRepository,
	audit auditRecorder,
	limiter loginLimiter,
	hasher *security.PasswordHasher,
	codec *security.TokenCodec,
	metrics authMetrics,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg config.AuthConfig,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{
		users:     users,
		tokens:    tokens,
		audit:     audit,
		limiter:   limiter,
		hasher:    hasher,
		codec:     codec,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    cfg,
	}
}

// Login authenticates a user and opens a refresh session. Unknown email,
// wrong password, and inactive account all collapse into the same
// INVALID_CREDENTIALS answer.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, meta models.ClientMeta) (*models.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	email := security.NormalizeEmail(req.Email)

	if err := s.limiter.LoginIP(ctx, meta.IP); err != nil {
		s.observe("rate_limited")
		return nil, err
	}
	if err := s.limiter.LoginEmail(ctx, email); err != nil {
		s.observe("rate_limited")
		return nil, err
	}

	now := time.Now().UTC()

	user, err := s.users.FindByNormalizedEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.observe("fail")
			recordAudit(ctx, s.audit, s.logger, nil, models.AuditActionLoginFail, meta, map[string]interface{}{"email": email, "reason": "unknown_account"})
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if !user.Active {
		s.observe("fail")
		recordAudit(ctx, s.audit, s.logger, &user.ID, models.AuditActionLoginFail, meta, map[string]interface{}{"reason": "inactive"})
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	// Locked accounts fail before the password is even checked, so a
	// correct guess during the lock window learns nothing and does not
	// touch the counters.
	if user.Locked(now) {
		s.observe("locked")
		recordAudit(ctx, s.audit, s.logger, &user.ID, models.AuditActionLoginLocked, meta, nil)
		return nil, appErrors.AccountLocked(retrySeconds(user.LockedUntil.Sub(now)))
	}

	if !user.Verified() {
		s.observe("fail")
		recordAudit(ctx, s.audit, s.logger, &user.ID, models.AuditActionLoginFail, meta, map[string]interface{}{"reason": "unverified"})
		return nil, appErrors.Clone(appErrors.ErrEmailNotVerified, "")
	}

	ok, legacy, err := s.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify password")
	}
	if !ok {
		count, lockedUntil, err := s.users.RecordLoginFailure(ctx, user.ID, s.config.LockoutFailThreshold, now.Add(s.config.LockoutDuration))
		if err != nil {
			s.logger.Warn("failed to record login failure", zap.Error(err))
		}
		s.observe("fail")
		recordAudit(ctx, s.audit, s.logger, &user.ID, models.AuditActionLoginFail, meta, map[string]interface{}{"reason": "bad_password", "failed_count": count})
		if lockedUntil != nil && lockedUntil.After(now) {
			s.observe("locked")
			recordAudit(ctx, s.audit, s.logger, &user.ID, models.AuditActionLoginLocked, meta, nil)
		}
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	// Retire weak or pre-pepper hashes while we still have the plaintext.
	if legacy || s.hasher.NeedsRehash(user.PasswordHash) {
		if rehash, err := s.hasher.Hash(req.Password); err != nil {
			s.logger.Warn("failed to rehash password", zap.Error(err))
		} else if err := s.users.UpdatePassword(ctx, user.ID, rehash); err != nil {
			s.logger.Warn("failed to store rehashed password", zap.Error(err))
		}
	}

	if user.FailedLoginCount > 0 || user.LockedUntil != nil {
		if err := s.users.ClearLockout(ctx, user.ID); err != nil {
			s.logger.Warn("failed to clear lockout", zap.Error(err))
		}
	}
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	pair, err := s.issuePair(ctx, user, meta, now)
	if err != nil {
		return nil, err
	}

	s.observe("success")
	recordAudit(ctx, s.audit, s.logger, &user.ID, models.AuditActionLoginSuccess, meta, nil)
	return pair, nil
}

// Refresh rotates a refresh session: the presented token is revoked and a
// successor issued atomically. A revoked, expired, unknown, or
// concurrently rotated token yields the same generic answer.
func (s *AuthService) Refresh(ctx context.Context, rawToken string, meta models.ClientMeta) (*models.TokenPair, error) {
	if rawToken == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "")
	}

	now := time.Now().UTC()
	hash := s.codec.HashToken(rawToken)

	current, err := s.tokens.FindRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch refresh token")
	}

	if current.RevokedAt != nil {
		// Presentation of a rotated-out token is the replay signal.
		s.observe("replay")
		recordAudit(ctx, s.audit, s.logger, &current.UserID, models.AuditActionRefreshReplay, meta, nil)
		return nil, appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "")
	}
	if !now.Before(current.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "")
	}

	user, err := s.users.FindByID(ctx, current.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if !user.Active {
		if _, err := s.tokens.RevokeRefreshTokenByHash(ctx, hash, now); err != nil {
			s.logger.Warn("failed to revoke refresh token for inactive user", zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "")
	}

	rawNext, err := s.codec.GenerateOpaqueToken()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}
	next := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: s.codec.HashToken(rawNext),
		ExpiresAt: now.Add(s.config.RefreshTokenExpiry),
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
	}

	if err := s.tokens.RotateRefreshToken(ctx, hash, next); err != nil {
		if errors.Is(err, repository.ErrAlreadyRotated) {
			s.observe("replay")
			recordAudit(ctx, s.audit, s.logger, &user.ID, models.AuditActionRefreshReplay, meta, nil)
			return nil, appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate refresh token")
	}

	accessToken, _, err := s.codec.IssueAccessToken(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	recordAudit(ctx, s.audit, s.logger, &user.ID, models.AuditActionRefresh, meta, nil)

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: rawNext,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     now,
		User:         user.Info(),
	}, nil
}

// Logout closes the presented session. Unknown, expired, and already
// revoked tokens are all a no-op success; the handler clears the cookie
// either way.
func (s *AuthService) Logout(ctx context.Context, rawToken string, meta models.ClientMeta) error {
	if rawToken == "" {
		return nil
	}

	now := time.Now().UTC()
	hash := s.codec.HashToken(rawToken)

	revoked, err := s.tokens.RevokeRefreshTokenByHash(ctx, hash, now)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh token")
	}
	if revoked {
		if current, err := s.tokens.FindRefreshTokenByHash(ctx, hash); err == nil {
			recordAudit(ctx, s.audit, s.logger, &current.UserID, models.AuditActionLogout, meta, nil)
		}
	}
	return nil
}

// Me returns the profile of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	return user, nil
}

func (s *AuthService) issuePair(ctx context.Context, user *models.User, meta models.ClientMeta, now time.Time) (*models.TokenPair, error) {
	accessToken, _, err := s.codec.IssueAccessToken(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	rawRefresh, err := s.codec.GenerateOpaqueToken()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	refresh := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: s.codec.HashToken(rawRefresh),
		ExpiresAt: now.Add(s.config.RefreshTokenExpiry),
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
	}
	if err := s.tokens.CreateRefreshToken(ctx, refresh); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: rawRefresh,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     now,
		User:         user.Info(),
	}, nil
}

func (s *AuthService) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveAuthOutcome(outcome)
	}
}

func retrySeconds(d time.Duration) int {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
