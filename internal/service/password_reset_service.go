package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swg-labs/smssend-api/internal/models"
	"github.com/swg-labs/smssend-api/internal/security"
	"github.com/swg-labs/smssend-api/pkg/config"
	appErrors "github.com/swg-labs/smssend-api/pkg/errors"
)

type resetUserRepository interface {
	FindByNormalizedEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	ClearLockout(ctx context.Context, id string) error
}

type resetTokenRepository interface {
	CreatePasswordResetToken(ctx context.Context, token *models.PasswordResetToken) error
	DeleteUnusedPasswordResetTokens(ctx context.Context, userID string) error
	FindActivePasswordResetToken(ctx context.Context, userID, hash string, now time.Time) (*models.PasswordResetToken, error)
	MarkPasswordResetTokenUsed(ctx context.Context, id string, ts time.Time) (bool, error)
	RevokeAllRefreshTokens(ctx context.Context, userID string, ts time.Time) error
}

type resetLimiter interface {
	ForgotIP(ctx context.Context, ip string) error
	ResetIP(ctx context.Context, ip string) error
	ResetEmail(ctx context.Context, email string) error
}

// PasswordResetService drives the forgot/reset-password flow built on
// short mailed codes.
type PasswordResetService struct {
	users     resetUserRepository
	tokens    resetTokenRepository
	audit     auditRecorder
	limiter   resetLimiter
	hasher    *security.PasswordHasher
	codec     *security.TokenCodec
	mailer    Mailer
	validator *validator.Validate
	logger    *zap.Logger
	config    config.AuthConfig
}

// NewPasswordResetService constructs a PasswordResetService instance.
func NewPasswordResetService(
	users resetUserRepository,
	tokens resetTokenRepository,
	audit auditRecorder,
	limiter resetLimiter,
	hasher *security.PasswordHasher,
	codec *security.TokenCodec,
	mailer Mailer,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg config.AuthConfig,
) *PasswordResetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PasswordResetService{
		users:     users,
		tokens:    tokens,
		audit:     audit,
		limiter:   limiter,
		hasher:    hasher,
		codec:     codec,
		mailer:    mailer,
		validator: validate,
		logger:    logger,
		config:    cfg,
	}
}

// Forgot mails a one-time reset code. The answer never reveals whether
// the address has an account, and a new request supersedes any pending
// code.
func (s *PasswordResetService) Forgot(ctx context.Context, req models.ForgotPasswordRequest, meta models.ClientMeta) (*models.GenericAccepted, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	if err := s.limiter.ForgotIP(ctx, meta.IP); err != nil {
		return nil, err
	}

	email := security.NormalizeEmail(req.Email)
	now := time.Now().UTC()

	user, err := s.users.FindByNormalizedEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.GenericAccepted{Message: acceptedMessage}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if !user.Active {
		return &models.GenericAccepted{Message: acceptedMessage}, nil
	}

	if err := s.tokens.DeleteUnusedPasswordResetTokens(ctx, user.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to supersede reset codes")
	}

	code, err := s.codec.GenerateResetCode(s.config.ResetCodeLength)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate reset code")
	}

	token := &models.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: s.codec.HashToken(code),
		ExpiresAt: now.Add(s.config.ResetCodeTTL),
		CreatedAt: now,
	}
	if err := s.tokens.CreatePasswordResetToken(ctx, token); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist reset code")
	}

	if err := s.mailer.SendPasswordResetEmail(ctx, user.Email, code); err != nil {
		s.logger.Error("failed to send reset email", zap.String("user_id", user.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrUpstreamUnavailable.Code, appErrors.ErrUpstreamUnavailable.Status, "reset email could not be sent")
	}

	recordAudit(ctx, s.audit, s.logger, &user.ID, models.AuditActionResetRequest, meta, nil)
	return &models.GenericAccepted{Message: acceptedMessage}, nil
}

// Reset consumes a valid code, replaces the password, clears the
// lockout, and closes every open session. Unknown account, wrong code,
// expired code, and reused code all answer identically.
func (s *PasswordResetService) Reset(ctx context.Context, req models.ResetPasswordRequest, meta models.ClientMeta) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	email := security.NormalizeEmail(req.Email)

	if err := s.limiter.ResetIP(ctx, meta.IP); err != nil {
		return err
	}
	if err := s.limiter.ResetEmail(ctx, email); err != nil {
		return err
	}

	if req.Password != req.ConfirmPassword {
		return appErrors.Clone(appErrors.ErrValidation, "passwords do not match")
	}
	if err := security.ValidatePassword(req.Password, security.PasswordIdentity{Email: email}); err != nil {
		return err
	}

	now := time.Now().UTC()
	code := strings.ToUpper(strings.TrimSpace(req.Code))

	user, err := s.users.FindByNormalizedEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			recordAudit(ctx, s.audit, s.logger, nil, models.AuditActionResetConfirmFail, meta, map[string]interface{}{"email": email})
			return appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "invalid or expired code")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if !user.Active {
		recordAudit(ctx, s.audit, s.logger, &user.ID, models.AuditActionResetConfirmFail, meta, map[string]interface{}{"reason": "inactive"})
		return appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "invalid or expired code")
	}

	token, err := s.tokens.FindActivePasswordResetToken(ctx, user.ID, s.codec.HashToken(code), now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			recordAudit(ctx, s.audit, s.logger, &user.ID, models.AuditActionResetConfirmFail, meta, map[string]interface{}{"reason": "code_invalid"})
			return appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "invalid or expired code")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch reset code")
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	// Consume the code before touching the password. Two concurrent
	// resets with the same code race on this conditional update; the
	// loser gets the same answer as a wrong code and changes nothing.
	consumed, err := s.tokens.MarkPasswordResetTokenUsed(ctx, token.ID, now)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume reset code")
	}
	if !consumed {
		recordAudit(ctx, s.audit, s.logger, &user.ID, models.AuditActionResetConfirmFail, meta, map[string]interface{}{"reason": "code_replayed"})
		return appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "invalid or expired code")
	}

	if err := s.users.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}
	if err := s.users.ClearLockout(ctx, user.ID); err != nil {
		s.logger.Warn("failed to clear lockout after reset", zap.Error(err))
	}
	if err := s.tokens.RevokeAllRefreshTokens(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to revoke sessions after reset", zap.Error(err))
	}

	recordAudit(ctx, s.audit, s.logger, &user.ID, models.AuditActionResetConfirm, meta, nil)
	return nil
}
