package service

import (
	"context"
	"database/sql"
	"errors"
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

// acceptedMessage is returned by register, resend-verification, and
// forgot-password regardless of whether the account exists.
const acceptedMessage = "If the address is valid, an email is on its way."

// Mailer delivers transactional mail. The production implementation
// speaks SMTP; development degrades to a logged no-op.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, token string) error
	SendPasswordResetEmail(ctx context.Context, to, code string) error
}

type accountUserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByNormalizedEmail(ctx context.Context, email string) (*models.User, error)
	MarkEmailVerified(ctx context.Context, id string, ts time.Time) error
}

type accountTokenRepository interface {
	CreateEmailVerificationToken(ctx context.Context, token *models.EmailVerificationToken) error
	DeleteUnusedEmailVerificationTokens(ctx context.Context, userID string) error
	FindEmailVerificationTokenByHash(ctx context.Context, hash string) (*models.EmailVerificationToken, error)
	MarkEmailVerificationTokenUsed(ctx context.Context, id string, ts time.Time) error
}

type registerLimiter interface {
	RegisterIP(ctx context.Context, ip string) error
}

// AccountService handles registration and the email verification
// lifecycle.
type AccountService struct {
	users     accountUserRepository
	tokens    accountTokenRepository
	audit     auditRecorder
	limiter   registerLimiter
	hasher    *security.PasswordHasher
	codec     *security.TokenCodec
	mailer    Mailer
	validator *validator.Validate
	logger    *zap.Logger
	config    config.AuthConfig
}

// NewAccountService constructs an AccountService instance.
func NewAccountService(
	users accountUserRepository,
	tokens accountTokenRepository,
	audit auditRecorder,
	limiter registerLimiter,
	hasher *security.PasswordHasher,
	codec *security.TokenCodec,
	mailer Mailer,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg config.AuthConfig,
) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AccountService{
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

// Register creates an account and mails a verification token. A duplicate
// email gets the same accepted message as a fresh one; only the audit
// trail tells them apart.
func (s *AccountService) Register(ctx context.Context, req models.RegisterRequest, meta models.ClientMeta) (*models.GenericAccepted, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	if err := s.limiter.RegisterIP(ctx, meta.IP); err != nil {
		return nil, err
	}

	if req.Password != req.ConfirmPassword {
		return nil, appErrors.Clone(appErrors.ErrValidation, "passwords do not match")
	}
	if !req.PolicyAccepted {
		return nil, appErrors.Clone(appErrors.ErrValidation, "terms of service must be accepted")
	}
	if (req.CompanyName == "") != (req.CompanyCUI == "") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "company name and CUI must be provided together")
	}

	if err := security.ValidatePassword(req.Password, security.PasswordIdentity{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}); err != nil {
		return nil, err
	}

	email := security.NormalizeEmail(req.Email)
	now := time.Now().UTC()

	if existing, err := s.users.FindByNormalizedEmail(ctx, email); err == nil {
		recordAudit(ctx, s.audit, s.logger, &existing.ID, models.AuditActionRegisterDuplicate, meta, map[string]interface{}{"email": email})
		return &models.GenericAccepted{Message: acceptedMessage}, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing account")
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:              uuid.NewString(),
		Email:           req.Email,
		EmailNormalized: email,
		PasswordHash:    passwordHash,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Street:          req.Street,
		StreetNo:        req.StreetNo,
		Locality:        req.Locality,
		County:          req.County,
		PostalCode:      req.PostalCode,
		Country:         req.Country,
		Role:            models.RoleUser,
		Active:          true,
		PolicyVersion:   &req.PolicyVersion,
		CreatedAt:       now,
	}
	acceptedAt := now
	user.PolicyAcceptedAt = &acceptedAt
	if req.CompanyName != "" {
		user.CompanyName = &req.CompanyName
		user.CompanyCUI = &req.CompanyCUI
	}

	if err := s.users.Create(ctx, user); err != nil {
		// A racing registration hit the unique index first. Same
		// outward answer as the pre-check path.
		if errors.Is(err, repository.ErrDuplicate) {
			recordAudit(ctx, s.audit, s.logger, nil, models.AuditActionRegisterDuplicate, meta, map[string]interface{}{"email": email})
			return &models.GenericAccepted{Message: acceptedMessage}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}

	// The account row stays; the user can retry through resend once the
	// relay recovers. Answering accepted here would leave them waiting
	// for a mail that never left.
	if err := s.issueVerificationToken(ctx, user, now); err != nil {
		s.logger.Error("failed to issue verification email", zap.String("user_id", user.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrUpstreamUnavailable.Code, appErrors.ErrUpstreamUnavailable.Status, "verification email could not be sent")
	}

	recordAudit(ctx, s.audit, s.logger, &user.ID, models.AuditActionRegister, meta, nil)
	return &models.GenericAccepted{Message: acceptedMessage}, nil
}

// VerifyEmail confirms an email verification token. A token that was
// already consumed verifies again without error and without moving the
// verification timestamp.
func (s *AccountService) VerifyEmail(ctx context.Context, req models.VerifyEmailRequest, meta models.ClientMeta) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload")
	}

	now := time.Now().UTC()
	hash := s.codec.HashToken(req.Token)

	token, err := s.tokens.FindEmailVerificationTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch verification token")
	}

	if token.UsedAt == nil && !now.Before(token.ExpiresAt) {
		return appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "")
	}

	if err := s.users.MarkEmailVerified(ctx, token.UserID, now); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark email verified")
	}
	if err := s.tokens.MarkEmailVerificationTokenUsed(ctx, token.ID, now); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume verification token")
	}

	if token.UsedAt == nil {
		recordAudit(ctx, s.audit, s.logger, &token.UserID, models.AuditActionEmailVerified, meta, nil)
	}
	return nil
}

// ResendVerification mails a fresh token, invalidating earlier unused
// ones. Unknown and already verified accounts get the same answer.
func (s *AccountService) ResendVerification(ctx context.Context, req models.ResendVerificationRequest, meta models.ClientMeta) (*models.GenericAccepted, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	if err := s.limiter.RegisterIP(ctx, meta.IP); err != nil {
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
	if !user.Active || user.Verified() {
		return &models.GenericAccepted{Message: acceptedMessage}, nil
	}

	if err := s.issueVerificationToken(ctx, user, now); err != nil {
		s.logger.Error("failed to reissue verification email", zap.String("user_id", user.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrUpstreamUnavailable.Code, appErrors.ErrUpstreamUnavailable.Status, "verification email could not be sent")
	}
	recordAudit(ctx, s.audit, s.logger, &user.ID, models.AuditActionVerifyResend, meta, nil)

	return &models.GenericAccepted{Message: acceptedMessage}, nil
}

func (s *AccountService) issueVerificationToken(ctx context.Context, user *models.User, now time.Time) error {
	if err := s.tokens.DeleteUnusedEmailVerificationTokens(ctx, user.ID); err != nil {
		return err
	}

	raw, err := s.codec.GenerateOpaqueToken()
	if err != nil {
		return err
	}

	token := &models.EmailVerificationToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: s.codec.HashToken(raw),
		ExpiresAt: now.Add(s.config.VerifyTokenTTL),
		CreatedAt: now,
	}
	if err := s.tokens.CreateEmailVerificationToken(ctx, token); err != nil {
		return err
	}

	return s.mailer.SendVerificationEmail(ctx, user.Email, raw)
}
