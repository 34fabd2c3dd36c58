package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/swg-labs/smssend-api/internal/models"
	"github.com/swg-labs/smssend-api/internal/security"
	appErrors "github.com/swg-labs/smssend-api/pkg/errors"
)

type mockAccountUserStore struct {
	byEmail  map[string]*models.User
	verified map[string]time.Time
}

func newMockAccountUserStore() *mockAccountUserStore {
	return &mockAccountUserStore{byEmail: make(map[string]*models.User), verified: make(map[string]time.Time)}
}

func (m *mockAccountUserStore) Create(ctx context.Context, user *models.User) error {
	m.byEmail[user.EmailNormalized] = user
	return nil
}

func (m *mockAccountUserStore) FindByNormalizedEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := m.byEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockAccountUserStore) MarkEmailVerified(ctx context.Context, id string, ts time.Time) error {
	if _, done := m.verified[id]; !done {
		m.verified[id] = ts
	}
	return nil
}

type mockVerifyTokenStore struct {
	byHash  map[string]*models.EmailVerificationToken
	deleted int
}

func newMockVerifyTokenStore() *mockVerifyTokenStore {
	return &mockVerifyTokenStore{byHash: make(map[string]*models.EmailVerificationToken)}
}

func (m *mockVerifyTokenStore) CreateEmailVerificationToken(ctx context.Context, token *models.EmailVerificationToken) error {
	m.byHash[token.TokenHash] = token
	return nil
}

func (m *mockVerifyTokenStore) DeleteUnusedEmailVerificationTokens(ctx context.Context, userID string) error {
	for hash, token := range m.byHash {
		if token.UserID == userID && token.UsedAt == nil {
			delete(m.byHash, hash)
			m.deleted++
		}
	}
	return nil
}

func (m *mockVerifyTokenStore) FindEmailVerificationTokenByHash(ctx context.Context, hash string) (*models.EmailVerificationToken, error) {
	token, ok := m.byHash[hash]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return token, nil
}

func (m *mockVerifyTokenStore) MarkEmailVerificationTokenUsed(ctx context.Context, id string, ts time.Time) error {
	for _, token := range m.byHash {
		if token.ID == id && token.UsedAt == nil {
			used := ts
			token.UsedAt = &used
		}
	}
	return nil
}

type mockMailer struct {
	verifyTokens []string
	resetCodes   []string
	err          error
}

func (m *mockMailer) SendVerificationEmail(ctx context.Context, to, token string) error {
	if m.err != nil {
		return m.err
	}
	m.verifyTokens = append(m.verifyTokens, token)
	return nil
}

func (m *mockMailer) SendPasswordResetEmail(ctx context.Context, to, code string) error {
	if m.err != nil {
		return m.err
	}
	m.resetCodes = append(m.resetCodes, code)
	return nil
}

type mockRegisterLimiter struct {
	err error
}

func (m *mockRegisterLimiter) RegisterIP(ctx context.Context, ip string) error { return m.err }

func validRegisterRequest() models.RegisterRequest {
	return models.RegisterRequest{
		Email:           "Ana.Popescu@Example.com",
		Password:        "Tr1cky&Long-Phrase",
		ConfirmPassword: "Tr1cky&Long-Phrase",
		FirstName:       "Ana",
		LastName:        "Popescu",
		Street:          "Strada Lunga",
		StreetNo:        "12",
		Locality:        "Cluj-Napoca",
		County:          "Cluj",
		PostalCode:      "400001",
		Country:         "RO",
		PolicyVersion:   "2026-01",
		PolicyAccepted:  true,
	}
}

func newAccountService(users *mockAccountUserStore, tokens *mockVerifyTokenStore, audit *mockAudit, mailer *mockMailer) *AccountService {
	cfg := testAuthConfig()
	hasher := security.NewPasswordHasher(cfg.PasswordPepper, fastParams)
	return NewAccountService(users, tokens, audit, &mockRegisterLimiter{}, hasher, security.NewTokenCodec(cfg), mailer, nil, zap.NewNop(), cfg)
}

func TestAccountServiceRegisterCreatesUserAndMailsToken(t *testing.T) {
	users := newMockAccountUserStore()
	tokens := newMockVerifyTokenStore()
	mailer := &mockMailer{}
	audit := &mockAudit{}
	svc := newAccountService(users, tokens, audit, mailer)

	res, err := svc.Register(context.Background(), validRegisterRequest(), models.ClientMeta{IP: "203.0.113.10"})
	require.NoError(t, err)
	assert.Equal(t, acceptedMessage, res.Message)

	user, ok := users.byEmail["ana.popescu@example.com"]
	require.True(t, ok)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.True(t, user.Active)
	assert.Nil(t, user.EmailVerifiedAt)
	assert.NotEqual(t, "Tr1cky&Long-Phrase", user.PasswordHash)

	require.Len(t, mailer.verifyTokens, 1)
	assert.Len(t, mailer.verifyTokens[0], 43)
	assert.Contains(t, audit.actions(), models.AuditActionRegister)
}

func TestAccountServiceRegisterDuplicateGetsSameAnswer(t *testing.T) {
	users := newMockAccountUserStore()
	tokens := newMockVerifyTokenStore()
	mailer := &mockMailer{}
	audit := &mockAudit{}
	svc := newAccountService(users, tokens, audit, mailer)

	first, err := svc.Register(context.Background(), validRegisterRequest(), models.ClientMeta{})
	require.NoError(t, err)

	second, err := svc.Register(context.Background(), validRegisterRequest(), models.ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, first.Message, second.Message)

	// No second account and no second verification mail.
	assert.Len(t, users.byEmail, 1)
	assert.Len(t, mailer.verifyTokens, 1)
	assert.Contains(t, audit.actions(), models.AuditActionRegisterDuplicate)
}

func TestAccountServiceRegisterRejectsWeakPassword(t *testing.T) {
	svc := newAccountService(newMockAccountUserStore(), newMockVerifyTokenStore(), &mockAudit{}, &mockMailer{})

	req := validRegisterRequest()
	req.Password = "short1!"
	req.ConfirmPassword = "short1!"
	_, err := svc.Register(context.Background(), req, models.ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAccountServiceRegisterRejectsHalfCompanyPair(t *testing.T) {
	svc := newAccountService(newMockAccountUserStore(), newMockVerifyTokenStore(), &mockAudit{}, &mockMailer{})

	req := validRegisterRequest()
	req.CompanyName = "SWG Labs SRL"
	_, err := svc.Register(context.Background(), req, models.ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAccountServiceRegisterFailsWhenMailerDown(t *testing.T) {
	users := newMockAccountUserStore()
	mailer := &mockMailer{err: assert.AnError}
	svc := newAccountService(users, newMockVerifyTokenStore(), &mockAudit{}, mailer)

	_, err := svc.Register(context.Background(), validRegisterRequest(), models.ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUpstreamUnavailable.Code, appErrors.FromError(err).Code)

	// The account row survives; resend works once the relay is back.
	require.Len(t, users.byEmail, 1)
	mailer.err = nil
	res, err := svc.ResendVerification(context.Background(), models.ResendVerificationRequest{Email: "ana.popescu@example.com"}, models.ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, acceptedMessage, res.Message)
	assert.Len(t, mailer.verifyTokens, 1)
}

func TestAccountServiceResendFailsWhenMailerDown(t *testing.T) {
	users := newMockAccountUserStore()
	mailer := &mockMailer{}
	svc := newAccountService(users, newMockVerifyTokenStore(), &mockAudit{}, mailer)

	_, err := svc.Register(context.Background(), validRegisterRequest(), models.ClientMeta{})
	require.NoError(t, err)

	mailer.err = assert.AnError
	_, err = svc.ResendVerification(context.Background(), models.ResendVerificationRequest{Email: "ana.popescu@example.com"}, models.ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUpstreamUnavailable.Code, appErrors.FromError(err).Code)
}

func TestAccountServiceVerifyEmailIsIdempotent(t *testing.T) {
	users := newMockAccountUserStore()
	tokens := newMockVerifyTokenStore()
	mailer := &mockMailer{}
	svc := newAccountService(users, tokens, &mockAudit{}, mailer)

	_, err := svc.Register(context.Background(), validRegisterRequest(), models.ClientMeta{})
	require.NoError(t, err)
	raw := mailer.verifyTokens[0]
	user := users.byEmail["ana.popescu@example.com"]

	require.NoError(t, svc.VerifyEmail(context.Background(), models.VerifyEmailRequest{Token: raw}, models.ClientMeta{}))
	firstTS := users.verified[user.ID]

	// Clicking the link again succeeds and the timestamp stays put.
	require.NoError(t, svc.VerifyEmail(context.Background(), models.VerifyEmailRequest{Token: raw}, models.ClientMeta{}))
	assert.Equal(t, firstTS, users.verified[user.ID])
}

func TestAccountServiceVerifyEmailRejectsUnknownAndExpired(t *testing.T) {
	tokens := newMockVerifyTokenStore()
	svc := newAccountService(newMockAccountUserStore(), tokens, &mockAudit{}, &mockMailer{})

	err := svc.VerifyEmail(context.Background(), models.VerifyEmailRequest{Token: "bogus"}, models.ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidOrExpiredToken.Code, appErrors.FromError(err).Code)

	cfg := testAuthConfig()
	codec := security.NewTokenCodec(cfg)
	raw, err := codec.GenerateOpaqueToken()
	require.NoError(t, err)
	tokens.byHash[codec.HashToken(raw)] = &models.EmailVerificationToken{
		ID:        "evt-1",
		UserID:    "user-1",
		TokenHash: codec.HashToken(raw),
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
		CreatedAt: time.Now().UTC().Add(-49 * time.Hour),
	}

	err = svc.VerifyEmail(context.Background(), models.VerifyEmailRequest{Token: raw}, models.ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidOrExpiredToken.Code, appErrors.FromError(err).Code)
}

func TestAccountServiceResendInvalidatesPreviousToken(t *testing.T) {
	users := newMockAccountUserStore()
	tokens := newMockVerifyTokenStore()
	mailer := &mockMailer{}
	svc := newAccountService(users, tokens, &mockAudit{}, mailer)

	_, err := svc.Register(context.Background(), validRegisterRequest(), models.ClientMeta{})
	require.NoError(t, err)
	first := mailer.verifyTokens[0]

	_, err = svc.ResendVerification(context.Background(), models.ResendVerificationRequest{Email: "ana.popescu@example.com"}, models.ClientMeta{})
	require.NoError(t, err)
	require.Len(t, mailer.verifyTokens, 2)

	// The superseded token no longer verifies.
	err = svc.VerifyEmail(context.Background(), models.VerifyEmailRequest{Token: first}, models.ClientMeta{})
	require.Error(t, err)

	require.NoError(t, svc.VerifyEmail(context.Background(), models.VerifyEmailRequest{Token: mailer.verifyTokens[1]}, models.ClientMeta{}))
}

func TestAccountServiceResendUnknownOrVerifiedIsGeneric(t *testing.T) {
	users := newMockAccountUserStore()
	mailer := &mockMailer{}
	svc := newAccountService(users, newMockVerifyTokenStore(), &mockAudit{}, mailer)

	res, err := svc.ResendVerification(context.Background(), models.ResendVerificationRequest{Email: "nobody@example.com"}, models.ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, acceptedMessage, res.Message)
	assert.Empty(t, mailer.verifyTokens)

	verifiedAt := time.Now().UTC()
	users.byEmail["done@example.com"] = &models.User{ID: "u-2", EmailNormalized: "done@example.com", Active: true, EmailVerifiedAt: &verifiedAt}

	res, err = svc.ResendVerification(context.Background(), models.ResendVerificationRequest{Email: "done@example.com"}, models.ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, acceptedMessage, res.Message)
	assert.Empty(t, mailer.verifyTokens)
}
