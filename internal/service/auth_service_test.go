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
	"github.com/swg-labs/smssend-api/internal/repository"
	"github.com/swg-labs/smssend-api/internal/security"
	"github.com/swg-labs/smssend-api/pkg/config"
	appErrors "github.com/swg-labs/smssend-api/pkg/errors"
)

// fastParams keeps Argon2 cheap in tests.
var fastParams = security.Argon2Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:            "0123456789abcdef0123456789abcdef",
		AccessTokenExpiry:    15 * time.Minute,
		RefreshTokenExpiry:   720 * time.Hour,
		Issuer:               "smssend-api",
		Audience:             []string{"smssend-web"},
		PasswordPepper:       "test-pepper-test-pepper-test-pep",
		TokenPepper:          "token-pepper-token-pepper-token-",
		LockoutFailThreshold: 3,
		LockoutDuration:      15 * time.Minute,
		VerifyTokenTTL:       48 * time.Hour,
		ResetCodeTTL:         15 * time.Minute,
		ResetCodeLength:      8,
	}
}

type mockUserStore struct {
	user        *models.User
	cleared     bool
	lastLogin   bool
	updatedHash string
}

func (m *mockUserStore) FindByNormalizedEmail(ctx context.Context, email string) (*models.User, error) {
	if m.user == nil || m.user.EmailNormalized != email {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func (m *mockUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.user == nil || m.user.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func (m *mockUserStore) RecordLoginFailure(ctx context.Context, id string, threshold int, lockedUntil time.Time) (int, *time.Time, error) {
	m.user.FailedLoginCount++
	if m.user.FailedLoginCount >= threshold {
		until := lockedUntil
		m.user.LockedUntil = &until
	}
	return m.user.FailedLoginCount, m.user.LockedUntil, nil
}

func (m *mockUserStore) ClearLockout(ctx context.Context, id string) error {
	m.cleared = true
	m.user.FailedLoginCount = 0
	m.user.LockedUntil = nil
	return nil
}

func (m *mockUserStore) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLogin = true
	return nil
}

func (m *mockUserStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	m.updatedHash = passwordHash
	m.user.PasswordHash = passwordHash
	return nil
}

type mockTokenStore struct {
	tokens map[string]*models.RefreshToken
}

func newMockTokenStore() *mockTokenStore {
	return &mockTokenStore{tokens: make(map[string]*models.RefreshToken)}
}

func (m *mockTokenStore) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.tokens[token.TokenHash] = token
	return nil
}

func (m *mockTokenStore) FindRefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	token, ok := m.tokens[hash]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return token, nil
}

func (m *mockTokenStore) RotateRefreshToken(ctx context.Context, oldHash string, next *models.RefreshToken) error {
	current, ok := m.tokens[oldHash]
	if !ok || current.RevokedAt != nil {
		return repository.ErrAlreadyRotated
	}
	now := time.Now().UTC()
	current.RevokedAt = &now
	current.ReplacedByHash = &next.TokenHash
	m.tokens[next.TokenHash] = next
	return nil
}

func (m *mockTokenStore) RevokeRefreshTokenByHash(ctx context.Context, hash string, ts time.Time) (bool, error) {
	token, ok := m.tokens[hash]
	if !ok || token.RevokedAt != nil {
		return false, nil
	}
	token.RevokedAt = &ts
	return true, nil
}

type mockLimiter struct {
	loginIPErr    error
	loginEmailErr error
}

func (m *mockLimiter) LoginIP(ctx context.Context, ip string) error       { return m.loginIPErr }
func (m *mockLimiter) LoginEmail(ctx context.Context, email string) error { return m.loginEmailErr }

type mockAudit struct {
	entries []*models.AuditLog
}

func (m *mockAudit) Create(ctx context.Context, entry *models.AuditLog) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAudit) actions() []string {
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

func verifiedUser(t *testing.T, hasher *security.PasswordHasher, password string) *models.User {
	t.Helper()
	hash, err := hasher.Hash(password)
	require.NoError(t, err)
	verifiedAt := time.Now().UTC().Add(-time.Hour)
	return &models.User{
		ID:              "4f9d74a1-0000-4000-8000-000000000001",
		Email:           "User@Example.com",
		EmailNormalized: "user@example.com",
		PasswordHash:    hash,
		FirstName:       "Ana",
		LastName:        "Popescu",
		Role:            models.RoleUser,
		Active:          true,
		EmailVerifiedAt: &verifiedAt,
	}
}

func newAuthService(users *mockUserStore, tokens *mockTokenStore, audit *mockAudit, limiter *mockLimiter, hasher *security.PasswordHasher) *AuthService {
	cfg := testAuthConfig()
	return NewAuthService(users, tokens, audit, limiter, hasher, security.NewTokenCodec(cfg), nil, nil, zap.NewNop(), cfg)
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	hasher := security.NewPasswordHasher(testAuthConfig().PasswordPepper, fastParams)
	users := &mockUserStore{user: verifiedUser(t, hasher, "Str0ng-Passw0rd!")}
	tokens := newMockTokenStore()
	audit := &mockAudit{}
	svc := newAuthService(users, tokens, audit, &mockLimiter{}, hasher)

	pair, err := svc.Login(context.Background(), models.LoginRequest{Email: "User@Example.com", Password: "Str0ng-Passw0rd!"}, models.ClientMeta{IP: "203.0.113.10"})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Len(t, pair.RefreshToken, 43)
	assert.Equal(t, users.user.ID, pair.User.ID)
	assert.True(t, pair.User.Verified)
	assert.True(t, users.lastLogin)
	assert.Len(t, tokens.tokens, 1)
	assert.Contains(t, audit.actions(), models.AuditActionLoginSuccess)
}

func TestAuthServiceLoginUnknownEmailIsGeneric(t *testing.T) {
	hasher := security.NewPasswordHasher(testAuthConfig().PasswordPepper, fastParams)
	svc := newAuthService(&mockUserStore{}, newMockTokenStore(), &mockAudit{}, &mockLimiter{}, hasher)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "whatever-password"}, models.ClientMeta{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestAuthServiceLoginWrongPasswordCountsFailure(t *testing.T) {
	hasher := security.NewPasswordHasher(testAuthConfig().PasswordPepper, fastParams)
	users := &mockUserStore{user: verifiedUser(t, hasher, "Str0ng-Passw0rd!")}
	audit := &mockAudit{}
	svc := newAuthService(users, newMockTokenStore(), audit, &mockLimiter{}, hasher)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "wrong-password-1"}, models.ClientMeta{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
	assert.Equal(t, 1, users.user.FailedLoginCount)
	assert.Contains(t, audit.actions(), models.AuditActionLoginFail)
}

func TestAuthServiceLoginLocksAtThreshold(t *testing.T) {
	hasher := security.NewPasswordHasher(testAuthConfig().PasswordPepper, fastParams)
	users := &mockUserStore{user: verifiedUser(t, hasher, "Str0ng-Passw0rd!")}
	audit := &mockAudit{}
	svc := newAuthService(users, newMockTokenStore(), audit, &mockLimiter{}, hasher)

	for i := 0; i < 3; i++ {
		_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "wrong-password-1"}, models.ClientMeta{})
		require.Error(t, err)
	}
	require.NotNil(t, users.user.LockedUntil)
	assert.Contains(t, audit.actions(), models.AuditActionLoginLocked)

	// The correct password fails during the lock window and leaves the
	// counters untouched.
	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "Str0ng-Passw0rd!"}, models.ClientMeta{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrAccountLocked.Code, appErr.Code)
	assert.Positive(t, appErr.RetryAfter)
	assert.Equal(t, 3, users.user.FailedLoginCount)
}

func TestAuthServiceLoginUnverified(t *testing.T) {
	hasher := security.NewPasswordHasher(testAuthConfig().PasswordPepper, fastParams)
	user := verifiedUser(t, hasher, "Str0ng-Passw0rd!")
	user.EmailVerifiedAt = nil
	svc := newAuthService(&mockUserStore{user: user}, newMockTokenStore(), &mockAudit{}, &mockLimiter{}, hasher)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "Str0ng-Passw0rd!"}, models.ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEmailNotVerified.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginRateLimited(t *testing.T) {
	hasher := security.NewPasswordHasher(testAuthConfig().PasswordPepper, fastParams)
	limiter := &mockLimiter{loginIPErr: appErrors.RateLimited(42)}
	svc := newAuthService(&mockUserStore{}, newMockTokenStore(), &mockAudit{}, limiter, hasher)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "whatever-password"}, models.ClientMeta{IP: "203.0.113.10"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrRateLimited.Code, appErr.Code)
	assert.Equal(t, 42, appErr.RetryAfter)
}

func TestAuthServiceLoginRehashesLegacyHash(t *testing.T) {
	cfg := testAuthConfig()
	hasher := security.NewPasswordHasher(cfg.PasswordPepper, fastParams)

	// Hash created before the pepper was introduced.
	legacyHasher := security.NewPasswordHasher("", fastParams)
	users := &mockUserStore{user: verifiedUser(t, legacyHasher, "Str0ng-Passw0rd!")}
	legacyHash := users.user.PasswordHash
	svc := newAuthService(users, newMockTokenStore(), &mockAudit{}, &mockLimiter{}, hasher)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "Str0ng-Passw0rd!"}, models.ClientMeta{})
	require.NoError(t, err)
	require.NotEmpty(t, users.updatedHash)
	assert.NotEqual(t, legacyHash, users.updatedHash)

	ok, legacy, err := hasher.Verify("Str0ng-Passw0rd!", users.updatedHash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, legacy)
}

func TestAuthServiceRefreshRotatesAndRejectsReplay(t *testing.T) {
	hasher := security.NewPasswordHasher(testAuthConfig().PasswordPepper, fastParams)
	users := &mockUserStore{user: verifiedUser(t, hasher, "Str0ng-Passw0rd!")}
	tokens := newMockTokenStore()
	audit := &mockAudit{}
	svc := newAuthService(users, tokens, audit, &mockLimiter{}, hasher)

	pair, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "Str0ng-Passw0rd!"}, models.ClientMeta{})
	require.NoError(t, err)

	next, err := svc.Refresh(context.Background(), pair.RefreshToken, models.ClientMeta{})
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// Presenting the rotated-out token again is a replay.
	_, err = svc.Refresh(context.Background(), pair.RefreshToken, models.ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidOrExpiredToken.Code, appErrors.FromError(err).Code)
	assert.Contains(t, audit.actions(), models.AuditActionRefreshReplay)

	// The successor still works.
	_, err = svc.Refresh(context.Background(), next.RefreshToken, models.ClientMeta{})
	require.NoError(t, err)
}

func TestAuthServiceRefreshExpired(t *testing.T) {
	cfg := testAuthConfig()
	hasher := security.NewPasswordHasher(cfg.PasswordPepper, fastParams)
	users := &mockUserStore{user: verifiedUser(t, hasher, "Str0ng-Passw0rd!")}
	tokens := newMockTokenStore()
	svc := newAuthService(users, tokens, &mockAudit{}, &mockLimiter{}, hasher)

	codec := security.NewTokenCodec(cfg)
	raw, err := codec.GenerateOpaqueToken()
	require.NoError(t, err)
	tokens.tokens[codec.HashToken(raw)] = &models.RefreshToken{
		ID:        "rt-1",
		UserID:    users.user.ID,
		TokenHash: codec.HashToken(raw),
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}

	_, err = svc.Refresh(context.Background(), raw, models.ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidOrExpiredToken.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogoutIsIdempotent(t *testing.T) {
	hasher := security.NewPasswordHasher(testAuthConfig().PasswordPepper, fastParams)
	users := &mockUserStore{user: verifiedUser(t, hasher, "Str0ng-Passw0rd!")}
	tokens := newMockTokenStore()
	svc := newAuthService(users, tokens, &mockAudit{}, &mockLimiter{}, hasher)

	pair, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "Str0ng-Passw0rd!"}, models.ClientMeta{})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), pair.RefreshToken, models.ClientMeta{}))
	require.NoError(t, svc.Logout(context.Background(), pair.RefreshToken, models.ClientMeta{}))
	require.NoError(t, svc.Logout(context.Background(), "unknown-token", models.ClientMeta{}))
	require.NoError(t, svc.Logout(context.Background(), "", models.ClientMeta{}))

	// A logged-out session cannot refresh.
	_, err = svc.Refresh(context.Background(), pair.RefreshToken, models.ClientMeta{})
	require.Error(t, err)
}

func TestAuthServiceMe(t *testing.T) {
	hasher := security.NewPasswordHasher(testAuthConfig().PasswordPepper, fastParams)
	users := &mockUserStore{user: verifiedUser(t, hasher, "Str0ng-Passw0rd!")}
	svc := newAuthService(users, newMockTokenStore(), &mockAudit{}, &mockLimiter{}, hasher)

	user, err := svc.Me(context.Background(), users.user.ID)
	require.NoError(t, err)
	assert.Equal(t, users.user.Email, user.Email)

	_, err = svc.Me(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
