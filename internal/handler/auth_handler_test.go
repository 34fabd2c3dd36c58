package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/swg-labs/smssend-api/internal/models"
	"github.com/swg-labs/smssend-api/internal/repository"
	"github.com/swg-labs/smssend-api/internal/security"
	"github.com/swg-labs/smssend-api/internal/service"
	"github.com/swg-labs/smssend-api/pkg/config"
)

type userStoreStub struct {
	user *models.User
}

func (s *userStoreStub) FindByNormalizedEmail(ctx context.Context, email string) (*models.User, error) {
	if s.user == nil || s.user.EmailNormalized != email {
		return nil, sql.ErrNoRows
	}
	return s.user, nil
}

func (s *userStoreStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.user, nil
}

func (s *userStoreStub) RecordLoginFailure(ctx context.Context, id string, threshold int, lockedUntil time.Time) (int, *time.Time, error) {
	s.user.FailedLoginCount++
	return s.user.FailedLoginCount, nil, nil
}

func (s *userStoreStub) ClearLockout(ctx context.Context, id string) error               { return nil }
func (s *userStoreStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error { return nil }
func (s *userStoreStub) UpdatePassword(ctx context.Context, id, hash string) error          { return nil }

type tokenStoreStub struct {
	tokens map[string]*models.RefreshToken
}

func (s *tokenStoreStub) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	s.tokens[token.TokenHash] = token
	return nil
}

func (s *tokenStoreStub) FindRefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	token, ok := s.tokens[hash]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return token, nil
}

func (s *tokenStoreStub) RotateRefreshToken(ctx context.Context, oldHash string, next *models.RefreshToken) error {
	current, ok := s.tokens[oldHash]
	if !ok || current.RevokedAt != nil {
		return repository.ErrAlreadyRotated
	}
	now := time.Now().UTC()
	current.RevokedAt = &now
	s.tokens[next.TokenHash] = next
	return nil
}

func (s *tokenStoreStub) RevokeRefreshTokenByHash(ctx context.Context, hash string, ts time.Time) (bool, error) {
	token, ok := s.tokens[hash]
	if !ok || token.RevokedAt != nil {
		return false, nil
	}
	token.RevokedAt = &ts
	return true, nil
}

type limiterStub struct{}

func (limiterStub) LoginIP(ctx context.Context, ip string) error       { return nil }
func (limiterStub) LoginEmail(ctx context.Context, email string) error { return nil }

func newAuthTestRouter(t *testing.T) (*gin.Engine, *userStoreStub, config.AuthConfig) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.AuthConfig{
		JWTSecret:            "0123456789abcdef0123456789abcdef",
		AccessTokenExpiry:    15 * time.Minute,
		RefreshTokenExpiry:   720 * time.Hour,
		Issuer:               "smssend-api",
		Audience:             []string{"smssend-web"},
		PasswordPepper:       "test-pepper-test-pepper-test-pep",
		TokenPepper:          "token-pepper-token-pepper-token-",
		CookieName:           "smssend_refresh",
		CookiePath:           "/api/auth",
		LockoutFailThreshold: 10,
		LockoutDuration:      15 * time.Minute,
	}

	hasher := security.NewPasswordHasher(cfg.PasswordPepper, security.Argon2Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	hash, err := hasher.Hash("Str0ng-Passw0rd!")
	require.NoError(t, err)
	verifiedAt := time.Now().UTC().Add(-time.Hour)
	users := &userStoreStub{user: &models.User{
		ID:              "user-1",
		Email:           "user@example.com",
		EmailNormalized: "user@example.com",
		PasswordHash:    hash,
		Role:            models.RoleUser,
		Active:          true,
		EmailVerifiedAt: &verifiedAt,
	}}
	tokens := &tokenStoreStub{tokens: make(map[string]*models.RefreshToken)}

	svc := service.NewAuthService(users, tokens, nil, limiterStub{}, hasher, security.NewTokenCodec(cfg), nil, nil, zap.NewNop(), cfg)
	h := NewAuthHandler(svc, cfg)

	r := gin.New()
	r.POST("/api/auth/login", h.Login)
	r.POST("/api/auth/refresh", h.Refresh)
	r.POST("/api/auth/logout", h.Logout)
	return r, users, cfg
}

func refreshCookie(t *testing.T, res *http.Response, name string) *http.Cookie {
	t.Helper()
	for _, cookie := range res.Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestAuthHandlerLoginSetsHttpOnlyCookie(t *testing.T) {
	router, _, cfg := newAuthTestRouter(t)

	body, _ := json.Marshal(models.LoginRequest{Email: "user@example.com", Password: "Str0ng-Passw0rd!"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	cookie := refreshCookie(t, w.Result(), cfg.CookieName)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/api/auth", cookie.Path)
	assert.Len(t, cookie.Value, 43)

	// The body carries the access token but never the refresh token.
	var envelope struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.NotEmpty(t, envelope.Data["access_token"])
	assert.NotContains(t, envelope.Data, "refresh_token")
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestAuthHandlerRefreshRotatesCookie(t *testing.T) {
	router, _, cfg := newAuthTestRouter(t)

	body, _ := json.Marshal(models.LoginRequest{Email: "user@example.com", Password: "Str0ng-Passw0rd!"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	first := refreshCookie(t, w.Result(), cfg.CookieName)
	require.NotNil(t, first)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(first)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	second := refreshCookie(t, w.Result(), cfg.CookieName)
	require.NotNil(t, second)
	assert.NotEqual(t, first.Value, second.Value)

	// Replaying the first cookie fails and clears it.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(first)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	cleared := refreshCookie(t, w.Result(), cfg.CookieName)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
}

func TestAuthHandlerRefreshWithoutCookie(t *testing.T) {
	router, _, _ := newAuthTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerLogoutClearsCookie(t *testing.T) {
	router, _, cfg := newAuthTestRouter(t)

	body, _ := json.Marshal(models.LoginRequest{Email: "user@example.com", Password: "Str0ng-Passw0rd!"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	cookie := refreshCookie(t, w.Result(), cfg.CookieName)
	require.NotNil(t, cookie)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(cookie)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	cleared := refreshCookie(t, w.Result(), cfg.CookieName)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	// Logging out again is still a success.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(cookie)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
