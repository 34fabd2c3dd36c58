package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/swg-labs/smssend-api/pkg/config"
)

const (
	accessTokenType = "access"

	// 32 random bytes gives 256 bits of entropy per opaque token.
	opaqueTokenBytes = 32

	// Reset codes are typed by hand, so the alphabet drops the
	// ambiguous characters 0/O/1/I.
	resetCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// AccessClaims is the payload carried by signed access tokens.
type AccessClaims struct {
	UserID    string `json:"sub"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies signed access tokens and produces the
// opaque random tokens used by refresh, email-verify, and reset flows.
// Only digests of opaque tokens are ever persisted.
type TokenCodec struct {
	secret      []byte
	tokenPepper []byte
	issuer      string
	audience    []string
	accessTTL   time.Duration
}

// NewTokenCodec builds a codec from the auth configuration.
func NewTokenCodec(cfg config.AuthConfig) *TokenCodec {
	return &TokenCodec{
		secret:      []byte(cfg.JWTSecret),
		tokenPepper: []byte(cfg.TokenPepper),
		issuer:      cfg.Issuer,
		audience:    cfg.Audience,
		accessTTL:   cfg.AccessTokenExpiry,
	}
}

// IssueAccessToken signs a short-lived access token for the user.
func (c *TokenCodec) IssueAccessToken(userID, email, role string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(c.accessTTL)

	claims := AccessClaims{
		UserID:    userID,
		Email:     email,
		Role:      role,
		TokenType: accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings(c.audience),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	return signed, expiresAt, nil
}

// VerifyAccessToken parses and validates a signed token. Any mismatch
// (signature, expiry, issuer, audience, type) yields nil so callers
// treat the request as plainly unauthenticated.
func (c *TokenCodec) VerifyAccessToken(tokenString string) *AccessClaims {
	claims := &AccessClaims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
	}
	if len(c.audience) > 0 {
		opts = append(opts, jwt.WithAudience(c.audience[0]))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil
	}
	if claims.TokenType != accessTokenType || claims.UserID == "" {
		return nil
	}

	return claims
}

// GenerateOpaqueToken returns a URL-safe random token with 256 bits of
// entropy.
func (c *TokenCodec) GenerateOpaqueToken() (string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate opaque token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken derives the digest stored in place of a raw opaque token.
// The token pepper keeps a leaked table useless on its own.
func (c *TokenCodec) HashToken(raw string) string {
	mac := hmac.New(sha256.New, c.tokenPepper)
	_, _ = mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// GenerateResetCode returns a human-typeable one-time code.
func (c *TokenCodec) GenerateResetCode(length int) (string, error) {
	if length <= 0 {
		length = 8
	}

	var b strings.Builder
	b.Grow(length)
	max := big.NewInt(int64(len(resetCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate reset code: %w", err)
		}
		b.WriteByte(resetCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// ConstantTimeEqual compares two raw strings without leaking position of
// the first difference. Used for human-typed codes.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
