package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/swg-labs/smssend-api/pkg/config"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:         "unit-test-secret-at-least-32-chars!!",
		TokenPepper:       "unit-test-token-pepper",
		Issuer:            "smssend-api",
		Audience:          []string{"smssend-app"},
		AccessTokenExpiry: 15 * time.Minute,
	}
}

func TestTokenCodecIssueAndVerify(t *testing.T) {
	codec := NewTokenCodec(testAuthConfig())

	token, expiresAt, err := codec.IssueAccessToken("user-1", "a@b.com", "user")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, time.Minute)

	claims := codec.VerifyAccessToken(token)
	require.NotNil(t, claims)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "a@b.com", claims.Email)
	require.Equal(t, "user", claims.Role)
}

func TestTokenCodecRejectsForeignSignature(t *testing.T) {
	codec := NewTokenCodec(testAuthConfig())

	otherCfg := testAuthConfig()
	otherCfg.JWTSecret = "a-different-secret-also-32-chars!!!!"
	other := NewTokenCodec(otherCfg)

	token, _, err := other.IssueAccessToken("user-1", "a@b.com", "user")
	require.NoError(t, err)
	require.Nil(t, codec.VerifyAccessToken(token))
}

func TestTokenCodecRejectsExpired(t *testing.T) {
	cfg := testAuthConfig()
	cfg.AccessTokenExpiry = -time.Minute
	codec := NewTokenCodec(cfg)

	token, _, err := codec.IssueAccessToken("user-1", "a@b.com", "user")
	require.NoError(t, err)
	require.Nil(t, codec.VerifyAccessToken(token))
}

func TestTokenCodecRejectsWrongIssuerOrAudience(t *testing.T) {
	cfg := testAuthConfig()
	cfg.Issuer = "someone-else"
	other := NewTokenCodec(cfg)

	codec := NewTokenCodec(testAuthConfig())
	token, _, err := other.IssueAccessToken("user-1", "a@b.com", "user")
	require.NoError(t, err)
	require.Nil(t, codec.VerifyAccessToken(token))

	cfg = testAuthConfig()
	cfg.Audience = []string{"another-app"}
	other = NewTokenCodec(cfg)
	token, _, err = other.IssueAccessToken("user-1", "a@b.com", "user")
	require.NoError(t, err)
	require.Nil(t, codec.VerifyAccessToken(token))
}

func TestTokenCodecRejectsGarbage(t *testing.T) {
	codec := NewTokenCodec(testAuthConfig())
	require.Nil(t, codec.VerifyAccessToken(""))
	require.Nil(t, codec.VerifyAccessToken("not.a.token"))
}

func TestOpaqueTokenGeneration(t *testing.T) {
	codec := NewTokenCodec(testAuthConfig())

	first, err := codec.GenerateOpaqueToken()
	require.NoError(t, err)
	second, err := codec.GenerateOpaqueToken()
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	// 32 bytes base64url without padding is 43 characters.
	require.Len(t, first, 43)
	require.NotContains(t, first, "+")
	require.NotContains(t, first, "/")
}

func TestHashTokenDeterministicPerPepper(t *testing.T) {
	codec := NewTokenCodec(testAuthConfig())

	raw, err := codec.GenerateOpaqueToken()
	require.NoError(t, err)
	require.Equal(t, codec.HashToken(raw), codec.HashToken(raw))

	otherCfg := testAuthConfig()
	otherCfg.TokenPepper = "different-pepper"
	other := NewTokenCodec(otherCfg)
	require.NotEqual(t, codec.HashToken(raw), other.HashToken(raw))
}

func TestGenerateResetCode(t *testing.T) {
	codec := NewTokenCodec(testAuthConfig())

	code, err := codec.GenerateResetCode(8)
	require.NoError(t, err)
	require.Len(t, code, 8)
	for _, r := range code {
		require.Contains(t, resetCodeAlphabet, string(r))
	}

	// Ambiguous glyphs are excluded from the alphabet.
	require.NotContains(t, resetCodeAlphabet, "0")
	require.NotContains(t, resetCodeAlphabet, "O")
	require.NotContains(t, resetCodeAlphabet, "1")
	require.NotContains(t, resetCodeAlphabet, "I")
}

func TestConstantTimeEqual(t *testing.T) {
	require.True(t, ConstantTimeEqual("ABCD2345", "ABCD2345"))
	require.False(t, ConstantTimeEqual("ABCD2345", "ABCD2346"))
	require.False(t, ConstantTimeEqual("ABCD2345", "ABCD234"))
}
