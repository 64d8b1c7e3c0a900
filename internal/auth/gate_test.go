package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=from-query", nil)
	assert.Equal(t, "from-query", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", TokenFromRequest(r), "header wins over query")

	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, TokenFromRequest(r))
}

func TestGateAcceptsValidToken(t *testing.T) {
	cfg := testJWTConfig()
	token, err := GenerateToken(cfg, "u1", "alice", "alice@example.com")
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	id, err := NewGate(cfg).Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, &Identity{UserID: "u1", Username: "alice", Email: "alice@example.com"}, id)
}

func TestGateRejections(t *testing.T) {
	cfg := testJWTConfig()
	valid, err := GenerateToken(cfg, "u1", "alice", "")
	require.NoError(t, err)

	otherSecret := *cfg
	otherSecret.Secret = []byte("another-secret")
	forged, err := GenerateToken(&otherSecret, "u1", "alice", "")
	require.NoError(t, err)

	expiredClaims := Claims{
		UserID:   "u1",
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expiredClaims).SignedString(cfg.Secret)
	require.NoError(t, err)

	noSecret := *cfg
	noSecret.Secret = nil

	tests := []struct {
		name   string
		gate   *Gate
		token  string
		reason string
	}{
		{"missing token", NewGate(cfg), "", ReasonTokenMissing},
		{"malformed", NewGate(cfg), "not-a-jwt", ReasonFailed},
		{"bad signature", NewGate(cfg), forged, ReasonFailed},
		{"expired", NewGate(cfg), expired, ReasonFailed},
		{"secret not configured", NewGate(&noSecret), valid, ReasonSecretMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := tt.gate.Verify(tt.token)
			require.Error(t, err)
			assert.Nil(t, id)
			assert.Equal(t, tt.reason, Reason(err))
		})
	}
}

func TestValidateTokenChecksAudience(t *testing.T) {
	cfg := testJWTConfig()
	token, err := GenerateToken(cfg, "u1", "alice", "")
	require.NoError(t, err)

	other := *cfg
	other.Audience = "someone-else"
	_, err = ValidateToken(&other, token)
	assert.Error(t, err)
}
