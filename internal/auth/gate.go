package auth

import (
	"errors"
	"net/http"
	"strings"
)

// Rejection reasons sent to clients when the gate refuses a connection.
const (
	ReasonTokenMissing  = "Authentication token missing"
	ReasonSecretMissing = "JWT_SECRET not configured"
	ReasonFailed        = "Authentication failed"
)

var (
	ErrTokenMissing  = errors.New("authentication token missing")
	ErrSecretMissing = errors.New("jwt secret not configured")
)

// Identity is what the gate attaches to an accepted connection.
type Identity struct {
	UserID   string
	Username string
	Email    string
}

// Reason maps a gate error to the text reason sent to the client.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return ReasonTokenMissing
	case errors.Is(err, ErrSecretMissing):
		return ReasonSecretMissing
	default:
		return ReasonFailed
	}
}

// Gate verifies the bearer credential presented when a connection is opened.
type Gate struct {
	cfg *JWTConfig
}

// NewGate creates a gate that verifies tokens signed with cfg.Secret.
func NewGate(cfg *JWTConfig) *Gate {
	return &Gate{cfg: cfg}
}

// TokenFromRequest extracts the credential from the Authorization header,
// falling back to the token query parameter that browser websockets use.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// Authenticate verifies the request credential. The error is terminal for the
// connection attempt; pass it to Reason for the client-facing text.
func (g *Gate) Authenticate(r *http.Request) (*Identity, error) {
	return g.Verify(TokenFromRequest(r))
}

// Verify checks a raw token.
func (g *Gate) Verify(token string) (*Identity, error) {
	if token == "" {
		return nil, ErrTokenMissing
	}
	if len(g.cfg.Secret) == 0 {
		return nil, ErrSecretMissing
	}

	claims, err := ValidateToken(g.cfg, token)
	if err != nil {
		return nil, err
	}
	return &Identity{
		UserID:   claims.UserID,
		Username: claims.Username,
		Email:    claims.Email,
	}, nil
}
