// Package auth verifies client identity tokens.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the verified subject of a token.
type Identity struct {
	UserID string
	Handle string
}

// Verifier turns a bearer token into an identity. The websocket layer
// and HTTP API depend only on this surface.
type Verifier interface {
	Verify(token string) (Identity, error)
}

var ErrInvalidToken = errors.New("invalid token")

// claims is the token payload: standard registered claims plus the
// user's display handle.
type claims struct {
	Handle string `json:"handle"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for the given shared secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token, returning the identity from
// its sub and handle claims.
func (v *JWTVerifier) Verify(token string) (Identity, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || c.Subject == "" {
		return Identity{}, ErrInvalidToken
	}

	handle := c.Handle
	if handle == "" {
		handle = c.Subject
	}
	return Identity{UserID: c.Subject, Handle: handle}, nil
}

// Sign issues a token for the identity. Used by tests and the local
// login flow.
func (v *JWTVerifier) Sign(id Identity) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Handle: id.Handle,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: id.UserID,
		},
	})
	return token.SignedString(v.secret)
}
