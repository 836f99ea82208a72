package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewJWTVerifier("board-secret")

	token, err := v.Sign(Identity{UserID: "u1", Handle: "ripley"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	id, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.UserID != "u1" || id.Handle != "ripley" {
		t.Fatalf("wrong identity: %+v", id)
	}
}

func TestVerifyRejects(t *testing.T) {
	v := NewJWTVerifier("board-secret")

	good, err := v.Sign(Identity{UserID: "u1", Handle: "ripley"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	// Wrong secret.
	other := NewJWTVerifier("other-secret")
	if _, err := other.Verify(good); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret accepted: %v", err)
	}

	// Garbage.
	if _, err := v.Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage accepted: %v", err)
	}

	// Expired.
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Handle: "ripley",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	signed, err := expired.SignedString([]byte("board-secret"))
	if err != nil {
		t.Fatalf("sign expired: %v", err)
	}
	if _, err := v.Verify(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token accepted: %v", err)
	}

	// Missing subject.
	anon := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{Handle: "ghost"})
	signed, err = anon.SignedString([]byte("board-secret"))
	if err != nil {
		t.Fatalf("sign anon: %v", err)
	}
	if _, err := v.Verify(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("subjectless token accepted: %v", err)
	}

	// Wrong algorithm family.
	none := jwt.NewWithClaims(jwt.SigningMethodNone, claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
	})
	signed, err = none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := v.Verify(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("alg=none token accepted: %v", err)
	}
}

func TestHandleDefaultsToSubject(t *testing.T) {
	v := NewJWTVerifier("board-secret")
	token, err := v.Sign(Identity{UserID: "u1"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	id, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.Handle != "u1" {
		t.Fatalf("expected handle to default to subject, got %q", id.Handle)
	}
}
