package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSignerRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signer, err := NewSigner("custodia", []byte("round-trip-secret"), WithSignerClock(fixedClock(now)))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	p := &Principal{ID: "p-1", Email: "user@example.com", RoleID: "role-1"}

	token, expiresAt, err := signer.Sign(p)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if got := expiresAt.Sub(now); got != time.Hour {
		t.Fatalf("expected 1h expiry, got %v", got)
	}

	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.PrincipalID() != "p-1" || claims.Email != "user@example.com" || claims.RoleID != "role-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Issuer != "custodia" {
		t.Fatalf("unexpected issuer: %q", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatal("token must carry a unique id")
	}
}

func TestSignerVerifyRejects(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signer, err := NewSigner("custodia", []byte("reject-secret"), WithSignerClock(fixedClock(now)))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	p := &Principal{ID: "p-1", Email: "user@example.com", RoleID: "role-1"}
	token, _, err := signer.Sign(p)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	t.Run("empty token", func(t *testing.T) {
		if _, err := signer.Verify(""); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("got %v", err)
		}
	})
	t.Run("tampered payload", func(t *testing.T) {
		parts := strings.Split(token, ".")
		parts[1] = parts[1][:len(parts[1])-2] + "xx"
		if _, err := signer.Verify(strings.Join(parts, ".")); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("got %v", err)
		}
	})
	t.Run("wrong secret", func(t *testing.T) {
		other, _ := NewSigner("custodia", []byte("a-different-secret"), WithSignerClock(fixedClock(now)))
		if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("got %v", err)
		}
	})
	t.Run("wrong issuer", func(t *testing.T) {
		other, _ := NewSigner("someone-else", []byte("reject-secret"), WithSignerClock(fixedClock(now)))
		if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("got %v", err)
		}
	})
	t.Run("wrong algorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "custodia",
				Subject:   "p-1",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		})
		raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("SignedString: %v", err)
		}
		if _, err := signer.Verify(raw); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("got %v", err)
		}
	})
}

func TestSignerVerifyExpiry(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signer, err := NewSigner("custodia", []byte("expiry-secret"),
		WithSignerClock(func() time.Time { return clock }))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	token, _, err := signer.Sign(&Principal{ID: "p-1", Email: "u@example.com", RoleID: "r"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if _, err := signer.Verify(token); err != nil {
		t.Fatalf("fresh token should verify: %v", err)
	}
	clock = clock.Add(59 * time.Minute)
	if _, err := signer.Verify(token); err != nil {
		t.Fatalf("token inside its lifetime should verify: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if _, err := signer.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token must be rejected, got %v", err)
	}
}

func TestSignerRequiresSecret(t *testing.T) {
	if _, err := NewSigner("custodia", nil); err == nil {
		t.Fatal("expected an error for an empty secret")
	}
}
