package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/congo-pay/token_ledger/internal/account"
)

func TestIssuerRoundTrip(t *testing.T) {
	issuer, err := NewIssuer("secret", "TokenLedger", time.Minute)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	token, exp, err := issuer.Issue(account.MustParse("alice.near"))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expiry in the past: %s", exp)
	}
	id, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id != "alice.near" {
		t.Fatalf("expected alice.near, got %s", id)
	}
}

func TestIssuerRejectsForeignAndExpiredTokens(t *testing.T) {
	issuer, _ := NewIssuer("secret", "TokenLedger", time.Minute)
	other, _ := NewIssuer("other-secret", "TokenLedger", time.Minute)

	foreign, _, err := other.Issue(account.MustParse("alice.near"))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.Verify(foreign); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}

	past := time.Now().Add(-2 * time.Hour)
	issuer.now = func() time.Time { return past }
	stale, _, err := issuer.Issue(account.MustParse("alice.near"))
	if err != nil {
		t.Fatalf("issue stale: %v", err)
	}
	issuer.now = time.Now
	if _, err := issuer.Verify(stale); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer("", "x", time.Minute); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
