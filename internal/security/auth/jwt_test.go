package auth

import (
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	tm := NewTokenManager("test-secret", "test-issuer")

	token, err := tm.GenerateToken("user-123", "alice@example.com", true, false, time.Hour)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	claims, err := tm.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.UserID != "user-123" || claims.Email != "alice@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.Superuser || claims.Verified {
		t.Fatalf("flags not round-tripped: %+v", claims)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	tm := NewTokenManager("secret-a", "test")
	other := NewTokenManager("secret-b", "test")

	token, err := tm.GenerateToken("user-123", "a@example.com", false, false, time.Hour)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatalf("expected validation to fail with wrong secret")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	tm := NewTokenManager("test-secret", "test")

	token, err := tm.GenerateToken("user-123", "a@example.com", false, false, -time.Minute)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if _, err := tm.ValidateToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestGenerateRequiresUserID(t *testing.T) {
	tm := NewTokenManager("test-secret", "test")
	if _, err := tm.GenerateToken("", "a@example.com", false, false, time.Hour); err == nil {
		t.Fatalf("expected error for empty user id")
	}
}

func TestExtractToken(t *testing.T) {
	if tok, err := ExtractToken("Bearer abc123"); err != nil || tok != "abc123" {
		t.Fatalf("expected abc123, got %q err=%v", tok, err)
	}
	if _, err := ExtractToken("abc123"); err == nil {
		t.Fatalf("expected error for missing scheme")
	}
	if _, err := ExtractToken("Basic abc123"); err == nil {
		t.Fatalf("expected error for wrong scheme")
	}
}
