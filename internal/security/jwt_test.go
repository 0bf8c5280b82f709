package security_test

import (
	"strings"
	"testing"
	"time"

	"github.com/Rrens/inspection-service/internal/security"
	"github.com/golang-jwt/jwt/v5"
)

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-with-32-chars!!", 15*time.Minute)

	// Generate access token
	accessToken, err := manager.GenerateAccessToken("inspector-1", "KBH-42")
	if err != nil {
		t.Fatalf("failed to generate access token: %v", err)
	}

	if accessToken == "" {
		t.Error("access token is empty")
	}

	// Validate access token
	claims, err := manager.ValidateAccessToken(accessToken)
	if err != nil {
		t.Fatalf("failed to validate access token: %v", err)
	}

	if claims.Subject != "inspector-1" {
		t.Errorf("subject mismatch: got %v, want %v", claims.Subject, "inspector-1")
	}

	if claims.OwnerCode != "KBH-42" {
		t.Errorf("owner code mismatch: got %v, want %v", claims.OwnerCode, "KBH-42")
	}

	if claims.ID == "" {
		t.Error("token ID is empty")
	}
}

func TestJWTManager_ResolveIdentity(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-with-32-chars!!", time.Hour)

	token, err := manager.GenerateAccessToken("inspector-2", "AAR-7")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	identity, err := manager.ResolveIdentity(token)
	if err != nil {
		t.Fatalf("failed to resolve identity: %v", err)
	}

	if identity.Subject != "inspector-2" || identity.OwnerCode != "AAR-7" {
		t.Errorf("unexpected identity: %+v", identity)
	}
}

func TestJWTManager_InvalidToken(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-with-32-chars!!", 15*time.Minute)

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"invalid format", "invalid-token"},
		{"wrong signature", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJzdWIiOiIxMjM0NTY3ODkwIn0.invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.ValidateAccessToken(tt.token)
			if err == nil {
				t.Error("expected error for invalid token")
			}
		})
	}
}

func TestJWTManager_WrongSecret(t *testing.T) {
	issuer := security.NewJWTManager("secret-one-secret-one-secret-one", time.Hour)
	verifier := security.NewJWTManager("secret-two-secret-two-secret-two", time.Hour)

	token, err := issuer.GenerateAccessToken("inspector", "X")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	if _, err := verifier.ValidateAccessToken(token); err == nil {
		t.Error("expected error for token signed with another secret")
	}
}

func TestJWTManager_ExpiredToken(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-with-32-chars!!", -time.Minute)

	token, err := manager.GenerateAccessToken("inspector", "X")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	_, err = manager.ValidateAccessToken(token)
	if err == nil {
		t.Fatal("expected error for expired token")
	}
	if !strings.Contains(err.Error(), jwt.ErrTokenExpired.Error()) {
		t.Errorf("expected expiry error, got %v", err)
	}
}

func TestJWTManager_Disabled(t *testing.T) {
	manager := security.NewJWTManager("", time.Hour)

	if manager.Enabled() {
		t.Error("manager without secret should be disabled")
	}
	if _, err := manager.GenerateAccessToken("a", "b"); err == nil {
		t.Error("expected error generating token without secret")
	}
	if _, err := manager.ValidateAccessToken("anything"); err == nil {
		t.Error("expected error validating token without secret")
	}
}
