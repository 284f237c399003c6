package authn

import (
	"context"
	"strings"
	"testing"
	"time"
)

func withSecret(t *testing.T, value string) {
	t.Helper()
	ResetSecretForTests()
	t.Setenv("CURIA_AUTH_SECRET", value)
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidate(t *testing.T) {
	withSecret(t, "unit-test-secret")

	token, err := GenerateToken("user-42", "Judge", "circle-1", 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Role != "judge" {
		t.Fatalf("role not normalized: %s", claims.Role)
	}
	if claims.HomeCircle != "circle-1" {
		t.Fatalf("unexpected home circle: %s", claims.HomeCircle)
	}
	if claims.ID == "" {
		t.Fatal("expected jti")
	}
}

func TestValidateRejectsTampered(t *testing.T) {
	withSecret(t, "unit-test-secret")

	token, err := GenerateToken("user-42", "clerk", "circle-1", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %d parts", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	if _, err := ParseAndValidate(tampered); err == nil {
		t.Fatal("expected tampered token to fail validation")
	}

	if _, err := ParseAndValidate(""); err == nil {
		t.Fatal("expected empty token to fail validation")
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	withSecret(t, "first-secret")
	token, err := GenerateToken("user-42", "clerk", "circle-1", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	withSecret(t, "second-secret")
	if _, err := ParseAndValidate(token); err == nil {
		t.Fatal("expected validation to fail after secret change")
	}
}

func TestGenerateRequiresConfig(t *testing.T) {
	ResetSecretForTests()
	t.Setenv("CURIA_AUTH_SECRET", "")
	t.Cleanup(ResetSecretForTests)

	if _, err := GenerateToken("user-42", "clerk", "circle-1", time.Minute); err == nil {
		t.Fatal("expected error without configured secret")
	}
	if _, err := GenerateToken("", "clerk", "circle-1", time.Minute); err == nil {
		t.Fatal("expected error for empty user id")
	}
	withSecret(t, "unit-test-secret")
	if _, err := GenerateToken("user-42", "clerk", "circle-1", 0); err == nil {
		t.Fatal("expected error for non-positive ttl")
	}
}

func TestPasswordRoundtrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := VerifyPassword(hash, "correct horse battery staple"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Fatal("expected mismatch error")
	}
	if _, err := HashPassword(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := ActorFromContext(ctx); ok {
		t.Fatal("unexpected actor in empty context")
	}
	ctx = ContextWithActor(ctx, " user-7 ")
	id, ok := ActorFromContext(ctx)
	if !ok || id != "user-7" {
		t.Fatalf("unexpected actor id: %q, ok=%v", id, ok)
	}
}
