package service

import (
	"errors"
	"testing"
	"time"

	"github.com/yourorg/botfleet/internal/domain"
	"github.com/yourorg/botfleet/internal/security/auth"
)

func newAuthService(f *fixture) *AuthService {
	return NewAuthService(f.tenants, auth.NewTokenManager("test-secret", "botfleet-test"), f.logger)
}

func TestLoginIssuesValidToken(t *testing.T) {
	f := newFixture(t)
	tenant := f.seedTenant(t, "alice", 3)
	svc := newAuthService(f)

	result, err := svc.Login("alice", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.TenantID != tenant.ID || result.TokenType != "Bearer" {
		t.Fatalf("unexpected login result: %+v", result)
	}

	claims, err := svc.VerifyToken(result.Token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if claims.TenantID != tenant.ID || claims.Username != "alice" || claims.IsAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestLoginRejectsBadCredentialsUniformly(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, "alice", 3)
	svc := newAuthService(f)

	_, wrongPass := svc.Login("alice", "wrong")
	_, unknownUser := svc.Login("nobody", "secret123")

	if !errors.Is(wrongPass, domain.ErrUnauthorized) || !errors.Is(unknownUser, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for both, got %v / %v", wrongPass, unknownUser)
	}
	// Same message so callers cannot probe which usernames exist.
	if wrongPass.Error() != unknownUser.Error() {
		t.Fatalf("credential errors must be indistinguishable: %q vs %q", wrongPass, unknownUser)
	}
}

func TestLoginRefusesExpiredTenant(t *testing.T) {
	f := newFixture(t)
	tenant := f.seedTenant(t, "alice", 3)
	tenant.ExpiresAt = time.Now().Add(-time.Hour)
	if err := f.tenants.Update(tenant); err != nil {
		t.Fatalf("expire tenant: %v", err)
	}
	svc := newAuthService(f)

	_, err := svc.Login("alice", "secret123")
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired tenant, got %v", err)
	}
}

func TestExpiredAdminStillLogsIn(t *testing.T) {
	f := newFixture(t)
	tenant := f.seedTenant(t, "root", 0)
	tenant.IsAdmin = true
	tenant.ExpiresAt = time.Now().Add(-time.Hour)
	if err := f.tenants.Update(tenant); err != nil {
		t.Fatalf("update tenant: %v", err)
	}
	svc := newAuthService(f)

	result, err := svc.Login("root", "secret123")
	if err != nil {
		t.Fatalf("admin login: %v", err)
	}
	if !result.IsAdmin {
		t.Fatalf("expected admin flag in result")
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	tenant := f.seedTenant(t, "alice", 3)
	svc := newAuthService(f)

	if err := svc.ChangePassword(tenant.ID, "wrong", "newpassword1"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for wrong old password, got %v", err)
	}
	if err := svc.ChangePassword(tenant.ID, "secret123", "short"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}
	if err := svc.ChangePassword(tenant.ID, "secret123", "newpassword1"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if _, err := svc.Login("alice", "secret123"); err == nil {
		t.Fatalf("old password must stop working")
	}
	if _, err := svc.Login("alice", "newpassword1"); err != nil {
		t.Fatalf("new password must work: %v", err)
	}
}
