package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"scoopos/backend/internal/domain"
	"scoopos/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func (s *userStoreStub) setActive(username string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Active = active
	s.users[username] = user
}

func stubAccount(username string, password string, role domain.Role) domain.UserAccount {
	return domain.UserAccount{
		User: domain.User{
			Username:  username,
			Role:      role,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		},
		Password: password,
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := &userStoreStub{users: map[string]domain.UserAccount{
		"admin": stubAccount("admin", "admin123", domain.RoleAdmin),
	}}
	auth := NewAuthManager("test-secret", time.Hour, users)

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("expected login success, got %v", err)
	}
	if users.updates != 1 {
		t.Fatalf("expected one password upgrade, got %d", users.updates)
	}
	if !isPasswordHash(users.users["admin"].Password) {
		t.Fatalf("expected stored password to be bcrypt hash")
	}

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("expected login with upgraded hash to succeed, got %v", err)
	}
	if users.updates != 1 {
		t.Fatalf("expected no second upgrade, got %d", users.updates)
	}
}

func TestAuthManagerLoginRejectsBadCredentials(t *testing.T) {
	users := &userStoreStub{users: map[string]domain.UserAccount{
		"cashier": stubAccount("cashier", mustHashPassword(t, "cashier123"), domain.RoleCashier),
	}}
	auth := NewAuthManager("test-secret", time.Hour, users)

	tests := []struct {
		name string
		req  domain.LoginRequest
	}{
		{name: "wrong password", req: domain.LoginRequest{Username: "cashier", Password: "nope"}},
		{name: "unknown user", req: domain.LoginRequest{Username: "ghost", Password: "cashier123"}},
		{name: "empty username", req: domain.LoginRequest{Password: "cashier123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Login(context.Background(), tt.req)
			if !errors.Is(err, errInvalidCredentials) {
				t.Fatalf("expected invalid credentials, got %v", err)
			}
		})
	}
}

func TestAuthManagerLoginReturnsGrantedPermissions(t *testing.T) {
	account := stubAccount("cashier", mustHashPassword(t, "cashier123"), domain.RoleCashier)
	account.Permissions = []domain.Permission{domain.PermPOSAccess, domain.PermReportsView}
	users := &userStoreStub{users: map[string]domain.UserAccount{"cashier": account}}
	auth := NewAuthManager("test-secret", time.Hour, users)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: " Cashier ", Password: "cashier123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != domain.RoleCashier {
		t.Fatalf("expected CASHIER role, got %q", resp.Role)
	}
	if len(resp.Permissions) != 2 || resp.Permissions[1] != domain.PermReportsView {
		t.Fatalf("expected override permissions, got %v", resp.Permissions)
	}

	subject, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if subject != "cashier" {
		t.Fatalf("expected subject cashier, got %q", subject)
	}
}

func TestAuthManagerRejectsInactiveAccount(t *testing.T) {
	users := &userStoreStub{users: map[string]domain.UserAccount{
		"cashier": stubAccount("cashier", mustHashPassword(t, "cashier123"), domain.RoleCashier),
	}}
	auth := NewAuthManager("test-secret", time.Hour, users)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "cashier", Password: "cashier123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	users.setActive("cashier", false)

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "cashier", Password: "cashier123"}); !errors.Is(err, errInactiveAccount) {
		t.Fatalf("expected inactive account on login, got %v", err)
	}

	subject, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("token issued before deactivation should still parse: %v", err)
	}
	if _, err := auth.CurrentUser(context.Background(), subject); !errors.Is(err, errInactiveAccount) {
		t.Fatalf("expected inactive account on lookup, got %v", err)
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	users := &userStoreStub{users: map[string]domain.UserAccount{
		"admin": stubAccount("admin", mustHashPassword(t, "admin123"), domain.RoleAdmin),
	}}
	issuer := NewAuthManager("secret-one", time.Hour, users)
	verifier := NewAuthManager("secret-two", time.Hour, users)

	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); !errors.Is(err, errInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestParseTokenRejectsExpiredToken(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour, &userStoreStub{})
	token, err := auth.sign("admin", domain.RoleAdmin, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); !errors.Is(err, errInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}
