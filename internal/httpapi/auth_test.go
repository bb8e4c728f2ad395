package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"vastra/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
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

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, store)
	_, err := manager.Login(domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestRegisterStoresPasswordHash(t *testing.T) {
	store := &userStoreStub{}
	manager := NewAuthManager("test-secret", time.Hour, store)

	account, err := manager.Register(domain.RegisterRequest{
		Username: "Priya",
		Password: "s3cret-pass",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if account.Username != "priya" {
		t.Fatalf("expected lowercased username, got %s", account.Username)
	}
	if account.Role != "customer" {
		t.Fatalf("expected customer role, got %s", account.Role)
	}

	users, _ := store.ListUsers(context.Background())
	if len(users) != 1 {
		t.Fatalf("expected 1 stored user, got %d", len(users))
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt hash in store, got %s", users[0].Password)
	}
}

func TestRegisterValidation(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, &userStoreStub{})

	cases := []domain.RegisterRequest{
		{Username: "ab", Password: "long-enough-pass"},
		{Username: "has space", Password: "long-enough-pass"},
		{Username: "validname", Password: "short"},
	}
	for i, req := range cases {
		if _, err := manager.Register(req); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, &userStoreStub{})

	if _, err := manager.Register(domain.RegisterRequest{Username: "asha", Password: "long-enough-pass"}); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if _, err := manager.Register(domain.RegisterRequest{Username: "ASHA", Password: "another-password"}); err == nil {
		t.Fatalf("expected duplicate username rejection")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"dormant": {
				Username:  "dormant",
				Password:  "plainpass",
				Role:      "customer",
				Active:    false,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, store)
	_, err := manager.Login(domain.LoginRequest{Username: "dormant", Password: "plainpass"})
	if err == nil {
		t.Fatalf("expected inactive account rejection")
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, &userStoreStub{})

	account, err := manager.Register(domain.RegisterRequest{Username: "asha", Password: "long-enough-pass"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	resp, err := manager.Login(domain.LoginRequest{Username: account.Username, Password: "long-enough-pass"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "asha" || actor.Role != "customer" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager("secret-one", time.Hour, &userStoreStub{})
	verifier := NewAuthManager("secret-two", time.Hour, &userStoreStub{})

	account, err := issuer.Register(domain.RegisterRequest{Username: "asha", Password: "long-enough-pass"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	resp, err := issuer.Login(domain.LoginRequest{Username: account.Username, Password: "long-enough-pass"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with a different secret to be rejected")
	}
}
