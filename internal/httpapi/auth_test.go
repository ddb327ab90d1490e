package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"shiftrecon/backend/internal/domain"
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
	_, err := manager.Login(context.Background(), domain.LoginRequest{
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

func TestCreateUserStoresPasswordHash(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, store)
	user, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{
		Username: "Closing-Crew",
		Password: "closing123",
		Role:     domain.RoleStaff,
	})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if user.Username != "closing-crew" {
		t.Fatalf("expected lowercased username, got %q", user.Username)
	}
	if user.Password != "" {
		t.Fatalf("expected password to be stripped from returned account")
	}

	stored := store.users["closing-crew"]
	if !strings.HasPrefix(stored.Password, "$2") {
		t.Fatalf("expected stored bcrypt hash, got %q", stored.Password)
	}

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "closing-crew", Password: "closing123"})
	if err != nil {
		t.Fatalf("login as new user failed: %v", err)
	}
	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "closing-crew" || actor.Role != domain.RoleStaff {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestCreateUserRejectsAdminRole(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, &userStoreStub{})
	_, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{
		Username: "second-admin",
		Password: "admin12345",
		Role:     domain.RoleAdmin,
	})
	if err == nil {
		t.Fatal("expected admin role to be rejected")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	store := &userStoreStub{}
	issuer := NewAuthManager("secret-one", time.Hour, store)
	verifier := NewAuthManager("secret-two", time.Hour, store)

	token, err := issuer.sign("manager", domain.RoleManager, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := verifier.ParseToken(token); err == nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}
	if _, err := issuer.ParseToken(token); err != nil {
		t.Fatalf("expected own token to parse, got %v", err)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, &userStoreStub{})
	token, err := manager.sign("staff", domain.RoleStaff, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}
