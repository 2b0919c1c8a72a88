package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"stockledger/backend/internal/domain"
	"stockledger/backend/internal/store"
)

type userStoreStub struct {
	mu    sync.Mutex
	users map[string]domain.UserAccount
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	if _, exists := s.users[user.UserID]; exists {
		return store.ErrConflict
	}
	s.users[user.UserID] = user
	return nil
}

func (s *userStoreStub) GetUserByID(_ context.Context, userID string) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func seededUserStore(t *testing.T) *userStoreStub {
	t.Helper()
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				UserID:    "admin",
				Password:  mustHashPassword(t, "admin123"),
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerLoginAndParse(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, seededUserStore(t))

	resp, err := manager.Login(context.Background(), domain.LoginRequest{
		UserID:   "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("expected token in login response")
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("unexpected role %q", resp.Role)
	}

	actor, err := manager.ParseToken(resp.Token)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.UserID != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestAuthManagerRejectsWrongPassword(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, seededUserStore(t))

	if _, err := manager.Login(context.Background(), domain.LoginRequest{UserID: "admin", Password: "wrong"}); err == nil {
		t.Fatalf("expected login failure for wrong password")
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{UserID: "ghost", Password: "admin123"}); err == nil {
		t.Fatalf("expected login failure for unknown user")
	}
}

func TestAuthManagerRejectsInactiveAccount(t *testing.T) {
	users := seededUserStore(t)
	users.users["frozen"] = domain.UserAccount{
		UserID:   "frozen",
		Password: mustHashPassword(t, "frozen123"),
		Role:     domain.RoleSales,
		Active:   false,
	}
	manager := NewAuthManager("test-secret", time.Hour, users)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{UserID: "frozen", Password: "frozen123"}); err == nil {
		t.Fatalf("expected login failure for inactive account")
	}
}

func TestRegisterStoresPasswordHash(t *testing.T) {
	users := seededUserStore(t)
	manager := NewAuthManager("test-secret", time.Hour, users)

	created, err := manager.Register(context.Background(), domain.RegisterRequest{
		UserID:   "counter1",
		Password: "pass1234",
		Role:     domain.RoleSales,
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if created.Password != "" {
		t.Fatalf("expected password to be cleared from response")
	}

	stored, err := users.GetUserByID(context.Background(), "counter1")
	if err != nil {
		t.Fatalf("expected user to be saved: %v", err)
	}
	if stored.Password == "pass1234" {
		t.Fatalf("expected stored password to be hashed")
	}
	if !strings.HasPrefix(stored.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", stored.Password)
	}

	if _, err := manager.Login(context.Background(), domain.LoginRequest{UserID: "counter1", Password: "pass1234"}); err != nil {
		t.Fatalf("login with registered account failed: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, seededUserStore(t))

	cases := []domain.RegisterRequest{
		{UserID: "ab", Password: "pass1234", Role: domain.RoleSales},
		{UserID: "has space", Password: "pass1234", Role: domain.RoleSales},
		{UserID: "valid1", Password: "short", Role: domain.RoleSales},
		{UserID: "valid2", Password: "pass1234", Role: "owner"},
		{UserID: "admin", Password: "pass1234", Role: domain.RoleAdmin},
	}
	for i, req := range cases {
		if _, err := manager.Register(context.Background(), req); err == nil {
			t.Fatalf("case %d: expected registration to fail", i)
		}
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	users := seededUserStore(t)
	issuer := NewAuthManager("secret-one-secret-one-secret-one", time.Hour, users)
	verifier := NewAuthManager("secret-two-secret-two-secret-two", time.Hour, users)

	resp, err := issuer.Login(context.Background(), domain.LoginRequest{UserID: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.Token); err == nil {
		t.Fatalf("expected token signed with different secret to be rejected")
	}
}
