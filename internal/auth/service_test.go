package auth

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	store := NewUserStore(filepath.Join(t.TempDir(), "users.json"), testLogger())
	return NewService(store, "test-secret", time.Hour, testLogger())
}

func TestService_EnsureAdmin_SeedsOnce(t *testing.T) {
	svc := newTestService(t)

	svc.EnsureAdmin()
	svc.EnsureAdmin()

	users := svc.store.Load()
	if len(users) != 1 {
		t.Fatalf("expected exactly one seeded user, got %d", len(users))
	}
	if users[0].Username != "admin" || users[0].Role != RoleAdmin {
		t.Errorf("unexpected seeded user %+v", users[0])
	}
	if users[0].HashedPassword == "admin" {
		t.Error("password must be stored hashed")
	}
}

func TestService_Authenticate(t *testing.T) {
	svc := newTestService(t)
	svc.EnsureAdmin()

	token, err := svc.Authenticate("admin", "admin")
	if err != nil {
		t.Fatalf("seeded admin must authenticate: %v", err)
	}

	username, role, err := ValidateToken(token, "test-secret")
	if err != nil {
		t.Fatalf("issued token must validate: %v", err)
	}
	if username != "admin" || role != RoleAdmin {
		t.Errorf("token claims = (%s, %s), want (admin, admin)", username, role)
	}

	if _, err := svc.Authenticate("admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password must fail with ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate("ghost", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user must fail with ErrInvalidCredentials, got %v", err)
	}
}

func TestService_Authenticate_BootstrapsDefaultAdmin(t *testing.T) {
	svc := newTestService(t)

	// Empty user file plus the default pair recreates the admin account.
	token, err := svc.Authenticate("admin", "admin")
	if err != nil {
		t.Fatalf("bootstrap path must succeed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a token from the bootstrap path")
	}
	if users := svc.store.Load(); len(users) != 1 || users[0].Username != "admin" {
		t.Errorf("expected admin recreated in the store, got %v", users)
	}
}

func TestService_CreateUser_RejectsDuplicates(t *testing.T) {
	svc := newTestService(t)

	if err := svc.CreateUser("analyst1", "pw", RoleAnalyst); err != nil {
		t.Fatal(err)
	}
	if err := svc.CreateUser("analyst1", "other", RoleAnalyst); err == nil {
		t.Fatal("duplicate username must be rejected")
	}
}

func TestService_ChangePassword(t *testing.T) {
	svc := newTestService(t)
	if err := svc.CreateUser("analyst1", "old-pw", RoleAnalyst); err != nil {
		t.Fatal(err)
	}

	if err := svc.ChangePassword("analyst1", "wrong", "new-pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("rotation without the old password must fail, got %v", err)
	}

	if err := svc.ChangePassword("analyst1", "old-pw", "new-pw"); err != nil {
		t.Fatalf("rotation failed: %v", err)
	}

	if _, err := svc.Authenticate("analyst1", "old-pw"); err == nil {
		t.Error("old password must stop working after rotation")
	}
	if _, err := svc.Authenticate("analyst1", "new-pw"); err != nil {
		t.Errorf("new password must authenticate, got %v", err)
	}
}

func TestUserStore_CorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	if err := os.WriteFile(path, []byte("][ nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewUserStore(path, testLogger())
	if users := store.Load(); len(users) != 0 {
		t.Fatalf("corrupt store must read as empty, got %d users", len(users))
	}
}

func TestToken_Expiry(t *testing.T) {
	token, err := GenerateToken("admin", RoleAdmin, "test-secret", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := ValidateToken(token, "test-secret"); err == nil {
		t.Fatal("expired token must be rejected")
	}
}
