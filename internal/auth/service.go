package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for any authentication failure. One
// value for both unknown-user and wrong-password keeps the API from leaking
// which usernames exist.
var ErrInvalidCredentials = errors.New("invalid credentials")

const (
	defaultAdminUser     = "admin"
	defaultAdminPassword = "admin"
)

// Service handles operator authentication and credential management over
// the JSON user store.
type Service struct {
	store  *UserStore
	secret string
	ttl    time.Duration
	logger *slog.Logger
}

// NewService constructs the auth service.
func NewService(store *UserStore, secret string, ttl time.Duration, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		secret: secret,
		ttl:    ttl,
		logger: logger,
	}
}

// Authenticate verifies the credentials and issues a session token. When
// the store has no such user and the credentials are exactly the default
// admin pair, the admin account is recreated first; this keeps a fresh
// fallback box reachable after the user file is lost.
func (s *Service) Authenticate(username, password string) (string, error) {
	users := s.store.Load()

	var user *User
	for i := range users {
		if users[i].Username == username {
			user = &users[i]
			break
		}
	}

	if user == nil {
		if username == defaultAdminUser && password == defaultAdminPassword {
			if err := s.CreateUser(defaultAdminUser, defaultAdminPassword, RoleAdmin); err != nil {
				return "", fmt.Errorf("failed to recreate default admin: %w", err)
			}
			return GenerateToken(defaultAdminUser, RoleAdmin, s.secret, s.ttl)
		}
		return "", ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	role := user.Role
	if role == "" {
		role = RoleAnalyst
	}
	return GenerateToken(username, role, s.secret, s.ttl)
}

// CreateUser registers a new operator account. Duplicate usernames are
// rejected.
func (s *Service) CreateUser(username, password, role string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return s.store.Update(func(users []User) ([]User, error) {
		for _, u := range users {
			if u.Username == username {
				return nil, fmt.Errorf("user %q already exists", username)
			}
		}
		return append(users, User{
			Username:       username,
			HashedPassword: string(hash),
			Role:           role,
			CreatedAt:      time.Now().UTC(),
		}), nil
	})
}

// ChangePassword rotates an operator's credentials after verifying the old
// password.
func (s *Service) ChangePassword(username, oldPassword, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return s.store.Update(func(users []User) ([]User, error) {
		for i := range users {
			if users[i].Username != username {
				continue
			}
			if bcrypt.CompareHashAndPassword([]byte(users[i].HashedPassword), []byte(oldPassword)) != nil {
				return nil, ErrInvalidCredentials
			}
			users[i].HashedPassword = string(hash)
			return users, nil
		}
		return nil, ErrInvalidCredentials
	})
}

// EnsureAdmin seeds the default admin account at startup when absent.
func (s *Service) EnsureAdmin() {
	for _, u := range s.store.Load() {
		if u.Username == defaultAdminUser {
			return
		}
	}

	s.logger.Info("seeding default admin user")
	if err := s.CreateUser(defaultAdminUser, defaultAdminPassword, RoleAdmin); err != nil {
		s.logger.Error("failed to seed default admin", "error", err)
	}
}
