package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// User is one operator account in the JSON user store.
type User struct {
	Username       string    `json:"username"`
	HashedPassword string    `json:"hashed_password"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserStore persists operator accounts as a JSON array, mirroring the local
// event cache's posture: a missing or corrupt file is an empty list, never
// fatal, and writes go through a temp-file swap.
type UserStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewUserStore constructs a store over the given file path.
func NewUserStore(path string, logger *slog.Logger) *UserStore {
	return &UserStore{path: path, logger: logger}
}

// Load reads the current user list.
func (s *UserStore) Load() []User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Save replaces the user list on disk.
func (s *UserStore) Save(users []User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(users)
}

// Update applies fn to the current user list and persists the result under
// one lock acquisition, so concurrent account mutations cannot interleave.
func (s *UserStore) Update(fn func(users []User) ([]User, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := fn(s.loadLocked())
	if err != nil {
		return err
	}
	return s.saveLocked(users)
}

func (s *UserStore) loadLocked() []User {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to read user store, treating as empty", "path", s.path, "error", err)
		}
		return nil
	}

	var users []User
	if err := json.Unmarshal(raw, &users); err != nil {
		s.logger.Warn("user store unparseable, treating as empty", "path", s.path, "error", err)
		return nil
	}
	return users
}

func (s *UserStore) saveLocked(users []User) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
