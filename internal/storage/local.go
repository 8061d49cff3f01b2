package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sentinai/netguard/internal/models"
)

// LocalStore is the file-backed fallback cache: a single JSON array of
// events, rewritten wholesale on every mutation, mirrored in memory. It keeps
// at most `retention` events, newest first. Reads never fail: a missing or
// corrupt file is an empty dataset.
//
// The store assumes a single writer process. Concurrent goroutines within
// the process are serialized by the internal mutex.
type LocalStore struct {
	path      string
	retention int
	logger    *slog.Logger

	mu     sync.Mutex
	mem    []models.Event
	loaded bool
}

// NewLocalStore constructs a LocalStore persisting to path, keeping up to
// retention events. The file is loaded lazily on first read.
func NewLocalStore(path string, retention int, logger *slog.Logger) *LocalStore {
	return &LocalStore{
		path:      path,
		retention: retention,
		logger:    logger,
	}
}

// ReadAll returns a copy of the cached event set, loading the backing file
// on first use. Corrupt or missing content yields an empty slice.
func (s *LocalStore) ReadAll() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// WriteAll replaces the entire cached set and persists it. The in-memory
// mirror is always updated; a disk failure is logged and the mirror stays
// authoritative for the rest of the process lifetime.
func (s *LocalStore) WriteAll(events []models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLocked(events)
}

// Upsert replaces-or-appends by id, re-sorts newest first, enforces the
// retention cap and persists the result.
func (s *LocalStore) Upsert(event models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.snapshotLocked()
	replaced := false
	for i := range data {
		if data[i].ID == event.ID {
			data[i] = event
			replaced = true
			break
		}
	}
	if !replaced {
		data = append(data, event)
	}

	sortByTimestampDesc(data)
	if s.retention > 0 && len(data) > s.retention {
		data = data[:s.retention]
	}
	s.writeLocked(data)
}

// QueryRecent returns up to limit events sorted by timestamp descending.
// limit <= 0 means unbounded.
func (s *LocalStore) QueryRecent(limit int) []models.Event {
	data := s.ReadAll()
	sortByTimestampDesc(data)
	if limit > 0 && len(data) > limit {
		return data[:limit]
	}
	return data
}

// QueryRange returns events with start <= timestamp < end, sorted
// descending. Inclusive start, exclusive end.
func (s *LocalStore) QueryRange(start, end string) []models.Event {
	data := s.ReadAll()
	filtered := make([]models.Event, 0, len(data))
	for _, event := range data {
		if start <= event.Timestamp && event.Timestamp < end {
			filtered = append(filtered, event)
		}
	}
	sortByTimestampDesc(filtered)
	return filtered
}

// Len reports the current number of cached events.
func (s *LocalStore) Len() int {
	return len(s.ReadAll())
}

func (s *LocalStore) snapshotLocked() []models.Event {
	if !s.loaded {
		s.mem = s.loadFile()
		s.loaded = true
	}
	out := make([]models.Event, len(s.mem))
	copy(out, s.mem)
	return out
}

func (s *LocalStore) loadFile() []models.Event {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to read local cache, starting empty", "path", s.path, "error", err)
		}
		return nil
	}

	var data []models.Event
	if err := json.Unmarshal(raw, &data); err != nil {
		s.logger.Warn("local cache unparseable, treating as empty",
			"path", s.path, "error", fmt.Errorf("%w: %v", ErrCorrupt, err))
		return nil
	}
	return data
}

// writeLocked persists data atomically: marshal to a temp file in the target
// directory, then rename over the cache path so a concurrent reader never
// observes a half-written file.
func (s *LocalStore) writeLocked(events []models.Event) {
	s.mem = make([]models.Event, len(events))
	copy(s.mem, events)
	s.loaded = true

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.logger.Error("failed to create cache directory", "dir", dir, "error", err)
		return
	}

	raw, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		s.logger.Error("failed to encode local cache", "error", err)
		return
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		s.logger.Error("failed to create cache temp file", "error", err)
		return
	}

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		s.logger.Error("failed to write cache temp file", "error", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		s.logger.Error("failed to close cache temp file", "error", err)
		return
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		s.logger.Error("failed to swap cache file", "path", s.path, "error", err)
	}
}

func sortByTimestampDesc(events []models.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp > events[j].Timestamp
	})
}
