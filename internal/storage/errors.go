package storage

import "errors"

// Sentinel errors shared by both backends. Gateway fallback decisions are
// explicit control flow on these values, checked with errors.Is.
var (
	// ErrUnreachable indicates the remote store could not be reached or
	// timed out. It means "this backend is currently unusable", never
	// "this data does not exist".
	ErrUnreachable = errors.New("remote store unreachable")

	// ErrNotFound indicates a targeted mutation referenced an id that is
	// absent. It is a normal negative result, not a failure.
	ErrNotFound = errors.New("event not found")

	// ErrPartialWrite indicates an unordered bulk push applied only part
	// of its batch. Applied writes are not rolled back.
	ErrPartialWrite = errors.New("partial bulk write")

	// ErrCorrupt indicates the local cache file could not be parsed. The
	// dataset is treated as empty; the condition is logged, never fatal.
	ErrCorrupt = errors.New("local cache corrupt")
)
