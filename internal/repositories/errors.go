package repositories

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates the attempted write would violate a uniqueness
	// constraint. For likes this is the authoritative "already liked" signal;
	// callers must not rely on a prior existence check.
	ErrConflict = errors.New("record conflict")
)
