package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates an entity, membership or share target is absent.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied indicates the capability check failed.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidCommand indicates a domain-rule violation.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrConflictOnCommit indicates a storage-level serialization failure on a
	// concurrent commit of the same entity. Safe to retry without re-validating.
	ErrConflictOnCommit = errors.New("conflict on commit")
)

// InvalidCommandf wraps ErrInvalidCommand with a formatted detail message.
func InvalidCommandf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCommand, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a formatted detail message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
