package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/dotlog/internal/host"
)

// ErrAppendConflict matches every ConflictError via errors.Is.
var ErrAppendConflict = errors.New("append conflict")

// ConflictError reports an append whose idx is not the next one for its
// (host, tag) log, or whose timestamp does not advance the log. It only
// arises when two local writers race on the same log and is recoverable by
// recomputing idx and retrying.
type ConflictError struct {
	Host     host.ID
	Tag      string
	Idx      uint64
	Expected uint64
	Reason   string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("append conflict: %s/%s#%d (next is %d): %s", e.Host, e.Tag, e.Idx, e.Expected, e.Reason)
}

// Is makes errors.Is(err, ErrAppendConflict) true for every ConflictError.
func (e *ConflictError) Is(target error) bool { return target == ErrAppendConflict }

// StorageError wraps an underlying database failure. It is propagated to
// callers and never retried by this package.
type StorageError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

// Unwrap returns the driver error.
func (e *StorageError) Unwrap() error { return e.Err }

// IsConflict returns true if err is or wraps an append conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAppendConflict)
}

// IsStorageError returns true if err is or wraps a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// isUniqueViolation reports whether err is a primary key or unique
// constraint failure from SQLite.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
