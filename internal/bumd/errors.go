package bumd

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a content key is absent from the store.
	ErrNotFound = errors.New("not found")

	// ErrCorruption is returned when stored or supplied content does not
	// match its key, or when a recorded key has no stored object.
	ErrCorruption = errors.New("content corruption")

	// ErrConflict is returned when a restore destination is occupied by an
	// object of the wrong type.
	ErrConflict = errors.New("conflicting destination")

	// ErrInvalidTransition is returned when a run status change would leave
	// a terminal state, or an end time is set twice.
	ErrInvalidTransition = errors.New("invalid run transition")
)

// EntryError is a failure scoped to a single source filesystem entry, such
// as a file that vanished or could not be read. The backup skips the entry
// and continues.
type EntryError struct {
	Op   string
	Path string
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// IsEntryError reports whether err is scoped to a single source entry.
func IsEntryError(err error) bool {
	var ee *EntryError
	return errors.As(err, &ee)
}

// ConflictError wraps ErrConflict with the destination path.
func ConflictError(path, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrConflict, path, reason)
}
