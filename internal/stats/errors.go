package stats

import "errors"

var (
	// ErrStorageUnavailable is matched by every database fault returned from Store.
	ErrStorageUnavailable = errors.New("stats: storage unavailable")
	// ErrUnknownField is returned for a Field outside the known set.
	ErrUnknownField = errors.New("stats: unknown field")
)

// StorageError carries the failed operation and its database cause.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return "stats: " + e.Op + ": storage unavailable"
	}
	return "stats: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports true for ErrStorageUnavailable so callers need not know the cause.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// Code is picked up by handler summary logs.
func (e *StorageError) Code() string { return "STORAGE_UNAVAILABLE" }
