package repositories

import "fmt"

// StoreErrorCode enumerates failure categories for persistence operations.
type StoreErrorCode string

const (
	// StoreErrorUnknown represents an unspecified failure.
	StoreErrorUnknown StoreErrorCode = "store_unknown"
	// StoreErrorNotFound indicates the entity does not exist.
	StoreErrorNotFound StoreErrorCode = "store_not_found"
	// StoreErrorConflict indicates a concurrent modification or duplicate write.
	StoreErrorConflict StoreErrorCode = "store_conflict"
	// StoreErrorUnavailable indicates the backend could not be reached.
	StoreErrorUnavailable StoreErrorCode = "store_unavailable"
)

// StoreError wraps persistence failures with machine readable codes. It
// satisfies the RepositoryError contract consumed by the service layer.
type StoreError struct {
	Op      string
	Code    StoreErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound implements RepositoryError.
func (e *StoreError) IsNotFound() bool { return e != nil && e.Code == StoreErrorNotFound }

// IsConflict implements RepositoryError.
func (e *StoreError) IsConflict() bool { return e != nil && e.Code == StoreErrorConflict }

// IsUnavailable implements RepositoryError.
func (e *StoreError) IsUnavailable() bool { return e != nil && e.Code == StoreErrorUnavailable }

// NewStoreError constructs a typed store error.
func NewStoreError(op string, code StoreErrorCode, message string, err error) *StoreError {
	if message == "" {
		message = string(code)
	}
	return &StoreError{Op: op, Code: code, Message: message, Err: err}
}

// NewNotFound reports a missing entity for the given operation.
func NewNotFound(op, message string) *StoreError {
	return NewStoreError(op, StoreErrorNotFound, message, nil)
}

// NewConflict reports a conflicting write for the given operation.
func NewConflict(op, message string) *StoreError {
	return NewStoreError(op, StoreErrorConflict, message, nil)
}

// NewUnavailable reports an unreachable backend for the given operation.
func NewUnavailable(op, message string, err error) *StoreError {
	return NewStoreError(op, StoreErrorUnavailable, message, err)
}
