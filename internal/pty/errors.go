package pty

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned (wrapped with the id) by operations on
	// an identifier that is not in the registry.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when inserting an identifier twice.
	ErrSessionExists = errors.New("session already exists")
)

// SpawnError reports a failure to allocate the pseudoterminal or start the
// shell. Nothing is registered when it is returned.
type SpawnError struct {
	Op  string
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Op, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

// Error kinds reported by transports that cannot carry Go error values.
const (
	KindValidation = "validation"
	KindNotFound   = "not_found"
	KindSpawn      = "spawn"
	KindIO         = "io"
)

// ErrorKind classifies an error returned by a SessionManager operation.
func ErrorKind(err error) string {
	var verr *ValidationError
	var serr *SpawnError
	switch {
	case errors.As(err, &verr):
		return KindValidation
	case errors.Is(err, ErrSessionNotFound):
		return KindNotFound
	case errors.As(err, &serr):
		return KindSpawn
	default:
		return KindIO
	}
}
