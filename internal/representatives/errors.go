package representatives

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches every *NotFoundError.
	ErrNotFound = errors.New("not found")

	// ErrInvalidSearch is returned by Search when no criterion is given.
	ErrInvalidSearch = errors.New("at least one search criterion (name, party, branch, state) is required")
)

// NotFoundError names the missing resource and, for ZIP lookups, carries a
// hint for the caller.
type NotFoundError struct {
	Resource   string
	Key        string
	Suggestion string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func zipNotFound(zip string) error {
	return &NotFoundError{
		Resource:   "ZIP code",
		Key:        zip,
		Suggestion: "Please verify the ZIP code is correct",
	}
}

func representativeNotFound(id uint) error {
	return &NotFoundError{Resource: "Representative", Key: fmt.Sprint(id)}
}
