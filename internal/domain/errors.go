package domain

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrRender     = errors.New("render failed")
	ErrStorage    = errors.New("storage failed")

	// ErrSessionExists is returned by SessionStore.Create on a duplicate ID
	ErrSessionExists = errors.New("session already exists")
)

// ErrorKind is the machine-readable error class exposed to clients
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindRender     ErrorKind = "render"
	KindStorage    ErrorKind = "storage"
	KindInternal   ErrorKind = "internal"
)

// KindOf classifies an error into its ErrorKind
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrRender):
		return KindRender
	case errors.Is(err, ErrStorage):
		return KindStorage
	default:
		return KindInternal
	}
}

// ValidationError carries per-field validation messages
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
