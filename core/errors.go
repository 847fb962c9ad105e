package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrEmbeddingProvider = errors.New("embedding provider failed")
	ErrVectorStore       = errors.New("vector store failed")
	ErrNotFound          = errors.New("note not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrTimeout           = errors.New("operation timed out")
)

// OpError attaches the failing operation and an error kind to a cause.
// errors.Is matches both the kind and anything in the cause chain.
type OpError struct {
	Op     string
	NoteID string
	Kind   error
	Err    error
}

func (e *OpError) Error() string {
	if e.NoteID != "" {
		return fmt.Sprintf("%s [note=%s]: %v: %v", e.Op, e.NoteID, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Is reports deadline expiry of the underlying call as ErrTimeout.
func (e *OpError) Is(target error) bool {
	return target == ErrTimeout && errors.Is(e.Err, context.DeadlineExceeded)
}

// NewOpError builds an OpError of the given kind.
func NewOpError(op, noteID string, kind, err error) *OpError {
	return &OpError{Op: op, NoteID: noteID, Kind: kind, Err: err}
}

// ProviderError wraps err as an embedding provider failure. Errors that
// already carry a kind are returned unchanged.
func ProviderError(op string, err error) error {
	return classify(op, "", ErrEmbeddingProvider, err)
}

// StoreError wraps err as a vector store failure, except missing notes which
// keep ErrNotFound as their kind.
func StoreError(op, noteID string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return classify(op, noteID, ErrNotFound, err)
	}
	return classify(op, noteID, ErrVectorStore, err)
}

// Invalid builds a validation error. No provider or store call precedes it.
func Invalid(op, format string, args ...any) error {
	return NewOpError(op, "", ErrInvalidInput, fmt.Errorf(format, args...))
}

func classify(op, noteID string, kind, err error) error {
	if err == nil {
		return nil
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		return err
	}
	return NewOpError(op, noteID, kind, err)
}
