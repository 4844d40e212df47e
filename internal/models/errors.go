package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks malformed or out-of-range request parameters.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrBackendUnavailable marks a backend that cannot open or reach its store.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrRerankFailure marks a reranker model load or inference error.
	ErrRerankFailure = errors.New("rerank failure")
)

// RequestError describes an invalid request field.
type RequestError struct {
	Field  string
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *RequestError) Unwrap() error {
	return ErrInvalidRequest
}

// InvalidField returns a RequestError for field.
func InvalidField(field, format string, args ...interface{}) error {
	return &RequestError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// BackendError records a failed backend call for one collection.
type BackendError struct {
	Collection string
	Source     Source
	Err        error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend for %s: %v", e.Source, e.Collection, e.Err)
}

func (e *BackendError) Unwrap() []error {
	return []error{ErrBackendUnavailable, e.Err}
}
