package internal

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the server rejects the bearer credential
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned when a conversation does not exist
	ErrNotFound = errors.New("not found")
	// ErrSessionClosed is returned when starting a session that already ran
	ErrSessionClosed = errors.New("stream session closed")
)

// TransportError represents a failure talking to the server
type TransportError struct {
	Op     string // "connect", "read", "request"
	URL    string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport error: %s %s (status %d): %v", e.Op, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("transport error: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError represents a non-2xx response from a REST endpoint
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("api error: %s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
	}
	return fmt.Sprintf("api error: %s %s returned %d", e.Method, e.Path, e.Status)
}

// Is maps status codes onto the package sentinels
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == 401 || e.Status == 403
	case ErrNotFound:
		return e.Status == 404
	}
	return false
}

// ParseError represents errors parsing data
type ParseError struct {
	Source string // "frame", "message", "output", "chat"
	Key    string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error [%s] %s: %v", e.Source, e.Key, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// CacheError represents errors accessing the local history cache
type CacheError struct {
	Path string
	Op   string // "open", "migrate", "read", "write"
	Err  error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// ExportError represents errors during export
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
