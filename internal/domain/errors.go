package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	// ErrNotFound indicates a file, ref or document does not exist
	ErrNotFound = errors.New("not found")

	// ErrCacheMiss indicates a cache miss
	ErrCacheMiss = errors.New("cache miss")

	// ErrRateLimited indicates rate limiting was encountered
	ErrRateLimited = errors.New("rate limited")

	// ErrTimeout indicates a timeout occurred
	ErrTimeout = errors.New("timeout")

	// ErrInvalidArchive indicates the archive stream could not be decoded
	ErrInvalidArchive = errors.New("invalid archive")

	// ErrFileTooLarge indicates an archive entry exceeded the configured size
	ErrFileTooLarge = errors.New("file too large")

	// ErrRenderFailed indicates markdown rendering failed
	ErrRenderFailed = errors.New("render failed")
)

// NotFoundError reports that a file is absent from a repository at a ref
type NotFoundError struct {
	Repo string
	Ref  string
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("could not find %s in %s@%s", e.Path, e.Repo, e.Ref)
}

// Unwrap lets errors.Is(err, ErrNotFound) match
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(repo, ref, path string) *NotFoundError {
	return &NotFoundError{
		Repo: repo,
		Ref:  ref,
		Path: path,
	}
}

// ParseError represents malformed metadata or a render failure for one file
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError
func NewParseError(file string, err error) *ParseError {
	return &ParseError{
		File: file,
		Err:  err,
	}
}

// TransportError represents a stream, decompression or upstream fetch failure
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new TransportError
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{
		Op:  op,
		Err: err,
	}
}

// FetchError represents a non-success HTTP response from an upstream provider
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a new FetchError
func NewFetchError(url string, statusCode int, err error) *FetchError {
	return &FetchError{
		URL:        url,
		StatusCode: statusCode,
		Err:        err,
	}
}

// ValidationError represents malformed request or resolution parameters
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsNotFound reports whether err signals a missing file
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		switch fetchErr.StatusCode {
		case 429, 503, 502, 504:
			return true
		}
		if fetchErr.StatusCode >= 520 && fetchErr.StatusCode <= 530 {
			return true
		}
	}

	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout)
}
