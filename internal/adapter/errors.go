package adapter

import (
	"errors"
	"fmt"

	"github.com/jun/gophgallery/internal/model"
)

var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrUnsupported is returned when a provider lacks the requested capability.
	ErrUnsupported = errors.New("operation not supported by provider")
)

// ContentFetchError reports a failed download, stream or thumbnail fetch with enough
// context for an operator to find the file.
type ContentFetchError struct {
	Provider model.Provider
	FileID   string
	Err      error
}

func (e *ContentFetchError) Error() string {
	return fmt.Sprintf("%s: fetch content of %q: %v", e.Provider, e.FileID, e.Err)
}

func (e *ContentFetchError) Unwrap() error { return e.Err }

// FetchError wraps err as a ContentFetchError unless it already is one.
func FetchError(p model.Provider, fileID string, err error) error {
	var cfe *ContentFetchError
	if errors.As(err, &cfe) {
		return err
	}
	return &ContentFetchError{Provider: p, FileID: fileID, Err: err}
}

// StatusError is a non-success HTTP response from a provider API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider API error %d: %s", e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == 404
}
