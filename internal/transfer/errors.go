package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrRangeNotSatisfiable is returned when a Range header selects no byte of the file.
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")

	// ErrNoThumbnail is returned when neither the provider nor the original can produce a thumbnail.
	ErrNoThumbnail = errors.New("no thumbnail available")

	// ErrTooLarge is returned when a body would exceed what the service buffers.
	ErrTooLarge = errors.New("content too large")
)

// ValidationError reports a malformed request, detected before any provider call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// RangeError carries the file size needed for a 416 Content-Range header.
type RangeError struct {
	Size int64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range not satisfiable for %d bytes", e.Size)
}

func (e *RangeError) Is(target error) bool { return target == ErrRangeNotSatisfiable }

// SizeError reports a file or archive larger than Limit bytes.
type SizeError struct {
	Limit int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("content exceeds %d bytes", e.Limit)
}

func (e *SizeError) Is(target error) bool { return target == ErrTooLarge }
