package types

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoSegments means a playlist resolved to neither segments nor
	// stream variants.
	ErrNoSegments = errors.New("no segments found in media playlist")

	// ErrRecursionLimit means a master playlist chain exceeded the hop cap,
	// which usually indicates a self-referential or cyclic playlist.
	ErrRecursionLimit = errors.New("master playlist recursion limit exceeded")

	// ErrEmptyResult means every segment fetch failed.
	ErrEmptyResult = errors.New("no segments could be downloaded")

	// ErrErrorPayload means a direct download was too small to be real media.
	ErrErrorPayload = errors.New("response too small to be media")

	// ErrCancelled is raised at a cooperative-cancel checkpoint. The
	// scheduler converts it to a paused status, never to a hard failure.
	ErrCancelled = errors.New("download cancelled")

	ErrAlreadyTracked = errors.New("download already queued, active, or completed")
	ErrRecordNotFound = errors.New("download record not found")
)

// NetworkError wraps a failed fetch. Segment-level instances are swallowed
// by the engine; transfer-level instances propagate to the scheduler.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("error fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StorageError wraps a write or delete failure on a destination or scratch
// path.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("error during %s on %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsCancelled reports whether err came from a cooperative-cancel checkpoint
// or the underlying transport's context cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
