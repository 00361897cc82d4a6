package lock

import (
	"context"
	"errors"
	"time"

	"github.com/jun/gophgallery/internal/model"
)

// DefaultTTL bounds how long a crashed holder can block other refreshers.
const DefaultTTL = 30 * time.Second

// ErrHeld is returned by Acquire when another owner holds an unexpired lease.
var ErrHeld = errors.New("lease is held by another owner")

// Locker defines the interface for cross-process leases.
// The auth factory takes one per account so that only one process refreshes a
// given refresh token at a time.
type Locker interface {
	// Acquire takes the lease on key for owner. It succeeds if no lease exists,
	// the existing lease has expired, or owner already holds it.
	Acquire(ctx context.Context, key, owner string) (*model.Lease, error)

	// Release removes the lease if owner holds it.
	Release(ctx context.Context, key, owner string) error

	// Status returns the current unexpired lease, or nil.
	Status(ctx context.Context, key string) (*model.Lease, error)
}

// AcquireWait retries Acquire every poll interval until it succeeds, wait elapses or
// ctx is done. It reports false without error when the wait ran out.
func AcquireWait(ctx context.Context, l Locker, key, owner string, wait, poll time.Duration) (*model.Lease, bool, error) {
	deadline := time.Now().Add(wait)
	for {
		lease, err := l.Acquire(ctx, key, owner)
		if err == nil {
			return lease, true, nil
		}
		if !errors.Is(err, ErrHeld) {
			return nil, false, err
		}
		if time.Now().Add(poll).After(deadline) {
			return nil, false, nil
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(poll):
		}
	}
}
