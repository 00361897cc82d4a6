package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jun/gophgallery/internal/model"
)

// MockLocker implements Locker using an in-memory map for tests and DEV_MODE.
type MockLocker struct {
	leases      map[string]*model.Lease
	mu          sync.Mutex
	ttlDuration time.Duration
}

// NewMockLocker creates a new MockLocker with the default TTL.
func NewMockLocker() *MockLocker {
	return &MockLocker{
		leases:      make(map[string]*model.Lease),
		ttlDuration: DefaultTTL,
	}
}

func (m *MockLocker) Acquire(ctx context.Context, key, owner string) (*model.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().Unix()
	if existing, ok := m.leases[key]; ok {
		if existing.ExpiresAt > now && existing.Owner != owner {
			return nil, ErrHeld
		}
	}

	lease := &model.Lease{
		Key:       key,
		Owner:     owner,
		ExpiresAt: now + int64(m.ttlDuration.Seconds()),
	}
	m.leases[key] = lease
	copied := *lease
	return &copied, nil
}

func (m *MockLocker) Release(ctx context.Context, key, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.leases[key]
	if !ok {
		return nil
	}
	if existing.Owner != owner {
		return fmt.Errorf("lease %q not owned by %q", key, owner)
	}
	delete(m.leases, key)
	return nil
}

func (m *MockLocker) Status(ctx context.Context, key string) (*model.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.leases[key]
	if !ok || existing.ExpiresAt < time.Now().Unix() {
		return nil, nil
	}
	copied := *existing
	return &copied, nil
}
