package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jun/gophgallery/internal/model"
)

// StorageProvider defines how to get a StorageAdapter for a connected account.
type StorageProvider interface {
	// GetAdapter returns a StorageAdapter holding a fresh credential for accountID.
	GetAdapter(ctx context.Context, accountID string) (StorageAdapter, error)
}

// Factory builds an adapter from a fresh credential.
type Factory func(ctx context.Context, cred *Credential) (StorageAdapter, error)

// CallTimeoutSetter is implemented by adapters whose metadata calls take a bound.
type CallTimeoutSetter interface {
	SetCallTimeout(d time.Duration)
}

// Registry maps provider tags to adapter factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[model.Provider]Factory

	// CallTimeout, when positive, is applied to every adapter that supports it.
	CallTimeout time.Duration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[model.Provider]Factory)}
}

// Register adds the factory for a provider, replacing any previous one.
func (r *Registry) Register(p model.Provider, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[p] = f
}

// New builds the adapter matching the credential's provider.
func (r *Registry) New(ctx context.Context, cred *Credential) (StorageAdapter, error) {
	r.mu.RLock()
	f, ok := r.factories[cred.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for provider %q", ErrUnsupported, cred.Provider)
	}
	ad, err := f(ctx, cred)
	if err != nil {
		return nil, err
	}
	if s, ok := ad.(CallTimeoutSetter); ok && r.CallTimeout > 0 {
		s.SetCallTimeout(r.CallTimeout)
	}
	return ad, nil
}
