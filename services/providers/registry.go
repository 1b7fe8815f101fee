package providers

import (
	"sync"

	"github.com/pkg/errors"

	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
)

// Registry resolves the adapter serving an account's provider.
type Registry struct {
	mu       sync.RWMutex
	adapters map[enum.EmailProvider]interfaces.ProviderAdapter
}

func NewRegistry(adapters ...interfaces.ProviderAdapter) *Registry {
	r := &Registry{adapters: make(map[enum.EmailProvider]interfaces.ProviderAdapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds an adapter. The IMAP adapter also serves every IMAP-backed
// provider alias.
func (r *Registry) Register(adapter interfaces.ProviderAdapter) {
	if adapter == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.adapters[adapter.Provider()] = adapter
	if adapter.Provider().IsIMAP() {
		for _, alias := range []enum.EmailProvider{enum.EmailGeneric, enum.EmailMailstack} {
			if _, ok := r.adapters[alias]; !ok {
				r.adapters[alias] = adapter
			}
		}
	}
}

func (r *Registry) Adapter(provider enum.EmailProvider) (interfaces.ProviderAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, errors.Wrapf(mailsync_errors.ErrUnsupportedProvider, "provider %q", provider)
	}
	return adapter, nil
}
