package adapters

import (
	"strings"

	"github.com/smallbiznis/practicebooks/internal/payment/domain"
)

type Registry struct {
	providers map[string]domain.Provider
	active    string
}

func NewRegistry(active string, providers ...domain.Provider) *Registry {
	registry := &Registry{
		providers: map[string]domain.Provider{},
		active:    normalize(active),
	}
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		name := normalize(provider.Name())
		if name == "" {
			continue
		}
		registry.providers[name] = provider
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.providers[normalize(provider)]
	return ok
}

func (r *Registry) Provider(name string) (domain.Provider, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider, ok := r.providers[normalize(name)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return provider, nil
}

// Active returns the provider invoices are sent through.
func (r *Registry) Active() (domain.Provider, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	return r.Provider(r.active)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
