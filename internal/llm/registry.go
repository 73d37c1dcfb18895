package llm

import (
	"fmt"
	"sync"
)

// Registry manages the set of configured providers, the active selection,
// and the static fallback chain used when the active provider is not Ready.
//
// Thread-safe.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]Provider
	active   string
	fallback []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[string]Provider),
	}
}

// Register adds a provider and appends it to the fallback chain.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := p.ID()
	if _, exists := r.byID[id]; !exists {
		r.fallback = append(r.fallback, id)
	}
	r.byID[id] = p
}

// Get returns a provider by id.
func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// SetActive selects the active provider.
func (r *Registry) SetActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return &Error{Kind: ErrUnavailable, Message: fmt.Sprintf("provider %q not registered", id)}
	}
	r.active = id
	return nil
}

// ActiveID returns the active provider id, or empty when none is selected.
func (r *Registry) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Active returns the active provider, if registered.
func (r *Registry) Active() (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[r.active]
	return p, ok
}

// GetWithFallback returns the requested provider if Ready; otherwise it walks
// the fallback chain and returns the first Ready provider. Returns false if
// none is Ready.
func (r *Registry) GetWithFallback(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.byID[id]; ok && p.Status().IsReady() {
		return p, true
	}
	for _, fid := range r.fallback {
		if p, ok := r.byID[fid]; ok && p.Status().IsReady() {
			return p, true
		}
	}
	return nil, false
}

// SetFallbackChain replaces the fallback order.
func (r *Registry) SetFallbackChain(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = append([]string(nil), ids...)
}

// IDs returns the provider ids of the fallback chain, in order. After
// SetFallbackChain this is the configured chain, which need not list every
// registered provider.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.fallback...)
}

// Infos returns display snapshots for the registered providers on the
// fallback chain, in chain order.
func (r *Registry) Infos() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(r.fallback))
	for _, id := range r.fallback {
		p, ok := r.byID[id]
		if !ok {
			continue
		}
		infos = append(infos, Info{
			ID:     p.ID(),
			Name:   p.Name(),
			Model:  p.Model(),
			Status: p.Status(),
		})
	}
	return infos
}

// AllModels lists (provider id, model) pairs across the registered providers
// on the fallback chain.
// Providers whose model listing fails are skipped.
func (r *Registry) AllModels() [][2]string {
	r.mu.RLock()
	providers := make([]Provider, 0, len(r.fallback))
	for _, id := range r.fallback {
		if p, ok := r.byID[id]; ok {
			providers = append(providers, p)
		}
	}
	r.mu.RUnlock()

	var models [][2]string
	for _, p := range providers {
		list, err := p.ListModels()
		if err != nil {
			continue
		}
		for _, m := range list {
			models = append(models, [2]string{p.ID(), m})
		}
	}
	return models
}

// SetModel switches the model on a specific provider.
func (r *Registry) SetModel(providerID, model string) error {
	p, ok := r.Get(providerID)
	if !ok {
		return &Error{Kind: ErrUnavailable, Message: fmt.Sprintf("provider %q not registered", providerID)}
	}
	return p.SetModel(model)
}
