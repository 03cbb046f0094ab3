package catalog

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry holds the configured catalog providers. It supports config-driven
// instantiation and hot-reload, and provides thread-safe access.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	configs   map[string]ProviderConfig
	logger    *slog.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		configs:   make(map[string]ProviderConfig),
		logger:    slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register adds a provider by name.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
	delete(r.configs, name)
	r.logger.Info("registered catalog provider", "name", name)
}

// Unregister removes a provider by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, name)
	delete(r.configs, name)
	r.logger.Info("unregistered catalog provider", "name", name)
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("catalog provider not found: %s", name)
	}
	return p, nil
}

// Has checks if a provider is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered provider. The validation worker fans out one
// query per entry.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.providers))
	for _, name := range r.sortedNamesLocked() {
		out = append(out, r.providers[name])
	}
	return out
}

func (r *Registry) sortedNamesLocked() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewRegistryFromConfig creates a registry with providers based on
// configuration. Only enabled providers are registered.
func NewRegistryFromConfig(cfgs map[string]ProviderConfig, logger *slog.Logger) *Registry {
	r := NewRegistry()
	if logger != nil {
		r.SetLogger(logger)
	}
	r.Reload(cfgs)
	return r
}

// Reload updates the registry from new configuration. Providers no longer
// configured (or disabled) are unregistered. A provider whose config is
// unchanged is kept as-is so its rate limiter state survives unrelated
// config-change events; only changed entries are rebuilt.
func (r *Registry) Reload(cfgs map[string]ProviderConfig) {
	for _, name := range r.List() {
		cfg, ok := cfgs[name]
		if !ok || !cfg.Enabled {
			r.Unregister(name)
		}
	}

	for name, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		if r.currentConfig(name) == cfg {
			continue
		}
		p, err := buildProvider(name, cfg)
		if err != nil {
			r.logger.Warn("skipping catalog provider", "name", name, "error", err)
			continue
		}
		r.Register(name, p)
		r.mu.Lock()
		r.configs[name] = cfg
		r.mu.Unlock()
	}
}

// currentConfig returns the config the named provider was built from, or the
// zero value if it was registered directly or is absent.
func (r *Registry) currentConfig(name string) ProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configs[name]
}

func buildProvider(name string, cfg ProviderConfig) (Provider, error) {
	providerType := cfg.Type
	if providerType == "" {
		providerType = name
	}
	switch providerType {
	case GoogleBooksName:
		return NewGoogleBooksProvider(cfg), nil
	case OpenLibraryName:
		return NewOpenLibraryProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown catalog provider type: %s", providerType)
	}
}
