package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
)

var (
	// ErrInvalidModelID is returned for identifiers not of the form "provider/name".
	ErrInvalidModelID = errors.New("invalid model id")
	// ErrUnknownProvider is returned when no factory is registered for a provider.
	ErrUnknownProvider = errors.New("unknown provider")
)

// DefaultRegistry is the registry used when no resolver is supplied.
var DefaultRegistry = NewRegistry()

// Factory builds a model for a provider-specific model name.
type Factory func(name string, params Params) (Model, error)

// Resolver turns a "provider/name" identifier into a model bound to params.
type Resolver interface {
	Resolve(id string, params Params) (Model, error)
}

// Registry maps provider names to model factories and caches the models it builds.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	models    map[string]Model
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		models:    make(map[string]Model),
	}
}

// Register installs the factory for provider, replacing any previous one.
func (r *Registry) Register(provider string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[provider] = factory
	for key := range r.models {
		if strings.HasPrefix(key, provider+"/") {
			delete(r.models, key)
		}
	}
}

// IsProviderRegistered reports whether a factory exists for provider.
func (r *Registry) IsProviderRegistered(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[provider]
	return ok
}

// Providers returns the registered provider names, sorted.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	providers := lo.Keys(r.factories)
	slices.Sort(providers)
	return providers
}

// Resolve returns the model for id bound to params, building it on first use.
func (r *Registry) Resolve(id string, params Params) (Model, error) {
	provider, name, err := ParseModelID(id)
	if err != nil {
		return nil, err
	}
	key, err := cacheKey(id, params)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	if m, ok := r.models[key]; ok {
		r.mu.RUnlock()
		return m, nil
	}
	factory, ok := r.factories[provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (registered: %v)", ErrUnknownProvider, provider, r.Providers())
	}

	m, err := factory(name, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create model %s: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.models[key]; ok {
		return existing, nil
	}
	r.models[key] = m
	return m, nil
}

// ParseModelID splits "provider/name". The name may itself contain slashes.
func ParseModelID(id string) (provider, name string, err error) {
	provider, name, ok := strings.Cut(id, "/")
	if !ok || provider == "" || name == "" {
		return "", "", fmt.Errorf("%w: %q (want provider/name)", ErrInvalidModelID, id)
	}
	return provider, name, nil
}

func cacheKey(id string, params Params) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode params: %w", err)
	}
	return id + "#" + string(data), nil
}
