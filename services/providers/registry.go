package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrProviderNotFound is returned when no builder is registered under a name
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate builder
	ErrProviderAlreadyRegistered = errors.New("provider already registered")

	// ErrEmptyChain is returned when no adapter could be constructed
	ErrEmptyChain = errors.New("no providers could be constructed")
)

// ProviderBuilder is a function that creates a provider instance
type ProviderBuilder func(config ProviderConfig) (Provider, error)

// ChainEntry names one position in the fallback chain
type ChainEntry struct {
	// Kind selects the builder (e.g., "azure")
	Kind string

	// Config is handed to the builder unchanged
	Config ProviderConfig
}

// Registry maps provider kinds to their builders
type Registry struct {
	mu       sync.RWMutex
	builders map[string]ProviderBuilder
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]ProviderBuilder),
	}
}

// RegisterBuilder registers a builder under kind
func (r *Registry) RegisterBuilder(kind string, builder ProviderBuilder) error {
	if builder == nil {
		return errors.New("builder cannot be nil")
	}
	if kind == "" {
		return errors.New("provider kind cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.builders[kind]; exists {
		return ErrProviderAlreadyRegistered
	}
	r.builders[kind] = builder
	return nil
}

// Kinds returns all registered kinds in sorted order
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.builders))
	for kind := range r.builders {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Build constructs one provider
func (r *Registry) Build(kind string, config ProviderConfig) (Provider, error) {
	r.mu.RLock()
	builder, exists := r.builders[kind]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, kind)
	}
	return builder(config)
}

// BuildChain constructs the providers of entries, preserving their order.
//
// With requireAll set, the first construction failure aborts the whole
// chain. Otherwise the failing entry is excluded and logged, and an error
// is returned only when nothing could be built.
func (r *Registry) BuildChain(entries []ChainEntry, requireAll bool, logger *zap.Logger) ([]Provider, error) {
	chain := make([]Provider, 0, len(entries))
	var errs []error

	for i, entry := range entries {
		provider, err := r.Build(entry.Kind, entry.Config)
		if err != nil {
			if requireAll {
				return nil, fmt.Errorf("failed to build provider %s: %w", entry.Kind, err)
			}
			logger.Warn("provider excluded from chain",
				zap.String("provider", entry.Kind),
				zap.Int("position", i),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		chain = append(chain, provider)
	}

	if len(chain) == 0 {
		return nil, errors.Join(append([]error{ErrEmptyChain}, errs...)...)
	}
	return chain, nil
}
