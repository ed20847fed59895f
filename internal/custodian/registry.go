package custodian

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry is the name -> connector directory. The first registered
// connector becomes the default unless overridden.
type Registry struct {
	mu          sync.RWMutex
	connectors  map[string]Connector
	defaultName string
}

func NewRegistry() *Registry {
	return &Registry{connectors: map[string]Connector{}}
}

func (r *Registry) Register(connector Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[connector.Name()] = connector
	if r.defaultName == "" {
		r.defaultName = connector.Name()
	}
}

func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.connectors[name]; !ok {
		return fmt.Errorf("%w: %s", ErrCustodianNotFound, name)
	}
	r.defaultName = name
	return nil
}

func (r *Registry) Connector(name string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connector, ok := r.connectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCustodianNotFound, name)
	}
	return connector, nil
}

func (r *Registry) Default() (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultName == "" {
		return nil, fmt.Errorf("%w: no connectors registered", ErrCustodianNotFound)
	}
	return r.connectors[r.defaultName], nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AvailableNames returns the names of connectors currently reporting
// availability.
func (r *Registry) AvailableNames(ctx context.Context) []string {
	names := r.Names()
	available := make([]string, 0, len(names))
	for _, name := range names {
		connector, err := r.Connector(name)
		if err != nil {
			continue
		}
		if connector.IsAvailable(ctx) {
			available = append(available, name)
		}
	}
	return available
}
