package connector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/siem-soar-platform/integrations/pkg/commandresults"
	"github.com/siem-soar-platform/integrations/pkg/geoip"
	"github.com/siem-soar-platform/integrations/pkg/host"
	"github.com/siem-soar-platform/integrations/pkg/logger"
	"github.com/siem-soar-platform/integrations/pkg/sink"
)

// Deps are the host services injected into an integration instance.
type Deps struct {
	Logger  *logger.Logger
	Context host.ContextStore
	LastRun host.ContextStore
	Sink    sink.EventSink
	Files   host.FileResolver

	// GeoIP is nil when no city database is configured.
	GeoIP geoip.Lookuper
}

// withDefaults fills unset dependencies with in-memory stand-ins.
func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Context == nil {
		d.Context = host.NewMemoryContext()
	}
	if d.LastRun == nil {
		d.LastRun = host.NewMemoryContext()
	}
	if d.Sink == nil {
		d.Sink = sink.NewNopSink()
	}
	return d
}

// Factory creates an integration instance from its params.
type Factory func(params host.Params, deps Deps) (Integration, error)

// Script is an automation that runs on the host session instead of holding
// vendor credentials.
type Script interface {
	Name() string
	Run(ctx context.Context, session *host.Session) (*commandresults.CommandResults, error)
}

// Registry holds the known integrations and scripts.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	scripts   map[string]Script
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		scripts:   make(map[string]Script),
	}
}

// RegisterFactory registers the factory for an integration id.
func (r *Registry) RegisterFactory(integration string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[integration]; exists {
		return fmt.Errorf("factory for integration %s already registered", integration)
	}

	r.factories[integration] = factory
	return nil
}

// RegisterScript registers a script by name.
func (r *Registry) RegisterScript(s Script) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.scripts[s.Name()]; exists {
		return fmt.Errorf("script %s already registered", s.Name())
	}

	r.scripts[s.Name()] = s
	return nil
}

// Create builds an instance of integration.
func (r *Registry) Create(integration string, params host.Params, deps Deps) (Integration, error) {
	r.mu.RLock()
	factory, exists := r.factories[integration]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no factory registered for integration %s", integration)
	}

	if params == nil {
		params = host.Params{}
	}
	inst, err := factory(params, deps.withDefaults())
	if err != nil {
		return nil, fmt.Errorf("failed to create integration %s: %w", integration, err)
	}
	return inst, nil
}

// Script returns a registered script.
func (r *Registry) Script(name string) (Script, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.scripts[name]
	return s, ok
}

// List returns the registered integration ids sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListScripts returns the registered script names sorted.
func (r *Registry) ListScripts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.scripts))
	for name := range r.scripts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
