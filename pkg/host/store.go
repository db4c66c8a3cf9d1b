package host

import (
	"context"

	"github.com/siem-soar-platform/integrations/pkg/repository"
)

// ContextStore is the key-value blob the platform keeps for an integration
// instance between invocations. Get returns an empty map when nothing was
// stored.
type ContextStore interface {
	Get(ctx context.Context) (map[string]interface{}, error)
	Set(ctx context.Context, doc map[string]interface{}) error
}

// boundStore adapts a namespaced repository.Store to ContextStore.
type boundStore struct {
	store     repository.Store
	namespace string
}

// NewIntegrationContext returns the integration context of an instance.
func NewIntegrationContext(store repository.Store, instance string) ContextStore {
	return &boundStore{store: store, namespace: repository.ContextNamespace(instance)}
}

// NewLastRun returns the fetch cursor store of an instance.
func NewLastRun(store repository.Store, instance string) ContextStore {
	return &boundStore{store: store, namespace: repository.LastRunNamespace(instance)}
}

func (s *boundStore) Get(ctx context.Context) (map[string]interface{}, error) {
	return s.store.Load(ctx, s.namespace)
}

func (s *boundStore) Set(ctx context.Context, doc map[string]interface{}) error {
	return s.store.Save(ctx, s.namespace, doc)
}

// NewMemoryContext returns a standalone in-memory ContextStore, mostly for
// tests.
func NewMemoryContext() ContextStore {
	return &boundStore{store: repository.NewMemoryStore(), namespace: "memory"}
}

// Update loads the document, applies fn and stores the result.
func Update(ctx context.Context, s ContextStore, fn func(doc map[string]interface{})) error {
	doc, err := s.Get(ctx)
	if err != nil {
		return err
	}
	fn(doc)
	return s.Set(ctx, doc)
}
