// Package repository provides persistence for integration context and fetch
// cursors. Every backend stores one JSON document per namespace, where a
// namespace is "<instance>:context" or "<instance>:last_run".
package repository

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store persists small JSON documents keyed by namespace.
type Store interface {
	// Load returns the document for namespace, or an empty map when none
	// has been saved yet.
	Load(ctx context.Context, namespace string) (map[string]interface{}, error)

	// Save replaces the document for namespace.
	Save(ctx context.Context, namespace string, doc map[string]interface{}) error

	// Close releases backend resources.
	Close() error
}

// Namespace helpers.
const (
	suffixContext = "context"
	suffixLastRun = "last_run"
)

// ContextNamespace returns the integration context namespace of an instance.
func ContextNamespace(instance string) string {
	return instance + ":" + suffixContext
}

// LastRunNamespace returns the fetch cursor namespace of an instance.
func LastRunNamespace(instance string) string {
	return instance + ":" + suffixLastRun
}

func encode(doc map[string]interface{}) ([]byte, error) {
	if doc == nil {
		doc = map[string]interface{}{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return data, nil
}

func decode(data []byte) (map[string]interface{}, error) {
	doc := map[string]interface{}{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return doc, nil
}
