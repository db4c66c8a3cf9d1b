// Package sink delivers events produced by collector integrations to the
// SIEM ingestion pipeline.
package sink

import (
	"context"
	"sync"
	"time"
)

// Event is one vendor event in its JSON object form.
type Event = map[string]interface{}

// EventSink receives batches of collected events.
type EventSink interface {
	// Name returns the sink name.
	Name() string

	// Send delivers events tagged with their vendor and product.
	Send(ctx context.Context, vendor, product string, events []Event) error

	// Close flushes and releases the sink.
	Close() error
}

// Field names added to every pushed event.
const (
	FieldTime    = "_time"
	FieldVendor  = "_vendor"
	FieldProduct = "_product"
)

// Decorate returns copies of events carrying _vendor, _product and a _time
// in RFC 3339. A _time set by the collector is kept.
func Decorate(vendor, product string, events []Event, now time.Time) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		c := make(Event, len(e)+3)
		for k, v := range e {
			c[k] = v
		}
		c[FieldVendor] = vendor
		c[FieldProduct] = product
		if t, ok := c[FieldTime]; !ok || t == nil || t == "" {
			c[FieldTime] = now.UTC().Format(time.RFC3339)
		}
		out = append(out, c)
	}
	return out
}

// NopSink discards events.
type NopSink struct{}

// NewNopSink creates a sink that discards everything.
func NewNopSink() *NopSink { return &NopSink{} }

func (NopSink) Name() string { return "none" }

func (NopSink) Send(context.Context, string, string, []Event) error { return nil }

func (NopSink) Close() error { return nil }

// MemorySink keeps pushed events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	calls  int
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

func (m *MemorySink) Name() string { return "memory" }

// Send records the decorated events.
func (m *MemorySink) Send(_ context.Context, vendor, product string, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.events = append(m.events, Decorate(vendor, product, events, time.Now())...)
	return nil
}

// Events returns everything sent so far.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Calls returns the number of Send calls, including empty batches.
func (m *MemorySink) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MemorySink) Close() error { return nil }
