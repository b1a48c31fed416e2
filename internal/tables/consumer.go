package tables

import (
	"context"
	"slices"
	"sync"
)

// Consumer is a view declaring the tables it depends on. It tracks its own
// loading state and last failure so several consumers sharing one Store
// report independently.
type Consumer struct {
	store *Store
	names []string

	mu      sync.Mutex
	pending int
	err     string
}

// NewConsumer declares the dependency on names and runs the initial load.
// A failed load is reported through Err; the consumer is usable either way
// and Reload can be called to retry.
func NewConsumer(ctx context.Context, store *Store, names ...string) *Consumer {
	c := &Consumer{store: store, names: slices.Clone(names)}
	_ = c.Reload(ctx, false)
	return c
}

// Reload ensures the dependencies, refetching all of them when force is set.
func (c *Consumer) Reload(ctx context.Context, force bool) error {
	c.mu.Lock()
	c.pending++
	c.mu.Unlock()

	err := c.store.Ensure(ctx, c.names, force)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending--
	if err != nil {
		c.err = errorMessage(err)
		return err
	}
	c.err = ""
	return nil
}

// Loading reports whether a Reload issued through this consumer is running.
func (c *Consumer) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending > 0
}

// Err is the message of the last failed Reload, or "".
func (c *Consumer) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Names returns the declared dependencies.
func (c *Consumer) Names() []string {
	return slices.Clone(c.names)
}

// Rows reads a snapshot from the shared store.
func (c *Consumer) Rows(name string) []Row {
	return c.store.Rows(name)
}

// Store returns the shared store.
func (c *Consumer) Store() *Store {
	return c.store
}

func (c *Consumer) versions() []uint64 {
	out := make([]uint64, len(c.names))
	for i, name := range c.names {
		out[i] = c.store.Version(name)
	}
	return out
}

// Projection memoizes a pure function of a consumer's tables. The value is
// recomputed only when one of the dependencies changed version.
type Projection[T any] struct {
	consumer *Consumer
	compute  func(*Consumer) T

	mu       sync.Mutex
	versions []uint64
	value    T
	valid    bool
}

// NewProjection binds compute to c.
func NewProjection[T any](c *Consumer, compute func(*Consumer) T) *Projection[T] {
	return &Projection[T]{consumer: c, compute: compute}
}

// Get returns the memoized value, recomputing it if a dependency changed.
func (p *Projection[T]) Get() T {
	p.mu.Lock()
	defer p.mu.Unlock()
	current := p.consumer.versions()
	if p.valid && slices.Equal(current, p.versions) {
		return p.value
	}
	p.value = p.compute(p.consumer)
	p.versions = current
	p.valid = true
	return p.value
}
