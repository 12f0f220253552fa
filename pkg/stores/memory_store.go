package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/biosignalml/tstore/pkg/triplestore"
)

// memoryBackend keeps named models in process memory for the lifetime of
// the engine.
type memoryBackend struct {
	mu     sync.Mutex
	models map[string]*memoryModel
}

type memoryModel struct {
	mu    sync.RWMutex
	quads map[triplestore.Quad]struct{}
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{models: make(map[string]*memoryModel)}
}

func (b *memoryBackend) open(_ context.Context, name string, flags storageFlags, _ *triplestore.Options, release func()) (triplestore.Storage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	model, ok := b.models[name]
	if !ok {
		if !flags.create {
			return nil, fmt.Errorf("memory store %q: %w", name, triplestore.ErrStoreNotFound)
		}
		model = &memoryModel{quads: make(map[triplestore.Quad]struct{})}
		b.models[name] = model
	}

	return &MemoryStorage{
		name:    name,
		model:   model,
		flags:   flags,
		release: release,
	}, nil
}

// MemoryStorage is a storage on the memory backend.
type MemoryStorage struct {
	name    string
	model   *memoryModel
	flags   storageFlags
	release func()

	mu     sync.Mutex
	closed bool
}

func (m *MemoryStorage) Name() string { return m.name }

func (m *MemoryStorage) check(write bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("memory store %q: %w", m.name, triplestore.ErrClosed)
	}
	if write && !m.flags.writable {
		return fmt.Errorf("memory store %q: %w", m.name, triplestore.ErrReadOnly)
	}
	return nil
}

func (m *MemoryStorage) Add(_ context.Context, quads ...triplestore.Quad) error {
	if err := m.check(true); err != nil {
		return err
	}
	if err := validateQuads(quads, m.flags.contexts); err != nil {
		return err
	}

	m.model.mu.Lock()
	defer m.model.mu.Unlock()
	for _, q := range quads {
		m.model.quads[q] = struct{}{}
	}
	return nil
}

func (m *MemoryStorage) Remove(_ context.Context, q triplestore.Quad) error {
	if err := m.check(true); err != nil {
		return err
	}
	m.model.mu.Lock()
	defer m.model.mu.Unlock()
	delete(m.model.quads, q)
	return nil
}

func (m *MemoryStorage) Match(_ context.Context, p triplestore.Pattern) ([]triplestore.Quad, error) {
	if err := m.check(false); err != nil {
		return nil, err
	}
	m.model.mu.RLock()
	defer m.model.mu.RUnlock()

	var out []triplestore.Quad
	for q := range m.model.quads {
		if p.Matches(q) {
			out = append(out, q)
		}
	}
	triplestore.SortQuads(out)
	return out, nil
}

func (m *MemoryStorage) Size(context.Context) (int64, error) {
	if err := m.check(false); err != nil {
		return 0, err
	}
	m.model.mu.RLock()
	defer m.model.mu.RUnlock()
	return int64(len(m.model.quads)), nil
}

func (m *MemoryStorage) Contexts(context.Context) ([]string, error) {
	if err := m.check(false); err != nil {
		return nil, err
	}
	m.model.mu.RLock()
	defer m.model.mu.RUnlock()

	seen := make(map[string]struct{})
	for q := range m.model.quads {
		if q.Context != "" {
			seen[q.Context] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStorage) ReplaceContext(_ context.Context, graph string, quads []triplestore.Quad) error {
	if err := m.check(true); err != nil {
		return err
	}
	placed := inContext(quads, graph)
	if err := validateQuads(placed, m.flags.contexts); err != nil {
		return err
	}

	m.model.mu.Lock()
	defer m.model.mu.Unlock()
	for q := range m.model.quads {
		if q.Context == graph {
			delete(m.model.quads, q)
		}
	}
	for _, q := range placed {
		m.model.quads[q] = struct{}{}
	}
	return nil
}

func (m *MemoryStorage) DeleteContext(_ context.Context, graph string) (int64, error) {
	if err := m.check(true); err != nil {
		return 0, err
	}
	m.model.mu.Lock()
	defer m.model.mu.Unlock()

	var n int64
	for q := range m.model.quads {
		if q.Context == graph {
			delete(m.model.quads, q)
			n++
		}
	}
	return n, nil
}

// Close detaches the storage. The model stays in the engine.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.release != nil {
		m.release()
	}
	return nil
}

// validateQuads checks every quad and, when contexts are off, rejects named contexts.
func validateQuads(quads []triplestore.Quad, contexts bool) error {
	for _, q := range quads {
		if err := q.Validate(); err != nil {
			return err
		}
		if !contexts && q.Context != "" {
			return fmt.Errorf("statement in context %q: %w", q.Context, triplestore.ErrContextsDisabled)
		}
	}
	return nil
}

// inContext returns copies of quads placed in graph.
func inContext(quads []triplestore.Quad, graph string) []triplestore.Quad {
	out := make([]triplestore.Quad, len(quads))
	for i, q := range quads {
		q.Context = graph
		out[i] = q
	}
	return out
}
