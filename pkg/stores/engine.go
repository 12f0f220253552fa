package stores

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/biosignalml/tstore/pkg/triplestore"
)

// opener opens a storage on one backend. release must be called by the
// returned storage when it closes.
type opener func(ctx context.Context, name string, flags storageFlags, opts *triplestore.Options, release func()) (triplestore.Storage, error)

// Engine is a triplestore.Engine backed by SQL databases or process memory.
type Engine struct {
	cfg      Config
	log      zerolog.Logger
	memory   *memoryBackend
	backends map[string]opener
}

// NewEngine creates an engine with the sqlite, postgresql and memory backends.
func NewEngine(cfg Config) (*Engine, error) {
	cfg.setDefaults()

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "stores").Logger()
	}

	e := &Engine{
		cfg:    cfg,
		log:    log,
		memory: newMemoryBackend(),
	}
	e.backends = map[string]opener{
		BackendSQLite:   e.openSQLite,
		BackendPostgres: e.openPostgres,
		BackendMemory:   e.memory.open,
	}
	return e, nil
}

// Backends lists the backend names the engine accepts.
func (e *Engine) Backends() []string {
	names := make([]string, 0, len(e.backends))
	for name := range e.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewSession starts a session. It fails only when ctx is already done.
func (e *Engine) NewSession(ctx context.Context) (triplestore.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	id := uuid.New().String()
	s := &session{
		id:       id,
		engine:   e,
		log:      e.log.With().Str("session_id", id).Logger(),
		storages: make(map[triplestore.Storage]struct{}),
	}
	s.log.Debug().Msg("session started")
	return s, nil
}

// session owns every storage opened through it.
type session struct {
	id     string
	engine *Engine
	log    zerolog.Logger

	mu       sync.Mutex
	storages map[triplestore.Storage]struct{}
	closed   bool
}

func (s *session) ID() string { return s.id }

func (s *session) ParseOptions(raw string) (*triplestore.Options, error) {
	if s.isClosed() {
		return nil, fmt.Errorf("session %s: %w", s.id, triplestore.ErrClosed)
	}
	opts, err := triplestore.ParseOptions(raw)
	if err != nil {
		return nil, fmt.Errorf("parse options: %w", err)
	}
	return opts, nil
}

func (s *session) OpenStorage(ctx context.Context, backend, name string, opts *triplestore.Options) (triplestore.Storage, error) {
	if s.isClosed() {
		return nil, fmt.Errorf("session %s: %w", s.id, triplestore.ErrClosed)
	}
	open, ok := s.engine.backends[backend]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}

	flags := storageFlags{
		create:   opts.Bool(triplestore.OptionNew),
		contexts: opts.Bool(triplestore.OptionContexts),
		writable: opts.Bool(triplestore.OptionWrite),
	}

	var storage triplestore.Storage
	release := func() {
		s.mu.Lock()
		delete(s.storages, storage)
		s.mu.Unlock()
	}

	storage, err := open(ctx, name, flags, opts, release)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		// Lost a race with Close.
		s.mu.Unlock()
		_ = storage.Close()
		return nil, fmt.Errorf("session %s: %w", s.id, triplestore.ErrClosed)
	}
	s.storages[storage] = struct{}{}
	s.mu.Unlock()

	s.log.Debug().
		Str("backend", backend).
		Str("store", name).
		Bool("create", flags.create).
		Msg("storage opened")
	return storage, nil
}

// Close closes any storage still open under the session.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	open := make([]triplestore.Storage, 0, len(s.storages))
	for st := range s.storages {
		open = append(open, st)
	}
	s.mu.Unlock()

	var errs []error
	for _, st := range open {
		if err := st.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage %s: %w", st.Name(), err))
		}
	}
	if len(open) > 0 {
		s.log.Warn().Int("storages", len(open)).Msg("session closed with storages still open")
	}
	s.log.Debug().Msg("session closed")
	return errors.Join(errs...)
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
