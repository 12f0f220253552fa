package triplestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handle is an open store: a Session together with the Storage opened under
// it. A Handle returned by Create always holds both.
type Handle struct {
	name    string
	backend string
	mode    string

	mu      sync.Mutex
	session Session
	storage Storage
	closed  bool

	log      zerolog.Logger
	recorder Recorder
}

// Name returns the logical store name.
func (h *Handle) Name() string { return h.name }

// Backend returns the engine driver the store was opened with.
func (h *Handle) Backend() string { return h.backend }

// Created reports whether the store did not open as-is and was created by
// the second attempt.
func (h *Handle) Created() bool { return h.mode == ModeCreate }

// Storage returns the open storage, or nil once the handle is closed.
func (h *Handle) Storage() Storage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.storage
}

// Session returns the engine session, or nil once the handle is closed.
func (h *Handle) Session() Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session
}

// Close releases the storage and then the session. Components that were
// never acquired are skipped. Only the first call does anything.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	storage, session := h.storage, h.session
	h.storage, h.session = nil, nil
	h.mu.Unlock()

	err := release(storage, session)
	if err != nil {
		h.log.Warn().Err(err).Msg("store handle released with errors")
	} else {
		h.log.Debug().Msg("store handle released")
	}
	if h.recorder != nil {
		h.recorder.HandleReleased(h.backend)
	}
	return err
}

// release closes storage first, then session. Either may be nil.
func release(storage Storage, session Session) error {
	var errs []error
	if storage != nil {
		if err := storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	if session != nil {
		if err := session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Create opens the store named by p, creating it when the plain open fails.
// It returns a ready Handle or an *Error; on error nothing acquired along the
// way is left open.
//
// Create does not stop part way on ctx cancellation; ctx is handed to the
// engine, which decides how to honour it.
func Create(ctx context.Context, engine Engine, p Params, opts ...CreateOption) (*Handle, error) {
	if p.Name == "" {
		return nil, ErrInvalidName
	}

	cfg := newCreateConfig(opts)
	ctx, span := cfg.tracer.Start(ctx, "triplestore.create", trace.WithAttributes(
		attribute.String("store.name", p.Name),
		attribute.String("store.backend", p.Backend),
	))
	defer span.End()

	start := time.Now()
	c := &construction{
		params: p,
		cfg:    cfg,
		log:    cfg.logger.With().Str("store", p.Name).Str("backend", p.Backend).Logger(),
	}

	h, err := c.build(ctx, engine)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		cfg.recorder.CreateFailed(p.Backend, KindOf(err))
		return nil, err
	}

	span.SetAttributes(attribute.String("store.mode", h.mode))
	span.SetStatus(codes.Ok, "")
	cfg.recorder.HandleCreated(p.Backend, h.mode, time.Since(start))
	return h, nil
}

// construction holds the resources of a Create call in progress. It only
// becomes a Handle once both session and storage are held.
type construction struct {
	params  Params
	cfg     createConfig
	log     zerolog.Logger
	session Session
	storage Storage
}

func (c *construction) build(ctx context.Context, engine Engine) (*Handle, error) {
	session, err := engine.NewSession(ctx)
	if err == nil && session == nil {
		err = errors.New("engine returned no session")
	}
	if err != nil {
		return nil, c.fail(FailureSessionInit, err)
	}
	c.session = session
	c.log = c.log.With().Str("session_id", session.ID()).Logger()
	c.log.Debug().Msg("engine session opened")

	options, err := session.ParseOptions(c.params.ConnectionString)
	if err != nil {
		// Partial options returned with the error are still ours to release.
		options.Release()
		return nil, c.fail(FailureOptionsParse, err)
	}
	if options == nil {
		options = NewOptions()
	}
	options.Set(OptionContexts, "yes")
	options.Set(OptionWrite, "yes")
	c.log.Debug().Strs("option_keys", options.Keys()).Msg("connection options built")

	storage, mode, err := c.openOrCreate(ctx, options)
	options.Release()
	if err != nil {
		return nil, c.fail(FailureStorageOpen, err)
	}
	c.storage = storage
	return c.promote(mode), nil
}

// openOrCreate tries to open the store as it is and, on any failure, tries
// once more with new=yes on the same options.
func (c *construction) openOrCreate(ctx context.Context, options *Options) (Storage, string, error) {
	storage, err := c.attempt(ctx, ModeOpen, options)
	if err == nil {
		return storage, ModeOpen, nil
	}
	c.log.Warn().Err(err).Msg("store did not open, retrying with new=yes")

	options.Set(OptionNew, "yes")
	storage, err = c.attempt(ctx, ModeCreate, options)
	if err != nil {
		return nil, "", err
	}
	c.log.Info().Msg("store created")
	return storage, ModeCreate, nil
}

func (c *construction) attempt(ctx context.Context, mode string, options *Options) (Storage, error) {
	storage, err := c.session.OpenStorage(ctx, c.params.Backend, c.params.Name, options)
	if err == nil && storage == nil {
		err = errors.New("engine returned no storage")
	}
	if err != nil && storage != nil {
		// A storage returned alongside an error is not trusted.
		if cerr := storage.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close storage: %w", cerr))
		}
		storage = nil
	}
	c.cfg.recorder.OpenAttempt(c.params.Backend, mode, err)
	return storage, err
}

// fail releases whatever has been acquired and builds the error for kind.
func (c *construction) fail(kind FailureKind, cause error) error {
	ferr := &Error{Kind: kind, Store: c.params.Name, Backend: c.params.Backend, Err: cause}

	relErr := release(c.storage, c.session)
	c.storage, c.session = nil, nil

	c.log.Error().Err(cause).Str("kind", string(kind)).Msg("store handle construction failed")
	if relErr != nil {
		c.log.Warn().Err(relErr).Msg("cleanup after failed construction reported errors")
		return errors.Join(ferr, relErr)
	}
	return ferr
}

func (c *construction) promote(mode string) *Handle {
	h := &Handle{
		name:     c.params.Name,
		backend:  c.params.Backend,
		mode:     mode,
		session:  c.session,
		storage:  c.storage,
		log:      c.log,
		recorder: c.cfg.recorder,
	}
	c.session, c.storage = nil, nil
	h.log.Debug().Str("mode", mode).Msg("store handle ready")
	return h
}
