package triplestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// fakeEngine records every engine call and fails on demand.
type fakeEngine struct {
	mu sync.Mutex

	sessionErr   error
	parseErr     error
	parsePartial bool // return the options parsed so far along with parseErr
	openErrs     []error // consumed one per OpenStorage call; nil entry = success
	sessionClose error
	storageClose error

	sessionsOpened int
	sessionsClosed int
	storagesOpened int
	storagesClosed int
	optionsParsed  int

	attempts []openCall
	sessions []*fakeSession
}

type openCall struct {
	Backend string
	Name    string
	Options map[string]string
	Keys    []string
}

func (e *fakeEngine) NewSession(context.Context) (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessionErr != nil {
		return nil, e.sessionErr
	}
	e.sessionsOpened++
	s := &fakeSession{engine: e, id: fmt.Sprintf("session-%d", e.sessionsOpened)}
	e.sessions = append(e.sessions, s)
	return s, nil
}

// balanced reports whether every opened resource has been closed.
func (e *fakeEngine) balanced() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionsOpened == e.sessionsClosed && e.storagesOpened == e.storagesClosed
}

type fakeSession struct {
	engine *fakeEngine
	id     string
	closed bool
	parsed []*Options
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) ParseOptions(raw string) (*Options, error) {
	e := s.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.parseErr != nil {
		if e.parsePartial {
			partial := NewOptions()
			partial.Set("host", "localhost")
			s.parsed = append(s.parsed, partial)
			return partial, e.parseErr
		}
		return nil, e.parseErr
	}
	opts, err := ParseOptions(raw)
	if err != nil {
		return nil, err
	}
	e.optionsParsed++
	s.parsed = append(s.parsed, opts)
	return opts, nil
}

func (s *fakeSession) OpenStorage(_ context.Context, backend, name string, opts *Options) (Storage, error) {
	e := s.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	e.attempts = append(e.attempts, openCall{
		Backend: backend,
		Name:    name,
		Options: opts.Map(),
		Keys:    opts.Keys(),
	})

	var err error
	if len(e.openErrs) > 0 {
		err = e.openErrs[0]
		e.openErrs = e.openErrs[1:]
	}
	if err != nil {
		return nil, err
	}
	e.storagesOpened++
	return &fakeStorage{engine: e, name: name}, nil
}

func (s *fakeSession) Close() error {
	e := s.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.closed {
		return errors.New("session closed twice")
	}
	s.closed = true
	e.sessionsClosed++
	return e.sessionClose
}

type fakeStorage struct {
	engine *fakeEngine
	name   string
	closed bool
}

func (st *fakeStorage) Name() string { return st.name }

func (st *fakeStorage) Add(context.Context, ...Quad) error { return nil }

func (st *fakeStorage) Remove(context.Context, Quad) error { return nil }

func (st *fakeStorage) Match(context.Context, Pattern) ([]Quad, error) { return nil, nil }

func (st *fakeStorage) Size(context.Context) (int64, error) { return 0, nil }

func (st *fakeStorage) Contexts(context.Context) ([]string, error) { return nil, nil }

func (st *fakeStorage) ReplaceContext(context.Context, string, []Quad) error { return nil }

func (st *fakeStorage) DeleteContext(context.Context, string) (int64, error) { return 0, nil }

func (st *fakeStorage) Close() error {
	e := st.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if st.closed {
		return errors.New("storage closed twice")
	}
	st.closed = true
	e.storagesClosed++
	return e.storageClose
}

// countingRecorder tallies Recorder callbacks.
type countingRecorder struct {
	attempts []string
	created  []string
	failed   []FailureKind
	released int
}

func (r *countingRecorder) OpenAttempt(_ string, mode string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.attempts = append(r.attempts, mode+":"+result)
}

func (r *countingRecorder) HandleCreated(_ string, mode string, _ time.Duration) {
	r.created = append(r.created, mode)
}

func (r *countingRecorder) CreateFailed(_ string, kind FailureKind) {
	r.failed = append(r.failed, kind)
}

func (r *countingRecorder) HandleReleased(string) {
	r.released++
}
