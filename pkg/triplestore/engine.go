package triplestore

import (
	"context"
)

// Option keys that Create manages itself.
const (
	OptionContexts = "contexts"
	OptionWrite    = "write"
	OptionNew      = "new"
)

// Engine is the capability an RDF engine exposes to the handle manager.
type Engine interface {
	// NewSession starts the runtime context every storage is opened under.
	NewSession(ctx context.Context) (Session, error)
}

// Session is the engine runtime context. It owns every Storage opened
// through it; closing a Session closes any Storage still open under it.
type Session interface {
	// ID identifies the session in logs.
	ID() string

	// ParseOptions turns a connection string into Options scoped to this session.
	ParseOptions(raw string) (*Options, error)

	// OpenStorage opens the named store on the given backend. With new=yes
	// in opts the engine creates the store when it does not exist.
	OpenStorage(ctx context.Context, backend, name string, opts *Options) (Storage, error)

	// Close releases the session and anything it still owns.
	Close() error
}

// Storage is an open, named triple store.
type Storage interface {
	// Name returns the logical store name the storage was opened with.
	Name() string

	// Add inserts statements. Statements already present are ignored.
	Add(ctx context.Context, quads ...Quad) error

	// Remove deletes a single statement. Removing an absent statement is not an error.
	Remove(ctx context.Context, q Quad) error

	// Match returns every statement matching p, ordered by context, subject,
	// predicate and object.
	Match(ctx context.Context, p Pattern) ([]Quad, error)

	// Size returns the number of statements held by the store.
	Size(ctx context.Context) (int64, error)

	// Contexts lists the named contexts that hold at least one statement.
	Contexts(ctx context.Context) ([]string, error)

	// ReplaceContext swaps the content of a context for quads. The Context
	// field of each quad is ignored and graph is used instead.
	ReplaceContext(ctx context.Context, graph string, quads []Quad) error

	// DeleteContext removes every statement in graph and reports how many went.
	DeleteContext(ctx context.Context, graph string) (int64, error)

	// Close releases the storage. Calling Close more than once is allowed.
	Close() error
}
