package stores

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biosignalml/tstore/pkg/triplestore"
)

// setupTestEngine creates an engine whose relative sqlite names land in a temp dir.
func setupTestEngine(t *testing.T) *Engine {
	t.Helper()

	engine, err := NewEngine(Config{DataDir: t.TempDir()})
	require.NoError(t, err, "failed to create engine")
	return engine
}

// openTestHandle opens or creates a sqlite store through the handle manager.
func openTestHandle(t *testing.T, engine *Engine, name string) *triplestore.Handle {
	t.Helper()

	h, err := triplestore.Create(context.Background(), engine, triplestore.Params{
		Name:    name,
		Backend: BackendSQLite,
	})
	require.NoError(t, err, "failed to open store")
	t.Cleanup(func() { h.Close() })
	return h
}

func writeOptions(extra ...string) *triplestore.Options {
	opts := triplestore.NewOptions()
	opts.Set(triplestore.OptionContexts, "yes")
	opts.Set(triplestore.OptionWrite, "yes")
	for _, k := range extra {
		opts.Set(k, "yes")
	}
	return opts
}

// TestSQLiteStore_CreateThenReopen tests the open-or-create protocol against a real file
func TestSQLiteStore_CreateThenReopen(t *testing.T) {
	engine := setupTestEngine(t)
	ctx := context.Background()

	h1, err := triplestore.Create(ctx, engine, triplestore.Params{Name: "bio.db", Backend: BackendSQLite})
	require.NoError(t, err)
	assert.True(t, h1.Created(), "first Create should go through the create path")
	require.NoError(t, h1.Storage().Add(ctx, triplestore.Quad{Subject: "s", Predicate: "p", Object: "o"}))
	require.NoError(t, h1.Close())

	_, err = os.Stat(filepath.Join(engine.cfg.DataDir, "bio.db"))
	require.NoError(t, err, "database file was not created")

	h2, err := triplestore.Create(ctx, engine, triplestore.Params{Name: "bio.db", Backend: BackendSQLite})
	require.NoError(t, err)
	defer h2.Close()

	assert.False(t, h2.Created(), "second Create should open the existing store")
	size, err := h2.Storage().Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}

// TestSQLiteStore_OpenMissingWithoutNew tests that a plain open never creates a file
func TestSQLiteStore_OpenMissingWithoutNew(t *testing.T) {
	engine := setupTestEngine(t)
	ctx := context.Background()

	s, err := engine.NewSession(ctx)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.OpenStorage(ctx, BackendSQLite, "missing.db", writeOptions())
	require.ErrorIs(t, err, triplestore.ErrStoreNotFound)

	_, err = os.Stat(filepath.Join(engine.cfg.DataDir, "missing.db"))
	assert.True(t, os.IsNotExist(err), "plain open must not create the database file")
}

// TestSQLiteStore_InMemory tests the fallback on an in-memory database
func TestSQLiteStore_InMemory(t *testing.T) {
	engine := setupTestEngine(t)
	h := openTestHandle(t, engine, ":memory:")

	assert.True(t, h.Created(), "an in-memory store always needs the create path")

	ctx := context.Background()
	require.NoError(t, h.Storage().Add(ctx, triplestore.Quad{Subject: "a", Predicate: "b", Object: "c", Context: "g"}))
	contexts, err := h.Storage().Contexts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"g"}, contexts)
}

// TestSQLiteStore_CreateKeepsExistingData tests that new=yes reuses an existing store
func TestSQLiteStore_CreateKeepsExistingData(t *testing.T) {
	engine := setupTestEngine(t)
	ctx := context.Background()
	s, err := engine.NewSession(ctx)
	require.NoError(t, err)
	defer s.Close()

	st, err := s.OpenStorage(ctx, BackendSQLite, "keep.db", writeOptions(triplestore.OptionNew))
	require.NoError(t, err)
	require.NoError(t, st.Add(ctx, triplestore.Quad{Subject: "s", Predicate: "p", Object: "o"}))
	st.Close()

	st, err = s.OpenStorage(ctx, BackendSQLite, "keep.db", writeOptions(triplestore.OptionNew))
	require.NoError(t, err, "failed to reopen store with new=yes")
	defer st.Close()

	size, err := st.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size, "existing statement should survive new=yes")
}

// TestSQLiteStore_StatementOperations tests statement CRUD on a sqlite store
func TestSQLiteStore_StatementOperations(t *testing.T) {
	engine := setupTestEngine(t)
	h := openTestHandle(t, engine, "ops.db")
	exerciseStatementOperations(t, h.Storage())
}

// exerciseStatementOperations runs the same CRUD sequence against any
// storage backed by a fresh, empty store.
func exerciseStatementOperations(t *testing.T, st triplestore.Storage) {
	t.Helper()
	ctx := context.Background()

	quads := []triplestore.Quad{
		{Subject: "ex:rec1", Predicate: "rdf:type", Object: "bsml:Recording", Context: "ex:graph1"},
		{Subject: "ex:rec1", Predicate: "dct:title", Object: `"ECG"`, Context: "ex:graph1"},
		{Subject: "ex:rec2", Predicate: "rdf:type", Object: "bsml:Recording", Context: "ex:graph2"},
		{Subject: "ex:sig1", Predicate: "rdf:type", Object: "bsml:Signal"},
	}
	require.NoError(t, st.Add(ctx, quads...))
	// Duplicates are ignored.
	require.NoError(t, st.Add(ctx, quads[0]))

	size, err := st.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)

	recordings, err := st.Match(ctx, triplestore.Pattern{Predicate: "rdf:type", Object: "bsml:Recording"})
	require.NoError(t, err)
	require.Len(t, recordings, 2)
	assert.Equal(t, "ex:rec1", recordings[0].Subject)
	assert.Equal(t, "ex:rec2", recordings[1].Subject)

	all, err := st.Match(ctx, triplestore.Pattern{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Empty(t, all[0].Context, "default graph statement should sort first")

	require.NoError(t, st.Remove(ctx, quads[1]))
	inGraph1, err := st.Match(ctx, triplestore.Pattern{Context: "ex:graph1"})
	require.NoError(t, err)
	assert.Len(t, inGraph1, 1)

	replacement := []triplestore.Quad{
		{Subject: "ex:rec3", Predicate: "rdf:type", Object: "bsml:Recording", Context: "ignored"},
		{Subject: "ex:rec3", Predicate: "dct:title", Object: `"EEG"`},
	}
	require.NoError(t, st.ReplaceContext(ctx, "ex:graph2", replacement))
	inGraph2, err := st.Match(ctx, triplestore.Pattern{Context: "ex:graph2"})
	require.NoError(t, err)
	require.Len(t, inGraph2, 2)
	for _, q := range inGraph2 {
		assert.Equal(t, "ex:rec3", q.Subject)
		assert.Equal(t, "ex:graph2", q.Context)
	}

	contexts, err := st.Contexts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ex:graph1", "ex:graph2"}, contexts)

	n, err := st.DeleteContext(ctx, "ex:graph2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

// TestSQLiteStore_AbsoluteName tests a store named by an absolute path
func TestSQLiteStore_AbsoluteName(t *testing.T) {
	engine := setupTestEngine(t)
	path := filepath.Join(engine.cfg.DataDir, "shared.db")
	ctx := context.Background()

	h := openTestHandle(t, engine, path)
	require.NoError(t, h.Storage().Add(ctx, triplestore.Quad{Subject: "s", Predicate: "p", Object: "o"}))

	sqlStorage, ok := h.Storage().(*SQLStorage)
	require.True(t, ok, "expected *SQLStorage, got %T", h.Storage())

	var models int
	require.NoError(t, sqlStorage.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM models").Scan(&models))
	assert.Equal(t, 1, models)
}

// TestSQLiteStore_ContextsDisabled tests that contexts=no rejects named contexts
func TestSQLiteStore_ContextsDisabled(t *testing.T) {
	engine := setupTestEngine(t)
	ctx := context.Background()
	s, err := engine.NewSession(ctx)
	require.NoError(t, err)
	defer s.Close()

	opts := triplestore.NewOptions()
	opts.Set(triplestore.OptionContexts, "no")
	opts.Set(triplestore.OptionWrite, "yes")
	opts.Set(triplestore.OptionNew, "yes")

	st, err := s.OpenStorage(ctx, BackendSQLite, "plain.db", opts)
	require.NoError(t, err)

	err = st.Add(ctx, triplestore.Quad{Subject: "s", Predicate: "p", Object: "o", Context: "g"})
	assert.ErrorIs(t, err, triplestore.ErrContextsDisabled)
	assert.NoError(t, st.Add(ctx, triplestore.Quad{Subject: "s", Predicate: "p", Object: "o"}),
		"default graph statement should be accepted")
}

// TestSQLiteStore_Closed tests operations after Close
func TestSQLiteStore_Closed(t *testing.T) {
	engine := setupTestEngine(t)
	ctx := context.Background()
	s, err := engine.NewSession(ctx)
	require.NoError(t, err)
	defer s.Close()

	st, err := s.OpenStorage(ctx, BackendSQLite, "closed.db", writeOptions(triplestore.OptionNew))
	require.NoError(t, err)
	require.NoError(t, st.Close())
	assert.NoError(t, st.Close(), "second Close should be a no-op")

	_, err = st.Size(ctx)
	assert.ErrorIs(t, err, triplestore.ErrClosed)
}

func TestSQLiteStore_DSN(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		flags   storageFlags
		want    []string
		notWant []string
	}{
		{
			name:  "create",
			path:  "/data/bio.db",
			flags: storageFlags{create: true, writable: true},
			want:  []string{"file:/data/bio.db?", "mode=rwc", "journal_mode%28WAL%29"},
		},
		{
			name:    "open existing",
			path:    "/data/bio.db",
			flags:   storageFlags{writable: true},
			want:    []string{"mode=rw", "foreign_keys%281%29"},
			notWant: []string{"mode=rwc", "mode=ro"},
		},
		{
			name:    "read only",
			path:    "/data/bio.db",
			flags:   storageFlags{},
			want:    []string{"mode=ro"},
			notWant: []string{"journal_mode"},
		},
		{
			name:    "memory",
			path:    ":memory:",
			flags:   storageFlags{create: true, writable: true},
			want:    []string{"file::memory:?"},
			notWant: []string{"mode="},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := sqliteDSN(tt.path, tt.flags)
			for _, w := range tt.want {
				assert.Contains(t, dsn, w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, dsn, w)
			}
		})
	}
}

func TestSQLiteStore_Path(t *testing.T) {
	e := &Engine{cfg: Config{DataDir: "/var/lib/tstore"}}

	assert.Equal(t, filepath.Join("/var/lib/tstore", "bio.db"), e.sqlitePath("bio.db"), "relative name resolves under DataDir")
	assert.Equal(t, "/tmp/bio.db", e.sqlitePath("/tmp/bio.db"))
	assert.Equal(t, ":memory:", e.sqlitePath(":memory:"))
}
