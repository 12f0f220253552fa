// Package triplestore manages handles to persistent triple stores held by an
// external RDF engine.
//
// A Handle pairs an engine Session with one open Storage. Create builds it in
// a fixed order:
//
//  1. open a Session on the Engine
//  2. parse the connection string into Options scoped to that Session
//  3. force contexts=yes and write=yes
//  4. open the named store as if it already exists
//  5. if that fails for any reason, set new=yes on the same Options and open once more
//  6. release the Options
//
// Construction is all-or-nothing. When any step fails, everything acquired so
// far is closed before Create returns an *Error whose Kind says which step
// failed (session_init, options_parse or storage_open). The caller owns a
// returned Handle and must Close it exactly once; Close releases the Storage
// and then the Session.
//
// # Defaults
//
// There is no package-level mutable state. Process-wide defaults for the
// backend and connection string are carried in a Defaults value that the
// entry point builds once and passes along:
//
//	defaults := triplestore.BuiltinDefaults()
//	h, err := triplestore.Create(ctx, engine, defaults.Resolve(triplestore.Params{Name: "BioSignalRDF"}))
//	if err != nil {
//	    return err
//	}
//	defer h.Close()
//
// # Connection strings
//
// Connection strings use the engine syntax key='value',key='value'. Values may
// be left unquoted; inside quotes \' and \\ escape a quote and a backslash.
// ParseOptions implements that grammar and engines are free to reuse it.
package triplestore
