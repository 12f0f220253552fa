package triplestore

// Built-in defaults, used when the process configuration supplies none.
const (
	DefaultBackend          = "postgresql"
	DefaultConnectionString = "host='localhost',database='BioSignalRDF',user='biosignal',password='biosignal'"
)

// Params names the store to open and how to reach it.
type Params struct {
	// Name is the logical store name. Its meaning is up to the backend.
	Name string `json:"name"`

	// Backend is the engine driver, e.g. "postgresql" or "sqlite".
	Backend string `json:"backend"`

	// ConnectionString holds backend options as key='value',key='value'.
	ConnectionString string `json:"-"`
}

// Defaults holds the process-wide backend and connection string. The entry
// point builds one and hands it to whoever calls Create; nothing reads it
// from shared state.
type Defaults struct {
	Backend          string
	ConnectionString string
}

// BuiltinDefaults returns the compiled-in defaults.
func BuiltinDefaults() Defaults {
	return Defaults{
		Backend:          DefaultBackend,
		ConnectionString: DefaultConnectionString,
	}
}

// Resolve fills the blanks in p. An empty Backend takes the default backend.
// An empty ConnectionString takes the default connection string only when p
// targets the default backend, since connection strings do not carry across
// backends.
func (d Defaults) Resolve(p Params) Params {
	if p.Backend == "" {
		p.Backend = d.Backend
	}
	if p.ConnectionString == "" && p.Backend == d.Backend {
		p.ConnectionString = d.ConnectionString
	}
	return p
}
