// Package config loads tstore process configuration.
//
// Configuration comes from three layers, each overriding the previous one:
//
//  1. compiled-in defaults (Default)
//  2. a YAML (.yaml, .yml) or CUE (.cue) file
//  3. TSTORE_* environment variables
//
// CUE files are checked against a built-in #Config schema before decoding.
// The merged result is validated with go-playground/validator.
//
// # Example
//
//	store:
//	  backend: sqlite
//	  name: recordings.db
//	  data_dir: /var/lib/tstore
//	logging:
//	  level: debug
//
// or, in CUE:
//
//	store: {
//		backend: "postgresql"
//		connection: "host='db',database='BioSignalRDF',user='biosignal',password='secret'"
//	}
//
// # Environment
//
//	TSTORE_NAME, TSTORE_BACKEND, TSTORE_CONNECTION, TSTORE_DATA_DIR,
//	TSTORE_LOG_LEVEL, TSTORE_LOG_FORMAT, TSTORE_TRACE_EXPORTER,
//	TSTORE_TRACE_ENDPOINT, TSTORE_METRICS_ADDR
//
// Defaults hands the store defaults to triplestore.Create callers; the
// triplestore package has no configuration of its own.
package config
