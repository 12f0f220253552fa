// Package stores provides the storage engine behind tstore handles.
// Engine implements triplestore.Engine on three backends:
//
//   - sqlite: modernc.org/sqlite, one database file per store name, WAL mode
//   - postgresql: lib/pq, connection taken from host/port/database/user/password options
//   - memory: process-local models that live as long as the Engine
//
// A store opened without new=yes must already exist; otherwise the open
// fails with triplestore.ErrStoreNotFound. With new=yes the schema is applied
// through golang-migrate and the store is registered. An existing store is
// never wiped by new=yes.
package stores
