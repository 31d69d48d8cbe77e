// Package objectstore provides reference object stores that maintain the
// trace-context annotation on every write.
//
// Both backends run the admission mutator for traced kinds before a write
// is persisted. The writer's context is the span context carried by the
// ctx passed to Create or Update:
//
//	ctx = trace.ContextWithRemoteSpanContext(ctx, incoming)
//	obj, err := store.Update(ctx, obj)
//
// When a write replaces a context from another trace, the replaced context
// is kept in the object's link history (see Store.Links) and attached as a
// link to the span of the write.
//
// # Backends
//
//   - MemoryStore: maps guarded by a mutex, for tests and single runs
//   - SQLiteStore: database/sql with either the pure Go "sqlite" driver
//     (modernc.org/sqlite) or the cgo "sqlite3" driver (mattn/go-sqlite3)
//
// Updates are optimistic: a non-empty resourceVersion must match the
// stored one, otherwise ErrConflict is returned.
package objectstore
