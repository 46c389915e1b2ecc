// Package registry persists registered frames: the (document, layer, time)
// to content reference associations that let thumbnails be re-keyed after a
// restart without re-parsing the document.
//
// The store is SQLite (modernc.org/sqlite, no cgo) in WAL mode. The schema is
// embedded and versioned; a version mismatch is reported as ErrSchemaMismatch
// and resolved by clearing the database rather than migrating it.
package registry
