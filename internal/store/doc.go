// Package store persists locations, captures, files, and file lineage in a
// relational database and exposes the typed queries the pipeline stages need.
//
// SQLite (modernc.org/sqlite) is the default engine; Postgres is reached
// through pgx's database/sql driver. Queries are written once with ?
// placeholders and rebound per dialect. Store is a session factory: its
// embedded Session auto-commits each statement, and WithTx hands a
// transaction-scoped Session to a unit of work so a derived file and its
// lineage edges are written atomically.
//
// Timestamps are stored as fixed-width UTC text so range filters compare
// lexically on both engines. Schema changes bump schemaVersion in schema.go.
package store
