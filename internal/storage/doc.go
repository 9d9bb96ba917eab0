// Package storage persists the items seen on each page source.
//
// Every page source owns one logically separate table keyed by its source
// identifier. Three drivers are available:
//   - "sqlite": one SQLite database file, one table per source (default)
//   - "postgres": one table per source in a PostgreSQL database
//   - "file": dependency-free JSON Lines journal + snapshot per source
//
// Writes are committed immediately; there is no batching and no retry at
// this layer.
package storage
