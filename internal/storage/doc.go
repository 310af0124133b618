// Package storage is the result sink: it records the terminal status of
// each job keyed by its identity.
//
// Drivers:
//   - memory: process-local map (default)
//   - file: JSON-lines journal with snapshot compaction
//   - sqlite: modernc.org/sqlite database file
//   - postgres: pgx connection pool
//   - redis: one hash per result set
//   - sheet: writes the status back into the source spreadsheet
package storage
