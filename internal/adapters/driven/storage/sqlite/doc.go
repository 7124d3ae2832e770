// Package sqlite keeps caseflow's durable state in one SQLite database,
// ~/.caseflow/data/caseflow.db unless a data directory is configured.
//
// A single Store hands out the session, document, delivery failure,
// timeline, violation and scheduler stores; they share one connection pool
// opened in WAL mode with a busy timeout, so the CLI and a running server can
// use the same file. The driver is modernc.org/sqlite and needs no CGO.
//
// The schema is versioned by the embedded files in migrations/ and applied
// on open.
package sqlite
