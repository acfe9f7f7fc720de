// Package store provides SQLite-backed run history for operator suites.
//
// The store keeps an append-only log of:
//   - Runs: one record per suite execution with counts, final accumulator
//     and content hashes
//   - Outcomes: one record per case within a run
//
// # Identity and Ordering
//
// Runs carry a caller-chosen id (a UUIDv7 from internal/runid) and a store
// assigned seq. All ordering uses seq, never timestamps, so history reads
// are deterministic. Writing the same run id twice is a no-op.
//
// suite_hash is the content hash of the suite definition and result_hash
// the hash of the run's canonical snapshot. Two runs of an unchanged suite
// with the same evaluator are expected to share a result_hash; LastRun and
// Drift expose the cases where they do not.
//
// # Connections
//
// Pragmas travel in the go-sqlite3 DSN so every pooled connection gets
// them: WAL journaling with synchronous=NORMAL, a 5s busy timeout and
// foreign keys on. Open(path, ReadOnly()) opens with mode=rw and
// query_only, never creates the file, skips migrations and refuses a database whose user_version differs from
// SchemaVersion.
package store
