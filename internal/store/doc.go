// Package store provides SQLite-backed durable storage for the compilation
// log.
//
// The store is append-only:
//   - compile_reports: one row per compilation attempt
//   - assertion_outcomes: the final state of each static assertion, in
//     source order
//   - diagnostics: unprovable assertions of failed attempts
//
// # Ordering
//
// All ordering uses the scheduler's seq (a logical clock), never wall time.
// Every query ends in ORDER BY seq ASC, id ASC COLLATE BINARY, so two reads
// of the same log return identical results.
//
// # Idempotency
//
// Report IDs are content addressed (ir.CompileReportID). Writing the same
// report twice is a no-op via ON CONFLICT(id) DO NOTHING.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
