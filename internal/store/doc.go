// Package store provides SQLite-backed durable storage for framewatch
// event logs.
//
// The store is an append-only log with:
//   - Sessions: one row per engine run
//   - Hits: every inferred hit with its attribution
//   - Combos: closed combo summaries
//   - Advantage: finalized timing-advantage measurements
//
// # Critical Patterns
//
// Logical Time:
//   - All ordering uses the cycle index, NEVER wall-clock columns
//   - captured_at is informational only
//
// Deterministic Query Results:
//   - All queries order by cycle ASC, id ASC
//   - Replaying a session yields identical frames every time
//
// Idempotent Hits:
//   - UNIQUE(session_id, cycle, victim); duplicate writes are ignored
//
// # Database Configuration
//
//   - WAL mode: concurrent reads (the hits command) during engine writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: every event references its session
package store
