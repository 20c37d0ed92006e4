// Package engine runs the framewatch polling cycle.
//
// ARCHITECTURE:
//
// Single-Writer Loop:
// One goroutine owns the resolver, decoder, history and inferencer and
// steps them once per cycle. This keeps inference deterministic: a replay
// of the same memory script yields the same frames.
//
// Cycle Flow:
//  1. Take a finished deep scan from the mailbox, if any (never blocks)
//  2. Resolve the four slot bases
//  3. Decode one snapshot per slot and push it into history
//  4. Infer hits, phases, readiness, advantage and combos
//  5. Hand the Frame to every sink in order; sink errors are logged only
//
// Deep scans run on a ScanWorker goroutine. Requests are coalesced and
// results are delivered through a last-value-wins Latest mailbox.
//
// CRITICAL PATTERNS:
//
// Cycle Clock:
// Frames are stamped with a monotonic cycle index from CycleClock.Next().
// Wall-clock CapturedAt is informational; ordering never depends on it.
package engine
