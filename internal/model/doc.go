// Package model defines the value types that flow through a polling cycle.
//
// Every type here is a plain value owned by the cycle that produced it:
//   - SlotID / Side: the four tracked positions, two per side
//   - Address: opaque, validated guest address (arithmetic lives in resolver/decoder)
//   - Field[T]: a decoded value plus its validity
//   - EntitySnapshot: one slot's decoded state for one cycle
//   - HitEvent, AdvantageResult, ComboSummary: derived events
//   - PhaseState, ReadinessState, Composite: derived per-cycle state
//   - Frame: the complete per-cycle output consumed by sinks
//
// # Failure model
//
// Nothing in this package panics on bad input. Decoding and inference
// failures are recorded as ErrorKind values (on snapshots as a FaultSet,
// in error returns as *Error) and the affected field degrades to unknown.
package model
