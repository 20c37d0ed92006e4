// Package harness runs scripted capture scenarios through the real engine.
//
// A scenario places entity records into a synthetic memory image, then
// mutates them cycle by cycle while the engine observes the image exactly
// as it would observe a live process. The frames the engine emits are
// reduced to a flat trace, checked against the scenario's assertions and
// optionally compared with a golden file.
//
// # Scenario Format
//
//	name: single_hit
//	description: "P2 lead hits P1 lead for 5000"
//	session: sess-1
//	entities:
//	  - slot: P1-C1
//	    base: 0x9246B9C0
//	    type_id: 12
//	  - slot: P2-C1
//	    base: 0x92500000
//	    type_id: 13
//	    x: 3
//	cycles:
//	  - repeat: 1
//	  - set:
//	      - slot: P1-C1
//	        current: 45000
//	assertions:
//	  - type: hit
//	    cycle: 2
//	    victim: P1-C1
//	    attacker: P2-C1
//
// Each entry of cycles applies its set patches and then runs repeat engine
// cycles (default 1). With each: true the patches are applied again before
// every repeated cycle, which is how gradual changes like current_add are
// scripted.
//
// # Assertion Types
//
//   - hit: a hit matching the given cycle, victim, attacker, delta, source
//   - hit_count: number of hits, optionally per victim and cycle range
//   - combo: a closed combo on a victim with hits and total
//   - advantage: a finalized advantage for attacker/victim with value or raw
//   - phase: a slot's phase at a cycle
//   - readiness: a slot's readiness at a cycle
//   - composite: a side's shared-base flag at a cycle
//   - snapshot: a slot's presence or fault flag at a cycle
//
// Zero-valued optional fields match anything.
//
// # Deterministic Testing
//
// Every run uses a fixed session id, a FrameClock wall clock starting at
// testutil.Epoch and a fresh memory image, so the same scenario yields a
// byte-identical trace on every run.
package harness
