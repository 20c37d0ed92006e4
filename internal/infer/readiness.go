package infer

import "github.com/roach88/framewatch/internal/model"

// Readiness derives the readiness flag from the primary (current) and pool
// (aux) values of a single snapshot. Both fields always come from the same
// cycle. Missing fields, or a snapshot that is not Reliable, yield a zero
// state with Known false.
func Readiness(snap model.EntitySnapshot) model.ReadinessState {
	if !snap.Reliable() {
		return model.ReadinessState{}
	}
	primary, ok1 := snap.CurrentValue.Get()
	pool, ok2 := snap.AuxValue.Get()
	if !ok1 || !ok2 {
		return model.ReadinessState{}
	}

	reserve := pool - primary
	if reserve < 0 {
		reserve = -reserve
	}
	rs := model.ReadinessState{
		Known:         true,
		PrimaryValue:  primary,
		PoolValue:     pool,
		IsReady:       primary != pool,
		ReserveAmount: reserve,
	}
	if m, ok := snap.MaxValue.Get(); ok && m > 0 {
		rs.ReservePercent = float64(reserve) * 100 / float64(m)
	}
	return rs
}
