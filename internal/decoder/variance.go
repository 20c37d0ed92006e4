package decoder

import "math"

// SampleVariance returns the sample variance (n-1 denominator) of xs and
// false when fewer than two samples are available.
func SampleVariance(xs []float64) (float64, bool) {
	n := len(xs)
	if n < 2 {
		return 0, false
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(n)

	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return ss / float64(n-1), true
}

// Choose picks the candidate stream with the lowest sample variance.
//
// samples[i] holds the valid readings of candidate i over one window.
// Candidates with fewer than two readings are skipped; ties go to the
// earlier candidate. Choose is pure: the same window always yields the
// same index. It returns false when no candidate had enough readings.
func Choose(samples [][]float64) (int, float64, bool) {
	best := -1
	bestVar := math.Inf(1)
	for i, s := range samples {
		v, ok := SampleVariance(s)
		if !ok {
			continue
		}
		if v < bestVar {
			best, bestVar = i, v
		}
	}
	if best < 0 {
		return 0, 0, false
	}
	return best, bestVar, true
}

// SelectorState describes where a Selector is in its life cycle.
type SelectorState int

const (
	// Sampling: accumulating a window, no candidate chosen yet.
	Sampling SelectorState = iota
	// Locked: a candidate is chosen and being monitored.
	Locked
)

// Selector resolves one ambiguous field offset by variance sampling.
//
// While Sampling, every candidate's readings accumulate for window cycles
// and Choose decides. While Locked, Observe only counts valid readings of
// the chosen stream; Monitor is handed the stream's recent values (the
// decoder reads them back from the snapshot history) and drops back to
// Sampling when their variance exceeds the anomaly threshold.
//
// Thread-safety: not safe for concurrent use; owned by the decoder.
type Selector struct {
	window    int
	threshold float64
	ncand     int

	state   SelectorState
	cycles  int
	samples [][]float64

	chosen   int
	variance float64
	held     int // valid chosen readings since the lock
}

// NewSelector creates a selector over ncand candidates.
func NewSelector(ncand, window int, threshold float64) *Selector {
	if window < 2 {
		window = 2
	}
	s := &Selector{
		window:    window,
		threshold: threshold,
		ncand:     ncand,
	}
	s.restart()
	return s
}

func (s *Selector) restart() {
	s.state = Sampling
	s.cycles = 0
	s.samples = make([][]float64, s.ncand)
	for i := range s.samples {
		s.samples[i] = make([]float64, 0, s.window)
	}
	s.chosen = 0
	s.held = 0
}

// Observation is the outcome of feeding one cycle into a Selector.
type Observation struct {
	// Index of the candidate to report this cycle.
	Index int
	// Resolved is false while sampling; the first candidate is then
	// reported as a provisional value.
	Resolved bool
	// Event is set on the cycle a choice was made or abandoned.
	Event SelectorEvent
	// Variance of the chosen stream at selection time.
	Variance float64
}

// SelectorEvent marks a state change of a Selector.
type SelectorEvent int

const (
	NoEvent SelectorEvent = iota
	// Selected: sampling finished with a chosen candidate.
	Selected
	// Inconclusive: a window ended with no readable candidate and restarted.
	Inconclusive
	// Retriggered: the chosen stream became anomalous and sampling restarted.
	Retriggered
)

// Observe feeds one cycle of candidate readings. vals[i] is the reading of
// candidate i and ok[i] whether it was valid.
func (s *Selector) Observe(vals []float64, ok []bool) Observation {
	switch s.state {
	case Locked:
		if ok[s.chosen] {
			s.held++
		}
		return Observation{Index: s.chosen, Resolved: true, Variance: s.variance}

	default:
		for i := 0; i < s.ncand && i < len(vals); i++ {
			if ok[i] {
				s.samples[i] = append(s.samples[i], vals[i])
			}
		}
		s.cycles++
		if s.cycles < s.window {
			return Observation{Index: 0}
		}

		idx, v, found := Choose(s.samples)
		if !found {
			s.restart()
			return Observation{Index: 0, Event: Inconclusive}
		}
		s.state = Locked
		s.chosen = idx
		s.variance = v
		return Observation{Index: idx, Resolved: true, Event: Selected, Variance: v}
	}
}

// Held returns how many valid readings of the chosen stream have been
// observed since the lock, the selecting cycle excluded.
func (s *Selector) Held() int {
	return s.held
}

// Window returns the sampling window size.
func (s *Selector) Window() int {
	return s.window
}

// Monitor checks the chosen stream once at least a full window of recent
// readings since the lock is available. recent is oldest first and ends
// with the current reading.
func (s *Selector) Monitor(recent []float64) Observation {
	if s.state != Locked {
		return Observation{Index: 0}
	}
	if len(recent) >= s.window {
		if v, _ := SampleVariance(recent[len(recent)-s.window:]); v > s.threshold {
			s.restart()
			return Observation{Index: 0, Event: Retriggered}
		}
	}
	return Observation{Index: s.chosen, Resolved: true, Variance: s.variance}
}

// State returns the current state.
func (s *Selector) State() SelectorState {
	return s.state
}

// Chosen returns the chosen candidate index and whether one is locked.
func (s *Selector) Chosen() (int, bool) {
	return s.chosen, s.state == Locked
}
