package harness

import "github.com/roach88/framewatch/internal/model"

// Trace event kinds.
const (
	EventPresent   = "present"
	EventAbsent    = "absent"
	EventPhase     = "phase"
	EventComposite = "composite"
	EventHit       = "hit"
	EventAdvantage = "advantage"
	EventCombo     = "combo"
)

// TraceEvent is one line of a scenario trace.
//
// Within a cycle events are ordered by kind (presence, phase, composite,
// hit, advantage, combo) and then by slot.
type TraceEvent struct {
	Cycle  int64  `json:"cycle"`
	Kind   string `json:"kind"`
	Slot   string `json:"slot,omitempty"`
	Detail string `json:"detail"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	Session string       `json:"session"`
	Cycles  int64        `json:"cycles"`
	Trace   []TraceEvent `json:"trace"`

	// Errors holds one message per failed assertion.
	Errors []string `json:"errors,omitempty"`

	// Frames are the frames of every engine cycle, in order.
	Frames []model.Frame `json:"-"`

	// Flushed are the frames delivered by the final combo flush.
	Flushed []model.Frame `json:"-"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failed assertion.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Frame returns the frame of the given cycle.
func (r *Result) Frame(cycle int64) (model.Frame, bool) {
	i := cycle - 1
	if i < 0 || i >= int64(len(r.Frames)) {
		return model.Frame{}, false
	}
	return r.Frames[i], true
}

// AllFrames returns the cycle frames followed by the flushed frames.
func (r *Result) AllFrames() []model.Frame {
	out := make([]model.Frame, 0, len(r.Frames)+len(r.Flushed))
	out = append(out, r.Frames...)
	return append(out, r.Flushed...)
}
