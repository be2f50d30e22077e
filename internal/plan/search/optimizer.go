package search

// Schedule drives the heuristic weight.
type Schedule struct {
	Initial float64 `yaml:"initial_weight"`
	Step    float64 `yaml:"weight_step"`
	Max     float64 `yaml:"max_weight"`
	// Patience is the number of pops without a new best before the weight goes up
	// and the buffers are trimmed.
	Patience int `yaml:"patience"`
	// YieldEvery hands the processor back once per this many weight changes.
	YieldEvery int `yaml:"yield_every"`
}

func DefaultSchedule() Schedule {
	return Schedule{Initial: 2, Step: 0.25, Max: 8, Patience: 2000, YieldEvery: 16}
}

// Optimizer is the adaptive heuristic weight. It relaxes (goes down) each time the
// search reaches a new best number of placed blocks and tightens (goes up) after
// Patience pops without one.
type Optimizer struct {
	Weight float64

	sched       Schedule
	best        int
	stale       int
	adjustments int
}

func NewOptimizer(s Schedule) *Optimizer {
	if s.Patience <= 0 {
		s.Patience = 1
	}
	if s.Max < s.Initial {
		s.Max = s.Initial
	}
	return &Optimizer{Weight: s.Initial, sched: s, best: -1}
}

func (o *Optimizer) Best() int        { return o.best }
func (o *Optimizer) Adjustments() int { return o.adjustments }

// Observe records a popped node. changed reports a weight change; trim reports that
// buffered nodes below half the best should be dropped.
func (o *Optimizer) Observe(placed int) (changed, trim bool) {
	if placed > o.best {
		o.best = placed
		o.stale = 0
		w := o.Weight - o.sched.Step
		if w < 0 {
			w = 0
		}
		return o.set(w), false
	}
	o.stale++
	if o.stale < o.sched.Patience {
		return false, false
	}
	o.stale = 0
	w := o.Weight + o.sched.Step
	if w > o.sched.Max {
		w = o.sched.Max
	}
	return o.set(w), true
}

func (o *Optimizer) set(w float64) bool {
	if w == o.Weight {
		return false
	}
	o.Weight = w
	o.adjustments++
	return true
}

// ShouldYield is true right after every YieldEvery-th weight change.
func (o *Optimizer) ShouldYield() bool {
	return o.sched.YieldEvery > 0 && o.adjustments > 0 && o.adjustments%o.sched.YieldEvery == 0
}
