package corestream

import "sync/atomic"

// Metrics holds the lock-free counters a scheduler maintains about its own
// operation, grounded on eventloop/metrics.go's atomic counter set.
// Nil-safe: every method tolerates a nil *Metrics so instrumentation is
// always optional to call into.
type Metrics struct {
	iterations        atomic.Int64
	schedulingStuck   atomic.Int64
	discontSynthesis  atomic.Int64
	cothreadSwitches  atomic.Int64
	asyncOpsProcessed atomic.Int64
}

// NewMetrics returns a zeroed Metrics.
func NewMetrics() *Metrics { return &Metrics{} }

func (m *Metrics) incIterations() {
	if m != nil {
		m.iterations.Add(1)
	}
}

func (m *Metrics) incSchedulingStuck() {
	if m != nil {
		m.schedulingStuck.Add(1)
	}
}

func (m *Metrics) incDiscontSynthesis() {
	if m != nil {
		m.discontSynthesis.Add(1)
	}
}

func (m *Metrics) incCothreadSwitches() {
	if m != nil {
		m.cothreadSwitches.Add(1)
	}
}

func (m *Metrics) incAsyncOpsProcessed(n int) {
	if m != nil {
		m.asyncOpsProcessed.Add(int64(n))
	}
}

// Snapshot is a point-in-time copy of a Metrics' counters.
type Snapshot struct {
	Iterations        int64
	SchedulingStuck   int64
	DiscontSynthesis  int64
	CothreadSwitches  int64
	AsyncOpsProcessed int64
}

// Snapshot reads all counters. Safe to call concurrently with increments.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Iterations:        m.iterations.Load(),
		SchedulingStuck:   m.schedulingStuck.Load(),
		DiscontSynthesis:  m.discontSynthesis.Load(),
		CothreadSwitches:  m.cothreadSwitches.Load(),
		AsyncOpsProcessed: m.asyncOpsProcessed.Load(),
	}
}

// IncIterations records one Iterate() call that switched into a cothread.
// Exported for the scheduler package, which owns the only Metrics instance
// in normal use.
func (m *Metrics) IncIterations() { m.incIterations() }

// IncSchedulingStuck records an Iterate() call that found no runnable entry
// while a PLAYING element had no clock wait pending, i.e. one that raised
// the scheduling-stuck error.
func (m *Metrics) IncSchedulingStuck() { m.incSchedulingStuck() }

// IncDiscontSynthesis records one synthesized DISCONT event (spec §4.4).
func (m *Metrics) IncDiscontSynthesis() { m.incDiscontSynthesis() }

// IncCothreadSwitches records one cothread.Context.Switch call.
func (m *Metrics) IncCothreadSwitches() { m.incCothreadSwitches() }

// IncAsyncOpsProcessed records n drained asyncqueue operations.
func (m *Metrics) IncAsyncOpsProcessed(n int) { m.incAsyncOpsProcessed(n) }
