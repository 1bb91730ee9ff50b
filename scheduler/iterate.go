package scheduler

import (
	"errors"
	"sort"
	"time"

	"github.com/flowsched/corestream"
	"github.com/flowsched/corestream/asyncqueue"
	"github.com/flowsched/corestream/cothread"
	"github.com/flowsched/corestream/element"
	"github.com/flowsched/corestream/graph"
	"github.com/flowsched/corestream/link"
)

var errNotRegistered = errors.New("element not registered with this scheduler")
var errNoRunnableEntry = errors.New("no runnable entry found for a PLAYING element after a full schedule_forward walk")

// Transition is one of the four element lifecycle transitions (spec §3).
type Transition int

const (
	ToNull Transition = iota
	ToReady
	ToPaused
	ToPlaying
)

// StateTransition drives el through a lifecycle transition, wiring (on
// first entry to PLAYING) the appropriate wrapper cothread body, and
// marking every link of el's pads as owing a leading DISCONT on a
// READY→PAUSED transition (spec §8 scenario 2).
func (s *Scheduler) StateTransition(el graph.Element, t Transition) error {
	s.mu.Lock()
	entry, ok := s.elements[el.Name()]
	s.mu.Unlock()
	if !ok {
		return corestream.New(corestream.KindElementMisbehavior, el.Name(), "", errNotRegistered)
	}

	switch t {
	case ToPaused:
		for _, p := range el.Pads() {
			if l, ok := element.LinkOf(p); ok {
				l.SetNeedDiscont()
			}
		}

	case ToPlaying:
		s.mu.Lock()
		defer s.mu.Unlock()
		if entry.Ct.Started() && !entry.Ct.Dead() {
			return nil // already running
		}
		fn := s.wrapperFor(entry)
		if fn == nil {
			return nil // no user function bound; nothing to drive
		}
		entry.Ct.SetFunc(fn, 0, nil)
		entry.State = element.WaitForNothing
		s.queue.ChangeState(entry.Ct, asyncqueue.Running, nil)
	}
	return nil
}

// wrapperFor picks the cothread body for entry's element: a loop wrapper
// if it has a loop function, otherwise a chain wrapper for its first sink
// pad with a chain function, or else a get wrapper for its first src pad
// with a get function (spec §4.5). Any further pads of a multi-pad element
// get no wrapper of their own in this single-cothread-per-element model.
func (s *Scheduler) wrapperFor(entry *element.Entry) func(int, []any) {
	if entry.El.LoopFunc() != nil {
		return element.LoopWrapper(entry, s)
	}
	for _, p := range entry.El.Pads() {
		if p.Direction() == graph.DirSink && p.ChainFunc() != nil {
			return element.ChainWrapper(entry, p, s)
		}
	}
	for _, p := range entry.El.Pads() {
		if p.Direction() == graph.DirSrc && p.GetFunc() != nil {
			return element.GetWrapper(entry, p, s)
		}
	}
	return nil
}

// Yield lets el's own cothread voluntarily hand control back to the
// scheduler mid-body (spec scheduler_yield). Returns false if el is not
// registered.
func (s *Scheduler) Yield(el graph.Element) bool {
	s.mu.Lock()
	entry, ok := s.elements[el.Name()]
	s.mu.Unlock()
	if !ok {
		return false
	}
	entry.State = element.WaitForNothing
	return s.Resched(entry) == nil
}

// Interrupt asks el's cothread, if blocked in [Scheduler.PadSelect] or
// [Scheduler.ClockWait], to wake and return [corestream.ErrInterrupted]
// (spec scheduler_interrupt / unlock). Safe to call from any goroutine.
func (s *Scheduler) Interrupt(el graph.Element) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.elements[el.Name()]
	if !ok {
		return false
	}
	s.interrupted[entry.Ct] = true
	entry.State = element.WaitForNothing
	s.priorityWake = append([]*element.Entry{entry}, s.priorityWake...)
	return true
}

// InterruptClear rearms el's cothread after a prior Interrupt (spec
// unlock_stop).
func (s *Scheduler) InterruptClear(el graph.Element) {
	s.mu.Lock()
	if entry, ok := s.elements[el.Name()]; ok {
		delete(s.interrupted, entry.Ct)
	}
	s.mu.Unlock()
}

// PadSelect scans pads for one whose link already has data; if none is
// ready it registers ct as a waiting reader on every pad in the set and
// sleeps until one arrives or the cothread is interrupted (spec §4.6
// pad_select / §8 scenario 4).
func (s *Scheduler) PadSelect(ct *cothread.Cothread, pads []graph.Pad) (graph.Pad, graph.Data, error) {
	if p, d, found, err := trySelectPads(ct, pads); found {
		return p, d, err
	}

	var registered []padLink
	for _, p := range pads {
		if l, ok := element.LinkOf(p); ok {
			l.RegisterSelectWaiter(ct)
			registered = append(registered, padLink{pad: p, link: l})
		}
	}
	defer func() {
		for _, pl := range registered {
			pl.link.UnregisterSelectWaiter(ct)
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if err := s.queue.Sleep(ct, &s.mu); err != nil {
			return nil, nil, err
		}
		if s.interrupted[ct] {
			delete(s.interrupted, ct)
			return nil, nil, corestream.ErrInterrupted
		}
		if p, d, found, err := trySelectPads(ct, pads); found {
			return p, d, err
		}
	}
}

type padLink struct {
	pad  graph.Pad
	link *link.LinkState
}

func trySelectPads(ct *cothread.Cothread, pads []graph.Pad) (graph.Pad, graph.Data, bool, error) {
	for _, p := range pads {
		if l, ok := element.LinkOf(p); ok && l.BufpenFull() {
			d, err := l.Pull(ct)
			return p, d, true, err
		}
	}
	return nil, nil, false, nil
}

// ClockWait consults the pipeline clock: if target has already passed it
// returns (ClockEarly, jitter) immediately; otherwise it registers a
// wait-entry and sleeps ct until a later [Scheduler.Iterate] observes the
// clock crossing target (spec §5 "Timeout semantics" / §8 scenario 6).
func (s *Scheduler) ClockWait(ct *cothread.Cothread, entry *element.Entry, id string, target time.Duration) (ClockWaitResult, time.Duration, error) {
	if s.clock == nil {
		return ClockErrorResult, 0, corestream.ErrClockError
	}

	s.mu.Lock()
	now := s.clock.Now()
	if target <= now {
		s.mu.Unlock()
		return ClockEarly, now - target, nil
	}
	entry.State = element.WaitForPads
	s.waiting = append(s.waiting, &waitEntry{ce: entry, id: id, target: target})
	defer s.mu.Unlock()

	err := s.queue.Sleep(ct, &s.mu)
	// Remove our own registration if it is still queued: we may have been
	// resumed early via Interrupt/AwakeAsync rather than by natural
	// expiry, and a stale entry would otherwise trigger a second, unwanted
	// switch into this cothread once its target eventually passes.
	for i, w := range s.waiting {
		if w.ce == entry && w.id == id {
			s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
			break
		}
	}
	if err != nil {
		return ClockErrorResult, 0, err
	}
	if s.interrupted[ct] {
		delete(s.interrupted, ct)
		return ClockErrorResult, 0, corestream.ErrInterrupted
	}
	return ClockOK, s.clock.Now() - target, nil
}

// AwakeAsync asks the element's cothread to run ahead of any currently
// RUNNING cothread on the scheduler's next Iterate call (spec §8 scenario 5
// "async awake" — safe to call from any goroutine other than the one
// driving Iterate).
func (s *Scheduler) AwakeAsync(el graph.Element, priority int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.elements[el.Name()]
	if !ok {
		return false
	}
	entry.State = element.WaitForNothing
	if priority > 0 {
		s.priorityWake = append([]*element.Entry{entry}, s.priorityWake...)
	} else {
		s.priorityWake = append(s.priorityWake, entry)
	}
	return true
}

// Iterate runs one scheduling tick (spec C7 / §4.7).
func (s *Scheduler) Iterate() (Status, error) {
	s.mu.Lock()
	if s.errored {
		err := s.errorCause
		s.mu.Unlock()
		return Errored, err
	}

	if len(s.priorityWake) > 0 {
		entry := s.priorityWake[0]
		s.priorityWake = s.priorityWake[1:]
		s.mu.Unlock()
		s.metrics.IncAsyncOpsProcessed(1)
		return s.runEntry(entry)
	}

	if s.clock == nil {
		s.mu.Unlock()
		return Stopped, nil
	}

	now := s.clock.Now()
	var expired, remaining []*waitEntry
	for _, w := range s.waiting {
		if w.target <= now {
			expired = append(expired, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	s.waiting = remaining
	s.mu.Unlock()

	if len(expired) > 0 {
		sort.Slice(expired, func(i, j int) bool { return expired[i].target < expired[j].target })
		run := expired[0]
		run.ce.State = element.WaitForNothing
		s.queue.Awake(run.ce.Ct, 1)

		if len(expired) > 1 {
			// Only one cothread runs per Iterate call; give the
			// remaining already-due waiters another pass next tick
			// instead of dropping them.
			s.mu.Lock()
			s.waiting = append(s.waiting, expired[1:]...)
			s.mu.Unlock()
		}
		return s.runEntry(run.ce)
	}

	s.mu.Lock()
	n := len(s.schedulePossible)
	var picked *element.Entry
	pickedIdx := -1
	for i := 0; i < n; i++ {
		if ce, ok := s.scheduleForward(s.schedulePossible[i]); ok {
			picked = ce
			pickedIdx = i
			break
		}
	}
	if picked == nil {
		if stuck := s.stuckCauseLocked(); stuck != nil {
			s.errored = true
			s.errorCause = stuck
			s.mu.Unlock()
			s.metrics.IncSchedulingStuck()
			s.logger.Log(corestream.LevelError, "scheduler stuck: PLAYING elements but no runnable entry", corestream.F("cause", stuck))
			return Errored, stuck
		}
		s.mu.Unlock()
		return Stopped, nil
	}
	se := s.schedulePossible[pickedIdx]
	s.schedulePossible = append(append(append([]*schedEntry{}, s.schedulePossible[:pickedIdx]...), s.schedulePossible[pickedIdx+1:]...), se)
	s.mu.Unlock()

	return s.runEntry(picked)
}

// stuckCauseLocked implements spec §7's SchedulingStuck / §4.7 "unrecoverable
// state" check: a full schedule_forward walk found nothing runnable, yet at
// least one registered element is still PLAYING and has no clock-wait
// registered (s.waiting) to account for its silence this tick. Without the
// waiting-list check, a PLAYING element legitimately parked in ClockWait for
// a future target would be misclassified as stuck on every idle tick before
// its deadline. Must be called with s.mu held.
func (s *Scheduler) stuckCauseLocked() error {
	if len(s.waiting) > 0 {
		return nil
	}
	for name, entry := range s.elements {
		if entry.El.State() == graph.StatePlaying {
			return corestream.New(corestream.KindSchedulingStuck, name, "", errNoRunnableEntry)
		}
	}
	return nil
}

func (s *Scheduler) runEntry(ce *element.Entry) (Status, error) {
	if err := s.ctx.Switch(ce.Ct); err != nil {
		s.mu.Lock()
		s.errored = true
		s.errorCause = err
		s.mu.Unlock()
		return Errored, err
	}
	s.metrics.IncCothreadSwitches()
	s.metrics.IncIterations()
	return Running, nil
}
