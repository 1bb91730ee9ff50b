package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/flowsched/corestream"
	"github.com/flowsched/corestream/asyncqueue"
	"github.com/flowsched/corestream/cothread"
	"github.com/flowsched/corestream/element"
	"github.com/flowsched/corestream/graph"
	"github.com/flowsched/corestream/link"
)

// Status is the result of one [Scheduler.Iterate] call (spec §4.7).
type Status int

const (
	Running Status = iota
	Stopped
	Errored
)

func (s Status) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Stopped:
		return "STOPPED"
	case Errored:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ClockWaitResult is the outcome of [Scheduler.ClockWait].
type ClockWaitResult int

const (
	ClockEarly ClockWaitResult = iota
	ClockOK
	ClockErrorResult
)

// Scheduler drives one pipeline: the set of PLAYING elements' cothreads,
// the links between their pads, and the schedule_possible list, waiting list
// and priority-wake queue that decide which cothread runs next (spec C6+C7).
// It is not safe for concurrent use except through [Scheduler.Interrupt] and
// [Scheduler.AwakeAsync], which may be called from any goroutine.
type Scheduler struct {
	mu sync.Mutex

	cfg     *corestream.Config
	logger  corestream.Logger
	metrics *corestream.Metrics
	clock   graph.Clock

	ctx   *cothread.Context
	queue *asyncqueue.Queue

	elements  map[string]*element.Entry
	cothreads map[*element.Entry]*schedEntry
	links     map[*link.LinkState]*schedEntry

	interrupted map[*cothread.Cothread]bool

	schedulePossible []*schedEntry
	waiting          []*waitEntry
	priorityWake     []*element.Entry

	errored    bool
	errorCause error
}

type waitEntry struct {
	ce     *element.Entry
	id     string
	target time.Duration
}

// New constructs a Scheduler bound to clock, configured by opts.
func New(clock graph.Clock, opts ...corestream.Option) *Scheduler {
	cfg := corestream.ResolveConfig(opts...)
	s := &Scheduler{
		cfg:         cfg,
		logger:      cfg.Logger,
		clock:       clock,
		elements:    make(map[string]*element.Entry),
		cothreads:   make(map[*element.Entry]*schedEntry),
		links:       make(map[*link.LinkState]*schedEntry),
		interrupted: make(map[*cothread.Cothread]bool),
	}
	if cfg.MetricsEnabled {
		s.metrics = corestream.NewMetrics()
	}
	s.queue = asyncqueue.NewQueue(func() *cothread.Context {
		s.ctx = cothread.NewContext(cfg.CothreadCapacity)
		return s.ctx
	})
	s.queue.SetPollInterval(cfg.AsyncPollInterval)
	s.queue.Start()
	return s
}

// Resched implements [element.Scheduler]: a wrapper body hands control back
// here between units of work. It takes s.mu itself (wrapper bodies call in
// without holding it) since [asyncqueue.Queue.Sleep] unconditionally
// unlocks-then-relocks the mutex it is given around the context switch.
func (s *Scheduler) Resched(entry *element.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Sleep(entry.Ct, &s.mu)
}

// Setup (re)initialises the scheduler's run-time state, discarding any
// elements/links previously registered. Equivalent to building a fresh
// Scheduler, but keeps the same cothread.Context capacity and clock.
func (s *Scheduler) Setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.queue.Stop()
	s.elements = make(map[string]*element.Entry)
	s.cothreads = make(map[*element.Entry]*schedEntry)
	s.links = make(map[*link.LinkState]*schedEntry)
	s.interrupted = make(map[*cothread.Cothread]bool)
	s.schedulePossible = nil
	s.waiting = nil
	s.priorityWake = nil
	s.errored = false
	s.errorCause = nil
	s.queue.Start()
	return nil
}

// Reset is an alias for Setup, matching the spec's scheduler_reset entry
// point.
func (s *Scheduler) Reset() error { return s.Setup() }

// AddElement registers el with the scheduler, allocating it a cothread.
// Returns [corestream.ErrCapacityExceeded] if the context is full.
func (s *Scheduler) AddElement(el graph.Element) (*element.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.elements[el.Name()]; exists {
		return nil, corestream.New(corestream.KindElementMisbehavior, el.Name(), "", fmt.Errorf("element already added"))
	}

	ct, err := s.ctx.Create()
	if err != nil {
		return nil, corestream.New(corestream.KindCapacityExceeded, el.Name(), "", err)
	}

	entry := element.NewEntry(el, ct)
	*el.SchedPrivate() = entry
	s.elements[el.Name()] = entry
	se := newCothreadEntry(entry)
	s.cothreads[entry] = se
	s.schedulePossible = append(s.schedulePossible, se)
	return entry, nil
}

// RemoveElement unregisters el. Per spec §4 supplemented features, removing
// an element that is still PLAYING is rejected rather than silently torn
// down mid-flight.
func (s *Scheduler) RemoveElement(el graph.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.elements[el.Name()]
	if !ok {
		return nil
	}
	if el.State() == graph.StatePlaying {
		return corestream.New(corestream.KindElementBusy, el.Name(), "", fmt.Errorf("cannot remove a PLAYING element"))
	}

	se := s.cothreads[entry]
	s.removeFromLists(se)
	delete(s.cothreads, entry)
	delete(s.elements, el.Name())
	delete(s.interrupted, entry.Ct)

	if entry.Ct != s.ctx.Main() {
		_ = s.ctx.Destroy(entry.Ct)
	}
	return nil
}

func (s *Scheduler) removeFromLists(se *schedEntry) {
	s.schedulePossible = removeEntry(s.schedulePossible, se)
}

func removeEntry(list []*schedEntry, target *schedEntry) []*schedEntry {
	out := list[:0]
	for _, e := range list {
		if e != target {
			out = append(out, e)
		}
	}
	return out
}

// PadLink joins src to sink with a fresh [link.LinkState], binding it into
// both pads' scheduler-private slots and registering the scheduling entry
// used by can_schedule/schedule_forward.
func (s *Scheduler) PadLink(src, sink graph.Pad) (*link.LinkState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	srcEntry := s.elements[src.Parent().Name()]
	sinkEntry := s.elements[sink.Parent().Name()]

	l := link.New(src, sink, s.queue, graph.NewDiscont(), graph.NewUnref(), s.metrics, s.logger)
	element.BindLink(src, l)
	element.BindLink(sink, l)

	le := newLinkEntry(l, srcEntry, sinkEntry)
	s.links[l] = le
	return l, nil
}

// PadUnlink tears down the link attached to p, if any (spec I4).
func (s *Scheduler) PadUnlink(p graph.Pad) {
	s.mu.Lock()
	l, ok := element.LinkOf(p)
	if !ok {
		s.mu.Unlock()
		return
	}
	le := s.links[l]
	delete(s.links, l)
	s.mu.Unlock()

	l.Unlink()
	_ = le
}

// Error marks the scheduler as errored with cause attributed to el,
// per spec §7 "element function returning with an element error ... sets
// error, yields to main".
func (s *Scheduler) Error(el graph.Element, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errored = true
	s.errorCause = corestream.New(corestream.KindElementMisbehavior, el.Name(), "", cause)
	s.logger.Log(corestream.LevelError, "element reported error", corestream.F("element", el.Name()), corestream.F("cause", cause))
}
