package asyncqueue

import (
	"container/list"
	"sync"
	"time"

	"github.com/flowsched/corestream/cothread"
)

// State is the run-state of a cothread tracked by a [Queue].
type State int

const (
	// Stopped cothreads are not in the run list and will not be resumed.
	Stopped State = iota
	// Suspended cothreads are not reinserted into the run list by
	// [Queue.Awake]; entering Suspended does not unlink a cothread that is
	// already queued. [Queue.Sleep] leaves the state unchanged.
	Suspended
	// Running cothreads are eligible to be dequeued and switched into.
	Running
)

// DefaultPollInterval is the bound on how long [Queue.Iterate] blocks
// waiting for async operations when the run list is empty, per spec
// (§4.3: "wait up to 5 ms on the async-op condvar").
const DefaultPollInterval = 5 * time.Millisecond

// entry is a queue's bookkeeping for one cothread.
type entry struct {
	ct       *cothread.Cothread
	state    State
	sleeping bool
	elem     *list.Element // non-nil iff currently linked into the run list
}

// Queue is the fair scheduler's cothread run queue: a FIFO of runnable
// cothreads, plus a mutex-guarded async-operation queue that lets foreign
// OS threads request state changes and wake-ups without taking the run
// list's lock.
type Queue struct {
	newContext func() *cothread.Context

	mu      sync.Mutex
	ctx     *cothread.Context
	list    *list.List
	entries map[*cothread.Cothread]*entry
	started bool

	pollInterval time.Duration
	notifier     notifier

	asyncMu sync.Mutex
	asyncOp []asyncOp
}

type asyncOpKind int

const (
	asyncChangeState asyncOpKind = iota
	asyncAwake
)

type asyncOp struct {
	kind     asyncOpKind
	ct       *cothread.Cothread
	state    State
	priority int
	reinit   func()
}

// NewQueue creates an empty queue. newContext lazily builds the underlying
// [cothread.Context] the first time [Queue.Start] is called, matching the
// spec's "start() lazily instantiate the underlying context".
func NewQueue(newContext func() *cothread.Context) *Queue {
	return &Queue{
		newContext:   newContext,
		list:         list.New(),
		entries:      make(map[*cothread.Cothread]*entry),
		pollInterval: DefaultPollInterval,
		notifier:     newNotifier(),
	}
}

// SetPollInterval overrides the default 5ms async-op poll bound. Intended
// for tests; production callers should leave the default.
func (q *Queue) SetPollInterval(d time.Duration) {
	q.mu.Lock()
	q.pollInterval = d
	q.mu.Unlock()
}

// Start lazily instantiates the underlying cothread context.
func (q *Queue) Start() *cothread.Context {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started {
		q.ctx = q.newContext()
		q.started = true
	}
	return q.ctx
}

// Context returns the underlying cothread context, or nil before Start.
func (q *Queue) Context() *cothread.Context {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ctx
}

// Stop destroys the underlying context and every cothread it owns.
func (q *Queue) Stop() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started {
		return nil
	}
	for ct, e := range q.entries {
		if e.elem != nil {
			q.list.Remove(e.elem)
			e.elem = nil
		}
		if ct != q.ctx.Main() {
			_ = q.ctx.Destroy(ct)
		}
	}
	q.entries = make(map[*cothread.Cothread]*entry)
	q.list = list.New()
	q.started = false
	q.ctx = nil
	_ = q.notifier.close()
	return nil
}

func (q *Queue) entryFor(ct *cothread.Cothread) *entry {
	e, ok := q.entries[ct]
	if !ok {
		e = &entry{ct: ct, state: Stopped}
		q.entries[ct] = e
	}
	return e
}

// ChangeState transitions ct into one of the three run-states. Entering
// Running from Stopped calls reinit (if non-nil) to (re)bind the
// cothread's function before pushing it onto the tail of the run list.
// Entering Stopped from Running while linked unlinks it from the list.
func (q *Queue) ChangeState(ct *cothread.Cothread, newState State, reinit func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.changeStateLocked(ct, newState, reinit)
}

func (q *Queue) changeStateLocked(ct *cothread.Cothread, newState State, reinit func()) {
	e := q.entryFor(ct)
	old := e.state
	e.state = newState

	switch {
	case old == Stopped && newState == Running:
		if reinit != nil {
			reinit()
		}
		if e.elem == nil {
			e.elem = q.list.PushBack(e)
		}
	case old != Stopped && newState == Stopped:
		if e.elem != nil {
			q.list.Remove(e.elem)
			e.elem = nil
		}
		e.sleeping = false
	}
}

// ChangeStateAsync posts a deferred ChangeState to be applied at the start
// of the next Iterate call. Safe to call from any goroutine.
func (q *Queue) ChangeStateAsync(ct *cothread.Cothread, newState State, reinit func()) {
	q.asyncMu.Lock()
	q.asyncOp = append(q.asyncOp, asyncOp{kind: asyncChangeState, ct: ct, state: newState, reinit: reinit})
	q.asyncMu.Unlock()
	q.notifier.notify()
}

// Awake clears ct's sleeping flag and, if it is in the Running state,
// reinserts it into the run list: at the head when priority > 0, at the
// tail otherwise.
func (q *Queue) Awake(ct *cothread.Cothread, priority int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.awakeLocked(ct, priority)
}

func (q *Queue) awakeLocked(ct *cothread.Cothread, priority int) {
	e := q.entryFor(ct)
	e.sleeping = false
	if e.state != Running {
		return
	}
	if e.elem != nil {
		return // already runnable/queued
	}
	if priority > 0 {
		e.elem = q.list.PushFront(e)
	} else {
		e.elem = q.list.PushBack(e)
	}
}

// AwakeAsync posts a deferred Awake to be applied at the start of the next
// Iterate call. Safe to call from any goroutine — this is the only path
// by which foreign OS threads interact with the queue.
func (q *Queue) AwakeAsync(ct *cothread.Cothread, priority int) {
	q.asyncMu.Lock()
	q.asyncOp = append(q.asyncOp, asyncOp{kind: asyncAwake, ct: ct, priority: priority})
	q.asyncMu.Unlock()
	q.notifier.notify()
}

// Sleep marks the calling cothread sleeping, unlinks it from the run
// list, optionally unlocks mutex (to atomically release caller state
// before the context switch), and switches control back to the main
// cothread. Must be called from within ct's own execution.
//
// If mutex is non-nil, Sleep re-locks it before returning — mirroring
// sync.Cond.Wait's lock/wait/relock contract — so a caller such as a link's
// Push/Pull can always assume its own state mutex is held again once Sleep
// returns, regardless of whether it returned normally or via
// [cothread.ErrAbort].
func (q *Queue) Sleep(ct *cothread.Cothread, mutex sync.Locker) error {
	q.mu.Lock()
	e := q.entryFor(ct)
	e.sleeping = true
	if e.elem != nil {
		q.list.Remove(e.elem)
		e.elem = nil
	}
	ctx := q.ctx
	q.mu.Unlock()

	if mutex != nil {
		mutex.Unlock()
	}
	err := ctx.Switch(ctx.Main())
	if mutex != nil {
		mutex.Lock()
	}
	return err
}

// Yield behaves like Sleep but re-inserts the cothread at the tail of the
// run list before switching out, so it remains runnable at lower
// priority rather than waiting for an explicit Awake. As with Sleep, a
// non-nil mutex is re-locked before Yield returns.
func (q *Queue) Yield(ct *cothread.Cothread, mutex sync.Locker) error {
	q.mu.Lock()
	e := q.entryFor(ct)
	e.sleeping = true
	if e.elem != nil {
		q.list.Remove(e.elem)
	}
	e.elem = q.list.PushBack(e)
	ctx := q.ctx
	q.mu.Unlock()

	if mutex != nil {
		mutex.Unlock()
	}
	err := ctx.Switch(ctx.Main())
	if mutex != nil {
		mutex.Lock()
	}
	return err
}

// drainAsync applies every queued async operation. Must be called with
// q.mu held.
func (q *Queue) drainAsync() {
	q.asyncMu.Lock()
	ops := q.asyncOp
	q.asyncOp = nil
	q.asyncMu.Unlock()

	for _, op := range ops {
		switch op.kind {
		case asyncChangeState:
			q.changeStateLocked(op.ct, op.state, op.reinit)
		case asyncAwake:
			q.awakeLocked(op.ct, op.priority)
		}
	}
}

// Iterate dequeues the head of the run list (after draining any pending
// async operations) and switches into it. Returns true if a cothread ran.
// If no runnable cothread exists, Iterate waits up to the configured poll
// interval for an async operation to arrive before returning false.
func (q *Queue) Iterate() (bool, error) {
	q.mu.Lock()
	q.drainAsync()

	front := q.list.Front()
	if front == nil {
		interval := q.pollInterval
		ctx := q.ctx
		q.mu.Unlock()
		if ctx == nil {
			return false, nil
		}
		q.notifier.wait(interval)
		return false, nil
	}

	e := front.Value.(*entry)
	q.list.Remove(front)
	e.elem = nil
	ctx := q.ctx
	q.mu.Unlock()

	if err := ctx.Switch(e.ct); err != nil {
		return true, err
	}
	return true, nil
}
