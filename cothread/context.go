package cothread

import "sync"

// DiagnosticFunc receives a human-readable diagnostic message for
// conditions the switch primitive treats as non-fatal (e.g. switching to
// the current cothread). The default is a no-op; set one via
// [Context.SetDiagnostic] to route these into a logger.
type DiagnosticFunc func(msg string)

// Context is a fixed-capacity set of cothreads that can switch into one
// another. Exactly one cothread is "current" at any instant observable
// from outside a [Context.Switch] call.
type Context struct {
	mu         sync.Mutex
	cothreads  []*Cothread // nil entries are free slots
	capacity   int
	current    int
	diagnostic DiagnosticFunc
}

// NewContext creates a context with one pre-populated cothread at index 0
// representing the caller's own stack. capacity bounds the total number of
// cothreads (including index 0) the context will ever hold; NewContext
// panics if capacity < 1.
func NewContext(capacity int) *Context {
	if capacity < 1 {
		panic("cothread: capacity must be >= 1")
	}
	ctx := &Context{
		cothreads:  make([]*Cothread, capacity),
		capacity:   capacity,
		current:    0,
		diagnostic: func(string) {},
	}
	main := &Cothread{ctx: ctx, index: 0, baton: make(chan token), started: true, main: true}
	ctx.cothreads[0] = main
	return ctx
}

// SetDiagnostic installs the callback used for non-fatal switch
// diagnostics (e.g. no-op self-switch).
func (c *Context) SetDiagnostic(fn DiagnosticFunc) {
	if fn == nil {
		fn = func(string) {}
	}
	c.mu.Lock()
	c.diagnostic = fn
	c.mu.Unlock()
}

// Main returns the context's 0th cothread.
func (c *Context) Main() *Cothread {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cothreads[0]
}

func (c *Context) mainCothread() *Cothread {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cothreads[0]
}

// Current returns the cothread currently considered running in this
// context.
func (c *Context) Current() *Cothread {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cothreads[c.current]
}

func (c *Context) setCurrent(index int) {
	c.mu.Lock()
	c.current = index
	c.mu.Unlock()
}

// Create allocates a new, not-yet-started cothread from the context's
// reserved capacity. Returns [ErrCapacityExceeded] once the cap is
// reached.
func (c *Context) Create() (*Cothread, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, slot := range c.cothreads {
		if slot == nil {
			t := &Cothread{ctx: c, index: i, baton: make(chan token)}
			c.cothreads[i] = t
			return t, nil
		}
	}
	return nil, ErrCapacityExceeded
}

// Switch cooperatively transfers control to target. If target is the
// current cothread the call is a no-op (a diagnostic is emitted).
// Otherwise the calling cothread's state is implicitly preserved (it is a
// real, blocked goroutine) and target is resumed: lazily started on its
// first switch, or woken from its prior suspension point otherwise.
//
// Switch returns [ErrAbort] if this cothread was itself the target of a
// concurrent [Context.Destroy] request and should unwind rather than
// continue — callers of Switch that form part of a cothread body must
// propagate this error upward rather than swallow it.
func (c *Context) Switch(target *Cothread) error {
	if target == nil || target.ctx != c {
		return ErrInvalidTarget
	}

	cur := c.Current()
	if target == cur {
		c.mu.Lock()
		diag := c.diagnostic
		c.mu.Unlock()
		diag("cothread: switch to current cothread is a no-op")
		return nil
	}

	target.mu.Lock()
	alreadyStarted := target.started
	target.mu.Unlock()

	if !target.main && !alreadyStarted {
		target.mu.Lock()
		target.started = true
		target.dead = false
		target.mu.Unlock()
		go target.trampoline()
	}

	c.setCurrent(target.index)
	target.baton <- token{}

	tok := <-cur.baton
	c.setCurrent(cur.index)

	if tok.abort {
		return ErrAbort
	}
	return nil
}

// Destroy releases target's bookkeeping. It must not be called on the
// current cothread. If target has never run, or has already completed,
// the slot is reclaimed immediately. If target is genuinely suspended
// mid-execution, Destroy resumes it with an abort token and drives it
// (via the calling, main, cothread) until it unwinds to completion before
// reclaiming the slot — every suspension point in this module (and in
// [Context.Switch] itself) surfaces that unwind as [ErrAbort].
func (c *Context) Destroy(target *Cothread) error {
	if target == nil {
		return ErrInvalidTarget
	}
	if target == c.Current() {
		return ErrNotCurrent
	}

	target.mu.Lock()
	started, dead := target.started, target.dead
	target.mu.Unlock()

	if !started || dead {
		c.free(target)
		return nil
	}

	cur := c.Current()
	c.setCurrent(target.index)
	target.baton <- token{abort: true}
	<-cur.baton
	c.setCurrent(cur.index)

	c.free(target)
	return nil
}

func (c *Context) free(t *Cothread) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.index >= 0 && t.index < len(c.cothreads) && c.cothreads[t.index] == t {
		c.cothreads[t.index] = nil
	}
}

// ErrAbort is returned by [Context.Switch] (and by higher-level blocking
// operations built on it, such as link Push/Pull and element pad-select)
// when the calling cothread is being torn down via [Context.Destroy] and
// must unwind instead of continuing.
var ErrAbort = &Error{Kind: "cothread aborted"}
