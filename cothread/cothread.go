package cothread

import "sync"

// token is what travels across a cothread's baton channel. A plain token
// resumes normally; an aborting token asks the cothread to unwind through
// its next suspension point instead of resuming the work it was doing.
type token struct {
	abort bool
}

// Cothread is a single cooperative coroutine belonging to exactly one
// [Context]. The zero value is not usable; obtain one from
// [Context.Create] (or index 0 of a freshly-initialised context).
type Cothread struct {
	ctx   *Context
	index int

	baton chan token

	fn   func(argc int, argv []any)
	argc int
	argv []any

	mu      sync.Mutex
	started bool
	dead    bool
	main    bool
}

// Started reports whether the cothread has been switched into since its
// function was last bound and has not yet completed; it is false again
// once the function returns and after [Cothread.SetFunc].
func (t *Cothread) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

// Dead reports whether the cothread's bound function has returned (or was
// aborted) and control has passed back to the main cothread.
func (t *Cothread) Dead() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dead
}

// Index returns the cothread's fixed slot index within its context. Index
// 0 is always the context's main cothread.
func (t *Cothread) Index() int { return t.index }

// SetFunc binds the function and arguments a cothread will execute the
// next time it is switched into. It may be called before the cothread's
// first switch, or after it has completed (Dead()), to recycle the slot
// for a new body.
func (t *Cothread) SetFunc(fn func(argc int, argv []any), argc int, argv []any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fn = fn
	t.argc = argc
	t.argv = argv
	t.started = false
	t.dead = false
}

// trampoline is the goroutine body for a non-main cothread. It blocks for
// its first resume, runs the bound function to completion (or unwinds
// early on an abort token), and then always hands control back to the
// context's main cothread — matching the source runtime's "a cothread
// function that returns is treated as completed, control returns to the
// 0th cothread" contract.
func (t *Cothread) trampoline() {
	tok := <-t.baton
	if !tok.abort {
		t.fn(t.argc, t.argv)
	}

	t.mu.Lock()
	t.started = false
	t.dead = true
	t.mu.Unlock()

	main := t.ctx.mainCothread()
	main.baton <- token{}
}
