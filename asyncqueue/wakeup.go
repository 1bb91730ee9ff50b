package asyncqueue

import "time"

// notifier lets the async op queue wake Iterate's condvar-style wait early
// when a foreign OS thread posts an async op, instead of always paying the
// full poll interval.
type notifier interface {
	// notify signals any pending wait. Non-blocking; safe from any
	// goroutine. Multiple notifications before a wait observes them
	// coalesce into one wakeup (edge-triggered), matching the source
	// runtime's condvar broadcast semantics.
	notify()

	// wait blocks until notify is called or timeout elapses, whichever
	// comes first. Returns true if woken by notify.
	wait(timeout time.Duration) bool

	// close releases any OS resources held by the notifier.
	close() error
}
