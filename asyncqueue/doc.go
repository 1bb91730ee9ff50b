// Package asyncqueue implements the fair scheduler variant's cothread run
// queue (C3): an ordered FIFO of runnable cothreads plus an async-operation
// queue that lets foreign OS threads request state changes and wake-ups
// without taking the run queue's lock themselves.
//
// Everything except the async-operation queue is only ever touched from the
// single OS thread driving [Queue.Iterate]; the async-operation queue is the
// sole data structure genuinely shared across OS threads, guarded by a
// mutex and signalled through a platform wakeup primitive (see
// wakeup_linux.go / wakeup_other.go), mirroring the teacher event loop's
// split between its lock-free hot path and its mutex-guarded external
// ingress queue.
package asyncqueue
