// Package cothread provides fixed-capacity cooperative stackful coroutines
// ("cothreads") that hand control to one another via explicit, synchronous
// switches on a single logical thread of execution.
//
// # Model
//
// A [Context] owns a fixed-capacity set of [Cothread] values. Exactly one
// cothread in a context is "current" at any instant observable from outside
// a [Context.Switch] call. Cothread index 0 ("main") represents the
// caller's original stack: it is created automatically by [NewContext], is
// never destroyed, and is the natural rendezvous point for code that wants
// to regain control after every other cothread has suspended.
//
// # Why goroutines instead of raw stack switching
//
// The originating C implementation hand-crafts a machine stack with mmap
// and switches to it with inline assembly plus siglongjmp. Go gives no safe
// way to do that (and the runtime actively prevents manual SP manipulation),
// so this package uses a dedicated goroutine per cothread, parked on an
// unbuffered channel ("baton") between switches. [Context.Switch] sends on
// the target's baton and then blocks receiving on its own — which gives the
// same contract as the source's switch primitive (synchronous, exactly one
// runnable cothread at a time, no other cothread in the context executes
// concurrently) without ever touching a stack pointer.
package cothread
