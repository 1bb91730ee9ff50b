package cothread

import "fmt"

// Error is the sentinel error kind for this package, carrying the name of
// the error (for errors.Is comparisons) and an optional wrapped cause.
type Error struct {
	Kind  string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cothread: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("cothread: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error with the same Kind, regardless of Cause.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// Sentinel kinds. Compare with errors.Is(err, ErrCapacityExceeded) etc.
var (
	// ErrCapacityExceeded is returned by Context.Create once the context's
	// fixed cothread capacity has been reached.
	ErrCapacityExceeded = &Error{Kind: "capacity exceeded"}

	// ErrInvalidTarget is returned by Context.Switch when target is nil or
	// does not belong to the calling context.
	ErrInvalidTarget = &Error{Kind: "invalid switch target"}

	// ErrStackAllocFailed models the source's mmap-failure case. This
	// implementation never actually fails to allocate a goroutine stack,
	// but the error is kept so callers porting from the C contract have
	// somewhere to route a future allocation-limited backend.
	ErrStackAllocFailed = &Error{Kind: "stack allocation failed"}

	// ErrNotCurrent is returned by Destroy when called on the currently
	// running cothread, which the contract forbids.
	ErrNotCurrent = &Error{Kind: "cannot destroy the current cothread"}
)
