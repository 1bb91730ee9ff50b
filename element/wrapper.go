package element

import (
	"errors"

	"github.com/flowsched/corestream/cothread"
	"github.com/flowsched/corestream/graph"
)

// LoopWrapper builds the cothread body for a loop-style element (spec
// §4.5.1): while PLAYING, invoke the element's loop function once, mark
// WaitForNothing, and ask the scheduler to pick the next piece of work.
// The wrapper never returns while the element stays PLAYING; it returns
// (ending the cothread) once the element leaves that state.
func LoopWrapper(entry *Entry, sched Scheduler) func(argc int, argv []any) {
	return func(int, []any) {
		loop := entry.El.LoopFunc()
		for playing(entry.El) {
			if loop == nil {
				return
			}
			loop(entry.El)
			entry.State = WaitForNothing
			if err := sched.Resched(entry); err != nil {
				return
			}
		}
	}
}

// ChainWrapper builds the cothread body for a chain-style sink pad (spec
// §4.5.2): while PLAYING, pull one data unit (synthesising a leading
// DISCONT as needed), deliver it to the pad's chain function — or, for a
// non-event-aware element, forward an event downstream by default — mark
// WaitForPads, and reschedule.
func ChainWrapper(entry *Entry, pad graph.Pad, sched Scheduler) func(argc int, argv []any) {
	return func(int, []any) {
		l, ok := LinkOf(pad)
		if !ok {
			return
		}
		for playing(entry.El) {
			d, err := l.GetBuffer(entry.Ct)
			if err != nil {
				if errors.Is(err, cothread.ErrAbort) {
					return
				}
				sched.Error(entry.El, err)
				return
			}

			if ev, isEvent := d.(graph.Event); isEvent && entry.El.Flags()&graph.FlagEventAware == 0 {
				handled := false
				if fn := pad.EventFunc(); fn != nil {
					handled = fn(pad, ev)
				}
				if !handled {
					if err := forwardEvent(entry.Ct, entry.El, ev); err != nil {
						if errors.Is(err, cothread.ErrAbort) {
							return
						}
						sched.Error(entry.El, err)
						return
					}
				}
			} else if chain := pad.ChainFunc(); chain != nil {
				if err := chain(pad, d); err != nil {
					sched.Error(entry.El, misbehavior(entry.El, pad.Name(), err))
					return
				}
			}

			entry.State = WaitForPads
			if err := sched.Resched(entry); err != nil {
				return
			}
		}
	}
}

// GetWrapper builds the cothread body for a get-style src pad (spec
// §4.5.3): while PLAYING, call the pad's get function and push the result
// into the downstream link, recording an ElementMisbehavior if the pad was
// unlinked or removed mid-call.
func GetWrapper(entry *Entry, pad graph.Pad, sched Scheduler) func(argc int, argv []any) {
	return func(int, []any) {
		for playing(entry.El) {
			l, ok := LinkOf(pad)
			if !ok {
				sched.Error(entry.El, misbehavior(entry.El, pad.Name(), errUnlinkedDuringGet))
				return
			}

			get := pad.GetFunc()
			if get == nil {
				return
			}
			d, err := get(pad)
			if err != nil {
				sched.Error(entry.El, misbehavior(entry.El, pad.Name(), err))
				return
			}

			if l2, stillLinked := LinkOf(pad); !stillLinked || l2 != l {
				sched.Error(entry.El, misbehavior(entry.El, pad.Name(), errUnlinkedDuringGet))
				return
			}

			if err := l.Push(entry.Ct, d); err != nil {
				if errors.Is(err, cothread.ErrAbort) {
					return
				}
				sched.Error(entry.El, err)
				return
			}

			entry.State = WaitForPads
			if err := sched.Resched(entry); err != nil {
				return
			}
		}
	}
}

var errUnlinkedDuringGet = errors.New("pad unlinked or removed during get")

// forwardEvent implements the chain wrapper's default event handling: push
// the event, unchanged, onto every outgoing link of el.
func forwardEvent(ct *cothread.Cothread, el graph.Element, ev graph.Event) error {
	for _, l := range outLinks(el) {
		if err := l.Push(ct, ev); err != nil {
			return err
		}
	}
	return nil
}
