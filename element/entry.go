package element

import (
	"github.com/flowsched/corestream"
	"github.com/flowsched/corestream/cothread"
	"github.com/flowsched/corestream/graph"
	"github.com/flowsched/corestream/link"
)

// WaitState is the per-element-cothread state the scheduler's runnability
// predicate consults (spec §4.6 state machine).
type WaitState int

const (
	// WaitForNothing means the cothread is ready to run the next time it
	// is picked; entered when the element is brought to PLAYING, after a
	// loop function returns, and when the scheduler wakes the cothread
	// outside a pad operation (clock-wait expiry, Yield, Interrupt,
	// AwakeAsync).
	WaitForNothing WaitState = iota
	// WaitForPads means the cothread handed control back after a chain or
	// get wrapper's pull/push, or from a clock wait, and is only picked
	// again through a link entry whose bufpen state lets that side
	// proceed, or by the scheduler waking it as above.
	WaitForPads
)

func (s WaitState) String() string {
	if s == WaitForPads {
		return "WAIT_FOR_PADS"
	}
	return "WAIT_FOR_NOTHING"
}

// Scheduler is the one hook a wrapper body needs from its owning C6
// scheduler: yield control back to the scheduler's main cothread so it can
// pick the next piece of work. Implemented by package scheduler; kept as a
// narrow interface here to avoid an import cycle.
type Scheduler interface {
	// Resched hands control back to the scheduler, recording the calling
	// entry's current WaitState for the runnability predicate. It
	// returns [cothread.ErrAbort] if the element's cothread is being torn
	// down and must unwind.
	Resched(entry *Entry) error

	// Error reports cause as the fatal reason el's wrapper body is ending
	// early, marking the graph as errored (spec §7 "Signalled on the bus;
	// scheduler marks graph errored"). Never swallowed by a wrapper.
	Error(el graph.Element, cause error)
}

// Entry is the scheduler's bookkeeping for one PLAYING element: its
// cothread, its collaborator handle, and the wait-state the policy reads.
type Entry struct {
	El    graph.Element
	Ct    *cothread.Cothread
	State WaitState
}

// NewEntry builds an Entry for el, bound to cothread ct.
func NewEntry(el graph.Element, ct *cothread.Cothread) *Entry {
	return &Entry{El: el, Ct: ct, State: WaitForNothing}
}

// LinkOf returns the LinkState installed in p's scheduler-private slot, if
// any (spec §6 pad_sched_private_slot — the core's only per-pad storage).
func LinkOf(p graph.Pad) (*link.LinkState, bool) {
	slot := p.SchedPrivate()
	l, ok := (*slot).(*link.LinkState)
	return l, ok
}

// BindLink installs l into p's scheduler-private slot.
func BindLink(p graph.Pad, l *link.LinkState) {
	*p.SchedPrivate() = l
}

// outLinks returns the LinkStates of every src pad of el that carries one,
// used by the chain wrapper's default event-forwarding behaviour.
func outLinks(el graph.Element) []*link.LinkState {
	var out []*link.LinkState
	for _, p := range el.Pads() {
		if p.Direction() != graph.DirSrc {
			continue
		}
		if l, ok := LinkOf(p); ok {
			out = append(out, l)
		}
	}
	return out
}

func playing(el graph.Element) bool { return el.State() == graph.StatePlaying }

// misbehavior builds a located ElementMisbehavior error for el.
func misbehavior(el graph.Element, pad string, cause error) error {
	return corestream.New(corestream.KindElementMisbehavior, el.Name(), pad, cause)
}
