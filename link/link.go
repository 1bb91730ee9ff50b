package link

import (
	"errors"
	"sync"

	"github.com/flowsched/corestream"
	"github.com/flowsched/corestream/asyncqueue"
	"github.com/flowsched/corestream/cothread"
	"github.com/flowsched/corestream/graph"
)

var (
	errConcurrentWriters = errors.New("another cothread is already waiting to write this link")
	errBufpenNotEmpty    = errors.New("push observed a non-empty bufpen after the sleep-on-full loop")
)

// LinkState is the scheduler-owned state backing one pad link: the
// single-slot bufpen, its DISCONT-synthesis bookkeeping, and the
// waiting-writer/waiting-reader suspension slots (spec §4.4, invariants
// I1-I4).
type LinkState struct {
	mu sync.Mutex

	src  graph.Pad
	sink graph.Pad

	queue *asyncqueue.Queue

	newDiscont graph.NewDiscontFunc
	unref      graph.Unref
	metrics    *corestream.Metrics
	logger     corestream.Logger

	bufpen      graph.Data
	needDiscont bool

	waitingWriter *cothread.Cothread
	waitingReader *cothread.Cothread

	// selectWaiters holds cothreads blocked in a multi-pad pad_select
	// rather than a plain Pull — distinct from waitingReader because more
	// than one may watch the same link's peer set simultaneously (spec
	// §4.6 "registers the current cothread as waiting_reader on every pad
	// in the set").
	selectWaiters map[*cothread.Cothread]bool

	closed bool
}

// New builds a LinkState joining src (a src-direction pad) to sink (a
// sink-direction pad), driven by queue for cothread suspension/wake-up. A
// nil logger falls back to [corestream.GetLogger]'s package-level default.
func New(src, sink graph.Pad, queue *asyncqueue.Queue, newDiscont graph.NewDiscontFunc, unref graph.Unref, metrics *corestream.Metrics, logger corestream.Logger) *LinkState {
	if logger == nil {
		logger = corestream.GetLogger()
	}
	return &LinkState{
		src:        src,
		sink:       sink,
		queue:      queue,
		newDiscont: newDiscont,
		unref:      unref,
		metrics:    metrics,
		logger:     logger,
	}
}

// Src returns the link's source pad.
func (l *LinkState) Src() graph.Pad { return l.src }

// Sink returns the link's sink pad.
func (l *LinkState) Sink() graph.Pad { return l.sink }

// srcElementName returns the owning element's name for a src pad, or "" if
// the pad has no parent wired up (as in some unit tests' bare pad stubs).
func (l *LinkState) srcElementName() string {
	if l.src == nil {
		return ""
	}
	if el := l.src.Parent(); el != nil {
		return el.Name()
	}
	return ""
}

// Push delivers d to the link, blocking the calling cothread ct while the
// bufpen is already occupied (I1: at most one data unit in flight). Returns
// [corestream.ErrLinkClosed] if the link was unlinked while waiting or
// before the call, propagates [cothread.ErrAbort] if ct is being torn down
// mid-wait, and returns a located [corestream.KindConcurrentAccess] error
// (spec §4.4/§7/I1) if a different cothread is already the waiting writer
// rather than overwriting it.
func (l *LinkState) Push(ct *cothread.Cothread, d graph.Data) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		if l.closed {
			return corestream.ErrLinkClosed
		}
		if l.bufpen == nil {
			break
		}
		if l.waitingWriter != nil && l.waitingWriter != ct {
			err := corestream.New(corestream.KindConcurrentAccess, l.srcElementName(), l.src.Name(), errConcurrentWriters)
			l.logger.Log(corestream.LevelError, "concurrent writer on link", corestream.F("pad", l.src.Name()))
			return err
		}
		l.waitingWriter = ct
		err := l.queue.Sleep(ct, &l.mu)
		l.waitingWriter = nil
		if err != nil {
			return err
		}
	}

	// Defensive invariant check (spec §7 BufpenOverwrite): the loop above
	// only breaks once bufpen is nil, so this should be unreachable under
	// the sleep discipline; raised as a fatal diagnostic rather than
	// silently clobbering a buffer no consumer has seen yet.
	if l.bufpen != nil {
		err := corestream.New(corestream.KindBufpenOverwrite, l.srcElementName(), l.src.Name(), errBufpenNotEmpty)
		l.logger.Log(corestream.LevelError, "bufpen overwrite invariant violated", corestream.F("pad", l.src.Name()))
		return err
	}

	l.bufpen = d

	if l.waitingReader != nil {
		reader := l.waitingReader
		l.waitingReader = nil
		l.queue.Awake(reader, 1)
	}
	l.wakeSelectWaitersLocked()
	return nil
}

// SetNeedDiscont marks the link as owing its reader a synthesised leading
// DISCONT before the next buffer, per spec §4.4/§8 scenario 2: a
// READY→PAUSED state transition sets this on every link of every pad of
// the transitioning element.
func (l *LinkState) SetNeedDiscont() {
	l.mu.Lock()
	l.needDiscont = true
	l.mu.Unlock()
}

// RegisterSelectWaiter adds ct to the set of cothreads watching this link
// as part of a multi-pad pad_select (spec §4.6 pad_select).
func (l *LinkState) RegisterSelectWaiter(ct *cothread.Cothread) {
	l.mu.Lock()
	if l.selectWaiters == nil {
		l.selectWaiters = make(map[*cothread.Cothread]bool)
	}
	l.selectWaiters[ct] = true
	l.mu.Unlock()
}

// UnregisterSelectWaiter removes ct from this link's pad_select watch set.
func (l *LinkState) UnregisterSelectWaiter(ct *cothread.Cothread) {
	l.mu.Lock()
	delete(l.selectWaiters, ct)
	l.mu.Unlock()
}

// wakeSelectWaitersLocked wakes (but does not deregister) every pad_select
// watcher; the caller that actually consumes the data is responsible for
// deregistering from every pad in its set, per spec "on wake ... returns
// the first data-bearing pad". Must be called with l.mu held.
func (l *LinkState) wakeSelectWaitersLocked() {
	for ct := range l.selectWaiters {
		l.queue.Awake(ct, 1)
	}
}

// Pull removes and returns the next data unit from the link, blocking the
// calling cothread ct while the bufpen is empty. See [LinkState.GetBuffer]
// for the variant that synthesises a leading DISCONT before a buffer.
func (l *LinkState) Pull(ct *cothread.Cothread) (graph.Data, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		if l.closed {
			return nil, corestream.ErrLinkClosed
		}
		if l.bufpen != nil {
			break
		}
		l.waitingReader = ct
		err := l.queue.Sleep(ct, &l.mu)
		l.waitingReader = nil
		if err != nil {
			return nil, err
		}
	}

	d := l.bufpen
	l.bufpen = nil

	if l.waitingWriter != nil {
		writer := l.waitingWriter
		l.waitingWriter = nil
		l.queue.Awake(writer, 1)
	}
	return d, nil
}

// GetBuffer pulls the next data unit and, if it is a Buffer while the link
// owes a leading DISCONT (see [LinkState.SetNeedDiscont]), returns a
// synthesised DISCONT event carrying the buffer's timestamp/offset instead,
// leaving the buffer in the bufpen for the next call. needDiscont is
// cleared when a DISCONT event transits or a buffer is handled this way;
// any other event leaves it set (spec §4.4).
func (l *LinkState) GetBuffer(ct *cothread.Cothread) (graph.Data, error) {
	l.mu.Lock()

	for {
		if l.closed {
			l.mu.Unlock()
			return nil, corestream.ErrLinkClosed
		}
		if l.bufpen != nil {
			break
		}
		l.waitingReader = ct
		err := l.queue.Sleep(ct, &l.mu)
		l.waitingReader = nil
		if err != nil {
			l.mu.Unlock()
			return nil, err
		}
	}

	d := l.bufpen
	l.bufpen = nil

	if l.waitingWriter != nil {
		writer := l.waitingWriter
		l.waitingWriter = nil
		l.queue.Awake(writer, 1)
	}

	if ev, ok := d.(graph.Event); ok {
		if ev.Type() == graph.EventDiscont {
			l.needDiscont = false
		}
		l.mu.Unlock()
		return d, nil
	}

	buf, ok := d.(graph.Buffer)
	if !ok {
		l.mu.Unlock()
		return d, nil
	}

	if !l.needDiscont {
		l.mu.Unlock()
		return buf, nil
	}
	l.needDiscont = false
	newDiscont := l.newDiscont
	l.mu.Unlock()

	if newDiscont == nil {
		return buf, nil
	}
	t, tValid := buf.Timestamp()
	off, offValid := buf.Offset()
	discont := newDiscont(tValid, t, offValid, off)
	l.metrics.IncDiscontSynthesis()

	// Stash the buffer back at the head of the bufpen so the next Pull
	// delivers it after the synthesised DISCONT, preserving ordering.
	l.mu.Lock()
	l.pendBuffer(buf)
	l.mu.Unlock()
	return discont, nil
}

// pendBuffer re-queues buf as the next item a reader will see. Since the
// bufpen only holds one slot, this bypasses the normal writer-blocks-on-full
// rule. GetBuffer releases l.mu around the newDiscont call, but no other
// cothread runs in that window (switches happen only at suspension points),
// and a writer woken by GetBuffer re-checks the bufpen in Push's loop and
// waits again rather than overwriting buf. Must be called with l.mu held.
func (l *LinkState) pendBuffer(buf graph.Buffer) {
	l.bufpen = buf
	if l.waitingReader != nil {
		reader := l.waitingReader
		l.waitingReader = nil
		l.queue.Awake(reader, 1)
	}
}

// Unlink tears down the link (spec I4: unlinking wakes any blocked
// writer/reader with an error rather than leaving them suspended forever).
// Any data unit still sitting in the bufpen is released via unref. Unlink
// is idempotent.
func (l *LinkState) Unlink() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	pending := l.bufpen
	l.bufpen = nil
	writer, reader := l.waitingWriter, l.waitingReader
	l.waitingWriter, l.waitingReader = nil, nil
	selectWaiters := l.selectWaiters
	l.selectWaiters = nil
	unref := l.unref
	l.mu.Unlock()

	if pending != nil && unref != nil {
		unref(pending)
	}
	if writer != nil {
		l.queue.Awake(writer, 1)
	}
	if reader != nil {
		l.queue.Awake(reader, 1)
	}
	for ct := range selectWaiters {
		l.queue.Awake(ct, 1)
	}
}

// BufpenFull reports whether the link's single slot currently holds a data
// unit, i.e. whether a reader ("sink" side) or a writer ("src" side) is the
// one that would become runnable next (spec §4.6 can_schedule: "sink if
// bufpen full, src if empty").
func (l *LinkState) BufpenFull() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bufpen != nil
}

// Closed reports whether Unlink has been called.
func (l *LinkState) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
