package element

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowsched/corestream"
	"github.com/flowsched/corestream/asyncqueue"
	"github.com/flowsched/corestream/cothread"
	"github.com/flowsched/corestream/graph"
	"github.com/flowsched/corestream/link"
)

type fakeScheduler struct {
	reschedCount int
	stopAfter    int

	erroredEl    graph.Element
	erroredCause error
}

func (f *fakeScheduler) Resched(entry *Entry) error {
	f.reschedCount++
	if f.stopAfter > 0 && f.reschedCount >= f.stopAfter {
		entry.El.(*graph.MemElement).St = graph.StatePaused
	}
	return nil
}

func (f *fakeScheduler) Error(el graph.Element, cause error) {
	f.erroredEl = el
	f.erroredCause = cause
}

func newTestQueue(t *testing.T) (*asyncqueue.Queue, *cothread.Context) {
	t.Helper()
	var ctx *cothread.Context
	q := asyncqueue.NewQueue(func() *cothread.Context {
		ctx = cothread.NewContext(4)
		return ctx
	})
	q.Start()
	return q, ctx
}

func TestLoopWrapperRunsUntilNotPlaying(t *testing.T) {
	q, ctx := newTestQueue(t)
	defer q.Stop()

	var calls int
	el := &graph.MemElement{ElemName: "src", St: graph.StatePlaying}
	el.Loop = func(graph.Element) { calls++ }

	ct, err := ctx.Create()
	require.NoError(t, err)
	entry := NewEntry(el, ct)
	sched := &fakeScheduler{stopAfter: 3}

	ct.SetFunc(LoopWrapper(entry, sched), 0, nil)
	q.ChangeState(ct, asyncqueue.Running, nil)

	for i := 0; i < 10; i++ {
		ran, err := q.Iterate()
		require.NoError(t, err)
		if !ran {
			break
		}
	}

	require.Equal(t, 3, calls)
	require.Equal(t, graph.StatePaused, el.State())
}

func TestChainWrapperDeliversBuffersInOrder(t *testing.T) {
	q, ctx := newTestQueue(t)
	defer q.Stop()

	el := &graph.MemElement{ElemName: "sink", St: graph.StatePlaying}
	var got []string
	pad := &graph.MemPad{PadName: "sink0", Dir: graph.DirSink, Owner: el}
	pad.Chain = func(p graph.Pad, d graph.Data) error {
		buf := d.(*graph.MemBuffer)
		got = append(got, string(buf.Payload))
		return nil
	}
	el.PadList = []graph.Pad{pad}

	l := link.New(&graph.MemPad{PadName: "src0", Dir: graph.DirSrc}, pad, q, graph.NewDiscont(), graph.NewUnref(), nil, nil)
	BindLink(pad, l)

	ct, err := ctx.Create()
	require.NoError(t, err)
	entry := NewEntry(el, ct)
	sched := &fakeScheduler{}

	ct.SetFunc(ChainWrapper(entry, pad, sched), 0, nil)
	q.ChangeState(ct, asyncqueue.Running, nil)

	writer, err := ctx.Create()
	require.NoError(t, err)
	writer.SetFunc(func(int, []any) {
		require.NoError(t, l.Push(writer, &graph.MemBuffer{Payload: []byte("a")}))
		require.NoError(t, l.Push(writer, &graph.MemBuffer{Payload: []byte("b")}))
		el.St = graph.StatePaused
	}, 0, nil)
	q.ChangeState(writer, asyncqueue.Running, nil)

	for i := 0; i < 20; i++ {
		ran, err := q.Iterate()
		require.NoError(t, err)
		if !ran {
			break
		}
	}

	require.Equal(t, []string{"a", "b"}, got)
}

func TestGetWrapperRecordsMisbehaviorWhenPadUnlinkedDuringGet(t *testing.T) {
	q, ctx := newTestQueue(t)
	defer q.Stop()

	el := &graph.MemElement{ElemName: "src", St: graph.StatePlaying}
	pad := &graph.MemPad{PadName: "src0", Dir: graph.DirSrc, Owner: el}
	pad.Get = func(p graph.Pad) (graph.Data, error) {
		// Simulate the pad being unlinked during the get call.
		*p.SchedPrivate() = nil
		return &graph.MemBuffer{}, nil
	}
	el.PadList = []graph.Pad{pad}

	sink := &graph.MemPad{PadName: "sink0", Dir: graph.DirSink}
	l := link.New(pad, sink, q, graph.NewDiscont(), graph.NewUnref(), nil, nil)
	BindLink(pad, l)

	ct, err := ctx.Create()
	require.NoError(t, err)
	entry := NewEntry(el, ct)
	sched := &fakeScheduler{}

	var ranToCompletion bool
	ct.SetFunc(func(argc int, argv []any) {
		GetWrapper(entry, pad, sched)(argc, argv)
		ranToCompletion = true
	}, 0, nil)
	q.ChangeState(ct, asyncqueue.Running, nil)

	_, err = q.Iterate()
	require.NoError(t, err)
	require.True(t, ranToCompletion)
	require.True(t, ct.Dead())

	require.Same(t, el, sched.erroredEl, "unlinked-during-get must report the misbehavior to the scheduler, not swallow it")
	require.True(t, errors.Is(sched.erroredCause, corestream.ErrElementMisbehavior))
}
