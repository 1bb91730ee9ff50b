package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowsched/corestream/element"
	"github.com/flowsched/corestream/graph"
)

func drive(t *testing.T, s *Scheduler, maxTicks int) {
	t.Helper()
	for i := 0; i < maxTicks; i++ {
		status, err := s.Iterate()
		require.NoError(t, err)
		if status == Stopped {
			return
		}
	}
}

// Scenario 1 (spec §8): single-source, single-sink, chain-based.
func TestSingleSourceSingleSinkChainDeliversBuffersInOrder(t *testing.T) {
	s := New(graph.NewMemClock())
	defer s.queue.Stop()

	var nextTS time.Duration
	src := &graph.MemElement{ElemName: "src", St: graph.StatePlaying}
	srcPad := &graph.MemPad{PadName: "src0", Dir: graph.DirSrc, Owner: src}
	srcPad.Get = func(graph.Pad) (graph.Data, error) {
		b := &graph.MemBuffer{TS: nextTS, TSValid: true}
		nextTS += 10 * time.Millisecond
		return b, nil
	}
	src.PadList = []graph.Pad{srcPad}

	var received []time.Duration
	sink := &graph.MemElement{ElemName: "sink", St: graph.StatePlaying}
	sinkPad := &graph.MemPad{PadName: "sink0", Dir: graph.DirSink, Owner: sink}
	sinkPad.Chain = func(p graph.Pad, d graph.Data) error {
		buf := d.(*graph.MemBuffer)
		received = append(received, buf.TS)
		return nil
	}
	sink.PadList = []graph.Pad{sinkPad}

	_, err := s.AddElement(src)
	require.NoError(t, err)
	_, err = s.AddElement(sink)
	require.NoError(t, err)
	_, err = s.PadLink(srcPad, sinkPad)
	require.NoError(t, err)

	require.NoError(t, s.StateTransition(src, ToPlaying))
	require.NoError(t, s.StateTransition(sink, ToPlaying))

	for i := 0; i < 50 && len(received) < 3; i++ {
		_, err := s.Iterate()
		require.NoError(t, err)
	}

	require.Equal(t, []time.Duration{0, 10 * time.Millisecond, 20 * time.Millisecond}, received)
}

// Scenario 2 (spec §8): a READY→PAUSED transition sets need_discont on
// every link of the element's pads; the first data unit the Sink observes
// after PLAYING is a DISCONT whose time matches the first buffer's
// timestamp, with the buffer itself arriving immediately after.
func TestDiscontSynthesizedAfterPause(t *testing.T) {
	s := New(graph.NewMemClock())
	defer s.queue.Stop()

	src := &graph.MemElement{ElemName: "src", St: graph.StateReady}
	srcPad := &graph.MemPad{PadName: "src0", Dir: graph.DirSrc, Owner: src}
	first := true
	srcPad.Get = func(graph.Pad) (graph.Data, error) {
		if !first {
			return &graph.MemBuffer{TS: 99 * time.Millisecond, TSValid: true}, nil
		}
		first = false
		return &graph.MemBuffer{TS: 5 * time.Millisecond, TSValid: true}, nil
	}
	src.PadList = []graph.Pad{srcPad}

	var gotTypes []string
	var gotTimes []time.Duration
	sink := &graph.MemElement{ElemName: "sink", St: graph.StateReady, Flag: graph.FlagEventAware}
	sinkPad := &graph.MemPad{PadName: "sink0", Dir: graph.DirSink, Owner: sink}
	sinkPad.Chain = func(p graph.Pad, d graph.Data) error {
		if ev, ok := d.(*graph.MemEvent); ok {
			gotTypes = append(gotTypes, "discont")
			gotTimes = append(gotTimes, ev.Time)
		} else {
			buf := d.(*graph.MemBuffer)
			gotTypes = append(gotTypes, "buffer")
			gotTimes = append(gotTimes, buf.TS)
		}
		return nil
	}
	sink.PadList = []graph.Pad{sinkPad}

	_, err := s.AddElement(src)
	require.NoError(t, err)
	_, err = s.AddElement(sink)
	require.NoError(t, err)
	_, err = s.PadLink(srcPad, sinkPad)
	require.NoError(t, err)

	require.NoError(t, s.StateTransition(src, ToPaused))
	require.NoError(t, s.StateTransition(sink, ToPaused))

	src.St = graph.StatePlaying
	sink.St = graph.StatePlaying
	require.NoError(t, s.StateTransition(src, ToPlaying))
	require.NoError(t, s.StateTransition(sink, ToPlaying))

	for i := 0; i < 20 && len(gotTypes) < 2; i++ {
		_, err := s.Iterate()
		require.NoError(t, err)
	}

	require.Equal(t, []string{"discont", "buffer"}, gotTypes)
	require.Equal(t, 5*time.Millisecond, gotTimes[0])
	require.Equal(t, 5*time.Millisecond, gotTimes[1])
}

// Scenario 3 (spec §8): Backpressure. A Src producing faster than its Sink
// drains must have every buffer arrive in order with none lost or
// overwritten; the Src's output is seen waiting in the bufpen between ticks
// until the Sink takes it.
func TestBackpressureBlocksWriterWithoutLoss(t *testing.T) {
	s := New(graph.NewMemClock())
	defer s.queue.Stop()

	const count = 10
	var nextTS time.Duration
	produced := 0
	src := &graph.MemElement{ElemName: "src", St: graph.StatePlaying}
	srcPad := &graph.MemPad{PadName: "src0", Dir: graph.DirSrc, Owner: src}
	srcPad.Get = func(graph.Pad) (graph.Data, error) {
		b := &graph.MemBuffer{TS: nextTS, TSValid: true}
		nextTS += 100 * time.Microsecond
		produced++
		if produced >= count {
			src.St = graph.StatePaused
		}
		return b, nil
	}
	src.PadList = []graph.Pad{srcPad}

	var received []time.Duration
	sink := &graph.MemElement{ElemName: "sink", St: graph.StatePlaying}
	sinkPad := &graph.MemPad{PadName: "sink0", Dir: graph.DirSink, Owner: sink}
	sinkPad.Chain = func(p graph.Pad, d graph.Data) error {
		buf := d.(*graph.MemBuffer)
		received = append(received, buf.TS)
		if len(received) >= count {
			sink.St = graph.StatePaused
		}
		return nil
	}
	sink.PadList = []graph.Pad{sinkPad}

	_, err := s.AddElement(src)
	require.NoError(t, err)
	_, err = s.AddElement(sink)
	require.NoError(t, err)
	l, err := s.PadLink(srcPad, sinkPad)
	require.NoError(t, err)

	require.NoError(t, s.StateTransition(src, ToPlaying))
	require.NoError(t, s.StateTransition(sink, ToPlaying))

	var sawBufpenFull bool
	for i := 0; i < 200 && len(received) < count; i++ {
		status, err := s.Iterate()
		require.NoError(t, err)
		if status == Stopped {
			break
		}
		if l.BufpenFull() {
			sawBufpenFull = true
		}
	}

	require.Len(t, received, count)
	for i, ts := range received {
		require.Equal(t, time.Duration(i)*100*time.Microsecond, ts)
	}
	require.True(t, sawBufpenFull, "expected the src's pushes to pile up in the bufpen while the sink drains")
}

// Scenario 6 (spec §8): clock-wait ordering. The earlier-target waiter
// resumes strictly before the later one.
func TestClockWaitResumesEarliestTargetFirst(t *testing.T) {
	s := New(graph.NewMemClock())
	defer s.queue.Stop()

	clock := s.clock.(*graph.MemClock)

	elA := &graph.MemElement{ElemName: "a"}
	elB := &graph.MemElement{ElemName: "b"}
	entryA, err := s.AddElement(elA)
	require.NoError(t, err)
	entryB, err := s.AddElement(elB)
	require.NoError(t, err)

	var order []string
	var jitterA, jitterB time.Duration

	entryA.Ct.SetFunc(func(int, []any) {
		_, j, err := s.ClockWait(entryA.Ct, entryA, "a", 100*time.Millisecond)
		require.NoError(t, err)
		jitterA = j
		order = append(order, "a")
	}, 0, nil)
	entryB.Ct.SetFunc(func(int, []any) {
		_, j, err := s.ClockWait(entryB.Ct, entryB, "b", 50*time.Millisecond)
		require.NoError(t, err)
		jitterB = j
		order = append(order, "b")
	}, 0, nil)

	require.NoError(t, s.ctx.Switch(entryA.Ct))
	require.NoError(t, s.ctx.Switch(entryB.Ct))

	clock.Set(100 * time.Millisecond)
	for i := 0; i < 10 && len(order) < 2; i++ {
		_, err := s.Iterate()
		require.NoError(t, err)
	}

	require.Equal(t, []string{"b", "a"}, order)
	require.True(t, jitterB >= 0)
	require.Equal(t, 50*time.Millisecond, jitterB)
	require.Equal(t, 0*time.Millisecond, jitterA)
}

// Scenario 5 (spec §8): an element awoken via AwakeAsync from a foreign
// goroutine runs on the scheduler's next Iterate call ahead of elements
// already sitting in schedulePossible.
func TestAwakeAsyncRunsOnNextIterate(t *testing.T) {
	s := New(graph.NewMemClock())
	defer s.queue.Stop()

	el := &graph.MemElement{ElemName: "async", St: graph.StatePlaying}
	entry, err := s.AddElement(el)
	require.NoError(t, err)

	ran := make(chan struct{}, 1)
	entry.Ct.SetFunc(func(int, []any) {
		ran <- struct{}{}
		require.NoError(t, s.Resched(entry))
	}, 0, nil)
	entry.State = element.WaitForPads

	done := make(chan bool, 1)
	go func() {
		done <- s.AwakeAsync(el, 1)
	}()
	require.True(t, <-done)

	status, err := s.Iterate()
	require.NoError(t, err)
	require.Equal(t, Running, status)

	select {
	case <-ran:
	default:
		t.Fatal("expected async-awoken cothread to have run")
	}
}

// Scenario 4 (spec §8): pad_select returns immediately if one of the pads
// already has data; otherwise it sleeps and wakes on the first arrival.
// This test covers the immediate-return case.
func TestPadSelectReturnsFirstDataBearingPad(t *testing.T) {
	s := New(graph.NewMemClock())
	defer s.queue.Stop()

	loopEl := &graph.MemElement{ElemName: "loop", St: graph.StatePlaying}
	padA := &graph.MemPad{PadName: "a", Dir: graph.DirSink, Owner: loopEl}
	padB := &graph.MemPad{PadName: "b", Dir: graph.DirSink, Owner: loopEl}
	loopEl.PadList = []graph.Pad{padA, padB}

	srcA := &graph.MemElement{ElemName: "srcA"}
	srcB := &graph.MemElement{ElemName: "srcB"}
	srcPadA := &graph.MemPad{PadName: "outA", Dir: graph.DirSrc, Owner: srcA}
	srcPadB := &graph.MemPad{PadName: "outB", Dir: graph.DirSrc, Owner: srcB}

	_, err := s.AddElement(loopEl)
	require.NoError(t, err)
	_, err = s.AddElement(srcA)
	require.NoError(t, err)
	_, err = s.AddElement(srcB)
	require.NoError(t, err)

	linkA, err := s.PadLink(srcPadA, padA)
	require.NoError(t, err)
	_, err = s.PadLink(srcPadB, padB)
	require.NoError(t, err)

	entry := s.elements["loop"]
	require.NoError(t, linkA.Push(entry.Ct, &graph.MemBuffer{}))

	p, _, err := s.PadSelect(entry.Ct, []graph.Pad{padA, padB})
	require.NoError(t, err)
	require.Equal(t, "a", p.Name())
}
