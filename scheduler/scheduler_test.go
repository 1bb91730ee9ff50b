package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowsched/corestream"
	"github.com/flowsched/corestream/element"
	"github.com/flowsched/corestream/graph"
)

func TestAddElementAllocatesEntryAndRejectsDuplicate(t *testing.T) {
	s := New(graph.NewMemClock())
	defer s.queue.Stop()

	el := &graph.MemElement{ElemName: "src"}
	entry, err := s.AddElement(el)
	require.NoError(t, err)
	require.NotNil(t, entry)

	_, err = s.AddElement(el)
	require.Error(t, err)
}

func TestAddElementRejectsOnceCapacityExhausted(t *testing.T) {
	s := New(graph.NewMemClock(), corestream.WithCothreadCapacity(2))
	defer s.queue.Stop()

	_, err := s.AddElement(&graph.MemElement{ElemName: "a"})
	require.NoError(t, err)
	// capacity 2 includes the reserved main cothread at index 0.
	_, err = s.AddElement(&graph.MemElement{ElemName: "b"})
	require.Error(t, err)
}

func TestRemoveElementRejectsWhilePlaying(t *testing.T) {
	s := New(graph.NewMemClock())
	defer s.queue.Stop()

	el := &graph.MemElement{ElemName: "src", St: graph.StatePlaying}
	_, err := s.AddElement(el)
	require.NoError(t, err)

	err = s.RemoveElement(el)
	require.Error(t, err)

	el.St = graph.StatePaused
	require.NoError(t, s.RemoveElement(el))
}

func TestPadLinkBindsBothPadsToSameLink(t *testing.T) {
	s := New(graph.NewMemClock())
	defer s.queue.Stop()

	src := &graph.MemElement{ElemName: "src"}
	sink := &graph.MemElement{ElemName: "sink"}
	srcPad := &graph.MemPad{PadName: "src0", Dir: graph.DirSrc, Owner: src}
	sinkPad := &graph.MemPad{PadName: "sink0", Dir: graph.DirSink, Owner: sink}
	src.PadList = []graph.Pad{srcPad}
	sink.PadList = []graph.Pad{sinkPad}

	_, err := s.AddElement(src)
	require.NoError(t, err)
	_, err = s.AddElement(sink)
	require.NoError(t, err)

	l, err := s.PadLink(srcPad, sinkPad)
	require.NoError(t, err)

	srcLink, ok := element.LinkOf(srcPad)
	require.True(t, ok)
	sinkLink, ok := element.LinkOf(sinkPad)
	require.True(t, ok)
	require.Same(t, l, srcLink)
	require.Same(t, l, sinkLink)
}
