package cothread_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowsched/corestream/cothread"
)

func TestCreateDestroyRoundTrip(t *testing.T) {
	ctx := cothread.NewContext(4)
	before := ctx.Current()
	require.Equal(t, 0, before.Index())

	ct, err := ctx.Create()
	require.NoError(t, err)
	require.False(t, ct.Started())

	ct.SetFunc(func(argc int, argv []any) {}, 0, nil)
	require.NoError(t, ctx.Switch(ct))
	require.Equal(t, ctx.Main(), ctx.Current())

	require.NoError(t, ctx.Destroy(ct))
}

func TestCapacityExceeded(t *testing.T) {
	ctx := cothread.NewContext(2) // index 0 is main, leaving one free slot
	_, err := ctx.Create()
	require.NoError(t, err)

	_, err = ctx.Create()
	require.Error(t, err)
	require.True(t, errors.Is(err, cothread.ErrCapacityExceeded))
}

func TestSwitchCompletionReturnsControlToMain(t *testing.T) {
	ctx := cothread.NewContext(4)
	ct, err := ctx.Create()
	require.NoError(t, err)

	runs := 0
	ct.SetFunc(func(argc int, argv []any) {
		runs++
	}, 0, nil)

	require.NoError(t, ctx.Switch(ct))
	require.Equal(t, 1, runs)
	require.True(t, ct.Dead())
	require.Equal(t, ctx.Main(), ctx.Current())

	// Recycling: SetFunc after completion rebinds the slot for reuse.
	ct.SetFunc(func(argc int, argv []any) { runs++ }, 0, nil)
	require.NoError(t, ctx.Switch(ct))
	require.Equal(t, 2, runs)
}

func TestSwitchToSelfIsNoOp(t *testing.T) {
	ctx := cothread.NewContext(2)
	var diagMsgs []string
	ctx.SetDiagnostic(func(msg string) { diagMsgs = append(diagMsgs, msg) })

	require.NoError(t, ctx.Switch(ctx.Main()))
	require.Len(t, diagMsgs, 1)
}

func TestDestroyCurrentIsRejected(t *testing.T) {
	ctx := cothread.NewContext(2)
	err := ctx.Destroy(ctx.Main())
	require.ErrorIs(t, err, cothread.ErrNotCurrent)
}

func TestDestroyAbortsSuspendedCothread(t *testing.T) {
	ctx := cothread.NewContext(4)
	ct, err := ctx.Create()
	require.NoError(t, err)

	var sawAbort bool
	ct.SetFunc(func(argc int, argv []any) {
		// Suspend by switching back to main; when resumed again, Switch
		// must report ErrAbort if this cothread is being destroyed.
		if err := ctx.Switch(ctx.Main()); err != nil {
			sawAbort = errors.Is(err, cothread.ErrAbort)
			return
		}
	}, 0, nil)

	require.NoError(t, ctx.Switch(ct)) // runs until it suspends
	require.False(t, ct.Dead())

	require.NoError(t, ctx.Destroy(ct))
	require.True(t, sawAbort)
	require.True(t, ct.Dead())
}
