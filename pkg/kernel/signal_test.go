package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
)

// TestDeliverablePendingNotBlocked pins spec.md §3's invariant: a signal
// is deliverable exactly when it is pending and not blocked.
func TestDeliverablePendingNotBlocked(t *testing.T) {
	tsk := &Task{SigActs: NewSigActionTable()}

	require.NoError(t, tsk.Raise(10))
	require.Equal(t, sigbit(10), tsk.deliverable())

	tsk.Blocked = sigbit(10)
	require.Equal(t, uint64(0), tsk.deliverable(), "blocked signal is not deliverable")

	_, err := tsk.SetSigmask(linux.SIG_UNBLOCK, sigbit(10))
	require.NoError(t, err)
	require.Equal(t, sigbit(10), tsk.deliverable(), "unblocking makes it deliverable again")
}

// TestSigsuspendRestoresMask pins spec.md §8's "after sigsuspend
// completes, blocked == backup" invariant by driving the real delivery
// path: raise a signal, let the event tick's DeliverSignals push a
// handler frame, then sigreturn out of it — rather than hand-assembling
// the frame, which would hide a bug in what pushSignalFrame itself saves.
func TestSigsuspendRestoresMask(t *testing.T) {
	k := newTestKernel(t)
	tsk := &Task{SigActs: NewSigActionTable(), Regs: &Registers{}}
	tsk.Blocked = sigbit(2)

	const sig = 5
	_, err := tsk.SigActs.SetAction(sig, linux.SigAction{HandlerAddr: 0x08048000})
	require.NoError(t, err)

	// Installing pnewset=0 unblocks sig for the duration of the suspend,
	// matching rt_sigsuspend's contract (spec.md §4.5).
	tsk.SigSuspend(0)
	require.Equal(t, sigbit(2), tsk.Backup)
	require.True(t, tsk.IsSuspendedFor(SuspendSigsuspend))

	require.NoError(t, tsk.Raise(sig))
	k.deliverPendingSignals(tsk)

	require.Equal(t, Running, tsk.State, "delivering a handler resumes the sigsuspend-suspended task")
	require.Equal(t, uint32(0x08048000), tsk.Regs.EIP, "execution redirected to the handler")

	frame := tsk.PopSignalFrame()
	require.NotNil(t, frame)
	tsk.Sigreturn(frame)
	require.Equal(t, tsk.Backup, tsk.Blocked, "sigreturn must restore the pre-suspend mask, not the temporary pnewset mask")
}

// TestRaiseRejectsOutOfRangeSignal pins spec.md §4.5's range check.
func TestRaiseRejectsOutOfRangeSignal(t *testing.T) {
	tsk := &Task{SigActs: NewSigActionTable()}
	require.Equal(t, linux.EINVAL, tsk.Raise(0))
	require.Equal(t, linux.EINVAL, tsk.Raise(65))
}
