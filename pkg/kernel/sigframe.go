package kernel

import "github.com/multi2sim/m2sim-core/pkg/abi/linux"

// SignalFrame is the snapshot saved when a handler is invoked, and
// restored by Sigreturn (spec.md §4.5: "sigreturn unwinds
// to the pre-handler snapshot"). It lives entirely in the simulator's own
// memory rather than being marshalled into guest memory byte-for-byte,
// since nothing in the guest program ever parses this layout directly —
// sigreturn is always reached via the restorer trampoline the core itself
// installs, not by guest code inspecting the frame (spec.md §4.5 leaves the
// wire layout of the trampoline unspecified; only the save/restore
// semantics are load-bearing).
type SignalFrame struct {
	Sig       int
	SavedMask uint64
	SavedRegs Registers
}

// pushSignalFrame saves the task's current registers and mask, applies
// act's mask to the blocked set for the duration of the handler (plus the
// signal itself unless SA_NODEFER is set), and redirects execution to the
// handler (spec.md §4.5).
func (t *Task) pushSignalFrame(sig int, act linux.SigAction) {
	// On the sigsuspend exit path, t.Blocked still holds the temporary
	// mask sigsuspend installed (spec.md §4.5's pnewset), not the mask
	// from before sigsuspend was called — that one is parked in Backup.
	// Restoring to t.Blocked here would make sigreturn reinstall the
	// temporary mask instead of unwinding to it, violating spec.md §8's
	// "after sigsuspend completes, blocked == backup" invariant.
	savedMask := t.Blocked
	if t.IsSuspendedFor(SuspendSigsuspend) {
		savedMask = t.Backup
	}
	frame := SignalFrame{
		Sig:       sig,
		SavedMask: savedMask,
		SavedRegs: *t.Regs,
	}
	t.PendingFrames = append(t.PendingFrames, frame)

	newBlocked := t.Blocked | act.Mask
	if act.Flags&linux.SA_NODEFER == 0 {
		newBlocked |= sigbit(sig)
	}
	t.Blocked = newBlocked

	if act.Flags&linux.SA_RESETHAND != 0 {
		t.SigActs.SetAction(sig, linux.SigAction{HandlerAddr: linux.SigHandlerDefault})
	}

	t.Regs.EIP = act.HandlerAddr
}

// PopSignalFrame returns the most recently pushed, not-yet-returned-from
// frame, for Sigreturn to consume, or nil if none is pending (a guest
// calling sigreturn with no handler in flight, per spec.md §4.5's
// "sigreturn with no pending handler" edge case).
func (t *Task) PopSignalFrame() *SignalFrame {
	n := len(t.PendingFrames)
	if n == 0 {
		return nil
	}
	frame := t.PendingFrames[n-1]
	t.PendingFrames = t.PendingFrames[:n-1]
	return &frame
}
