package kernel

import (
	"sync"

	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
)

// SigActionTable is the 64-entry sigaction table spec.md §3 assigns to a
// signal state, shared across every task cloned with CLONE_SIGHAND (which
// spec.md §4.4 makes mandatory for all clone(2) calls).
type SigActionTable struct {
	mu      sync.Mutex
	actions [linux.NumSignals]linux.SigAction
	sharers int
}

// NewSigActionTable returns a table of all-default actions.
func NewSigActionTable() *SigActionTable {
	return &SigActionTable{sharers: 1}
}

// Fork returns either the same table (share=true) or an independent copy
// (share=false), per spec.md §4.4's clone-flag-driven sharing rule. Since
// CLONE_SIGHAND is mandatory (spec.md GLOSSARY), share is always true in
// the current core, but the copy path exists because §4.4 specifies
// sharing as flag-driven, not hardwired.
func (a *SigActionTable) Fork(share bool) *SigActionTable {
	a.mu.Lock()
	defer a.mu.Unlock()
	if share {
		a.sharers++
		return a
	}
	clone := &SigActionTable{sharers: 1}
	clone.actions = a.actions
	return clone
}

// Release decrements the share count; the caller tears down group-wide
// state (exit_group) when this returns true.
func (a *SigActionTable) Release() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sharers--
	return a.sharers <= 0
}

// validSignal checks sig is in [1,64] per spec.md §4.5's rt_sigaction
// range check.
func validSignal(sig int) bool { return sig >= 1 && sig <= linux.NumSignals }

// SetAction installs act at slot sig-1 and returns the action it
// replaced, per spec.md §4.5.
func (a *SigActionTable) SetAction(sig int, act linux.SigAction) (linux.SigAction, error) {
	if !validSignal(sig) {
		return linux.SigAction{}, linux.EINVAL
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.actions[sig-1]
	a.actions[sig-1] = act
	return prev, nil
}

// Action returns the installed action for sig.
func (a *SigActionTable) Action(sig int) (linux.SigAction, error) {
	if !validSignal(sig) {
		return linux.SigAction{}, linux.EINVAL
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.actions[sig-1], nil
}

func sigbit(sig int) uint64 { return 1 << uint(sig-1) }

// SetSigmask applies a SIG_BLOCK/SIG_UNBLOCK/SIG_SETMASK update (shared by
// both sigprocmask and rt_sigprocmask, per the SUPPLEMENTED FEATURES note
// in SPEC_FULL.md §10) and returns the mask that was in effect before the
// update.
func (t *Task) SetSigmask(how int, mask uint64) (old uint64, err error) {
	old = t.Blocked
	switch how {
	case linux.SIG_BLOCK:
		t.Blocked |= mask
	case linux.SIG_UNBLOCK:
		t.Blocked &^= mask
	case linux.SIG_SETMASK:
		t.Blocked = mask
	default:
		return 0, linux.EINVAL
	}
	return old, nil
}

// Suspend for sigsuspend: back up the current mask, install newMask, and
// suspend the task (spec.md §4.5 rt_sigsuspend).
func (t *Task) SigSuspend(newMask uint64) {
	t.Backup = t.Blocked
	t.Blocked = newMask
	t.Suspend(SuspendSigsuspend)
}

// Sigreturn restores the backed-up mask after a handler runs to
// completion, per spec.md §4.5 ("sigreturn unwinds to the pre-handler
// snapshot") and the invariant in spec.md §8 ("after sigsuspend completes,
// blocked == backup").
func (t *Task) Sigreturn(frame *SignalFrame) {
	t.Blocked = frame.SavedMask
	t.Regs.EAX = frame.SavedRegs.EAX
	t.Regs.EBX = frame.SavedRegs.EBX
	t.Regs.ECX = frame.SavedRegs.ECX
	t.Regs.EDX = frame.SavedRegs.EDX
	t.Regs.ESI = frame.SavedRegs.ESI
	t.Regs.EDI = frame.SavedRegs.EDI
	t.Regs.EBP = frame.SavedRegs.EBP
	t.Regs.ESP = frame.SavedRegs.ESP
	t.Regs.EIP = frame.SavedRegs.EIP
	t.Regs.EFLAGS = frame.SavedRegs.EFLAGS
}

// Raise adds sig to the pending mask. kill/tgkill both funnel through
// this, then cancel any suspension so the next event tick re-evaluates
// delivery (spec.md §4.5).
func (t *Task) Raise(sig int) error {
	if !validSignal(sig) {
		return linux.EINVAL
	}
	t.Pending |= sigbit(sig)
	t.CancelWait()
	return nil
}

// deliverable returns the set of signals that are pending and not
// blocked (spec.md §3 invariant: "a signal is deliverable when it is
// pending ∧ ¬blocked").
func (t *Task) deliverable() uint64 {
	return t.Pending &^ t.Blocked
}

// lowestSet returns the number (1-64) of the lowest set bit in mask, or 0
// if mask is zero.
func lowestSet(mask uint64) int {
	for i := 0; i < linux.NumSignals; i++ {
		if mask&(1<<uint(i)) != 0 {
			return i + 1
		}
	}
	return 0
}

// SignalAction classifies what DeliverSignals should do with one pending,
// unblocked signal.
type SignalAction int

const (
	ActionTerminate SignalAction = iota
	ActionIgnore
	ActionHandle
)

func classify(act linux.SigAction) SignalAction {
	switch act.HandlerAddr {
	case linux.SigHandlerDefault:
		return ActionTerminate
	case linux.SigHandlerIgnore:
		return ActionIgnore
	default:
		return ActionHandle
	}
}

// DeliverSignals runs one round of signal delivery for t, per spec.md §4.5
// and the event-tick description in §5: for each pending∧¬blocked signal,
// terminate (default), clear pending (ignore), or push a signal frame and
// jump to the handler. It delivers at most one signal per call — the
// event tick calls it repeatedly until deliverable() is empty or the task
// leaves Running/Suspended state. A handler invocation saves its frame on
// t.PendingFrames, not in guest memory.
func (t *Task) DeliverSignals() (acted bool, terminated bool) {
	mask := t.deliverable()
	if mask == 0 {
		return false, false
	}
	sig := lowestSet(mask)
	act, err := t.SigActs.Action(sig)
	if err != nil {
		return false, false
	}
	t.Pending &^= sigbit(sig)

	switch classify(act) {
	case ActionIgnore:
		return true, false
	case ActionTerminate:
		t.ExitSignal = int32(sig)
		t.State = Zombie
		return true, true
	case ActionHandle:
		t.pushSignalFrame(sig, act)
		return true, false
	}
	return false, false
}
