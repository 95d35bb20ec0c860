package kernel

// RunState is the coarse run/suspend/zombie/finished state of a task.
// spec.md §3 describes these as independent bits ("a bitset, not an
// enum") crossed with a suspension reason; in practice a task is always in
// exactly one of these four states, so RunState models that as an enum and
// SuspendReason separately captures "which predicate, if any, is live" —
// the invariant spec.md §8 tests ("sum over reasons of (is suspended for
// reason) ∈ {0,1}") holds by construction since Reason is a single field.
type RunState uint8

const (
	Running RunState = iota
	Suspended
	Zombie
	Finished
)

// SuspendReason names the one wakeup predicate that is live while a task
// is Suspended (spec.md §3).
type SuspendReason uint8

const (
	NotSuspended SuspendReason = iota
	SuspendRead
	SuspendWrite
	SuspendPoll
	SuspendWaitpid
	SuspendNanosleep
	SuspendSigsuspend
	SuspendFutex
)

// ItimerSlot is one of a task's three interval-timer slots (spec.md §3,
// §4.7).
type ItimerSlot struct {
	// Value is the next fire time, in kernel.NowUS units.
	Value uint64
	// Interval is the rearm period in microseconds; 0 means one-shot.
	Interval uint64
}

// Task is one execution context: a simulated process or thread (spec.md
// §3). The resources a clone flag can share (VM, fd table, signal-handler
// table) are pointers, so sharing is "same pointer" and exclusivity is
// "distinct copy" — see Clone in clone.go. Cwd and the signal masks are
// plain values that every clone copies; they are never shared.
type Task struct {
	PID    int32
	UID    uint32
	Parent *Task

	Regs  *Registers
	VM    *VirtualMemory
	Files *FDTable
	Cwd   string

	// SigActs is the sigaction table: handler address, flags, mask per
	// signal. Shared across tasks cloned with CLONE_SIGHAND (mandatory
	// for every clone, per spec.md §4.4), so it also serves as the
	// thread-group key for exit_group (GroupKey below).
	SigActs *SigActionTable

	// Blocked, Pending, and Backup are this task's own signal masks
	// (spec.md §3: "per context, three 64-bit masks"). Unlike the
	// sigaction table these are never shared by a clone flag — each
	// thread has its own.
	Blocked uint64
	Pending uint64
	Backup  uint64

	// PendingFrames is the stack of in-flight handler invocations awaiting
	// a matching sigreturn (spec.md §4.5). Almost always depth 0 or 1;
	// modeled as a stack because a handler running with SA_NODEFER can
	// itself be interrupted by another delivery of the same signal.
	PendingFrames []SignalFrame

	// onFDReady, onPollReady, and onWaitpidReady are set by the fileops
	// and clone handlers in pkg/sentry/syscalls/linux at the moment they
	// suspend a task, so Kernel.ProcessEvents can hand control back into
	// the handler that knows how to finish the syscall (perform the
	// buffered transfer, fill revents, write *status) without pkg/kernel
	// itself depending on those packages.
	onFDReady      readyFunc
	onPollReady    readyFunc
	onWaitpidReady func(self, child *Task)

	State  RunState
	Reason SuspendReason

	// Wakeup predicates. Only the field(s) matching Reason are
	// meaningful at any time (spec.md §3 "Wakeup predicates").
	WakeupFD            int32
	WakeupEvents         uint32
	WakeupPID            int32
	WakeupWaitOptions    uint32
	WakeupTimeUS         uint64
	WakeupFutexAddr      uint32
	WakeupFutexBitset    uint32
	WakeupFutexSleepSeq  uint64

	// TLS (spec.md §3).
	TLSBase  uint32
	TLSLimit uint32

	SetChildTID   uint32
	ClearChildTID uint32
	RobustListHead uint32

	Timers [3]ItimerSlot

	// Quantum is the scheduling slice set by set_instruction_slice
	// (spec.md §4.8), consumed by an external decoder loop; within the
	// core only disk_io changes it, deducting its fixed I/O cost.
	Quantum uint64

	ExitCode   int32
	ExitSignal int32

	// There is no separate thread-group field: the SigActs pointer is the
	// group key for exit_group (see GroupKey), per spec.md §4.4
	// ("exit_group terminates all contexts sharing the signal-handler
	// table").
}

// GroupKey returns the pointer identity used to decide thread-group
// membership for exit_group: tasks sharing a *SigActionTable (i.e.
// CLONE_SIGHAND) are in the same group (spec.md §4.4: "exit_group
// terminates all contexts sharing the signal-handler table").
func (t *Task) GroupKey() *SigActionTable { return t.SigActs }

// IsSuspendedFor reports whether the task is currently suspended for the
// given reason — the single-reason invariant made queryable.
func (t *Task) IsSuspendedFor(r SuspendReason) bool {
	return t.State == Suspended && t.Reason == r
}

// Suspend marks the task suspended for reason r. It sets only State and
// Reason; the wakeup predicate fields are left as the caller set them,
// and those not matching Reason are ignored. Per spec.md §9's
// "cancel-any-pending-host-wait" re-architecture note, mutating a task's
// wakeup predicate always goes through here or through Resume, so a
// single choke point exists for hooking host-wait cancellation.
func (t *Task) Suspend(r SuspendReason) {
	t.State = Suspended
	t.Reason = r
}

// Resume clears suspension and returns the task to Running.
func (t *Task) Resume() {
	t.State = Running
	t.Reason = NotSuspended
}

// OnFDReady installs the callback ProcessEvents invokes once a
// read/write suspension's fd becomes ready.
func (t *Task) OnFDReady(fn func(*Task)) { t.onFDReady = fn }

// OnPollReady installs the callback ProcessEvents invokes once a poll(2)
// suspension has a satisfied fd.
func (t *Task) OnPollReady(fn func(*Task)) { t.onPollReady = fn }

// OnWaitpidReady installs the callback ProcessEvents invokes once a
// waitpid suspension finds a matching zombie, before the zombie is
// removed from the kernel's task list.
func (t *Task) OnWaitpidReady(fn func(self, child *Task)) { t.onWaitpidReady = fn }

// CancelWait is the "cancel-any-pending-host-wait(ctx)" capability spec.md
// §9 calls for. Raise invokes it when a signal becomes pending for this
// task; futex wakes and waitpid completions do not call it. In this
// single-threaded cooperative scheduler there is no
// real host-level blocking wait to interrupt — the event tick re-evaluates
// every suspended task on its own cadence — so this is a no-op hook kept
// for the shape of the design; a decoder that parks an OS thread per guest
// context would implement it to unblock that thread's poll/select call.
func (t *Task) CancelWait() {}
