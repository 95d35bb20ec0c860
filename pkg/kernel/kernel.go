package kernel

import (
	"github.com/sirupsen/logrus"

	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
	"github.com/multi2sim/m2sim-core/pkg/config"
	"github.com/multi2sim/m2sim-core/pkg/sentry/fsimpl/host"
)

// Kernel is the global state spec.md §3 describes: "monotonic simulator
// time now_us; list of all contexts; suspended list; futex wake counter
// futex_sleep_count; per-syscall frequency counters". It is always one
// instance per simulator run — the §9 Open Question note that the
// source's futex_sleep_count global "breaks" across multiple simulator
// instances is resolved here by hanging it off Kernel instead.
type Kernel struct {
	Log *logrus.Entry
	Cfg config.KernelConfig

	// NowUS is the monotonic simulator clock, in microseconds.
	NowUS uint64

	tasks  []*Task
	nextPID int32

	futexSerial uint64

	// SyscallCounts tallies invocations per syscall number, per spec.md
	// §3's "per-syscall frequency counters".
	SyscallCounts map[uint32]uint64

	Disk DiskIO
}

// DiskIO is the minimal surface pkg/kernel needs from pkg/disk, kept as an
// interface so kernel tests can substitute a fake without touching a real
// host file (grounded on the pkg/disk.Disk concrete type as the production
// implementation).
type DiskIO interface {
	BlockSize() int
	Owner(block int) uint32
	IO(op int, callerUID uint32, block int, offset, nbytes int, data []byte) error
}

// New creates an empty kernel with no tasks.
func New(cfg config.KernelConfig, log *logrus.Entry, disk DiskIO) *Kernel {
	return &Kernel{
		Cfg:           cfg,
		Log:           log,
		nextPID:       1,
		SyscallCounts: make(map[uint32]uint64),
		Disk:          disk,
	}
}

func (k *Kernel) nextFutexSerial() uint64 {
	k.futexSerial++
	return k.futexSerial
}

// NewTask creates the first task of a fresh process: its own VM, fd table,
// and sigaction table, none shared with anything.
func (k *Kernel) NewTask(uid uint32, brkBase uint32) *Task {
	t := &Task{
		PID:     k.nextPID,
		UID:     uid,
		Regs:    &Registers{},
		VM:      NewVirtualMemory(brkBase),
		Files:   NewFDTable(),
		SigActs: NewSigActionTable(),
		Quantum: k.Cfg.DefaultQuantum,
	}
	k.nextPID++
	k.tasks = append(k.tasks, t)
	return t
}

// Tasks returns every live task, for test inspection and debug listing.
func (k *Kernel) Tasks() []*Task { return append([]*Task(nil), k.tasks...) }

// TaskByPID looks up a task by pid among tasks not yet Finished.
func (k *Kernel) TaskByPID(pid int32) *Task {
	for _, t := range k.tasks {
		if t.PID == pid && t.State != Finished {
			return t
		}
	}
	return nil
}

// removeTask drops a Finished task from the live list. Its only caller is
// waitpidWakeup, after a suspended parent reaps the child — matching
// spec.md §3's "destroyed only after reaping".
func (k *Kernel) removeTask(pid int32) {
	for i, t := range k.tasks {
		if t.PID == pid {
			k.tasks = append(k.tasks[:i], k.tasks[i+1:]...)
			return
		}
	}
}

// CountSyscall increments the per-number frequency counter (spec.md §3).
func (k *Kernel) CountSyscall(num uint32) {
	k.SyscallCounts[num]++
}

// Tick advances NowUS by deltaUS and runs one event-processing pass,
// matching spec.md §5's event-tick description: "a recurring event tick
// re-evaluates every suspended context." Idempotent when nothing has
// changed, per spec.md §5 "event ticks are idempotent".
func (k *Kernel) Tick(deltaUS uint64) {
	k.NowUS += deltaUS
	k.ProcessEvents()
}

// ProcessEvents re-evaluates every suspended task's wakeup predicate once,
// per spec.md §5. Call it directly (deltaUS=0) after an action that might
// have made a wakeup condition newly true — e.g. a write that filled a
// pipe another task is blocked reading, or a signal raised against
// another task — without advancing the clock.
func (k *Kernel) ProcessEvents() {
	for _, t := range k.tasks {
		if t.State != Suspended {
			k.deliverPendingSignals(t)
			continue
		}
		switch t.Reason {
		case SuspendRead, SuspendWrite:
			k.pollFDWakeup(t)
		case SuspendPoll:
			k.pollMultiWakeup(t)
		case SuspendWaitpid:
			k.waitpidWakeup(t)
		case SuspendNanosleep:
			if k.NowUS >= t.WakeupTimeUS {
				t.Resume()
				t.Regs.SetReturn(0)
			}
		case SuspendFutex:
			// Futex wakeups happen synchronously inside FutexWake /
			// FutexWakeOp / FutexCmpRequeue by calling Resume directly;
			// nothing to poll here.
		case SuspendSigsuspend:
			k.deliverPendingSignals(t)
		}
		if t.State == Suspended {
			continue
		}
		k.deliverPendingSignals(t)
	}
	k.rearmTimers()
}

// deliverPendingSignals runs DeliverSignals until no more signals are
// deliverable or the task leaves a runnable state, per spec.md §5's
// sigsuspend tick description ("if any pending∧¬blocked signal exists,
// deliver it").
func (k *Kernel) deliverPendingSignals(t *Task) {
	for t.State == Running || t.State == Suspended {
		acted, terminated := t.DeliverSignals()
		if !acted {
			return
		}
		if terminated {
			k.onExit(t)
			return
		}
		if t.State == Suspended && t.Reason == SuspendSigsuspend {
			t.Resume()
		}
	}
}

// rearmTimers advances each task's interval timers and fires expired
// ones, per spec.md §4.7: "the event tick re-arms fired timers by adding
// interval to value when interval != 0".
func (k *Kernel) rearmTimers() {
	for _, t := range k.tasks {
		for i := range t.Timers {
			slot := &t.Timers[i]
			if slot.Value == 0 || k.NowUS < slot.Value {
				continue
			}
			sig := itimerSignal(i)
			t.Raise(sig)
			if slot.Interval != 0 {
				slot.Value += slot.Interval
			} else {
				slot.Value = 0
			}
		}
	}
}

func itimerSignal(slot int) int {
	switch slot {
	case linux.ITIMER_REAL:
		return SIGALRM
	case linux.ITIMER_VIRTUAL:
		return SIGVTALRM
	case linux.ITIMER_PROF:
		return SIGPROF
	default:
		return SIGALRM
	}
}

// Standard signal numbers the core itself raises (interval timers,
// SIGCHLD on exit).
const (
	SIGCHLD   = 17
	SIGALRM   = 14
	SIGVTALRM = 26
	SIGPROF   = 27
)

// pollFDWakeup re-checks a read/write suspension against the host fd's
// readiness, per spec.md §5 "read/write/poll: poll the host fd; if ready,
// clear suspension, perform the buffered transfer ... write the result
// register, resume." The actual transfer is performed by the callback the
// fileops handler in pkg/sentry/syscalls/linux installed with
// Task.OnFDReady; this just re-pokes readiness, invokes that callback once
// the fd is ready, and leaves the task suspended if not yet ready.
func (k *Kernel) pollFDWakeup(t *Task) {
	entry, err := t.Files.Get(t.WakeupFD)
	if err != nil {
		t.Resume()
		t.Regs.SetReturn(int32(linux.EBADF.Negate()))
		return
	}
	ready := fdReady(entry.HostFD, t.WakeupEvents)
	if !ready {
		return
	}
	t.readyCallback(t)
}

// readyCallback runs the onFDReady hook that the fileops handler which
// suspended the task installed (or a plain Resume if none was installed),
// so ProcessEvents can hand control back to it once the fd is ready without
// pkg/kernel needing to know about read/write buffers itself.
type readyFunc func(*Task)

func (t *Task) resumeHookOrNoop() readyFunc {
	if t.onFDReady != nil {
		return t.onFDReady
	}
	return func(tt *Task) { tt.Resume() }
}

func (t *Task) readyCallback(self *Task) { t.resumeHookOrNoop()(self) }

func fdReady(hostFD int, events uint32) bool {
	return host.Ready(hostFD, int16(events))&int16(events) != 0
}

// pollMultiWakeup re-checks a multi-fd poll(2) suspension.
func (k *Kernel) pollMultiWakeup(t *Task) {
	if t.onPollReady == nil {
		t.Resume()
		return
	}
	t.onPollReady(t)
}

// waitpidWakeup re-checks a waitpid suspension against the current zombie
// set, per spec.md §4.4/§5.
func (k *Kernel) waitpidWakeup(t *Task) {
	child := k.findZombieChild(t, t.WakeupPID)
	if child == nil {
		return
	}
	t.Resume()
	t.Regs.SetReturn(child.PID)
	if t.onWaitpidReady != nil {
		t.onWaitpidReady(t, child)
	}
	child.State = Finished
	k.removeTask(child.PID)
}

// findZombieChild returns a zombie child of parent matching pid (-1 = any).
func (k *Kernel) findZombieChild(parent *Task, pid int32) *Task {
	for _, c := range k.tasks {
		if c.Parent != parent || c.State != Zombie {
			continue
		}
		if pid == -1 || c.PID == pid {
			return c
		}
	}
	return nil
}

// onExit finalizes a task that just terminated (via exit, exit_group, or
// a default-action signal): marks it zombie and raises SIGCHLD at its
// parent. A parent already suspended in waitpid is woken by the next
// event tick's waitpidWakeup check, not here.
func (k *Kernel) onExit(t *Task) {
	if t.State != Zombie {
		t.State = Zombie
	}
	if t.Parent != nil {
		t.Parent.Raise(SIGCHLD)
	}
}
