// Package linux is the syscall dispatcher: the switch spec.md §2 and §4.1
// describe that "binds a syscall number to the above [components]". It is
// grounded on the table-as-data dispatch style of gVisor's
// pkg/sentry/syscalls/linux/vfs2 (a syscall number maps to a name and a
// function, installed into a table rather than a hand-written switch
// statement) adapted to this simulator's single-process, no-vfs model.
package linux

import (
	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
	"github.com/multi2sim/m2sim-core/pkg/kernel"
)

// HandlerFunc is one syscall implementation: given the kernel and the
// calling task (whose registers already hold the arguments, per spec.md
// §6's guest register contract), it returns the value to write into EAX,
// or an error — a linux.Errno for a guest-visible failure, anything else
// is reported as EIO since every handler is expected to translate host
// errors itself via linux.FromHostError.
//
// A handler that suspends t (e.g. a blocking read) returns before
// producing a final result; Dispatch notices t.State == Suspended and
// skips writing EAX, matching spec.md §4.1 ("unless the context is now
// suspended ... the dispatcher writes that value into the result
// register").
type HandlerFunc func(k *kernel.Kernel, t *kernel.Task) (int32, error)

type tableEntry struct {
	name string
	fn   HandlerFunc
}

var linuxTable = map[uint32]tableEntry{}
var privateTable = map[uint32]tableEntry{}

func registerLinux(num uint32, name string, fn HandlerFunc) {
	linuxTable[num] = tableEntry{name: name, fn: fn}
}

func registerPrivate(num uint32, name string, fn HandlerFunc) {
	privateTable[num] = tableEntry{name: name, fn: fn}
}

func init() {
	registerFileOps()
	registerMmapOps()
	registerCloneOps()
	registerSignalOps()
	registerFutexOps()
	registerTimeOps()
	registerIdentityOps()
	registerPrivateOps()
	registerSocketOps()
}

// Dispatch runs one syscall to completion (or suspension) for t, per
// spec.md §4.1. It recovers a *kernel.FatalError raised by any handler
// via kernel.Fatalf and reports it through abort rather than letting it
// escape — the boundary spec.md §7's "the core aborts the simulation"
// language calls for.
func Dispatch(k *kernel.Kernel, t *kernel.Task) (aborted bool, abortMsg string) {
	defer func() {
		if r := recover(); r != nil {
			if fe, ok := r.(*kernel.FatalError); ok {
				aborted = true
				abortMsg = fe.Error()
				k.Log.WithField("pid", t.PID).Error(abortMsg)
				return
			}
			panic(r)
		}
	}()

	num := t.Regs.SyscallNumber()
	k.CountSyscall(num)

	var e tableEntry
	var ok bool
	if num < linux.LinuxTableBound {
		e, ok = linuxTable[num]
	} else {
		e, ok = privateTable[num]
	}
	if !ok {
		t.Regs.SetReturn(linux.ENOSYS.Negate())
		return false, ""
	}

	k.Log.WithField("pid", t.PID).WithField("syscall", e.name).Trace("dispatch")

	ret, err := e.fn(k, t)
	if t.State == kernel.Suspended {
		return false, ""
	}
	if num == linux.SYS_SIGRETURN || num == linux.SYS_RT_SIGRETURN {
		// sigreturn has already restored EAX (and every other register)
		// from the signal frame; writing ret here would clobber it.
		return false, ""
	}
	if err != nil {
		t.Regs.SetReturn(negateError(err))
		return false, ""
	}
	t.Regs.SetReturn(ret)
	return false, ""
}

// negateError converts a handler error into the guest ABI's negative-
// errno return value (spec.md §4.1's "values in the range -1 are
// reinterpreted ... normalized to -errno").
func negateError(err error) int32 {
	if errno, ok := err.(linux.Errno); ok {
		return errno.Negate()
	}
	return linux.EIO.Negate()
}
