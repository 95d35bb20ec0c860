package kernel

import (
	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
	"github.com/multi2sim/m2sim-core/pkg/sentry/fsimpl/host"
)

// Clone implements clone(flags, newsp, parentTIDAddr, childTIDAddr) per
// spec.md §4.4. tlsDesc is the already-decoded user_desc read from the
// guest's ESI target when CLONE_SETTLS is set (nil otherwise) — decoding
// it from guest memory is the caller's job since it needs the VM handle.
//
// On success it returns the child task; the caller is responsible for
// writing the child pid to the parent's result register (the parent's own
// result). Clone itself writes the child pid to *parentTIDAddr when
// CLONE_PARENT_SETTID is set.
func (k *Kernel) Clone(parent *Task, flags uint32, newsp uint32, parentTIDAddr, childTIDAddr uint32, tlsDesc *linux.UserDesc) (*Task, error) {
	if flags&linux.CloneMandatory != linux.CloneMandatory {
		Fatalf("clone: missing mandatory flag(s); flags=0x%x lack 0x%x",
			flags, linux.CloneMandatory&^flags)
	}
	if flags&^linux.CloneSupported != 0 {
		Fatalf("clone: unsupported flag bits 0x%x", flags&^linux.CloneSupported)
	}

	child := &Task{
		PID:    k.nextPID,
		UID:    parent.UID,
		Parent: parent,
		Regs:   &Registers{},
		Cwd:    parent.Cwd,
	}
	k.nextPID++

	child.VM = parent.VM.Fork(flags&linux.CLONE_VM != 0)
	child.Files = parent.Files.Fork(flags&linux.CLONE_FILES != 0)
	child.SigActs = parent.SigActs.Fork(flags&linux.CLONE_SIGHAND != 0)
	if flags&linux.CLONE_FS == 0 {
		// cwd is a plain string value, already an independent copy; no
		// further action needed for the exclusive case. CLONE_FS does not
		// share it either: the child always gets its own copy, so a later
		// chdir in parent or child is not seen by the other.
	}

	child.Blocked = parent.Blocked
	child.SetChildTID = childTIDAddr
	if flags&linux.CLONE_CHILD_SETTID != 0 {
		if err := child.VM.Write(childTIDAddr, encodeU32(uint32(child.PID))); err != nil {
			return nil, err
		}
	}
	if flags&linux.CLONE_CHILD_CLEARTID != 0 {
		child.ClearChildTID = childTIDAddr
	}

	// Exit signal is the low byte of flags unless CLONE_THREAD is set
	// (spec.md §4.4).
	if flags&linux.CLONE_THREAD != 0 {
		child.ExitSignal = 0
	} else {
		child.ExitSignal = int32(flags & 0xff)
	}

	*child.Regs = *parent.Regs
	if newsp != 0 {
		child.Regs.ESP = newsp
	}
	child.Regs.SetReturn(0)

	if flags&linux.CLONE_SETTLS != 0 && tlsDesc != nil {
		limit := tlsDesc.Limit
		if tlsDesc.LimitInPages {
			limit *= PageSize
		}
		child.Regs.SetTLS(tlsDesc.BaseAddr, limit)
		child.TLSBase = tlsDesc.BaseAddr
		child.TLSLimit = limit
		tlsDesc.EntryNumber = TLSSelector
	}

	if flags&linux.CLONE_PARENT_SETTID != 0 {
		if err := parent.VM.Write(parentTIDAddr, encodeU32(uint32(child.PID))); err != nil {
			return nil, err
		}
	}

	k.tasks = append(k.tasks, child)
	return child, nil
}

// Exit marks t zombie with the given status (spec.md §4.4 "exit marks the
// context zombie with the given status").
func (k *Kernel) Exit(t *Task, status int32) {
	t.ExitCode = status
	t.State = Zombie
	k.teardown(t)
	k.onExit(t)
}

// ExitGroup marks every task sharing t's signal-handler table zombie
// (spec.md §4.4 "exit_group marks all contexts sharing the signal-handler
// table as zombie").
func (k *Kernel) ExitGroup(t *Task, status int32) {
	key := t.GroupKey()
	for _, other := range k.tasks {
		if other.GroupKey() == key && other.State != Zombie && other.State != Finished {
			other.ExitCode = status
			other.State = Zombie
			k.teardown(other)
			k.onExit(other)
		}
	}
}

// teardown releases t's shared resources and, per spec.md §4.4's clone
// note on CLONE_CHILD_CLEARTID, wakes a futex at the clear_child_tid
// address ("used at thread exit to wake a futex at that address").
func (k *Kernel) teardown(t *Task) {
	// VirtualMemory has no distinct Release step: it holds no host
	// resources beyond its own page map, reclaimed by the garbage
	// collector once the last sharer drops its reference.
	if t.Files != nil {
		if last := t.Files.Release(); last {
			for _, fd := range t.Files.All() {
				e, err := t.Files.Free(fd)
				if err == nil && e.HostFD > 2 {
					host.Close(e.HostFD)
				}
			}
		}
	}
	if t.SigActs != nil {
		t.SigActs.Release()
	}
	if t.ClearChildTID != 0 {
		k.FutexWake(t.ClearChildTID, 1, linux.FutexBitsetAll)
	}
}

// Waitpid implements spec.md §4.4: pid==-1 or pid>0, WNOHANG semantics,
// and suspension otherwise. The caller (pkg/sentry/syscalls/linux) writes
// pstatus to guest memory once this returns a matched child; when it
// suspends the task it should install OnWaitpidReady to do the same when
// ProcessEvents later finds a match.
func (k *Kernel) Waitpid(t *Task, pid int32, options uint32) (child *Task, wouldBlock bool) {
	if c := k.findZombieChild(t, pid); c != nil {
		return c, false
	}
	if options&linux.WNOHANG != 0 {
		return nil, false
	}
	t.WakeupPID = pid
	t.Suspend(SuspendWaitpid)
	return nil, true
}
