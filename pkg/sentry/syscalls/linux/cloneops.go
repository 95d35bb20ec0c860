package linux

import (
	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
	"github.com/multi2sim/m2sim-core/pkg/kernel"
)

func registerCloneOps() {
	registerLinux(linux.SYS_CLONE, "clone", sysClone)
	registerLinux(linux.SYS_FORK, "fork", sysFork)
	registerLinux(linux.SYS_EXIT, "exit", sysExit)
	registerLinux(linux.SYS_EXIT_GROUP, "exit_group", sysExitGroup)
	registerLinux(linux.SYS_WAITPID, "waitpid", sysWaitpid)
	registerLinux(linux.SYS_WAIT4, "wait4", sysWaitpid)
	registerLinux(linux.SYS_SET_THREAD_AREA, "set_thread_area", sysSetThreadArea)
	registerLinux(linux.SYS_SET_TID_ADDRESS, "set_tid_address", sysSetTidAddress)
}

// sysClone implements spec.md §4.4. Arguments: flags (EBX), newsp (ECX),
// parent_tid_p (EDX), the CLONE_SETTLS user_desc pointer (ESI), and
// child_tid_p (EDI) — matching spec.md's "read a user_desc from the ESI
// register target" note, which places TLS at argument slot 3 (ESI) and
// pushes child_tid_p out to slot 4 (EDI).
func sysClone(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	flags := t.Regs.Arg(0)
	newsp := t.Regs.Arg(1)
	parentTIDAddr := t.Regs.Arg(2)
	childTIDAddr := t.Regs.Arg(4)

	var tlsDesc *linux.UserDesc
	if flags&linux.CLONE_SETTLS != 0 {
		raw, err := t.VM.Read(t.Regs.ESI, linux.UserDescSize)
		if err != nil {
			return 0, err
		}
		tlsDesc = &linux.UserDesc{}
		tlsDesc.UnmarshalABI(raw)
	}

	child, err := k.Clone(t, flags, newsp, parentTIDAddr, childTIDAddr, tlsDesc)
	if err != nil {
		return 0, err
	}

	if tlsDesc != nil {
		t.VM.Write(t.Regs.ESI, tlsDesc.MarshalABI())
	}
	return child.PID, nil
}

// sysFork is clone with no flags: an exclusive copy of everything, exit
// signal SIGCHLD (the historical fork(2) semantics this core's clone
// table naturally expresses as flags=SIGCHLD).
func sysFork(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	child, err := k.Clone(t, linux.CloneMandatory|uint32(kernel.SIGCHLD), 0, 0, 0, nil)
	if err != nil {
		return 0, err
	}
	return child.PID, nil
}

func sysExit(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	status := int32(t.Regs.Arg(0))
	k.Exit(t, status)
	return 0, nil
}

func sysExitGroup(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	status := int32(t.Regs.Arg(0))
	k.ExitGroup(t, status)
	return 0, nil
}

// sysWaitpid implements spec.md §4.4; also serves wait4 (the rusage
// argument wait4 adds is accepted but never populated, since this core
// tracks no distinct rusage counters — spec.md §9 notes Rusage's 14
// unused fields are zero-filled for the same reason).
func sysWaitpid(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	pid := int32(t.Regs.Arg(0))
	statusAddr := t.Regs.Arg(1)
	options := t.Regs.Arg(2)

	child, wouldBlock := k.Waitpid(t, pid, options)
	if wouldBlock {
		t.OnWaitpidReady(func(self, c *kernel.Task) {
			if statusAddr != 0 {
				self.VM.Write(statusAddr, encodeU32Local(uint32(c.ExitCode)))
			}
		})
		return 0, nil
	}
	if child == nil {
		return 0, nil // WNOHANG, no matching child yet
	}
	if statusAddr != 0 {
		if err := t.VM.Write(statusAddr, encodeU32Local(uint32(child.ExitCode))); err != nil {
			return 0, err
		}
	}
	child.State = kernel.Finished
	return child.PID, nil
}

func encodeU32Local(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

// sysSetThreadArea implements set_thread_area(2) outside of clone: reads
// a user_desc from EBX's target, forces entry slot 6, and writes it back
// (spec.md §8 scenario 6 exercises the clone+CLONE_SETTLS path; this
// handler covers the syscall called standalone).
func sysSetThreadArea(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	addr := t.Regs.Arg(0)
	raw, err := t.VM.Read(addr, linux.UserDescSize)
	if err != nil {
		return 0, err
	}
	var desc linux.UserDesc
	desc.UnmarshalABI(raw)
	limit := desc.Limit
	if desc.LimitInPages {
		limit *= kernel.PageSize
	}
	t.Regs.SetTLS(desc.BaseAddr, limit)
	t.TLSBase = desc.BaseAddr
	t.TLSLimit = limit
	desc.EntryNumber = kernel.TLSSelector
	if err := t.VM.Write(addr, desc.MarshalABI()); err != nil {
		return 0, err
	}
	return 0, nil
}

func sysSetTidAddress(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	t.ClearChildTID = t.Regs.Arg(0)
	return t.PID, nil
}
