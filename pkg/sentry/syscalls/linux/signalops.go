package linux

import (
	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
	"github.com/multi2sim/m2sim-core/pkg/kernel"
)

func registerSignalOps() {
	registerLinux(linux.SYS_RT_SIGACTION, "rt_sigaction", sysRtSigaction)
	registerLinux(linux.SYS_SIGACTION, "sigaction", sysRtSigaction)
	registerLinux(linux.SYS_RT_SIGPROCMASK, "rt_sigprocmask", sysRtSigprocmask)
	registerLinux(linux.SYS_SIGPROCMASK, "sigprocmask", sysSigprocmaskLegacy)
	registerLinux(linux.SYS_RT_SIGSUSPEND, "rt_sigsuspend", sysRtSigsuspend)
	registerLinux(linux.SYS_KILL, "kill", sysKill)
	registerLinux(linux.SYS_TGKILL, "tgkill", sysTgkill)
	registerLinux(linux.SYS_SIGRETURN, "sigreturn", sysSigreturn)
	registerLinux(linux.SYS_RT_SIGRETURN, "rt_sigreturn", sysSigreturn)
}

// sysRtSigaction implements spec.md §4.5: range-check sig in [1,64],
// optionally return the previous action, optionally install a new one.
func sysRtSigaction(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	sig := int(t.Regs.Arg(0))
	pact := t.Regs.Arg(1)
	poact := t.Regs.Arg(2)

	if pact != 0 {
		raw, err := t.VM.Read(pact, linux.SigActionSize)
		if err != nil {
			return 0, err
		}
		var act linux.SigAction
		act.UnmarshalABI(raw)
		prev, serr := t.SigActs.SetAction(sig, act)
		if serr != nil {
			return 0, serr
		}
		if poact != 0 {
			if err := t.VM.Write(poact, prev.MarshalABI()); err != nil {
				return 0, err
			}
		}
		return 0, nil
	}
	if poact != 0 {
		prev, err := t.SigActs.Action(sig)
		if err != nil {
			return 0, err
		}
		if err := t.VM.Write(poact, prev.MarshalABI()); err != nil {
			return 0, err
		}
	}
	return 0, nil
}

// sigmaskUpdate is shared by rt_sigprocmask and the legacy sigprocmask
// (SPEC_FULL.md §10's supplemented feature: both funnel through the same
// how/BLOCK/UNBLOCK/SETMASK semantics spec.md §4.5 describes for the rt_
// variant).
func sigmaskUpdate(t *kernel.Task, how int, pset, poset uint32, maskSize int) (int32, error) {
	var newMask uint64
	if pset != 0 {
		raw, err := t.VM.Read(pset, maskSize)
		if err != nil {
			return 0, err
		}
		newMask = decodeMask(raw)
	}
	var old uint64
	var err error
	if pset != 0 {
		old, err = t.SetSigmask(how, newMask)
		if err != nil {
			return 0, err
		}
	} else {
		old = t.Blocked
	}
	if poset != 0 {
		if werr := t.VM.Write(poset, encodeMask(old, maskSize)); werr != nil {
			return 0, werr
		}
	}
	return 0, nil
}

func decodeMask(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func encodeMask(v uint64, size int) []byte {
	b := make([]byte, size)
	for i := 0; i < size && i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
	return b
}

// sysRtSigprocmask implements spec.md §4.5: updates the mask then
// triggers an event tick since a signal may now be deliverable.
func sysRtSigprocmask(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	how := int(t.Regs.Arg(0))
	pset := t.Regs.Arg(1)
	poset := t.Regs.Arg(2)
	ret, err := sigmaskUpdate(t, how, pset, poset, 8)
	if err == nil {
		k.ProcessEvents()
	}
	return ret, err
}

// sysSigprocmaskLegacy is the pre-rt_ sigprocmask, which passes a 32-bit
// mask instead of a 64-bit sigset_t (SPEC_FULL.md §10).
func sysSigprocmaskLegacy(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	how := int(t.Regs.Arg(0))
	pset := t.Regs.Arg(1)
	poset := t.Regs.Arg(2)
	ret, err := sigmaskUpdate(t, how, pset, poset, 4)
	if err == nil {
		k.ProcessEvents()
	}
	return ret, err
}

// sysRtSigsuspend implements spec.md §4.5: save blocked to backup,
// install the new mask, suspend.
func sysRtSigsuspend(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	pnewset := t.Regs.Arg(0)
	raw, err := t.VM.Read(pnewset, 8)
	if err != nil {
		return 0, err
	}
	t.SigSuspend(decodeMask(raw))
	k.ProcessEvents()
	return 0, nil
}

// sysKill implements spec.md §4.5: add sig to the target's pending mask
// and cancel any suspension so the tick re-evaluates delivery.
func sysKill(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	pid := int32(t.Regs.Arg(0))
	sig := int(t.Regs.Arg(1))
	target := k.TaskByPID(pid)
	if target == nil {
		return 0, linux.ESRCH
	}
	if err := target.Raise(sig); err != nil {
		return 0, err
	}
	k.ProcessEvents()
	return 0, nil
}

// sysTgkill implements spec.md §4.5; tgid == -1 is unsupported (fatal).
func sysTgkill(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	tgid := int32(t.Regs.Arg(0))
	pid := int32(t.Regs.Arg(1))
	sig := int(t.Regs.Arg(2))
	if tgid == -1 {
		kernel.Fatalf("tgkill: tgid == -1 is unsupported")
	}
	target := k.TaskByPID(pid)
	if target == nil {
		return 0, linux.ESRCH
	}
	if err := target.Raise(sig); err != nil {
		return 0, err
	}
	k.ProcessEvents()
	return 0, nil
}

// sysSigreturn implements spec.md §4.5's reversal of signal delivery: pop
// the most recent frame and restore it. It writes EAX itself (to the
// saved value, which may be the syscall return the handler was
// interrupting), which is why Dispatch special-cases this syscall number
// and does not overwrite EAX afterward.
func sysSigreturn(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	frame := t.PopSignalFrame()
	if frame == nil {
		return 0, nil
	}
	t.Sigreturn(frame)
	return 0, nil
}
