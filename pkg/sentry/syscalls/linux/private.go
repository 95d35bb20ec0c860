package linux

import (
	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
	"github.com/multi2sim/m2sim-core/pkg/disk"
	"github.com/multi2sim/m2sim-core/pkg/kernel"
)

// ioCost is the fixed simulated charge levied against a context's
// quantum for completing one disk_io request (spec.md §4.8 "completion
// charges a fixed simulated I/O cost to the caller").
const ioCost = 100

func registerPrivateOps() {
	registerPrivate(linux.SYS_M2S_GET_PID, "m2s_get_pid", sysM2SGetPid)
	registerPrivate(linux.SYS_M2S_SET_INSTRUCTION_SLICE, "m2s_set_instruction_slice", sysM2SSetInstructionSlice)
	registerPrivate(linux.SYS_M2S_DISK_IO, "m2s_disk_io", sysM2SDiskIO)
	registerPrivate(linux.SYS_M2S_OPENCL, "m2s_opencl", sysM2SOpenCL)
}

func sysM2SGetPid(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	return t.PID, nil
}

// sysM2SSetInstructionSlice stores the caller's per-context scheduling
// quantum (spec.md §4.8).
func sysM2SSetInstructionSlice(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	t.Quantum = uint64(t.Regs.Arg(0))
	return 0, nil
}

// sysM2SDiskIO implements spec.md §4.8's disk_io(op, nbytes, guest_addr,
// block, offset): reads transfer host disk bytes into guest memory,
// writes do the reverse, and either direction charges ioCost against the
// caller's quantum on success.
func sysM2SDiskIO(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	op := int(t.Regs.Arg(0))
	nbytes := int(t.Regs.Arg(1))
	guestAddr := t.Regs.Arg(2)
	block := int(t.Regs.Arg(3))
	offset := int(t.Regs.Arg(4))

	if k.Disk == nil {
		return 0, linux.ENOSYS
	}
	if nbytes < 0 {
		return 0, linux.EINVAL
	}

	buf := make([]byte, nbytes)
	switch op {
	case disk.OpWrite:
		raw, err := t.VM.Read(guestAddr, nbytes)
		if err != nil {
			return 0, err
		}
		copy(buf, raw)
		if err := k.Disk.IO(op, t.UID, block, offset, nbytes, buf); err != nil {
			return 0, err
		}
	case disk.OpRead:
		if err := k.Disk.IO(op, t.UID, block, offset, nbytes, buf); err != nil {
			return 0, err
		}
		if err := t.VM.Write(guestAddr, buf); err != nil {
			return 0, err
		}
	default:
		return 0, linux.EINVAL
	}

	if t.Quantum > ioCost {
		t.Quantum -= ioCost
	} else {
		t.Quantum = 0
	}
	return 0, nil
}

// sysM2SOpenCL is the catch-all OpenCL shim: spec.md §1's Non-goals
// exclude the actual OpenCL dispatch table, so this handler only honors
// the (func_code, args_ptr) calling convention far enough to report "not
// implemented" for every func_code without crashing a guest that probes
// for OpenCL support.
func sysM2SOpenCL(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	return 0, linux.ENOSYS
}
