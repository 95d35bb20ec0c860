package linux

import (
	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
	"github.com/multi2sim/m2sim-core/pkg/kernel"
)

func registerFutexOps() {
	registerLinux(linux.SYS_FUTEX, "futex", sysFutex)
}

// sysFutex implements spec.md §4.6. Arguments: uaddr, op, val, timeout,
// uaddr2, val3. The command is op masked with FutexCmdMask to strip
// FUTEX_PRIVATE_FLAG/FUTEX_CLOCK_REALTIME, neither of which this
// single-process core distinguishes (there is only ever one futex
// namespace, so "private" and "shared" collapse to the same thing).
func sysFutex(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	addr1 := t.Regs.Arg(0)
	op := t.Regs.Arg(1)
	val1 := t.Regs.Arg(2)
	timeout := t.Regs.Arg(3)
	addr2 := t.Regs.Arg(4)
	val3 := t.Regs.Arg(5)

	cmd := op & linux.FutexCmdMask

	switch cmd {
	case linux.FUTEX_WAIT:
		if timeout != 0 {
			kernel.Fatalf("futex: FUTEX_WAIT with a non-null timeout is unsupported")
		}
		if err := k.FutexWait(t, addr1, val1, linux.FutexBitsetAll); err != nil {
			return 0, err
		}
		return 0, nil

	case linux.FUTEX_WAIT_BITSET:
		if timeout != 0 {
			kernel.Fatalf("futex: FUTEX_WAIT_BITSET with a non-null timeout is unsupported")
		}
		if err := k.FutexWait(t, addr1, val1, val3); err != nil {
			return 0, err
		}
		return 0, nil

	case linux.FUTEX_WAKE:
		return int32(k.FutexWake(addr1, val1, linux.FutexBitsetAll)), nil

	case linux.FUTEX_WAKE_BITSET:
		return int32(k.FutexWake(addr1, val1, val3)), nil

	case linux.FUTEX_CMP_REQUEUE:
		// ptimeout is reinterpreted as an integer by the real kernel for
		// this command but is never anything but INT32_MAX in practice;
		// any other value is a real timeout request, which is fatal here
		// the same way FUTEX_WAIT's non-null timeout is (spec.md §4.6).
		if timeout != linux.FutexIntMax {
			kernel.Fatalf("futex: FUTEX_CMP_REQUEUE with ptimeout != INT32_MAX is unsupported")
		}
		n, err := k.FutexCmpRequeue(addr1, val3, addr2, int(val1))
		if err != nil {
			return 0, err
		}
		return int32(n), nil

	case linux.FUTEX_WAKE_OP:
		n, err := k.FutexWakeOp(t, addr1, val1, timeout, addr2, val3)
		if err != nil {
			return 0, err
		}
		return int32(n), nil

	default:
		kernel.Fatalf("futex: unsupported command %d", cmd)
		return 0, nil
	}
}
