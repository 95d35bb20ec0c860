package kernel

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
	"github.com/multi2sim/m2sim-core/pkg/config"
	"github.com/multi2sim/m2sim-core/pkg/disk"
	"github.com/multi2sim/m2sim-core/pkg/klog"
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	d, err := disk.Open(filepath.Join(t.TempDir(), "disk.img"), 512, 4)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return New(config.Default(), klog.Discard(), d)
}

// TestFutexWakeFIFO pins spec.md §8's "Futex FIFO" invariant: waiters on
// the same address wake in the order they suspended, not allocation or
// any other order.
func TestFutexWakeFIFO(t *testing.T) {
	k := newTestKernel(t)
	const addr = 0x08000000

	var tasks []*Task
	for i := 0; i < 3; i++ {
		tsk := k.NewTask(0, 0x08048000)
		tsk.VM.Map(addr&^(PageSize-1), PageSize, PermRead|PermWrite)
		require.NoError(t, tsk.VM.Write(addr, encodeU32(0)))
		require.NoError(t, k.FutexWait(tsk, addr, 0, linux.FutexBitsetAll))
		tasks = append(tasks, tsk)
	}

	woken := k.FutexWake(addr, 2, linux.FutexBitsetAll)
	require.Equal(t, 2, woken)

	require.Equal(t, Running, tasks[0].State, "first waiter wakes first")
	require.Equal(t, Running, tasks[1].State, "second waiter wakes second")
	require.True(t, tasks[2].IsSuspendedFor(SuspendFutex), "third waiter stays parked")
}

// TestFutexWakeOp exercises the worked example spec.md §8.4 describes:
// WAKE_OP applies its transform to addr2 before evaluating the
// conditional-wake comparison against the PRE-update value.
func TestFutexWakeOp(t *testing.T) {
	k := newTestKernel(t)
	const addr1 = 0x08000000
	const addr2 = 0x08000004

	waiter1 := k.NewTask(0, 0x08048000)
	waiter1.VM.Map(0x08000000, PageSize, PermRead|PermWrite)
	require.NoError(t, waiter1.VM.Write(addr1, encodeU32(0)))
	require.NoError(t, k.FutexWait(waiter1, addr1, 0, linux.FutexBitsetAll))

	waiter2 := k.NewTask(0, 0x08048000)
	waiter2.VM = waiter1.VM // share the address space, like CLONE_VM siblings
	require.NoError(t, k.FutexWait(waiter2, addr2, 0, linux.FutexBitsetAll))

	require.NoError(t, waiter1.VM.Write(addr2, encodeU32(0)))

	// op=FUTEX_OP_SET, oparg=5; cmp=FUTEX_OP_CMP_EQ, cmparg=0 (true
	// against the pre-update value at addr2, which is 0).
	val3 := uint32(linux.FUTEX_OP_SET)<<28 | uint32(linux.FUTEX_OP_CMP_EQ)<<24 | (5 << 12) | 0

	woken, err := k.FutexWakeOp(waiter1, addr1, 1, 1, addr2, val3)
	require.NoError(t, err)
	require.Equal(t, 2, woken)
	require.Equal(t, Running, waiter1.State)
	require.Equal(t, Running, waiter2.State)

	raw, err := waiter1.VM.Read(addr2, 4)
	require.NoError(t, err)
	require.Equal(t, uint32(5), binary.LittleEndian.Uint32(raw))
}
