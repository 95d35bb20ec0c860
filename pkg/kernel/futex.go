package kernel

import (
	"encoding/binary"
	"sort"

	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
)

// FutexWait services FUTEX_WAIT / FUTEX_WAIT_BITSET (spec.md §4.6): the
// word at addr1 must still equal val1 or the call fails immediately with
// EAGAIN; otherwise t is parked with the given bitset and the kernel's
// monotonic sleep serial, which FutexWake later walks in ascending order
// to honor FIFO (spec.md §8 "Futex FIFO").
//
// Timeouts are unsupported (spec.md §4.6 "Timeouts are not supported");
// the caller is responsible for treating a non-null ptimeout as the
// fatal unsupported-feature path described in spec.md §7.
func (k *Kernel) FutexWait(t *Task, addr1 uint32, val1 uint32, bitset uint32) error {
	word, err := t.VM.Read(addr1, 4)
	if err != nil {
		return err
	}
	if binary.LittleEndian.Uint32(word) != val1 {
		return linux.EAGAIN
	}
	if bitset == 0 {
		bitset = linux.FutexBitsetAll
	}
	t.WakeupFutexAddr = addr1
	t.WakeupFutexBitset = bitset
	t.WakeupFutexSleepSeq = k.nextFutexSerial()
	t.Suspend(SuspendFutex)
	return nil
}

// waitersOn returns every task suspended-for-futex on addr, ascending by
// sleep serial (spec.md §8's FIFO invariant).
func (k *Kernel) waitersOn(addr uint32) []*Task {
	var out []*Task
	for _, t := range k.tasks {
		if t.IsSuspendedFor(SuspendFutex) && t.WakeupFutexAddr == addr {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].WakeupFutexSleepSeq < out[j].WakeupFutexSleepSeq
	})
	return out
}

// wakeUpTo wakes at most n tasks from waiters whose stored bitset
// intersects bitset, returning the count actually woken.
func wakeUpTo(waiters []*Task, n int, bitset uint32) int {
	woken := 0
	for _, t := range waiters {
		if woken >= n {
			break
		}
		if t.WakeupFutexBitset&bitset == 0 {
			continue
		}
		t.Resume()
		t.Regs.SetReturn(0)
		woken++
	}
	return woken
}

// FutexWake services FUTEX_WAKE / FUTEX_WAKE_BITSET (spec.md §4.6).
func (k *Kernel) FutexWake(addr1 uint32, val1 uint32, bitset uint32) int {
	if bitset == 0 {
		bitset = linux.FutexBitsetAll
	}
	return wakeUpTo(k.waitersOn(addr1), int(val1), bitset)
}

// FutexCmpRequeue services FUTEX_CMP_REQUEUE (spec.md §4.6): the caller is
// expected to have already fatal'd on ptimeout != INT32_MAX per the
// unsupported-feature rule, and passes val1 in as wakeCount. Up to
// wakeCount waiters on addr1 are woken; the relocation count is
// unrestricted — all remaining waiters move to addr2.
func (k *Kernel) FutexCmpRequeue(addr1, val3, addr2 uint32, wakeCount int) (int, error) {
	word, err := k.anyVM(addr1)
	if err != nil {
		return 0, err
	}
	if word != val3 {
		return 0, linux.EAGAIN
	}
	waiters := k.waitersOn(addr1)
	woken := wakeUpTo(waiters, wakeCount, linux.FutexBitsetAll)
	for _, t := range waiters[woken:] {
		t.WakeupFutexAddr = addr2
	}
	return woken, nil
}

// anyVM reads the 32-bit word at addr1 using any live task's address
// space; in this single-address-space-per-process core every task that
// could reach a shared futex word shares the same VM via CLONE_VM, so the
// first task is as good as any.
func (k *Kernel) anyVM(addr uint32) (uint32, error) {
	if len(k.tasks) == 0 {
		return 0, linux.EFAULT
	}
	b, err := k.tasks[0].VM.Read(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// futexOp applies one of the FUTEX_OP_* transforms (spec.md §4.6 WAKE_OP).
func futexOp(op int, old, oparg uint32) uint32 {
	switch op {
	case linux.FUTEX_OP_SET:
		return oparg
	case linux.FUTEX_OP_ADD:
		return old + oparg
	case linux.FUTEX_OP_OR:
		return old | oparg
	case linux.FUTEX_OP_AND:
		return old & oparg
	case linux.FUTEX_OP_XOR:
		return old ^ oparg
	default:
		return old
	}
}

// futexCmp evaluates one of the FUTEX_OP_CMP_* predicates.
func futexCmp(cmp int, old, cmparg uint32) bool {
	o, c := int32(old), int32(cmparg)
	switch cmp {
	case linux.FUTEX_OP_CMP_EQ:
		return o == c
	case linux.FUTEX_OP_CMP_NE:
		return o != c
	case linux.FUTEX_OP_CMP_LT:
		return o < c
	case linux.FUTEX_OP_CMP_LE:
		return o <= c
	case linux.FUTEX_OP_CMP_GT:
		return o > c
	case linux.FUTEX_OP_CMP_GE:
		return o >= c
	default:
		return false
	}
}

// FutexWakeOp services FUTEX_WAKE_OP (spec.md §4.6 and the worked example
// in §8.4): decode val3's packed (op, cmp, oparg, cmparg), apply the op to
// the word at addr2, wake up to val1 on addr1 unconditionally, then wake
// up to val2 on addr2 if cmp(old, cmparg) holds against the PRE-update
// value at addr2.
func (k *Kernel) FutexWakeOp(t *Task, addr1, val1, val2, addr2, val3 uint32) (int, error) {
	op := int((val3 >> 28) & 0xf)
	cmp := int((val3 >> 24) & 0xf)
	oparg := (val3 >> 12) & 0xfff
	cmparg := val3 & 0xfff

	raw, err := t.VM.Read(addr2, 4)
	if err != nil {
		return 0, err
	}
	old := binary.LittleEndian.Uint32(raw)
	updated := futexOp(op, old, oparg)
	if err := t.VM.Write(addr2, encodeU32(updated)); err != nil {
		return 0, err
	}

	woken := wakeUpTo(k.waitersOn(addr1), int(val1), linux.FutexBitsetAll)
	if futexCmp(cmp, old, cmparg) {
		woken += wakeUpTo(k.waitersOn(addr2), int(val2), linux.FutexBitsetAll)
	}
	return woken, nil
}

func encodeU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
