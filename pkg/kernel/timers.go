package kernel

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
)

// Time returns the host epoch seconds, per spec.md §4.7 ("time returns
// host epoch seconds").
func (k *Kernel) Time() int32 {
	return int32(time.Now().Unix())
}

// Gettimeofday fills a Timeval with the host wall clock, per spec.md
// §4.7 ("gettimeofday fills a packed timeval+timezone"). The timezone
// half of the ABI struct is always zero-filled; Linux has ignored it
// since the early kernel days, and nothing in this spec's scope reads it.
func (k *Kernel) Gettimeofday() linux.Timeval {
	now := time.Now()
	return linux.Timeval{Sec: int32(now.Unix()), Usec: int32(now.Nanosecond() / 1000)}
}

// Nanosleep converts a request to microseconds, records the wakeup
// deadline, and suspends t for nanosleep (spec.md §4.7).
func (k *Kernel) Nanosleep(t *Task, sec, nsec int64) {
	us := uint64(sec)*1_000_000 + uint64(nsec)/1000
	t.WakeupTimeUS = k.NowUS + us
	t.Suspend(SuspendNanosleep)
}

// Setitimer installs value/interval into t's slot which (ITIMER_REAL,
// ITIMER_VIRTUAL, or ITIMER_PROF per spec.md §4.7) and returns the
// previous contents. An invalid which is fatal (spec.md §7: "setitimer
// with a bad which" is a fatal signal-related error).
func (k *Kernel) Setitimer(t *Task, which int, value, interval uint64) (prevValue, prevInterval uint64) {
	if which < 0 || which > 2 {
		Fatalf("setitimer: invalid which=%d", which)
	}
	slot := &t.Timers[which]
	prevValue, prevInterval = slot.Value, slot.Interval
	if value == 0 {
		slot.Value = 0
	} else {
		slot.Value = k.NowUS + value
	}
	slot.Interval = interval
	return prevValue, prevInterval
}

// Getitimer reports the given slot's current value/interval, converting
// the absolute fire time back to a relative remaining duration.
func (k *Kernel) Getitimer(t *Task, which int) (value, interval uint64) {
	if which < 0 || which > 2 {
		Fatalf("getitimer: invalid which=%d", which)
	}
	slot := t.Timers[which]
	if slot.Value == 0 {
		return 0, slot.Interval
	}
	if slot.Value <= k.NowUS {
		return 1, slot.Interval // about to fire; report the smallest nonzero remainder
	}
	return slot.Value - k.NowUS, slot.Interval
}

// ClockGetres returns 1 nanosecond resolution regardless of clock id, per
// spec.md §4.7. clock_getres writes a 32-bit timespec, which has the same
// 8-byte layout as Timeval, so the second field here carries nanoseconds.
func (k *Kernel) ClockGetres() linux.Timeval {
	return linux.Timeval{Sec: 0, Usec: 1}
}

// Times returns the host times() translated to the packed Tms layout
// (spec.md §4.7: "times returns host times translated to the packed
// layout"), each field truncated to 32 bits. If the host call fails every
// field is zero.
func (k *Kernel) Times() linux.Tms {
	var h unix.Tms
	if _, err := unix.Times(&h); err != nil {
		return linux.Tms{}
	}
	return linux.Tms{Utime: uint32(h.Utime), Stime: uint32(h.Stime), Cutime: uint32(h.Cutime), Cstime: uint32(h.Cstime)}
}
