package linux

import (
	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
	"github.com/multi2sim/m2sim-core/pkg/kernel"
)

func registerTimeOps() {
	registerLinux(linux.SYS_TIME, "time", sysTime)
	registerLinux(linux.SYS_GETTIMEOFDAY, "gettimeofday", sysGettimeofday)
	registerLinux(linux.SYS_NANOSLEEP, "nanosleep", sysNanosleep)
	registerLinux(linux.SYS_SETITIMER, "setitimer", sysSetitimer)
	registerLinux(linux.SYS_GETITIMER, "getitimer", sysGetitimer)
	registerLinux(linux.SYS_CLOCK_GETRES, "clock_getres", sysClockGetres)
	registerLinux(linux.SYS_TIMES, "times", sysTimes)
}

func sysTime(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	now := k.Time()
	ptr := t.Regs.Arg(0)
	if ptr != 0 {
		b := make([]byte, 4)
		encU32(b, uint32(now))
		if err := t.VM.Write(ptr, b); err != nil {
			return 0, err
		}
	}
	return now, nil
}

func sysGettimeofday(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	ptr := t.Regs.Arg(0)
	if ptr == 0 {
		return 0, nil
	}
	tv := k.Gettimeofday()
	if err := t.VM.Write(ptr, tv.MarshalABI()); err != nil {
		return 0, err
	}
	return 0, nil
}

// sysNanosleep implements spec.md §4.7: reads a timespec, converts to an
// absolute microsecond deadline, and suspends. The rem output pointer is
// never populated since this core never interrupts a sleep early.
func sysNanosleep(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	ptr := t.Regs.Arg(0)
	raw, err := t.VM.Read(ptr, 8)
	if err != nil {
		return 0, err
	}
	sec := int64(decU32(raw[0:4]))
	nsec := int64(decU32(raw[4:8]))
	k.Nanosleep(t, sec, nsec)
	return 0, nil
}

// sysSetitimer implements spec.md §4.7; value==0 disarms the timer.
func sysSetitimer(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	which := int(t.Regs.Arg(0))
	pnew := t.Regs.Arg(1)
	pold := t.Regs.Arg(2)

	var value, interval uint64
	if pnew != 0 {
		raw, err := t.VM.Read(pnew, linux.ItimervalSize)
		if err != nil {
			return 0, err
		}
		var iv linux.Itimerval
		iv.UnmarshalABI(raw)
		value = usFromTimeval(iv.Value)
		interval = usFromTimeval(iv.Interval)
	}

	prevValue, prevInterval := k.Setitimer(t, which, value, interval)

	if pold != 0 {
		iv := linux.Itimerval{Value: timevalFromUS(prevValue), Interval: timevalFromUS(prevInterval)}
		if err := t.VM.Write(pold, iv.MarshalABI()); err != nil {
			return 0, err
		}
	}
	return 0, nil
}

func sysGetitimer(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	which := int(t.Regs.Arg(0))
	pcur := t.Regs.Arg(1)
	value, interval := k.Getitimer(t, which)
	if pcur != 0 {
		iv := linux.Itimerval{Value: timevalFromUS(value), Interval: timevalFromUS(interval)}
		if err := t.VM.Write(pcur, iv.MarshalABI()); err != nil {
			return 0, err
		}
	}
	return 0, nil
}

func sysClockGetres(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	ptr := t.Regs.Arg(1)
	if ptr != 0 {
		res := k.ClockGetres()
		if err := t.VM.Write(ptr, res.MarshalABI()); err != nil {
			return 0, err
		}
	}
	return 0, nil
}

func sysTimes(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	ptr := t.Regs.Arg(0)
	tms := k.Times()
	if ptr != 0 {
		if err := t.VM.Write(ptr, tms.MarshalABI()); err != nil {
			return 0, err
		}
	}
	return k.Time(), nil
}

func usFromTimeval(tv linux.Timeval) uint64 {
	return uint64(tv.Sec)*1_000_000 + uint64(tv.Usec)
}

func timevalFromUS(us uint64) linux.Timeval {
	return linux.Timeval{Sec: int32(us / 1_000_000), Usec: int32(us % 1_000_000)}
}
