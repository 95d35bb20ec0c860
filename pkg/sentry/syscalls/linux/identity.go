package linux

import (
	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
	"github.com/multi2sim/m2sim-core/pkg/kernel"
)

// buildVersion is stamped into uname's version field, per spec.md §6.
const buildVersion = "m2sim-core 0.1"

func registerIdentityOps() {
	registerLinux(linux.SYS_GETPID, "getpid", sysGetpid)
	registerLinux(linux.SYS_GETPPID, "getppid", sysGetppid)
	registerLinux(linux.SYS_GETTID, "gettid", sysGetpid)
	registerLinux(linux.SYS_GETUID, "getuid", sysGetuid)
	registerLinux(linux.SYS_GETUID32, "getuid32", sysGetuid)
	registerLinux(linux.SYS_GETEUID, "geteuid", sysGetuid)
	registerLinux(linux.SYS_GETEUID32, "geteuid32", sysGetuid)
	registerLinux(linux.SYS_GETGID, "getgid", sysGetgid)
	registerLinux(linux.SYS_GETGID32, "getgid32", sysGetgid)
	registerLinux(linux.SYS_GETEGID, "getegid", sysGetgid)
	registerLinux(linux.SYS_GETEGID32, "getegid32", sysGetgid)
	registerLinux(linux.SYS_UNAME, "uname", sysUname)
}

// sysGetpid also serves gettid: this core never creates distinct threads
// within a process beyond what clone() already produces as separate
// Tasks, so task PID and "thread ID" coincide (spec.md §3's Task is the
// unit both getpid and gettid observe).
func sysGetpid(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	return t.PID, nil
}

func sysGetppid(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	if t.Parent == nil {
		return 0, nil
	}
	return t.Parent.PID, nil
}

// sysGetuid serves getuid/geteuid/getuid32/geteuid32: this core tracks
// a single UID per task with no distinction between real and effective
// (spec.md §3).
func sysGetuid(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	return int32(t.UID), nil
}

// sysGetgid serves getgid/getegid/getgid32/getegid32: the GID always
// mirrors the UID, since this core has no separate group identity.
func sysGetgid(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	return int32(t.UID), nil
}

func sysUname(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	addr := t.Regs.Arg(0)
	u := linux.DefaultUtsname(buildVersion)
	if err := t.VM.Write(addr, u.MarshalABI()); err != nil {
		return 0, err
	}
	return 0, nil
}
