package linux

import (
	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
	"github.com/multi2sim/m2sim-core/pkg/kernel"
)

func registerMmapOps() {
	registerLinux(linux.SYS_MMAP, "mmap", sysMmap)
	registerLinux(linux.SYS_MMAP2, "mmap2", sysMmap2)
	registerLinux(linux.SYS_MUNMAP, "munmap", sysMunmap)
	registerLinux(linux.SYS_MPROTECT, "mprotect", sysMprotect)
	registerLinux(linux.SYS_MREMAP, "mremap", sysMremap)
	registerLinux(linux.SYS_BRK, "brk", sysBrk)
	registerLinux(linux.SYS_MSYNC, "msync", sysMsync)
}

// sysMmap implements spec.md §4.3 do_mmap with a byte offset.
func sysMmap(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	addr := t.Regs.Arg(0)
	length := t.Regs.Arg(1)
	prot := t.Regs.Arg(2)
	flags := t.Regs.Arg(3)
	guestFD := int32(t.Regs.Arg(4))
	offset := t.Regs.Arg(5)
	base, err := k.Mmap(t, addr, length, prot, flags, guestFD, offset)
	if err != nil {
		return 0, err
	}
	return int32(base), nil
}

// sysMmap2 is identical except offset is in page units (spec.md §4.3).
func sysMmap2(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	addr := t.Regs.Arg(0)
	length := t.Regs.Arg(1)
	prot := t.Regs.Arg(2)
	flags := t.Regs.Arg(3)
	guestFD := int32(t.Regs.Arg(4))
	pageOffset := t.Regs.Arg(5)
	base, err := k.Mmap(t, addr, length, prot, flags, guestFD, pageOffset*kernel.PageSize)
	if err != nil {
		return 0, err
	}
	return int32(base), nil
}

func sysMunmap(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	addr := t.Regs.Arg(0)
	length := t.Regs.Arg(1)
	if err := k.Munmap(t, addr, length); err != nil {
		return 0, err
	}
	return 0, nil
}

func sysMprotect(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	addr := t.Regs.Arg(0)
	length := t.Regs.Arg(1)
	prot := t.Regs.Arg(2)
	if err := k.Mprotect(t, addr, length, prot); err != nil {
		return 0, err
	}
	return 0, nil
}

func sysMremap(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	addr := t.Regs.Arg(0)
	oldLen := t.Regs.Arg(1)
	newLen := t.Regs.Arg(2)
	flags := t.Regs.Arg(3)
	newAddr, err := k.Mremap(t, addr, oldLen, newLen, flags)
	if err != nil {
		return 0, err
	}
	return int32(newAddr), nil
}

func sysBrk(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	newbrk := t.Regs.Arg(0)
	return int32(k.Brk(t, newbrk)), nil
}

func sysMsync(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	k.Log.Warn("msync: accepted and ignored")
	k.Msync()
	return 0, nil
}
