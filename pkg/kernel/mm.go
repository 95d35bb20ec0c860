package kernel

import (
	"golang.org/x/sys/unix"

	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
)

// resolveMmapFD resolves a guest fd to the host fd needed for a
// file-backed mmap (-1 for an anonymous mapping), matching spec.md §4.3
// "resolve guest_fd to a host fd".
func (k *Kernel) resolveMmapFD(t *Task, guestFD int32, anonymous bool) (int, error) {
	if anonymous {
		return -1, nil
	}
	e, err := t.Files.Get(guestFD)
	if err != nil {
		Fatalf("mmap: guest fd %d resolves to no entry", guestFD)
	}
	return e.HostFD, nil
}

func permFromProt(prot uint32) Perm {
	var p Perm
	if prot&linux.PROT_READ != 0 {
		p |= PermRead
	}
	if prot&linux.PROT_WRITE != 0 {
		p |= PermWrite
	}
	if prot&linux.PROT_EXEC != 0 {
		p |= PermExec
	}
	return p
}

func pageAligned(v uint32) bool { return v%PageSize == 0 }

// Mmap implements do_mmap per spec.md §4.3. offset is already in bytes
// (mmap2's page-unit offset is converted by the caller before reaching
// here, per spec.md "mmap2 is identical except offset is in page units").
func (k *Kernel) Mmap(t *Task, addr, length, prot, flags uint32, guestFD int32, offset uint32) (uint32, error) {
	anonymous := flags&linux.MAP_ANONYMOUS != 0
	hostFD, err := k.resolveMmapFD(t, guestFD, anonymous)
	if err != nil {
		return 0, err
	}

	if !pageAligned(offset) || !pageAligned(addr) {
		Fatalf("mmap: unaligned offset=0x%x or addr=0x%x", offset, addr)
	}
	length = uint32(RoundUpPages(int(length)))
	perm := permFromProt(prot)

	var base uint32
	if flags&linux.MAP_FIXED != 0 {
		if addr == 0 {
			Fatalf("mmap: MAP_FIXED with addr=0")
		}
		t.VM.Unmap(addr, int(length))
		base = addr
	} else {
		hint := addr
		if hint == 0 {
			hint = t.VM.MmapBase
		}
		found, ok := t.VM.FindFreeDownward(hint, int(length))
		if !ok {
			Fatalf("mmap: no free span of 0x%x bytes below 0x%x", length, hint)
		}
		base = found
	}

	if hostFD >= 0 {
		data, merr := unix.Mmap(hostFD, int64(offset), int(length), hostProtFor(prot), hostMapFlagsFor(flags))
		if merr != nil {
			return 0, linux.FromHostError(merr)
		}
		t.VM.MapHost(base, data, perm)
	} else {
		t.VM.Map(base, int(length), perm)
	}
	return base, nil
}

func hostProtFor(prot uint32) int {
	h := unix.PROT_NONE
	if prot&linux.PROT_READ != 0 {
		h |= unix.PROT_READ
	}
	if prot&linux.PROT_WRITE != 0 {
		h |= unix.PROT_WRITE
	}
	if prot&linux.PROT_EXEC != 0 {
		h |= unix.PROT_EXEC
	}
	return h
}

func hostMapFlagsFor(flags uint32) int {
	if flags&linux.MAP_SHARED != 0 {
		return unix.MAP_SHARED
	}
	return unix.MAP_PRIVATE
}

// Munmap implements spec.md §4.3: "require addr page-aligned; round len
// up; unmap."
func (k *Kernel) Munmap(t *Task, addr, length uint32) error {
	if !pageAligned(addr) {
		Fatalf("munmap: unaligned addr=0x%x", addr)
	}
	t.VM.Unmap(addr, RoundUpPages(int(length)))
	return nil
}

// Mprotect translates prot to permission bits and calls VM.Protect
// (spec.md §4.3).
func (k *Kernel) Mprotect(t *Task, addr, length, prot uint32) error {
	t.VM.Protect(addr, RoundUpPages(int(length)), permFromProt(prot))
	return nil
}

// Mremap implements spec.md §4.3's shrink/grow-in-place/move policy.
func (k *Kernel) Mremap(t *Task, addr, oldLen, newLen, flags uint32) (uint32, error) {
	oldLen = uint32(RoundUpPages(int(oldLen)))
	newLen = uint32(RoundUpPages(int(newLen)))
	if newLen == oldLen {
		return addr, nil
	}
	if newLen < oldLen {
		t.VM.Unmap(addr+newLen, int(oldLen-newLen))
		return addr, nil
	}
	grow := newLen - oldLen
	if t.VM.IsFree(addr+oldLen, int(grow)) {
		t.VM.Map(addr+oldLen, int(grow), PermRead|PermWrite)
		return addr, nil
	}
	if flags&linux.MREMAP_MAYMOVE == 0 {
		Fatalf("mremap: growth blocked at 0x%x and MREMAP_MAYMOVE not set", addr+oldLen)
	}
	newAddr, ok := t.VM.FindFreeDownward(t.VM.MmapBase, int(newLen))
	if !ok {
		Fatalf("mremap: no free span of 0x%x bytes for move", newLen)
	}
	t.VM.Map(newAddr, int(newLen), PermRead|PermWrite)
	n := oldLen
	if newLen < n {
		n = newLen
	}
	if err := t.VM.CopyRange(newAddr, addr, int(n)); err != nil {
		return 0, err
	}
	t.VM.Unmap(addr, int(oldLen))
	return newAddr, nil
}

// Brk implements spec.md §4.3: zero returns current break; growing maps
// fresh RW pages (fatal is not raised on conflict — "on growth conflict,
// return the old break"); shrinking unmaps the freed tail and never
// fails.
func (k *Kernel) Brk(t *Task, newbrk uint32) uint32 {
	if newbrk == 0 {
		return t.VM.Brk
	}
	old := t.VM.Brk
	oldPage := pageAlignUp(old)
	newPage := pageAlignUp(newbrk)
	if newbrk > old {
		if !t.VM.IsFree(oldPage, int(newPage-oldPage)) {
			return old
		}
		t.VM.Map(oldPage, int(newPage-oldPage), PermRead|PermWrite)
	} else if newbrk < old {
		if newPage < oldPage {
			t.VM.Unmap(newPage, int(oldPage-newPage))
		}
	}
	t.VM.Brk = newbrk
	return newbrk
}

// Msync is accepted and ignored, per spec.md §4.3 ("accepted and ignored
// (warn)"). The warning is the caller's job (it owns the logger); this
// just documents the no-op.
func (k *Kernel) Msync() {}
