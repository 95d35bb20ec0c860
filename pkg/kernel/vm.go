package kernel

import (
	"sync"

	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
)

// PageSize is the guest VM's page granularity. spec.md §1 explicitly
// excludes MMU paging below this granularity ("no MMU paging below the
// page granularity of the guest VM service").
const PageSize = 4096

// Perm is the guest VM's per-page permission set: init/read/write/exec,
// per spec.md §3.
type Perm uint8

const (
	PermInit Perm = 1 << iota
	PermRead
	PermWrite
	PermExec
)

// Has reports whether all bits of want are set in p.
func (p Perm) Has(want Perm) bool { return p&want == want }

// page is one mapped guest page: its permission set and backing bytes.
// Host-backed pages (mmap of a real fd) point data at a shared slice
// instead of owning their own backing array, so writes through the guest
// VM are visible to the host mapping and vice versa (spec.md §4.3: "also
// perform a host mmap and register the resulting host pointer so
// subsequent guest reads/writes can be satisfied directly").
type page struct {
	perm Perm
	data []byte
}

// VirtualMemory is the concrete stand-in for the "guest virtual memory
// object" spec.md §1 treats as an external contract: "read N bytes, write
// N bytes, read/write a NUL-terminated string up to a cap, zero a range,
// copy a range, map/unmap/protect a range, search for a free range ...".
// One VirtualMemory is shared across every kernel.Task that was cloned
// with CLONE_VM, and exclusive otherwise (spec.md §4.4).
type VirtualMemory struct {
	mu    sync.Mutex
	pages map[uint32]*page // key: page-aligned address

	// Brk is the current program break. It lives here, not on Task,
	// because it is part of the address space and therefore shared
	// exactly when the VM itself is shared (spec.md §4.3 "brk").
	Brk     uint32
	BrkBase uint32

	// MmapBase is the default search hint for anonymous mmaps when the
	// guest passes addr=0 (spec.md §4.3: "a fixed base 0xb7fb0000 if
	// addr is zero or blocked").
	MmapBase uint32
}

// DefaultMmapBase matches spec.md §4.3's fixed fallback search base.
const DefaultMmapBase = 0xb7fb0000

// NewVirtualMemory creates an empty address space with the given initial
// program break.
func NewVirtualMemory(brkBase uint32) *VirtualMemory {
	return &VirtualMemory{
		pages:    make(map[uint32]*page),
		Brk:      brkBase,
		BrkBase:  brkBase,
		MmapBase: DefaultMmapBase,
	}
}

func pageAlignDown(addr uint32) uint32 { return addr &^ (PageSize - 1) }
func pageAlignUp(addr uint32) uint32   { return (addr + PageSize - 1) &^ (PageSize - 1) }

// RoundUpPages rounds n up to a multiple of PageSize, per the "round len
// up to a page" requirement repeated across spec.md §4.3.
func RoundUpPages(n int) int { return int(pageAlignUp(uint32(n))) }

func (vm *VirtualMemory) pageAt(addr uint32) *page {
	return vm.pages[pageAlignDown(addr)]
}

// Map installs fresh, zero-filled pages covering [addr, addr+length) with
// the given permissions, overwriting any pages already present there
// (spec.md §4.3 MAP_FIXED: "unmap any existing pages ... and map fresh
// ones"). addr and length must already be page-aligned/rounded by the
// caller (pkg/kernel/mm.go does this).
func (vm *VirtualMemory) Map(addr uint32, length int, perm Perm) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	for off := 0; off < length; off += PageSize {
		a := addr + uint32(off)
		vm.pages[a] = &page{perm: perm | PermInit, data: make([]byte, PageSize)}
	}
}

// MapHost installs pages covering [addr, addr+length) backed directly by
// data (a host mmap'd region, or a slice large enough to stand in for
// one), so subsequent guest reads/writes alias the host mapping directly.
func (vm *VirtualMemory) MapHost(addr uint32, data []byte, perm Perm) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	for off := 0; off+PageSize <= len(data); off += PageSize {
		a := addr + uint32(off)
		vm.pages[a] = &page{perm: perm | PermInit, data: data[off : off+PageSize : off+PageSize]}
	}
}

// Unmap removes pages covering [addr, addr+length).
func (vm *VirtualMemory) Unmap(addr uint32, length int) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	for off := 0; off < length; off += PageSize {
		delete(vm.pages, addr+uint32(off))
	}
}

// Protect changes the permission set of every page covering
// [addr, addr+length); pages not currently mapped are left absent (the
// caller is expected to have verified the range is mapped where that
// matters).
func (vm *VirtualMemory) Protect(addr uint32, length int, perm Perm) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	for off := 0; off < length; off += PageSize {
		if p, ok := vm.pages[addr+uint32(off)]; ok {
			p.perm = perm | PermInit
		}
	}
}

// IsFree reports whether no page in [addr, addr+length) is mapped.
func (vm *VirtualMemory) IsFree(addr uint32, length int) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	for off := 0; off < length; off += PageSize {
		if _, ok := vm.pages[addr+uint32(off)]; ok {
			return false
		}
	}
	return true
}

// FindFreeDownward searches for a free span of length bytes starting at
// or below hint, per spec.md §4.3's non-MAP_FIXED placement policy:
// "search downward from addr ... for a free span of len; fatal if none".
func (vm *VirtualMemory) FindFreeDownward(hint uint32, length int) (uint32, bool) {
	length = RoundUpPages(length)
	addr := pageAlignDown(hint)
	for addr >= uint32(length) {
		if vm.IsFree(addr, length) {
			return addr, true
		}
		if addr < PageSize {
			break
		}
		addr -= PageSize
	}
	return 0, false
}

// Read copies n bytes starting at addr out of guest memory. Returns
// EFAULT if any covered page is unmapped or unreadable.
func (vm *VirtualMemory) Read(addr uint32, n int) ([]byte, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	out := make([]byte, n)
	if err := vm.copyOutLocked(addr, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Write copies data into guest memory at addr. Returns EFAULT if any
// covered page is unmapped or unwritable.
func (vm *VirtualMemory) Write(addr uint32, data []byte) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.copyInLocked(addr, data)
}

func (vm *VirtualMemory) copyOutLocked(addr uint32, out []byte) error {
	remaining := out
	cur := addr
	for len(remaining) > 0 {
		p := vm.pageAt(cur)
		if p == nil || !p.perm.Has(PermRead) {
			return linux.EFAULT
		}
		off := int(cur - pageAlignDown(cur))
		n := copy(remaining, p.data[off:])
		remaining = remaining[n:]
		cur += uint32(n)
	}
	return nil
}

func (vm *VirtualMemory) copyInLocked(addr uint32, data []byte) error {
	remaining := data
	cur := addr
	for len(remaining) > 0 {
		p := vm.pageAt(cur)
		if p == nil || !p.perm.Has(PermWrite) {
			return linux.EFAULT
		}
		off := int(cur - pageAlignDown(cur))
		n := copy(p.data[off:], remaining)
		remaining = remaining[n:]
		cur += uint32(n)
	}
	return nil
}

// Zero fills [addr, addr+n) with zero bytes.
func (vm *VirtualMemory) Zero(addr uint32, n int) error {
	return vm.Write(addr, make([]byte, n))
}

// CopyRange copies n bytes from src to dst within the same address space,
// used by mremap's "copy min(old,new) bytes" step (spec.md §4.3).
func (vm *VirtualMemory) CopyRange(dst, src uint32, n int) error {
	buf, err := vm.Read(src, n)
	if err != nil {
		return err
	}
	return vm.Write(dst, buf)
}

// ReadString reads a NUL-terminated string starting at addr, up to max
// bytes (spec.md §6: "strings are bounded by MAX_PATH_SIZE and
// fatal-overflow on exceedance" — the cap enforcement itself is the
// caller's job; ReadString just refuses to scan past max).
func (vm *VirtualMemory) ReadString(addr uint32, max int) (string, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	buf := make([]byte, 0, 64)
	cur := addr
	for len(buf) < max {
		p := vm.pageAt(cur)
		if p == nil || !p.perm.Has(PermRead) {
			return "", linux.EFAULT
		}
		off := int(cur - pageAlignDown(cur))
		for ; off < PageSize && len(buf) < max; off++ {
			b := p.data[off]
			if b == 0 {
				return string(buf), nil
			}
			buf = append(buf, b)
			cur++
		}
	}
	return "", linux.ERANGE
}

// WriteString writes s followed by a NUL terminator to guest memory.
func (vm *VirtualMemory) WriteString(addr uint32, s string) error {
	return vm.Write(addr, append([]byte(s), 0))
}

// ReadFDSet reads an fd_set bitmap of nfds bits from guest memory, per
// spec.md §4.2's select(2) support.
func (vm *VirtualMemory) ReadFDSet(addr uint32, nfds int) ([]bool, error) {
	nbytes := (nfds + 7) / 8
	raw, err := vm.Read(addr, nbytes)
	if err != nil {
		return nil, err
	}
	out := make([]bool, nfds)
	for i := 0; i < nfds; i++ {
		out[i] = raw[i/8]&(1<<uint(i%8)) != 0
	}
	return out, nil
}

// WriteFDSet writes set back as an fd_set bitmap at addr.
func (vm *VirtualMemory) WriteFDSet(addr uint32, set []bool) error {
	nbytes := (len(set) + 7) / 8
	raw := make([]byte, nbytes)
	for i, on := range set {
		if on {
			raw[i/8] |= 1 << uint(i%8)
		}
	}
	return vm.Write(addr, raw)
}
