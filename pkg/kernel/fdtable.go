package kernel

import (
	"sort"
	"sync"

	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
)

// FDKind identifies the lifecycle class of a file-descriptor table entry,
// per the GLOSSARY in spec.md: "one of regular, pipe, socket, virtual —
// governs lifecycle on close".
type FDKind int

const (
	FDRegular FDKind = iota
	FDPipe
	FDSocket
	FDVirtual
)

// FD is one file-descriptor table entry (spec.md §3).
type FD struct {
	HostFD int
	Kind   FDKind
	Flags  uint32
	Path   string

	// VirtualPath is the backing temp file for a FDVirtual entry,
	// deleted on close (spec.md GLOSSARY: "Virtual file").
	VirtualPath string

	// Offset tracks this simulator's notion of the current read/write
	// position for entries where the host fd's own offset cannot be
	// trusted to be shared correctly across dup'd guest fds.
	Offset int64
}

// FDTable maps guest fds to FD entries. One FDTable is shared by every
// kernel.Task cloned with CLONE_FILES, exclusive otherwise (spec.md §4.4).
// Invariant (spec.md §8): guest fds returned by open/pipe/dup/socket are
// distinct within one table.
type FDTable struct {
	mu      sync.Mutex
	entries map[int32]*FD
	sharers int
}

// NewFDTable returns a table pre-populated with fds 0,1,2 mapped to the
// host's stdin/stdout/stderr, per spec.md §6 ("Fd conventions").
func NewFDTable() *FDTable {
	t := &FDTable{entries: make(map[int32]*FD), sharers: 1}
	for i := 0; i < 3; i++ {
		t.entries[int32(i)] = &FD{HostFD: i, Kind: FDRegular, Flags: 0}
	}
	return t
}

// Fork returns a table to be shared with a new owner (CLONE_FILES set) —
// same pointer, refcounted — or a deep copy (CLONE_FILES unset), per
// spec.md §4.4's "share bits drive whether ... fd table ... is shared".
func (t *FDTable) Fork(share bool) *FDTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	if share {
		t.sharers++
		return t
	}
	clone := &FDTable{entries: make(map[int32]*FD, len(t.entries)), sharers: 1}
	for k, v := range t.entries {
		cp := *v
		clone.entries[k] = &cp
	}
	return clone
}

// Release decrements the share count, returning true if this was the last
// owner (so the caller should close every remaining host fd).
func (t *FDTable) Release() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sharers--
	return t.sharers <= 0
}

// Allocate installs a new entry at the smallest unused guest fd.
func (t *FDTable) Allocate(e FD) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var fd int32
	for {
		if _, used := t.entries[fd]; !used {
			break
		}
		fd++
	}
	cp := e
	t.entries[fd] = &cp
	return fd
}

// AllocateAt installs e at a caller-chosen guest fd (used by dup2).
func (t *FDTable) AllocateAt(fd int32, e FD) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := e
	t.entries[fd] = &cp
}

// Get returns the entry for fd, or (nil, EBADF) per spec.md §4.2 ("fails
// with EBADF if the guest fd is unknown").
func (t *FDTable) Get(fd int32) (*FD, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[fd]
	if !ok {
		return nil, linux.EBADF
	}
	return e, nil
}

// Free removes fd from the table and returns its entry so the caller can
// decide host-level teardown (close the host fd unless it is <=2, delete
// a virtual backing file), per spec.md §4.2 "close".
func (t *FDTable) Free(fd int32) (*FD, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[fd]
	if !ok {
		return nil, linux.EBADF
	}
	delete(t.entries, fd)
	return e, nil
}

// HighestFD returns the largest currently-allocated guest fd, or -1 if
// the table is empty. Used by getdents-style iteration and tests.
func (t *FDTable) HighestFD() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	max := int32(-1)
	for fd := range t.entries {
		if fd > max {
			max = fd
		}
	}
	return max
}

// All returns every allocated guest fd, ascending, for select/poll fan-out
// and debug listing.
func (t *FDTable) All() []int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	fds := make([]int32, 0, len(t.entries))
	for fd := range t.entries {
		fds = append(fds, fd)
	}
	sort.Slice(fds, func(i, j int) bool { return fds[i] < fds[j] })
	return fds
}
