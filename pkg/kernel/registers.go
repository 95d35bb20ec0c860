// Package kernel implements the execution-context and global-state model
// of the syscall emulation core: tasks, the fd table, guest memory
// mapping, signals, futexes, and the cooperative event tick. It is the
// concrete, in-repo version of the "current context" every handler in
// pkg/sentry/syscalls/linux takes explicitly, per the re-architecture note
// in spec.md §9 ("Ambient global current context pointer").
package kernel

// Registers is the 32-bit x86 register snapshot spec.md §3 assigns to
// each execution context: "EAX, EBX, ECX, EDX, ESI, EDI, EBP, ESP, EIP,
// EFLAGS, segment bases/limits". The syscall core only ever reads the
// syscall number and up to six arguments from it, and writes back a
// single result register, per the guest register contract in spec.md §6.
type Registers struct {
	EAX, EBX, ECX, EDX, ESI, EDI, EBP, ESP, EIP, EFLAGS uint32

	// Segment bases/limits, indexed by selector. Only selector 6 (TLS)
	// is ever written by the core (CLONE_SETTLS / set_thread_area).
	GDTBase  [8]uint32
	GDTLimit [8]uint32
}

// SyscallNumber returns the syscall number the dispatcher reads from EAX
// at syscall entry (spec.md §6).
func (r *Registers) SyscallNumber() uint32 { return r.EAX }

// Arg returns argument n (0-based) of a syscall, read from the ABI's
// fixed argument-register order EBX, ECX, EDX, ESI, EDI, EBP.
func (r *Registers) Arg(n int) uint32 {
	switch n {
	case 0:
		return r.EBX
	case 1:
		return r.ECX
	case 2:
		return r.EDX
	case 3:
		return r.ESI
	case 4:
		return r.EDI
	case 5:
		return r.EBP
	default:
		panic("kernel: syscall argument index out of range")
	}
}

// SetReturn writes v into the result register (EAX), honoring the
// negative-on-error ABI convention. Per spec.md §4.1, callers are expected
// to have already normalized glibc-style -1/errno pairs to a single
// negative errno before calling this.
func (r *Registers) SetReturn(v int32) {
	r.EAX = uint32(v)
}

// TLSSelector is the GDT entry CLONE_SETTLS/set_thread_area always target
// (spec.md §4.4: "force entry slot 6").
const TLSSelector = 6

// SetTLS installs base/limit at the TLS selector.
func (r *Registers) SetTLS(base, limit uint32) {
	r.GDTBase[TLSSelector] = base
	r.GDTLimit[TLSSelector] = limit
}
