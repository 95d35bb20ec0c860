package linux

import "golang.org/x/sys/unix"

// These compile-time assertions pin the guest ABI's PROT_*/MAP_* numeric
// values to the host's, per the "Bit-exact ABI compatibility checks" design
// note in spec.md §9: do_mmap is specified to "verify host protection and
// flag constants match the assumed numeric values (compile-time
// invariant)". A mismatch here means this core is running on a host whose
// mmap semantics cannot be passed through directly and must fail to build
// rather than silently misbehave.
var (
	_ [0]struct{} = [PROT_NONE - unix.PROT_NONE]struct{}{}
	_ [0]struct{} = [PROT_READ - unix.PROT_READ]struct{}{}
	_ [0]struct{} = [PROT_WRITE - unix.PROT_WRITE]struct{}{}
	_ [0]struct{} = [PROT_EXEC - unix.PROT_EXEC]struct{}{}
	_ [0]struct{} = [MAP_SHARED - unix.MAP_SHARED]struct{}{}
	_ [0]struct{} = [MAP_PRIVATE - unix.MAP_PRIVATE]struct{}{}
	_ [0]struct{} = [MAP_FIXED - unix.MAP_FIXED]struct{}{}
	_ [0]struct{} = [MAP_ANONYMOUS - unix.MAP_ANON]struct{}{}
)
