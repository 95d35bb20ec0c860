package kernel

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// FatalError marks an unsupported-feature or invariant-violation
// condition that spec.md §7 says must abort the whole simulation rather
// than return a guest-visible errno: "the core aborts the simulation with
// a message that names the syscall and the specific unsupported
// parameter... guessing at semantics is worse than failing loudly."
type FatalError struct {
	err error
}

func (f *FatalError) Error() string { return f.err.Error() }

// Unwrap exposes the wrapped go-errors/errors value so %w-style chains
// and stack traces survive through recover().
func (f *FatalError) Unwrap() error { return f.err }

// Fatalf panics with a *FatalError built from go-errors/errors, the same
// error library used elsewhere in the ambient stack (pkg/disk). The
// dispatcher in pkg/sentry/syscalls/linux recovers this at its call
// boundary and turns it into a simulation-abort report rather than a
// per-syscall errno.
func Fatalf(format string, args ...interface{}) {
	panic(&FatalError{err: goerrors.New(fmt.Sprintf(format, args...))})
}
