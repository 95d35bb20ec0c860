// Package host bridges guest file descriptors to real host file
// descriptors. It is the concrete stand-in for the "file-descriptor
// table service" spec.md §6 specifies a contract for: open resolves a
// path against cwd and returns a host fd; read/write/close/dup/pipe are
// thin, explicit wrappers over golang.org/x/sys/unix so the rest of the
// core never imports syscall directly.
//
// Grounded on the host-fd import pattern in gVisor's
// pkg/sentry/fsimpl/host (fstat + fcntl(F_GETFL) to recover flags,
// SetNonblock before registering for readiness polling) but without that
// package's vfs.FileDescription/kernfs.Dentry machinery, which has no
// home in this simulator's single-process fd table model.
package host

import (
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ResolvePath joins path against cwd unless path is already absolute,
// per spec.md §6 ("any path argument is resolved against the context's
// working directory before host calls").
func ResolvePath(cwd, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(cwd, path)
}

// Open opens path on the host with the given guest open flags/mode,
// translating the guest's O_* bit values (which match the host's on
// Linux/386) directly through.
func Open(path string, flags int, mode uint32) (int, error) {
	fd, err := unix.Open(path, flags, mode)
	if err != nil {
		return -1, err
	}
	return fd, nil
}

// Close closes a host fd. Per spec.md §4.2 and the Fd-conventions note in
// §6, fds 0,1,2 are never actually closed at the host level even when
// their guest table entry is freed.
func Close(hostFD int) error {
	if hostFD <= 2 {
		return nil
	}
	return unix.Close(hostFD)
}

// SetNonblocking marks hostFD O_NONBLOCK at the host level so a guest
// blocking read/write can be serviced by polling readiness instead of
// actually blocking the simulator's single OS thread.
func SetNonblocking(hostFD int) error {
	return unix.SetNonblock(hostFD, true)
}

// Read and Write are direct passthroughs, isolating the only two
// syscall.Read/Write call sites the core needs.
func Read(hostFD int, buf []byte) (int, error)  { return unix.Read(hostFD, buf) }
func Write(hostFD int, buf []byte) (int, error) { return unix.Write(hostFD, buf) }

// Pipe creates a host pipe, returning (readFD, writeFD), per spec.md
// §4.2 ("pipe: creates a host pipe and two entries of kind pipe").
func Pipe() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

// Dup host-duplicates hostFD.
func Dup(hostFD int) (int, error) { return unix.Dup(hostFD) }

// Fstat wraps the host fstat(2) call used by stat64/fstat64.
func Fstat(hostFD int) (unix.Stat_t, error) {
	var st unix.Stat_t
	err := unix.Fstat(hostFD, &st)
	return st, err
}

// Stat wraps the host stat(2) call used by stat64, and Lstat the
// host lstat(2) call used by lstat64.
func Stat(path string) (unix.Stat_t, error) {
	var st unix.Stat_t
	err := unix.Stat(path, &st)
	return st, err
}

func Lstat(path string) (unix.Stat_t, error) {
	var st unix.Stat_t
	err := unix.Lstat(path, &st)
	return st, err
}

// Seek wraps lseek(2). offsetHigh must be 0 or -1 for llseek per spec.md
// §4.2 ("llseek fails if offset_high is non-zero and non-minus-one") —
// callers enforce that before calling Seek.
func Seek(hostFD int, offset int64, whence int) (int64, error) {
	return unix.Seek(hostFD, offset, whence)
}

// Ftruncate wraps ftruncate64.
func Ftruncate(hostFD int, length int64) error {
	return unix.Ftruncate(hostFD, length)
}

// CreateTemp creates the host backing file for a "virtual" fd entry
// (spec.md GLOSSARY "Virtual file"): a temporary host file materializing
// a synthetic /proc entry, opened with the guest's requested flags.
func CreateTemp(pattern string) (*os.File, error) {
	return os.CreateTemp("", pattern)
}

// Remove deletes the backing file of a virtual fd entry on close.
func Remove(path string) error {
	return os.Remove(path)
}

// Getdents wraps the host getdents64(2) syscall, returning the raw host
// buffer for fileops.go to re-pack into the guest's 32-bit dirent layout
// (spec.md §4.2: "calls the host getdents and re-packs entries into the
// 32-bit guest record layout").
func Getdents(hostFD int, buf []byte) (int, error) {
	return unix.Getdents(hostFD, buf)
}

// Ioctl wraps ioctl(2) for the termios command range (spec.md §4.2).
func Ioctl(hostFD int, cmd uint32, argp []byte) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(hostFD), uintptr(cmd), uintptr(ptrOf(argp)))
	if errno != 0 {
		return errno
	}
	return nil
}

// Socket, Connect, Bind, Listen and Accept back the stream-socket
// passthrough (spec.md §1 non-goals: "a thin stream-socket passthrough...
// no datagram, no raw sockets") with real host AF_UNIX/AF_INET stream
// sockets. Once connected or accepted, a socket's host fd reads and
// writes exactly like any other host fd, so send/recv reuse Read/Write
// above rather than duplicating them.
func Socket(domain, typ, proto int) (int, error) {
	fd, err := unix.Socket(domain, typ, proto)
	if err != nil {
		return -1, err
	}
	return fd, nil
}

func Connect(hostFD int, sa unix.Sockaddr) error {
	return unix.Connect(hostFD, sa)
}

func Bind(hostFD int, sa unix.Sockaddr) error {
	return unix.Bind(hostFD, sa)
}

func Listen(hostFD int, backlog int) error {
	return unix.Listen(hostFD, backlog)
}

func Accept(hostFD int) (int, unix.Sockaddr, error) {
	return unix.Accept(hostFD)
}

func Shutdown(hostFD int, how int) error {
	return unix.Shutdown(hostFD, how)
}

func ptrOf(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return unsafe.Pointer(nil)
	}
	return unsafe.Pointer(&b[0])
}
