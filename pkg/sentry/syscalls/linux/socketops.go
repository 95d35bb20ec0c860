package linux

import (
	"golang.org/x/sys/unix"

	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
	"github.com/multi2sim/m2sim-core/pkg/kernel"
	"github.com/multi2sim/m2sim-core/pkg/sentry/fsimpl/host"
)

// registerSocketOps wires the single multiplexed SYS_SOCKETCALL entry
// point the x86 ABI uses for every socket primitive, per spec.md §1 non-
// goals: "a thin stream-socket passthrough (modeled here as a single
// kind=socket FD entry backed by a host AF_UNIX/AF_INET stream socket —
// no datagram, no raw sockets)".
func registerSocketOps() {
	registerLinux(linux.SYS_SOCKETCALL, "socketcall", sysSocketcall)
}

// sysSocketcall decodes the subcommand in EBX and the packed argument
// array pointed to by ECX, matching the i386 socketcall(2) convention
// (every socket syscall is a single number, 102, dispatched by an inner
// call-number argument rather than each getting its own syscall number).
func sysSocketcall(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	call := t.Regs.Arg(0)
	argsAddr := t.Regs.Arg(1)

	switch call {
	case linux.SYS_SOCKET:
		return socketcallSocket(t, argsAddr)
	case linux.SYS_BIND:
		return socketcallBindConnect(t, argsAddr, false)
	case linux.SYS_CONNECT:
		return socketcallBindConnect(t, argsAddr, true)
	case linux.SYS_LISTEN:
		return socketcallListen(t, argsAddr)
	case linux.SYS_ACCEPT:
		return socketcallAccept(t, argsAddr)
	case linux.SYS_SEND, linux.SYS_SENDTO:
		return socketcallSend(t, argsAddr)
	case linux.SYS_RECV, linux.SYS_RECVFROM:
		return socketcallRecv(t, argsAddr)
	case linux.SYS_SHUTDOWN:
		return socketcallShutdown(t, argsAddr)
	case linux.SYS_SETSOCKOPT, linux.SYS_GETSOCKOPT:
		// No socket option this passthrough models; report success so a
		// guest probing e.g. SO_REUSEADDR doesn't treat it as fatal.
		return 0, nil
	default:
		return 0, linux.EINVAL
	}
}

// readArgs reads n packed uint32 arguments at addr, the socketcall ABI's
// "args" array.
func readArgs(t *kernel.Task, addr uint32, n int) ([]uint32, error) {
	raw, err := t.VM.Read(addr, n*4)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = decU32(raw[i*4 : i*4+4])
	}
	return out, nil
}

func socketcallSocket(t *kernel.Task, argsAddr uint32) (int32, error) {
	args, err := readArgs(t, argsAddr, 3)
	if err != nil {
		return 0, err
	}
	domain, typ := int(args[0]), int(args[1])
	if typ != linux.SOCK_STREAM {
		return 0, linux.EINVAL
	}
	if domain != linux.AF_UNIX && domain != linux.AF_INET {
		return 0, linux.EINVAL
	}
	hostFD, serr := host.Socket(domain, unix.SOCK_STREAM, 0)
	if serr != nil {
		return 0, linux.FromHostError(serr)
	}
	fd := t.Files.Allocate(kernel.FD{HostFD: hostFD, Kind: kernel.FDSocket})
	return fd, nil
}

// readSockaddr reads and decodes the (addr, addrlen) pair socket calls
// pass as two of the packed args, then converts it to the golang.org/x/
// sys/unix.Sockaddr host calls expect.
func readSockaddr(t *kernel.Task, addr uint32, addrlen uint32) (unix.Sockaddr, error) {
	raw, err := t.VM.Read(addr, int(addrlen))
	if err != nil {
		return nil, err
	}
	var sa linux.Sockaddr
	sa.UnmarshalABI(raw)
	switch sa.Family {
	case linux.AF_UNIX:
		return &unix.SockaddrUnix{Name: sa.Path}, nil
	case linux.AF_INET:
		return &unix.SockaddrInet4{Port: int(sa.Port), Addr: sa.Addr}, nil
	default:
		return nil, linux.EINVAL
	}
}

func socketcallBindConnect(t *kernel.Task, argsAddr uint32, connect bool) (int32, error) {
	args, err := readArgs(t, argsAddr, 3)
	if err != nil {
		return 0, err
	}
	fd := int32(args[0])
	e, gerr := t.Files.Get(fd)
	if gerr != nil {
		return 0, gerr
	}
	sa, serr := readSockaddr(t, args[1], args[2])
	if serr != nil {
		return 0, serr
	}
	if connect {
		if cerr := host.Connect(e.HostFD, sa); cerr != nil {
			return 0, linux.FromHostError(cerr)
		}
		return 0, nil
	}
	if berr := host.Bind(e.HostFD, sa); berr != nil {
		return 0, linux.FromHostError(berr)
	}
	return 0, nil
}

func socketcallListen(t *kernel.Task, argsAddr uint32) (int32, error) {
	args, err := readArgs(t, argsAddr, 2)
	if err != nil {
		return 0, err
	}
	fd := int32(args[0])
	e, gerr := t.Files.Get(fd)
	if gerr != nil {
		return 0, gerr
	}
	if lerr := host.Listen(e.HostFD, int(args[1])); lerr != nil {
		return 0, linux.FromHostError(lerr)
	}
	return 0, nil
}

// socketcallAccept blocks the host thread for the duration of the accept;
// this passthrough does not suspend-and-resume accept the way read/write
// do, since a listening socket is expected to already have a pending
// connection in the scripted scenarios this core drives (spec.md §1 scopes
// networking to a thin passthrough, not a full async accept path).
func socketcallAccept(t *kernel.Task, argsAddr uint32) (int32, error) {
	args, err := readArgs(t, argsAddr, 3)
	if err != nil {
		return 0, err
	}
	fd := int32(args[0])
	e, gerr := t.Files.Get(fd)
	if gerr != nil {
		return 0, gerr
	}
	newHostFD, peer, aerr := host.Accept(e.HostFD)
	if aerr != nil {
		return 0, linux.FromHostError(aerr)
	}
	newFD := t.Files.Allocate(kernel.FD{HostFD: newHostFD, Kind: kernel.FDSocket})

	if addrAddr := args[1]; addrAddr != 0 {
		if sa := encodeSockaddr(peer); sa != nil {
			t.VM.Write(addrAddr, sa.MarshalABI())
		}
	}
	return newFD, nil
}

func encodeSockaddr(sa unix.Sockaddr) *linux.Sockaddr {
	switch v := sa.(type) {
	case *unix.SockaddrUnix:
		return &linux.Sockaddr{Family: linux.AF_UNIX, Path: v.Name}
	case *unix.SockaddrInet4:
		out := &linux.Sockaddr{Family: linux.AF_INET, Port: uint16(v.Port)}
		copy(out.Addr[:], v.Addr[:])
		return out
	default:
		return nil
	}
}

// socketcallSend serves both send (4 args) and sendto (6 args, the extra
// dest address ignored since this passthrough only models connected
// stream sockets); it shares finishWriteNow with the regular write path.
func socketcallSend(t *kernel.Task, argsAddr uint32) (int32, error) {
	args, err := readArgs(t, argsAddr, 4)
	if err != nil {
		return 0, err
	}
	fd := int32(args[0])
	e, gerr := t.Files.Get(fd)
	if gerr != nil {
		return 0, gerr
	}
	return finishWriteNow(t, e.HostFD, args[1], args[2])
}

// socketcallRecv serves both recv (4 args) and recvfrom (6 args, the
// source-address out-params left unwritten for the same reason send
// ignores its destination).
func socketcallRecv(t *kernel.Task, argsAddr uint32) (int32, error) {
	args, err := readArgs(t, argsAddr, 4)
	if err != nil {
		return 0, err
	}
	fd := int32(args[0])
	e, gerr := t.Files.Get(fd)
	if gerr != nil {
		return 0, gerr
	}
	return finishReadNow(t, e.HostFD, args[1], args[2])
}

func socketcallShutdown(t *kernel.Task, argsAddr uint32) (int32, error) {
	args, err := readArgs(t, argsAddr, 2)
	if err != nil {
		return 0, err
	}
	fd := int32(args[0])
	e, gerr := t.Files.Get(fd)
	if gerr != nil {
		return 0, gerr
	}
	if serr := host.Shutdown(e.HostFD, int(args[1])); serr != nil {
		return 0, linux.FromHostError(serr)
	}
	return 0, nil
}
