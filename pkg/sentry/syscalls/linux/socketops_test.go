package linux

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	abi "github.com/multi2sim/m2sim-core/pkg/abi/linux"
	"github.com/multi2sim/m2sim-core/pkg/config"
	"github.com/multi2sim/m2sim-core/pkg/disk"
	"github.com/multi2sim/m2sim-core/pkg/kernel"
	"github.com/multi2sim/m2sim-core/pkg/klog"
)

// newTestTask builds a kernel and one task with a single mapped guest
// page, the minimum fixture every syscall test in this package needs.
func newTestTask(t *testing.T) (*kernel.Kernel, *kernel.Task) {
	t.Helper()
	cfg := config.Default()
	d, err := disk.Open(filepath.Join(t.TempDir(), "disk.img"), 512, 4)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	k := kernel.New(cfg, klog.Discard(), d)
	tsk := k.NewTask(1000, 0x08048000)
	tsk.VM.Map(0x08000000, 4096, kernel.PermRead|kernel.PermWrite)
	return k, tsk
}

// writeArgs packs args as the socketcall(2) ABI's argument array at addr.
func writeArgs(t *testing.T, tsk *kernel.Task, addr uint32, args ...uint32) {
	t.Helper()
	buf := make([]byte, 4*len(args))
	for i, a := range args {
		encU32(buf[i*4:i*4+4], a)
	}
	require.NoError(t, tsk.VM.Write(addr, buf))
}

func socketcall(t *testing.T, k *kernel.Kernel, tsk *kernel.Task, call uint32, argsAddr uint32) int32 {
	t.Helper()
	tsk.Regs.EAX = abi.SYS_SOCKETCALL
	tsk.Regs.EBX = call
	tsk.Regs.ECX = argsAddr
	ret, err := sysSocketcall(k, tsk)
	require.NoError(t, err)
	return ret
}

// TestSocketConnectedSendRecv exercises the whole stream-socket
// passthrough end to end over a real host AF_UNIX socket: socket, bind,
// listen, connect, accept, send, recv.
func TestSocketConnectedSendRecv(t *testing.T) {
	k, tsk := newTestTask(t)

	sockPath := filepath.Join(t.TempDir(), "m2sim-test.sock")

	const argsAddr = 0x08000000
	const sockaddrAddr = 0x08000040
	const msgAddr = 0x08000080
	const recvAddr = 0x080000c0

	var sa abi.Sockaddr
	sa.Family = abi.AF_UNIX
	sa.Path = sockPath
	require.NoError(t, tsk.VM.Write(sockaddrAddr, sa.MarshalABI()))

	writeArgs(t, tsk, argsAddr, abi.AF_UNIX, abi.SOCK_STREAM, 0)
	listenFD := socketcall(t, k, tsk, abi.SYS_SOCKET, argsAddr)
	require.GreaterOrEqual(t, listenFD, int32(0))

	writeArgs(t, tsk, argsAddr, uint32(listenFD), sockaddrAddr, 110)
	ret := socketcall(t, k, tsk, abi.SYS_BIND, argsAddr)
	require.Equal(t, int32(0), ret)

	writeArgs(t, tsk, argsAddr, uint32(listenFD), 1, 0)
	ret = socketcall(t, k, tsk, abi.SYS_LISTEN, argsAddr)
	require.Equal(t, int32(0), ret)

	writeArgs(t, tsk, argsAddr, abi.AF_UNIX, abi.SOCK_STREAM, 0)
	clientFD := socketcall(t, k, tsk, abi.SYS_SOCKET, argsAddr)
	require.GreaterOrEqual(t, clientFD, int32(0))

	writeArgs(t, tsk, argsAddr, uint32(clientFD), sockaddrAddr, 110)
	ret = socketcall(t, k, tsk, abi.SYS_CONNECT, argsAddr)
	require.Equal(t, int32(0), ret)

	writeArgs(t, tsk, argsAddr, uint32(listenFD), 0, 0)
	serverFD := socketcall(t, k, tsk, abi.SYS_ACCEPT, argsAddr)
	require.GreaterOrEqual(t, serverFD, int32(0))

	msg := []byte("ping")
	require.NoError(t, tsk.VM.Write(msgAddr, msg))
	writeArgs(t, tsk, argsAddr, uint32(clientFD), msgAddr, uint32(len(msg)), 0)
	n := socketcall(t, k, tsk, abi.SYS_SEND, argsAddr)
	require.Equal(t, int32(len(msg)), n)

	writeArgs(t, tsk, argsAddr, uint32(serverFD), recvAddr, uint32(len(msg)), 0)
	n = socketcall(t, k, tsk, abi.SYS_RECV, argsAddr)
	require.Equal(t, int32(len(msg)), n)

	got, err := tsk.VM.Read(recvAddr, len(msg))
	require.NoError(t, err)
	require.Equal(t, msg, got)
}

// TestSocketRejectsDatagram confirms the passthrough's "no datagram, no
// raw sockets" scope is enforced at socket(2) creation time.
func TestSocketRejectsDatagram(t *testing.T) {
	k, tsk := newTestTask(t)
	const argsAddr = 0x08000000
	const SOCK_DGRAM = 2

	writeArgs(t, tsk, argsAddr, abi.AF_INET, SOCK_DGRAM, 0)
	tsk.Regs.EAX = abi.SYS_SOCKETCALL
	tsk.Regs.EBX = abi.SYS_SOCKET
	tsk.Regs.ECX = argsAddr
	_, err := sysSocketcall(k, tsk)
	require.Equal(t, abi.EINVAL, err)
}
