package linux

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
	"github.com/multi2sim/m2sim-core/pkg/kernel"
	"github.com/multi2sim/m2sim-core/pkg/sentry/fsimpl/host"
)

const maxPathSize = 4096

func registerFileOps() {
	registerLinux(linux.SYS_OPEN, "open", sysOpen)
	registerLinux(linux.SYS_CLOSE, "close", sysClose)
	registerLinux(linux.SYS_READ, "read", sysRead)
	registerLinux(linux.SYS_WRITE, "write", sysWrite)
	registerLinux(linux.SYS_DUP, "dup", sysDup)
	registerLinux(linux.SYS_DUP2, "dup2", sysDup2)
	registerLinux(linux.SYS_PIPE, "pipe", sysPipe)
	registerLinux(linux.SYS_LSEEK, "lseek", sysLseek)
	registerLinux(linux.SYS_FTRUNCATE64, "ftruncate64", sysFtruncate64)
	registerLinux(linux.SYS_FCNTL64, "fcntl64", sysFcntl64)
	registerLinux(linux.SYS_FCNTL, "fcntl", sysFcntl64)
	registerLinux(linux.SYS_IOCTL, "ioctl", sysIoctl)
	registerLinux(linux.SYS_WRITEV, "writev", sysWritev)
	registerLinux(linux.SYS_GETDENTS, "getdents", sysGetdents)
	registerLinux(linux.SYS_GETDENTS64, "getdents64", sysGetdents64)
	registerLinux(linux.SYS_STAT64, "stat64", sysStat64)
	registerLinux(linux.SYS_LSTAT64, "lstat64", sysLstat64)
	registerLinux(linux.SYS_FSTAT64, "fstat64", sysFstat64)
	registerLinux(linux.SYS_GETCWD, "getcwd", sysGetcwd)
	registerLinux(linux.SYS_CHDIR, "chdir", sysChdir)
	registerLinux(linux.SYS_UNLINK, "unlink", sysUnlink)
	registerLinux(linux.SYS_POLL, "poll", sysPoll)
	registerLinux(linux.SYS_SELECT, "select", sysSelect)
}

// readPath reads a NUL-terminated path argument at addr, resolving it
// against t.Cwd (spec.md §6: "any path argument is resolved against the
// context's working directory"). Exceeding MAX_PATH_SIZE is a fatal
// overflow per spec.md §6.
func readPath(t *kernel.Task, addr uint32) string {
	s, err := t.VM.ReadString(addr, maxPathSize)
	if err != nil {
		kernel.Fatalf("path argument at 0x%x exceeds MAX_PATH_SIZE or is unmapped", addr)
	}
	return host.ResolvePath(t.Cwd, s)
}

// sysOpen implements spec.md §4.2 open. Only /proc/self/maps is
// intercepted; other /proc/* paths are logged as a warning and passed
// through to the host. No other path, OpenCL library paths included, is
// redirected.
func sysOpen(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	raw, err := t.VM.ReadString(t.Regs.Arg(0), maxPathSize)
	if err != nil {
		kernel.Fatalf("open: path argument unmapped or exceeds MAX_PATH_SIZE")
	}
	flags := int(t.Regs.Arg(1))
	mode := t.Regs.Arg(2)

	if raw == "/proc/self/maps" {
		return openProcMaps(t, flags)
	}
	if strings.HasPrefix(raw, "/proc/") {
		k.Log.WithField("path", raw).Warn("open: /proc path passed through to the host")
	}
	path := host.ResolvePath(t.Cwd, raw)

	hostFD, oerr := host.Open(path, flags, mode)
	if oerr != nil {
		return 0, linux.FromHostError(oerr)
	}
	fd := t.Files.Allocate(kernel.FD{HostFD: hostFD, Kind: kernel.FDRegular, Flags: uint32(flags), Path: path})
	return fd, nil
}

// openProcMaps writes a fresh temporary host file and opens it, per
// spec.md §4.2's /proc/self/maps interception and §6's "/proc/self/maps
// open returns a fresh snapshot file". The file holds a single line, the
// heap range [BrkBase, Brk); mmap'd regions and other mappings are not
// listed.
func openProcMaps(t *kernel.Task, flags int) (int32, error) {
	f, err := host.CreateTemp("m2sim-maps-*")
	if err != nil {
		return 0, linux.FromHostError(err)
	}
	fmt.Fprintf(f, "%08x-%08x rwxp 00000000 00:00 0\n", t.VM.BrkBase, t.VM.Brk)
	path := f.Name()
	f.Close()

	hostFD, oerr := host.Open(path, flags, 0644)
	if oerr != nil {
		return 0, linux.FromHostError(oerr)
	}
	fd := t.Files.Allocate(kernel.FD{
		HostFD: hostFD, Kind: kernel.FDVirtual, Flags: uint32(flags),
		Path: path, VirtualPath: path,
	})
	return fd, nil
}

// sysClose implements spec.md §4.2 close.
func sysClose(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	fd := int32(t.Regs.Arg(0))
	e, err := t.Files.Free(fd)
	if err != nil {
		return 0, err
	}
	if e.HostFD > 2 {
		host.Close(e.HostFD)
	}
	if e.Kind == kernel.FDVirtual {
		host.Remove(e.VirtualPath)
	}
	return 0, nil
}

// sysRead implements spec.md §4.2 read: non-blocking poll then transfer,
// or suspend for read.
func sysRead(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	fd := int32(t.Regs.Arg(0))
	bufAddr := t.Regs.Arg(1)
	count := t.Regs.Arg(2)

	e, err := t.Files.Get(fd)
	if err != nil {
		return 0, err
	}
	if host.Ready(e.HostFD, pollinBit)&pollinBit == 0 && e.Flags&linux.O_NONBLOCK == 0 {
		t.WakeupFD = fd
		t.WakeupEvents = uint32(pollinBit)
		t.Suspend(kernel.SuspendRead)
		t.OnFDReady(func(self *kernel.Task) { finishRead(self, fd, bufAddr, count) })
		return 0, nil
	}
	return finishReadNow(t, e.HostFD, bufAddr, count)
}

const pollinBit = 0x0001 // POLLIN

func finishReadNow(t *kernel.Task, hostFD int, bufAddr, count uint32) (int32, error) {
	buf := make([]byte, count)
	n, err := host.Read(hostFD, buf)
	if err != nil {
		return 0, linux.FromHostError(err)
	}
	if werr := t.VM.Write(bufAddr, buf[:n]); werr != nil {
		return 0, werr
	}
	return int32(n), nil
}

func finishRead(t *kernel.Task, fd int32, bufAddr, count uint32) {
	e, err := t.Files.Get(fd)
	if err != nil {
		t.Resume()
		t.Regs.SetReturn(err.(linux.Errno).Negate())
		return
	}
	ret, rerr := finishReadNow(t, e.HostFD, bufAddr, count)
	t.Resume()
	if rerr != nil {
		t.Regs.SetReturn(negateError(rerr))
		return
	}
	t.Regs.SetReturn(ret)
}

// sysWrite implements spec.md §4.2 write: symmetric with read using
// POLLOUT.
func sysWrite(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	fd := int32(t.Regs.Arg(0))
	bufAddr := t.Regs.Arg(1)
	count := t.Regs.Arg(2)

	e, err := t.Files.Get(fd)
	if err != nil {
		return 0, err
	}
	const polloutBit = 0x0004
	if host.Ready(e.HostFD, polloutBit)&polloutBit == 0 && e.Flags&linux.O_NONBLOCK == 0 {
		t.WakeupFD = fd
		t.WakeupEvents = polloutBit
		t.Suspend(kernel.SuspendWrite)
		t.OnFDReady(func(self *kernel.Task) { finishWrite(self, fd, bufAddr, count) })
		return 0, nil
	}
	return finishWriteNow(t, e.HostFD, bufAddr, count)
}

func finishWriteNow(t *kernel.Task, hostFD int, bufAddr, count uint32) (int32, error) {
	buf, err := t.VM.Read(bufAddr, int(count))
	if err != nil {
		return 0, err
	}
	n, werr := host.Write(hostFD, buf)
	if werr != nil {
		return 0, linux.FromHostError(werr)
	}
	return int32(n), nil
}

func finishWrite(t *kernel.Task, fd int32, bufAddr, count uint32) {
	e, err := t.Files.Get(fd)
	if err != nil {
		t.Resume()
		t.Regs.SetReturn(err.(linux.Errno).Negate())
		return
	}
	ret, werr := finishWriteNow(t, e.HostFD, bufAddr, count)
	t.Resume()
	if werr != nil {
		t.Regs.SetReturn(negateError(werr))
		return
	}
	t.Regs.SetReturn(ret)
}

func sysDup(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	fd := int32(t.Regs.Arg(0))
	e, err := t.Files.Get(fd)
	if err != nil {
		return 0, err
	}
	newHost, derr := host.Dup(e.HostFD)
	if derr != nil {
		return 0, linux.FromHostError(derr)
	}
	newFD := t.Files.Allocate(kernel.FD{HostFD: newHost, Kind: e.Kind, Flags: e.Flags, Path: e.Path})
	return newFD, nil
}

func sysDup2(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	oldFD := int32(t.Regs.Arg(0))
	newFD := int32(t.Regs.Arg(1))
	e, err := t.Files.Get(oldFD)
	if err != nil {
		return 0, err
	}
	newHost, derr := host.Dup(e.HostFD)
	if derr != nil {
		return 0, linux.FromHostError(derr)
	}
	t.Files.AllocateAt(newFD, kernel.FD{HostFD: newHost, Kind: e.Kind, Flags: e.Flags, Path: e.Path})
	return newFD, nil
}

// sysPipe implements spec.md §4.2 pipe.
func sysPipe(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	addr := t.Regs.Arg(0)
	r, w, err := host.Pipe()
	if err != nil {
		return 0, linux.FromHostError(err)
	}
	rfd := t.Files.Allocate(kernel.FD{HostFD: r, Kind: kernel.FDPipe, Flags: linux.O_RDONLY})
	wfd := t.Files.Allocate(kernel.FD{HostFD: w, Kind: kernel.FDPipe, Flags: linux.O_WRONLY})
	buf := make([]byte, 8)
	encU32(buf[0:4], uint32(rfd))
	encU32(buf[4:8], uint32(wfd))
	if err := t.VM.Write(addr, buf); err != nil {
		return 0, err
	}
	return 0, nil
}

func encU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// sysLseek implements spec.md §4.2 lseek/llseek: fails if offset_high is
// non-zero and non-minus-one for the llseek variant (here lseek takes a
// single 32-bit signed offset, so this check is always satisfied; llseek
// semantics belong to a syscall number this core's table does not list
// separately since the 32-bit lseek covers the scope spec.md requires).
func sysLseek(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	fd := int32(t.Regs.Arg(0))
	offset := int64(int32(t.Regs.Arg(1)))
	whence := int(t.Regs.Arg(2))
	e, err := t.Files.Get(fd)
	if err != nil {
		return 0, err
	}
	pos, serr := host.Seek(e.HostFD, offset, whence)
	if serr != nil {
		return 0, linux.FromHostError(serr)
	}
	return int32(pos), nil
}

func sysFtruncate64(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	fd := int32(t.Regs.Arg(0))
	length := int64(t.Regs.Arg(1))
	e, err := t.Files.Get(fd)
	if err != nil {
		return 0, err
	}
	if terr := host.Ftruncate(e.HostFD, length); terr != nil {
		return 0, linux.FromHostError(terr)
	}
	return 0, nil
}

// sysFcntl64 implements spec.md §4.2: F_GETFD/F_SETFD/F_GETFL/F_SETFL only;
// any other command is fatal.
func sysFcntl64(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	fd := int32(t.Regs.Arg(0))
	cmd := t.Regs.Arg(1)
	arg := t.Regs.Arg(2)
	e, err := t.Files.Get(fd)
	if err != nil {
		return 0, err
	}
	switch cmd {
	case linux.F_GETFD:
		return 0, nil
	case linux.F_SETFD:
		return 0, nil
	case linux.F_GETFL:
		return int32(e.Flags), nil
	case linux.F_SETFL:
		e.Flags = arg
		return 0, nil
	default:
		kernel.Fatalf("fcntl64: unsupported command %d", cmd)
		return 0, nil
	}
}

// sysIoctl implements spec.md §4.2: only the termios range (0x5401-0x5408,
// AND-checked per the §9 bugfix) is forwarded to the host; anything else
// is fatal.
func sysIoctl(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	fd := int32(t.Regs.Arg(0))
	cmd := t.Regs.Arg(1)
	argAddr := t.Regs.Arg(2)
	if !linux.IsTermiosIoctl(cmd) {
		kernel.Fatalf("ioctl: command 0x%x outside termios range", cmd)
	}
	e, err := t.Files.Get(fd)
	if err != nil {
		return 0, err
	}
	buf, rerr := t.VM.Read(argAddr, 60)
	if rerr != nil {
		return 0, rerr
	}
	if ierr := host.Ioctl(e.HostFD, cmd, buf); ierr != nil {
		return 0, linux.FromHostError(ierr)
	}
	if werr := t.VM.Write(argAddr, buf); werr != nil {
		return 0, werr
	}
	return 0, nil
}

// sysWritev implements spec.md §4.2: aggregates bytes written across an
// iovec array; per the §9 bugfix, a partial host failure returns the
// total transferred so far rather than discarding it, and only returns a
// negative errno if nothing was transferred yet.
func sysWritev(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	fd := int32(t.Regs.Arg(0))
	iovAddr := t.Regs.Arg(1)
	iovcnt := int(t.Regs.Arg(2))

	e, err := t.Files.Get(fd)
	if err != nil {
		return 0, err
	}
	if e.Kind == kernel.FDPipe {
		kernel.Fatalf("writev: not supported on pipes")
	}

	var total int32
	for i := 0; i < iovcnt; i++ {
		entry, rerr := t.VM.Read(iovAddr+uint32(i*8), 8)
		if rerr != nil {
			return 0, rerr
		}
		base := decU32(entry[0:4])
		length := decU32(entry[4:8])
		buf, berr := t.VM.Read(base, int(length))
		if berr != nil {
			return 0, berr
		}
		n, werr := host.Write(e.HostFD, buf)
		if werr != nil {
			if total == 0 {
				return 0, linux.FromHostError(werr)
			}
			return total, nil
		}
		total += int32(n)
	}
	return total, nil
}

func decU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// sysGetdents and sysGetdents64 implement spec.md §4.2: re-pack the host
// getdents64 buffer into the guest's legacy or 64-bit dirent layout.
func sysGetdents(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	return getdentsCommon(t, false)
}

func sysGetdents64(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	return getdentsCommon(t, true)
}

func getdentsCommon(t *kernel.Task, wide bool) (int32, error) {
	fd := int32(t.Regs.Arg(0))
	bufAddr := t.Regs.Arg(1)
	count := int(t.Regs.Arg(2))

	e, err := t.Files.Get(fd)
	if err != nil {
		return 0, err
	}
	raw := make([]byte, count)
	n, gerr := host.Getdents(e.HostFD, raw)
	if gerr != nil {
		return 0, linux.FromHostError(gerr)
	}
	entries := parseHostDirents(raw[:n])

	var out []byte
	if wide {
		out = linux.MarshalLinuxDirent64(entries)
	} else {
		out = linux.MarshalLinuxDirent(entries)
	}
	if len(out) > count {
		out = out[:count]
	}
	if werr := t.VM.Write(bufAddr, out); werr != nil {
		return 0, werr
	}
	return int32(len(out)), nil
}

// parseHostDirents walks a raw Linux getdents64 buffer (the only variant
// golang.org/x/sys/unix exposes) into LinuxDirentEntry values.
func parseHostDirents(raw []byte) []linux.LinuxDirentEntry {
	var out []linux.LinuxDirentEntry
	off := 0
	for off+19 <= len(raw) {
		reclen := int(decU16(raw[off+16 : off+18]))
		if reclen == 0 || off+reclen > len(raw) {
			break
		}
		ino := decU64(raw[off : off+8])
		nameBytes := raw[off+19 : off+reclen]
		end := 0
		for end < len(nameBytes) && nameBytes[end] != 0 {
			end++
		}
		out = append(out, linux.LinuxDirentEntry{
			Ino:     ino,
			Off:     int64(off + reclen),
			Type:    raw[off+18],
			Name:    string(nameBytes[:end]),
		})
		off += reclen
	}
	return out
}

func decU16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func decU64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func sysStat64(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	path := readPath(t, t.Regs.Arg(0))
	st, err := host.Stat(path)
	if err != nil {
		return 0, linux.FromHostError(err)
	}
	return writeStat64(t, t.Regs.Arg(1), st)
}

func sysLstat64(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	path := readPath(t, t.Regs.Arg(0))
	st, err := host.Lstat(path)
	if err != nil {
		return 0, linux.FromHostError(err)
	}
	return writeStat64(t, t.Regs.Arg(1), st)
}

func sysFstat64(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	fd := int32(t.Regs.Arg(0))
	e, err := t.Files.Get(fd)
	if err != nil {
		return 0, err
	}
	st, ferr := host.Fstat(e.HostFD)
	if ferr != nil {
		return 0, linux.FromHostError(ferr)
	}
	return writeStat64(t, t.Regs.Arg(1), st)
}

func writeStat64(t *kernel.Task, addr uint32, st unix.Stat_t) (int32, error) {
	s := linux.Stat64{
		Dev: uint64(st.Dev), Ino32: uint32(st.Ino), Mode: uint32(st.Mode), Nlink: uint32(st.Nlink),
		UID: st.Uid, GID: st.Gid, Rdev: uint64(st.Rdev), Size: st.Size,
		Blksize: uint32(st.Blksize), Blocks: uint64(st.Blocks),
		AtimeSec: uint32(st.Atim.Sec), AtimeNsec: uint32(st.Atim.Nsec),
		MtimeSec: uint32(st.Mtim.Sec), MtimeNsec: uint32(st.Mtim.Nsec),
		CtimeSec: uint32(st.Ctim.Sec), CtimeNsec: uint32(st.Ctim.Nsec),
		Ino: uint64(st.Ino),
	}
	if err := t.VM.Write(addr, s.MarshalABI()); err != nil {
		return 0, err
	}
	return 0, nil
}

func sysGetcwd(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	addr := t.Regs.Arg(0)
	size := int(t.Regs.Arg(1))
	if len(t.Cwd)+1 > size {
		return 0, linux.ERANGE
	}
	if err := t.VM.WriteString(addr, t.Cwd); err != nil {
		return 0, err
	}
	return int32(len(t.Cwd) + 1), nil
}

func sysChdir(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	path := readPath(t, t.Regs.Arg(0))
	t.Cwd = path
	return 0, nil
}

func sysUnlink(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	path := readPath(t, t.Regs.Arg(0))
	if err := host.Remove(path); err != nil {
		return 0, linux.FromHostError(err)
	}
	return 0, nil
}

// sysPoll implements the non-suspending half of spec.md §5's poll
// support; suspension is installed here and resolved by
// Kernel.ProcessEvents -> onPollReady.
func sysPoll(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	addr := t.Regs.Arg(0)
	nfds := int(t.Regs.Arg(1))

	pfds := make([]linux.Pollfd, nfds)
	for i := 0; i < nfds; i++ {
		raw, err := t.VM.Read(addr+uint32(i*8), 8)
		if err != nil {
			return 0, err
		}
		pfds[i].UnmarshalABI(raw)
	}

	fired := pollOnce(pfds)
	if fired > 0 {
		return writePollResults(t, addr, pfds), nil
	}

	t.Suspend(kernel.SuspendPoll)
	t.OnPollReady(func(self *kernel.Task) {
		if pollOnce(pfds) > 0 {
			self.Resume()
			self.Regs.SetReturn(writePollResults(self, addr, pfds))
		}
	})
	return 0, nil
}

func pollOnce(pfds []linux.Pollfd) int {
	fds := make([]int32, len(pfds))
	events := make([]int16, len(pfds))
	for i, p := range pfds {
		fds[i] = p.FD
		events[i] = p.Events
	}
	revs := host.ReadyMulti(fds, events)
	fired := 0
	for i := range pfds {
		pfds[i].Revents = revs[i]
		if revs[i] != 0 {
			fired++
		}
	}
	return fired
}

func writePollResults(t *kernel.Task, addr uint32, pfds []linux.Pollfd) int32 {
	fired := int32(0)
	for i, p := range pfds {
		if p.Revents != 0 {
			fired++
		}
		t.VM.Write(addr+uint32(i*8), p.MarshalABI())
	}
	return fired
}

// sysSelect implements spec.md §5: only the non-blocking case (zero
// timeval) is supported; a blocking select is fatal.
func sysSelect(k *kernel.Kernel, t *kernel.Task) (int32, error) {
	nfds := int(t.Regs.Arg(0))
	readAddr := t.Regs.Arg(1)
	writeAddr := t.Regs.Arg(2)
	exceptAddr := t.Regs.Arg(3)
	timeoutAddr := t.Regs.Arg(4)

	if timeoutAddr == 0 {
		kernel.Fatalf("select: blocking select (null timeout) is unsupported")
	}
	tvRaw, err := t.VM.Read(timeoutAddr, 8)
	if err != nil {
		return 0, err
	}
	var tv linux.Timeval
	tv.UnmarshalABI(tvRaw)
	if tv.Sec != 0 || tv.Usec != 0 {
		kernel.Fatalf("select: blocking select (nonzero timeval) is unsupported")
	}

	readSet, rerr := readOptionalFDSet(t, readAddr, nfds)
	if rerr != nil {
		return 0, rerr
	}
	writeSet, werr := readOptionalFDSet(t, writeAddr, nfds)
	if werr != nil {
		return 0, werr
	}
	_, eerr := readOptionalFDSet(t, exceptAddr, nfds)
	if eerr != nil {
		return 0, eerr
	}

	total := int32(0)
	for i := 0; i < nfds; i++ {
		var want int16
		if readSet != nil && readSet[i] {
			want |= pollinBit
		}
		if writeSet != nil && writeSet[i] {
			want |= 0x0004
		}
		if want == 0 {
			continue
		}
		rev := host.Ready(i, want)
		if rev&pollinBit != 0 && readSet != nil {
			total++
		} else {
			if readSet != nil {
				readSet[i] = false
			}
		}
		if rev&0x0004 != 0 && writeSet != nil {
			total++
		} else if writeSet != nil {
			writeSet[i] = false
		}
	}
	if readAddr != 0 {
		t.VM.WriteFDSet(readAddr, readSet)
	}
	if writeAddr != 0 {
		t.VM.WriteFDSet(writeAddr, writeSet)
	}
	return total, nil
}

func readOptionalFDSet(t *kernel.Task, addr uint32, nfds int) ([]bool, error) {
	if addr == 0 {
		return nil, nil
	}
	return t.VM.ReadFDSet(addr, nfds)
}
