package linux

import "encoding/binary"

// The structures in this file are the packed, 32-bit, little-endian,
// no-extra-padding wire formats spec.md §6 names. Each implements
// MarshalABI/UnmarshalABI by hand rather than relying on host struct
// layout matching the guest ABI, per the REDESIGN FLAGS note in spec.md
// §9 ("Packed binary structures... do not rely on host struct layouts
// matching the guest ABI").

// Stat64 is the 96-byte sim_stat64 layout from spec.md §6.
type Stat64 struct {
	Dev        uint64
	Ino32      uint32
	Mode       uint32
	Nlink      uint32
	UID        uint32
	GID        uint32
	Rdev       uint64
	Size       int64
	Blksize    uint32
	Blocks     uint64
	AtimeSec   uint32
	AtimeNsec  uint32
	MtimeSec   uint32
	MtimeNsec  uint32
	CtimeSec   uint32
	CtimeNsec  uint32
	Ino        uint64
}

const Stat64Size = 96

func (s *Stat64) MarshalABI() []byte {
	b := make([]byte, Stat64Size)
	le := binary.LittleEndian
	le.PutUint64(b[0:8], s.Dev)
	// b[8:12] pad1
	le.PutUint32(b[12:16], s.Ino32)
	le.PutUint32(b[16:20], s.Mode)
	le.PutUint32(b[20:24], s.Nlink)
	le.PutUint32(b[24:28], s.UID)
	le.PutUint32(b[28:32], s.GID)
	le.PutUint64(b[32:40], s.Rdev)
	// b[40:44] pad2
	le.PutUint64(b[44:52], uint64(s.Size))
	le.PutUint32(b[52:56], s.Blksize)
	le.PutUint64(b[56:64], s.Blocks)
	le.PutUint32(b[64:68], s.AtimeSec)
	le.PutUint32(b[68:72], s.AtimeNsec)
	le.PutUint32(b[72:76], s.MtimeSec)
	le.PutUint32(b[76:80], s.MtimeNsec)
	le.PutUint32(b[80:84], s.CtimeSec)
	le.PutUint32(b[84:88], s.CtimeNsec)
	le.PutUint64(b[88:96], s.Ino)
	return b
}

func (s *Stat64) UnmarshalABI(b []byte) {
	le := binary.LittleEndian
	s.Dev = le.Uint64(b[0:8])
	s.Ino32 = le.Uint32(b[12:16])
	s.Mode = le.Uint32(b[16:20])
	s.Nlink = le.Uint32(b[20:24])
	s.UID = le.Uint32(b[24:28])
	s.GID = le.Uint32(b[28:32])
	s.Rdev = le.Uint64(b[32:40])
	s.Size = int64(le.Uint64(b[44:52]))
	s.Blksize = le.Uint32(b[52:56])
	s.Blocks = le.Uint64(b[56:64])
	s.AtimeSec = le.Uint32(b[64:68])
	s.AtimeNsec = le.Uint32(b[68:72])
	s.MtimeSec = le.Uint32(b[72:76])
	s.MtimeNsec = le.Uint32(b[76:80])
	s.CtimeSec = le.Uint32(b[80:84])
	s.CtimeNsec = le.Uint32(b[84:88])
	s.Ino = le.Uint64(b[88:96])
}

// Timeval is the 8-byte sim_timeval layout.
type Timeval struct {
	Sec  int32
	Usec int32
}

const TimevalSize = 8

func (t *Timeval) MarshalABI() []byte {
	b := make([]byte, TimevalSize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(t.Sec))
	binary.LittleEndian.PutUint32(b[4:8], uint32(t.Usec))
	return b
}

func (t *Timeval) UnmarshalABI(b []byte) {
	t.Sec = int32(binary.LittleEndian.Uint32(b[0:4]))
	t.Usec = int32(binary.LittleEndian.Uint32(b[4:8]))
}

// Itimerval is the 16-byte sim_itimerval layout: interval then value, each
// an 8-byte Timeval.
type Itimerval struct {
	Interval Timeval
	Value    Timeval
}

const ItimervalSize = 16

func (t *Itimerval) MarshalABI() []byte {
	b := make([]byte, ItimervalSize)
	copy(b[0:8], t.Interval.MarshalABI())
	copy(b[8:16], t.Value.MarshalABI())
	return b
}

func (t *Itimerval) UnmarshalABI(b []byte) {
	t.Interval.UnmarshalABI(b[0:8])
	t.Value.UnmarshalABI(b[8:16])
}

// Tms is the 16-byte sim_tms layout: utime, stime, cutime, cstime.
type Tms struct {
	Utime, Stime, Cutime, Cstime uint32
}

const TmsSize = 16

func (t *Tms) MarshalABI() []byte {
	b := make([]byte, TmsSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:4], t.Utime)
	le.PutUint32(b[4:8], t.Stime)
	le.PutUint32(b[8:12], t.Cutime)
	le.PutUint32(b[12:16], t.Cstime)
	return b
}

// Rusage is the 72-byte sim_rusage layout: 18 uint32 fields (ru_utime and
// ru_stime each occupy two fields as sec/usec, matching a flattened
// timeval pair; the remaining 14 fields are the standard rusage counters,
// zero-filled by this simulator since it tracks none of them).
type Rusage struct {
	UtimeSec, UtimeUsec uint32
	StimeSec, StimeUsec uint32
	Rest                [14]uint32
}

const RusageSize = 72

func (r *Rusage) MarshalABI() []byte {
	b := make([]byte, RusageSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:4], r.UtimeSec)
	le.PutUint32(b[4:8], r.UtimeUsec)
	le.PutUint32(b[8:12], r.StimeSec)
	le.PutUint32(b[12:16], r.StimeUsec)
	for i, v := range r.Rest {
		le.PutUint32(b[16+4*i:20+4*i], v)
	}
	return b
}

// Rlimit is the 8-byte sim_rlimit layout.
type Rlimit struct {
	Cur, Max uint32
}

const RlimitSize = 8

func (r *Rlimit) MarshalABI() []byte {
	b := make([]byte, RlimitSize)
	binary.LittleEndian.PutUint32(b[0:4], r.Cur)
	binary.LittleEndian.PutUint32(b[4:8], r.Max)
	return b
}

func (r *Rlimit) UnmarshalABI(b []byte) {
	r.Cur = binary.LittleEndian.Uint32(b[0:4])
	r.Max = binary.LittleEndian.Uint32(b[4:8])
}

// RlimitInfinity is the ABI's "no limit" sentinel.
const RlimitInfinity = 0xffffffff

// Utsname is the 390-byte sim_utsname layout: six 65-byte NUL-terminated
// fields (sysname, nodename, release, version, machine, domainname).
type Utsname struct {
	Sysname, Nodename, Release, Version, Machine, Domainname string
}

const (
	utsFieldLen = 65
	UtsnameSize = 6 * utsFieldLen
)

// DefaultUtsname is this simulator's default identity, matching spec.md
// §6: sysname="Linux", nodename="multi2sim", release="2.6.18-6-686",
// machine="i686".
func DefaultUtsname(buildVersion string) Utsname {
	return Utsname{
		Sysname:    "Linux",
		Nodename:   "multi2sim",
		Release:    "2.6.18-6-686",
		Version:    buildVersion,
		Machine:    "i686",
		Domainname: "",
	}
}

func putUtsField(b []byte, s string) {
	n := copy(b, s)
	for i := n; i < len(b); i++ {
		b[i] = 0
	}
}

func getUtsField(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func (u *Utsname) MarshalABI() []byte {
	b := make([]byte, UtsnameSize)
	fields := []string{u.Sysname, u.Nodename, u.Release, u.Version, u.Machine, u.Domainname}
	for i, f := range fields {
		putUtsField(b[i*utsFieldLen:(i+1)*utsFieldLen], f)
	}
	return b
}

func (u *Utsname) UnmarshalABI(b []byte) {
	u.Sysname = getUtsField(b[0*utsFieldLen : 1*utsFieldLen])
	u.Nodename = getUtsField(b[1*utsFieldLen : 2*utsFieldLen])
	u.Release = getUtsField(b[2*utsFieldLen : 3*utsFieldLen])
	u.Version = getUtsField(b[3*utsFieldLen : 4*utsFieldLen])
	u.Machine = getUtsField(b[4*utsFieldLen : 5*utsFieldLen])
	u.Domainname = getUtsField(b[5*utsFieldLen : 6*utsFieldLen])
}

// Utimbuf is the 8-byte sim_utimbuf layout.
type Utimbuf struct {
	Actime, Modtime uint32
}

const UtimbufSize = 8

func (u *Utimbuf) UnmarshalABI(b []byte) {
	u.Actime = binary.LittleEndian.Uint32(b[0:4])
	u.Modtime = binary.LittleEndian.Uint32(b[4:8])
}

// Pollfd is the 8-byte sim_pollfd layout.
type Pollfd struct {
	FD      int32
	Events  int16
	Revents int16
}

const PollfdSize = 8

func (p *Pollfd) MarshalABI() []byte {
	b := make([]byte, PollfdSize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(p.FD))
	binary.LittleEndian.PutUint16(b[4:6], uint16(p.Events))
	binary.LittleEndian.PutUint16(b[6:8], uint16(p.Revents))
	return b
}

func (p *Pollfd) UnmarshalABI(b []byte) {
	p.FD = int32(binary.LittleEndian.Uint32(b[0:4]))
	p.Events = int16(binary.LittleEndian.Uint16(b[4:6]))
	p.Revents = int16(binary.LittleEndian.Uint16(b[6:8]))
}

// LinuxDirentEntry is one decoded getdents(2) record, pre-layout.
type LinuxDirentEntry struct {
	Ino    uint64
	Off    int64
	Type   uint8
	Name   string
}

// align4/align8 round n up to the next multiple of 4/8.
func align4(n int) int { return (n + 3) &^ 3 }
func align8(n int) int { return (n + 7) &^ 7 }

// MarshalLinuxDirent packs entries into the 32-bit sim_linux_dirent
// layout: d_ino(4) d_off(4) d_reclen(2) name... pad to multiple of 4,
// trailing byte holds the file type, per spec.md §6.
func MarshalLinuxDirent(entries []LinuxDirentEntry) []byte {
	var out []byte
	for _, e := range entries {
		nameLen := len(e.Name) + 1 // NUL terminator
		recLen := align4(4 + 4 + 2 + nameLen + 1)
		rec := make([]byte, recLen)
		le := binary.LittleEndian
		le.PutUint32(rec[0:4], uint32(e.Ino))
		le.PutUint32(rec[4:8], uint32(e.Off))
		le.PutUint16(rec[8:10], uint16(recLen))
		copy(rec[10:10+len(e.Name)], e.Name)
		rec[recLen-1] = e.Type
		out = append(out, rec...)
	}
	return out
}

// MarshalLinuxDirent64 packs entries into the 64-bit sim_linux_dirent64
// layout: d_ino(8) d_off(8) d_reclen(2) d_type(1) name... pad to multiple
// of 8, per spec.md §6.
func MarshalLinuxDirent64(entries []LinuxDirentEntry) []byte {
	var out []byte
	for _, e := range entries {
		nameLen := len(e.Name) + 1
		recLen := align8(8 + 8 + 2 + 1 + nameLen)
		rec := make([]byte, recLen)
		le := binary.LittleEndian
		le.PutUint64(rec[0:8], e.Ino)
		le.PutUint64(rec[8:16], uint64(e.Off))
		le.PutUint16(rec[16:18], uint16(recLen))
		rec[18] = e.Type
		copy(rec[19:19+len(e.Name)], e.Name)
		out = append(out, rec...)
	}
	return out
}

// UserDesc is the 16-byte sim_user_desc layout used by set_thread_area /
// CLONE_SETTLS: entry_number(4) base_addr(4) limit(4) then a 4-byte
// bitfield {seg_32bit:1, contents:2, read_exec_only:1, limit_in_pages:1,
// seg_not_present:1, useable:1}.
type UserDesc struct {
	EntryNumber  int32
	BaseAddr     uint32
	Limit        uint32
	Seg32Bit     bool
	Contents     uint8
	ReadExecOnly bool
	LimitInPages bool
	SegNotPresent bool
	Useable      bool
}

const UserDescSize = 16

func (u *UserDesc) UnmarshalABI(b []byte) {
	le := binary.LittleEndian
	u.EntryNumber = int32(le.Uint32(b[0:4]))
	u.BaseAddr = le.Uint32(b[4:8])
	u.Limit = le.Uint32(b[8:12])
	bits := le.Uint32(b[12:16])
	u.Seg32Bit = bits&0x1 != 0
	u.Contents = uint8((bits >> 1) & 0x3)
	u.ReadExecOnly = bits&0x8 != 0
	u.LimitInPages = bits&0x10 != 0
	u.SegNotPresent = bits&0x20 != 0
	u.Useable = bits&0x40 != 0
}

func (u *UserDesc) MarshalABI() []byte {
	b := make([]byte, UserDescSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:4], uint32(u.EntryNumber))
	le.PutUint32(b[4:8], u.BaseAddr)
	le.PutUint32(b[8:12], u.Limit)
	var bits uint32
	if u.Seg32Bit {
		bits |= 0x1
	}
	bits |= uint32(u.Contents&0x3) << 1
	if u.ReadExecOnly {
		bits |= 0x8
	}
	if u.LimitInPages {
		bits |= 0x10
	}
	if u.SegNotPresent {
		bits |= 0x20
	}
	if u.Useable {
		bits |= 0x40
	}
	le.PutUint32(b[12:16], bits)
	return b
}

// SigAction is the 20-byte sim_sigaction layout: handler_addr(4) flags(4)
// restorer(4) mask(8).
type SigAction struct {
	HandlerAddr uint32
	Flags       uint32
	RestorerAddr uint32
	Mask        uint64
}

const SigActionSize = 20

func (s *SigAction) MarshalABI() []byte {
	b := make([]byte, SigActionSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:4], s.HandlerAddr)
	le.PutUint32(b[4:8], s.Flags)
	le.PutUint32(b[8:12], s.RestorerAddr)
	le.PutUint64(b[12:20], s.Mask)
	return b
}

func (s *SigAction) UnmarshalABI(b []byte) {
	le := binary.LittleEndian
	s.HandlerAddr = le.Uint32(b[0:4])
	s.Flags = le.Uint32(b[4:8])
	s.RestorerAddr = le.Uint32(b[8:12])
	s.Mask = le.Uint64(b[12:20])
}

// SigHandlerDefault and SigHandlerIgnore are the two sentinel handler
// addresses glibc and the kernel agree on (SIG_DFL=0, SIG_IGN=1).
const (
	SigHandlerDefault = 0
	SigHandlerIgnore  = 1
)

// NumSignals is the number of entries in a sigaction table (spec.md §3:
// "a 64-entry sigaction table").
const NumSignals = 64

// Sockaddr is the generic guest sockaddr layout used by the stream-socket
// passthrough (spec.md §1 non-goals: "a thin stream-socket passthrough").
// Only the two families the passthrough supports are decoded: AF_UNIX
// (family(2) + up to 108 bytes of NUL-terminated path) and AF_INET
// (family(2) port(2, big-endian) addr(4, big-endian) + 8 bytes unused).
// MarshalABI/UnmarshalABI carry the raw family field plus whichever of
// Path/Port/Addr applies; the caller picks the right field by Family.
type Sockaddr struct {
	Family uint16
	Path   string // AF_UNIX
	Port   uint16 // AF_INET, host byte order
	Addr   [4]byte
}

const sockaddrUnSize = 110  // sizeof(struct sockaddr_un)
const sockaddrInSize = 16   // sizeof(struct sockaddr_in)

// UnmarshalABI decodes b (which must be at least 2 bytes, the family
// field) into s, interpreting the remainder per s.Family.
func (s *Sockaddr) UnmarshalABI(b []byte) {
	if len(b) < 2 {
		return
	}
	s.Family = binary.LittleEndian.Uint16(b[0:2])
	switch s.Family {
	case AF_UNIX:
		rest := b[2:]
		n := 0
		for n < len(rest) && rest[n] != 0 {
			n++
		}
		s.Path = string(rest[:n])
	case AF_INET:
		if len(b) < sockaddrInSize {
			return
		}
		// sockaddr_in's port and address are big-endian ("network byte
		// order") regardless of the guest's own endianness.
		s.Port = binary.BigEndian.Uint16(b[2:4])
		copy(s.Addr[:], b[4:8])
	}
}

// MarshalABI encodes s back into the wire layout matching its Family,
// used when writing a peer address back to the guest (accept/getpeername).
func (s *Sockaddr) MarshalABI() []byte {
	switch s.Family {
	case AF_UNIX:
		b := make([]byte, sockaddrUnSize)
		binary.LittleEndian.PutUint16(b[0:2], s.Family)
		copy(b[2:], s.Path)
		return b
	case AF_INET:
		b := make([]byte, sockaddrInSize)
		binary.LittleEndian.PutUint16(b[0:2], s.Family)
		binary.BigEndian.PutUint16(b[2:4], s.Port)
		copy(b[4:8], s.Addr[:])
		return b
	default:
		return make([]byte, 2)
	}
}
