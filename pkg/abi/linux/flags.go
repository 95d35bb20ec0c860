package linux

// FlagBit names one bit (or multi-bit field value) of a flags/enum table.
type FlagBit struct {
	Name  string
	Value uint32
}

// FlagTable is an ordered table of named bit values for one numeric
// field, e.g. open(2)'s flags argument or mmap(2)'s prot argument. It is
// pure data: per the REDESIGN FLAGS note in spec.md §9, flag/enum maps are
// represented as ordered (name, value) tables rather than scattered
// switch/if chains, so that both Decompose (debug tracing) and Lookup
// (validation) share one source of truth.
type FlagTable []FlagBit

// Decompose returns the names of every bit set in mask that this table
// knows about, in table order. Used for debug tracing; unknown bits are
// silently omitted (the caller can check the mask against OR of all
// Values if an exact match is required).
func (t FlagTable) Decompose(mask uint32) []string {
	var names []string
	for _, b := range t {
		if b.Value != 0 && mask&b.Value == b.Value {
			names = append(names, b.Name)
		}
	}
	return names
}

// Lookup returns the name for an exact enum value (not a bitmask), and
// whether it was found.
func (t FlagTable) Lookup(value uint32) (string, bool) {
	for _, b := range t {
		if b.Value == value {
			return b.Name, true
		}
	}
	return "", false
}

// Open flags (open/openat flags argument).
const (
	O_RDONLY   = 0x00000
	O_WRONLY   = 0x00001
	O_RDWR     = 0x00002
	O_ACCMODE  = 0x00003
	O_CREAT    = 0x00040
	O_EXCL     = 0x00080
	O_NOCTTY   = 0x00100
	O_TRUNC    = 0x00200
	O_APPEND   = 0x00400
	O_NONBLOCK = 0x00800
	O_DIRECTORY = 0x10000
	O_CLOEXEC  = 0x80000
)

var OpenFlags = FlagTable{
	{"O_WRONLY", O_WRONLY}, {"O_RDWR", O_RDWR}, {"O_CREAT", O_CREAT},
	{"O_EXCL", O_EXCL}, {"O_NOCTTY", O_NOCTTY}, {"O_TRUNC", O_TRUNC},
	{"O_APPEND", O_APPEND}, {"O_NONBLOCK", O_NONBLOCK},
	{"O_DIRECTORY", O_DIRECTORY}, {"O_CLOEXEC", O_CLOEXEC},
}

// mmap prot bits. Values are checked against host PROT_* constants at
// compile time (see abi_check.go) per the "bit-exact ABI compatibility
// checks" re-architecture note in spec.md §9.
const (
	PROT_NONE  = 0x0
	PROT_READ  = 0x1
	PROT_WRITE = 0x2
	PROT_EXEC  = 0x4
)

var MmapProt = FlagTable{
	{"PROT_READ", PROT_READ}, {"PROT_WRITE", PROT_WRITE}, {"PROT_EXEC", PROT_EXEC},
}

// mmap flags argument.
const (
	MAP_SHARED    = 0x01
	MAP_PRIVATE   = 0x02
	MAP_FIXED     = 0x10
	MAP_ANONYMOUS = 0x20
	MAP_GROWSDOWN = 0x0100
	MAP_DENYWRITE = 0x0800
	MAP_EXECUTABLE = 0x1000
	MAP_LOCKED    = 0x2000
	MAP_NORESERVE = 0x4000
)

var MmapFlags = FlagTable{
	{"MAP_SHARED", MAP_SHARED}, {"MAP_PRIVATE", MAP_PRIVATE},
	{"MAP_FIXED", MAP_FIXED}, {"MAP_ANONYMOUS", MAP_ANONYMOUS},
	{"MAP_GROWSDOWN", MAP_GROWSDOWN}, {"MAP_DENYWRITE", MAP_DENYWRITE},
	{"MAP_EXECUTABLE", MAP_EXECUTABLE}, {"MAP_LOCKED", MAP_LOCKED},
	{"MAP_NORESERVE", MAP_NORESERVE},
}

// mremap flags.
const (
	MREMAP_MAYMOVE = 0x1
)

// clone flags.
const (
	CLONE_VM             = 0x00000100
	CLONE_FS             = 0x00000200
	CLONE_FILES          = 0x00000400
	CLONE_SIGHAND        = 0x00000800
	CLONE_PTRACE         = 0x00002000
	CLONE_VFORK          = 0x00004000
	CLONE_PARENT         = 0x00008000
	CLONE_THREAD         = 0x00010000
	CLONE_NEWNS          = 0x00020000
	CLONE_SYSVSEM        = 0x00040000
	CLONE_SETTLS         = 0x00080000
	CLONE_PARENT_SETTID  = 0x00100000
	CLONE_CHILD_CLEARTID = 0x00200000
	CLONE_DETACHED       = 0x00400000
	CLONE_UNTRACED       = 0x00800000
	CLONE_CHILD_SETTID   = 0x01000000

	// CloneMandatory is the bit set the core requires to be present on
	// every clone(2) call, per the "Mandatory clone flags" glossary
	// entry in spec.md.
	CloneMandatory = CLONE_VM | CLONE_FS | CLONE_FILES | CLONE_SIGHAND

	// CloneSupported is every clone flag the core recognizes; a request
	// flag outside this set is fatal (spec.md §4.4).
	CloneSupported = CLONE_VM | CLONE_FS | CLONE_FILES | CLONE_SIGHAND |
		CLONE_PTRACE | CLONE_VFORK | CLONE_PARENT | CLONE_THREAD |
		CLONE_SYSVSEM | CLONE_SETTLS | CLONE_PARENT_SETTID |
		CLONE_CHILD_CLEARTID | CLONE_DETACHED | CLONE_UNTRACED |
		CLONE_CHILD_SETTID | 0xff // low byte carries the exit signal
)

var CloneFlags = FlagTable{
	{"CLONE_VM", CLONE_VM}, {"CLONE_FS", CLONE_FS},
	{"CLONE_FILES", CLONE_FILES}, {"CLONE_SIGHAND", CLONE_SIGHAND},
	{"CLONE_PTRACE", CLONE_PTRACE}, {"CLONE_VFORK", CLONE_VFORK},
	{"CLONE_PARENT", CLONE_PARENT}, {"CLONE_THREAD", CLONE_THREAD},
	{"CLONE_SYSVSEM", CLONE_SYSVSEM}, {"CLONE_SETTLS", CLONE_SETTLS},
	{"CLONE_PARENT_SETTID", CLONE_PARENT_SETTID},
	{"CLONE_CHILD_CLEARTID", CLONE_CHILD_CLEARTID},
	{"CLONE_DETACHED", CLONE_DETACHED}, {"CLONE_UNTRACED", CLONE_UNTRACED},
	{"CLONE_CHILD_SETTID", CLONE_CHILD_SETTID},
}

// futex commands (op argument, after masking FUTEX_PRIVATE_FLAG /
// FUTEX_CLOCK_REALTIME per spec.md §4.6).
const (
	FUTEX_WAIT         = 0
	FUTEX_WAKE         = 1
	FUTEX_FD           = 2
	FUTEX_REQUEUE      = 3
	FUTEX_CMP_REQUEUE  = 4
	FUTEX_WAKE_OP      = 5
	FUTEX_WAIT_BITSET  = 9
	FUTEX_WAKE_BITSET  = 10

	FUTEX_PRIVATE_FLAG   = 128
	FUTEX_CLOCK_REALTIME = 256
	FutexCmdMask         = ^uint32(FUTEX_PRIVATE_FLAG | FUTEX_CLOCK_REALTIME)

	// FutexBitsetAll is the default bitset for non-_BITSET wait/wake
	// operations (spec.md §4.6: "bitset ... else all-ones").
	FutexBitsetAll = 0xffffffff

	// FutexIntMax is the one value FUTEX_CMP_REQUEUE's ptimeout argument
	// is allowed to carry, per spec.md §4.6 and syscall.c:3323
	// ("if (ptimeout != 0x7fffffff) fatal(...)"); any other value means a
	// real timeout was requested, which this core does not support.
	FutexIntMax = 0x7fffffff
)

var FutexCmds = FlagTable{
	{"FUTEX_WAIT", FUTEX_WAIT}, {"FUTEX_WAKE", FUTEX_WAKE},
	{"FUTEX_FD", FUTEX_FD}, {"FUTEX_REQUEUE", FUTEX_REQUEUE},
	{"FUTEX_CMP_REQUEUE", FUTEX_CMP_REQUEUE}, {"FUTEX_WAKE_OP", FUTEX_WAKE_OP},
	{"FUTEX_WAIT_BITSET", FUTEX_WAIT_BITSET}, {"FUTEX_WAKE_BITSET", FUTEX_WAKE_BITSET},
}

// futex WAKE_OP sub-fields, decoded from val3 per spec.md §4.6.
const (
	FUTEX_OP_SET = 0
	FUTEX_OP_ADD = 1
	FUTEX_OP_OR  = 2
	FUTEX_OP_AND = 3
	FUTEX_OP_XOR = 4

	FUTEX_OP_CMP_EQ = 0
	FUTEX_OP_CMP_NE = 1
	FUTEX_OP_CMP_LT = 2
	FUTEX_OP_CMP_LE = 3
	FUTEX_OP_CMP_GT = 4
	FUTEX_OP_CMP_GE = 5
)

// fcntl64 commands (spec.md §4.2: "supports F_GETFD, F_SETFD, F_GETFL,
// F_SETFL; any other command is fatal").
const (
	F_DUPFD  = 0
	F_GETFD  = 1
	F_SETFD  = 2
	F_GETFL  = 3
	F_SETFL  = 4
)

var FcntlCmds = FlagTable{
	{"F_DUPFD", F_DUPFD}, {"F_GETFD", F_GETFD}, {"F_SETFD", F_SETFD},
	{"F_GETFL", F_GETFL}, {"F_SETFL", F_SETFL},
}

// SIG_* ops for rt_sigprocmask/sigprocmask.
const (
	SIG_BLOCK   = 0
	SIG_UNBLOCK = 1
	SIG_SETMASK = 2
)

var SigmaskOps = FlagTable{
	{"SIG_BLOCK", SIG_BLOCK}, {"SIG_UNBLOCK", SIG_UNBLOCK}, {"SIG_SETMASK", SIG_SETMASK},
}

// sigaction(2) sa_flags bits actually consulted by the core.
const (
	SA_NODEFER   = 0x40000000
	SA_RESETHAND = 0x80000000
	SA_SIGINFO   = 0x00000004
	SA_RESTART   = 0x10000000
)

var SigactionFlags = FlagTable{
	{"SA_SIGINFO", SA_SIGINFO}, {"SA_RESTART", SA_RESTART},
	{"SA_NODEFER", SA_NODEFER}, {"SA_RESETHAND", SA_RESETHAND},
}

// poll(2)/select(2) event bits.
const (
	POLLIN   = 0x0001
	POLLPRI  = 0x0002
	POLLOUT  = 0x0004
	POLLERR  = 0x0008
	POLLHUP  = 0x0010
	POLLNVAL = 0x0020
)

var PollEvents = FlagTable{
	{"POLLIN", POLLIN}, {"POLLPRI", POLLPRI}, {"POLLOUT", POLLOUT},
	{"POLLERR", POLLERR}, {"POLLHUP", POLLHUP}, {"POLLNVAL", POLLNVAL},
}

// waitpid(2)/wait4(2) options.
const (
	WNOHANG   = 0x00000001
	WUNTRACED = 0x00000002
)

var WaitOptions = FlagTable{
	{"WNOHANG", WNOHANG}, {"WUNTRACED", WUNTRACED},
}

// rlimit resources (subset honored by the core).
const (
	RLIMIT_DATA   = 2
	RLIMIT_STACK  = 3
	RLIMIT_NOFILE = 7
	RLIMIT_AS     = 9
)

var RlimitResources = FlagTable{
	{"RLIMIT_DATA", RLIMIT_DATA}, {"RLIMIT_STACK", RLIMIT_STACK},
	{"RLIMIT_NOFILE", RLIMIT_NOFILE}, {"RLIMIT_AS", RLIMIT_AS},
}

// socketcall family/type/call numbers (stream-socket passthrough only,
// per spec.md §1 non-goals: "no networking beyond a thin passthrough of
// TCP-stream sockets").
const (
	AF_UNIX  = 1
	AF_INET  = 2
	SOCK_STREAM = 1

	SYS_SOCKET     = 1
	SYS_BIND       = 2
	SYS_CONNECT    = 3
	SYS_LISTEN     = 4
	SYS_ACCEPT     = 5
	SYS_GETSOCKNAME = 6
	SYS_GETPEERNAME = 7
	SYS_SOCKETPAIR = 8
	SYS_SEND       = 9
	SYS_RECV       = 10
	SYS_SENDTO     = 11
	SYS_RECVFROM   = 12
	SYS_SHUTDOWN   = 13
	SYS_SETSOCKOPT = 14
	SYS_GETSOCKOPT = 15
)

var SocketCalls = FlagTable{
	{"SYS_SOCKET", SYS_SOCKET}, {"SYS_BIND", SYS_BIND}, {"SYS_CONNECT", SYS_CONNECT},
	{"SYS_LISTEN", SYS_LISTEN}, {"SYS_ACCEPT", SYS_ACCEPT},
	{"SYS_GETSOCKNAME", SYS_GETSOCKNAME}, {"SYS_GETPEERNAME", SYS_GETPEERNAME},
	{"SYS_SOCKETPAIR", SYS_SOCKETPAIR}, {"SYS_SEND", SYS_SEND}, {"SYS_RECV", SYS_RECV},
	{"SYS_SENDTO", SYS_SENDTO}, {"SYS_RECVFROM", SYS_RECVFROM},
	{"SYS_SHUTDOWN", SYS_SHUTDOWN}, {"SYS_SETSOCKOPT", SYS_SETSOCKOPT},
	{"SYS_GETSOCKOPT", SYS_GETSOCKOPT},
}

// itimer kinds (setitimer/getitimer "which" argument).
const (
	ITIMER_REAL    = 0
	ITIMER_VIRTUAL = 1
	ITIMER_PROF    = 2
)

var ItimerKinds = FlagTable{
	{"ITIMER_REAL", ITIMER_REAL}, {"ITIMER_VIRTUAL", ITIMER_VIRTUAL}, {"ITIMER_PROF", ITIMER_PROF},
}

// ioctl termios command range (spec.md §4.2 and the REDESIGN FLAGS note
// in §9: the original's range check used || where && was intended).
const (
	ioctlTermiosLo = 0x5401
	ioctlTermiosHi = 0x5408
)

// IsTermiosIoctl reports whether cmd falls in the termios ioctl range the
// core passes through to the host. Implemented as AND, not the tautological
// OR of the original source (spec.md §9 flagged bug).
func IsTermiosIoctl(cmd uint32) bool {
	return cmd >= ioctlTermiosLo && cmd <= ioctlTermiosHi
}
