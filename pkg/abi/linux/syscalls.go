package linux

// Syscall numbers for the 32-bit (i386) Linux int 0x80 ABI that spec.md's
// core implements. Only the numbers the core dispatches on are listed;
// gaps in the real table are left unnamed and dispatch to ENOSYS like any
// other unknown number.
const (
	SYS_EXIT         = 1
	SYS_FORK         = 2
	SYS_READ         = 3
	SYS_WRITE        = 4
	SYS_OPEN         = 5
	SYS_CLOSE        = 6
	SYS_WAITPID      = 7
	SYS_UNLINK       = 10
	SYS_CHDIR        = 12
	SYS_TIME         = 13
	SYS_LSEEK        = 19
	SYS_GETPID       = 20
	SYS_GETPPID      = 64
	SYS_GETUID       = 24
	SYS_PAUSE        = 29
	SYS_KILL         = 37
	SYS_PIPE         = 42
	SYS_TIMES        = 43
	SYS_BRK          = 45
	SYS_GETGID       = 47
	SYS_GETEUID      = 49
	SYS_GETEGID      = 50
	SYS_IOCTL        = 54
	SYS_FCNTL        = 55
	SYS_SETITIMER    = 104
	SYS_GETITIMER    = 105
	SYS_STAT         = 106
	SYS_FSTAT        = 108
	SYS_UNAME        = 122
	SYS_MPROTECT     = 125
	SYS_GETPGID      = 132
	SYS_PERSONALITY  = 136
	SYS_GETDENTS     = 141
	SYS_SELECT       = 142
	SYS_MSYNC        = 144
	SYS_READV        = 145
	SYS_WRITEV       = 146
	SYS_SYSCTL       = 149
	SYS_SCHED_YIELD  = 158
	SYS_NANOSLEEP    = 162
	SYS_MREMAP       = 163
	SYS_POLL         = 168
	SYS_PRCTL        = 172
	SYS_RT_SIGACTION   = 174
	SYS_RT_SIGPROCMASK = 175
	SYS_RT_SIGSUSPEND  = 179
	SYS_GETCWD       = 183
	SYS_MMAP2        = 192
	SYS_TRUNCATE64   = 193
	SYS_FTRUNCATE64  = 194
	SYS_STAT64       = 195
	SYS_LSTAT64      = 196
	SYS_FSTAT64      = 197
	SYS_GETUID32     = 199
	SYS_GETGID32     = 200
	SYS_GETEUID32    = 201
	SYS_GETEGID32    = 202
	SYS_FCNTL64      = 221
	SYS_GETTID       = 224
	SYS_SET_THREAD_AREA = 243
	SYS_GET_THREAD_AREA = 244
	SYS_FADVISE64    = 250
	SYS_EXIT_GROUP   = 252
	SYS_GETDENTS64   = 220
	SYS_CLOCK_GETTIME = 265
	SYS_CLOCK_GETRES  = 266
	SYS_CLONE        = 120
	SYS_MMAP         = 90
	SYS_MUNMAP       = 91
	SYS_DUP          = 41
	SYS_DUP2         = 63
	SYS_GETTIMEOFDAY = 78
	SYS_SOCKETCALL   = 102
	SYS_TGKILL       = 270
	SYS_FUTEX        = 240
	SYS_SET_TID_ADDRESS = 258
	SYS_SIGRETURN    = 119
	SYS_RT_SIGRETURN = 173
	SYS_SIGACTION    = 67
	SYS_SIGPROCMASK  = 126
	SYS_WAIT4        = 114
)

// LinuxTableBound is the first syscall number beyond the Linux i386 table.
// Numbers at or above this are emulator-private (spec.md §4.1).
const LinuxTableBound = 1024

// Emulator-private syscall numbers, occupying codes above LinuxTableBound
// (spec.md §6).
const (
	SYS_M2S_GET_PID            = LinuxTableBound + 0
	SYS_M2S_SET_INSTRUCTION_SLICE = LinuxTableBound + 1
	SYS_M2S_DISK_IO            = LinuxTableBound + 2
	SYS_M2S_OPENCL             = LinuxTableBound + 3
)

// SyscallNames maps syscall numbers to their canonical name, for tracing.
var SyscallNames = map[uint32]string{
	SYS_EXIT: "exit", SYS_FORK: "fork", SYS_READ: "read", SYS_WRITE: "write",
	SYS_OPEN: "open", SYS_CLOSE: "close", SYS_WAITPID: "waitpid",
	SYS_UNLINK: "unlink", SYS_CHDIR: "chdir", SYS_TIME: "time",
	SYS_LSEEK: "lseek", SYS_GETPID: "getpid", SYS_GETPPID: "getppid", SYS_GETUID: "getuid",
	SYS_PAUSE: "pause", SYS_KILL: "kill", SYS_PIPE: "pipe",
	SYS_TIMES: "times", SYS_BRK: "brk", SYS_GETGID: "getgid",
	SYS_GETEUID: "geteuid", SYS_GETEGID: "getegid", SYS_IOCTL: "ioctl",
	SYS_FCNTL: "fcntl", SYS_SETITIMER: "setitimer", SYS_GETITIMER: "getitimer",
	SYS_STAT: "stat", SYS_FSTAT: "fstat", SYS_UNAME: "uname",
	SYS_MPROTECT: "mprotect", SYS_GETPGID: "getpgid",
	SYS_PERSONALITY: "personality", SYS_GETDENTS: "getdents",
	SYS_SELECT: "select", SYS_MSYNC: "msync", SYS_READV: "readv",
	SYS_WRITEV: "writev", SYS_SYSCTL: "sysctl", SYS_SCHED_YIELD: "sched_yield",
	SYS_NANOSLEEP: "nanosleep", SYS_MREMAP: "mremap", SYS_POLL: "poll",
	SYS_PRCTL: "prctl", SYS_RT_SIGACTION: "rt_sigaction",
	SYS_RT_SIGPROCMASK: "rt_sigprocmask", SYS_RT_SIGSUSPEND: "rt_sigsuspend",
	SYS_GETCWD: "getcwd", SYS_MMAP2: "mmap2", SYS_TRUNCATE64: "truncate64",
	SYS_FTRUNCATE64: "ftruncate64", SYS_STAT64: "stat64",
	SYS_LSTAT64: "lstat64", SYS_FSTAT64: "fstat64", SYS_GETUID32: "getuid32",
	SYS_GETGID32: "getgid32", SYS_GETEUID32: "geteuid32",
	SYS_GETEGID32: "getegid32", SYS_FCNTL64: "fcntl64", SYS_GETTID: "gettid",
	SYS_SET_THREAD_AREA: "set_thread_area", SYS_GET_THREAD_AREA: "get_thread_area",
	SYS_FADVISE64: "fadvise64", SYS_EXIT_GROUP: "exit_group",
	SYS_GETDENTS64: "getdents64", SYS_CLOCK_GETTIME: "clock_gettime",
	SYS_CLOCK_GETRES: "clock_getres", SYS_CLONE: "clone", SYS_MMAP: "mmap",
	SYS_MUNMAP: "munmap", SYS_DUP: "dup", SYS_DUP2: "dup2",
	SYS_GETTIMEOFDAY: "gettimeofday", SYS_SOCKETCALL: "socketcall",
	SYS_TGKILL: "tgkill", SYS_FUTEX: "futex",
	SYS_SET_TID_ADDRESS: "set_tid_address", SYS_SIGRETURN: "sigreturn",
	SYS_RT_SIGRETURN: "rt_sigreturn", SYS_SIGACTION: "sigaction",
	SYS_SIGPROCMASK: "sigprocmask", SYS_WAIT4: "wait4",

	SYS_M2S_GET_PID:               "m2s_get_pid",
	SYS_M2S_SET_INSTRUCTION_SLICE: "m2s_set_instruction_slice",
	SYS_M2S_DISK_IO:               "m2s_disk_io",
	SYS_M2S_OPENCL:                "m2s_opencl",
}

// Name returns the syscall's name, or "sys_unknown" if unknown.
func Name(num uint32) string {
	if n, ok := SyscallNames[num]; ok {
		return n
	}
	return "sys_unknown"
}
