package linux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStat64RoundTrip(t *testing.T) {
	in := Stat64{
		Dev: 0x0801, Ino32: 1234, Mode: 0100644, Nlink: 1,
		UID: 1000, GID: 1000, Rdev: 0, Size: 4096, Blksize: 4096,
		Blocks: 8, AtimeSec: 111, AtimeNsec: 222, MtimeSec: 333,
		MtimeNsec: 444, CtimeSec: 555, CtimeNsec: 666, Ino: 1234,
	}
	b := in.MarshalABI()
	require.Len(t, b, Stat64Size)

	var out Stat64
	out.UnmarshalABI(b)
	assert.Equal(t, in, out)
}

func TestUtsnameRoundTrip(t *testing.T) {
	in := DefaultUtsname("m2sim-core 0.1")
	b := in.MarshalABI()
	require.Len(t, b, UtsnameSize)

	var out Utsname
	out.UnmarshalABI(b)
	assert.Equal(t, in, out)
}

func TestUserDescRoundTrip(t *testing.T) {
	in := UserDesc{
		EntryNumber: -1, BaseAddr: 0xdeadc000, Limit: 1,
		LimitInPages: true, Useable: true,
	}
	b := in.MarshalABI()
	require.Len(t, b, UserDescSize)

	var out UserDesc
	out.UnmarshalABI(b)
	assert.Equal(t, in, out)
}

func TestSigActionRoundTrip(t *testing.T) {
	in := SigAction{HandlerAddr: 0x08048000, Flags: 0x4, RestorerAddr: 0x08049000, Mask: 0xff}
	b := in.MarshalABI()
	require.Len(t, b, SigActionSize)

	var out SigAction
	out.UnmarshalABI(b)
	assert.Equal(t, in, out)
}

func TestLinuxDirentPadding(t *testing.T) {
	entries := []LinuxDirentEntry{
		{Ino: 2, Off: 1, Type: 4, Name: "."},
		{Ino: 3, Off: 2, Type: 4, Name: ".."},
		{Ino: 17, Off: 3, Type: 8, Name: "hello.txt"},
	}
	b := MarshalLinuxDirent(entries)
	assert.Equal(t, 0, len(b)%4, "32-bit dirent records must be 4-byte aligned")

	b64 := MarshalLinuxDirent64(entries)
	assert.Equal(t, 0, len(b64)%8, "64-bit dirent records must be 8-byte aligned")
}

func TestFlagTableDecompose(t *testing.T) {
	names := MmapFlags.Decompose(MAP_PRIVATE | MAP_ANONYMOUS | MAP_FIXED)
	assert.ElementsMatch(t, []string{"MAP_PRIVATE", "MAP_FIXED", "MAP_ANONYMOUS"}, names)

	name, ok := FcntlCmds.Lookup(F_SETFL)
	assert.True(t, ok)
	assert.Equal(t, "F_SETFL", name)

	_, ok = FcntlCmds.Lookup(0xff)
	assert.False(t, ok)
}

func TestIsTermiosIoctlIsConjunctive(t *testing.T) {
	assert.False(t, IsTermiosIoctl(0x5400))
	assert.True(t, IsTermiosIoctl(0x5401))
	assert.True(t, IsTermiosIoctl(0x5408))
	assert.False(t, IsTermiosIoctl(0x5409))
	// A tautological || cmd>=lo || cmd<=hi check (the original source's
	// flagged bug) would wrongly accept 0, which must be rejected here.
	assert.False(t, IsTermiosIoctl(0))
}

func TestErrnoNegate(t *testing.T) {
	assert.Equal(t, int32(-9), EBADF.Negate())
}
