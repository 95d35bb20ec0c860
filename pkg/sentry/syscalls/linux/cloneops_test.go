package linux

import (
	"testing"

	"github.com/stretchr/testify/require"

	abi "github.com/multi2sim/m2sim-core/pkg/abi/linux"
	"github.com/multi2sim/m2sim-core/pkg/kernel"
)

// TestCloneRegisterConvention pins the x86 clone(2) argument-register
// mapping: flags=EBX, newsp=ECX, parent_tid_p=EDX, the CLONE_SETTLS
// user_desc pointer=ESI, child_tid_p=EDI. Putting child_tid_p at ESI (the
// generic clone(2) prototype's slot 3) instead of EDI would silently
// scramble which guest address receives the child tid whenever
// CLONE_SETTLS is also requested, since the two would collide on ESI.
func TestCloneRegisterConvention(t *testing.T) {
	k, parent := newTestTask(t)

	const userDescAddr = 0x08000040
	const parentTIDAddr = 0x08000080
	const childTIDAddr = 0x080000c0

	var desc abi.UserDesc
	desc.BaseAddr = 0xdeadc000
	desc.Limit = 1
	desc.LimitInPages = true
	require.NoError(t, parent.VM.Write(userDescAddr, desc.MarshalABI()))

	flags := abi.CloneMandatory | abi.CLONE_SETTLS | abi.CLONE_PARENT_SETTID | abi.CLONE_CHILD_SETTID

	parent.Regs.EBX = flags
	parent.Regs.ECX = 0 // newsp: keep parent's stack
	parent.Regs.EDX = parentTIDAddr
	parent.Regs.ESI = userDescAddr
	parent.Regs.EDI = childTIDAddr

	childPID, err := sysClone(k, parent)
	require.NoError(t, err)

	child := k.TaskByPID(childPID)
	require.NotNil(t, child)

	// CLONE_PARENT_SETTID writes the child pid to *parentTIDAddr.
	raw, err := parent.VM.Read(parentTIDAddr, 4)
	require.NoError(t, err)
	require.Equal(t, uint32(childPID), decU32(raw))

	// CLONE_CHILD_SETTID writes the child pid to *childTIDAddr, which
	// must be EDI's target, not ESI's (ESI holds the TLS descriptor).
	raw, err = child.VM.Read(childTIDAddr, 4)
	require.NoError(t, err)
	require.Equal(t, uint32(childPID), decU32(raw))

	// The TLS descriptor at ESI's target must be untouched by the
	// child-tid write and must have been assigned the TLS selector.
	var readBack abi.UserDesc
	raw, err = parent.VM.Read(userDescAddr, abi.UserDescSize)
	require.NoError(t, err)
	readBack.UnmarshalABI(raw)
	require.Equal(t, int32(kernel.TLSSelector), readBack.EntryNumber)
	require.Equal(t, desc.BaseAddr, readBack.BaseAddr)

	require.Equal(t, desc.BaseAddr, child.TLSBase)
}
