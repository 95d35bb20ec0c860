package disk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
)

func TestDiskOwnerACL(t *testing.T) {
	d, err := Open(filepath.Join(t.TempDir(), "disk.img"), 512, 4)
	require.NoError(t, err)
	defer d.Close()

	require.Equal(t, uint32(0), d.Owner(0))

	// First write to an unowned block claims it for the caller.
	payload := []byte("hello")
	require.NoError(t, d.IO(OpWrite, 42, 0, 0, len(payload), payload))
	require.Equal(t, uint32(42), d.Owner(0))

	// A different caller cannot write or read that block.
	require.Equal(t, linux.EACCES, d.IO(OpWrite, 7, 0, 0, len(payload), payload))
	buf := make([]byte, len(payload))
	require.Equal(t, linux.EACCES, d.IO(OpRead, 7, 0, 0, len(payload), buf))

	// The owner can read back what it wrote.
	require.NoError(t, d.IO(OpRead, 42, 0, 0, len(payload), buf))
	require.Equal(t, payload, buf)

	// Out-of-range block and offset+nbytes overflow are both EINVAL.
	require.Equal(t, linux.EINVAL, d.IO(OpRead, 42, 99, 0, 1, buf[:1]))
	require.Equal(t, linux.EINVAL, d.IO(OpWrite, 42, 0, 500, 100, payload))
}
