// Package disk implements the simulated block disk backing the
// emulator-private disk_io syscall (spec.md §3 "Simulated disk", §4.8).
package disk

import (
	"fmt"
	"os"

	"github.com/go-errors/errors"

	"github.com/multi2sim/m2sim-core/pkg/abi/linux"
)

// Disk is a fixed array of equally sized blocks stored on a host file,
// with a per-block owner table (spec.md §3).
type Disk struct {
	file      *os.File
	blockSize int
	numBlocks int
	// owners[i] is the uid that owns block i, or 0 if unallocated.
	owners []uint32
}

// Open creates (or truncates) path as the backing file for a disk of
// numBlocks blocks of blockSize bytes each.
func Open(path string, blockSize, numBlocks int) (*Disk, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, errors.New(fmt.Sprintf("disk: open %s: %v", path, err))
	}
	if err := f.Truncate(int64(blockSize) * int64(numBlocks)); err != nil {
		f.Close()
		return nil, errors.New(fmt.Sprintf("disk: truncate %s: %v", path, err))
	}
	return &Disk{
		file:      f,
		blockSize: blockSize,
		numBlocks: numBlocks,
		owners:    make([]uint32, numBlocks),
	}, nil
}

// Close releases the backing file.
func (d *Disk) Close() error {
	return d.file.Close()
}

// BlockSize returns the configured block size in bytes.
func (d *Disk) BlockSize() int { return d.blockSize }

// Disk I/O directions, as the bare int the kernel.DiskIO interface
// declares (kept as plain ints, not a named type, so *Disk satisfies that
// interface without pkg/kernel importing pkg/disk).
const (
	OpRead = iota
	OpWrite
)

// IO validates and performs one disk_io request (spec.md §4.8):
//   - block index must be in range.
//   - owner: 0 (unallocated) is claimed by the caller on write; any other
//     read requires owner == caller's uid.
//   - offset+nbytes must fit within one block.
//
// data must have length nbytes; for OpRead it is filled in place, for
// OpWrite it is the source.
func (d *Disk) IO(op int, callerUID uint32, block int, offset, nbytes int, data []byte) error {
	if block < 0 || block >= d.numBlocks {
		return linux.EINVAL
	}
	if offset < 0 || nbytes < 0 || offset+nbytes > d.blockSize {
		return linux.EINVAL
	}
	owner := d.owners[block]
	switch op {
	case OpWrite:
		if owner != 0 && owner != callerUID {
			return linux.EACCES
		}
		d.owners[block] = callerUID
		if _, err := d.file.WriteAt(data[:nbytes], int64(block)*int64(d.blockSize)+int64(offset)); err != nil {
			return linux.EIO
		}
	case OpRead:
		if owner == 0 || owner != callerUID {
			return linux.EACCES
		}
		if _, err := d.file.ReadAt(data[:nbytes], int64(block)*int64(d.blockSize)+int64(offset)); err != nil {
			return linux.EIO
		}
	default:
		return linux.EINVAL
	}
	return nil
}

// Owner returns the uid that owns block, or 0 if unallocated. Exposed for
// tests and debug tooling.
func (d *Disk) Owner(block int) uint32 {
	if block < 0 || block >= d.numBlocks {
		return 0
	}
	return d.owners[block]
}
