// Package config assembles the simulator's startup configuration, the way
// lazydocker/pkg/config.NewAppConfig builds its AppConfig: a single plain
// struct, constructed once from CLI flags, and threaded explicitly into
// every component that needs it — no package-level globals.
package config

// KernelConfig holds the knobs the syscall core and its harness need at
// startup. None of it is read by the core mid-run; it is consumed once to
// build a kernel.Kernel and a disk.Disk.
type KernelConfig struct {
	// Debug enables verbose (debug-level) logging, as lazydocker's -d/--debug
	// flag does.
	Debug bool

	// DiskPath is the host file backing the simulated disk (spec.md §3,
	// "Simulated disk").
	DiskPath string

	// BlockSize and NumBlocks size the simulated disk.
	BlockSize int
	NumBlocks int

	// DefaultQuantum is the scheduling quantum Kernel.NewTask gives each
	// task it creates, until set_instruction_slice replaces it (spec.md
	// §4.8).
	DefaultQuantum uint64

	Version string
}

// Default returns the configuration the harness uses when no flags
// override it.
func Default() KernelConfig {
	return KernelConfig{
		Debug:          false,
		DiskPath:       "m2sim.disk",
		BlockSize:      4096,
		NumBlocks:      4096,
		DefaultQuantum: 1_000_000,
		Version:        "unversioned",
	}
}
