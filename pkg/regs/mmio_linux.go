//go:build linux

package regs

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Map the register block found at physical offset base of path.
// path is typically /dev/mem or a /dev/uioN device (in which case base
// selects the uio map, N * page size).
func Map(path string, base int64, size int) (*MMIO, error) {
	if size < Size {
		size = Size
	}
	pageSize := int64(os.Getpagesize())
	pageBase := base &^ (pageSize - 1)
	delta := int(base - pageBase)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %v : %w", path, err)
	}
	// The mapping stays valid after the descriptor is closed
	defer unix.Close(fd)

	mem, err := unix.Mmap(fd, pageBase, size+delta, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to map %v at 0x%x : %w", path, base, err)
	}
	m, err := NewMMIO(mem[delta:])
	if err != nil {
		_ = unix.Munmap(mem)
		return nil, err
	}
	m.unmap = func() error { return unix.Munmap(mem) }
	return m, nil
}
