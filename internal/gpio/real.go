//go:build linux

package gpio

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DefaultDevice is the GPIO register device exposed by the Raspberry Pi kernel.
const DefaultDevice = "/dev/gpiomem"

// Open maps the GPIO register window of the device (or simulation file) at path.
func Open(path string, opts ...Option) (*Controller, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("open gpio memory: %w", err)
	}
	// The mapping stays valid after the descriptor is closed.
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat gpio memory: %w", err)
	}
	if fi.Mode().IsRegular() && fi.Size() < MemSize {
		return nil, fmt.Errorf("gpio memory %s: file is %d bytes, need %d", path, fi.Size(), MemSize)
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, MemSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap gpio memory: %w", err)
	}

	c, err := NewController(mem, opts...)
	if err != nil {
		unix.Munmap(mem)
		return nil, err
	}
	c.unmap = func() error {
		if err := unix.Munmap(mem); err != nil {
			return fmt.Errorf("munmap gpio memory: %w", err)
		}
		return nil
	}
	return c, nil
}
