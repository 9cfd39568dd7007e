//go:build linux

package uio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Interval at which a blocked Wait checks its context
const pollInterval = 100

var ErrShortRead = errors.New("short read of interrupt count")

// Device is a userspace I/O interrupt source, /dev/uioN.
// Each read returns the total interrupt count, the interrupt stays
// masked until re-enabled by writing 1.
type Device struct {
	fd    int
	path  string
	count uint32
}

func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %v : %w", path, err)
	}
	log.Debugf("[UIO] opened %v", path)
	return &Device{fd: fd, path: path}, nil
}

// Enable unmasks the interrupt
func (d *Device) Enable() error {
	var buf [4]byte
	binary.NativeEndian.PutUint32(buf[:], 1)
	_, err := unix.Write(d.fd, buf[:])
	if err != nil {
		return fmt.Errorf("failed to enable %v : %w", d.path, err)
	}
	return nil
}

// Wait blocks until the next interrupt or until ctx is done.
// It returns the number of interrupts since the previous Wait.
func (d *Device) Wait(ctx context.Context) (uint32, error) {
	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := unix.Poll(fds, pollInterval)
		if errors.Is(err, unix.EINTR) || n == 0 {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to poll %v : %w", d.path, err)
		}
		var buf [4]byte
		read, err := unix.Read(d.fd, buf[:])
		if err != nil {
			return 0, fmt.Errorf("failed to read %v : %w", d.path, err)
		}
		if read != len(buf) {
			return 0, fmt.Errorf("%w : %v bytes", ErrShortRead, read)
		}
		count := binary.NativeEndian.Uint32(buf[:])
		missed := count - d.count
		d.count = count
		if missed > 1 {
			log.Debugf("[UIO] %v interrupts coalesced", missed)
		}
		return missed, nil
	}
}

func (d *Device) Close() error {
	return unix.Close(d.fd)
}
