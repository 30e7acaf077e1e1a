//go:build linux

package volume

import (
	"io"
	"os"

	"github.com/shirou/gopsutil/v4/disk"
	"golang.org/x/sys/unix"
)

// blockDevice is a Linux block device opened for raw writes. Locking is an
// exclusive advisory flock; dismount unmounts every mountpoint of the device.
type blockDevice struct {
	path string
	f    *os.File
}

// OpenDevice opens a block device such as /dev/sdb1.
func OpenDevice(target string) (VolumeAPI, error) {
	f, err := os.OpenFile(target, os.O_WRONLY|unix.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	return &blockDevice{path: target, f: f}, nil
}

func (d *blockDevice) Lock() error {
	return unix.Flock(int(d.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

func (d *blockDevice) Dismount() error {
	parts, err := disk.Partitions(true)
	if err != nil {
		return err
	}
	for _, p := range parts {
		if p.Device != d.path {
			continue
		}
		if err := unix.Unmount(p.Mountpoint, 0); err != nil && err != unix.EINVAL {
			return &os.PathError{Op: "umount", Path: p.Mountpoint, Err: err}
		}
	}
	return nil
}

func (d *blockDevice) Unlock() error {
	return unix.Flock(int(d.f.Fd()), unix.LOCK_UN)
}

func (d *blockDevice) WriteRawChunk(p []byte) (int, error) {
	return d.f.Write(p)
}

func (d *blockDevice) Size() (int64, error) {
	end, err := d.f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := d.f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}

func (d *blockDevice) Close() error {
	return d.f.Close()
}
