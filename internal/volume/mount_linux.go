//go:build linux

package volume

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"securewipe/internal/wipeerr"
)

// SysMounter mounts into a private temporary directory.
type SysMounter struct{}

func (SysMounter) Mount(device, fs string) (string, error) {
	dir, err := os.MkdirTemp("", "securewipe-mnt-")
	if err != nil {
		return "", wipeerr.Mark(err, wipeerr.ErrIOFailure, "create mountpoint")
	}
	fstype := strings.ToLower(fs)
	if fstype == "fat32" {
		fstype = "vfat"
	}
	if err := unix.Mount(device, dir, fstype, unix.MS_NOSUID|unix.MS_NODEV, ""); err != nil {
		_ = os.Remove(dir)
		return "", wipeerr.Mark(err, wipeerr.ErrAccessDenied, "mount %s (%s)", device, fstype)
	}
	return dir, nil
}

func (SysMounter) Unmount(mountpoint string) error {
	if err := unix.Unmount(mountpoint, 0); err != nil {
		return wipeerr.Mark(err, wipeerr.ErrIOFailure, "unmount %s", mountpoint)
	}
	return os.Remove(mountpoint)
}
