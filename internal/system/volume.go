package system

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shirou/gopsutil/v4/disk"
)

// VolumeResolver maps targets to mounted partitions and identifies the
// system volume.
type VolumeResolver struct {
	Partitions func() ([]disk.PartitionStat, error)
	Root       string
}

func NewVolumeResolver() *VolumeResolver {
	return &VolumeResolver{
		Partitions: func() ([]disk.PartitionStat, error) { return disk.Partitions(false) },
		Root:       SystemRoot(),
	}
}

// SystemVolume returns the partition mounted at (or containing) Root.
func (r *VolumeResolver) SystemVolume() (disk.PartitionStat, error) {
	parts, err := r.Partitions()
	if err != nil {
		return disk.PartitionStat{}, errors.Wrap(err, "list partitions")
	}
	p, ok := containing(parts, normalize(r.Root))
	if !ok {
		return disk.PartitionStat{}, errors.Newf("no partition contains system root %s", r.Root)
	}
	return p, nil
}

// Resolve returns the partition a target names, either by device path or
// mountpoint, or else the partition whose mountpoint contains it.
func (r *VolumeResolver) Resolve(target string) (disk.PartitionStat, bool, error) {
	parts, err := r.Partitions()
	if err != nil {
		return disk.PartitionStat{}, false, errors.Wrap(err, "list partitions")
	}
	t := normalize(target)
	for _, p := range parts {
		if t == normalize(p.Device) || t == normalize(p.Mountpoint) {
			return p, true, nil
		}
	}
	p, ok := containing(parts, t)
	return p, ok, nil
}

// protected returns the system partition followed by every boot partition.
func (r *VolumeResolver) protected() ([]disk.PartitionStat, error) {
	parts, err := r.Partitions()
	if err != nil {
		return nil, errors.Wrap(err, "list partitions")
	}
	sys, ok := containing(parts, normalize(r.Root))
	if !ok {
		return nil, errors.Newf("no partition contains system root %s", r.Root)
	}
	out := []disk.PartitionStat{sys}
	for _, p := range parts {
		if p.Device == sys.Device && p.Mountpoint == sys.Mountpoint {
			continue
		}
		if isBootPartition(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// IsSystemVolume reports whether target is, contains, or lives on the system
// volume or a boot partition (/boot, the ESP, System Reserved). A whole-disk
// device holding one of them counts too. When partitions cannot be listed the
// answer is an error and callers must refuse.
func (r *VolumeResolver) IsSystemVolume(target string) (bool, error) {
	prot, err := r.protected()
	if err != nil {
		return false, err
	}
	t := normalize(target)
	for _, p := range prot {
		dev := normalize(p.Device)
		if t == dev || t == normalize(p.Mountpoint) {
			return true, nil
		}
		// /dev/sda holds /dev/sda1, /dev/nvme0n1 holds /dev/nvme0n1p2.
		if isDevicePath(t) && strings.HasPrefix(dev, t) {
			return true, nil
		}
	}

	if isDevicePath(t) {
		return false, nil
	}

	p, ok, err := r.Resolve(target)
	if err != nil || !ok {
		return false, err
	}
	for _, q := range prot {
		if normalize(p.Device) == normalize(q.Device) {
			return true, nil
		}
	}
	return false, nil
}

// ListDrives lists mounted partitions with their usage.
func (r *VolumeResolver) ListDrives() ([]DiskInfo, error) {
	parts, err := r.Partitions()
	if err != nil {
		return nil, errors.Wrap(err, "list partitions")
	}
	sys, _ := r.SystemVolume()

	drives := make([]DiskInfo, 0, len(parts))
	for _, p := range parts {
		info := DiskInfo{
			Device:     p.Device,
			Mountpoint: p.Mountpoint,
			Filesystem: p.Fstype,
			IsSystem:   (p.Device == sys.Device && p.Mountpoint == sys.Mountpoint) || isBootPartition(p),
		}
		if usage, err := disk.Usage(p.Mountpoint); err == nil {
			info.TotalSize = usage.Total
			info.FreeSize = usage.Free
			info.UsedSize = usage.Used
		}
		drives = append(drives, info)
	}
	return drives, nil
}

func containing(parts []disk.PartitionStat, path string) (disk.PartitionStat, bool) {
	var best disk.PartitionStat
	bestLen := -1
	for _, p := range parts {
		m := normalize(p.Mountpoint)
		if m == "" || !within(path, m) {
			continue
		}
		if len(m) > bestLen {
			best, bestLen = p, len(m)
		}
	}
	return best, bestLen >= 0
}

func within(path, mount string) bool {
	if path == mount {
		return true
	}
	if !strings.HasSuffix(mount, string(filepath.Separator)) {
		mount += string(filepath.Separator)
	}
	return strings.HasPrefix(path, mount)
}

func isDevicePath(p string) bool {
	return strings.HasPrefix(p, "/dev/") || strings.HasPrefix(p, `\\.\`)
}

// normalize cleans a path, resolves symlinks where possible and strips the
// raw-device prefix so `\\.\E:`, `E:` and `E:\` compare equal.
func normalize(p string) string {
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, `\\.\`) {
		p = strings.TrimPrefix(p, `\\.\`)
	}
	p = filepath.Clean(p)
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}
	if len(p) == 2 && p[1] == ':' {
		p += string(filepath.Separator)
	}
	return normalizeCase(p)
}

// ValidatePath validates and normalizes path
func ValidatePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}

	// Expand environment variables
	expanded := os.ExpandEnv(path)

	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", errors.Wrap(err, "invalid path")
	}

	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			return "", errors.Newf("path does not exist: %s", absPath)
		}
		return "", errors.Wrapf(err, "cannot access %s", absPath)
	}

	return absPath, nil
}
