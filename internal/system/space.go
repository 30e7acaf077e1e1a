package system

import (
	"github.com/cockroachdb/errors"
	"github.com/shirou/gopsutil/v4/disk"
)

// SpaceProvider reports the free space of the volume holding a path. Free
// space is racy against other writers, so callers re-query before each write.
type SpaceProvider interface {
	FreeSpace(path string) (uint64, error)
}

// DiskSpace implements SpaceProvider via gopsutil.
type DiskSpace struct{}

func (DiskSpace) FreeSpace(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, errors.Wrapf(err, "query free space of %s", path)
	}
	return usage.Free, nil
}

// SpaceFunc adapts a function to SpaceProvider.
type SpaceFunc func(path string) (uint64, error)

func (f SpaceFunc) FreeSpace(path string) (uint64, error) { return f(path) }
