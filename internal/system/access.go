package system

import (
	"os"
	"path/filepath"
	"strings"

	"securewipe/internal/wipeerr"
)

const permissionProbeName = ".permission_test_temp"

// CheckAccess is the pre-flight for file-level targets. The target must be
// readable; a target under a removable-media mount root must also accept a
// probe file when probeWrite is set. Failures carry the platform hints.
func CheckAccess(path string, probeWrite bool) error {
	mounted := underMountRoot(path)

	if !canRead(path) {
		err := wipeerr.WithHint(
			wipeerr.New(wipeerr.ErrAccessDenied, "no read permission for target path: %s", path),
			elevationHint)
		if mounted {
			err = wipeerr.WithHint(err, "for mounted drives, you may need to remount with user permissions")
		}
		return err
	}

	if !probeWrite || !mounted {
		return nil
	}
	if werr := probe(path); werr != nil {
		err := wipeerr.Mark(werr, wipeerr.ErrAccessDenied, "no write permission for mounted drive: %s", path)
		err = wipeerr.WithHint(err, "mounted Windows drives may require special mount options for write access")
		return wipeerr.WithHint(err, "try: sudo mount -o remount,uid=$(id -u),gid=$(id -g) "+mountpointOf(path))
	}
	return nil
}

func probe(dir string) error {
	name := filepath.Join(dir, permissionProbeName)
	if err := os.WriteFile(name, []byte("test"), 0600); err != nil {
		return err
	}
	return os.Remove(name)
}

func underMountRoot(path string) bool {
	for _, root := range mountRoots {
		if strings.HasPrefix(path, root) {
			return true
		}
	}
	return false
}

// mountpointOf returns the mount root entry a path lives in, e.g. /media/usb
// for /media/usb/photos.
func mountpointOf(path string) string {
	for _, root := range mountRoots {
		if rest, ok := strings.CutPrefix(path, root); ok {
			first, _, _ := strings.Cut(rest, "/")
			return root + first
		}
	}
	return path
}
