//go:build windows

package wipe

import (
	"io/fs"
	"os"
)

// The read-only attribute clears the write bits; ACL denials surface when
// the file is opened.
func canReadWrite(path string, info fs.FileInfo) bool {
	if info == nil {
		var err error
		if info, err = os.Stat(path); err != nil {
			return false
		}
	}
	return info.Mode().Perm()&0200 != 0
}
