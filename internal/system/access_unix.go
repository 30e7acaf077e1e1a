//go:build !windows

package system

import "golang.org/x/sys/unix"

const elevationHint = "try running with sudo: sudo securewipe ..."

// Корни, куда монтируются внешние и Windows-диски
var mountRoots = []string{"/mnt/", "/media/"}

func canRead(path string) bool {
	return unix.Access(path, unix.R_OK) == nil
}
