//go:build !windows

package system

import "golang.org/x/sys/unix"

var diskFullErrnos = []error{unix.ENOSPC, unix.EDQUOT}
