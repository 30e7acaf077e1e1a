//go:build windows

package system

import "golang.org/x/sys/windows"

var diskFullErrnos = []error{windows.ERROR_DISK_FULL, windows.ERROR_HANDLE_DISK_FULL}
