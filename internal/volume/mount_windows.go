//go:build windows

package volume

import "strings"

// SysMounter relies on format leaving the drive letter assigned; there is
// nothing to mount or unmount.
type SysMounter struct{}

func (SysMounter) Mount(device, _ string) (string, error) {
	return driveLetter(strings.TrimSpace(device)) + `\`, nil
}

func (SysMounter) Unmount(string) error { return nil }
