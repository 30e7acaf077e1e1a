//go:build !windows

package system

import (
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
)

// SystemRoot returns the root of the volume the running system operates from.
func SystemRoot() string {
	return "/"
}

func normalizeCase(path string) string { return path }

// isBootPartition reports partitions the boot loader reads: /boot, anything
// mounted below it (the ESP at /boot/efi) and the systemd ESP at /efi.
func isBootPartition(p disk.PartitionStat) bool {
	if p.Mountpoint == "" {
		return false
	}
	m := filepath.Clean(p.Mountpoint)
	return m == "/boot" || m == "/efi" || strings.HasPrefix(m, "/boot/")
}
