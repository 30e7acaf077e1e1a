//go:build windows

package system

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
	"golang.org/x/sys/windows"
)

// SystemRoot returns the root of the volume the running system operates from,
// e.g. `C:\`.
func SystemRoot() string {
	// Получаем путь к системной директории
	if sysDir, err := windows.GetSystemDirectory(); err == nil && len(sysDir) >= 2 {
		return sysDir[:2] + `\`
	}
	if windir := os.Getenv("WINDIR"); len(windir) >= 2 {
		return windir[:2] + `\`
	}
	return `C:\` // Fallback
}

func normalizeCase(path string) string { return strings.ToUpper(path) }

// Файлы диспетчера загрузки: System Reserved (bootmgr, Boot\BCD) и ESP
var bootMarkers = []string{
	"bootmgr",
	filepath.Join("Boot", "BCD"),
	filepath.Join("EFI", "Microsoft", "Boot", "bootmgfw.efi"),
}

// isBootPartition reports a lettered volume that carries the Windows Boot
// Manager, such as an EFI or System Reserved partition given a drive letter.
func isBootPartition(p disk.PartitionStat) bool {
	if p.Mountpoint == "" {
		return false
	}
	for _, m := range bootMarkers {
		if _, err := os.Stat(filepath.Join(p.Mountpoint, m)); err == nil {
			return true
		}
	}
	return false
}
