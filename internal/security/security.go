// Package security holds the safety rails applied before anything is
// destroyed: protected names, the filesystem allow-list and the system-volume
// refusal.
package security

import (
	"path/filepath"
	"strings"

	"securewipe/internal/wipeerr"
)

// Системные каталоги, которые никогда не затираются. Имя сравнивается
// целиком и без учёта регистра.
var protectedDirs = []string{
	// Windows
	"System Volume Information",
	"$RECYCLE.BIN",
	"Recovery",
	"Windows",
	"Program Files",
	"Program Files (x86)",
	"ProgramData",
	"Users",
	// Linux
	".Trash",
	"lost+found",
	"proc",
	"sys",
	"dev",
	"boot",
	"etc",
	"lib",
	"lib64",
	"sbin",
	"bin",
	"usr",
	"var",
	"tmp",
	"opt",
	"run",
	"mnt",
	"media",
}

var protectedFiles = []string{
	"hiberfil.sys",
	"pagefile.sys",
	"swapfile.sys",
}

// Conventional user dot-directories that are wiped like any other.
var allowedHiddenDirs = []string{".config", ".local", ".cache", ".ssh", ".gnupg"}

// IsProtectedDir reports whether a directory must be pruned from every phase.
func IsProtectedDir(path string) bool {
	name := filepath.Base(path)
	if containsFold(protectedDirs, name) || containsFold(protectedFiles, name) {
		return true
	}
	// Windows system entries often start with $
	if strings.HasPrefix(name, "$") {
		return true
	}
	if len(name) > 1 && strings.HasPrefix(name, ".") && name != ".." {
		return !containsFold(allowedHiddenDirs, name)
	}
	return false
}

// IsProtectedFile reports whether a file is an OS paging/hibernation file.
func IsProtectedFile(path string) bool {
	return containsFold(protectedFiles, filepath.Base(path))
}

// ValidateFilesystem returns the allow-list spelling of fs. Anything not on
// the list is rejected, so the value is safe to pass to a format tool.
func ValidateFilesystem(fs string, allowed []string) (string, error) {
	for _, a := range allowed {
		if strings.EqualFold(a, fs) {
			return a, nil
		}
	}
	return "", wipeerr.New(wipeerr.ErrInvalidTarget,
		"filesystem %q is not allowed (allowed: %s)", fs, strings.Join(allowed, ", "))
}

// Максимальная длина метки тома, которую принимает mkfs/format.
var labelLimits = map[string]int{
	"vfat":  11,
	"fat32": 11,
	"exfat": 11,
	"xfs":   12,
	"ext2":  16,
	"ext3":  16,
	"ext4":  16,
	"ntfs":  32,
	"btrfs": 32,
}

const defaultLabelLimit = 32

// ValidateLabel accepts volume labels made of letters, digits, '_' and '-'
// that cannot be mistaken for a tool option and fit the label field of fs.
func ValidateLabel(label, fs string) error {
	limit, ok := labelLimits[strings.ToLower(fs)]
	if !ok {
		limit = defaultLabelLimit
	}
	if len(label) > limit {
		return wipeerr.New(wipeerr.ErrInvalidTarget,
			"volume label %q is too long for %s (max %d characters)", label, fs, limit)
	}
	if strings.HasPrefix(label, "-") {
		return wipeerr.New(wipeerr.ErrInvalidTarget, "invalid volume label %q", label)
	}
	for _, r := range label {
		ok := r == '_' || r == '-' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !ok {
			return wipeerr.New(wipeerr.ErrInvalidTarget, "invalid volume label %q", label)
		}
	}
	return nil
}

// SystemVolumeChecker is satisfied by system.VolumeResolver.
type SystemVolumeChecker interface {
	IsSystemVolume(target string) (bool, error)
}

// ValidateVolumeTarget refuses the system volume. If the check itself fails
// the target is refused too.
func ValidateVolumeTarget(checker SystemVolumeChecker, target string) error {
	if strings.TrimSpace(target) == "" {
		return wipeerr.New(wipeerr.ErrInvalidTarget, "empty volume target")
	}
	isSystem, err := checker.IsSystemVolume(target)
	if err != nil {
		return wipeerr.WithHint(
			wipeerr.Mark(err, wipeerr.ErrSystemVolume, "cannot verify that %s is not the system volume", target),
			"run with access to the partition table or pick an explicit device")
	}
	if isSystem {
		return wipeerr.WithHint(
			wipeerr.New(wipeerr.ErrSystemVolume, "refusing to sanitize %s: it is the system volume", target),
			"choose a data volume")
	}
	return nil
}

func containsFold(list []string, name string) bool {
	for _, item := range list {
		if strings.EqualFold(item, name) {
			return true
		}
	}
	return false
}
