package volume

import (
	"context"
	"strconv"
	"strings"

	"securewipe/internal/execute"
	"securewipe/internal/wipeerr"
)

// Formatter builds and runs the native filesystem-creation and raw-overwrite
// commands of a platform. Filesystem names must already be allow-listed.
type Formatter struct {
	GOOS   string
	Runner execute.Runner
}

func NewFormatter(goos string, runner execute.Runner) *Formatter {
	return &Formatter{GOOS: goos, Runner: runner}
}

// Format creates a fresh filesystem. A full format also scans the surface
// where the tool supports it.
func (f *Formatter) Format(ctx context.Context, device, fs, label string, quick bool) error {
	cmd, err := f.Command(device, fs, label, quick)
	if err != nil {
		return err
	}
	_, err = f.Runner.Run(ctx, cmd)
	return err
}

// Command returns the format invocation for device.
func (f *Formatter) Command(device, fs, label string, quick bool) (execute.Command, error) {
	kind := "full"
	if quick {
		kind = "quick"
	}
	desc := kind + " format " + device + " as " + fs

	if f.GOOS == "windows" {
		args := []string{driveLetter(device), "/FS:" + fs, "/V:" + label, "/Y"}
		if quick {
			args = append(args, "/Q")
		}
		return execute.Command{Name: "format", Args: args, Description: desc}, nil
	}

	name := "mkfs." + strings.ToLower(fs)
	var args []string
	switch strings.ToLower(fs) {
	case "ext2", "ext3", "ext4":
		args = []string{"-F", "-L", label}
		if !quick {
			args = append(args, "-c")
		}
	case "xfs", "btrfs":
		args = []string{"-f", "-L", label}
	case "vfat", "fat32":
		name = "mkfs.vfat"
		args = []string{"-n", strings.ToUpper(label)}
		if !quick {
			args = append(args, "-c")
		}
	case "exfat":
		args = []string{"-L", label}
		if !quick {
			args = append(args, "--full-format")
		}
	case "ntfs":
		args = []string{"-F", "-L", label}
		if quick {
			args = append(args, "-Q")
		}
	default:
		return execute.Command{}, wipeerr.New(wipeerr.ErrInvalidTarget, "no format tool for filesystem %s on %s", fs, f.GOOS)
	}
	if label == "" {
		args = dropLabel(args)
	}
	args = append(args, device)
	return execute.Command{Name: name, Args: args, Description: desc}, nil
}

// OverwriteCommand returns the multi-pass raw overwrite used by the paranoid
// path. On Windows the overwrite is part of a format and leaves a filesystem.
func (f *Formatter) OverwriteCommand(device, fs, label string, passes int) execute.Command {
	n := strconv.Itoa(passes)
	desc := n + "-pass overwrite of " + device
	if f.GOOS == "windows" {
		return execute.Command{
			Name:        "format",
			Args:        []string{driveLetter(device), "/FS:" + fs, "/V:" + label, "/P:" + n, "/Y"},
			Description: desc,
		}
	}
	return execute.Command{Name: "shred", Args: []string{"-v", "-n", n, device}, Description: desc}
}

// OverwriteLeavesFilesystem reports whether OverwriteCommand already creates
// a filesystem.
func (f *Formatter) OverwriteLeavesFilesystem() bool {
	return f.GOOS == "windows"
}

// driveLetter reduces `\\.\E:`, `E:\` and "E:" to "E:".
func driveLetter(device string) string {
	d := strings.TrimPrefix(device, `\\.\`)
	d = strings.TrimRight(d, `\/`)
	return strings.ToUpper(d)
}

func dropLabel(args []string) []string {
	out := args[:0:0]
	for i := 0; i < len(args); i++ {
		if args[i] == "-L" || args[i] == "-n" {
			i++
			continue
		}
		out = append(out, args[i])
	}
	return out
}
