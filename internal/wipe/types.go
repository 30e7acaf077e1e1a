package wipe

import (
	"strings"

	"securewipe/internal/wipeerr"
)

// Mode selects one of the destruction pipelines.
type Mode int

const (
	ModeQuick Mode = iota
	ModeOverwrite
	ModeVolumeSecure
	ModeVolumeParanoid
	ModeVolumeFast
)

const MaxPasses = 35

var modeNames = map[Mode]string{
	ModeQuick:          "quick",
	ModeOverwrite:      "overwrite",
	ModeVolumeSecure:   "volume-secure",
	ModeVolumeParanoid: "volume-paranoid",
	ModeVolumeFast:     "volume-fast",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseMode parses a mode name and returns the pass count used when none is
// given. "secure" and "paranoid" are the directory modes of the old frontend:
// one and three overwrite passes.
func ParseMode(name string) (Mode, int, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "quick":
		return ModeQuick, 0, nil
	case "overwrite", "secure":
		return ModeOverwrite, 1, nil
	case "paranoid":
		return ModeOverwrite, 3, nil
	case "volume-secure":
		return ModeVolumeSecure, 0, nil
	case "volume-paranoid":
		return ModeVolumeParanoid, 3, nil
	case "volume-fast", "volume-fast-legacy":
		return ModeVolumeFast, 0, nil
	}
	return 0, 0, wipeerr.New(wipeerr.ErrInvalidTarget, "unknown mode %q", name)
}

// IsVolume reports whether the mode sanitizes a whole volume.
func (m Mode) IsVolume() bool {
	return m == ModeVolumeSecure || m == ModeVolumeParanoid || m == ModeVolumeFast
}

// IncludesFill reports whether the file pipeline ends with a fill phase.
func (m Mode) IncludesFill() bool {
	return m == ModeOverwrite
}

// UsesPasses reports whether the pass count is meaningful for the mode.
func (m Mode) UsesPasses() bool {
	return m == ModeOverwrite || m == ModeVolumeParanoid
}

// WipeJob is one validated request. Construct it with NewWipeJob and treat it
// as read-only.
type WipeJob struct {
	Target         string
	Mode           Mode
	Passes         int
	FilesystemType string
	Label          string
	DryRun         bool
}

// NewWipeJob validates the request. passes <= 0 selects defaultPasses.
func NewWipeJob(target string, mode Mode, passes, defaultPasses int, filesystem string, dryRun bool) (WipeJob, error) {
	if strings.TrimSpace(target) == "" {
		return WipeJob{}, wipeerr.New(wipeerr.ErrInvalidTarget, "empty target")
	}
	if !mode.UsesPasses() {
		passes = 0
	} else {
		if passes <= 0 {
			passes = defaultPasses
		}
		if passes < 1 || passes > MaxPasses {
			return WipeJob{}, wipeerr.New(wipeerr.ErrInvalidTarget, "passes must be between 1 and %d, got %d", MaxPasses, passes)
		}
	}
	if mode.IsVolume() && filesystem == "" {
		return WipeJob{}, wipeerr.New(wipeerr.ErrInvalidTarget, "filesystem type is required for %s", mode)
	}
	return WipeJob{
		Target:         target,
		Mode:           mode,
		Passes:         passes,
		FilesystemType: filesystem,
		DryRun:         dryRun,
	}, nil
}

// WithLabel returns a copy of the job carrying a volume label.
func (j WipeJob) WithLabel(label string) WipeJob {
	j.Label = label
	return j
}
