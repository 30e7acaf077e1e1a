// Package volume sanitizes whole volumes through a fixed, ordered sequence of
// stages per mode.
package volume

import (
	"time"

	"securewipe/internal/wipe"
)

// Stage is one step of volume sanitization.
type Stage int

const (
	LockAndDismount Stage = iota
	MetadataDestroy
	InitialFormat
	ReformatRefresh
	FillFreeSpace
	FinalFormat
)

var stageNames = [...]string{
	LockAndDismount: "LockAndDismount",
	MetadataDestroy: "MetadataDestroy",
	InitialFormat:   "InitialFormat",
	ReformatRefresh: "ReformatRefresh",
	FillFreeSpace:   "FillFreeSpace",
	FinalFormat:     "FinalFormat",
}

var stageTitles = [...]string{
	LockAndDismount: "Lock and dismount volume",
	MetadataDestroy: "Destroy volume metadata",
	InitialFormat:   "Full format",
	ReformatRefresh: "Quick reformat",
	FillFreeSpace:   "Fill free space",
	FinalFormat:     "Final quick format",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "Unknown"
}

// Title is the human-readable stage name used in status messages.
func (s Stage) Title() string {
	if int(s) < len(stageTitles) {
		return stageTitles[s]
	}
	return s.String()
}

// StagesFor returns the fixed stage path of a volume mode, or nil for
// file-level modes.
func StagesFor(mode wipe.Mode) []Stage {
	switch mode {
	case wipe.ModeVolumeFast:
		// MetadataDestroy ends with its own quick format.
		return []Stage{LockAndDismount, MetadataDestroy}
	case wipe.ModeVolumeSecure:
		return []Stage{LockAndDismount, InitialFormat, ReformatRefresh, FillFreeSpace, FinalFormat}
	case wipe.ModeVolumeParanoid:
		return []Stage{LockAndDismount, MetadataDestroy, FinalFormat}
	}
	return nil
}

// Stage outcomes.
const (
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusSkipped   = "skipped"
	StatusDryRun    = "dry_run"
)

// StageResult records one executed stage.
type StageResult struct {
	Stage     Stage         `json:"-"`
	Name      string        `json:"name"`
	Status    string        `json:"status"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}
