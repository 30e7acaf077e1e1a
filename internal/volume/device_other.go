//go:build !linux && !windows

package volume

import (
	"runtime"

	"securewipe/internal/wipeerr"
)

func OpenDevice(target string) (VolumeAPI, error) {
	return nil, wipeerr.New(wipeerr.ErrInvalidTarget, "raw volume access is not supported on %s", runtime.GOOS)
}
