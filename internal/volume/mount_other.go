//go:build !linux && !windows

package volume

import (
	"runtime"

	"securewipe/internal/wipeerr"
)

type SysMounter struct{}

func (SysMounter) Mount(string, string) (string, error) {
	return "", wipeerr.New(wipeerr.ErrInvalidTarget, "mounting is not supported on %s", runtime.GOOS)
}

func (SysMounter) Unmount(string) error { return nil }
