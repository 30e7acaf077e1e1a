//go:build windows

package volume

import (
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Коды управления томом (winioctl.h)
const (
	fsctlLockVolume        = 0x00090018
	fsctlUnlockVolume      = 0x0009001C
	fsctlDismountVolume    = 0x00090020
	ioctlDiskGetLengthInfo = 0x0007405C
)

type rawVolume struct {
	h windows.Handle
}

// OpenDevice opens a drive letter ("E:" or `E:\`) as a raw volume handle.
func OpenDevice(target string) (VolumeAPI, error) {
	path := `\\.\` + strings.TrimSuffix(strings.TrimPrefix(target, `\\.\`), `\`)
	h, err := windows.CreateFile(
		windows.StringToUTF16Ptr(path),
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_WRITE_THROUGH,
		0,
	)
	if err != nil {
		return nil, err
	}
	return &rawVolume{h: h}, nil
}

func (v *rawVolume) control(code uint32) error {
	var returned uint32
	return windows.DeviceIoControl(v.h, code, nil, 0, nil, 0, &returned, nil)
}

func (v *rawVolume) Lock() error     { return v.control(fsctlLockVolume) }
func (v *rawVolume) Dismount() error { return v.control(fsctlDismountVolume) }
func (v *rawVolume) Unlock() error   { return v.control(fsctlUnlockVolume) }

func (v *rawVolume) WriteRawChunk(p []byte) (int, error) {
	var n uint32
	err := windows.WriteFile(v.h, p, &n, nil)
	return int(n), err
}

func (v *rawVolume) Size() (int64, error) {
	var length int64
	var returned uint32
	err := windows.DeviceIoControl(v.h, ioctlDiskGetLengthInfo, nil, 0,
		(*byte)(unsafe.Pointer(&length)), uint32(unsafe.Sizeof(length)), &returned, nil)
	return length, err
}

func (v *rawVolume) Close() error {
	return windows.CloseHandle(v.h)
}
