//go:build windows

package security

import "golang.org/x/sys/windows"

// Проверка прав администратора
func IsElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}
