package system

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// IsDiskFullError проверяет, является ли ошибка ошибкой "Недостаточно места на диске".
// Сначала сверяются коды ошибок платформы, затем текст сообщения для ошибок,
// потерявших errno по дороге наверх.
func IsDiskFullError(err error) bool {
	if err == nil {
		return false
	}

	for _, errno := range diskFullErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no space left on device") ||
		strings.Contains(msg, "not enough space on the disk") ||
		strings.Contains(msg, "disk quota exceeded") ||
		strings.Contains(msg, "недостаточно места на диске")
}
