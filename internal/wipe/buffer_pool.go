package wipe

import (
	"crypto/rand"
	"sync"

	"github.com/cockroachdb/errors"
)

// Классы размеров чанков: от размера записи по умолчанию до самого крупного
// чанка заполнения. Буферы большего размера выделяются напрямую и в пул не
// возвращаются.
var chunkClasses = [...]int{1 << 20, 4 << 20, 16 << 20, 32 << 20, 64 << 20}

var chunkPools [len(chunkClasses)]sync.Pool

func chunkClass(size int) int {
	for i, c := range chunkClasses {
		if size <= c {
			return i
		}
	}
	return -1
}

// GetBuffer returns a chunk buffer of length size. Its contents are
// unspecified; callers overwrite it with FillRandom before every write.
func GetBuffer(size int) []byte {
	if size <= 0 {
		return nil
	}
	i := chunkClass(size)
	if i < 0 {
		return make([]byte, size)
	}
	if p, ok := chunkPools[i].Get().(*[]byte); ok {
		return (*p)[:size]
	}
	return make([]byte, size, chunkClasses[i])
}

// PutBuffer returns a buffer obtained from GetBuffer. The buffer is zeroed so
// random data does not outlive the write it was made for.
func PutBuffer(buf []byte) {
	i := chunkClass(cap(buf))
	if i < 0 || cap(buf) != chunkClasses[i] {
		return
	}
	buf = buf[:cap(buf)]
	clear(buf)
	chunkPools[i].Put(&buf)
}

// FillRandom заполняет буфер криптографически случайными данными. Слабого
// запасного генератора нет: ошибка системного RNG прерывает запись.
func FillRandom(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if _, err := rand.Read(buf); err != nil {
		return errors.Wrap(err, "ошибка генерации случайных данных")
	}
	return nil
}
