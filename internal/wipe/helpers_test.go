package wipe

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"securewipe/internal/cancel"
	"securewipe/internal/progress"
)

const mib = 1 << 20

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
}

func isZero(b []byte) bool {
	return bytes.Count(b, []byte{0}) == len(b)
}

func newReporter(emitter progress.Emitter, total uint64) *progress.Reporter {
	return progress.NewReporter(emitter, progress.NewSpeedTracker(20, 5), total, progress.Settings{})
}

// limitedDisk hands out real files that report ENOSPC once left bytes have
// been written across all of them. Files registered with reclaimOnDelete give
// their size back once they are removed, like a real filesystem.
type limitedDisk struct {
	mu      sync.Mutex
	left    int64
	paths   []string
	pending map[string]int64
}

func (d *limitedDisk) reclaimOnDelete(path string, size int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		d.pending = make(map[string]int64)
	}
	d.pending[path] = size
}

// reclaim must be called with mu held.
func (d *limitedDisk) reclaim() {
	for path, size := range d.pending {
		if _, err := os.Lstat(path); os.IsNotExist(err) {
			d.left += size
			delete(d.pending, path)
		}
	}
}

func (d *limitedDisk) create(path string) (junkFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.paths = append(d.paths, path)
	d.mu.Unlock()
	return &limitedFile{File: f, disk: d}, nil
}

func (d *limitedDisk) free(string) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reclaim()
	if d.left < 0 {
		return 0, nil
	}
	return uint64(d.left), nil
}

type limitedFile struct {
	*os.File
	disk *limitedDisk
}

func (f *limitedFile) Write(p []byte) (int, error) {
	f.disk.mu.Lock()
	defer f.disk.mu.Unlock()
	f.disk.reclaim()

	n := len(p)
	if int64(n) > f.disk.left {
		n = int(f.disk.left)
	}
	if n <= 0 {
		return 0, &fs.PathError{Op: "write", Path: f.Name(), Err: syscall.ENOSPC}
	}
	w, err := f.File.Write(p[:n])
	f.disk.left -= int64(w)
	if err != nil {
		return w, err
	}
	if w < len(p) {
		return w, &fs.PathError{Op: "write", Path: f.Name(), Err: syscall.ENOSPC}
	}
	return w, nil
}

// cancelOnProgress cancels the token on the first progress update.
type cancelOnProgress struct {
	progress.Recorder
	token *cancel.Token
}

func (c *cancelOnProgress) Progress(u progress.Update) {
	c.Recorder.Progress(u)
	c.token.Cancel()
}
