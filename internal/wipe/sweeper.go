package wipe

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"securewipe/internal/cancel"
	"securewipe/internal/logging"
	"securewipe/internal/metrics"
	"securewipe/internal/progress"
	"securewipe/internal/security"
	"securewipe/internal/wipeerr"
)

// SweepResult counts what the sweeper removed. Remaining is the number of
// unprotected entries still present under the root afterwards.
type SweepResult struct {
	Files     int
	Dirs      int
	Passes    int
	Remaining int
}

// QuickResult is the outcome of quick mode.
type QuickResult struct {
	Files  int
	Dirs   int
	Errors int
	Sweep  SweepResult
}

// Sweeper deletes a tree bottom-up, best effort. The root itself is kept.
type Sweeper struct {
	FinalPasses int
	Token       *cancel.Token
	Emitter     progress.Emitter
	Logger      *logging.EnterpriseLogger
	Metrics     *metrics.Collector
}

func NewSweeper(finalPasses int, token *cancel.Token, emitter progress.Emitter, logger *logging.EnterpriseLogger, m *metrics.Collector) *Sweeper {
	if emitter == nil {
		emitter = progress.Discard
	}
	return &Sweeper{FinalPasses: finalPasses, Token: token, Emitter: emitter, Logger: logger, Metrics: m}
}

// Sweep runs one bottom-up pass and up to FinalPasses more, stopping at the
// first pass that removes nothing. Per-entry failures are swallowed.
func (s *Sweeper) Sweep(root string) (SweepResult, error) {
	var res SweepResult
	for pass := 0; pass <= s.FinalPasses; pass++ {
		if s.Token.Cancelled() {
			return res, wipeerr.Cancelled("sweep")
		}
		files, dirs := s.sweepDir(root)
		res.Passes++
		res.Files += files
		res.Dirs += dirs
		s.Logger.Log("DEBUG", "sweep pass", "root", root, "pass", res.Passes, "files", files, "dirs", dirs)
		if files == 0 && dirs == 0 {
			break
		}
	}
	res.Remaining = countRemaining(root)
	s.Metrics.Swept(res.Files, res.Dirs)

	if s.Token.Cancelled() {
		return res, wipeerr.Cancelled("sweep")
	}
	return res, nil
}

func (s *Sweeper) sweepDir(dir string) (files, dirs int) {
	// Deleting children needs write access on the directory itself.
	relax(dir, true)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0
	}

	for _, e := range entries {
		if s.Token.Cancelled() {
			return files, dirs
		}
		path := filepath.Join(dir, e.Name())

		if e.IsDir() {
			if security.IsProtectedDir(path) {
				continue
			}
			f, d := s.sweepDir(path)
			files += f
			dirs += d
			if os.Remove(path) == nil {
				dirs++
			}
			continue
		}

		if security.IsProtectedFile(path) {
			continue
		}
		relax(path, false)
		if os.Remove(path) == nil {
			files++
		}
	}
	return files, dirs
}

// Quick deletes the tree without overwriting: a strict bottom-up pass that
// counts what it could not delete, then the regular sweep for leftovers.
func (s *Sweeper) Quick(root string) (QuickResult, error) {
	var res QuickResult
	s.quickDir(root, &res)
	if s.Token.Cancelled() {
		return res, wipeerr.Cancelled("quick delete")
	}

	sweep, err := s.Sweep(root)
	res.Sweep = sweep
	res.Files += sweep.Files
	res.Dirs += sweep.Dirs
	return res, err
}

func (s *Sweeper) quickDir(dir string, res *QuickResult) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.Emitter.Status(fmt.Sprintf("Could not read directory %s: %v", dir, err))
		res.Errors++
		return
	}

	for _, e := range entries {
		if s.Token.Cancelled() {
			return
		}
		path := filepath.Join(dir, e.Name())

		if e.IsDir() {
			if security.IsProtectedDir(path) {
				s.Emitter.Status(fmt.Sprintf("Skipping system directory: %s", path))
				continue
			}
			s.quickDir(path, res)
			if err := os.Remove(path); err != nil {
				s.Emitter.Status(fmt.Sprintf("Could not delete directory %s: %v", path, err))
				res.Errors++
			} else {
				res.Dirs++
			}
			continue
		}

		if security.IsProtectedFile(path) {
			s.Emitter.Status(fmt.Sprintf("Skipping protected file: %s", path))
			continue
		}
		if err := os.Remove(path); err != nil {
			s.Emitter.Status(fmt.Sprintf("Could not delete file %s: %v", path, err))
			res.Errors++
		} else {
			res.Files++
		}
	}
}

// relax adds write permission for user, group and other; directories also
// get owner read and search so their contents can be listed.
func relax(path string, dir bool) {
	info, err := os.Lstat(path)
	if err != nil || info.Mode()&fs.ModeSymlink != 0 {
		return
	}
	mode := info.Mode().Perm() | 0222
	if dir {
		mode |= 0700
	}
	if mode != info.Mode().Perm() {
		_ = os.Chmod(path, mode)
	}
}

func countRemaining(root string) int {
	n := 0
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == root {
			return nil
		}
		if d.IsDir() && security.IsProtectedDir(path) {
			return filepath.SkipDir
		}
		if !d.IsDir() && security.IsProtectedFile(path) {
			return nil
		}
		n++
		return nil
	})
	return n
}
