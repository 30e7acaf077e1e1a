package wipe

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"securewipe/internal/cancel"
	"securewipe/internal/logging"
	"securewipe/internal/progress"
	"securewipe/internal/security"
	"securewipe/internal/system"
	"securewipe/internal/wipeerr"
)

// FileEntry is one file scheduled for overwrite, with its size at planning time.
type FileEntry struct {
	Path string
	Size int64
}

// SkippedEntry records something the planner left alone and why.
type SkippedEntry struct {
	Path   string
	Reason string
}

// WorkPlan is computed once per run and read-only afterwards.
type WorkPlan struct {
	Root        string
	Passes      int
	Files       []FileEntry
	FileBytes   uint64 // sum of file sizes, one pass
	FreeBytes   uint64 // free-space estimate for the fill phase
	TotalBytes  uint64 // FileBytes*Passes + FreeBytes
	Skipped     []SkippedEntry
	SkippedDirs []string
}

// Planner walks a target tree and builds the WorkPlan.
type Planner struct {
	Space   system.SpaceProvider
	Emitter progress.Emitter
	Logger  *logging.EnterpriseLogger
	Token   *cancel.Token

	// access is checked per file; replaced in tests.
	access func(path string, info fs.FileInfo) bool
}

func NewPlanner(space system.SpaceProvider, emitter progress.Emitter, logger *logging.EnterpriseLogger, token *cancel.Token) *Planner {
	if emitter == nil {
		emitter = progress.Discard
	}
	return &Planner{
		Space:   space,
		Emitter: emitter,
		Logger:  logger,
		Token:   token,
		access:  canReadWrite,
	}
}

// Plan walks root top-down. Protected subtrees are pruned and reported,
// unusable files are recorded as skipped. When includeFill is set the
// current free space is added to the total; failing to query it only
// degrades the ETA.
func (p *Planner) Plan(root string, passes int, includeFill bool) (*WorkPlan, error) {
	if passes < 1 {
		passes = 1
	}
	plan := &WorkPlan{Root: root, Passes: passes}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if p.Token.Cancelled() {
			return wipeerr.Cancelled("planning")
		}
		if err != nil {
			if path == root {
				return wipeerr.Mark(err, wipeerr.ErrAccessDenied, "cannot read target %s", root)
			}
			p.skip(plan, path, fmt.Sprintf("Skipping inaccessible file: %s - %v", path, err))
			return nil
		}

		if d.IsDir() {
			if path != root && security.IsProtectedDir(path) {
				plan.SkippedDirs = append(plan.SkippedDirs, path)
				p.Emitter.Status(fmt.Sprintf("Skipping system directory: %s", path))
				return filepath.SkipDir
			}
			return nil
		}

		if security.IsProtectedFile(path) {
			p.skip(plan, path, fmt.Sprintf("Skipping Windows system file: %s", path))
			return nil
		}

		// Symlinks and devices are never followed or written through.
		if !d.Type().IsRegular() {
			p.skip(plan, path, fmt.Sprintf("Skipping empty/special file: %s", path))
			return nil
		}

		info, err := d.Info()
		if err != nil {
			p.skip(plan, path, fmt.Sprintf("Skipping inaccessible file: %s - %v", path, err))
			return nil
		}
		if !p.access(path, info) {
			p.skip(plan, path, fmt.Sprintf("Skipping protected file: %s", path))
			return nil
		}
		if info.Size() <= 0 {
			p.skip(plan, path, fmt.Sprintf("Skipping empty/special file: %s", path))
			return nil
		}

		plan.Files = append(plan.Files, FileEntry{Path: path, Size: info.Size()})
		plan.FileBytes += uint64(info.Size())
		return nil
	})
	if err != nil {
		return nil, err
	}

	plan.TotalBytes = plan.FileBytes * uint64(passes)

	if includeFill && p.Space != nil {
		free, err := p.Space.FreeSpace(root)
		if err != nil {
			p.Emitter.Status(fmt.Sprintf("Warning: Could not get free space. ETA may be inaccurate. Reason: %v", err))
			p.Logger.Log("WARN", "free space query failed", "root", root, "error", err)
		} else {
			plan.FreeBytes = free
			plan.TotalBytes += free
		}
	}

	p.Logger.Log("INFO", "work plan ready",
		"root", root,
		"files", len(plan.Files),
		"skipped", len(plan.Skipped),
		"skipped_dirs", len(plan.SkippedDirs),
		"total_bytes", plan.TotalBytes)
	return plan, nil
}

func (p *Planner) skip(plan *WorkPlan, path, message string) {
	plan.Skipped = append(plan.Skipped, SkippedEntry{Path: path, Reason: message})
	p.Emitter.Status(message)
}
