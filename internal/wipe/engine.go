package wipe

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"securewipe/internal/cancel"
	"securewipe/internal/config"
	"securewipe/internal/logging"
	"securewipe/internal/metrics"
	"securewipe/internal/progress"
	"securewipe/internal/security"
	"securewipe/internal/system"
	"securewipe/internal/wipeerr"
)

// Result is the outcome of a file-level run.
type Result struct {
	Mode         Mode
	Plan         *WorkPlan
	Overwrite    OverwriteResult
	FilesDeleted int
	Sweep        SweepResult
	Quick        QuickResult
	Fill         FillResult
	Processed    uint64
	Total        uint64
	Planned      []string // dry-run: the actions that would have run
}

// Engine runs the file-level pipelines: quick delete and
// plan → overwrite → delete → sweep → fill.
type Engine struct {
	cfg     *config.Config
	token   *cancel.Token
	emitter progress.Emitter
	logger  *logging.EnterpriseLogger
	metrics *metrics.Collector
	space   system.SpaceProvider
	tracker *progress.SpeedTracker

	// seams for tests
	newFiller func() *SpaceFiller
	clock     func() time.Time
}

func NewEngine(cfg *config.Config, token *cancel.Token, emitter progress.Emitter, logger *logging.EnterpriseLogger, m *metrics.Collector, space system.SpaceProvider) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if emitter == nil {
		emitter = progress.Discard
	}
	if space == nil {
		space = system.DiskSpace{}
	}
	e := &Engine{
		cfg:     cfg,
		token:   token,
		emitter: emitter,
		logger:  logger,
		metrics: m,
		space:   space,
		tracker: progress.NewSpeedTracker(cfg.Progress.SampleWindow, cfg.Progress.MinSamples),
		clock:   time.Now,
	}
	e.newFiller = e.defaultFiller
	return e
}

// Run executes a file-level job. Volume modes are rejected; they belong to
// the volume sanitizer.
func (e *Engine) Run(job WipeJob) (*Result, error) {
	switch job.Mode {
	case ModeQuick:
		return e.runQuick(job)
	case ModeOverwrite:
		return e.runOverwrite(job)
	default:
		return nil, wipeerr.New(wipeerr.ErrInvalidTarget, "mode %s is not a file-level mode", job.Mode)
	}
}

func (e *Engine) runQuick(job WipeJob) (*Result, error) {
	res := &Result{Mode: job.Mode}
	e.emitter.Status("Mode: Quick Wipe (File Deletion Only)")

	if job.DryRun {
		res.Planned = e.dryRunDeletes(job.Target)
		return res, nil
	}

	sw := NewSweeper(e.cfg.Wipe.FinalSweepPasses, e.token, e.emitter, e.logger, e.metrics)
	quick, err := sw.Quick(job.Target)
	res.Quick = quick
	res.Sweep = quick.Sweep
	res.FilesDeleted = quick.Files
	if err != nil {
		return res, err
	}

	e.emitter.Status(fmt.Sprintf("Quick wipe completed: %d files and %d directories deleted", quick.Files, quick.Dirs))
	if quick.Errors > 0 {
		e.emitter.Status(fmt.Sprintf("Note: %d items could not be deleted due to permissions", quick.Errors))
	}
	return res, nil
}

func (e *Engine) runOverwrite(job WipeJob) (*Result, error) {
	res := &Result{Mode: job.Mode}

	e.emitter.Status("Phase 1: Calculating total work...")
	planner := NewPlanner(e.space, e.emitter, e.logger, e.token)
	plan, err := planner.Plan(job.Target, job.Passes, job.Mode.IncludesFill())
	if err != nil {
		return res, err
	}
	res.Plan = plan
	res.Total = plan.TotalBytes
	e.emitter.Status(fmt.Sprintf("Total work: %s across %d files (%d passes)",
		progress.FormatSize(float64(plan.TotalBytes)), len(plan.Files), plan.Passes))

	if job.DryRun {
		res.Planned = e.dryRunOverwrite(plan)
		return res, nil
	}

	rep := progress.NewReporter(e.emitter, e.tracker, plan.TotalBytes, progress.Settings{
		EveryBytes: uint64(e.cfg.Progress.ReportEveryBytes),
		Interval:   e.cfg.ReportInterval(),
	})
	rep.SetClock(e.clock)
	rep.SetRateObserver(e.metrics.ObserveRate)
	defer func() {
		res.Processed = rep.Processed()
		res.Total = rep.Total()
	}()

	// Phase 2: overwrite
	e.emitter.Status(fmt.Sprintf("Phase 2: Overwriting %d files...", len(plan.Files)))
	sched := NewScheduler(int(e.cfg.Wipe.ChunkSize), e.token, e.emitter, e.logger, e.metrics)
	sched.MinElapsed = config.Duration(e.cfg.Progress.OverwriteMinElapsed, sched.MinElapsed)
	sched.MinSample = config.Duration(e.cfg.Progress.OverwriteMinSample, sched.MinSample)
	ov, err := sched.Run(plan.Files, plan.Passes, rep)
	res.Overwrite = ov
	if err != nil {
		return res, err
	}

	// Phase 3: delete the overwritten files and whatever is left of the tree
	e.emitter.Status("Deleting overwritten files...")
	var freed uint64
	for _, entry := range plan.Files {
		if e.token.Cancelled() {
			return res, wipeerr.Cancelled("delete")
		}
		size := entry.Size
		if info, err := os.Lstat(entry.Path); err == nil {
			size = info.Size()
		}
		if err := os.Remove(entry.Path); err == nil {
			res.FilesDeleted++
			freed += uint64(size)
		} else if !os.IsNotExist(err) {
			e.logger.Log("WARN", "delete failed", "path", entry.Path, "error", err)
		}
	}
	// Свободное место было посчитано до удаления: удалённые файлы тоже будут заполнены.
	if job.Mode.IncludesFill() && freed > 0 {
		rep.AddTotal(freed)
		e.logger.Log("DEBUG", "fill estimate grown by deleted files", "bytes", freed)
	}

	e.emitter.Status("Deleting empty directories...")
	sw := NewSweeper(e.cfg.Wipe.FinalSweepPasses, e.token, e.emitter, e.logger, e.metrics)
	sweep, err := sw.Sweep(job.Target)
	res.Sweep = sweep
	if err != nil {
		return res, err
	}
	e.emitter.Status(fmt.Sprintf("Deleted %d directories (final sweep removed %d stray files; %d entries remaining)",
		sweep.Dirs, sweep.Files, sweep.Remaining))

	if !job.Mode.IncludesFill() {
		return res, nil
	}

	// Phase 4: fill free space; the filler removes its own files on every path
	e.emitter.Status("Phase 3: Starting free space fill phase...")
	filler := e.newFiller()
	var fill FillResult
	if e.cfg.Wipe.FillStrategy == "headroom" {
		fill, err = filler.FillHeadroom(job.Target, rep)
	} else {
		fill, err = filler.FillChunked(job.Target, rep)
	}
	res.Fill = fill
	if err != nil {
		return res, err
	}
	e.emitter.Status(fmt.Sprintf("Phase 3 completed. %d temp files created.", fill.Completed))
	rep.Flush()
	return res, nil
}

func (e *Engine) defaultFiller() *SpaceFiller {
	return NewConfiguredFiller(e.cfg, e.space, e.token, e.emitter, e.logger, e.metrics)
}

func (e *Engine) dryRunOverwrite(plan *WorkPlan) []string {
	var actions []string
	add := func(msg string) {
		actions = append(actions, msg)
		e.emitter.Status("[DRY RUN] " + msg)
	}
	for _, f := range plan.Files {
		add(fmt.Sprintf("Would overwrite %s (%s, %d passes) and delete it", f.Path, progress.FormatSize(float64(f.Size)), plan.Passes))
	}
	add(fmt.Sprintf("Would sweep remaining entries under %s", plan.Root))
	add(fmt.Sprintf("Would fill %s of free space in %s and remove the fill files",
		progress.FormatSize(float64(plan.FreeBytes)), plan.Root))
	return actions
}

func (e *Engine) dryRunDeletes(root string) []string {
	var actions []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == root {
			return nil
		}
		if d.IsDir() && security.IsProtectedDir(path) {
			e.emitter.Status(fmt.Sprintf("Skipping system directory: %s", path))
			return filepath.SkipDir
		}
		if !d.IsDir() && security.IsProtectedFile(path) {
			return nil
		}
		msg := fmt.Sprintf("Would delete %s", path)
		actions = append(actions, msg)
		e.emitter.Status("[DRY RUN] " + msg)
		return nil
	})
	return actions
}
