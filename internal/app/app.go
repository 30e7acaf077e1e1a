// Package app is the controller: it picks the pipeline for a job, wires the
// engine components together and turns the outcome into exactly one final
// status, a run report and metrics.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"securewipe/internal/cancel"
	"securewipe/internal/config"
	"securewipe/internal/execute"
	"securewipe/internal/logging"
	"securewipe/internal/metrics"
	"securewipe/internal/progress"
	"securewipe/internal/protocol"
	"securewipe/internal/reporting"
	"securewipe/internal/security"
	"securewipe/internal/system"
	"securewipe/internal/volume"
	"securewipe/internal/wipe"
	"securewipe/internal/wipeerr"
)

const CompletedMessage = "All operations completed."

// Emitter is the event sink of a run. *protocol.Emitter satisfies it.
type Emitter interface {
	progress.Emitter
	Error(message string)
}

// App wires one run.
type App struct {
	cfg     *config.Config
	logger  *logging.EnterpriseLogger
	emitter Emitter
	token   *cancel.Token
	metrics *metrics.Collector

	space    system.SpaceProvider
	resolver *system.VolumeResolver
	checker  security.SystemVolumeChecker
	elevated func() bool
	now      func() time.Time
	// volumeSetup lets tests replace platform pieces of the sanitizer
	volumeSetup func(*volume.Sanitizer)
}

func NewApp(cfg *config.Config, logger *logging.EnterpriseLogger, emitter Emitter, token *cancel.Token) *App {
	if cfg == nil {
		cfg = config.Default()
	}
	a := &App{
		cfg:      cfg,
		logger:   logger,
		emitter:  emitter,
		token:    token,
		space:    system.DiskSpace{},
		resolver: system.NewVolumeResolver(),
		elevated: security.IsElevated,
		now:      time.Now,
	}
	a.checker = a.resolver
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewCollector()
	}
	return a
}

// Run executes job and returns its outcome. The final status line, the
// report and the metrics textfile are written on every exit path.
func (a *App) Run(ctx context.Context, job wipe.WipeJob) (err error) {
	stop := a.token.Bind(ctx)
	defer stop()

	start := a.now()
	report := reporting.New(a.cfg, job.Mode.String(), job.Target, job.DryRun, start)
	report.Passes = job.Passes
	report.Filesystem = job.FilesystemType

	logger := a.logger.With("run_id", report.RunID)
	logger.Log("INFO", "run started", "mode", job.Mode.String(), "target", job.Target, "passes", job.Passes, "dry_run", job.DryRun)

	if !job.DryRun && !a.elevated() {
		a.emitter.Status("Warning: not running with administrator privileges; protected files will be skipped")
		logger.Log("WARN", "running without elevation")
	}

	defer func() {
		a.finish(logger, report, err)
	}()

	if job.Mode.IsVolume() {
		return a.runVolume(ctx, job, logger, report)
	}
	return a.runFiles(job, logger, report)
}

func (a *App) runFiles(job wipe.WipeJob, logger *logging.EnterpriseLogger, report *reporting.Report) error {
	path, err := system.ValidatePath(job.Target)
	if err != nil {
		return wipeerr.Mark(err, wipeerr.ErrInvalidTarget, "invalid target")
	}
	job.Target = path
	if err := system.CheckAccess(path, !job.DryRun); err != nil {
		return err
	}
	engine := wipe.NewEngine(a.cfg, a.token, a.emitter, logger, a.metrics, a.space)
	res, err := engine.Run(job)
	if res != nil {
		s := &report.Summary
		s.BytesProcessed = res.Processed
		s.BytesPlanned = res.Total
		s.FilesOverwritten = res.Overwrite.Overwritten
		s.FilesSkipped = res.Overwrite.Skipped
		s.FilesFailed = res.Overwrite.Failed
		s.FilesDeleted = res.FilesDeleted
		s.DirsDeleted = res.Sweep.Dirs + res.Quick.Dirs
		s.EntriesRemaining = res.Sweep.Remaining
		s.JunkFilesCreated = res.Fill.Created
		s.JunkFilesDeleted = res.Fill.Deleted
		if res.Plan != nil {
			s.FilesSkipped += len(res.Plan.Skipped)
		}
	}
	return err
}

func (a *App) runVolume(ctx context.Context, job wipe.WipeJob, logger *logging.EnterpriseLogger, report *reporting.Report) error {
	var runner execute.Runner
	if job.DryRun {
		runner = execute.NewDryRunRunner(a.emitter, logger)
	} else {
		runner = execute.NewSupervisor(a.cfg.PollInterval(), a.token, logger)
	}
	filler := wipe.NewConfiguredFiller(a.cfg, a.space, a.token, a.emitter, logger, a.metrics)
	s := volume.NewSanitizer(a.cfg, a.checker, runner, filler, a.space, a.token, a.emitter, logger, a.metrics)
	if a.volumeSetup != nil {
		a.volumeSetup(s)
	}

	res, err := s.Run(ctx, job)
	if res != nil {
		report.Filesystem = res.Filesystem
		report.Summary.BytesProcessed = res.Processed
		report.Summary.MetadataBytes = res.MetadataBytes
		report.Summary.JunkFilesCreated = res.Fill.Created
		report.Summary.JunkFilesDeleted = res.Fill.Deleted
		for _, st := range res.Stages {
			report.AddStage(st.Name, st.Status, st.StartTime, st.EndTime, st.Error)
		}
	}
	return err
}

// finish emits the single terminal message and persists the run artifacts.
// Artifact failures are logged; they never change the run outcome.
func (a *App) finish(logger *logging.EnterpriseLogger, report *reporting.Report, err error) {
	report.Finish(err, a.now())

	switch {
	case err == nil:
		a.emitter.Status(CompletedMessage)
	case wipeerr.IsCancelled(err):
		a.emitter.Status("Operation cancelled. Cleanup finished.")
	default:
		a.emitter.Error(failureMessage(err))
	}
	logger.Log("INFO", "run finished", "status", report.Status, "exit_code", report.ExitCode, "duration", report.Duration)

	if path, rerr := reporting.SaveReport(report, a.cfg); rerr != nil {
		logger.Log("WARN", "report not saved", "error", rerr)
	} else if path != "" {
		logger.Log("INFO", "report saved", "path", path)
	}
	if a.metrics != nil && a.cfg.Metrics.Textfile != "" {
		if merr := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); merr != nil {
			logger.Log("WARN", "metrics textfile not written", "path", a.cfg.Metrics.Textfile, "error", merr)
		}
	}
}

func failureMessage(err error) string {
	if wipeerr.IsAccessDenied(err) && len(wipeerr.Hints(err)) == 0 {
		err = wipeerr.WithHint(err, "this typically happens when trying to access system files; "+
			"try running with elevated permissions or choose a different target path")
	}
	msg := fmt.Sprintf("An error occurred: %v", err)
	if hints := wipeerr.Hints(err); len(hints) > 0 {
		msg += " (" + strings.Join(hints, "; ") + ")"
	}
	return msg
}

// Plan computes the work of an overwrite without touching anything.
func (a *App) Plan(target string, passes int, includeFill bool) (*wipe.WorkPlan, error) {
	path, err := system.ValidatePath(target)
	if err != nil {
		return nil, wipeerr.Mark(err, wipeerr.ErrInvalidTarget, "invalid target")
	}
	return wipe.NewPlanner(a.space, a.emitter, a.logger, a.token).Plan(path, passes, includeFill)
}

// Drives lists mounted volumes for display.
func (a *App) Drives() ([]protocol.Drive, error) {
	disks, err := a.resolver.ListDrives()
	if err != nil {
		return nil, err
	}
	drives := make([]protocol.Drive, 0, len(disks))
	for _, d := range disks {
		drives = append(drives, protocol.Drive{
			Device:     d.Device,
			Mountpoint: d.Mountpoint,
			Filesystem: d.Filesystem,
			Total:      d.TotalSize,
			Free:       d.FreeSize,
			System:     d.IsSystem,
		})
	}
	return drives, nil
}
