package volume

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"securewipe/internal/cancel"
	"securewipe/internal/config"
	"securewipe/internal/execute"
	"securewipe/internal/logging"
	"securewipe/internal/metrics"
	"securewipe/internal/progress"
	"securewipe/internal/security"
	"securewipe/internal/system"
	"securewipe/internal/wipe"
	"securewipe/internal/wipeerr"
)

// Filler fills the free space of a mounted volume and removes its own files.
// *wipe.SpaceFiller satisfies it.
type Filler interface {
	FillHeadroom(dir string, rep *progress.Reporter) (wipe.FillResult, error)
}

// Result is the outcome of a volume run.
type Result struct {
	Mode          wipe.Mode
	Target        string
	Filesystem    string
	Stages        []StageResult
	MetadataBytes uint64
	Fill          wipe.FillResult
	Processed     uint64
	Planned       []string // dry-run: the actions that would have run
}

// Sanitizer drives the stage sequence of a volume mode. Stages run strictly in
// order; the first failure or a cancellation ends the run, and any held
// volume handle or mountpoint is released before Run returns.
type Sanitizer struct {
	Checker            security.SystemVolumeChecker
	Open               Opener
	Formatter          *Formatter
	Mounter            Mounter
	Filler             Filler
	Space              system.SpaceProvider
	Token              *cancel.Token
	Emitter            progress.Emitter
	Logger             *logging.EnterpriseLogger
	Metrics            *metrics.Collector
	MetadataBytes      int64
	ChunkSize          int
	Headroom           uint64
	Label              string
	AllowedFilesystems []string
	Progress           progress.Settings

	tracker *progress.SpeedTracker
	now     func() time.Time
}

func NewSanitizer(cfg *config.Config, checker security.SystemVolumeChecker, runner execute.Runner, filler Filler, space system.SpaceProvider,
	token *cancel.Token, emitter progress.Emitter, logger *logging.EnterpriseLogger, m *metrics.Collector) *Sanitizer {
	if cfg == nil {
		cfg = config.Default()
	}
	if emitter == nil {
		emitter = progress.Discard
	}
	if space == nil {
		space = system.DiskSpace{}
	}
	return &Sanitizer{
		Checker:            checker,
		Open:               OpenDevice,
		Formatter:          NewFormatter(runtime.GOOS, runner),
		Mounter:            SysMounter{},
		Filler:             filler,
		Space:              space,
		Token:              token,
		Emitter:            emitter,
		Logger:             logger,
		Metrics:            m,
		MetadataBytes:      cfg.Volume.MetadataDestroyBytes,
		ChunkSize:          int(cfg.Wipe.ChunkSize),
		Headroom:           uint64(cfg.Wipe.HeadroomBytes),
		Label:              cfg.Volume.Label,
		AllowedFilesystems: cfg.Volume.AllowedFilesystems,
		Progress: progress.Settings{
			EveryBytes: uint64(cfg.Progress.ReportEveryBytes),
			Interval:   cfg.ReportInterval(),
		},
		tracker: progress.NewSpeedTracker(cfg.Progress.SampleWindow, cfg.Progress.MinSamples),
		now:     time.Now,
	}
}

// run is the state of one Run call.
type run struct {
	s         *Sanitizer
	ctx       context.Context
	job       wipe.WipeJob
	fs        string
	label     string
	formatter *Formatter
	res       *Result
	lease     *lease
	mounted   string
	skipped   bool
}

// Run validates the target and executes the stages of job.Mode. The
// system-volume check happens first, in dry-run too.
func (s *Sanitizer) Run(ctx context.Context, job wipe.WipeJob) (res *Result, err error) {
	res = &Result{Mode: job.Mode, Target: job.Target}
	stages := StagesFor(job.Mode)
	if stages == nil {
		return res, wipeerr.New(wipeerr.ErrInvalidTarget, "mode %s is not a volume mode", job.Mode)
	}
	if err := security.ValidateVolumeTarget(s.Checker, job.Target); err != nil {
		s.Logger.Log("ERROR", "volume target refused", "target", job.Target, "error", err)
		return res, err
	}
	fs, err := security.ValidateFilesystem(job.FilesystemType, s.AllowedFilesystems)
	if err != nil {
		return res, err
	}
	label := job.Label
	if label == "" {
		label = s.Label
	}
	if err := security.ValidateLabel(label, fs); err != nil {
		return res, err
	}
	res.Filesystem = fs

	r := &run{s: s, ctx: ctx, job: job, fs: fs, label: label, formatter: s.Formatter, res: res}
	if job.DryRun {
		dry := execute.NewDryRunRunner(dryRunCollector{s.Emitter, res}, s.Logger)
		r.formatter = NewFormatter(s.Formatter.GOOS, dry)
	}
	defer func() {
		if cerr := r.release(); cerr != nil {
			s.Logger.Log("ERROR", "volume release failed", "target", job.Target, "error", cerr)
			if err == nil {
				err = cerr
			} else {
				err = multierror.Append(err, cerr)
			}
		}
	}()

	s.Emitter.Status(fmt.Sprintf("Mode: %s on %s (%s, %d stages)", job.Mode, job.Target, fs, len(stages)))
	s.Logger.Log("INFO", "volume sanitization started", "target", job.Target, "mode", job.Mode.String(), "filesystem", fs, "dry_run", job.DryRun)

	for i, stage := range stages {
		if s.Token.Cancelled() || ctx.Err() != nil {
			s.Emitter.Status(fmt.Sprintf("Cancelled before stage %d/%d: %s", i+1, len(stages), stage.Title()))
			return res, wipeerr.Cancelled(stage.String())
		}

		s.Emitter.Status(fmt.Sprintf("Stage %d/%d: %s", i+1, len(stages), stage.Title()))
		sr := StageResult{Stage: stage, Name: stage.String(), StartTime: s.now()}
		r.skipped = false
		serr := r.execute(stage)
		sr.EndTime = s.now()
		sr.Duration = sr.EndTime.Sub(sr.StartTime)

		switch {
		case serr == nil && r.skipped:
			sr.Status = StatusSkipped
		case serr == nil && job.DryRun:
			sr.Status = StatusDryRun
		case serr == nil:
			sr.Status = StatusOK
		case wipeerr.IsCancelled(serr):
			sr.Status = StatusCancelled
			sr.Error = serr.Error()
		default:
			sr.Status = StatusFailed
			sr.Error = serr.Error()
		}
		res.Stages = append(res.Stages, sr)
		s.Metrics.Stage(sr.Name, sr.Status)

		if serr != nil {
			if sr.Status == StatusFailed {
				s.Logger.Log("ERROR", "stage failed", "stage", sr.Name, "duration", sr.Duration, "error", serr)
				s.Emitter.Status(fmt.Sprintf("Stage %s failed: %v", stage.Title(), serr))
			}
			return res, serr
		}
		s.Logger.Log("INFO", "stage completed", "stage", sr.Name, "status", sr.Status, "duration", sr.Duration)
	}

	s.Emitter.Status(fmt.Sprintf("Volume sanitization completed: %d stages", len(stages)))
	return res, nil
}

func (r *run) execute(stage Stage) error {
	switch stage {
	case LockAndDismount:
		return r.lockAndDismount()
	case MetadataDestroy:
		if r.job.Mode == wipe.ModeVolumeParanoid {
			return r.overwriteDevice()
		}
		return r.destroyMetadata()
	case InitialFormat:
		return r.format(false)
	case ReformatRefresh:
		return r.format(true)
	case FillFreeSpace:
		return r.fill()
	case FinalFormat:
		if r.job.Mode == wipe.ModeVolumeParanoid && r.formatter.OverwriteLeavesFilesystem() {
			r.skipped = true
			r.s.Emitter.Status("Skipping final format: the overwrite already created a filesystem")
			return nil
		}
		return r.format(true)
	}
	return wipeerr.New(wipeerr.ErrInvalidTarget, "unknown stage %d", stage)
}

func (r *run) lockAndDismount() error {
	if r.job.DryRun {
		r.plan(fmt.Sprintf("Would lock and dismount %s", r.job.Target))
		return nil
	}
	l, err := acquire(r.s.Open, r.job.Target)
	if err != nil {
		return err
	}
	r.lease = l
	r.s.Emitter.Status(fmt.Sprintf("Volume %s locked and dismounted", r.job.Target))
	// Only the fast path writes through the handle; format tools need it gone.
	if r.job.Mode != wipe.ModeVolumeFast {
		return r.release()
	}
	return nil
}

func (r *run) destroyMetadata() error {
	limit := r.s.MetadataBytes
	if r.job.DryRun {
		r.plan(fmt.Sprintf("Would overwrite the first %s of %s with random data",
			progress.FormatSize(float64(limit)), r.job.Target))
	} else {
		rep := r.reporter(0)
		n, err := DestroyMetadata(r.lease.api, limit, r.s.ChunkSize, r.s.Token, rep)
		r.res.MetadataBytes = n
		r.res.Processed += rep.Processed()
		r.s.Metrics.AddOverwritten(n)
		if err != nil {
			return err
		}
		r.s.Emitter.Status(fmt.Sprintf("Overwrote %s of volume metadata", progress.FormatSize(float64(n))))
	}
	if err := r.release(); err != nil {
		return err
	}
	if r.s.Token.Cancelled() {
		return wipeerr.Cancelled("metadata destroy")
	}
	return r.format(true)
}

func (r *run) overwriteDevice() error {
	if err := r.release(); err != nil {
		return err
	}
	cmd := r.formatter.OverwriteCommand(r.job.Target, r.fs, r.label, r.job.Passes)
	r.s.Emitter.Status(fmt.Sprintf("Overwriting %s with %d passes. This touches every sector and takes a long time.", r.job.Target, r.job.Passes))
	_, err := r.formatter.Runner.Run(r.ctx, cmd)
	return err
}

func (r *run) format(quick bool) error {
	return r.formatter.Format(r.ctx, r.job.Target, r.fs, r.label, quick)
}

func (r *run) fill() (err error) {
	if r.job.DryRun {
		r.plan(fmt.Sprintf("Would mount %s, fill its free space leaving %s headroom, and unmount it",
			r.job.Target, progress.FormatSize(float64(r.s.Headroom))))
		return nil
	}
	if r.s.Filler == nil {
		return wipeerr.New(wipeerr.ErrInvalidTarget, "no free-space filler configured")
	}

	mp, err := r.s.Mounter.Mount(r.job.Target, r.fs)
	if err != nil {
		return err
	}
	r.mounted = mp
	defer func() {
		if uerr := r.unmount(); uerr != nil {
			err = multierror.Append(err, uerr).ErrorOrNil()
		}
	}()

	var total uint64
	if free, qerr := r.s.Space.FreeSpace(mp); qerr == nil && free > r.s.Headroom {
		total = free - r.s.Headroom
	}
	rep := r.reporter(total)
	fill, err := r.s.Filler.FillHeadroom(mp, rep)
	r.res.Fill = fill
	r.res.Processed += rep.Processed()
	return err
}

func (r *run) reporter(total uint64) *progress.Reporter {
	rep := progress.NewReporter(r.s.Emitter, r.s.tracker, total, r.s.Progress)
	rep.SetClock(r.s.now)
	rep.SetRateObserver(r.s.Metrics.ObserveRate)
	return rep
}

func (r *run) plan(msg string) {
	r.res.Planned = append(r.res.Planned, msg)
	r.s.Emitter.Status("[DRY RUN] " + msg)
}

func (r *run) unmount() error {
	if r.mounted == "" {
		return nil
	}
	mp := r.mounted
	r.mounted = ""
	return r.s.Mounter.Unmount(mp)
}

// release drops whatever the run still holds: the mountpoint first, then the
// volume handle.
func (r *run) release() error {
	var result *multierror.Error
	if err := r.unmount(); err != nil {
		result = multierror.Append(result, err)
	}
	if r.lease != nil {
		err := r.lease.release()
		r.lease = nil
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// dryRunCollector forwards statuses and records dry-run commands as planned
// actions.
type dryRunCollector struct {
	progress.Emitter
	res *Result
}

func (d dryRunCollector) Status(message string) {
	d.res.Planned = append(d.res.Planned, strings.TrimPrefix(message, "[DRY RUN] "))
	d.Emitter.Status(message)
}
