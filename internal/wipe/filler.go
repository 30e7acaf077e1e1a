package wipe

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"

	"securewipe/internal/cancel"
	"securewipe/internal/config"
	"securewipe/internal/logging"
	"securewipe/internal/metrics"
	"securewipe/internal/progress"
	"securewipe/internal/system"
	"securewipe/internal/wipeerr"
)

const (
	FillPhase      = "Fill Free Space"
	fillDirName    = ".securewipe_fill"
	fillPercentCap = 99.9
)

// junkFile is the part of *os.File the filler writes through.
type junkFile interface {
	io.Writer
	Sync() error
	Close() error
}

// FillResult summarizes a fill run. Created counts every tracked path,
// including a file cut short by the disk filling up; Completed counts files
// written in full.
type FillResult struct {
	Dir        string
	Created    int
	Completed  int
	Written    uint64
	Deleted    int
	Skipped    bool
	CleanupErr error
}

// SpaceFiller saturates free space with random files and removes them.
type SpaceFiller struct {
	ChunkSize   int64
	MaxFileSize int64
	Headroom    uint64
	MinFree     uint64
	MinElapsed  time.Duration
	MinSample   time.Duration
	Space       system.SpaceProvider
	Token       *cancel.Token
	Emitter     progress.Emitter
	Logger      *logging.EnterpriseLogger
	Metrics     *metrics.Collector

	create func(path string) (junkFile, error)
	now    func() time.Time
}

func NewSpaceFiller(space system.SpaceProvider, token *cancel.Token, emitter progress.Emitter, logger *logging.EnterpriseLogger, m *metrics.Collector) *SpaceFiller {
	if emitter == nil {
		emitter = progress.Discard
	}
	return &SpaceFiller{
		ChunkSize:   32 << 20,
		MaxFileSize: 1 << 30,
		Headroom:    50 << 20,
		MinFree:     1 << 20,
		MinElapsed:  5 * time.Second,
		MinSample:   10 * time.Millisecond,
		Space:       space,
		Token:       token,
		Emitter:     emitter,
		Logger:      logger,
		Metrics:     m,
		create: func(path string) (junkFile, error) {
			return os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		},
		now: time.Now,
	}
}

// NewConfiguredFiller applies the wipe and progress policy of cfg.
func NewConfiguredFiller(cfg *config.Config, space system.SpaceProvider, token *cancel.Token, emitter progress.Emitter, logger *logging.EnterpriseLogger, m *metrics.Collector) *SpaceFiller {
	f := NewSpaceFiller(space, token, emitter, logger, m)
	w := cfg.Wipe
	f.ChunkSize = w.FillChunkSize
	f.MaxFileSize = w.FillMaxFileSize
	f.Headroom = uint64(w.HeadroomBytes)
	f.MinFree = uint64(w.MinFreeBytes)
	f.MinElapsed = config.Duration(cfg.Progress.FillMinElapsed, f.MinElapsed)
	f.MinSample = config.Duration(cfg.Progress.FillMinSample, f.MinSample)
	return f
}

// junkSet tracks created paths so release can remove every one of them.
type junkSet struct {
	files []string
	dir   string
}

func (j *junkSet) release(emitter progress.Emitter) (int, error) {
	emitter.Status(fmt.Sprintf("Cleaning up %d temporary files...", len(j.files)))
	var result *multierror.Error
	deleted := 0
	for _, path := range j.files {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			emitter.Status(fmt.Sprintf("Could not delete temp file %s: %v", path, err))
			result = multierror.Append(result, err)
			continue
		}
		deleted++
	}
	if j.dir != "" {
		if err := os.Remove(j.dir); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, err)
		}
	}
	emitter.Status(fmt.Sprintf("Deleted %d out of %d temp files", deleted, len(j.files)))
	return deleted, result.ErrorOrNil()
}

// FillChunked writes fixed-size junk_fill_N.tmp files into dir until the
// volume reports it is full. Running out of space ends the fill normally.
func (f *SpaceFiller) FillChunked(dir string, rep *progress.Reporter) (res FillResult, err error) {
	res.Dir = dir
	junk := &junkSet{}
	defer func() { res.Deleted, res.CleanupErr = f.finish(junk, &res) }()

	f.Emitter.Status(fmt.Sprintf("Starting free space fill phase in: %s", dir))
	if free, qerr := f.Space.FreeSpace(dir); qerr != nil {
		f.Emitter.Status(fmt.Sprintf("Could not check free space: %v", qerr))
	} else {
		f.Emitter.Status(fmt.Sprintf("Available free space: %s", progress.FormatSize(float64(free))))
		if free < f.MinFree {
			f.Emitter.Status("Very little free space available, skipping fill phase")
			res.Skipped = true
			return res, nil
		}
	}

	f.begin(rep, dir)
	buf := GetBuffer(int(f.ChunkSize))
	defer PutBuffer(buf)

	for i := 0; ; i++ {
		if f.Token.Cancelled() {
			return res, wipeerr.Cancelled("fill")
		}

		path := filepath.Join(dir, fmt.Sprintf("junk_fill_%d.tmp", i))
		file, err := f.open(junk, path, &res)
		if err != nil {
			f.stopped(res, err)
			break
		}
		n, took, err := f.writeChunk(file, buf)
		cerr := file.Close()
		f.advance(rep, &res, n, took)
		if err == nil {
			err = cerr
		}
		if err != nil {
			f.stopped(res, err)
			break
		}

		res.Completed++
		if (res.Completed-1)%10 == 0 {
			f.Emitter.Status(fmt.Sprintf("Created temp file #%d: %s - Total: %s",
				res.Completed-1, progress.FormatSize(float64(n)), progress.FormatSize(float64(rep.Processed()))))
		}
	}

	f.Emitter.Status(fmt.Sprintf("Free space fill completed. Created %d temp files totaling %s",
		res.Completed, progress.FormatSize(float64(res.Written))))
	return res, nil
}

// FillHeadroom grows files inside a dedicated folder, re-querying free space
// before every chunk and stopping once only the headroom is left.
func (f *SpaceFiller) FillHeadroom(dir string, rep *progress.Reporter) (res FillResult, err error) {
	folder := filepath.Join(dir, fillDirName)
	res.Dir = folder
	junk := &junkSet{}
	defer func() { res.Deleted, res.CleanupErr = f.finish(junk, &res) }()

	free, err := f.Space.FreeSpace(dir)
	if err != nil {
		return res, wipeerr.Mark(err, wipeerr.ErrIOFailure, "query free space of %s", dir)
	}
	f.Emitter.Status(fmt.Sprintf("Available free space: %s (headroom %s)",
		progress.FormatSize(float64(free)), progress.FormatSize(float64(f.Headroom))))
	if free <= f.Headroom {
		res.Skipped = true
		f.Emitter.Status("Free space fill completed. Created 0 temp files totaling 0.00 B")
		return res, nil
	}

	if err := os.MkdirAll(folder, 0700); err != nil {
		return res, wipeerr.Mark(err, wipeerr.ErrAccessDenied, "create fill folder %s", folder)
	}
	junk.dir = folder

	f.begin(rep, dir)
	buf := GetBuffer(int(f.ChunkSize))
	defer PutBuffer(buf)

	full := false
	for i := 0; !full; i++ {
		if f.Token.Cancelled() {
			return res, wipeerr.Cancelled("fill")
		}

		path := filepath.Join(folder, fmt.Sprintf("fill_%d.bin", i))
		file, err := f.open(junk, path, &res)
		if err != nil {
			f.stopped(res, err)
			break
		}

		var fileBytes int64
		var werr error
		for fileBytes < f.MaxFileSize {
			if f.Token.Cancelled() {
				break
			}
			free, qerr := f.Space.FreeSpace(dir)
			if qerr != nil {
				werr = wipeerr.Mark(qerr, wipeerr.ErrIOFailure, "query free space of %s", dir)
				break
			}
			if free <= f.Headroom {
				full = true
				break
			}
			size := minInt64(f.ChunkSize, int64(free-f.Headroom), f.MaxFileSize-fileBytes)

			n, took, err := f.writeChunk(file, buf[:size])
			fileBytes += int64(n)
			f.advance(rep, &res, n, took)
			if err != nil {
				werr = err
				break
			}
		}
		if cerr := file.Close(); werr == nil {
			werr = cerr
		}

		if f.Token.Cancelled() {
			return res, wipeerr.Cancelled("fill")
		}
		if werr != nil {
			f.stopped(res, werr)
			break
		}
		res.Completed++
	}

	f.Emitter.Status(fmt.Sprintf("Free space fill completed. Created %d temp files totaling %s",
		res.Created, progress.FormatSize(float64(res.Written))))
	return res, nil
}

func (f *SpaceFiller) begin(rep *progress.Reporter, dir string) {
	rep.Begin(progress.Phase{
		Name:       FillPhase,
		MinElapsed: f.MinElapsed,
		MinSample:  f.MinSample,
		PercentCap: fillPercentCap,
		Remaining:  func() (uint64, error) { return f.Space.FreeSpace(dir) },
	})
}

// open creates path and records it before any byte is written.
func (f *SpaceFiller) open(junk *junkSet, path string, res *FillResult) (junkFile, error) {
	file, err := f.create(path)
	if err != nil {
		return nil, err
	}
	junk.files = append(junk.files, path)
	res.Created++
	f.Metrics.JunkCreated()
	return file, nil
}

func (f *SpaceFiller) writeChunk(file junkFile, chunk []byte) (int, time.Duration, error) {
	if err := FillRandom(chunk); err != nil {
		return 0, 0, err
	}
	start := f.now()
	n, err := file.Write(chunk)
	if err == nil {
		err = file.Sync()
	}
	return n, f.now().Sub(start), err
}

func (f *SpaceFiller) advance(rep *progress.Reporter, res *FillResult, n int, took time.Duration) {
	if n <= 0 {
		return
	}
	res.Written += uint64(n)
	// A short write carries no useful timing.
	if int64(n) < f.ChunkSize {
		took = 0
	}
	rep.Advance(uint64(n), took)
	f.Metrics.AddFilled(uint64(n))
}

// stopped reports the end of a fill loop. Disk-full is the expected end;
// anything else is logged but still ends the fill normally.
func (f *SpaceFiller) stopped(res FillResult, err error) {
	f.Emitter.Status(fmt.Sprintf("Disk full or write error after %d temp files: %v", res.Completed, err))
	if system.IsDiskFullError(err) {
		f.Logger.Log("INFO", "fill reached capacity", "files", res.Created, "bytes", res.Written)
		return
	}
	f.Logger.Log("WARN", "fill stopped by write error", "files", res.Created, "error", err)
}

func (f *SpaceFiller) finish(junk *junkSet, res *FillResult) (int, error) {
	deleted, err := junk.release(f.Emitter)
	if err != nil {
		f.Logger.Log("WARN", "temp file cleanup incomplete", "dir", res.Dir, "error", err)
	}
	return deleted, err
}

func minInt64(values ...int64) int64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
