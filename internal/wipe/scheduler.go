package wipe

import (
	"fmt"
	"io"
	"os"
	"time"

	"securewipe/internal/cancel"
	"securewipe/internal/logging"
	"securewipe/internal/metrics"
	"securewipe/internal/progress"
	"securewipe/internal/wipeerr"
)

// overwriteTarget is the part of *os.File the scheduler uses.
type overwriteTarget interface {
	io.WriteSeeker
	Sync() error
	Stat() (os.FileInfo, error)
	Close() error
}

// OverwriteResult summarizes one scheduler run.
type OverwriteResult struct {
	Overwritten int
	Skipped     int
	Failed      int
	Bytes       uint64
	Cancelled   bool
}

// Scheduler overwrites files in place with random data, pass by pass.
type Scheduler struct {
	ChunkSize  int
	MinElapsed time.Duration
	MinSample  time.Duration
	Token      *cancel.Token
	Emitter    progress.Emitter
	Logger     *logging.EnterpriseLogger
	Metrics    *metrics.Collector

	open   func(path string) (overwriteTarget, error)
	access func(path string) bool
	now    func() time.Time
}

func NewScheduler(chunkSize int, token *cancel.Token, emitter progress.Emitter, logger *logging.EnterpriseLogger, m *metrics.Collector) *Scheduler {
	if chunkSize <= 0 {
		chunkSize = 1 << 20
	}
	if emitter == nil {
		emitter = progress.Discard
	}
	return &Scheduler{
		ChunkSize:  chunkSize,
		MinElapsed: 3 * time.Second,
		MinSample:  time.Millisecond,
		Token:      token,
		Emitter:    emitter,
		Logger:     logger,
		Metrics:    m,
		open: func(path string) (overwriteTarget, error) {
			return os.OpenFile(path, os.O_RDWR, 0)
		},
		access: func(path string) bool { return canReadWrite(path, nil) },
		now:    time.Now,
	}
}

// Run overwrites every file passes times. A failing file is reported and
// skipped. Cancellation is checked before every chunk and stops the run with
// an ErrCancelled error; the partially written pass is left as is.
func (s *Scheduler) Run(files []FileEntry, passes int, rep *progress.Reporter) (OverwriteResult, error) {
	var res OverwriteResult
	if passes < 1 {
		passes = 1
	}

	buf := GetBuffer(s.ChunkSize)
	defer PutBuffer(buf)

	for _, entry := range files {
		if s.Token.Cancelled() {
			res.Cancelled = true
			return res, wipeerr.Cancelled("overwrite")
		}

		if !s.access(entry.Path) {
			s.Emitter.Status(fmt.Sprintf("Skipping protected file: %s", entry.Path))
			res.Skipped++
			s.Metrics.FileResult("skipped")
			continue
		}

		written, err := s.overwriteFile(entry, passes, buf, rep)
		res.Bytes += written
		switch {
		case err == nil:
			res.Overwritten++
			s.Metrics.FileResult("overwritten")
		case wipeerr.IsCancelled(err):
			res.Cancelled = true
			return res, err
		default:
			res.Failed++
			s.Metrics.FileResult("failed")
			s.Emitter.Status(fmt.Sprintf("Warning: Could not overwrite %s. Reason: %v", entry.Path, err))
			s.Logger.Log("WARN", "overwrite failed", "path", entry.Path, "error", err)
		}
	}
	return res, nil
}

func (s *Scheduler) overwriteFile(entry FileEntry, passes int, buf []byte, rep *progress.Reporter) (written uint64, err error) {
	f, err := s.open(entry.Path)
	if err != nil {
		return 0, wipeerr.Mark(err, wipeerr.ErrAccessDenied, "open %s", entry.Path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = wipeerr.Mark(cerr, wipeerr.ErrIOFailure, "close %s", entry.Path)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return 0, wipeerr.Mark(err, wipeerr.ErrIOFailure, "stat %s", entry.Path)
	}
	size := info.Size()
	// A file that grew since planning is still overwritten in full; the
	// extra work is added to the total so progress stays bounded by it.
	if size > entry.Size {
		rep.AddTotal(uint64(size-entry.Size) * uint64(passes))
	}

	for pass := 1; pass <= passes; pass++ {
		if s.Token.Cancelled() {
			return written, wipeerr.Cancelled("overwrite")
		}
		rep.Begin(progress.Phase{
			Name:       fmt.Sprintf("Overwrite (Pass %d/%d)", pass, passes),
			MinElapsed: s.MinElapsed,
			MinSample:  s.MinSample,
		})

		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return written, wipeerr.Mark(err, wipeerr.ErrIOFailure, "seek %s", entry.Path)
		}

		remaining := size
		for remaining > 0 {
			if s.Token.Cancelled() {
				return written, wipeerr.Cancelled("overwrite")
			}

			n := len(buf)
			if int64(n) > remaining {
				n = int(remaining)
			}
			chunk := buf[:n]
			// Random generation stays outside the timed window.
			if err := FillRandom(chunk); err != nil {
				return written, wipeerr.Mark(err, wipeerr.ErrIOFailure, "generate random data for %s", entry.Path)
			}

			start := s.now()
			if _, err := f.Write(chunk); err != nil {
				return written, wipeerr.Mark(err, wipeerr.ErrIOFailure, "write %s (pass %d)", entry.Path, pass)
			}
			if err := f.Sync(); err != nil {
				return written, wipeerr.Mark(err, wipeerr.ErrIOFailure, "flush %s (pass %d)", entry.Path, pass)
			}
			took := s.now().Sub(start)

			remaining -= int64(n)
			written += uint64(n)
			rep.Advance(uint64(n), took)
			s.Metrics.AddOverwritten(uint64(n))
		}
	}
	return written, nil
}
