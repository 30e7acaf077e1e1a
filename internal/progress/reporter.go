package progress

import (
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Settings controls how often the Reporter emits.
type Settings struct {
	EveryBytes uint64        // emit after this many bytes since the last report
	Interval   time.Duration // or after this much time, whichever comes first
}

// Phase describes the work currently being reported.
type Phase struct {
	Name       string
	MinElapsed time.Duration // elapsed time before the median is trusted
	MinSample  time.Duration // shorter chunk timings are treated as cache hits
	PercentCap float64       // 0 means no cap below 100
	// Remaining overrides total-processed as the ETA numerator. The fill
	// phase uses it to re-query free space.
	Remaining func() (uint64, error)
}

// Reporter accumulates processed bytes for a run, feeds chunk timings to the
// SpeedTracker and emits rate-limited progress updates: at most one update
// per EveryBytes or per Interval, counted from the last update of either kind.
// processed and the emitted percentage never decrease.
type Reporter struct {
	emitter    Emitter
	tracker    *SpeedTracker
	total      uint64
	processed  uint64
	lastBytes  uint64
	everyBytes uint64
	interval   time.Duration
	gate       *rate.Limiter
	shown      float64
	phase      Phase
	start      time.Time
	now        func() time.Time
	onRate     func(float64)
}

func NewReporter(emitter Emitter, tracker *SpeedTracker, total uint64, settings Settings) *Reporter {
	if emitter == nil {
		emitter = Discard
	}
	if settings.EveryBytes == 0 {
		settings.EveryBytes = 5 * 1024 * 1024
	}
	if settings.Interval <= 0 {
		settings.Interval = 5 * time.Second
	}
	return &Reporter{
		emitter:    emitter,
		tracker:    tracker,
		total:      total,
		everyBytes: settings.EveryBytes,
		interval:   settings.Interval,
		gate:       rate.NewLimiter(rate.Every(settings.Interval), 1),
		start:      time.Now(),
		now:        time.Now,
	}
}

// SetClock replaces the time source and restarts the elapsed-time origin.
func (r *Reporter) SetClock(now func() time.Time) {
	r.now = now
	r.start = now()
}

// SetRateObserver registers a callback receiving the smoothed rate on every
// emitted update.
func (r *Reporter) SetRateObserver(fn func(bytesPerSecond float64)) {
	r.onRate = fn
}

// Begin switches to a new phase. Processed bytes carry over.
func (r *Reporter) Begin(phase Phase) {
	r.phase = phase
}

// AddTotal grows the work estimate.
func (r *Reporter) AddTotal(n uint64) {
	r.total += n
}

func (r *Reporter) Total() uint64     { return r.total }
func (r *Reporter) Processed() uint64 { return r.processed }

// Advance records n bytes whose flushed write took the given duration and
// emits an update if the byte or time threshold has been crossed.
func (r *Reporter) Advance(n uint64, write time.Duration) {
	r.processed += n
	if write > 0 && write >= r.phase.MinSample {
		r.tracker.Add(float64(n) / write.Seconds())
	}

	if r.processed-r.lastBytes >= r.everyBytes || r.gate.AllowN(r.now(), 1) {
		r.emit()
	}
}

// Flush emits the current state unconditionally.
func (r *Reporter) Flush() {
	r.emit()
}

// Snapshot computes the update that would be emitted now.
func (r *Reporter) Snapshot() Update {
	elapsed := r.now().Sub(r.start)
	smoothed, stable := r.tracker.Smoothed(r.processed, elapsed, r.phase.MinElapsed)

	eta := NotAvailable
	if stable {
		if remaining, ok := r.remaining(); ok {
			if d, ok := ETA(remaining, smoothed); ok {
				eta = FormatETA(d)
			}
		}
	}

	if r.onRate != nil {
		r.onRate(smoothed)
	}

	return Update{
		Phase:      r.phase.Name,
		Percentage: math.Max(r.percentage(), r.shown),
		Speed:      FormatRate(smoothed),
		ETA:        eta,
	}
}

// emit sends an update and restarts both thresholds.
func (r *Reporter) emit() {
	r.lastBytes = r.processed
	r.gate = rate.NewLimiter(rate.Every(r.interval), 1)
	r.gate.AllowN(r.now(), 1)

	u := r.Snapshot()
	r.shown = u.Percentage
	r.emitter.Progress(u)
}

func (r *Reporter) remaining() (uint64, bool) {
	if r.phase.Remaining != nil {
		n, err := r.phase.Remaining()
		if err != nil {
			return 0, false
		}
		return n, true
	}
	if r.processed >= r.total {
		return 0, true
	}
	return r.total - r.processed, true
}

func (r *Reporter) percentage() float64 {
	pct := 100.0
	if r.total > 0 {
		pct = math.Min(float64(r.processed)/float64(r.total)*100, 100)
	}
	if r.phase.PercentCap > 0 {
		pct = math.Min(pct, r.phase.PercentCap)
	}
	return math.Round(pct*100) / 100
}
