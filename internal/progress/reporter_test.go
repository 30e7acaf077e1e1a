package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestReporter(total uint64) (*Reporter, *Recorder, *fakeClock) {
	rec := &Recorder{}
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	r := NewReporter(rec, NewSpeedTracker(20, 5), total, Settings{EveryBytes: 5 * mb, Interval: time.Hour})
	r.SetClock(clock.now)
	r.Begin(Phase{Name: "Overwrite (Pass 1/1)", MinElapsed: 3 * time.Second, MinSample: time.Millisecond})
	return r, rec, clock
}

func TestReporterRateLimitsByBytes(t *testing.T) {
	r, rec, clock := newTestReporter(100 * mb)

	for i := 0; i < 20; i++ {
		clock.advance(100 * time.Millisecond)
		r.Advance(mb, 100*time.Millisecond)
	}

	// First chunk always reports, then once per 5 MiB.
	updates := rec.Updates()
	require.Len(t, updates, 4)
	assert.Equal(t, 1.0, updates[0].Percentage)
	assert.Equal(t, 6.0, updates[1].Percentage)
	assert.Equal(t, 11.0, updates[2].Percentage)
	assert.Equal(t, 16.0, updates[3].Percentage)
	assert.EqualValues(t, 20*mb, r.Processed())
}

func TestReporterETA(t *testing.T) {
	r, _, clock := newTestReporter(100 * mb)

	// Four samples: median not yet trusted.
	for i := 0; i < 4; i++ {
		clock.advance(time.Second)
		r.Advance(10*mb, time.Second)
	}
	assert.Equal(t, NotAvailable, r.Snapshot().ETA)

	clock.advance(time.Second)
	r.Advance(10*mb, time.Second)
	snap := r.Snapshot()
	assert.Equal(t, "00:00:05", snap.ETA)
	assert.Equal(t, "10.00 MB/s", snap.Speed)
	assert.Equal(t, 50.0, snap.Percentage)
}

func TestReporterIgnoresCachedChunks(t *testing.T) {
	r, _, clock := newTestReporter(100 * mb)
	for i := 0; i < 10; i++ {
		clock.advance(time.Second)
		r.Advance(mb, 500*time.Microsecond)
	}
	assert.Equal(t, 0, r.tracker.Len())
	assert.Equal(t, NotAvailable, r.Snapshot().ETA)
}

func TestReporterRemainingOverride(t *testing.T) {
	r, _, clock := newTestReporter(10 * mb)
	free := uint64(40 * mb)
	r.Begin(Phase{
		Name:       "Fill Free Space",
		MinElapsed: time.Second,
		PercentCap: 99.9,
		Remaining:  func() (uint64, error) { return free, nil },
	})

	for i := 0; i < 5; i++ {
		clock.advance(time.Second)
		r.Advance(20*mb, 2*time.Second)
	}

	snap := r.Snapshot()
	assert.Equal(t, 99.9, snap.Percentage)
	assert.Equal(t, "00:00:04", snap.ETA)
}

func TestReporterProcessedNeverDecreases(t *testing.T) {
	r, _, _ := newTestReporter(10 * mb)
	prev := r.Processed()
	for _, n := range []uint64{mb, 0, 3 * mb, 1} {
		r.Advance(n, time.Millisecond)
		assert.GreaterOrEqual(t, r.Processed(), prev)
		prev = r.Processed()
	}
}

func TestReporterRateObserver(t *testing.T) {
	r, _, _ := newTestReporter(10 * mb)
	var observed []float64
	r.SetRateObserver(func(v float64) { observed = append(observed, v) })
	r.Flush()
	assert.Len(t, observed, 1)
}

func TestZeroTotalReportsComplete(t *testing.T) {
	r, _, _ := newTestReporter(0)
	assert.Equal(t, 100.0, r.Snapshot().Percentage)
}

func TestReporterByteUpdateRestartsInterval(t *testing.T) {
	rec := &Recorder{}
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	r := NewReporter(rec, NewSpeedTracker(20, 5), 100*mb, Settings{EveryBytes: 5 * mb, Interval: 5 * time.Second})
	r.SetClock(clock.now)

	r.Advance(1, time.Millisecond) // first update
	clock.advance(4 * time.Second)
	r.Advance(5*mb, time.Second) // byte threshold
	require.Len(t, rec.Updates(), 2)

	// 5s after the first update but only 1s after the last one
	clock.advance(time.Second)
	r.Advance(1, time.Millisecond)
	assert.Len(t, rec.Updates(), 2)

	clock.advance(5 * time.Second)
	r.Advance(1, time.Millisecond)
	assert.Len(t, rec.Updates(), 3)
}

func TestReporterPercentageHoldsWhenTotalGrows(t *testing.T) {
	r, rec, _ := newTestReporter(10 * mb)
	r.Advance(8*mb, time.Second)
	r.Flush()
	r.AddTotal(10 * mb)
	r.Advance(mb, time.Second)
	r.Flush()

	updates := rec.Updates()
	last := updates[len(updates)-1]
	assert.Equal(t, 80.0, last.Percentage)

	r.Advance(8*mb, time.Second)
	r.Flush()
	updates = rec.Updates()
	assert.Equal(t, 85.0, updates[len(updates)-1].Percentage)
}
