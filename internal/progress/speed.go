package progress

import (
	"sort"
	"time"
)

// SpeedTracker keeps a bounded window of throughput samples (bytes per
// second). The oldest sample is evicted on overflow.
type SpeedTracker struct {
	samples    []float64
	next       int
	count      int
	minSamples int
}

// NewSpeedTracker creates a tracker holding up to capacity samples whose
// median is trusted once minSamples have been collected.
func NewSpeedTracker(capacity, minSamples int) *SpeedTracker {
	if capacity <= 0 {
		capacity = 20
	}
	if minSamples <= 0 || minSamples > capacity {
		minSamples = capacity
	}
	return &SpeedTracker{
		samples:    make([]float64, capacity),
		minSamples: minSamples,
	}
}

// Add records one sample. Non-positive rates are ignored.
func (s *SpeedTracker) Add(bytesPerSecond float64) {
	if bytesPerSecond <= 0 {
		return
	}
	s.samples[s.next] = bytesPerSecond
	s.next = (s.next + 1) % len(s.samples)
	if s.count < len(s.samples) {
		s.count++
	}
}

// Len returns the number of samples currently held.
func (s *SpeedTracker) Len() int {
	return s.count
}

// Median returns the median of the window, or 0 when it is empty. For an
// even count it is the mean of the two central values.
func (s *SpeedTracker) Median() float64 {
	if s.count == 0 {
		return 0
	}
	sorted := make([]float64, s.count)
	copy(sorted, s.samples[:s.count])
	sort.Float64s(sorted)

	mid := s.count / 2
	if s.count%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// Smoothed returns the rate used for ETA. Once enough samples exist and at
// least minElapsed has passed it is the window median and stable is true;
// otherwise it falls back to the cumulative average processed/elapsed.
func (s *SpeedTracker) Smoothed(processed uint64, elapsed, minElapsed time.Duration) (rate float64, stable bool) {
	if s.count >= s.minSamples && elapsed >= minElapsed {
		return s.Median(), true
	}
	if elapsed <= 0 {
		return 0, false
	}
	return float64(processed) / elapsed.Seconds(), false
}
