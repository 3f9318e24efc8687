package creation

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	// statsWindow bounds how far back samples are retained.
	statsWindow = 10 * time.Second
	// statsMinSpan is the minimum elapsed time before a speed is reported,
	// to avoid divide-by-near-zero noise from back-to-back samples.
	statsMinSpan = 300 * time.Millisecond
	// maxReportableETA suppresses long, unstable estimates.
	maxReportableETA = time.Hour
)

type sample struct {
	bytes int64
	at    time.Time
}

// StatsTracker derives throughput and ETA from byte-progress samples over a
// rolling window. It is owned by a single caller (the presentation layer);
// there is no internal locking.
type StatsTracker struct {
	samples []sample
}

func NewStatsTracker() *StatsTracker {
	return &StatsTracker{}
}

// Record appends a sample and drops everything older than the retention
// window relative to the newest timestamp.
func (t *StatsTracker) Record(bytesCopied int64, at time.Time) {
	t.samples = append(t.samples, sample{bytes: bytesCopied, at: at})

	cutoff := at.Add(-statsWindow)
	firstKept := 0
	for firstKept < len(t.samples) && t.samples[firstKept].at.Before(cutoff) {
		firstKept++
	}
	t.samples = t.samples[firstKept:]
}

// Speed returns bytes per second across the retained window. The second
// return is false until at least two samples span more than statsMinSpan
// with a positive byte delta.
func (t *StatsTracker) Speed() (float64, bool) {
	if len(t.samples) < 2 {
		return 0, false
	}
	oldest := t.samples[0]
	newest := t.samples[len(t.samples)-1]

	span := newest.at.Sub(oldest.at)
	delta := newest.bytes - oldest.bytes
	if span <= statsMinSpan || delta <= 0 {
		return 0, false
	}
	return float64(delta) / span.Seconds(), true
}

// ETA estimates the remaining time toward totalBytes. Estimates that are
// non-positive, non-finite, or longer than an hour are unavailable.
func (t *StatsTracker) ETA(totalBytes int64) (time.Duration, bool) {
	speed, ok := t.Speed()
	if !ok {
		return 0, false
	}

	remaining := float64(totalBytes - t.samples[len(t.samples)-1].bytes)
	secs := remaining / speed
	if secs <= 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, false
	}
	if secs > maxReportableETA.Seconds() {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

// Reset clears the sample history at the start of a run.
func (t *StatsTracker) Reset() {
	t.samples = nil
}

// FormatSpeed renders a throughput value for display.
func FormatSpeed(bytesPerSecond float64) string {
	return humanize.Bytes(uint64(bytesPerSecond)) + "/s"
}

// FormatETA renders a remaining-time estimate in the coarse wording shown to
// the user.
func FormatETA(eta time.Duration) string {
	if eta < time.Minute {
		return "Less than a minute"
	}
	minutes := int(math.Ceil(eta.Minutes()))
	if minutes == 1 {
		return "About 1 minute"
	}
	return fmt.Sprintf("About %d minutes", minutes)
}
