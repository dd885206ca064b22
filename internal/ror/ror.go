// Package ror computes the bean and environment rate of rise (degrees per
// minute) with a least-squares regression over a trailing time window.
package ror

import (
	"math"

	"roast_monitor/internal/models"
)

const (
	// DefaultWindow is the trailing regression window in seconds.
	DefaultWindow = 60.0

	// MaxRoR and MinRoR bound the physically plausible band in °/min.
	MaxRoR = 100.0
	MinRoR = -50.0

	flatThreshold = 0.1
)

// Config holds the window and the trust thresholds of the regression.
type Config struct {
	Window    float64 // seconds
	MinPoints int     // points required inside the window, newest included
	MinSpan   float64 // seconds between the oldest in-window point and the newest
}

var (
	// Live is used by the 1 Hz sampler and by imports.
	Live = Config{Window: DefaultWindow, MinPoints: 5, MinSpan: 5}

	// Batch is the looser variant for sparse series.
	Batch = Config{Window: DefaultWindow, MinPoints: 3, MinSpan: 5}
)

// Sample is a single (time, value) pair.
type Sample struct {
	T float64
	V float64
}

// Slope returns the ordinary least-squares slope of v over t.
// It is 0 when fewer than two distinct time values are present.
func Slope(samples []Sample) float64 {
	n := float64(len(samples))
	if n < 2 {
		return 0
	}
	var sx, sy, sxy, sxx float64
	for _, s := range samples {
		sx += s.T
		sy += s.V
		sxy += s.T * s.V
		sxx += s.T * s.T
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0
	}
	return (n*sxy - sx*sy) / den
}

// Rate returns the normalized rate of rise for newest given the preceding
// history, which must be ordered by time.
func (c Config) Rate(history []Sample, newest Sample) float64 {
	cutoff := newest.T - c.Window
	start := len(history)
	for start > 0 && history[start-1].T >= cutoff {
		start--
	}

	window := make([]Sample, 0, len(history)-start+1)
	window = append(window, history[start:]...)
	window = append(window, newest)

	if len(window) < c.MinPoints {
		return 0
	}
	if newest.T-window[0].T < c.MinSpan {
		return 0
	}
	return Normalize(Slope(window) * 60)
}

// Next computes (ror, etRor) for a new reading at time t against the
// already recorded points.
func (c Config) Next(history []models.DataPoint, t, bt, et float64) (float64, float64) {
	bts := make([]Sample, len(history))
	ets := make([]Sample, len(history))
	for i, p := range history {
		bts[i] = Sample{T: p.Time, V: p.BT}
		ets[i] = Sample{T: p.Time, V: p.ET}
	}
	return c.Rate(bts, Sample{T: t, V: bt}), c.Rate(ets, Sample{T: t, V: et})
}

// Recompute rewrites RoR and ET RoR of every point from its own trailing
// window. points must be ordered by time.
func (c Config) Recompute(points []models.DataPoint) {
	for i := range points {
		points[i].RoR, points[i].ETRoR = c.Next(points[:i], points[i].Time, points[i].BT, points[i].ET)
	}
}

// Normalize clamps v into [MinRoR, MaxRoR], snaps near-zero values to 0 and
// rounds to one decimal place.
func Normalize(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v > MaxRoR {
		v = MaxRoR
	}
	if v < MinRoR {
		v = MinRoR
	}
	if math.Abs(v) < flatThreshold {
		return 0
	}
	return Round1(v)
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
