package ror

import (
	"math"
	"testing"

	"roast_monitor/internal/models"
)

func linear(from, to, step, base, perSec float64) []Sample {
	var out []Sample
	for t := from; t <= to; t += step {
		out = append(out, Sample{T: t, V: base + perSec*t})
	}
	return out
}

func TestSlope_DegenerateIsZero(t *testing.T) {
	cases := []struct {
		name string
		in   []Sample
	}{
		{"empty", nil},
		{"single", []Sample{{T: 1, V: 10}}},
		{"same_time", []Sample{{T: 3, V: 10}, {T: 3, V: 20}, {T: 3, V: 30}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Slope(tc.in); got != 0 {
				t.Fatalf("got %v, want 0", got)
			}
		})
	}
}

func TestSlope_ExactLine(t *testing.T) {
	got := Slope(linear(0, 10, 1, 5, 2))
	if math.Abs(got-2) > 1e-9 {
		t.Fatalf("got %v, want 2", got)
	}
}

func TestRate_ConstantRiseConverges(t *testing.T) {
	// 30 °/min = 0.5 °/s over longer than the window.
	series := linear(0, 150, 1, 100, 0.5)
	for i := 10; i < len(series); i++ {
		got := Live.Rate(series[:i], series[i])
		if math.Abs(got-30) > 0.1 {
			t.Fatalf("t=%v: got %v, want 30±0.1", series[i].T, got)
		}
	}
}

func TestRate_FlatInputIsExactlyZero(t *testing.T) {
	var series []Sample
	for i := 0; i < 90; i++ {
		series = append(series, Sample{T: float64(i), V: 187.3})
	}
	for i := 5; i < len(series); i++ {
		if got := Live.Rate(series[:i], series[i]); got != 0 {
			t.Fatalf("t=%d: got %v, want 0", i, got)
		}
	}
}

func TestRate_ClampBounds(t *testing.T) {
	var hist []Sample
	for i := 0; i < 10; i++ {
		hist = append(hist, Sample{T: float64(i), V: 100})
	}

	up := Live.Rate(hist, Sample{T: 10, V: 600})
	if up != MaxRoR {
		t.Fatalf("spike up: got %v, want %v", up, MaxRoR)
	}
	down := Live.Rate(hist, Sample{T: 10, V: -400})
	if down != MinRoR {
		t.Fatalf("spike down: got %v, want %v", down, MinRoR)
	}
}

func TestRate_BelowThresholdsIsZero(t *testing.T) {
	t.Run("too_few_points", func(t *testing.T) {
		hist := linear(0, 2, 1, 100, 1) // 3 points + newest = 4
		if got := Live.Rate(hist, Sample{T: 10, V: 110}); got != 0 {
			t.Fatalf("got %v, want 0", got)
		}
	})
	t.Run("span_too_short", func(t *testing.T) {
		hist := linear(0, 3, 0.5, 100, 1) // 7 points over 3s
		if got := Live.Rate(hist, Sample{T: 3.5, V: 103.5}); got != 0 {
			t.Fatalf("got %v, want 0", got)
		}
	})
	t.Run("batch_accepts_three_points", func(t *testing.T) {
		hist := []Sample{{T: 0, V: 100}, {T: 3, V: 103}}
		if got := Batch.Rate(hist, Sample{T: 6, V: 106}); got != 60 {
			t.Fatalf("got %v, want 60", got)
		}
	})
}

func TestRate_OnlyUsesTrailingWindow(t *testing.T) {
	// Flat for the first two minutes, then rising at 12 °/min.
	var series []Sample
	for i := 0; i <= 300; i++ {
		v := 200.0
		if i > 120 {
			v += 0.2 * float64(i-120)
		}
		series = append(series, Sample{T: float64(i), V: v})
	}
	got := Live.Rate(series[:240], series[240])
	if math.Abs(got-12) > 0.1 {
		t.Fatalf("got %v, want 12", got)
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0.04, 0},
		{-0.09, 0},
		{0.1, 0.1},
		{12.345, 12.3},
		{-12.36, -12.4},
		{250, MaxRoR},
		{-80, MinRoR},
		{math.NaN(), 0},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNext_ComputesBothChannels(t *testing.T) {
	var hist []models.DataPoint
	for i := 0; i < 20; i++ {
		ti := float64(i)
		hist = append(hist, models.DataPoint{Time: ti, BT: 100 + 0.5*ti, ET: 250 - 0.1*ti})
	}
	r, er := Live.Next(hist, 20, 110, 248)
	if r != 30 {
		t.Fatalf("ror: got %v, want 30", r)
	}
	if er != -6 {
		t.Fatalf("etRor: got %v, want -6", er)
	}
}

func TestNext_NoETChannelYieldsZero(t *testing.T) {
	var hist []models.DataPoint
	for i := 0; i < 20; i++ {
		hist = append(hist, models.DataPoint{Time: float64(i), BT: 100 + float64(i)})
	}
	_, er := Live.Next(hist, 20, 120, 0)
	if er != 0 {
		t.Fatalf("etRor: got %v, want 0", er)
	}
}

func TestRecompute_MatchesIncremental(t *testing.T) {
	var pts []models.DataPoint
	for i := 0; i < 100; i++ {
		ti := float64(i) * 1.5
		pts = append(pts, models.DataPoint{Time: ti, BT: 90 + 0.3*ti + math.Sin(ti), ET: 220, RoR: 999})
	}
	want := make([]models.DataPoint, len(pts))
	copy(want, pts)
	for i := range want {
		want[i].RoR, want[i].ETRoR = Live.Next(want[:i], want[i].Time, want[i].BT, want[i].ET)
	}

	Live.Recompute(pts)
	for i := range pts {
		if pts[i].RoR != want[i].RoR || pts[i].ETRoR != want[i].ETRoR {
			t.Fatalf("point %d: got (%v,%v), want (%v,%v)", i, pts[i].RoR, pts[i].ETRoR, want[i].RoR, want[i].ETRoR)
		}
	}
	if pts[0].RoR != 0 {
		t.Fatalf("first point must have no RoR, got %v", pts[0].RoR)
	}
}
