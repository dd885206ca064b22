package ror

import (
	"math"

	"roast_monitor/internal/models"
)

// Anomaly kinds reported by Analyze.
const (
	AnomalyFlick = "flick"
	AnomalyCrash = "crash"
)

const (
	turningPointSearch = 180.0 // seconds after charge
	anomalySpan        = 30.0  // seconds
	flickMinRise       = 2.0   // °/min
	crashMinDrop       = 5.0   // °/min
)

// Phase is the span between two milestones.
type Phase struct {
	Name     string  `json:"name"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
}

// Anomaly is a notable RoR feature late in the roast.
type Anomaly struct {
	Kind  string  `json:"kind"`
	Time  float64 `json:"time"`
	RoR   float64 `json:"ror"`
	Delta float64 `json:"delta"`
}

// Analysis describes the shape of a recorded curve. It is descriptive only.
type Analysis struct {
	Duration         float64            `json:"duration"`
	TurningPoint     *models.RoastEvent `json:"turning_point,omitempty"`
	Phases           []Phase            `json:"phases"`
	DevelopmentRatio float64            `json:"development_ratio"` // percent
	Anomalies        []Anomaly          `json:"anomalies"`
}

// Analyze derives the turning point, phase durations, development time
// ratio and RoR flicks/crashes after first crack.
func Analyze(points []models.DataPoint, events []models.RoastEvent) Analysis {
	a := Analysis{Phases: []Phase{}, Anomalies: []Anomaly{}}
	if len(points) > 0 {
		a.Duration = points[len(points)-1].Time
	}

	at := make(map[string]float64, len(events))
	for _, ev := range events {
		if _, dup := at[ev.Label]; !dup {
			at[ev.Label] = ev.Time
		}
	}
	charge, hasCharge := at[models.LabelCharge]
	if !hasCharge {
		charge, hasCharge = at[models.LabelStart]
	}

	if hasCharge {
		a.TurningPoint = turningPoint(points, charge)
	}

	addPhase := func(name, from, to string, start float64, hasStart bool) {
		end, ok := at[to]
		if from != "" {
			start, hasStart = at[from]
		}
		if !hasStart || !ok || end < start {
			return
		}
		a.Phases = append(a.Phases, Phase{Name: name, Start: start, End: end, Duration: end - start})
	}
	addPhase("drying", "", models.LabelDryEnd, charge, hasCharge)
	addPhase("maillard", models.LabelDryEnd, models.LabelFCStart, 0, false)
	addPhase("development", models.LabelFCStart, models.LabelDrop, 0, false)

	fc, hasFC := at[models.LabelFCStart]
	drop, hasDrop := at[models.LabelDrop]
	if hasCharge && hasFC && hasDrop && drop > charge && drop >= fc {
		a.DevelopmentRatio = Round1((drop - fc) / (drop - charge) * 100)
	}
	if hasFC {
		a.Anomalies = anomalies(points, fc)
	}
	return a
}

func turningPoint(points []models.DataPoint, charge float64) *models.RoastEvent {
	minIdx, first, last := -1, -1, -1
	for i, p := range points {
		if p.Time < charge || p.Time > charge+turningPointSearch {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
		if minIdx < 0 || p.BT < points[minIdx].BT {
			minIdx = i
		}
	}
	// A minimum at either edge means there is no dip followed by a climb.
	if minIdx < 0 || minIdx == first || minIdx == last {
		return nil
	}
	p := points[minIdx]
	return &models.RoastEvent{Time: p.Time, Label: models.LabelTurningPoint, Temp: p.BT}
}

func anomalies(points []models.DataPoint, from float64) []Anomaly {
	out := []Anomaly{}
	lastFlick, lastCrash := math.Inf(-1), math.Inf(-1)
	for i := 1; i < len(points)-1; i++ {
		p := points[i]
		if p.Time < from {
			continue
		}

		if p.RoR > points[i-1].RoR && p.RoR >= points[i+1].RoR && p.Time-lastFlick > anomalySpan {
			left := minRoR(points, p.Time-anomalySpan, p.Time, i)
			right := minRoR(points, p.Time, p.Time+anomalySpan, i)
			if p.RoR-left >= flickMinRise && p.RoR-right >= flickMinRise {
				out = append(out, Anomaly{Kind: AnomalyFlick, Time: p.Time, RoR: p.RoR, Delta: Round1(p.RoR - left)})
				lastFlick = p.Time
			}
		}

		if p.Time-lastCrash > anomalySpan {
			peak := maxRoR(points, p.Time-anomalySpan, p.Time)
			if peak-p.RoR >= crashMinDrop {
				out = append(out, Anomaly{Kind: AnomalyCrash, Time: p.Time, RoR: p.RoR, Delta: Round1(peak - p.RoR)})
				lastCrash = p.Time
			}
		}
	}
	return out
}

// minRoR returns the lowest RoR in [from, to], ignoring index skip.
func minRoR(points []models.DataPoint, from, to float64, skip int) float64 {
	m := math.Inf(1)
	for i, p := range points {
		if i == skip || p.Time < from || p.Time > to {
			continue
		}
		m = math.Min(m, p.RoR)
	}
	if math.IsInf(m, 1) {
		return points[skip].RoR
	}
	return m
}

func maxRoR(points []models.DataPoint, from, to float64) float64 {
	m := math.Inf(-1)
	for _, p := range points {
		if p.Time < from || p.Time > to {
			continue
		}
		m = math.Max(m, p.RoR)
	}
	return m
}
