package importer

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"roast_monitor/internal/models"
	"roast_monitor/internal/ror"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrMissingHeader     = errors.New("no header row with time and bean temperature columns")
	ErrMissingColumn     = errors.New("required column not found")
	ErrEmptyImport       = errors.New("file contains no samples")
	ErrMalformed         = errors.New("malformed roast file")
)

// Result is a normalized roast log ready to be loaded into a session.
type Result struct {
	Samples []models.DataPoint  `json:"data"`
	Events  []models.RoastEvent `json:"events"`
	Skipped int                 `json:"-"` // rows dropped for an unreadable bean temperature
}

// Parse dispatches on the file extension and normalizes the content.
func Parse(filename string, data []byte) (Result, error) {
	var (
		res Result
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv":
		res, err = ParseCSV(data)
	case ".json":
		res, err = ParseJSON(data)
	case ".alog":
		res, err = ParseAlog(data)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// finish sorts the series, recomputes RoR over the whole import and
// rejects empty results.
func finish(res Result) (Result, error) {
	if len(res.Samples) == 0 {
		return Result{}, ErrEmptyImport
	}
	sort.SliceStable(res.Samples, func(i, j int) bool { return res.Samples[i].Time < res.Samples[j].Time })
	sort.SliceStable(res.Events, func(i, j int) bool { return res.Events[i].Time < res.Events[j].Time })
	ror.Live.Recompute(res.Samples)
	if res.Events == nil {
		res.Events = []models.RoastEvent{}
	}
	return res, nil
}

// addEvent records a milestone unless the label is already present.
func addEvent(events []models.RoastEvent, ev models.RoastEvent) []models.RoastEvent {
	if ev.Label == "" {
		return events
	}
	for _, e := range events {
		if e.Label == ev.Label {
			return events
		}
	}
	return append(events, ev)
}

// nearestBT returns the bean temperature of the sample closest to t.
func nearestBT(samples []models.DataPoint, t float64) float64 {
	best, bestDist := 0.0, -1.0
	for _, s := range samples {
		d := s.Time - t
		if d < 0 {
			d = -d
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = s.BT, d
		}
	}
	return best
}
