package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"roast_monitor/internal/models"
)

var (
	ErrNoData        = errors.New("no roast data to export")
	ErrUnknownFormat = errors.New("unknown export format")
)

// eventTolerance is how close (seconds) an event must be to a row to be
// tagged on it.
const eventTolerance = 0.5

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatJSON = "json"
)

// Roast is the data exported for one session.
type Roast struct {
	Date    time.Time
	Samples []models.DataPoint
	Events  []models.RoastEvent
}

// File is an encoded export ready to be served or written.
type File struct {
	Data        []byte
	ContentType string
	Extension   string
}

// Encode renders r in the requested format.
func Encode(format string, r Roast) (File, error) {
	switch strings.ToLower(format) {
	case FormatCSV, "":
		data, err := CSV(r)
		return File{Data: data, ContentType: "text/csv; charset=utf-8", Extension: ".csv"}, err
	case FormatXLSX:
		data, err := XLSX(r)
		return File{Data: data, ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Extension: ".xlsx"}, err
	case FormatJSON:
		data, err := JSON(r)
		return File{Data: data, ContentType: "application/json", Extension: ".json"}, err
	default:
		return File{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// FormatForExtension maps a file extension to an export format.
func FormatForExtension(ext string) (string, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
}

// CSV writes the tab-separated roast log: a Date/Unit/milestone header
// line, a column header line, then one row per sample.
func CSV(r Roast) ([]byte, error) {
	if len(r.Samples) == 0 {
		return nil, ErrNoData
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = '\t'

	head := []string{"Date:" + r.Date.Format("02.01.2006"), "Unit:C"}
	for _, ev := range r.Events {
		if tag, ok := models.TagFor(ev.Label); ok {
			head = append(head, tag+":"+Clock(ev.Time))
		}
	}
	head = append(head, "Time:"+Clock(r.Samples[len(r.Samples)-1].Time))
	_ = w.Write(head)
	_ = w.Write([]string{"Time1", "Time2", "ET", "BT", "Event"})

	charge, hasCharge := findEvent(r.Events, models.LabelCharge)
	tags := rowTags(r.Samples, r.Events)
	for i, p := range r.Samples {
		since := ""
		if hasCharge && p.Time >= charge.Time {
			since = Clock(p.Time - charge.Time)
		}
		_ = w.Write([]string{
			Clock(p.Time),
			since,
			fmt.Sprintf("%.2f", p.ET),
			fmt.Sprintf("%.2f", p.BT),
			tags[i],
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// rowTags assigns each tagged event to the first row within tolerance.
func rowTags(samples []models.DataPoint, events []models.RoastEvent) []string {
	tags := make([]string, len(samples))
	for _, ev := range events {
		tag, ok := models.TagFor(ev.Label)
		if !ok {
			continue
		}
		for i, p := range samples {
			if tags[i] == "" && math.Abs(p.Time-ev.Time) <= eventTolerance {
				tags[i] = tag
				break
			}
		}
	}
	return tags
}

// XLSX builds a workbook with a "roast" sheet of samples and an "events"
// sheet of milestones.
func XLSX(r Roast) ([]byte, error) {
	if len(r.Samples) == 0 {
		return nil, ErrNoData
	}
	f := excelize.NewFile()
	defer f.Close()
	roastSheet := "roast"
	eventsSheet := "events"
	if err := f.SetSheetName("Sheet1", roastSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(eventsSheet); err != nil {
		return nil, err
	}

	_ = f.SetSheetRow(roastSheet, "A1", &[]any{"Time1", "Time2", "ET", "BT", "Event", "RoR", "ET RoR"})
	charge, hasCharge := findEvent(r.Events, models.LabelCharge)
	tags := rowTags(r.Samples, r.Events)
	for i, p := range r.Samples {
		since := ""
		if hasCharge && p.Time >= charge.Time {
			since = Clock(p.Time - charge.Time)
		}
		row := []any{Clock(p.Time), since, round2(p.ET), round2(p.BT), tags[i], p.RoR, p.ETRoR}
		_ = f.SetSheetRow(roastSheet, fmt.Sprintf("A%d", i+2), &row)
	}

	_ = f.SetSheetRow(eventsSheet, "A1", &[]any{"Label", "Tag", "Time", "Temp"})
	for i, ev := range r.Events {
		tag, _ := models.TagFor(ev.Label)
		row := []any{ev.Label, tag, Clock(ev.Time), round2(ev.Temp)}
		_ = f.SetSheetRow(eventsSheet, fmt.Sprintf("A%d", i+2), &row)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type legacyDoc struct {
	Data   []models.DataPoint  `json:"data"`
	Events []models.RoastEvent `json:"events"`
}

// JSON writes the {data, events} self-export shape.
func JSON(r Roast) ([]byte, error) {
	if len(r.Samples) == 0 {
		return nil, ErrNoData
	}
	events := r.Events
	if events == nil {
		events = []models.RoastEvent{}
	}
	return json.MarshalIndent(legacyDoc{Data: r.Samples, Events: events}, "", "  ")
}

// Clock formats seconds as mm:ss. Minutes are not wrapped into hours.
func Clock(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	total := int(math.Round(sec))
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func findEvent(events []models.RoastEvent, label string) (models.RoastEvent, bool) {
	for _, ev := range events {
		if ev.Label == label {
			return ev, true
		}
	}
	return models.RoastEvent{}, false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
