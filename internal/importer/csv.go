package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"roast_monitor/internal/models"
)

const headerScanLines = 20

type columns struct {
	time, bt, et, event int
}

// ParseCSV reads a delimited roast log with a header row.
func ParseCSV(data []byte) (Result, error) {
	text := strings.TrimPrefix(string(data), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(strings.ReplaceAll(text, "\r", "\n"), "\n")

	header := -1
	for i := 0; i < len(lines) && i < headerScanLines; i++ {
		if isHeader(lines[i]) {
			header = i
			break
		}
	}
	if header < 0 {
		return Result{}, ErrMissingHeader
	}

	r := csv.NewReader(strings.NewReader(strings.Join(lines[header:], "\n")))
	r.Comma = sniffDelimiter(lines[header])
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	head, err := r.Read()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	cols := resolveColumns(head)
	if cols.time < 0 {
		return Result{}, fmt.Errorf("%w: time", ErrMissingColumn)
	}
	if cols.bt < 0 {
		return Result{}, fmt.Errorf("%w: bean temperature", ErrMissingColumn)
	}

	var res Result
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.Skipped++
			continue
		}
		bt, ok := parseFloat(field(rec, cols.bt))
		if !ok {
			res.Skipped++
			continue
		}
		t, _ := ParseTime(field(rec, cols.time))
		et, _ := parseFloat(field(rec, cols.et))
		res.Samples = append(res.Samples, models.DataPoint{Time: t, BT: bt, ET: et})

		if label := strings.TrimSpace(field(rec, cols.event)); label != "" {
			res.Events = addEvent(res.Events, models.RoastEvent{Time: t, Label: models.LabelFor(label), Temp: bt})
		}
	}
	for _, ev := range preambleEvents(lines[:header]) {
		ev.Temp = nearestBT(res.Samples, ev.Time)
		res.Events = addEvent(res.Events, ev)
	}
	return finish(res)
}

// preambleEvents reads TAG:mm:ss milestone pairs from the lines above the
// column header. They fill in milestones the Event column lacks.
func preambleEvents(lines []string) []models.RoastEvent {
	var out []models.RoastEvent
	for _, line := range lines {
		for _, f := range strings.FieldsFunc(line, func(r rune) bool { return r == '\t' || r == ';' || r == ',' }) {
			name, clock, ok := strings.Cut(strings.TrimSpace(f), ":")
			if !ok {
				continue
			}
			label := models.LabelFor(name)
			if _, tagged := models.TagFor(label); !tagged {
				continue
			}
			t, ok := ParseTime(clock)
			if !ok {
				continue
			}
			out = append(out, models.RoastEvent{Time: t, Label: label})
		}
	}
	return out
}

func isHeader(line string) bool {
	l := strings.ToLower(line)
	if !strings.Contains(l, "time") {
		return false
	}
	return strings.Contains(l, "bt") || strings.Contains(l, "bean") || strings.Contains(l, "temp")
}

// sniffDelimiter picks the most frequent of tab, semicolon and comma in
// the header line. Tab wins ties; comma is the default.
func sniffDelimiter(line string) rune {
	tabs := strings.Count(line, "\t")
	semis := strings.Count(line, ";")
	commas := strings.Count(line, ",")
	switch {
	case tabs > 0 && tabs >= commas && tabs >= semis:
		return '\t'
	case semis > commas:
		return ';'
	default:
		return ','
	}
}

func resolveColumns(head []string) columns {
	cols := columns{time: -1, bt: -1, et: -1, event: -1}
	for i, h := range head {
		name := strings.ToLower(strings.TrimSpace(h))
		switch {
		case cols.time < 0 && strings.HasPrefix(name, "time"):
			cols.time = i
		case cols.bt < 0 && (name == "bt" || strings.Contains(name, "bean") || name == "temp2"):
			cols.bt = i
		case cols.et < 0 && (name == "et" || strings.Contains(name, "env") || name == "temp1"):
			cols.et = i
		case cols.event < 0 && (strings.Contains(name, "event") || strings.Contains(name, "事件")):
			cols.event = i
		}
	}
	return cols
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseTime accepts seconds as a float, mm:ss or h:mm:ss.
func ParseTime(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ":") {
		return parseFloat(s)
	}
	total := 0.0
	for _, part := range strings.Split(s, ":") {
		v, ok := parseFloat(part)
		if !ok {
			return 0, false
		}
		total = total*60 + v
	}
	return total, true
}
