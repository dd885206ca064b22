package importer

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"roast_monitor/internal/models"
)

const defaultSamplingInterval = 3.0

type computedKey struct {
	key    string
	label  string
	isTemp bool
}

// computedKeys maps milestone keys of the external logger's "computed"
// object to canonical labels.
var computedKeys = []computedKey{
	{key: "CHARGE_BT", label: models.LabelCharge, isTemp: true},
	{key: "TP_time", label: models.LabelTurningPoint},
	{key: "DRY_time", label: models.LabelDryEnd},
	{key: "FCs_time", label: models.LabelFCStart},
	{key: "FCe_time", label: models.LabelFCEnd},
	{key: "SCs_time", label: models.LabelSCStart},
	{key: "SCe_time", label: models.LabelSCEnd},
	{key: "DROP_time", label: models.LabelDrop},
}

// ParseJSON reads either the legacy self-export shape {data, events} or
// the parallel-array shape written by external roast loggers.
func ParseJSON(data []byte) (Result, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, ok := doc["data"]; ok {
		return parseLegacy(data)
	}
	return parseArrays(doc)
}

// ParseAlog reads an .alog file. These are usually JSON but older loggers
// write Python literals, which are rewritten to JSON before parsing.
func ParseAlog(data []byte) (Result, error) {
	if json.Valid(data) {
		return ParseJSON(data)
	}
	return ParseJSON([]byte(pythonToJSON(string(data))))
}

func parseLegacy(data []byte) (Result, error) {
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	events := make([]models.RoastEvent, 0, len(res.Events))
	for _, ev := range res.Events {
		ev.Label = models.LabelFor(ev.Label)
		events = addEvent(events, ev)
	}
	res.Events = events
	return finish(res)
}

func parseArrays(doc map[string]json.RawMessage) (Result, error) {
	temps := map[string]json.RawMessage{}
	if raw, ok := doc["temps"]; ok {
		_ = json.Unmarshal(raw, &temps)
	}

	bean := firstSeries(temps, "Bean", "bean")
	if bean == nil {
		bean = firstSeries(doc, "temp2", "Bean")
	}
	if bean == nil {
		return Result{}, fmt.Errorf("%w: bean temperature", ErrMissingColumn)
	}
	env := firstSeries(temps, "Environment", "environment")
	if env == nil {
		env = firstSeries(doc, "temp1", "Environment")
	}
	times := firstSeries(doc, "timex", "time")
	if times == nil {
		times = firstSeries(temps, "x")
	}
	interval := defaultSamplingInterval
	if v, ok := toFloat(doc["samplinginterval"]); ok && v > 0 {
		interval = v
	}

	var res Result
	for i, bt := range bean {
		if bt == nil {
			continue
		}
		t := float64(i) * interval
		if i < len(times) && times[i] != nil {
			t = *times[i]
		}
		et := 0.0
		if i < len(env) && env[i] != nil {
			et = *env[i]
		}
		res.Samples = append(res.Samples, models.DataPoint{Time: t, BT: *bt, ET: et})
	}
	if len(res.Samples) == 0 {
		return Result{}, ErrEmptyImport
	}

	computed := map[string]json.RawMessage{}
	if raw, ok := doc["computed"]; ok {
		_ = json.Unmarshal(raw, &computed)
	}
	first := res.Samples[0].Time
	for _, s := range res.Samples {
		first = math.Min(first, s.Time)
	}
	for _, ck := range computedKeys {
		v, ok := toFloat(computed[ck.key])
		if !ok || v <= 0 {
			continue
		}
		ev := models.RoastEvent{Label: ck.label}
		if ck.isTemp {
			ev.Time, ev.Temp = first, v
		} else {
			ev.Time, ev.Temp = v, nearestBT(res.Samples, v)
		}
		res.Events = addEvent(res.Events, ev)
	}
	return finish(res)
}

// firstSeries decodes the first present key as a numeric array. Entries
// that are not finite numbers come back nil.
func firstSeries(m map[string]json.RawMessage, keys ...string) []*float64 {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			continue
		}
		out := make([]*float64, len(items))
		for i, item := range items {
			if v, ok := toFloat(item); ok {
				out[i] = &v
			}
		}
		return out
	}
	return nil
}

func toFloat(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// pythonToJSON rewrites a Python dict literal into JSON: single-quoted
// strings become double-quoted and True/False/None become JSON literals.
func pythonToJSON(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	var quote rune
	escaped := false
	runes := []rune(src)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
				if c == '\'' {
					b.WriteRune(c)
					continue
				}
				b.WriteRune('\\')
				b.WriteRune(c)
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
				b.WriteRune('"')
			case c == '"':
				b.WriteString(`\"`)
			default:
				b.WriteRune(c)
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
			b.WriteRune('"')
			continue
		}
		if word, lit, ok := pythonLiteral(runes[i:]); ok {
			b.WriteString(lit)
			i += len([]rune(word)) - 1
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func pythonLiteral(rest []rune) (string, string, bool) {
	for word, lit := range map[string]string{"True": "true", "False": "false", "None": "null", "nan": "null", "NaN": "null"} {
		w := []rune(word)
		if len(rest) < len(w) || string(rest[:len(w)]) != word {
			continue
		}
		if len(rest) > len(w) && isIdentRune(rest[len(w)]) {
			continue
		}
		return word, lit, true
	}
	return "", "", false
}

func isIdentRune(r rune) bool {
	return r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}
