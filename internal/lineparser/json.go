package lineparser

import (
	"encoding/json"
	"strconv"
	"strings"

	"roast_monitor/internal/models"
)

// Field aliases, tried in order.
var (
	btFields = []string{"temp2", "Bean", "bt"}
	etFields = []string{"temp1", "Environment", "et"}
)

// ParseJSON reads a WebSocket JSON message such as
// {"temp1": 210.4, "temp2": 180.1}. Malformed payloads and payloads without
// a bean temperature yield no reading.
func (p *Parser) ParseJSON(payload []byte) (models.Reading, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return models.Reading{}, false
	}

	bt, ok := lookup(fields, btFields)
	if !ok {
		return models.Reading{}, false
	}
	if et, ok := lookup(fields, etFields); ok {
		return p.remember(models.Reading{BT: bt, ET: et, HasET: true}), true
	}
	return p.single(bt), true
}

func lookup(fields map[string]json.RawMessage, names []string) (float64, bool) {
	for _, name := range names {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		if v, ok := number(raw); ok {
			return v, true
		}
	}
	return 0, false
}

// number accepts a JSON number or a numeric string.
func number(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
