// Package lineparser turns loosely structured device output into
// (bean, environment) temperature readings.
package lineparser

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"roast_monitor/internal/models"
)

// ETFallback selects what a single-channel line reports for ET.
type ETFallback string

const (
	// ETFallbackZero reports ET as 0 when the line carries only BT.
	ETFallbackZero ETFallback = "zero"
	// ETFallbackLastKnown repeats the last ET seen on this parser.
	ETFallbackLastKnown ETFallback = "last-known"
)

// beanChannel is the BT index on multi-probe boards (channels 0-1 are aux).
const (
	beanChannel = 2
	auxEpsilon  = 0.001
)

var numberRE = regexp.MustCompile(`[-+]?(?:\d+(?:\.\d+)?|\.\d+)`)

// ParseFallback maps a config string to an ETFallback, defaulting to zero.
func ParseFallback(s string) ETFallback {
	if ETFallback(strings.ToLower(strings.TrimSpace(s))) == ETFallbackLastKnown {
		return ETFallbackLastKnown
	}
	return ETFallbackZero
}

// Parser converts lines into readings. It keeps the last known ET and is not
// safe for concurrent use; each transport owns its own Parser.
type Parser struct {
	fallback ETFallback
	lastET   float64
	hasET    bool
}

// New returns a Parser using the given single-channel ET policy.
func New(fallback ETFallback) *Parser {
	return &Parser{fallback: fallback}
}

// Numbers returns every signed decimal in s, left to right.
func Numbers(s string) []float64 {
	matches := numberRE.FindAllString(s, -1)
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.ParseFloat(m, 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// ParseLine returns the reading carried by line, or false when the line is
// empty, a '#' comment, or has no numbers.
func (p *Parser) ParseLine(line string) (models.Reading, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return models.Reading{}, false
	}
	nums := Numbers(line)

	switch n := len(nums); {
	case n == 0:
		return models.Reading{}, false
	case n == 1:
		return p.single(nums[0]), true
	case n == 2:
		return p.remember(models.Reading{BT: nums[0], ET: nums[1], HasET: true}), true
	default:
		r := models.Reading{BT: nums[beanChannel]}
		for i, v := range nums {
			if i != beanChannel && math.Abs(v) > auxEpsilon {
				r.ET, r.HasET = v, true
				break
			}
		}
		return p.remember(r), true
	}
}

func (p *Parser) single(bt float64) models.Reading {
	r := models.Reading{BT: bt}
	if p.fallback == ETFallbackLastKnown && p.hasET {
		r.ET = p.lastET
	}
	return r
}

func (p *Parser) remember(r models.Reading) models.Reading {
	if r.HasET {
		p.lastET, p.hasET = r.ET, true
	}
	return r
}
