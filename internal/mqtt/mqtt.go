// Package mqtt publishes roast samples and milestones to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"roast_monitor/internal/models"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "roast/monitor"

// Publisher publishes roast telemetry. Errors are reported, never fatal.
type Publisher interface {
	// PublishSample sends one timeline sample.
	PublishSample(at time.Time, p models.DataPoint) error

	// PublishEvent sends a session transition or milestone.
	PublishEvent(event Event) error

	// Close disconnects from the broker.
	Close() error
}

// Event is a session transition or milestone.
type Event struct {
	Timestamp time.Time
	Type      string // activity type, e.g. "MILESTONE", "DROP"
	Status    models.Status
	Label     string  // milestone label, empty for pure transitions
	Time      float64 // seconds since roast start
	Temp      float64
}

// Topics derives the sample and event topics from a prefix.
func Topics(prefix string) (samples, events string) {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "/samples", prefix + "/events"
}

// SamplePayload is the JSON body published per sample.
type SamplePayload struct {
	Timestamp string  `json:"timestamp"`
	Time      float64 `json:"time"`
	BT        float64 `json:"bt"`
	ET        float64 `json:"et"`
	RoR       float64 `json:"ror"`
	ETRoR     float64 `json:"et_ror"`
}

// EventPayload is the JSON body published per event.
type EventPayload struct {
	Timestamp string  `json:"timestamp"`
	Event     string  `json:"event"`
	Status    string  `json:"status"`
	Label     string  `json:"label,omitempty"`
	Time      float64 `json:"time"`
	Temp      float64 `json:"temp,omitempty"`
}

// FormatSamplePayload creates the JSON payload for a sample.
func FormatSamplePayload(at time.Time, p models.DataPoint) ([]byte, error) {
	return json.Marshal(SamplePayload{
		Timestamp: at.UTC().Format(time.RFC3339),
		Time:      p.Time,
		BT:        p.BT,
		ET:        p.ET,
		RoR:       p.RoR,
		ETRoR:     p.ETRoR,
	})
}

// FormatEventPayload creates the JSON payload for an event.
func FormatEventPayload(e Event) ([]byte, error) {
	return json.Marshal(EventPayload{
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
		Event:     e.Type,
		Status:    string(e.Status),
		Label:     e.Label,
		Time:      e.Time,
		Temp:      e.Temp,
	})
}

// NopPublisher discards everything. Used when MQTT is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishSample(time.Time, models.DataPoint) error { return nil }
func (NopPublisher) PublishEvent(Event) error                       { return nil }
func (NopPublisher) Close() error                                   { return nil }
