package models

import "time"

// Status is the roast session lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusPreheating Status = "preheating"
	StatusRoasting   Status = "roasting"
	StatusFinished   Status = "finished"
)

// Milestone labels. The set is closed for export purposes; other labels are
// accepted by the session but carry no canonical tag.
const (
	LabelStart        = "start"
	LabelCharge       = "charge"
	LabelTurningPoint = "turning-point"
	LabelDryEnd       = "dry-end"
	LabelFCStart      = "fc-start"
	LabelFCEnd        = "fc-end"
	LabelSCStart      = "sc-start"
	LabelSCEnd        = "sc-end"
	LabelDrop         = "drop"
)

// DataPoint is one sample of the roast timeline.
type DataPoint struct {
	Time  float64 `json:"time"`            // seconds since roast start
	BT    float64 `json:"bt"`              // bean temperature
	ET    float64 `json:"et"`              // environment temperature, 0 = no channel
	RoR   float64 `json:"ror"`             // °/min, derived
	ETRoR float64 `json:"etRor,omitempty"` // °/min, derived
}

// RoastEvent is an operator-marked milestone.
type RoastEvent struct {
	Time  float64 `json:"time"`
	Label string  `json:"label"`
	Temp  float64 `json:"temp"`
}

// Reading is the latest instantaneous value pushed by a transport.
type Reading struct {
	BT    float64   `json:"bt"`
	ET    float64   `json:"et"`
	HasET bool      `json:"has_et"`
	At    time.Time `json:"at"`
}

// Snapshot is a point-in-time copy of the session served to clients.
type Snapshot struct {
	Status        Status       `json:"status"`
	Device        string       `json:"device,omitempty"`
	StartedAt     *time.Time   `json:"started_at,omitempty"`
	Elapsed       float64      `json:"elapsed"`
	Live          Reading      `json:"live"`
	RoR           float64      `json:"ror"`
	ETRoR         float64      `json:"et_ror"`
	UndoAvailable bool         `json:"undo_available"`
	UndoDeadline  *time.Time   `json:"undo_deadline,omitempty"`
	Samples       []DataPoint  `json:"samples"`
	Events        []RoastEvent `json:"events"`
}
