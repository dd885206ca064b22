package models

import "time"

// Activity types recorded in the operational log.
const (
	ActivityConnect    = "CONNECT"
	ActivityDisconnect = "DISCONNECT"
	ActivityStart      = "START"
	ActivityMilestone  = "MILESTONE"
	ActivityDrop       = "DROP"
	ActivityUndo       = "UNDO"
	ActivityFinalize   = "FINALIZE"
	ActivityReset      = "RESET"
	ActivityImport     = "IMPORT"
	ActivityExport     = "EXPORT"
	ActivityError      = "ERROR"
)

// ActivityEvent is a single operational log entry.
type ActivityEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // see Activity* constants
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
