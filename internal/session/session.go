// Package session implements the roast session state machine.
//
// The session never reads the wall clock and starts no goroutines: callers
// pass the current time into every transition, which keeps the grace period
// and the sampling cadence testable without real delays. It is not safe for
// concurrent use; the owning service serializes access.
package session

import (
	"errors"
	"fmt"
	"time"

	"roast_monitor/internal/models"
	"roast_monitor/internal/ror"
)

// DefaultGrace is how long a drop stays undoable.
const DefaultGrace = 5 * time.Second

var (
	ErrNotRoasting       = errors.New("no roast in progress")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrUndoExpired       = errors.New("undo grace period has expired")
	ErrInvalidLabel      = errors.New("event label is required")
)

// Session is the single long-lived roast aggregate. Its contents are
// re-initialized in place by StartRoast and Reset.
type Session struct {
	status       models.Status
	device       string
	deviceActive bool
	startTime    *time.Time
	samples      []models.DataPoint
	events       []models.RoastEvent

	grace      time.Duration
	graceUntil time.Time // zero when no drop is undoable
	calc       ror.Config
}

// New returns an idle session. A non-positive grace uses DefaultGrace.
func New(grace time.Duration) *Session {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Session{
		status:  models.StatusIdle,
		grace:   grace,
		calc:    ror.Live,
		samples: []models.DataPoint{},
		events:  []models.RoastEvent{},
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() models.Status { return s.status }

// DeviceActive reports whether a transport or simulation is attached.
func (s *Session) DeviceActive() bool { return s.deviceActive }

// StartTime returns the roast start, or nil before the first start.
func (s *Session) StartTime() *time.Time {
	if s.startTime == nil {
		return nil
	}
	t := *s.startTime
	return &t
}

// Connect records an attached device and leaves idle for preheating.
func (s *Session) Connect(device string) {
	s.device = device
	s.deviceActive = true
	if s.status == models.StatusIdle {
		s.status = models.StatusPreheating
	}
}

// Disconnect forces the session to idle regardless of state. Recorded
// samples and events are kept.
func (s *Session) Disconnect() {
	s.status = models.StatusIdle
	s.device = ""
	s.deviceActive = false
	s.graceUntil = time.Time{}
}

// StartRoast clears the log, captures the start time and records the
// implicit start event. Allowed from preheating, or from roasting as a
// restart.
func (s *Session) StartRoast(now time.Time, bt float64) error {
	if s.status != models.StatusPreheating && s.status != models.StatusRoasting {
		return fmt.Errorf("start roast from %s: %w", s.status, ErrInvalidTransition)
	}
	s.clear()
	start := now
	s.startTime = &start
	s.events = append(s.events, models.RoastEvent{Time: 0, Label: models.LabelStart, Temp: bt})
	s.status = models.StatusRoasting
	return nil
}

// Elapsed returns seconds since the roast start, or 0 when not started.
func (s *Session) Elapsed(now time.Time) float64 {
	if s.startTime == nil {
		return 0
	}
	return now.Sub(*s.startTime).Seconds()
}

// Tick appends one sample while roasting. It is the only path that grows
// the sample log. A tick that would not advance time is dropped.
func (s *Session) Tick(now time.Time, bt, et float64) (models.DataPoint, bool) {
	if s.status != models.StatusRoasting || s.startTime == nil {
		return models.DataPoint{}, false
	}
	elapsed := s.Elapsed(now)
	if n := len(s.samples); elapsed < 0 || (n > 0 && elapsed <= s.samples[n-1].Time) {
		return models.DataPoint{}, false
	}
	r, er := s.calc.Next(s.samples, elapsed, bt, et)
	p := models.DataPoint{Time: elapsed, BT: bt, ET: et, RoR: r, ETRoR: er}
	s.samples = append(s.samples, p)
	return p, true
}

// ToggleEvent adds label at the current elapsed time, or removes it when
// already present. A drop is routed to StopRoast and never toggled.
// It reports whether the event was added.
func (s *Session) ToggleEvent(label string, now time.Time, bt float64) (bool, error) {
	if label == "" {
		return false, ErrInvalidLabel
	}
	if s.status != models.StatusRoasting {
		return false, ErrNotRoasting
	}
	if label == models.LabelDrop {
		_, err := s.StopRoast(now, bt)
		return err == nil, err
	}
	for i, ev := range s.events {
		if ev.Label == label {
			s.events = append(s.events[:i], s.events[i+1:]...)
			return false, nil
		}
	}
	s.events = append(s.events, models.RoastEvent{Time: s.Elapsed(now), Label: label, Temp: bt})
	return true, nil
}

// MarkEvent is ToggleEvent; marking twice removes the mark.
func (s *Session) MarkEvent(label string, now time.Time, bt float64) (bool, error) {
	return s.ToggleEvent(label, now, bt)
}

// StopRoast appends the terminal drop event, finishes the roast and opens
// the undo grace period.
func (s *Session) StopRoast(now time.Time, bt float64) (models.RoastEvent, error) {
	if s.status != models.StatusRoasting {
		return models.RoastEvent{}, ErrNotRoasting
	}
	drop := models.RoastEvent{Time: s.Elapsed(now), Label: models.LabelDrop, Temp: bt}
	s.events = append(s.events, drop)
	s.status = models.StatusFinished
	s.graceUntil = now.Add(s.grace)
	return drop, nil
}

// UndoAvailable reports whether UndoDrop would succeed at now.
func (s *Session) UndoAvailable(now time.Time) bool {
	return s.status == models.StatusFinished && !s.graceUntil.IsZero() && now.Before(s.graceUntil)
}

// UndoDeadline returns the end of the grace period, zero when none is open.
func (s *Session) UndoDeadline() time.Time { return s.graceUntil }

// UndoDrop reverts StopRoast inside the grace period. Roasting resumes with
// the original start time.
func (s *Session) UndoDrop(now time.Time) error {
	if s.status != models.StatusFinished || s.graceUntil.IsZero() {
		return fmt.Errorf("undo drop from %s: %w", s.status, ErrInvalidTransition)
	}
	if !now.Before(s.graceUntil) {
		s.graceUntil = time.Time{}
		return ErrUndoExpired
	}
	if n := len(s.events); n > 0 && s.events[n-1].Label == models.LabelDrop {
		s.events = s.events[:n-1]
	}
	s.graceUntil = time.Time{}
	s.status = models.StatusRoasting
	return nil
}

// Expire closes the grace period once now has reached its deadline. It
// reports whether the drop became final on this call.
func (s *Session) Expire(now time.Time) bool {
	if s.graceUntil.IsZero() || now.Before(s.graceUntil) {
		return false
	}
	s.graceUntil = time.Time{}
	return true
}

// Reset clears the session. It returns to preheating while a device is
// attached and to idle otherwise.
func (s *Session) Reset() error {
	if s.status == models.StatusIdle {
		return fmt.Errorf("reset from %s: %w", s.status, ErrInvalidTransition)
	}
	s.clear()
	s.startTime = nil
	if s.deviceActive {
		s.status = models.StatusPreheating
	} else {
		s.status = models.StatusIdle
	}
	return nil
}

// Load replaces the log with an imported one and marks it finished.
func (s *Session) Load(samples []models.DataPoint, events []models.RoastEvent) error {
	if s.status == models.StatusRoasting {
		return fmt.Errorf("load while roasting: %w", ErrInvalidTransition)
	}
	s.clear()
	s.startTime = nil
	s.samples = append(s.samples, samples...)
	s.events = append(s.events, events...)
	s.status = models.StatusFinished
	return nil
}

// Samples returns a copy of the sample log.
func (s *Session) Samples() []models.DataPoint {
	out := make([]models.DataPoint, len(s.samples))
	copy(out, s.samples)
	return out
}

// Events returns a copy of the event log.
func (s *Session) Events() []models.RoastEvent {
	out := make([]models.RoastEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Snapshot returns a value copy of the session for readers.
func (s *Session) Snapshot(now time.Time, live models.Reading) models.Snapshot {
	snap := models.Snapshot{
		Status:        s.status,
		Device:        s.device,
		StartedAt:     s.StartTime(),
		Live:          live,
		UndoAvailable: s.UndoAvailable(now),
		Samples:       s.Samples(),
		Events:        s.Events(),
	}
	if s.status == models.StatusRoasting {
		snap.Elapsed = s.Elapsed(now)
	} else if n := len(s.samples); n > 0 {
		snap.Elapsed = s.samples[n-1].Time
	}
	if n := len(s.samples); n > 0 {
		snap.RoR = s.samples[n-1].RoR
		snap.ETRoR = s.samples[n-1].ETRoR
	}
	if snap.UndoAvailable {
		d := s.graceUntil
		snap.UndoDeadline = &d
	}
	return snap
}

func (s *Session) clear() {
	s.samples = s.samples[:0]
	s.events = s.events[:0]
	s.graceUntil = time.Time{}
}
