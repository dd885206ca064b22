package session

import (
	"errors"
	"math"
	"testing"
	"time"

	"roast_monitor/internal/models"
	"roast_monitor/internal/ror"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return t0.Add(time.Duration(sec * float64(time.Second)))
}

func roasting(t *testing.T) *Session {
	t.Helper()
	s := New(0)
	s.Connect("sim")
	if err := s.StartRoast(at(0), 20); err != nil {
		t.Fatalf("StartRoast: %v", err)
	}
	return s
}

func countLabel(events []models.RoastEvent, label string) int {
	n := 0
	for _, ev := range events {
		if ev.Label == label {
			n++
		}
	}
	return n
}

func TestNew_IsIdleAndEmpty(t *testing.T) {
	s := New(0)
	if s.Status() != models.StatusIdle {
		t.Fatalf("got %s, want idle", s.Status())
	}
	if s.StartTime() != nil || len(s.Samples()) != 0 || len(s.Events()) != 0 {
		t.Fatalf("new session must be empty")
	}
	if s.grace != DefaultGrace {
		t.Fatalf("grace: got %v", s.grace)
	}
}

func TestConnect_IdleToPreheating(t *testing.T) {
	s := New(0)
	s.Connect("Serial /dev/ttyUSB0")
	if s.Status() != models.StatusPreheating || !s.DeviceActive() {
		t.Fatalf("got %s active=%v", s.Status(), s.DeviceActive())
	}
}

func TestStartRoast_Guards(t *testing.T) {
	s := New(0)
	if err := s.StartRoast(at(0), 20); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("idle: got %v, want ErrInvalidTransition", err)
	}
	s.Connect("sim")
	if err := s.StartRoast(at(0), 20); err != nil {
		t.Fatalf("preheating: %v", err)
	}
	if err := s.StartRoast(at(30), 25); err != nil {
		t.Fatalf("restart while roasting: %v", err)
	}
	if got := s.StartTime(); got == nil || !got.Equal(at(30)) {
		t.Fatalf("restart must capture a new start time, got %v", got)
	}
}

func TestStartRoast_ClearsPreviousRoast(t *testing.T) {
	s := roasting(t)
	for i := 1; i <= 10; i++ {
		s.Tick(at(float64(i)), 20+float64(i), 0)
	}
	s.ToggleEvent(models.LabelCharge, at(5), 25)
	s.StopRoast(at(11), 31)
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if err := s.StartRoast(at(100), 40); err != nil {
		t.Fatalf("StartRoast: %v", err)
	}
	if len(s.Samples()) != 0 {
		t.Fatalf("samples not cleared: %d", len(s.Samples()))
	}
	ev := s.Events()
	if len(ev) != 1 || ev[0].Label != models.LabelStart || ev[0].Time != 0 || ev[0].Temp != 40 {
		t.Fatalf("expected only the start event, got %+v", ev)
	}
	if s.Status() != models.StatusRoasting {
		t.Fatalf("got %s, want roasting", s.Status())
	}
}

func TestTick_OnlyWhileRoasting(t *testing.T) {
	s := New(0)
	if _, ok := s.Tick(at(1), 100, 200); ok {
		t.Fatalf("idle tick must not record")
	}
	s.Connect("sim")
	if _, ok := s.Tick(at(1), 100, 200); ok {
		t.Fatalf("preheating tick must not record")
	}
	s.StartRoast(at(0), 100)
	if _, ok := s.Tick(at(1), 101, 200); !ok {
		t.Fatalf("roasting tick must record")
	}
	s.StopRoast(at(2), 102)
	if _, ok := s.Tick(at(3), 103, 200); ok {
		t.Fatalf("finished tick must not record")
	}
	if n := len(s.Samples()); n != 1 {
		t.Fatalf("got %d samples, want 1", n)
	}
}

func TestTick_DropsNonAdvancingTime(t *testing.T) {
	s := roasting(t)
	s.Tick(at(2), 30, 0)
	if _, ok := s.Tick(at(2), 31, 0); ok {
		t.Fatalf("equal elapsed must be dropped")
	}
	if _, ok := s.Tick(at(1), 31, 0); ok {
		t.Fatalf("earlier elapsed must be dropped")
	}
	if _, ok := s.Tick(at(3), 32, 0); !ok {
		t.Fatalf("advancing tick must record")
	}
}

func TestMarkEvent_IdleIsNoop(t *testing.T) {
	s := New(0)
	if _, err := s.MarkEvent(models.LabelCharge, at(1), 100); !errors.Is(err, ErrNotRoasting) {
		t.Fatalf("got %v, want ErrNotRoasting", err)
	}
	if len(s.Events()) != 0 {
		t.Fatalf("no event may be appended while idle")
	}
	if _, err := s.MarkEvent("", at(1), 100); !errors.Is(err, ErrInvalidLabel) {
		t.Fatalf("got %v, want ErrInvalidLabel", err)
	}
}

func TestToggleEvent_TwiceRemoves(t *testing.T) {
	s := roasting(t)

	added, err := s.ToggleEvent(models.LabelCharge, at(12), 190)
	if err != nil || !added {
		t.Fatalf("first toggle: added=%v err=%v", added, err)
	}
	ev := s.Events()
	last := ev[len(ev)-1]
	if last.Label != models.LabelCharge || last.Time != 12 || last.Temp != 190 {
		t.Fatalf("unexpected event %+v", last)
	}

	added, err = s.ToggleEvent(models.LabelCharge, at(13), 185)
	if err != nil || added {
		t.Fatalf("second toggle: added=%v err=%v", added, err)
	}
	if countLabel(s.Events(), models.LabelCharge) != 0 {
		t.Fatalf("charge must be removed, got %+v", s.Events())
	}
}

func TestToggleEvent_OutOfOrderAccepted(t *testing.T) {
	s := roasting(t)
	if _, err := s.ToggleEvent(models.LabelDryEnd, at(5), 150); err != nil {
		t.Fatalf("dry end without charge must be accepted: %v", err)
	}
}

func TestToggleEvent_DropStopsRoast(t *testing.T) {
	s := roasting(t)
	added, err := s.ToggleEvent(models.LabelDrop, at(60), 200)
	if err != nil || !added {
		t.Fatalf("added=%v err=%v", added, err)
	}
	if s.Status() != models.StatusFinished {
		t.Fatalf("got %s, want finished", s.Status())
	}
}

func TestStopRoast_AppendsSingleDrop(t *testing.T) {
	s := roasting(t)
	drop, err := s.StopRoast(at(70), 160)
	if err != nil {
		t.Fatalf("StopRoast: %v", err)
	}
	if drop.Label != models.LabelDrop || drop.Time != 70 || drop.Temp != 160 {
		t.Fatalf("unexpected drop %+v", drop)
	}
	if countLabel(s.Events(), models.LabelDrop) != 1 {
		t.Fatalf("expected exactly one drop, got %+v", s.Events())
	}
	if s.Status() != models.StatusFinished {
		t.Fatalf("got %s, want finished", s.Status())
	}
	if _, err := s.StopRoast(at(71), 160); !errors.Is(err, ErrNotRoasting) {
		t.Fatalf("second stop: got %v", err)
	}
	if countLabel(s.Events(), models.LabelDrop) != 1 {
		t.Fatalf("second stop must not add a drop")
	}
}

func TestUndoDrop_WithinGrace(t *testing.T) {
	s := roasting(t)
	start := s.StartTime()
	s.StopRoast(at(70), 160)

	if !s.UndoAvailable(at(72)) {
		t.Fatalf("undo should be available inside grace")
	}
	if err := s.UndoDrop(at(72)); err != nil {
		t.Fatalf("UndoDrop: %v", err)
	}
	if s.Status() != models.StatusRoasting {
		t.Fatalf("got %s, want roasting", s.Status())
	}
	if countLabel(s.Events(), models.LabelDrop) != 0 {
		t.Fatalf("drop must be removed")
	}
	if got := s.StartTime(); !got.Equal(*start) {
		t.Fatalf("start time changed: %v -> %v", start, got)
	}
	p, ok := s.Tick(at(73), 161, 0)
	if !ok || p.Time != 73 {
		t.Fatalf("ticking must resume on the original clock, got %+v ok=%v", p, ok)
	}
}

func TestUndoDrop_AfterGrace(t *testing.T) {
	s := roasting(t)
	s.StopRoast(at(70), 160)

	if s.UndoAvailable(at(75)) {
		t.Fatalf("undo must close at the deadline")
	}
	if err := s.UndoDrop(at(75)); !errors.Is(err, ErrUndoExpired) {
		t.Fatalf("got %v, want ErrUndoExpired", err)
	}
	if s.Status() != models.StatusFinished {
		t.Fatalf("got %s, want finished", s.Status())
	}
	if err := s.UndoDrop(at(75)); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second undo: got %v", err)
	}
}

func TestUndoDrop_NotFinished(t *testing.T) {
	s := roasting(t)
	if err := s.UndoDrop(at(1)); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("got %v", err)
	}
}

func TestExpire(t *testing.T) {
	s := roasting(t)
	if s.Expire(at(100)) {
		t.Fatalf("nothing to expire before a drop")
	}
	s.StopRoast(at(70), 160)
	if s.Expire(at(74)) {
		t.Fatalf("must not expire before the deadline")
	}
	if !s.Expire(at(75)) {
		t.Fatalf("must expire at the deadline")
	}
	if s.Expire(at(76)) {
		t.Fatalf("expire must fire once")
	}
	if err := s.UndoDrop(at(74)); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("undo after finalize: got %v", err)
	}
}

func TestStartRoast_CancelsPendingGrace(t *testing.T) {
	s := roasting(t)
	s.StopRoast(at(70), 160)
	s.Reset()
	if !s.UndoDeadline().IsZero() {
		t.Fatalf("reset must cancel grace")
	}
	s.StartRoast(at(80), 20)
	if s.Expire(at(90)) {
		t.Fatalf("stale grace fired after a new roast")
	}
}

func TestReset(t *testing.T) {
	t.Run("idle_rejected", func(t *testing.T) {
		if err := New(0).Reset(); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("got %v", err)
		}
	})
	t.Run("device_active_returns_to_preheating", func(t *testing.T) {
		s := roasting(t)
		s.Tick(at(1), 21, 0)
		s.StopRoast(at(2), 22)
		if err := s.Reset(); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		if s.Status() != models.StatusPreheating {
			t.Fatalf("got %s", s.Status())
		}
		if len(s.Samples()) != 0 || len(s.Events()) != 0 || s.StartTime() != nil {
			t.Fatalf("reset must clear everything")
		}
		snap := s.Snapshot(at(3), models.Reading{})
		if snap.RoR != 0 || snap.ETRoR != 0 || snap.Elapsed != 0 {
			t.Fatalf("derived values must be zero: %+v", snap)
		}
	})
	t.Run("no_device_returns_to_idle", func(t *testing.T) {
		s := New(0)
		s.Load([]models.DataPoint{{Time: 1, BT: 100}}, nil)
		if err := s.Reset(); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		if s.Status() != models.StatusIdle {
			t.Fatalf("got %s", s.Status())
		}
	})
}

func TestDisconnect_ForcesIdleAndKeepsData(t *testing.T) {
	s := roasting(t)
	s.Tick(at(1), 21, 0)
	s.ToggleEvent(models.LabelCharge, at(1), 21)
	s.Disconnect()

	if s.Status() != models.StatusIdle || s.DeviceActive() {
		t.Fatalf("got %s active=%v", s.Status(), s.DeviceActive())
	}
	if len(s.Samples()) != 1 || len(s.Events()) != 2 {
		t.Fatalf("roast data must be kept: %d samples, %d events", len(s.Samples()), len(s.Events()))
	}
	if _, ok := s.Tick(at(2), 22, 0); ok {
		t.Fatalf("no tick after disconnect")
	}
}

func TestLoad(t *testing.T) {
	s := roasting(t)
	if err := s.Load(nil, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("load while roasting: got %v", err)
	}
	s.StopRoast(at(5), 30)
	pts := []models.DataPoint{{Time: 0, BT: 100}, {Time: 1, BT: 101}}
	evs := []models.RoastEvent{{Time: 1, Label: models.LabelCharge, Temp: 101}}
	if err := s.Load(pts, evs); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Status() != models.StatusFinished || s.StartTime() != nil {
		t.Fatalf("got %s start=%v", s.Status(), s.StartTime())
	}
	if len(s.Samples()) != 2 || len(s.Events()) != 1 {
		t.Fatalf("unexpected contents")
	}
	if s.UndoAvailable(at(6)) {
		t.Fatalf("load must close the grace period")
	}
}

func TestScenario_LinearRoastToDrop(t *testing.T) {
	s := New(0)
	s.Connect("sim")
	if err := s.StartRoast(at(0), 20); err != nil {
		t.Fatalf("StartRoast: %v", err)
	}

	bt := func(sec float64) float64 { return 20 + 140*sec/70 }
	for i := 1; i <= 70; i++ {
		sec := float64(i)
		p, ok := s.Tick(at(sec), bt(sec), 0)
		if !ok {
			t.Fatalf("tick %d not recorded", i)
		}
		if i == 65 {
			want := math.Min((160.0-20.0)/70*60, ror.MaxRoR)
			if math.Abs(p.RoR-want) > 0.1 {
				t.Fatalf("ror at t=65: got %v, want %v", p.RoR, want)
			}
		}
	}

	drop, err := s.StopRoast(at(70), bt(70))
	if err != nil {
		t.Fatalf("StopRoast: %v", err)
	}
	if drop.Time != 70 || math.Abs(drop.Temp-160) > 1e-9 {
		t.Fatalf("unexpected drop %+v", drop)
	}
	if s.Status() != models.StatusFinished {
		t.Fatalf("got %s, want finished", s.Status())
	}
}

func TestSnapshot(t *testing.T) {
	s := roasting(t)
	for i := 1; i <= 10; i++ {
		s.Tick(at(float64(i)), 20+float64(i), 200)
	}
	live := models.Reading{BT: 31, ET: 200, HasET: true}
	snap := s.Snapshot(at(10.5), live)
	if snap.Status != models.StatusRoasting || snap.Elapsed != 10.5 {
		t.Fatalf("got %+v", snap)
	}
	if snap.RoR != 60 {
		t.Fatalf("ror: got %v, want 60", snap.RoR)
	}
	if snap.Live != live || snap.Device != "sim" {
		t.Fatalf("live/device not carried: %+v", snap)
	}

	snap.Samples[0].BT = -1
	if s.Samples()[0].BT == -1 {
		t.Fatalf("snapshot must not alias the session")
	}

	s.StopRoast(at(11), 31)
	snap = s.Snapshot(at(12), live)
	if !snap.UndoAvailable || snap.UndoDeadline == nil || !snap.UndoDeadline.Equal(at(16)) {
		t.Fatalf("undo info: %+v", snap)
	}
}
