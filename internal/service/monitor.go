package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"roast_monitor/internal/export"
	"roast_monitor/internal/importer"
	"roast_monitor/internal/logger"
	"roast_monitor/internal/metrics"
	"roast_monitor/internal/models"
	"roast_monitor/internal/mqtt"
	"roast_monitor/internal/repository"
	"roast_monitor/internal/ror"
	"roast_monitor/internal/session"
	"roast_monitor/internal/transport"
)

var (
	ErrAlreadyConnected = errors.New("a device is already connected")
	ErrConnectPending   = errors.New("a device connection is already in progress")
	ErrConnectionLost   = errors.New("device connection lost while connecting")
)

const defaultSampleInterval = time.Second

// TransportFactory builds a transport for a connect request.
type TransportFactory func(p transport.Params) (transport.Transport, error)

// MonitorOptions configures the Monitor.
type MonitorOptions struct {
	SampleInterval time.Duration
	Grace          time.Duration
	Factory        TransportFactory
	Publisher      mqtt.Publisher
	Log            *logger.Logger
	Now            func() time.Time
}

// ImportSummary describes a committed import.
type ImportSummary struct {
	Filename string `json:"filename"`
	Samples  int    `json:"samples"`
	Events   int    `json:"events"`
	Skipped  int    `json:"skipped_rows"`
}

// Monitor owns the roast session and everything that drives it: the device
// transport, the sampler and the undo grace timer. One mutex serializes
// every session mutation; transports only touch the live cell.
type Monitor struct {
	mu   sync.Mutex
	sess *session.Session
	live transport.LiveCell

	factory    TransportFactory
	tr         transport.Transport
	connecting bool
	pending    transport.Transport
	lost       bool

	interval   time.Duration
	grace      time.Duration
	samplerGen uint64
	sampler    *periodic
	graceGen   uint64
	graceTimer *time.Timer

	activity repository.ActivityRepo
	pub      mqtt.Publisher
	log      *logger.Logger
	now      func() time.Time
}

func NewMonitor(activity repository.ActivityRepo, opts MonitorOptions) *Monitor {
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = defaultSampleInterval
	}
	if opts.Grace <= 0 {
		opts.Grace = session.DefaultGrace
	}
	if opts.Factory == nil {
		opts.Factory = func(p transport.Params) (transport.Transport, error) {
			return transport.New(p, transport.Options{})
		}
	}
	if opts.Publisher == nil {
		opts.Publisher = mqtt.NopPublisher{}
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	opts.Publisher = mqtt.NewAsync(opts.Publisher, mqtt.DefaultSampleQueue, opts.Log)
	if opts.Now == nil {
		opts.Now = time.Now
	}
	metrics.SetStatus(string(models.StatusIdle))
	return &Monitor{
		sess:     session.New(opts.Grace),
		factory:  opts.Factory,
		interval: opts.SampleInterval,
		grace:    opts.Grace,
		activity: activity,
		pub:      opts.Publisher,
		log:      opts.Log,
		now:      opts.Now,
	}
}

// Connect opens a device transport and moves the session to preheating.
func (m *Monitor) Connect(ctx context.Context, p transport.Params) (string, error) {
	m.mu.Lock()
	if m.tr != nil {
		m.mu.Unlock()
		return "", ErrAlreadyConnected
	}
	if m.connecting {
		m.mu.Unlock()
		return "", ErrConnectPending
	}
	tr, err := m.factory(p)
	if err != nil {
		m.mu.Unlock()
		m.fail(ctx, "connect", err)
		return "", err
	}
	m.connecting = true
	m.pending, m.lost = tr, false
	m.live.Clear()
	m.mu.Unlock()

	label, err := tr.Connect(ctx, m.live.Set, func() { m.transportLost(tr) })

	m.mu.Lock()
	lost := m.lost
	m.connecting = false
	m.pending, m.lost = nil, false
	if err == nil && lost {
		m.live.Clear()
	}
	if err != nil || lost {
		m.mu.Unlock()
		if err == nil {
			err = ErrConnectionLost
			if cerr := tr.Close(); cerr != nil {
				m.log.Warnw("transport_close_failed", "err", cerr)
			}
		}
		m.fail(ctx, "connect", err)
		return "", err
	}
	m.tr = tr
	m.sess.Connect(label)
	status := m.sess.Status()
	m.mu.Unlock()

	metrics.SetConnected(true)
	m.transition(ctx, models.ActivityConnect, status, "device connected: "+label, map[string]any{
		"kind": p.Kind, "address": p.Address, "device": label,
	}, nil)
	return label, nil
}

// transportLost handles a device that went away on its own.
func (m *Monitor) transportLost(tr transport.Transport) {
	m.mu.Lock()
	if m.connecting && m.pending == tr {
		m.lost = true
		m.mu.Unlock()
		return
	}
	if m.tr != tr {
		m.mu.Unlock()
		return
	}
	m.disconnectLocked()
	m.mu.Unlock()

	metrics.SetConnected(false)
	m.log.Warnw("transport_disconnected", "reason", "device lost")
	m.transition(context.Background(), models.ActivityDisconnect, models.StatusIdle, "device connection lost", nil, nil)
}

// Disconnect closes the transport and returns the session to idle. Roast
// data is kept.
func (m *Monitor) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	tr := m.tr
	attached := tr != nil || m.sess.DeviceActive()
	m.disconnectLocked()
	m.mu.Unlock()

	if !attached {
		return nil
	}
	if tr != nil {
		if err := tr.Close(); err != nil {
			m.log.Warnw("transport_close_failed", "err", err)
		}
	}
	metrics.SetConnected(false)
	m.transition(ctx, models.ActivityDisconnect, models.StatusIdle, "device disconnected", nil, nil)
	return nil
}

func (m *Monitor) disconnectLocked() {
	m.tr = nil
	m.stopSamplerLocked()
	m.stopGraceLocked()
	m.sess.Disconnect()
	m.live.Clear()
}

// StartRoast begins a new roast timeline at the current instant.
func (m *Monitor) StartRoast(ctx context.Context) error {
	m.mu.Lock()
	live, _ := m.live.Get()
	if err := m.sess.StartRoast(m.now(), live.BT); err != nil {
		m.mu.Unlock()
		return err
	}
	m.stopGraceLocked()
	m.startSamplerLocked()
	m.mu.Unlock()

	m.log.Infow("roast_started", "bt", live.BT)
	m.transition(ctx, models.ActivityStart, models.StatusRoasting, "roast started", map[string]any{"bt": live.BT},
		&models.RoastEvent{Label: models.LabelStart, Temp: live.BT})
	return nil
}

// StopRoast drops the beans and opens the undo window.
func (m *Monitor) StopRoast(ctx context.Context) (models.RoastEvent, error) {
	m.mu.Lock()
	live, _ := m.live.Get()
	ev, err := m.sess.StopRoast(m.now(), live.BT)
	if err != nil {
		m.mu.Unlock()
		return models.RoastEvent{}, err
	}
	m.stopSamplerLocked()
	m.armGraceLocked()
	m.mu.Unlock()

	metrics.IncMilestone(ev.Label)
	m.log.Infow("roast_dropped", "time", ev.Time, "bt", ev.Temp)
	m.transition(ctx, models.ActivityDrop, models.StatusFinished, "roast dropped", map[string]any{
		"time": ev.Time, "temp": ev.Temp,
	}, &ev)
	return ev, nil
}

// UndoDrop resumes the roast if the grace window is still open.
func (m *Monitor) UndoDrop(ctx context.Context) error {
	m.mu.Lock()
	err := m.sess.UndoDrop(m.now())
	if err == nil {
		m.stopGraceLocked()
		m.startSamplerLocked()
	} else if errors.Is(err, session.ErrUndoExpired) {
		m.stopGraceLocked()
	}
	m.mu.Unlock()

	switch {
	case err == nil:
		m.transition(ctx, models.ActivityUndo, models.StatusRoasting, "drop undone", nil, nil)
	case errors.Is(err, session.ErrUndoExpired):
		m.transition(ctx, models.ActivityFinalize, models.StatusFinished, "roast finalized", nil, nil)
	}
	return err
}

// Reset discards the roast and returns to preheating or idle.
func (m *Monitor) Reset(ctx context.Context) error {
	m.mu.Lock()
	if err := m.sess.Reset(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.stopSamplerLocked()
	m.stopGraceLocked()
	status := m.sess.Status()
	m.mu.Unlock()

	m.transition(ctx, models.ActivityReset, status, "session reset", nil, nil)
	return nil
}

// ToggleEvent marks a milestone, or unmarks it if already present. The
// label may be a canonical label or a known tag ("FCs"). Drop stops the
// roast.
func (m *Monitor) ToggleEvent(ctx context.Context, label string) (bool, error) {
	label = models.LabelFor(label)
	if label == models.LabelDrop {
		_, err := m.StopRoast(ctx)
		return err == nil, err
	}

	m.mu.Lock()
	live, _ := m.live.Get()
	now := m.now()
	added, err := m.sess.ToggleEvent(label, now, live.BT)
	elapsed := m.sess.Elapsed(now)
	status := m.sess.Status()
	m.mu.Unlock()
	if err != nil {
		return false, err
	}

	desc := "milestone marked: " + label
	if added {
		metrics.IncMilestone(label)
	} else {
		desc = "milestone removed: " + label
	}
	m.transition(ctx, models.ActivityMilestone, status, desc, map[string]any{
		"label": label, "added": added, "time": elapsed,
	}, &models.RoastEvent{Label: label, Time: elapsed, Temp: live.BT})
	return added, nil
}

// Import parses a roast file and, only if parsing succeeds, replaces the
// session contents with it.
func (m *Monitor) Import(ctx context.Context, filename string, data []byte) (ImportSummary, error) {
	res, err := importer.Parse(filename, data)
	if err != nil {
		metrics.IncImport("error", 0)
		m.fail(ctx, "import "+filename, err)
		return ImportSummary{}, err
	}

	m.mu.Lock()
	if err := m.sess.Load(res.Samples, res.Events); err != nil {
		m.mu.Unlock()
		metrics.IncImport("rejected", 0)
		return ImportSummary{}, err
	}
	m.stopGraceLocked()
	m.mu.Unlock()

	sum := ImportSummary{Filename: filename, Samples: len(res.Samples), Events: len(res.Events), Skipped: res.Skipped}
	metrics.IncImport("ok", res.Skipped)
	m.transition(ctx, models.ActivityImport, models.StatusFinished, "roast imported: "+filename, map[string]any{
		"filename": sum.Filename, "samples": sum.Samples, "events": sum.Events, "skipped_rows": sum.Skipped,
	}, nil)
	return sum, nil
}

// Export renders the current session in the requested format.
func (m *Monitor) Export(ctx context.Context, format string) (export.File, error) {
	m.mu.Lock()
	date := m.now()
	if st := m.sess.StartTime(); st != nil {
		date = *st
	}
	r := export.Roast{Date: date, Samples: m.sess.Samples(), Events: m.sess.Events()}
	m.mu.Unlock()

	f, err := export.Encode(format, r)
	if err != nil {
		return export.File{}, err
	}
	kind := strings.TrimPrefix(f.Extension, ".")
	metrics.IncExport(kind)
	m.record(ctx, models.ActivityExport, "roast exported", map[string]any{
		"format": kind, "samples": len(r.Samples), "bytes": len(f.Data),
	})
	return f, nil
}

// State returns a point-in-time copy of the session.
func (m *Monitor) State() models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	live, _ := m.live.Get()
	return m.sess.Snapshot(m.now(), live)
}

// Analysis describes the current curve.
func (m *Monitor) Analysis() ror.Analysis {
	m.mu.Lock()
	samples, events := m.sess.Samples(), m.sess.Events()
	m.mu.Unlock()
	return ror.Analyze(samples, events)
}

// Close disconnects the device and the publisher.
func (m *Monitor) Close() error {
	m.mu.Lock()
	tr := m.tr
	m.disconnectLocked()
	m.mu.Unlock()
	if tr != nil {
		_ = tr.Close()
	}
	return m.pub.Close()
}

// ----------- sampler & grace timer -----------

func (m *Monitor) startSamplerLocked() {
	m.stopSamplerLocked()
	m.samplerGen++
	gen := m.samplerGen
	m.sampler = startPeriodic(m.interval, func() { m.sample(gen) })
}

func (m *Monitor) stopSamplerLocked() {
	m.sampler.Stop()
	m.sampler = nil
	m.samplerGen++
}

// sample records one timeline point from the latest reading.
func (m *Monitor) sample(gen uint64) {
	m.mu.Lock()
	if gen != m.samplerGen {
		m.mu.Unlock()
		return
	}
	live, ok := m.live.Get()
	if !ok {
		m.mu.Unlock()
		return
	}
	now := m.now()
	p, ok := m.sess.Tick(now, live.BT, live.ET)
	m.mu.Unlock()
	if !ok {
		return
	}

	metrics.ObserveSample(p.BT, p.ET, p.RoR, p.ETRoR)
	if err := m.pub.PublishSample(now, p); err != nil {
		m.log.Debugw("mqtt_publish_failed", "topic", "samples", "err", err)
	}
}

func (m *Monitor) armGraceLocked() {
	m.stopGraceLocked()
	gen := m.graceGen
	m.graceTimer = time.AfterFunc(m.grace, func() { m.expire(gen) })
}

func (m *Monitor) stopGraceLocked() {
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
	m.graceGen++
}

// expire finalizes the roast once the undo window has passed.
func (m *Monitor) expire(gen uint64) {
	m.mu.Lock()
	if gen != m.graceGen {
		m.mu.Unlock()
		return
	}
	m.graceTimer = nil
	now := m.now()
	if d := m.sess.UndoDeadline(); now.Before(d) {
		now = d
	}
	finalized := m.sess.Expire(now)
	m.mu.Unlock()

	if finalized {
		m.transition(context.Background(), models.ActivityFinalize, models.StatusFinished, "roast finalized", nil, nil)
	}
}

// ----------- activity, events, metrics -----------

// transition records an activity entry, publishes it and updates the
// status gauge. ev, when set, is the milestone the transition carries.
func (m *Monitor) transition(ctx context.Context, typ string, status models.Status, desc string, meta any, ev *models.RoastEvent) {
	metrics.SetStatus(string(status))
	m.record(ctx, typ, desc, meta)

	msg := mqtt.Event{Timestamp: m.now(), Type: typ, Status: status}
	if ev != nil {
		msg.Label, msg.Time, msg.Temp = ev.Label, ev.Time, ev.Temp
	}
	if err := m.pub.PublishEvent(msg); err != nil {
		m.log.Debugw("mqtt_publish_failed", "topic", "events", "err", err)
	}
}

func (m *Monitor) record(ctx context.Context, typ, desc string, meta any) {
	if m.activity == nil {
		return
	}
	err := m.activity.Append(context.WithoutCancel(ctx), models.ActivityEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  m.now().UTC(),
		Type:        typ,
		Description: desc,
		Metadata:    withActor(ctx, meta),
	})
	if err != nil {
		m.log.Errorw("activity_append_failed", "type", typ, "err", err)
	}
}

func (m *Monitor) fail(ctx context.Context, op string, err error) {
	m.log.Errorw("operation_failed", "op", op, "err", err)
	m.record(ctx, models.ActivityError, fmt.Sprintf("%s failed", op), map[string]any{"error": err.Error()})
}

// periodic runs fn every interval until stopped. Stop is idempotent and
// safe on a nil receiver.
type periodic struct {
	stop chan struct{}
	once sync.Once
}

func startPeriodic(every time.Duration, fn func()) *periodic {
	p := &periodic{stop: make(chan struct{})}
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-t.C:
				fn()
			}
		}
	}()
	return p
}

func (p *periodic) Stop() {
	if p == nil {
		return
	}
	p.once.Do(func() { close(p.stop) })
}
