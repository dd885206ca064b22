package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"roast_monitor/internal/models"
)

// ----------- Simulation constants -----------
const (
	simAmbientC   = 25.0  // starting temperature °C
	simHeaterC    = 240.0 // heater setpoint °C
	simEnvRate    = 0.02  // fraction of heater-ET gap closed per second
	simBeanRate   = 0.015 // fraction of ET-BT gap closed per second
	simMaxElapsed = 5.0   // s, caps a single step after a stall
)

// SimulatorConfig tunes the simulated roaster.
type SimulatorConfig struct {
	Tick    time.Duration `mapstructure:"tick"`
	Ambient float64       `mapstructure:"ambient"`
	Heater  float64       `mapstructure:"heater"`
}

func (c SimulatorConfig) withDefaults() SimulatorConfig {
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	if c.Ambient == 0 {
		c.Ambient = simAmbientC
	}
	if c.Heater == 0 {
		c.Heater = simHeaterC
	}
	return c
}

// Simulator is a device-less transport: a first-order thermal model where
// the environment probe chases the heater setpoint and the beans chase the
// environment. It emits text lines so readings take the same parse path
// as real devices.
type Simulator struct {
	cfg  SimulatorConfig
	opts Options

	mu   sync.Mutex
	bt   float64
	et   float64
	task *task
}

func NewSimulator(opts Options) *Simulator {
	opts = opts.withDefaults()
	return &Simulator{cfg: opts.Simulator, opts: opts}
}

func (s *Simulator) Connect(ctx context.Context, onReading func(models.Reading), _ func()) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.task != nil {
		return "", fmt.Errorf("%w: simulator already running", ErrHandshake)
	}
	s.bt, s.et = s.cfg.Ambient, s.cfg.Ambient
	t, ctx := startTask(ctx)
	s.task = t

	st := newStream(KindSimulator, s.opts, onReading)
	t.Go(func() { s.run(ctx, st) })
	s.opts.Log.Infow("transport_connected", "kind", KindSimulator, "heater", s.cfg.Heater)
	return "simulator", nil
}

// run ticks at the configured interval until ctx is canceled.
func (s *Simulator) run(ctx context.Context, st *stream) {
	t := time.NewTicker(s.cfg.Tick)
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			elapsed := now.Sub(last).Seconds()
			last = now
			bt, et := s.step(elapsed)
			st.feed([]byte(fmt.Sprintf("%.1f,%.1f\n", bt, et)))
		}
	}
}

// step advances the model by elapsed seconds and returns (bt, et).
func (s *Simulator) step(elapsed float64) (float64, float64) {
	if elapsed > simMaxElapsed {
		elapsed = simMaxElapsed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.et += (s.cfg.Heater - s.et) * minFloat(simEnvRate*elapsed, 1)
	s.bt += (s.et - s.bt) * minFloat(simBeanRate*elapsed, 1)
	return s.bt, s.et
}

// Close stops the simulation and waits for it to exit.
func (s *Simulator) Close() error {
	s.mu.Lock()
	t := s.task
	s.task = nil
	s.mu.Unlock()
	t.Stop()
	t.Wait()
	return nil
}

func minFloat(a, b float64) float64 {
	if a <= b {
		return a
	}
	return b
}
