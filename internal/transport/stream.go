package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"roast_monitor/internal/lineparser"
	"roast_monitor/internal/logger"
	"roast_monitor/internal/metrics"
	"roast_monitor/internal/models"
)

// stream turns raw chunks into readings.
type stream struct {
	kind      string
	framer    *lineparser.Framer
	parser    *lineparser.Parser
	onReading func(models.Reading)
	now       func() time.Time
}

func newStream(kind string, opts Options, onReading func(models.Reading)) *stream {
	return &stream{
		kind:      kind,
		framer:    lineparser.NewFramer(),
		parser:    lineparser.New(opts.Fallback),
		onReading: onReading,
		now:       opts.Now,
	}
}

// feed parses every complete line in chunk. It returns how many readings
// were produced.
func (s *stream) feed(chunk []byte) int {
	n := 0
	for _, line := range s.framer.Feed(chunk) {
		r, ok := s.parser.ParseLine(line)
		if !ok {
			metrics.IncLineSkipped(s.kind)
			continue
		}
		s.emit(r)
		n++
	}
	return n
}

// message handles one self-contained message: JSON first, then text lines.
// A JSON payload that carries no bean temperature is dropped whole.
func (s *stream) message(msg []byte) int {
	if json.Valid(msg) {
		r, ok := s.parser.ParseJSON(msg)
		if !ok {
			metrics.IncLineSkipped(s.kind)
			return 0
		}
		s.emit(r)
		return 1
	}
	return s.feed(append(msg, '\n'))
}

func (s *stream) emit(r models.Reading) {
	r.At = s.now()
	metrics.IncReading(s.kind)
	if s.onReading != nil {
		s.onReading(r)
	}
}

// poll writes a read request every interval until ctx is done.
func poll(ctx context.Context, every time.Duration, write func() error, log *logger.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := write(); err != nil {
				log.Debugw("poll_write_failed", "error", err)
			}
		}
	}
}

// task is a cancellable goroutine group whose Stop is idempotent.
type task struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func startTask(ctx context.Context) (*task, context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &task{cancel: cancel}, ctx
}

func (t *task) Go(fn func()) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn()
	}()
}

// Stop cancels the group. It does not wait, so it may be called from
// inside one of the group's goroutines.
func (t *task) Stop() {
	if t == nil {
		return
	}
	t.once.Do(t.cancel)
}

// Wait blocks until every goroutine of the group has returned.
func (t *task) Wait() {
	if t == nil {
		return
	}
	t.wg.Wait()
}
