package mqtt

import (
	"errors"
	"sync"
	"time"

	"roast_monitor/internal/logger"
	"roast_monitor/internal/models"
)

// DefaultSampleQueue is the number of samples buffered ahead of the broker.
const DefaultSampleQueue = 64

// ErrSampleDropped is returned when the sample queue is full.
var ErrSampleDropped = errors.New("mqtt sample queue full")

type queuedSample struct {
	at    time.Time
	point models.DataPoint
}

// Async hands samples to a background goroutine so a slow broker never
// holds up the caller. A full queue drops the sample. Events are passed
// straight through.
type Async struct {
	next Publisher
	log  *logger.Logger

	mu      sync.Mutex
	closed  bool
	samples chan queuedSample
	done    chan struct{}
}

// NewAsync wraps next. size <= 0 selects DefaultSampleQueue.
func NewAsync(next Publisher, size int, log *logger.Logger) *Async {
	if size <= 0 {
		size = DefaultSampleQueue
	}
	if log == nil {
		log = logger.Nop()
	}
	a := &Async{
		next:    next,
		log:     log,
		samples: make(chan queuedSample, size),
		done:    make(chan struct{}),
	}
	go a.drain()
	return a
}

func (a *Async) drain() {
	defer close(a.done)
	for s := range a.samples {
		if err := a.next.PublishSample(s.at, s.point); err != nil {
			a.log.Debugw("mqtt_publish_failed", "topic", "samples", "err", err)
		}
	}
}

// PublishSample queues p without blocking.
func (a *Async) PublishSample(at time.Time, p models.DataPoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	select {
	case a.samples <- queuedSample{at: at, point: p}:
		return nil
	default:
		return ErrSampleDropped
	}
}

func (a *Async) PublishEvent(e Event) error {
	return a.next.PublishEvent(e)
}

// Close flushes queued samples and closes the wrapped publisher. It is
// safe to call more than once.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.samples)
	a.mu.Unlock()

	<-a.done
	return a.next.Close()
}
