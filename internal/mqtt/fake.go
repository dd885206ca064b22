package mqtt

import (
	"sync"
	"time"

	"roast_monitor/internal/models"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Samples contains all published samples.
	Samples []models.DataPoint

	// Events contains all published events.
	Events []Event

	// PublishError, if set, is returned by every publish call.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (f *FakePublisher) PublishSample(at time.Time, p models.DataPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Samples = append(f.Samples, p)
	return nil
}

func (f *FakePublisher) PublishEvent(e Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Events = append(f.Events, e)
	return nil
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// EventTypes returns the Type of every published event, in order.
func (f *FakePublisher) EventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Events))
	for i, e := range f.Events {
		out[i] = e.Type
	}
	return out
}

// SampleCount returns the number of published samples.
func (f *FakePublisher) SampleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Samples)
}
