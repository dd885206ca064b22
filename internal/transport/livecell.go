package transport

import (
	"sync"

	"roast_monitor/internal/models"
)

// LiveCell holds the latest reading. Transports write it from their own
// goroutines; the sampler reads it on every tick.
type LiveCell struct {
	mu  sync.RWMutex
	r   models.Reading
	set bool
}

func (c *LiveCell) Set(r models.Reading) {
	c.mu.Lock()
	c.r, c.set = r, true
	c.mu.Unlock()
}

// Get returns the latest reading and whether one has arrived yet.
func (c *LiveCell) Get() (models.Reading, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.r, c.set
}

func (c *LiveCell) Clear() {
	c.mu.Lock()
	c.r, c.set = models.Reading{}, false
	c.mu.Unlock()
}
