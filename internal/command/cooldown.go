package command

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// CooldownExpiry is how long a sender's last run is remembered after it was
// recorded, regardless of the command's cooldown.
const CooldownExpiry = 30 * time.Minute

// cooldowns remembers when each sender last ran a command.
type cooldowns struct {
	mu   sync.Mutex
	last map[uuid.UUID]time.Time
}

func newCooldowns() *cooldowns {
	return &cooldowns{last: make(map[uuid.UUID]time.Time)}
}

// check returns the whole seconds id still has to wait at now. When nothing
// is left to wait, now is recorded as id's last run.
//
// Postcondition: Returns 0 and records the run, or a positive wait and records nothing.
func (c *cooldowns) check(id uuid.UUID, cooldown time.Duration, now time.Time) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, at := range c.last {
		if now.Sub(at) >= CooldownExpiry {
			delete(c.last, k)
		}
	}

	if at, ok := c.last[id]; ok {
		elapsed := int64(now.Sub(at) / time.Second)
		seconds := int64(cooldown / time.Second)
		if elapsed <= seconds {
			return seconds - elapsed + 1
		}
	}
	c.last[id] = now
	return 0
}

func (c *cooldowns) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}
