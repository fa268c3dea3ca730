package groupchat

import (
	"sync"
	"time"
)

// Clock issues message timestamps at millisecond precision (what BSON dates
// store). Each call returns a value strictly greater than the previous one,
// so insertion order and timestamp order agree within this process.
type Clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewClock returns a Clock reading from now; nil means time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Millisecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Millisecond)
	}
	c.last = t
	return t
}
