package llm

import "sync"

// UsageCounter accumulates token usage across concurrent provider calls.
type UsageCounter struct {
	mu sync.Mutex
	u  Usage
}

// Record adds one response's usage. Safe for concurrent use; nil receivers
// are a no-op so callers can leave accounting unwired.
func (c *UsageCounter) Record(u Usage) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.u.Add(u)
}

// Total returns the accumulated usage.
func (c *UsageCounter) Total() Usage {
	if c == nil {
		return Usage{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.u
}
