package tbmqtt

import "time"

// CheckTimeout is the Timeout Sweeper's external tick, spec.md §4.4: the
// host task/runtime calls this periodically. Ticks are coalesced so a tight
// polling loop does not scan the pending table every iteration — a second
// call within DefaultTimeout+2s of the last sweep is a no-op.
func (c *Client) CheckTimeout() {
	c.checkTimeoutAt(time.Now())
}

func (c *Client) checkTimeoutAt(now time.Time) {
	c.mu.Lock()
	if !c.lastCheck.IsZero() && now.Before(c.lastCheck.Add(c.timeout+2*time.Second)) {
		c.mu.Unlock()
		return
	}
	c.lastCheck = now
	c.mu.Unlock()

	for _, e := range c.table.DrainExpired(now, c.timeout) {
		if e.OnTimeout != nil {
			e.OnTimeout(e.ID)
		}
	}
}
