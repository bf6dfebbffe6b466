package recorder

import "time"

// watch is the duration watchdog for one capture session. Each tick advances
// the elapsed counter by one; once the configured time limit is reached the
// capture is stopped automatically. Because a tick and a user stop race only
// through the controller mutex, the counter can overshoot the limit by at
// most one tick.
func (c *Controller) watch(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.closed || c.gen != gen || c.snap.Status != StatusRecording {
				c.mu.Unlock()
				return
			}
			elapsed := c.snap.Duration + 1
			c.dispatch(action{kind: actionSetDuration, seconds: elapsed})
			limitHit := c.opts.TimeLimit > 0 && elapsed >= c.opts.TimeLimit
			c.mu.Unlock()

			if limitHit {
				_ = c.StopRecording()
				return
			}
		}
	}
}
