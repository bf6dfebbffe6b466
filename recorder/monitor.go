package recorder

import "time"

// monitor is the byte monitor for one capture session: it polls the
// analyser's frequency data on a fixed cadence and publishes each poll into
// the snapshot, where consumers can read it for visualization.
func (c *Controller) monitor(gen uint64, analyser AnalyserNode, stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			bins := make([]byte, analyser.FrequencyBinCount())
			analyser.ByteFrequencyData(bins)

			c.mu.Lock()
			if c.closed || c.gen != gen {
				c.mu.Unlock()
				return
			}
			c.dispatch(action{kind: actionSetFrequencyBins, bins: bins})
			c.mu.Unlock()
		}
	}
}
