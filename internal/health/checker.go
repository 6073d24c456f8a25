package health

import (
	"fmt"
	"time"

	"github.com/netreachhq/reachmon/internal/metrics"
)

const defaultStaleFactor = 3

// Checker evaluates readiness conditions for the monitor daemon.
type Checker struct {
	metrics    *metrics.Store
	staleAfter time.Duration
	state      func() string
}

// NewChecker constructs a readiness checker bound to the provided metrics
// store. state reports the controller's lifecycle phase; staleAfter bounds
// how old the last probe may be before the daemon is considered stale.
func NewChecker(store *metrics.Store, staleAfter time.Duration, state func() string) *Checker {
	return &Checker{
		metrics:    store,
		staleAfter: staleAfter,
		state:      state,
	}
}

// StaleAfter derives a staleness bound from the probe interval.
func StaleAfter(interval time.Duration) time.Duration {
	return interval * defaultStaleFactor
}

// Ready evaluates all readiness conditions and returns the overall status
// and reasons for failure.
func (c *Checker) Ready(now time.Time) (bool, []string) {
	reasons := make([]string, 0, 3)

	phase := "active"
	if c.state != nil {
		phase = c.state()
		switch phase {
		case "active", "paused":
		default:
			reasons = append(reasons, fmt.Sprintf("monitor %s", phase))
		}
	}

	if c.metrics != nil {
		snap := c.metrics.Snapshot()
		if snap.LastProbeAt.IsZero() {
			reasons = append(reasons, "no probe completed yet")
		} else if phase == "active" && c.staleAfter > 0 && now.Sub(snap.LastProbeAt) > c.staleAfter {
			// A paused monitor is expected to go quiet; staleness only
			// applies while the schedule is running.
			reasons = append(reasons, fmt.Sprintf("last probe stale (%s)", now.Sub(snap.LastProbeAt).Round(time.Second)))
		}
	}

	if len(reasons) > 0 {
		return false, reasons
	}
	return true, nil
}
