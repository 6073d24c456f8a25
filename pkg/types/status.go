package types

import "time"

// Status classifies the host's internet reachability. StatusUnknown is the
// sentinel reported before any probe has completed; probes themselves only
// ever produce StatusConnected or StatusDisconnected.
type Status string

const (
	StatusUnknown      Status = "unknown"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// StatusFor maps a probe outcome onto a Status.
func StatusFor(reachable bool) Status {
	if reachable {
		return StatusConnected
	}
	return StatusDisconnected
}

// Connected reports whether the status represents verified internet access.
func (s Status) Connected() bool {
	return s == StatusConnected
}

// StatusEvent is one notification on the broadcast channel: either a status
// transition or a fault raised inside the probe machinery.
type StatusEvent struct {
	Status    Status
	Timestamp time.Time
	Err       error
}

// Fault reports whether the event carries a machinery error rather than a
// status transition.
func (e StatusEvent) Fault() bool {
	return e.Err != nil
}
