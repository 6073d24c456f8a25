package metrics

import "time"

type ProbeRecorder interface {
	ObserveProbe(reachable bool, at time.Time)
	IncProbeFaults()
	ObserveStatus(status string, changed bool)
}

type NoopProbeRecorder struct{}

func (NoopProbeRecorder) ObserveProbe(reachable bool, at time.Time) {}
func (NoopProbeRecorder) IncProbeFaults()                           {}
func (NoopProbeRecorder) ObserveStatus(status string, changed bool) {}

type DropRecorder interface {
	IncSubscriberDrops()
}

type NoopDropRecorder struct{}

func (NoopDropRecorder) IncSubscriberDrops() {}
