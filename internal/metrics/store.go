package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Store maintains in-memory gauges and counters for monitor telemetry.
type Store struct {
	probesTotal       atomic.Uint64
	probesUnreachable atomic.Uint64
	probeFaults       atomic.Uint64
	statusTransitions atomic.Uint64
	subscriberDrops   atomic.Uint64
	lastProbeUnixNano atomic.Int64
	currentStatus     atomic.Value // string
}

// NewStore constructs a Store with zeroed metrics.
func NewStore() *Store {
	store := &Store{}
	store.currentStatus.Store("unknown")
	return store
}

// Snapshot captures the current metric values in a plain struct.
type Snapshot struct {
	ProbesTotal            uint64
	ProbesUnreachableTotal uint64
	ProbeFaultsTotal       uint64
	StatusTransitionsTotal uint64
	SubscriberDropsTotal   uint64
	LastProbeAt            time.Time
	CurrentStatus          string
}

// Snapshot returns a point-in-time copy of the metrics.
func (s *Store) Snapshot() Snapshot {
	status, _ := s.currentStatus.Load().(string)
	var lastProbe time.Time
	if nanos := s.lastProbeUnixNano.Load(); nanos > 0 {
		lastProbe = time.Unix(0, nanos).UTC()
	}
	return Snapshot{
		ProbesTotal:            s.probesTotal.Load(),
		ProbesUnreachableTotal: s.probesUnreachable.Load(),
		ProbeFaultsTotal:       s.probeFaults.Load(),
		StatusTransitionsTotal: s.statusTransitions.Load(),
		SubscriberDropsTotal:   s.subscriberDrops.Load(),
		LastProbeAt:            lastProbe,
		CurrentStatus:          status,
	}
}

// ProbeRecorder returns an implementation of ProbeRecorder backed by the store.
func (s *Store) ProbeRecorder() ProbeRecorder {
	return probeRecorder{store: s}
}

// DropRecorder returns an implementation of DropRecorder backed by the store.
func (s *Store) DropRecorder() DropRecorder {
	return dropRecorder{store: s}
}

type probeRecorder struct {
	store *Store
}

func (r probeRecorder) ObserveProbe(reachable bool, at time.Time) {
	r.store.probesTotal.Add(1)
	if !reachable {
		r.store.probesUnreachable.Add(1)
	}
	r.store.lastProbeUnixNano.Store(at.UnixNano())
}

func (r probeRecorder) IncProbeFaults() {
	r.store.probeFaults.Add(1)
}

func (r probeRecorder) ObserveStatus(status string, changed bool) {
	r.store.currentStatus.Store(status)
	if changed {
		r.store.statusTransitions.Add(1)
	}
}

type dropRecorder struct {
	store *Store
}

func (r dropRecorder) IncSubscriberDrops() {
	r.store.subscriberDrops.Add(1)
}

// WritePrometheus renders the current metrics using the Prometheus text format.
func (s *Store) WritePrometheus(w io.Writer) error {
	snap := s.Snapshot()
	connected := 0
	if snap.CurrentStatus == "connected" {
		connected = 1
	}
	var lastProbe int64
	if !snap.LastProbeAt.IsZero() {
		lastProbe = snap.LastProbeAt.Unix()
	}
	lines := []string{
		"# HELP reachmon_probes_total Total reachability probe rounds completed.",
		"# TYPE reachmon_probes_total counter",
		fmt.Sprintf("reachmon_probes_total %d", snap.ProbesTotal),
		"# HELP reachmon_probes_unreachable_total Probe rounds that found no reachable target.",
		"# TYPE reachmon_probes_unreachable_total counter",
		fmt.Sprintf("reachmon_probes_unreachable_total %d", snap.ProbesUnreachableTotal),
		"# HELP reachmon_probe_faults_total Faults raised inside the probe machinery.",
		"# TYPE reachmon_probe_faults_total counter",
		fmt.Sprintf("reachmon_probe_faults_total %d", snap.ProbeFaultsTotal),
		"# HELP reachmon_status_transitions_total Connectivity status changes published to subscribers.",
		"# TYPE reachmon_status_transitions_total counter",
		fmt.Sprintf("reachmon_status_transitions_total %d", snap.StatusTransitionsTotal),
		"# HELP reachmon_subscriber_drops_total Notifications discarded because a subscriber channel was full.",
		"# TYPE reachmon_subscriber_drops_total counter",
		fmt.Sprintf("reachmon_subscriber_drops_total %d", snap.SubscriberDropsTotal),
		"# HELP reachmon_connected Whether the host currently has verified internet access (1=connected).",
		"# TYPE reachmon_connected gauge",
		fmt.Sprintf("reachmon_connected %d", connected),
		"# HELP reachmon_status_info Current connectivity classification.",
		"# TYPE reachmon_status_info gauge",
		fmt.Sprintf("reachmon_status_info{status=%q} 1", snap.CurrentStatus),
		"# HELP reachmon_last_probe_timestamp_seconds Unix time of the most recent completed probe.",
		"# TYPE reachmon_last_probe_timestamp_seconds gauge",
		fmt.Sprintf("reachmon_last_probe_timestamp_seconds %d", lastProbe),
		"",
	}
	for _, line := range lines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// NewHTTPHandler returns an http.Handler that serves Prometheus formatted metrics.
func NewHTTPHandler(store *Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if r.Method == http.MethodHead {
			return
		}
		if err := store.WritePrometheus(w); err != nil {
			http.Error(w, "metrics unavailable", http.StatusInternalServerError)
		}
	})
}
