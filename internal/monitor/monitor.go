package monitor

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// Prober performs one reachability determination.
type Prober interface {
	Probe(ctx context.Context) bool
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context) bool

func (f ProberFunc) Probe(ctx context.Context) bool {
	return f(ctx)
}

// Result is one probe outcome, tagged with the generation the monitor was
// constructed under so superseded results can be discarded on arrival.
// Err is set when the probe machinery itself faulted.
type Result struct {
	Reachable  bool
	Generation uint64
	CheckedAt  time.Time
	Err        error
}

// Monitor owns a repeating timer that drives probes and feeds results to a
// callback. A monitor is bound to one interval, one prober, and one
// generation; reconfiguration swaps the whole monitor.
type Monitor struct {
	interval   time.Duration
	prober     Prober
	generation uint64
	onResult   func(Result)
	now        func() time.Time
	logger     *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Monitor)

// WithNow overrides the clock used to stamp results.
func WithNow(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger wires a logger for probe faults.
func WithLogger(logger *log.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func New(interval time.Duration, prober Prober, generation uint64, onResult func(Result), opts ...Option) *Monitor {
	m := &Monitor{
		interval:   interval,
		prober:     prober,
		generation: generation,
		onResult:   onResult,
		now:        time.Now,
		logger:     log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Generation returns the generation this monitor tags its results with.
func (m *Monitor) Generation() uint64 {
	return m.generation
}

// Start launches the repeating timer. Starting an already running monitor is
// a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	go m.loop(loopCtx, done)
}

// Stop cancels the timer and waits for the loop to exit. A result already
// delivered stands; a probe still in flight is abandoned and never
// delivered. Stopping an idle monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// CheckNow performs one immediate probe on the same callback path,
// independent of the timer's phase. Valid whether or not the monitor is
// running; it never resets or delays the next scheduled tick.
func (m *Monitor) CheckNow(ctx context.Context) Result {
	return m.runProbe(ctx)
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runProbe(ctx)
		}
	}
}

// runProbe executes one probe and delivers its result unless the context was
// cancelled while the probe was in flight. A panic in the prober becomes a
// fault result instead of crashing the loop.
func (m *Monitor) runProbe(ctx context.Context) Result {
	result := Result{Generation: m.generation}
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.Err = fmt.Errorf("probe executor panic: %v", r)
				m.logger.Printf("probe generation %d: %v", m.generation, result.Err)
			}
		}()
		result.Reachable = m.prober.Probe(ctx)
	}()
	result.CheckedAt = m.now().UTC()

	if ctx.Err() != nil {
		return result
	}
	if m.onResult != nil {
		m.onResult(result)
	}
	return result
}
