package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/netreachhq/reachmon/internal/broadcast"
	"github.com/netreachhq/reachmon/internal/metrics"
	"github.com/netreachhq/reachmon/internal/monitor"
	"github.com/netreachhq/reachmon/internal/probe"
	"github.com/netreachhq/reachmon/pkg/types"
)

// MinInterval is the smallest accepted gap between scheduled probes.
const MinInterval = time.Second

var (
	// ErrNotInitialized is returned when a method is called before
	// Initialize or after Dispose.
	ErrNotInitialized = errors.New("reachability monitor not initialized")
	// ErrInvalidConfiguration is returned when a configuration is rejected
	// before being applied; the previous configuration stays in force.
	ErrInvalidConfiguration = errors.New("invalid monitor configuration")
)

// State is the controller's lifecycle phase.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateActive        State = "active"
	StatePaused        State = "paused"
	StateDisposed      State = "disposed"
)

// Config holds the interval between scheduled probes and the active target
// list.
type Config struct {
	Interval time.Duration
	Targets  []probe.Target
}

// Validate rejects configurations that must never be applied.
func (c Config) Validate() error {
	if c.Interval < MinInterval {
		return fmt.Errorf("%w: interval %s below minimum %s", ErrInvalidConfiguration, c.Interval, MinInterval)
	}
	for i, tgt := range c.Targets {
		if err := tgt.Validate(); err != nil {
			return fmt.Errorf("%w: target %d: %v", ErrInvalidConfiguration, i, err)
		}
	}
	return nil
}

// Dependencies allow overrides for HTTP transport, logging, telemetry, and
// the clock.
type Dependencies struct {
	HTTPClient *http.Client
	Logger     *log.Logger
	Metrics    metrics.ProbeRecorder
	Drops      broadcast.DropRecorder
	Now        func() time.Time
}

// Controller is the public surface of the reachability monitor: a state
// machine over initialize, pause, resume, reconfigure, and dispose. It owns
// the scheduled monitor and swaps it atomically on reconfiguration while the
// broadcaster and its subscribers stay untouched. A single mutex guards all
// state mutation and the generation check, so results from a superseded
// monitor are discarded on arrival.
type Controller struct {
	client  *http.Client
	logger  *log.Logger
	metrics metrics.ProbeRecorder
	drops   broadcast.DropRecorder
	now     func() time.Time

	mu          sync.Mutex
	state       State
	cfg         Config
	generation  uint64
	broadcaster *broadcast.Broadcaster
	monitor     *monitor.Monitor
}

// New builds an uninitialized controller. The controller performs no
// network activity until Initialize.
func New(deps Dependencies) *Controller {
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	rec := deps.Metrics
	if rec == nil {
		rec = metrics.NoopProbeRecorder{}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		client:  client,
		logger:  logger,
		metrics: rec,
		drops:   deps.Drops,
		now:     now,
		state:   StateUninitialized,
	}
}

// Initialize validates the configuration, constructs the monitor and
// broadcaster, runs one synchronous seeding check so CurrentStatus is known
// before it returns, and starts the scheduled timer. Calling it again while
// initialized is a no-op that returns success. After Dispose it constructs a
// fresh instance.
func (c *Controller) Initialize(ctx context.Context, cfg Config) error {
	c.mu.Lock()
	if c.state == StateActive || c.state == StatePaused {
		c.mu.Unlock()
		return nil
	}
	if err := cfg.Validate(); err != nil {
		c.mu.Unlock()
		return err
	}
	mon, err := c.buildMonitorLocked(cfg)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	opts := []broadcast.Option{broadcast.WithNow(c.now)}
	if c.drops != nil {
		opts = append(opts, broadcast.WithDropRecorder(c.drops))
	}
	c.cfg = Config{Interval: cfg.Interval, Targets: probe.CloneTargets(cfg.Targets)}
	c.broadcaster = broadcast.New(opts...)
	c.monitor = mon
	c.state = StateActive
	c.mu.Unlock()

	mon.CheckNow(ctx)
	c.startIfCurrent(mon)
	c.logger.Printf("monitor initialized (interval=%s targets=%d generation=%d)", cfg.Interval, len(cfg.Targets), mon.Generation())
	return nil
}

// HasInternetConnection performs a genuine re-check, bypassing the schedule,
// and returns the fresh outcome. The result also flows through the
// broadcaster like any scheduled one.
func (c *Controller) HasInternetConnection(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.state == StateUninitialized || c.state == StateDisposed {
		c.mu.Unlock()
		return false, ErrNotInitialized
	}
	mon := c.monitor
	c.mu.Unlock()

	result := mon.CheckNow(ctx)
	return result.Reachable, nil
}

// CurrentStatus reads the last known status without probing. It reports
// StatusUnknown before the first probe completes and after disposal.
func (c *Controller) CurrentStatus() types.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateUninitialized || c.state == StateDisposed || c.broadcaster == nil {
		return types.StatusUnknown
	}
	status, ok := c.broadcaster.Last()
	if !ok {
		return types.StatusUnknown
	}
	return status
}

// IsConnected reports whether the last known status is connected.
func (c *Controller) IsConnected() bool {
	return c.CurrentStatus().Connected()
}

// Subscribe attaches a new live subscriber to the status channel. New
// subscribers receive only statuses published after they subscribe.
func (c *Controller) Subscribe() (*broadcast.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateUninitialized || c.state == StateDisposed {
		return nil, ErrNotInitialized
	}
	return c.broadcaster.Subscribe(), nil
}

// Pause stops the scheduled timer, leaving the broadcaster and last known
// status untouched. It is a no-op unless the controller is active.
func (c *Controller) Pause() error {
	c.mu.Lock()
	switch c.state {
	case StateDisposed:
		c.mu.Unlock()
		return ErrNotInitialized
	case StateActive:
	default:
		c.mu.Unlock()
		return nil
	}
	mon := c.monitor
	c.state = StatePaused
	c.mu.Unlock()

	mon.Stop()
	c.logger.Printf("monitor paused")
	return nil
}

// Resume restarts the timer and immediately triggers one check so staleness
// accumulated while paused is corrected without waiting for the next tick.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateDisposed, StateUninitialized:
		c.mu.Unlock()
		return ErrNotInitialized
	case StatePaused:
	default:
		c.mu.Unlock()
		return nil
	}
	mon := c.monitor
	c.state = StateActive
	c.mu.Unlock()

	mon.CheckNow(ctx)
	c.startIfCurrent(mon)
	c.logger.Printf("monitor resumed")
	return nil
}

// UpdateInterval swaps in a new scheduled monitor running at the given
// interval. A rejected interval leaves the previous one governing.
func (c *Controller) UpdateInterval(ctx context.Context, interval time.Duration) error {
	return c.reconfigure(ctx, func(cfg Config) Config {
		cfg.Interval = interval
		return cfg
	})
}

// UpdateTargets swaps the active target list as a unit. Existing
// subscribers are undisturbed; results from the superseded monitor are
// discarded on arrival.
func (c *Controller) UpdateTargets(ctx context.Context, targets []probe.Target) error {
	return c.reconfigure(ctx, func(cfg Config) Config {
		cfg.Targets = probe.CloneTargets(targets)
		return cfg
	})
}

// Dispose stops any running timer, closes the broadcast channel, and
// transitions to disposed. Only Initialize is usable afterwards.
func (c *Controller) Dispose() error {
	c.mu.Lock()
	switch c.state {
	case StateUninitialized:
		c.mu.Unlock()
		return ErrNotInitialized
	case StateDisposed:
		c.mu.Unlock()
		return nil
	}
	c.generation++
	mon := c.monitor
	bcast := c.broadcaster
	c.monitor = nil
	c.state = StateDisposed
	c.mu.Unlock()

	if mon != nil {
		mon.Stop()
	}
	if bcast != nil {
		bcast.Close()
	}
	c.logger.Printf("monitor disposed")
	return nil
}

// State reports the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Configuration returns a copy of the applied configuration.
func (c *Controller) Configuration() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Config{Interval: c.cfg.Interval, Targets: probe.CloneTargets(c.cfg.Targets)}
}

func (c *Controller) reconfigure(ctx context.Context, mutate func(Config) Config) error {
	c.mu.Lock()
	if c.state != StateActive && c.state != StatePaused {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	next := mutate(Config{Interval: c.cfg.Interval, Targets: probe.CloneTargets(c.cfg.Targets)})
	if err := next.Validate(); err != nil {
		c.mu.Unlock()
		return err
	}
	mon, err := c.buildMonitorLocked(next)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	old := c.monitor
	c.cfg = next
	c.monitor = mon
	wasActive := c.state == StateActive
	c.mu.Unlock()

	old.Stop()
	if wasActive {
		mon.CheckNow(ctx)
		c.startIfCurrent(mon)
	}
	c.logger.Printf("monitor reconfigured (interval=%s targets=%d generation=%d)", next.Interval, len(next.Targets), mon.Generation())
	return nil
}

// buildMonitorLocked constructs the next monitor and advances the generation
// counter. On error nothing changes, so a failed reconfiguration cannot
// partially apply.
func (c *Controller) buildMonitorLocked(cfg Config) (*monitor.Monitor, error) {
	executor, err := probe.NewExecutor(cfg.Targets, probe.Dependencies{
		HTTPClient: c.client,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	c.generation++
	return monitor.New(cfg.Interval, executor, c.generation, c.handleResult,
		monitor.WithNow(c.now), monitor.WithLogger(c.logger)), nil
}

// startIfCurrent starts the monitor's timer unless the controller moved on
// (paused, reconfigured, or disposed) while the seeding check ran.
func (c *Controller) startIfCurrent(mon *monitor.Monitor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateActive && c.monitor == mon {
		mon.Start(context.Background())
	}
}

// handleResult is the single funnel for probe outcomes, scheduled or
// on-demand. The generation check and the publish happen under the same
// lock, so a stale result can never be observed after a newer one.
func (c *Controller) handleResult(result monitor.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive && c.state != StatePaused {
		return
	}
	if result.Generation != c.generation {
		return
	}
	if result.Err != nil {
		c.metrics.IncProbeFaults()
		c.broadcaster.PublishError(result.Err)
		return
	}
	c.metrics.ObserveProbe(result.Reachable, result.CheckedAt)
	status := types.StatusFor(result.Reachable)
	changed := c.broadcaster.Publish(status)
	c.metrics.ObserveStatus(string(status), changed)
}
