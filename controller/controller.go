// Package controller runs the adaptive rate-limit loop: collect activity,
// step the hysteresis machine and, on a transition, push the matching speed
// limits to every enabled qBittorrent target.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/s0up4200/seedbrake/config"
	"github.com/s0up4200/seedbrake/metrics"
	"github.com/s0up4200/seedbrake/monitor"
	"github.com/s0up4200/seedbrake/qbittorrent"
	"github.com/s0up4200/seedbrake/store"
)

// ErrUnknownTarget is returned when a named target is not configured.
var ErrUnknownTarget = errors.New("unknown target")

// Collector produces one activity snapshot per cycle.
type Collector interface {
	Collect(ctx context.Context) monitor.Snapshot
}

// Actuator changes and inspects target speed limits.
type Actuator interface {
	ApplyLimits(ctx context.Context, t qbittorrent.Target, limits qbittorrent.Limits) error
	ResetSession(t qbittorrent.Target)
	Probe(ctx context.Context, t qbittorrent.Target) qbittorrent.ProbeResult
	Status(ctx context.Context, t qbittorrent.Target) (*qbittorrent.TransferStatus, error)
}

// ServiceStore is the persisted service control state.
type ServiceStore interface {
	Snapshot() (map[string]bool, error)
	SetEnabled(id string, enabled bool) error
	SetMany(flags map[string]bool) error
}

// FailureLedger records actuations that could not be completed.
type FailureLedger interface {
	Append(rec store.FailureRecord) (store.FailureRecord, error)
	List(limit int) ([]store.FailureRecord, error)
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Collector Collector
	Actuator  Actuator
	Services  ServiceStore
	Failures  FailureLedger
}

// State is a point-in-time copy of the controller's state.
type State struct {
	Running         bool                   `json:"running"`
	Mode            Mode                   `json:"mode"`
	AggregateMetric float64                `json:"aggregate_metric"`
	OnTimer         time.Duration          `json:"-"`
	OffTimer        time.Duration          `json:"-"`
	LastActionTime  *time.Time             `json:"last_action_time"`
	LastCycleTime   *time.Time             `json:"last_cycle_time"`
	LastError       string                 `json:"last_error,omitempty"`
	Cycles          uint64                 `json:"cycles"`
	Sources         []monitor.SourceResult `json:"sources"`
}

// MarshalJSON reports the timers in seconds.
func (s State) MarshalJSON() ([]byte, error) {
	type plain State
	return json.Marshal(struct {
		plain
		OnTimer  float64 `json:"on_timer"`
		OffTimer float64 `json:"off_timer"`
	}{
		plain:    plain(s),
		OnTimer:  s.OnTimer.Seconds(),
		OffTimer: s.OffTimer.Seconds(),
	})
}

// Controller owns the control loop and its state.
type Controller struct {
	deps    Deps
	timing  Timing
	limited qbittorrent.Limits
	normal  qbittorrent.Limits
	targets []config.TargetConfig

	retryInterval   time.Duration
	restoreAttempts int
	cooldown        time.Duration

	logger zerolog.Logger

	// cycleMu serializes cycles and force restores.
	cycleMu sync.Mutex

	mu       sync.Mutex
	machine  Machine
	state    State
	stopCh   chan struct{}
	loopDone chan struct{}

	now   func() time.Time
	pause func(ctx context.Context, d time.Duration) error
	wait  func(stop <-chan struct{}, d time.Duration) bool
}

// New creates a stopped controller in Normal mode.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Controller {
	cc := cfg.Controller

	attempts := cc.RestoreAttempts
	if attempts < 1 {
		attempts = 1
	}
	cooldown := cc.ErrorCooldown
	if cooldown <= 0 {
		cooldown = 5 * time.Second
	}

	c := &Controller{
		deps: deps,
		timing: Timing{
			Poll:     cc.PollInterval,
			OnDelay:  cc.LimitOnDelay,
			OffDelay: cc.LimitOffDelay,
		},
		limited:         qbittorrent.LimitsFromConfig(cc.Limited),
		normal:          qbittorrent.LimitsFromConfig(cc.Normal),
		targets:         cfg.Targets,
		retryInterval:   cc.RetryInterval,
		restoreAttempts: attempts,
		cooldown:        cooldown,
		logger:          logger.With().Str("component", "controller").Logger(),
		machine:         NewMachine(),
		now:             time.Now,
		pause:           sleepCtx,
		wait:            waitStop,
	}
	c.state.Mode = ModeNormal
	return c
}

// State returns a copy of the last computed state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.state
	s.Mode = c.machine.Mode
	s.OnTimer = c.machine.OnTimer
	s.OffTimer = c.machine.OffTimer
	s.Sources = append([]monitor.SourceResult(nil), c.state.Sources...)
	return s
}

// Start launches the control loop. It is a no-op returning false when the
// loop is already running.
func (c *Controller) Start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Running {
		return false
	}
	c.state.Running = true
	c.stopCh = make(chan struct{})
	c.loopDone = make(chan struct{})

	go c.loop(c.stopCh, c.loopDone)

	c.logger.Info().
		Dur("poll_interval", c.timing.Poll).
		Dur("on_delay", c.timing.OnDelay).
		Dur("off_delay", c.timing.OffDelay).
		Int("targets", len(c.enabledTargets())).
		Msg("Controller started")
	return true
}

// Stop clears the running flag and wakes the loop. A cycle in progress runs
// to completion. Returns false when the loop was not running.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Running {
		return false
	}
	c.state.Running = false
	close(c.stopCh)

	c.logger.Info().Msg("Controller stopped")
	return true
}

// Shutdown stops the loop and waits for the current cycle to finish or ctx
// to expire.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.Stop()

	c.mu.Lock()
	done := c.loopDone
	c.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	// Cycles are not cancelled by Stop; in-flight requests finish on their own timeouts.
	ctx := context.Background()

	for {
		select {
		case <-stop:
			return
		default:
		}

		delay := c.timing.Poll
		if err := c.safeCycle(ctx); err != nil {
			metrics.RecordCycleError()
			c.logger.Error().Err(err).Dur("cooldown", c.cooldown).Msg("Control cycle failed")
			delay = c.cooldown
		}

		if !c.wait(stop, delay) {
			return
		}
	}
}

// safeCycle runs one cycle, converting a panic into an error.
func (c *Controller) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in control cycle: %v", r)
			c.logger.Error().Str("stack", string(debug.Stack())).Msg("Recovered from panic")
		}
		c.mu.Lock()
		if err != nil {
			c.state.LastError = err.Error()
		}
		c.mu.Unlock()
	}()

	return c.RunCycle(ctx)
}

// RunCycle performs one collect, aggregate, decide and actuate pass. It only
// fails when the pass itself could not run; actuation failures end up in the
// failure ledger and the state's LastError.
func (c *Controller) RunCycle(ctx context.Context) error {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snap := c.deps.Collector.Collect(ctx)

	c.mu.Lock()
	changed := c.machine.Step(snap.Metric, c.timing)
	m := c.machine
	now := c.now()
	c.state.AggregateMetric = snap.Metric
	c.state.Sources = snap.Sources
	c.state.LastCycleTime = &now
	c.state.LastError = ""
	c.state.Cycles++
	c.mu.Unlock()

	metrics.RecordCycle(snap.Metric, m.Mode == ModeLimited, m.OnTimer.Seconds(), m.OffTimer.Seconds())

	log := c.logger.Debug()
	if failed := snap.Failed(); len(failed) > 0 {
		log = c.logger.Warn().Strs("failed_sources", failed)
	}
	log.Float64("metric", snap.Metric).
		Str("mode", string(m.Mode)).
		Dur("on_timer", m.OnTimer).
		Dur("off_timer", m.OffTimer).
		Msg("Cycle complete")

	if !changed {
		return nil
	}

	metrics.RecordTransition(string(m.Mode))
	c.logger.Info().
		Float64("metric", snap.Metric).
		Str("mode", string(m.Mode)).
		Msg("Mode transition")

	c.markAction()

	// Actuation failures are already retried and recorded; they do not
	// undo the transition or put the loop into cooldown.
	var err error
	if m.Mode == ModeLimited {
		err = c.applyLimited(ctx)
	} else {
		err = c.restoreAll(ctx, c.enabledTargets(), store.ActionRestore)
	}
	if err != nil {
		c.mu.Lock()
		c.state.LastError = err.Error()
		c.mu.Unlock()
	}
	return nil
}

// ForceRestore applies the normal limits immediately, bypassing the
// hysteresis delay. An empty name restores every enabled target and returns
// the machine to Normal with both timers cleared. A named target is restored
// on its own; the mode and timers are left alone so the other targets are
// still restored by the next off transition.
func (c *Controller) ForceRestore(ctx context.Context, name string) error {
	targets := c.enabledTargets()
	if name != "" {
		t, ok := c.target(name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTarget, name)
		}
		targets = []config.TargetConfig{t}
	}

	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	if name == "" {
		c.mu.Lock()
		c.machine.Reset()
		c.mu.Unlock()
	}

	c.logger.Info().Str("target", name).Msg("Forced restore requested")
	c.markAction()
	return c.restoreAll(ctx, targets, store.ActionForceRestore)
}

// ServiceControlState returns the persisted service flags.
func (c *Controller) ServiceControlState() (map[string]bool, error) {
	return c.deps.Services.Snapshot()
}

// SetServiceEnabled enables or disables a service identifier.
func (c *Controller) SetServiceEnabled(id string, enabled bool) error {
	if err := c.deps.Services.SetEnabled(id, enabled); err != nil {
		return err
	}
	c.logger.Info().Str("service", id).Bool("enabled", enabled).Msg("Service control updated")
	return nil
}

// SetServicesEnabled applies several flags in one write.
func (c *Controller) SetServicesEnabled(flags map[string]bool) error {
	if err := c.deps.Services.SetMany(flags); err != nil {
		return err
	}
	c.logger.Info().Int("services", len(flags)).Msg("Service control updated")
	return nil
}

// FailureRecords returns up to limit failure records, newest first.
func (c *Controller) FailureRecords(limit int) ([]store.FailureRecord, error) {
	return c.deps.Failures.List(limit)
}

// Targets returns the configured targets.
func (c *Controller) Targets() []config.TargetConfig {
	return append([]config.TargetConfig(nil), c.targets...)
}

// TargetStatus queries a configured target's transfer status.
func (c *Controller) TargetStatus(ctx context.Context, name string) (*qbittorrent.TransferStatus, error) {
	t, ok := c.target(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, name)
	}
	return c.deps.Actuator.Status(ctx, qbittorrent.TargetFromConfig(t))
}

func (c *Controller) markAction() {
	now := c.now()
	c.mu.Lock()
	c.state.LastActionTime = &now
	c.mu.Unlock()
}

func (c *Controller) enabledTargets() []config.TargetConfig {
	var out []config.TargetConfig
	for _, t := range c.targets {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out
}

func (c *Controller) target(name string) (config.TargetConfig, bool) {
	for _, t := range c.targets {
		if t.Name == name {
			return t, true
		}
	}
	return config.TargetConfig{}, false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// waitStop sleeps for d and reports false if stop was closed first.
func waitStop(stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
