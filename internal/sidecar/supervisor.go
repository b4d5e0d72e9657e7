package sidecar

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/orangehq/orange-agent/internal/config"
)

// State is the supervisor's view of the planning-service process.
type State string

const (
	StateStopped    State = "stopped"
	StateStarting   State = "starting"
	StateHealthy    State = "healthy"
	StateTerminated State = "terminated"
	StateRestarting State = "restarting"
)

type eventKind int

const (
	evLaunchOK eventKind = iota
	evLaunchFailed
	evHealthy
	evUnhealthy
	evExited
	evRestartTimer
)

// event is an internal state-machine input. Every event carries the launch
// generation it belongs to; events from a superseded process are dropped, so
// a stale health probe or the exit of a deliberately terminated handle can
// never drive a transition.
type event struct {
	kind   eventKind
	gen    int
	err    error
	handle Handle
}

type command int

const (
	cmdStart command = iota
	cmdStop
)

// Supervisor owns the lifecycle of the external planning-service process:
// launch, health verification, bounded crash restart, and intentional stop.
// All state transitions happen on a single run-loop goroutine fed by an
// event channel; nothing mutates the state machine from callback context.
// Every failure path degrades to "planning service unavailable" rather than
// crashing the host process.
type Supervisor struct {
	cfg      config.SidecarConfig
	logger   *zap.Logger
	launcher Launcher
	prober   HealthProber

	commands chan command
	events   chan event
	done     chan struct{}

	loopOnce  sync.Once
	stopOnce  sync.Once
	cancelRun context.CancelFunc

	// mu guards the externally visible snapshot only; the run loop is the
	// sole writer.
	mu              sync.RWMutex
	state           State
	restartAttempts int
	stopping        bool
	unavailable     bool
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLauncher replaces the process launcher, primarily for tests.
func WithLauncher(l Launcher) Option {
	return func(s *Supervisor) { s.launcher = l }
}

// WithProber replaces the health prober, primarily for tests.
func WithProber(p HealthProber) Option {
	return func(s *Supervisor) { s.prober = p }
}

// NewSupervisor creates a supervisor for the configured sidecar process.
func NewSupervisor(cfg config.SidecarConfig, logger *zap.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:      cfg,
		logger:   logger.Named("sidecar_supervisor"),
		commands: make(chan command),
		events:   make(chan event, 8),
		done:     make(chan struct{}),
		state:    StateStopped,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.launcher == nil {
		s.launcher = NewExecLauncher(cfg, logger)
	}
	if s.prober == nil {
		s.prober = NewHTTPProber(cfg.BaseURL(), cfg.HealthProbeTimeout)
	}
	return s
}

// StartIfNeeded launches the sidecar unless it is already running or already
// starting. A fresh start resets the restart counter. Safe to call from any
// goroutine, any number of times.
func (s *Supervisor) StartIfNeeded() {
	s.ensureLoop()
	select {
	case s.commands <- cmdStart:
	case <-s.done:
	}
}

// Stop marks the shutdown as intentional, cancels any in-flight health wait,
// terminates the process, and suppresses all further automatic restarts.
// Idempotent and safe to call during startup.
func (s *Supervisor) Stop() {
	s.ensureLoop()
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopping = true
		s.mu.Unlock()
		select {
		case s.commands <- cmdStop:
		case <-s.done:
		}
	})
	<-s.done
}

// State returns the current process state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// RestartAttempts returns the current value of the bounded restart counter.
func (s *Supervisor) RestartAttempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restartAttempts
}

// Unavailable reports whether the retry budget is exhausted. Once true, the
// session layer must treat planning as permanently unavailable until an
// explicit StartIfNeeded.
func (s *Supervisor) Unavailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unavailable
}

func (s *Supervisor) ensureLoop() {
	s.loopOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancelRun = cancel
		go s.run(ctx)
	})
}

// run is the single-writer state machine loop.
func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)
	defer s.cancelRun()

	var (
		gen          int
		handle       Handle
		healthCancel context.CancelFunc
	)

	cleanup := func() {
		if healthCancel != nil {
			healthCancel()
			healthCancel = nil
		}
		if handle != nil {
			handle.Terminate()
			handle = nil
		}
	}

	launch := func() {
		gen++
		g := gen
		s.setState(StateStarting)
		go func() {
			h, err := s.launcher.Launch(ctx)
			if err != nil {
				s.send(ctx, event{kind: evLaunchFailed, gen: g, err: err})
				return
			}
			s.send(ctx, event{kind: evLaunchOK, gen: g, handle: h})
		}()
	}

	// scheduleRestart consumes one unit of the retry budget, invalidates the
	// current generation so stale events are dropped, and fires the restart
	// timer. Once the budget is exhausted it surfaces the fatal diagnostic
	// and leaves the machine in terminated.
	scheduleRestart := func(reason string) {
		if s.RestartAttempts() >= s.cfg.MaxRestartAttempts {
			s.setUnavailable()
			s.setState(StateTerminated)
			s.logger.Error("Sidecar restart limit reached, planning service unavailable",
				zap.String("reason", reason),
				zap.Int("attempts", s.RestartAttempts()))
			// Invalidate the generation so the exit of the process we are
			// about to terminate does not feed back into the machine.
			gen++
			cleanup()
			return
		}
		attempts := s.incAttempts()
		s.logger.Warn("Restarting sidecar",
			zap.String("reason", reason),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", s.cfg.MaxRestartAttempts))

		cleanup()
		s.setState(StateRestarting)
		gen++
		g := gen
		go func() {
			select {
			case <-time.After(s.cfg.RestartDelay):
				s.send(ctx, event{kind: evRestartTimer, gen: g})
			case <-ctx.Done():
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			cleanup()
			s.setState(StateStopped)
			return

		case cmd := <-s.commands:
			switch cmd {
			case cmdStart:
				if s.isStopping() {
					continue
				}
				switch s.State() {
				case StateStarting, StateHealthy, StateRestarting:
					// Already running or on its way up.
					continue
				}
				s.resetAttempts()
				s.clearUnavailable()
				launch()
			case cmdStop:
				cleanup()
				s.setState(StateStopped)
				s.logger.Info("Sidecar stopped")
				return
			}

		case ev := <-s.events:
			if ev.gen != gen {
				continue
			}
			switch ev.kind {
			case evLaunchOK:
				handle = ev.handle
				g := gen
				h := ev.handle
				go func() {
					err := h.Wait()
					s.send(ctx, event{kind: evExited, gen: g, err: err})
				}()
				hctx, hcancel := context.WithCancel(ctx)
				healthCancel = hcancel
				go s.awaitHealthy(hctx, g)

			case evLaunchFailed:
				s.logger.Error("Failed to start sidecar", zap.Error(ev.err))
				scheduleRestart("launch_failed")

			case evHealthy:
				s.resetAttempts()
				s.setState(StateHealthy)
				s.logger.Info("Sidecar health check passed")

			case evUnhealthy:
				s.logger.Error("Sidecar health check failed")
				scheduleRestart("health_check_failed")

			case evExited:
				s.logger.Error("Sidecar terminated", zap.Error(ev.err))
				if healthCancel != nil {
					healthCancel()
					healthCancel = nil
				}
				handle = nil
				s.setState(StateTerminated)
				scheduleRestart("terminated")

			case evRestartTimer:
				launch()
			}
		}
	}
}

// awaitHealthy polls the liveness endpoint at the configured interval until
// it answers or the overall budget elapses.
func (s *Supervisor) awaitHealthy(ctx context.Context, gen int) {
	limiter := rate.NewLimiter(rate.Every(s.cfg.HealthInterval), 1)
	deadline := time.Now().Add(s.cfg.HealthTimeout)

	for time.Now().Before(deadline) {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		probeCtx, cancel := context.WithTimeout(ctx, s.cfg.HealthProbeTimeout)
		err := s.prober.Probe(probeCtx)
		cancel()
		if err == nil {
			s.send(ctx, event{kind: evHealthy, gen: gen})
			return
		}
	}
	s.send(ctx, event{kind: evUnhealthy, gen: gen})
}

func (s *Supervisor) send(ctx context.Context, ev event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// -- snapshot helpers (run loop is the only writer) --

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Supervisor) incAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restartAttempts++
	return s.restartAttempts
}

func (s *Supervisor) resetAttempts() {
	s.mu.Lock()
	s.restartAttempts = 0
	s.mu.Unlock()
}

func (s *Supervisor) setUnavailable() {
	s.mu.Lock()
	s.unavailable = true
	s.mu.Unlock()
}

func (s *Supervisor) clearUnavailable() {
	s.mu.Lock()
	s.unavailable = false
	s.mu.Unlock()
}

func (s *Supervisor) isStopping() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopping
}
