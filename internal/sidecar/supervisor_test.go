package sidecar

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orangehq/orange-agent/internal/config"
)

type fakeHandle struct {
	once sync.Once
	exit chan struct{}
	err  error
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{exit: make(chan struct{})}
}

func (h *fakeHandle) crash(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.exit)
	})
}

func (h *fakeHandle) Wait() error {
	<-h.exit
	return h.err
}

func (h *fakeHandle) Terminate() {
	h.crash(errors.New("killed"))
}

// fakeLauncher records every launch and optionally crashes each process the
// moment it starts.
type fakeLauncher struct {
	mu        sync.Mutex
	handles   []*fakeHandle
	instaFail bool
}

var _ Launcher = (*fakeLauncher)(nil)

func (l *fakeLauncher) Launch(_ context.Context) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := newFakeHandle()
	l.handles = append(l.handles, h)
	if l.instaFail {
		h.crash(errors.New("exit status 1"))
	}
	return h, nil
}

func (l *fakeLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handles)
}

func (l *fakeLauncher) latest() *fakeHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.handles) == 0 {
		return nil
	}
	return l.handles[len(l.handles)-1]
}

type fakeProber struct {
	healthy atomic.Bool
}

var _ HealthProber = (*fakeProber)(nil)

func (p *fakeProber) Probe(_ context.Context) error {
	if p.healthy.Load() {
		return nil
	}
	return errors.New("connection refused")
}

func testConfig() config.SidecarConfig {
	return config.SidecarConfig{
		Host:               "127.0.0.1",
		Port:               7789,
		Command:            "true",
		MaxRestartAttempts: 3,
		RestartDelay:       5 * time.Millisecond,
		HealthTimeout:      5 * time.Second,
		HealthInterval:     5 * time.Millisecond,
		HealthProbeTimeout: 50 * time.Millisecond,
	}
}

func newTestSupervisor(t *testing.T, cfg config.SidecarConfig, launcher Launcher, prober HealthProber) *Supervisor {
	t.Helper()
	s := NewSupervisor(cfg, zap.NewNop(), WithLauncher(launcher), WithProber(prober))
	t.Cleanup(s.Stop)
	return s
}

func TestSupervisorBecomesHealthy(t *testing.T) {
	launcher := &fakeLauncher{}
	prober := &fakeProber{}
	prober.healthy.Store(true)
	s := newTestSupervisor(t, testConfig(), launcher, prober)

	s.StartIfNeeded()

	require.Eventually(t, func() bool { return s.State() == StateHealthy },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, launcher.launches())
	assert.Equal(t, 0, s.RestartAttempts())
	assert.False(t, s.Unavailable())
}

func TestSupervisorStartIfNeededIsIdempotent(t *testing.T) {
	launcher := &fakeLauncher{}
	prober := &fakeProber{}
	prober.healthy.Store(true)
	s := newTestSupervisor(t, testConfig(), launcher, prober)

	s.StartIfNeeded()
	require.Eventually(t, func() bool { return s.State() == StateHealthy },
		2*time.Second, 5*time.Millisecond)

	s.StartIfNeeded()
	s.StartIfNeeded()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, launcher.launches())
}

func TestSupervisorBoundedRestartsAfterCrashes(t *testing.T) {
	// Every launched process exits immediately, so restarts come only from
	// crashes, never from the health budget.
	launcher := &fakeLauncher{instaFail: true}
	prober := &fakeProber{}
	s := newTestSupervisor(t, testConfig(), launcher, prober)

	s.StartIfNeeded()

	require.Eventually(t, func() bool { return s.Unavailable() },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateTerminated, s.State())
	assert.Equal(t, 3, s.RestartAttempts())

	// One initial launch plus three restart attempts, then nothing more.
	assert.Equal(t, 4, launcher.launches())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 4, launcher.launches())
}

func TestSupervisorRestartsOnHealthFailure(t *testing.T) {
	cfg := testConfig()
	cfg.HealthTimeout = 30 * time.Millisecond
	cfg.MaxRestartAttempts = 2
	launcher := &fakeLauncher{}
	prober := &fakeProber{} // never healthy
	s := newTestSupervisor(t, cfg, launcher, prober)

	s.StartIfNeeded()

	require.Eventually(t, func() bool { return s.Unavailable() },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, launcher.launches())
}

func TestSupervisorCounterResetsAfterRecovery(t *testing.T) {
	launcher := &fakeLauncher{}
	prober := &fakeProber{}
	prober.healthy.Store(true)
	s := newTestSupervisor(t, testConfig(), launcher, prober)

	s.StartIfNeeded()
	require.Eventually(t, func() bool { return s.State() == StateHealthy },
		2*time.Second, 5*time.Millisecond)

	launcher.latest().crash(errors.New("segfault"))

	require.Eventually(t, func() bool {
		return launcher.launches() == 2 && s.State() == StateHealthy
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, s.RestartAttempts(), "recovery must clear the budget")
}

func TestSupervisorStopTerminatesAndSuppressesRestart(t *testing.T) {
	launcher := &fakeLauncher{}
	prober := &fakeProber{}
	prober.healthy.Store(true)
	s := newTestSupervisor(t, testConfig(), launcher, prober)

	s.StartIfNeeded()
	require.Eventually(t, func() bool { return s.State() == StateHealthy },
		2*time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop() // idempotent

	assert.Equal(t, StateStopped, s.State())
	select {
	case <-launcher.latest().exit:
	default:
		t.Fatal("process was not terminated on stop")
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, launcher.launches(), "intentional stop must not restart")
}

func TestSupervisorStopBeforeStart(t *testing.T) {
	launcher := &fakeLauncher{}
	s := NewSupervisor(testConfig(), zap.NewNop(), WithLauncher(launcher), WithProber(&fakeProber{}))

	s.Stop()

	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, 0, launcher.launches())

	// StartIfNeeded after a final stop is a no-op rather than a panic.
	s.StartIfNeeded()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, launcher.launches())
}
