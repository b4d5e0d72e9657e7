package sidecar

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/orangehq/orange-agent/internal/config"
)

// Launcher starts one planning-service process. Split out as an interface so
// the supervisor's state machine can be tested without spawning anything.
type Launcher interface {
	Launch(ctx context.Context) (Handle, error)
}

// Handle is a running sidecar process.
type Handle interface {
	// Wait blocks until the process exits and returns its exit error, if any.
	Wait() error
	// Terminate kills the process. Safe to call more than once.
	Terminate()
}

// ExecLauncher launches the planning service with a fixed command, arguments,
// and working directory, capturing both output streams line by line into the
// logger.
type ExecLauncher struct {
	cfg    config.SidecarConfig
	logger *zap.Logger
}

var _ Launcher = (*ExecLauncher)(nil)

// NewExecLauncher builds the production launcher.
func NewExecLauncher(cfg config.SidecarConfig, logger *zap.Logger) *ExecLauncher {
	return &ExecLauncher{cfg: cfg, logger: logger.Named("sidecar_process")}
}

// Launch starts the process and wires line-oriented log capture for stdout
// and stderr. The returned handle's Wait also waits for both readers to
// drain, so no diagnostic line is lost on exit.
func (l *ExecLauncher) Launch(ctx context.Context) (Handle, error) {
	cmd := exec.CommandContext(ctx, l.cfg.Command, l.cfg.Args...)
	cmd.Dir = l.cfg.WorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch %s: %w", l.cfg.Command, err)
	}
	l.logger.Info("Sidecar process started",
		zap.Int("pid", cmd.Process.Pid),
		zap.String("work_dir", l.cfg.WorkDir))

	var readers errgroup.Group
	readers.Go(func() error { l.captureLines(stdout, "stdout"); return nil })
	readers.Go(func() error { l.captureLines(stderr, "stderr"); return nil })

	return &execHandle{cmd: cmd, readers: &readers}, nil
}

func (l *ExecLauncher) captureLines(r interface{ Read([]byte) (int, error) }, stream string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		l.logger.Info(line, zap.String("stream", stream))
	}
}

type execHandle struct {
	cmd     *exec.Cmd
	readers *errgroup.Group
}

func (h *execHandle) Wait() error {
	// Pipe readers must finish before cmd.Wait closes the pipes.
	_ = h.readers.Wait()
	return h.cmd.Wait()
}

func (h *execHandle) Terminate() {
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
}
