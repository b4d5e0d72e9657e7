package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// ScriptRunner executes one automation script against the live desktop. It
// is the executor's single open-ended capability, kept behind its own narrow
// interface so it can be sandboxed, mocked, or disabled without touching the
// rest of the dispatch.
type ScriptRunner interface {
	Run(ctx context.Context, script string) error
}

// AppLauncher launches an application resolved from its platform bundle id.
// ErrAppNotResolved distinguishes "no such app" from a failed launch.
type AppLauncher interface {
	LaunchByBundleID(ctx context.Context, bundleID string) error
}

// ErrAppNotResolved means the bundle id matched no installed application.
var ErrAppNotResolved = errors.New("application not resolved")

// KeystrokeSynthesizer posts one key chord to the OS input stream.
type KeystrokeSynthesizer interface {
	Press(ctx context.Context, chord KeyChord) error
}

// OsascriptRunner runs scripts through the system `osascript` binary.
type OsascriptRunner struct {
	logger *zap.Logger
}

var _ ScriptRunner = (*OsascriptRunner)(nil)

// NewOsascriptRunner builds the production script runner.
func NewOsascriptRunner(logger *zap.Logger) *OsascriptRunner {
	return &OsascriptRunner{logger: logger.Named("script_runner")}
}

// Run executes the script, surfacing any interpreter output as the failure
// message. Output of successful runs is discarded.
func (r *OsascriptRunner) Run(ctx context.Context, script string) error {
	if script == "" {
		return actionErrorf(ErrCodeInvalidPayload, "automation script payload is empty")
	}
	out, err := exec.CommandContext(ctx, "osascript", "-e", script).CombinedOutput()
	if err != nil {
		message := strings.TrimSpace(string(out))
		if message == "" {
			message = err.Error()
		}
		r.logger.Error("Automation script failed", zap.String("output", message))
		return wrapActionError(ErrCodeScriptFailed, "script execution failed: "+message, err)
	}
	return nil
}

// OpenCommandLauncher launches applications with the platform `open` binary.
type OpenCommandLauncher struct {
	logger *zap.Logger
}

var _ AppLauncher = (*OpenCommandLauncher)(nil)

// NewOpenCommandLauncher builds the production app launcher.
func NewOpenCommandLauncher(logger *zap.Logger) *OpenCommandLauncher {
	return &OpenCommandLauncher{logger: logger.Named("app_launcher")}
}

// LaunchByBundleID opens the app registered for bundleID and waits for the
// launch call to complete. A "can't find application" diagnostic maps to
// ErrAppNotResolved.
func (l *OpenCommandLauncher) LaunchByBundleID(ctx context.Context, bundleID string) error {
	out, err := exec.CommandContext(ctx, "open", "-b", bundleID).CombinedOutput()
	if err == nil {
		l.logger.Info("Application launched", zap.String("bundle_id", bundleID))
		return nil
	}
	message := strings.TrimSpace(string(out))
	if strings.Contains(strings.ToLower(message), "unable to find") {
		return fmt.Errorf("%w: %s", ErrAppNotResolved, bundleID)
	}
	if message == "" {
		message = err.Error()
	}
	return fmt.Errorf("open %s: %s", bundleID, message)
}

// SystemEventsSynthesizer posts key chords by generating a System Events
// `key code` script and handing it to a ScriptRunner; the script performs
// key-down and key-up with the same modifier flags.
type SystemEventsSynthesizer struct {
	scripts ScriptRunner
}

var _ KeystrokeSynthesizer = (*SystemEventsSynthesizer)(nil)

// NewSystemEventsSynthesizer wraps the given runner.
func NewSystemEventsSynthesizer(scripts ScriptRunner) *SystemEventsSynthesizer {
	return &SystemEventsSynthesizer{scripts: scripts}
}

// Press posts the chord.
func (s *SystemEventsSynthesizer) Press(ctx context.Context, chord KeyChord) error {
	if err := s.scripts.Run(ctx, keyChordScript(chord)); err != nil {
		return wrapActionError(ErrCodeSynthesisFailed, "could not synthesize keyboard event", err)
	}
	return nil
}

func keyChordScript(chord KeyChord) string {
	var holds []string
	if chord.Modifiers.Has(ModCmd) {
		holds = append(holds, "command down")
	}
	if chord.Modifiers.Has(ModShift) {
		holds = append(holds, "shift down")
	}
	if chord.Modifiers.Has(ModAlt) {
		holds = append(holds, "option down")
	}
	if chord.Modifiers.Has(ModCtrl) {
		holds = append(holds, "control down")
	}

	stmt := fmt.Sprintf("key code %d", chord.Code)
	if len(holds) > 0 {
		stmt += " using {" + strings.Join(holds, ", ") + "}"
	}
	return "tell application \"System Events\"\n    " + stmt + "\nend tell"
}

// escapeAutomationText makes text safe for embedding in a double-quoted
// script string literal. Newlines become spaces; keystroke injection cannot
// represent them portably.
func escapeAutomationText(input string) string {
	out := strings.ReplaceAll(input, `\`, `\\`)
	out = strings.ReplaceAll(out, `"`, `\"`)
	return strings.ReplaceAll(out, "\n", " ")
}
