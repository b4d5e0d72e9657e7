package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/orangehq/orange-agent/api/schemas"
)

const (
	appLaunchTimeout = 5 * time.Second
	waitFloor        = 50 * time.Millisecond
)

// Engine performs a confirmed plan's actions against the live environment.
// Side effects are real and irreversible; dry-run belongs to the planner's
// simulate call, which the orchestrator must invoke beforehand.
type Engine interface {
	Execute(ctx context.Context, plan schemas.ActionPlan) schemas.ExecutionResult
}

// ActionExecutor dispatches actions sequentially and fails fast: the first
// effector error stops the plan, and every later action is recorded as
// skipped. It never returns an error to its caller; failures are structured
// into the result.
type ActionExecutor struct {
	logger        *zap.Logger
	scripts       ScriptRunner
	apps          AppLauncher
	keys          KeystrokeSynthesizer
	launchTimeout time.Duration
	handlers      map[schemas.ActionKind]func(ctx context.Context, action schemas.AgentAction) error
}

var _ Engine = (*ActionExecutor)(nil)

// ExecOption configures an ActionExecutor.
type ExecOption func(*ActionExecutor)

// WithScriptRunner replaces the automation-script capability.
func WithScriptRunner(r ScriptRunner) ExecOption {
	return func(e *ActionExecutor) { e.scripts = r }
}

// WithAppLauncher replaces the bundle-id launch capability.
func WithAppLauncher(l AppLauncher) ExecOption {
	return func(e *ActionExecutor) { e.apps = l }
}

// WithKeySynthesizer replaces the keystroke capability.
func WithKeySynthesizer(k KeystrokeSynthesizer) ExecOption {
	return func(e *ActionExecutor) { e.keys = k }
}

// NewActionExecutor builds an executor with production effectors unless
// overridden.
func NewActionExecutor(logger *zap.Logger, opts ...ExecOption) *ActionExecutor {
	e := &ActionExecutor{logger: logger.Named("executor"), launchTimeout: appLaunchTimeout}
	for _, opt := range opts {
		opt(e)
	}
	if e.scripts == nil {
		e.scripts = NewOsascriptRunner(logger)
	}
	if e.apps == nil {
		e.apps = NewOpenCommandLauncher(logger)
	}
	if e.keys == nil {
		e.keys = NewSystemEventsSynthesizer(e.scripts)
	}

	e.handlers = map[schemas.ActionKind]func(context.Context, schemas.AgentAction) error{
		schemas.KindOpenApp:   e.openApp,
		schemas.KindType:      e.typeText,
		schemas.KindKeyCombo:  e.pressKeyCombo,
		schemas.KindRunScript: e.runScript,
		schemas.KindWait:      e.wait,
	}
	return e
}

// Execute runs the plan's actions in order. CompletedActions is always a
// strict prefix of the plan order.
func (e *ActionExecutor) Execute(ctx context.Context, plan schemas.ActionPlan) schemas.ExecutionResult {
	result := schemas.ExecutionResult{
		Status:           schemas.ExecutionSuccess,
		CompletedActions: []string{},
	}

	for i, action := range plan.Actions {
		start := time.Now()
		err := e.dispatch(ctx, action)
		latency := int(time.Since(start).Milliseconds())

		if err == nil {
			result.CompletedActions = append(result.CompletedActions, action.ID)
			result.ActionResults = append(result.ActionResults, schemas.ActionExecutionRecord{
				ID:        action.ID,
				Status:    schemas.ActionSuccess,
				LatencyMs: latency,
			})
			e.logger.Info("Executed action",
				zap.String("action_id", action.ID),
				zap.String("kind", string(action.Kind)),
				zap.Int("latency_ms", latency))
			continue
		}

		e.logger.Error("Action failed, aborting plan",
			zap.String("action_id", action.ID),
			zap.String("kind", string(action.Kind)),
			zap.String("error_code", CodeOf(err)),
			zap.Error(err))

		result.Status = schemas.ExecutionFailure
		result.FailedActionID = action.ID
		result.Reason = err.Error()
		result.RecoverySuggestion = "Retry command"
		result.ActionResults = append(result.ActionResults, schemas.ActionExecutionRecord{
			ID:        action.ID,
			Status:    schemas.ActionFailure,
			ErrorCode: CodeOf(err),
			LatencyMs: latency,
		})
		for _, rest := range plan.Actions[i+1:] {
			result.ActionResults = append(result.ActionResults, schemas.ActionExecutionRecord{
				ID:     rest.ID,
				Status: schemas.ActionSkipped,
			})
		}
		return result
	}
	return result
}

func (e *ActionExecutor) dispatch(ctx context.Context, action schemas.AgentAction) error {
	handler, ok := e.handlers[action.Kind]
	if !ok {
		// click, scroll and select_menu_item are recognized kinds this
		// executor refuses by contract, not failures of an attempt.
		return actionErrorf(ErrCodeUnsupportedAction, "unsupported action kind: %s", action.Kind)
	}
	return handler(ctx, action)
}

func (e *ActionExecutor) openApp(ctx context.Context, action schemas.AgentAction) error {
	if action.AppBundleID != "" {
		launchCtx, cancel := context.WithTimeout(ctx, e.launchTimeout)
		defer cancel()

		err := e.apps.LaunchByBundleID(launchCtx, action.AppBundleID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrAppNotResolved):
			return wrapActionError(ErrCodeAppNotFound,
				fmt.Sprintf("could not resolve bundle id %s", action.AppBundleID), err)
		case launchCtx.Err() != nil && errors.Is(launchCtx.Err(), context.DeadlineExceeded):
			return wrapActionError(ErrCodeAppLaunchTimeout,
				fmt.Sprintf("timed out launching app bundle id %s", action.AppBundleID), err)
		default:
			return wrapActionError(ErrCodeAppLaunchFailed,
				fmt.Sprintf("launch failed for bundle id %s", action.AppBundleID), err)
		}
	}

	if action.Target == "" {
		return actionErrorf(ErrCodeInvalidPayload, "missing app name for open_app")
	}
	script := "tell application \"" + escapeAutomationText(action.Target) + "\"\n    activate\nend tell"
	return e.scripts.Run(ctx, script)
}

func (e *ActionExecutor) typeText(ctx context.Context, action schemas.AgentAction) error {
	if action.Text == "" {
		return actionErrorf(ErrCodeInvalidPayload, "missing text for type action")
	}
	script := "tell application \"System Events\"\n    keystroke \"" +
		escapeAutomationText(action.Text) + "\"\nend tell"
	return e.scripts.Run(ctx, script)
}

func (e *ActionExecutor) pressKeyCombo(ctx context.Context, action schemas.AgentAction) error {
	if action.KeyCombo == "" {
		return actionErrorf(ErrCodeInvalidPayload, "missing key_combo value")
	}
	chord, err := ParseKeyCombo(action.KeyCombo)
	if err != nil {
		return err
	}
	return e.keys.Press(ctx, chord)
}

func (e *ActionExecutor) runScript(ctx context.Context, action schemas.AgentAction) error {
	script := action.Text
	if script == "" {
		script = action.Target
	}
	if script == "" {
		return actionErrorf(ErrCodeInvalidPayload, "automation script payload is empty")
	}
	return e.scripts.Run(ctx, script)
}

// wait sleeps for max(50ms, timeout_ms). The floor keeps zero-length waits
// from degenerating into busy no-ops between input events.
func (e *ActionExecutor) wait(ctx context.Context, action schemas.AgentAction) error {
	d := waitFloor
	if requested := time.Duration(action.TimeoutMs) * time.Millisecond; requested > d {
		d = requested
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return wrapActionError(ErrCodeInterrupted, "wait interrupted", ctx.Err())
	}
}
