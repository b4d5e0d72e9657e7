package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/orangehq/orange-agent/api/schemas"
	"github.com/orangehq/orange-agent/internal/executor"
	"github.com/orangehq/orange-agent/internal/planner"
	"github.com/orangehq/orange-agent/internal/safety"
)

var (
	// ErrSimulationRejected means the dry-run declared the transcript
	// unplannable; execution is blocked entirely.
	ErrSimulationRejected = errors.New("simulation rejected plan")
	// ErrConfirmationDenied means the user (or gate owner) declined the plan.
	ErrConfirmationDenied = errors.New("confirmation denied")
)

// ConfirmationGate decides whether a reviewed plan may execute. The UI owns
// the interaction; the orchestrator only supplies the plan and the safety
// prompts that must be answered.
type ConfirmationGate interface {
	Confirm(ctx context.Context, plan schemas.ActionPlan, prompts []schemas.SafetyPrompt) (bool, error)
}

// Orchestrator drives the per-command pipeline:
//
//	plan -> simulate -> safety review -> confirm -> execute -> verify
//
// A plan never reaches the executor without a valid simulation, and the
// safety classifier runs on every plan regardless of the planner's own
// requires_confirmation hint. Telemetry is emitted after each stage and can
// never change the outcome.
type Orchestrator struct {
	planner planner.Client
	policy  safety.Policy
	engine  executor.Engine
	gate    ConfirmationGate
	logger  *zap.Logger
}

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(client planner.Client, policy safety.Policy, engine executor.Engine, gate ConfirmationGate, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		planner: client,
		policy:  policy,
		engine:  engine,
		gate:    gate,
		logger:  logger.Named("orchestrator"),
	}
}

// Run executes the full pipeline for one transcript. The returned session
// always carries whatever stages completed; the error reports why the
// pipeline aborted. A failed execution is not a pipeline abort: it comes
// back as a structured ExecutionResult with a nil error.
func (o *Orchestrator) Run(ctx context.Context, transcript string, app *schemas.AppMetadata) (*Session, error) {
	return o.runPipeline(ctx, NewSession(transcript, app))
}

// RunWithEvents is Run with the session's live planner event stream fanned
// into fn for the duration of the pipeline. The stream is opened before
// planning starts so no early events are missed, and drained before return.
func (o *Orchestrator) RunWithEvents(ctx context.Context, transcript string, app *schemas.AppMetadata, fn func(schemas.PlannerStreamEvent)) (*Session, error) {
	sess := NewSession(transcript, app)

	streamCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := o.ConsumeEvents(streamCtx, sess.ID, fn); err != nil {
			o.logger.Warn("Event stream ended with error",
				zap.String("session_id", sess.ID), zap.Error(err))
		}
	}()
	defer func() {
		cancel()
		<-done
	}()

	return o.runPipeline(ctx, sess)
}

func (o *Orchestrator) runPipeline(ctx context.Context, sess *Session) (*Session, error) {
	o.logger.Info("Session started",
		zap.String("session_id", sess.ID),
		zap.Int("transcript_chars", len(sess.Transcript)))

	plan, err := o.plan(ctx, sess)
	if err != nil {
		return sess, err
	}
	if err := o.simulate(ctx, sess); err != nil {
		return sess, err
	}
	if err := o.review(ctx, sess, plan); err != nil {
		return sess, err
	}

	o.execute(ctx, sess, plan)
	o.verify(ctx, sess, plan)
	return sess, nil
}

func (o *Orchestrator) plan(ctx context.Context, sess *Session) (*schemas.ActionPlan, error) {
	start := time.Now()
	plan, err := o.planner.Plan(ctx, schemas.PlanRequest{
		SchemaVersion: schemas.SchemaVersionCurrent,
		SessionID:     sess.ID,
		Transcript:    sess.Transcript,
		App:           sess.App,
	})
	if err != nil {
		o.emit(ctx, sess, "plan", "failure", time.Since(start), "")
		return nil, fmt.Errorf("plan: %w", err)
	}
	sess.Plan = plan
	o.emit(ctx, sess, "plan", "success", time.Since(start), "")
	return plan, nil
}

func (o *Orchestrator) simulate(ctx context.Context, sess *Session) error {
	start := time.Now()
	sim, err := o.planner.Simulate(ctx, schemas.PlanSimulationRequest{
		SchemaVersion: schemas.SchemaVersionCurrent,
		SessionID:     sess.ID,
		Transcript:    sess.Transcript,
		App:           sess.App,
	})
	if err != nil {
		o.emit(ctx, sess, "simulate", "failure", time.Since(start), "")
		return fmt.Errorf("simulate: %w", err)
	}
	sess.Simulation = sim
	if !sim.IsValid {
		o.emit(ctx, sess, "simulate", "rejected", time.Since(start), "")
		return fmt.Errorf("%w: %s", ErrSimulationRejected, strings.Join(sim.ParseErrors, "; "))
	}
	o.emit(ctx, sess, "simulate", "success", time.Since(start), "")
	return nil
}

// review runs the safety classifier and, when anything needs sign-off, the
// confirmation gate. The classifier's verdict is independent of the
// planner's requires_confirmation flag; either one alone forces the gate.
func (o *Orchestrator) review(ctx context.Context, sess *Session, plan *schemas.ActionPlan) error {
	sess.Prompts = o.policy.Evaluate(plan.Actions)

	if !plan.RequiresConfirmation && len(sess.Prompts) == 0 {
		return nil
	}

	approved, err := o.gate.Confirm(ctx, *plan, sess.Prompts)
	if err != nil {
		o.emit(ctx, sess, "confirm", "failure", 0, "")
		return fmt.Errorf("confirm: %w", err)
	}

	decision := "approve"
	if !approved {
		decision = "deny"
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, prompt := range sess.Prompts {
		sess.Decisions = append(sess.Decisions, schemas.SafetyDecisionRecord{
			ID:           prompt.ID,
			SessionID:    sess.ID,
			Category:     string(prompt.Category),
			Decision:     decision,
			Timestamp:    now,
			ApprovalMode: string(prompt.ApprovalMode),
		})
	}

	if !approved {
		o.emit(ctx, sess, "confirm", "denied", 0, "")
		return ErrConfirmationDenied
	}
	o.emit(ctx, sess, "confirm", "approved", 0, "")
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, sess *Session, plan *schemas.ActionPlan) {
	start := time.Now()
	result := o.engine.Execute(ctx, *plan)
	sess.Execution = &result

	errorCode := ""
	for _, record := range result.ActionResults {
		if record.Status == schemas.ActionFailure {
			errorCode = record.ErrorCode
			break
		}
	}
	o.emit(ctx, sess, "execute", string(result.Status), time.Since(start), errorCode)
}

// verify is best effort: the execution outcome is already decided, so a
// failed verify call degrades to a log line and a nil Verification.
func (o *Orchestrator) verify(ctx context.Context, sess *Session, plan *schemas.ActionPlan) {
	start := time.Now()
	resp, err := o.planner.Verify(ctx, schemas.VerifyRequest{
		SchemaVersion:   schemas.SchemaVersionCurrent,
		SessionID:       sess.ID,
		ActionPlan:      *plan,
		ExecutionResult: sess.Execution.Status,
		Reason:          sess.Execution.Reason,
	})
	if err != nil {
		o.logger.Warn("Verification unavailable", zap.String("session_id", sess.ID), zap.Error(err))
		o.emit(ctx, sess, "verify", "failure", time.Since(start), "")
		return
	}
	sess.Verification = resp
	o.emit(ctx, sess, "verify", resp.Status, time.Since(start), "")
}

// ConsumeEvents fans the session's live planner events into fn until the
// stream closes or ctx is cancelled, then returns the stream's terminal
// error, if any.
func (o *Orchestrator) ConsumeEvents(ctx context.Context, sessionID string, fn func(schemas.PlannerStreamEvent)) error {
	events, errc := o.planner.StreamEvents(ctx, sessionID)
	for event := range events {
		fn(event)
	}
	return <-errc
}

func (o *Orchestrator) emit(ctx context.Context, sess *Session, stage, status string, latency time.Duration, errorCode string) {
	event := schemas.SessionTelemetryEvent{
		SessionID: sess.ID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Stage:     stage,
		Status:    status,
		LatencyMs: int(latency.Milliseconds()),
		ErrorCode: errorCode,
	}
	if sess.App != nil {
		event.App = sess.App.Name
	}
	o.planner.Telemetry(ctx, event)
}
