package session

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orangehq/orange-agent/api/schemas"
	"github.com/orangehq/orange-agent/internal/planner"
	"github.com/orangehq/orange-agent/internal/safety"
)

type mockPlanner struct {
	mock.Mock
}

var _ planner.Client = (*mockPlanner)(nil)

func (m *mockPlanner) Plan(ctx context.Context, req schemas.PlanRequest) (*schemas.ActionPlan, error) {
	args := m.Called(ctx, req)
	if plan := args.Get(0); plan != nil {
		return plan.(*schemas.ActionPlan), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPlanner) Simulate(ctx context.Context, req schemas.PlanSimulationRequest) (*schemas.PlanSimulationResponse, error) {
	args := m.Called(ctx, req)
	if sim := args.Get(0); sim != nil {
		return sim.(*schemas.PlanSimulationResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPlanner) Models(ctx context.Context) (*schemas.ModelsResponse, error) {
	args := m.Called(ctx)
	if models := args.Get(0); models != nil {
		return models.(*schemas.ModelsResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPlanner) Verify(ctx context.Context, req schemas.VerifyRequest) (*schemas.VerifyResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*schemas.VerifyResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPlanner) Telemetry(ctx context.Context, event schemas.SessionTelemetryEvent) {
	m.Called(ctx, event)
}

func (m *mockPlanner) StreamEvents(ctx context.Context, sessionID string) (<-chan schemas.PlannerStreamEvent, <-chan error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(<-chan schemas.PlannerStreamEvent), args.Get(1).(<-chan error)
}

type fakeEngine struct {
	result   schemas.ExecutionResult
	executed []schemas.ActionPlan
}

func (e *fakeEngine) Execute(_ context.Context, plan schemas.ActionPlan) schemas.ExecutionResult {
	e.executed = append(e.executed, plan)
	return e.result
}

type fakeGate struct {
	approve bool
	err     error
	calls   int
	prompts []schemas.SafetyPrompt
}

func (g *fakeGate) Confirm(_ context.Context, _ schemas.ActionPlan, prompts []schemas.SafetyPrompt) (bool, error) {
	g.calls++
	g.prompts = prompts
	return g.approve, g.err
}

func newTestOrchestrator(client planner.Client, engine *fakeEngine, gate *fakeGate) *Orchestrator {
	policy := safety.NewDefaultPolicy(zap.NewNop(), safety.NewViperPreferences(viper.New()))
	return NewOrchestrator(client, policy, engine, gate, zap.NewNop())
}

func benignPlan(sessionID string) *schemas.ActionPlan {
	return &schemas.ActionPlan{
		SchemaVersion: schemas.SchemaVersionCurrent,
		SessionID:     sessionID,
		Actions: []schemas.AgentAction{
			{ID: "a1", Kind: schemas.KindOpenApp, Target: "Notes"},
			{ID: "a2", Kind: schemas.KindWait, TimeoutMs: 10},
		},
		Confidence: 0.9,
	}
}

func validSimulation() *schemas.PlanSimulationResponse {
	return &schemas.PlanSimulationResponse{
		SchemaVersion: schemas.SchemaVersionCurrent,
		IsValid:       true,
	}
}

func TestRunHappyPathWithoutConfirmation(t *testing.T) {
	client := &mockPlanner{}
	client.On("Plan", mock.Anything, mock.Anything).Return(benignPlan("ignored"), nil)
	client.On("Simulate", mock.Anything, mock.Anything).Return(validSimulation(), nil)
	client.On("Verify", mock.Anything, mock.Anything).Return(&schemas.VerifyResponse{Status: "success", Confidence: 0.9}, nil)
	client.On("Telemetry", mock.Anything, mock.Anything).Return()

	engine := &fakeEngine{result: schemas.ExecutionResult{
		Status:           schemas.ExecutionSuccess,
		CompletedActions: []string{"a1", "a2"},
	}}
	gate := &fakeGate{approve: true}

	sess, err := newTestOrchestrator(client, engine, gate).Run(context.Background(), "open notes", nil)
	require.NoError(t, err)

	assert.NotEmpty(t, sess.ID)
	require.NotNil(t, sess.Execution)
	assert.Equal(t, schemas.ExecutionSuccess, sess.Execution.Status)
	require.NotNil(t, sess.Verification)
	assert.Equal(t, "success", sess.Verification.Status)
	assert.Zero(t, gate.calls, "benign plan must not hit the gate")
	require.Len(t, engine.executed, 1)
}

func TestRunPlanErrorAbortsBeforeSimulate(t *testing.T) {
	client := &mockPlanner{}
	client.On("Plan", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))
	client.On("Telemetry", mock.Anything, mock.Anything).Return()

	engine := &fakeEngine{}
	sess, err := newTestOrchestrator(client, engine, &fakeGate{approve: true}).
		Run(context.Background(), "open notes", nil)

	require.Error(t, err)
	assert.Nil(t, sess.Plan)
	assert.Empty(t, engine.executed)
	client.AssertNotCalled(t, "Simulate", mock.Anything, mock.Anything)
}

func TestRunInvalidSimulationBlocksExecution(t *testing.T) {
	client := &mockPlanner{}
	client.On("Plan", mock.Anything, mock.Anything).Return(benignPlan("x"), nil)
	client.On("Simulate", mock.Anything, mock.Anything).Return(&schemas.PlanSimulationResponse{
		SchemaVersion: schemas.SchemaVersionCurrent,
		IsValid:       false,
		ParseErrors:   []string{"ambiguous target"},
	}, nil)
	client.On("Telemetry", mock.Anything, mock.Anything).Return()

	engine := &fakeEngine{}
	sess, err := newTestOrchestrator(client, engine, &fakeGate{approve: true}).
		Run(context.Background(), "do the thing", nil)

	require.ErrorIs(t, err, ErrSimulationRejected)
	assert.Contains(t, err.Error(), "ambiguous target")
	assert.Empty(t, engine.executed)
	assert.NotNil(t, sess.Simulation)
}

func TestRunDeniedConfirmationRecordsDecision(t *testing.T) {
	plan := benignPlan("x")
	plan.Actions = append(plan.Actions, schemas.AgentAction{
		ID: "a3", Kind: schemas.KindType, Text: "delete the old report",
	})

	client := &mockPlanner{}
	client.On("Plan", mock.Anything, mock.Anything).Return(plan, nil)
	client.On("Simulate", mock.Anything, mock.Anything).Return(validSimulation(), nil)
	client.On("Telemetry", mock.Anything, mock.Anything).Return()

	engine := &fakeEngine{}
	gate := &fakeGate{approve: false}
	sess, err := newTestOrchestrator(client, engine, gate).
		Run(context.Background(), "delete the old report", nil)

	require.ErrorIs(t, err, ErrConfirmationDenied)
	assert.Equal(t, 1, gate.calls)
	assert.Empty(t, engine.executed)
	require.Len(t, sess.Decisions, 1)
	assert.Equal(t, string(schemas.CategoryDelete), sess.Decisions[0].Category)
	assert.Equal(t, "deny", sess.Decisions[0].Decision)
}

func TestRunClassifierForcesGateWithoutPlannerHint(t *testing.T) {
	plan := benignPlan("x")
	plan.RequiresConfirmation = false
	plan.Actions = []schemas.AgentAction{
		{ID: "a1", Kind: schemas.KindRunScript, Text: "display dialog \"hi\""},
	}

	client := &mockPlanner{}
	client.On("Plan", mock.Anything, mock.Anything).Return(plan, nil)
	client.On("Simulate", mock.Anything, mock.Anything).Return(validSimulation(), nil)
	client.On("Verify", mock.Anything, mock.Anything).Return(&schemas.VerifyResponse{Status: "success"}, nil)
	client.On("Telemetry", mock.Anything, mock.Anything).Return()

	engine := &fakeEngine{result: schemas.ExecutionResult{Status: schemas.ExecutionSuccess}}
	gate := &fakeGate{approve: true}
	_, err := newTestOrchestrator(client, engine, gate).
		Run(context.Background(), "run my script", nil)

	require.NoError(t, err)
	assert.Equal(t, 1, gate.calls, "script actions require review even when the planner says otherwise")
	require.Len(t, gate.prompts, 1)
	assert.Equal(t, schemas.CategoryScript, gate.prompts[0].Category)
}

func TestRunExecutionFailureStillVerifies(t *testing.T) {
	client := &mockPlanner{}
	client.On("Plan", mock.Anything, mock.Anything).Return(benignPlan("x"), nil)
	client.On("Simulate", mock.Anything, mock.Anything).Return(validSimulation(), nil)
	client.On("Verify", mock.Anything, mock.MatchedBy(func(req schemas.VerifyRequest) bool {
		return req.ExecutionResult == schemas.ExecutionFailure
	})).Return(&schemas.VerifyResponse{Status: "failure", Reason: "launch failed"}, nil)
	client.On("Telemetry", mock.Anything, mock.Anything).Return()

	engine := &fakeEngine{result: schemas.ExecutionResult{
		Status:         schemas.ExecutionFailure,
		FailedActionID: "a1",
		Reason:         "launch failed",
	}}
	sess, err := newTestOrchestrator(client, engine, &fakeGate{approve: true}).
		Run(context.Background(), "open notes", nil)

	require.NoError(t, err, "execution failure is a structured result, not a pipeline abort")
	assert.Equal(t, schemas.ExecutionFailure, sess.Execution.Status)
	require.NotNil(t, sess.Verification)
	assert.Equal(t, "failure", sess.Verification.Status)
}

func TestRunVerifyErrorIsTolerated(t *testing.T) {
	client := &mockPlanner{}
	client.On("Plan", mock.Anything, mock.Anything).Return(benignPlan("x"), nil)
	client.On("Simulate", mock.Anything, mock.Anything).Return(validSimulation(), nil)
	client.On("Verify", mock.Anything, mock.Anything).Return(nil, errors.New("sidecar restarting"))
	client.On("Telemetry", mock.Anything, mock.Anything).Return()

	engine := &fakeEngine{result: schemas.ExecutionResult{Status: schemas.ExecutionSuccess}}
	sess, err := newTestOrchestrator(client, engine, &fakeGate{approve: true}).
		Run(context.Background(), "open notes", nil)

	require.NoError(t, err)
	assert.Nil(t, sess.Verification)
	assert.Equal(t, schemas.ExecutionSuccess, sess.Execution.Status)
}

func TestRunWithEventsFansStreamDuringPipeline(t *testing.T) {
	events := make(chan schemas.PlannerStreamEvent, 1)
	errc := make(chan error, 1)
	events <- schemas.PlannerStreamEvent{Event: "planning_started"}
	close(events)
	close(errc)

	client := &mockPlanner{}
	client.On("StreamEvents", mock.Anything, mock.Anything).
		Return((<-chan schemas.PlannerStreamEvent)(events), (<-chan error)(errc))
	client.On("Plan", mock.Anything, mock.Anything).Return(benignPlan("x"), nil)
	client.On("Simulate", mock.Anything, mock.Anything).Return(validSimulation(), nil)
	client.On("Verify", mock.Anything, mock.Anything).Return(&schemas.VerifyResponse{Status: "success"}, nil)
	client.On("Telemetry", mock.Anything, mock.Anything).Return()

	engine := &fakeEngine{result: schemas.ExecutionResult{Status: schemas.ExecutionSuccess}}

	var seen []string
	sess, err := newTestOrchestrator(client, engine, &fakeGate{approve: true}).
		RunWithEvents(context.Background(), "open notes", nil, func(event schemas.PlannerStreamEvent) {
			seen = append(seen, event.Event)
		})

	require.NoError(t, err)
	assert.Equal(t, []string{"planning_started"}, seen)
	assert.NotNil(t, sess.Execution)
}

func TestConsumeEventsDrainsStream(t *testing.T) {
	events := make(chan schemas.PlannerStreamEvent, 2)
	errc := make(chan error, 1)
	events <- schemas.PlannerStreamEvent{Event: "planning_started"}
	events <- schemas.PlannerStreamEvent{Event: "planning_complete"}
	close(events)
	errc <- nil

	client := &mockPlanner{}
	client.On("StreamEvents", mock.Anything, "sess-1").
		Return((<-chan schemas.PlannerStreamEvent)(events), (<-chan error)(errc))

	var seen []string
	err := newTestOrchestrator(client, &fakeEngine{}, &fakeGate{}).
		ConsumeEvents(context.Background(), "sess-1", func(event schemas.PlannerStreamEvent) {
			seen = append(seen, event.Event)
		})

	require.NoError(t, err)
	assert.Equal(t, []string{"planning_started", "planning_complete"}, seen)
}
