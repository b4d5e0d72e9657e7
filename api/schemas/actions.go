package schemas

import "fmt"

// -- Action Schemas --

// ActionKind enumerates every step the planner may emit. The set is closed:
// unknown kinds must fail validation at the parse boundary rather than
// default to anything executable.
type ActionKind string

const (
	KindClick          ActionKind = "click"
	KindType           ActionKind = "type"
	KindKeyCombo       ActionKind = "key_combo"
	KindScroll         ActionKind = "scroll"
	KindOpenApp        ActionKind = "open_app"
	KindRunScript      ActionKind = "run_script"
	KindSelectMenuItem ActionKind = "select_menu_item"
	KindWait           ActionKind = "wait"
)

// knownKinds is the closed membership set backing ActionKind.Valid.
var knownKinds = map[ActionKind]struct{}{
	KindClick:          {},
	KindType:           {},
	KindKeyCombo:       {},
	KindScroll:         {},
	KindOpenApp:        {},
	KindRunScript:      {},
	KindSelectMenuItem: {},
	KindWait:           {},
}

// Valid reports whether the kind belongs to the closed enumeration.
func (k ActionKind) Valid() bool {
	_, ok := knownKinds[k]
	return ok
}

// AgentAction is one executable step of a plan.
type AgentAction struct {
	ID              string     `json:"id"`
	Kind            ActionKind `json:"kind"`
	Target          string     `json:"target,omitempty"`
	Text            string     `json:"text,omitempty"`
	KeyCombo        string     `json:"key_combo,omitempty"`
	AppBundleID     string     `json:"app_bundle_id,omitempty"`
	TimeoutMs       int        `json:"timeout_ms"`
	Destructive     bool       `json:"destructive"`
	ExpectedOutcome string     `json:"expected_outcome,omitempty"`
}

// Validate checks the per-action invariants.
func (a *AgentAction) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("action id must not be empty")
	}
	if !a.Kind.Valid() {
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	if a.TimeoutMs < 0 {
		return fmt.Errorf("action %s: timeout_ms must be non-negative, got %d", a.ID, a.TimeoutMs)
	}
	return nil
}

// ActionPlan is the ordered action sequence produced by the planning service
// for one session. Immutable once constructed; consumed exactly once by the
// executor.
type ActionPlan struct {
	SchemaVersion        int           `json:"schema_version"`
	SessionID            string        `json:"session_id"`
	Actions              []AgentAction `json:"actions"`
	Confidence           float64       `json:"confidence"`
	RiskLevel            string        `json:"risk_level"`
	RequiresConfirmation bool          `json:"requires_confirmation"`
	Summary              string        `json:"summary,omitempty"`
}

// Validate enforces the plan invariants: supported schema version, confidence
// within [0, 1], every action valid, and action ids unique within the plan.
func (p *ActionPlan) Validate() error {
	if err := CheckSchemaVersion(p.SchemaVersion); err != nil {
		return err
	}
	if p.SessionID == "" {
		return fmt.Errorf("plan session_id must not be empty")
	}
	if p.Confidence < 0.0 || p.Confidence > 1.0 {
		return fmt.Errorf("plan confidence %v outside [0, 1]", p.Confidence)
	}
	seen := make(map[string]struct{}, len(p.Actions))
	for i := range p.Actions {
		a := &p.Actions[i]
		if err := a.Validate(); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("duplicate action id %q", a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	return nil
}

// ActionIDs returns the plan's action ids in plan order.
func (p *ActionPlan) ActionIDs() []string {
	ids := make([]string, len(p.Actions))
	for i := range p.Actions {
		ids[i] = p.Actions[i].ID
	}
	return ids
}

// -- Execution Result Schemas --

// ExecutionStatus is the overall outcome of executing a plan.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailure ExecutionStatus = "failure"
	ExecutionPartial ExecutionStatus = "partial"
)

// ActionStatus is the outcome of a single action within a plan.
type ActionStatus string

const (
	ActionSuccess ActionStatus = "success"
	ActionFailure ActionStatus = "failure"
	ActionSkipped ActionStatus = "skipped"
)

// ActionExecutionRecord captures the per-action outcome, including the error
// code when the action failed and how long the effector ran.
type ActionExecutionRecord struct {
	ID        string       `json:"id"`
	Status    ActionStatus `json:"status"`
	ErrorCode string       `json:"error_code,omitempty"`
	LatencyMs int          `json:"latency_ms"`
}

// ExecutionResult reports what actually happened when a plan ran.
// CompletedActions is always a strict prefix of the plan's action order; if
// FailedActionID is set, no action after it has a success record.
type ExecutionResult struct {
	Status             ExecutionStatus         `json:"status"`
	CompletedActions   []string                `json:"completed_actions"`
	FailedActionID     string                  `json:"failed_action_id,omitempty"`
	Reason             string                  `json:"reason,omitempty"`
	RecoverySuggestion string                  `json:"recovery_suggestion,omitempty"`
	ActionResults      []ActionExecutionRecord `json:"action_results"`
}

// -- Telemetry Schemas --

// SessionTelemetryEvent is an append-only fact about one pipeline stage of a
// session. Write-only from the core's perspective.
type SessionTelemetryEvent struct {
	SessionID  string `json:"session_id"`
	Timestamp  string `json:"timestamp"`
	Stage      string `json:"stage"`
	App        string `json:"app,omitempty"`
	ActionKind string `json:"action_kind,omitempty"`
	Status     string `json:"status"`
	LatencyMs  int    `json:"latency_ms,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
}
