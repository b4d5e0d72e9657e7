package schemas

import "fmt"

// -- Planner Wire Contract --

// Schema version window accepted on planner payloads. Versions outside the
// window are rejected at the client boundary instead of being interpreted
// with forward/backward-compatibility guesses.
const (
	SchemaVersionMin     = 0
	SchemaVersionCurrent = 1
)

// CheckSchemaVersion rejects payload versions outside the supported window.
func CheckSchemaVersion(v int) error {
	if v < SchemaVersionMin || v > SchemaVersionCurrent {
		return fmt.Errorf("unsupported schema_version=%d; supported=[%d, %d]", v, SchemaVersionMin, SchemaVersionCurrent)
	}
	return nil
}

// AppMetadata describes the frontmost application at plan time.
type AppMetadata struct {
	Name        string `json:"name,omitempty"`
	BundleID    string `json:"bundle_id,omitempty"`
	WindowTitle string `json:"window_title,omitempty"`
	URL         string `json:"url,omitempty"`
}

// PlannerPreferences carries caller hints for model routing.
type PlannerPreferences struct {
	PreferredModel string `json:"preferred_model,omitempty"`
	Locale         string `json:"locale,omitempty"`
	LowLatency     bool   `json:"low_latency"`
}

// PlanRequest asks the planning service to turn a transcript into a plan.
type PlanRequest struct {
	SchemaVersion    int                 `json:"schema_version"`
	SessionID        string              `json:"session_id"`
	Transcript       string              `json:"transcript"`
	ScreenshotBase64 string              `json:"screenshot_base64,omitempty"`
	AXTreeSummary    string              `json:"ax_tree_summary,omitempty"`
	App              *AppMetadata        `json:"app,omitempty"`
	Preferences      *PlannerPreferences `json:"preferences,omitempty"`
}

// Validate checks the request is well-formed before it goes on the wire.
func (r *PlanRequest) Validate() error {
	if err := CheckSchemaVersion(r.SchemaVersion); err != nil {
		return err
	}
	if r.SessionID == "" {
		return fmt.Errorf("plan request session_id must not be empty")
	}
	if r.Transcript == "" {
		return fmt.Errorf("plan request transcript must not be empty")
	}
	return nil
}

// PlanSimulationRequest asks for a dry-run validation of a transcript with no
// side effects.
type PlanSimulationRequest struct {
	SchemaVersion int                 `json:"schema_version"`
	SessionID     string              `json:"session_id"`
	Transcript    string              `json:"transcript"`
	App           *AppMetadata        `json:"app,omitempty"`
	Preferences   *PlannerPreferences `json:"preferences,omitempty"`
}

// Validate checks the simulation request is well-formed.
func (r *PlanSimulationRequest) Validate() error {
	if err := CheckSchemaVersion(r.SchemaVersion); err != nil {
		return err
	}
	if r.SessionID == "" {
		return fmt.Errorf("simulation request session_id must not be empty")
	}
	if r.Transcript == "" {
		return fmt.Errorf("simulation request transcript must not be empty")
	}
	return nil
}

// PlanSimulationResponse reports validity, parse errors, and risk for a
// transcript without performing any action.
type PlanSimulationResponse struct {
	SchemaVersion        int      `json:"schema_version"`
	SessionID            string   `json:"session_id"`
	IsValid              bool     `json:"is_valid"`
	ParseErrors          []string `json:"parse_errors"`
	RiskLevel            string   `json:"risk_level"`
	RequiresConfirmation bool     `json:"requires_confirmation"`
	Summary              string   `json:"summary"`
	ProposedActionsCount int      `json:"proposed_actions_count"`
	RecoveryGuidance     string   `json:"recovery_guidance,omitempty"`
}

// VerifyRequest asks the planner to judge whether an executed plan achieved
// its goal, given before/after context.
type VerifyRequest struct {
	SchemaVersion   int             `json:"schema_version"`
	SessionID       string          `json:"session_id"`
	ActionPlan      ActionPlan      `json:"action_plan"`
	ExecutionResult ExecutionStatus `json:"execution_result"`
	Reason          string          `json:"reason,omitempty"`
	BeforeContext   string          `json:"before_context,omitempty"`
	AfterContext    string          `json:"after_context,omitempty"`
}

// VerifyResponse is the planner's post-execution judgement. CorrectiveActions
// are advisory; the core surfaces them but never auto-executes them.
type VerifyResponse struct {
	SchemaVersion     int           `json:"schema_version"`
	SessionID         string        `json:"session_id"`
	Status            string        `json:"status"`
	Confidence        float64       `json:"confidence"`
	Reason            string        `json:"reason,omitempty"`
	CorrectiveActions []AgentAction `json:"corrective_actions,omitempty"`
}

// ModelRoute maps one application to the backend model that plans for it.
type ModelRoute struct {
	App    string `json:"app,omitempty"`
	Model  string `json:"model"`
	Reason string `json:"reason"`
}

// ModelsResponse is the planner's static capability and routing metadata.
type ModelsResponse struct {
	SchemaVersion int               `json:"schema_version"`
	Routing       []ModelRoute      `json:"routing"`
	FeatureFlags  map[string]string `json:"feature_flags"`
}

// PlannerStreamEvent is one progress update on a session's live event stream.
type PlannerStreamEvent struct {
	SessionID string `json:"session_id"`
	Event     string `json:"event"`
	Message   string `json:"message"`
	Progress  *int   `json:"progress,omitempty"`
	StepID    string `json:"step_id,omitempty"`
	Severity  string `json:"severity,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}
