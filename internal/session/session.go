// Package session orchestrates one voice command end to end: plan the
// transcript, gate it through simulation and safety review, execute the
// confirmed plan, and ask the planner to verify the outcome. State is held
// in memory only; nothing here persists across process restarts.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/orangehq/orange-agent/api/schemas"
)

// Session is the in-memory record of one command pipeline run. Fields fill
// in as stages complete; a stage that never ran leaves its field nil.
type Session struct {
	ID         string
	Transcript string
	App        *schemas.AppMetadata
	StartedAt  time.Time

	Plan         *schemas.ActionPlan
	Simulation   *schemas.PlanSimulationResponse
	Prompts      []schemas.SafetyPrompt
	Decisions    []schemas.SafetyDecisionRecord
	Execution    *schemas.ExecutionResult
	Verification *schemas.VerifyResponse
}

// NewSession creates a session for one transcript.
func NewSession(transcript string, app *schemas.AppMetadata) *Session {
	return &Session{
		ID:         uuid.NewString(),
		Transcript: transcript,
		App:        app,
		StartedAt:  time.Now().UTC(),
	}
}
