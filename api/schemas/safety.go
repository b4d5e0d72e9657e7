package schemas

// -- Safety Schemas --

// SafetyCategory is the closed classification of an action's real-world risk.
type SafetyCategory string

const (
	CategoryNone         SafetyCategory = "none"
	CategorySend         SafetyCategory = "send"
	CategoryDelete       SafetyCategory = "delete"
	CategoryPurchase     SafetyCategory = "purchase"
	CategoryExternalPost SafetyCategory = "external_post"
	CategoryScript       SafetyCategory = "script"
)

// SafetyApprovalMode controls how often a category's prompt must be
// re-confirmed by the user.
type SafetyApprovalMode string

const (
	ApprovalOneTime    SafetyApprovalMode = "one_time"
	ApprovalPerSession SafetyApprovalMode = "per_session"
	ApprovalAlwaysAsk  SafetyApprovalMode = "always_ask"
)

// ValidApprovalMode reports whether the value belongs to the closed set.
// Stored preferences that fail this check fall back to always_ask.
func ValidApprovalMode(m SafetyApprovalMode) bool {
	switch m {
	case ApprovalOneTime, ApprovalPerSession, ApprovalAlwaysAsk:
		return true
	}
	return false
}

// SafetyPrompt is one confirmation the UI must present before a plan runs.
// Ephemeral: generated per evaluation call and never persisted.
type SafetyPrompt struct {
	ID           string             `json:"id"`
	Category     SafetyCategory     `json:"category"`
	ApprovalMode SafetyApprovalMode `json:"approval_mode"`
	Title        string             `json:"title"`
	Message      string             `json:"message"`
}

// SafetyDecisionRecord captures an approve/deny decision taken on a prompt,
// for in-session display.
type SafetyDecisionRecord struct {
	ID           string `json:"id"`
	SessionID    string `json:"session_id"`
	Category     string `json:"category"`
	Decision     string `json:"decision"`
	Timestamp    string `json:"timestamp"`
	ApprovalMode string `json:"approval_mode"`
}
