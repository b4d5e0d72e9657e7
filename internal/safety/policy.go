package safety

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orangehq/orange-agent/api/schemas"
)

// Policy assigns a risk category to actions and decides which confirmation
// prompts a plan requires. It deliberately ignores the planner's own
// requires_confirmation hint: risk is re-derived here as an independent
// check, never short-circuited by what the planner claims.
type Policy interface {
	// Category classifies a single action.
	Category(action schemas.AgentAction) schemas.SafetyCategory
	// Evaluate returns at most one prompt per distinct non-none category in
	// the action list, in first-seen order.
	Evaluate(actions []schemas.AgentAction) []schemas.SafetyPrompt
}

// Keyword lists per category, scanned in fixed priority order. The
// classification is a closed text heuristic, not a semantic model: phrasing
// destructive intent without any trigger word is a known, accepted false
// negative.
var (
	deleteTerms       = []string{"delete", "remove", "trash", "erase"}
	purchaseTerms     = []string{"purchase", "buy", "checkout", "payment", "pay"}
	externalPostTerms = []string{"post", "tweet", "publish", "share externally", "external"}
	sendTerms         = []string{"send", "submit", "reply", "message"}
)

// DefaultPolicy implements the keyword-based classification with prompt
// deduplication and preference-backed approval modes.
type DefaultPolicy struct {
	logger *zap.Logger
	prefs  PreferenceStore
}

var _ Policy = (*DefaultPolicy)(nil)

// NewDefaultPolicy creates a policy reading approval modes from prefs.
func NewDefaultPolicy(logger *zap.Logger, prefs PreferenceStore) *DefaultPolicy {
	return &DefaultPolicy{
		logger: logger.Named("safety_policy"),
		prefs:  prefs,
	}
}

// Category classifies one action. run_script is always category script,
// regardless of payload text. For everything else the action's target, text,
// and expected outcome are case-folded into one scan buffer and tested
// against the category keyword lists in priority order; first match wins, so
// an action never carries two categories.
func (p *DefaultPolicy) Category(action schemas.AgentAction) schemas.SafetyCategory {
	if action.Kind == schemas.KindRunScript {
		return schemas.CategoryScript
	}

	joined := strings.ToLower(strings.Join([]string{action.Target, action.Text, action.ExpectedOutcome}, " "))

	if containsAny(joined, deleteTerms) || action.Destructive {
		return schemas.CategoryDelete
	}
	if containsAny(joined, purchaseTerms) {
		return schemas.CategoryPurchase
	}
	if containsAny(joined, externalPostTerms) {
		return schemas.CategoryExternalPost
	}
	if containsAny(joined, sendTerms) {
		return schemas.CategorySend
	}
	return schemas.CategoryNone
}

// Evaluate classifies every action and produces one prompt per distinct
// non-none category, deduplicated by category in first-occurrence order.
func (p *DefaultPolicy) Evaluate(actions []schemas.AgentAction) []schemas.SafetyPrompt {
	var prompts []schemas.SafetyPrompt
	seen := make(map[schemas.SafetyCategory]struct{})

	for _, action := range actions {
		category := p.Category(action)
		if category == schemas.CategoryNone {
			continue
		}
		if _, dup := seen[category]; dup {
			continue
		}
		seen[category] = struct{}{}
		prompts = append(prompts, p.prompt(category))
	}

	if len(prompts) > 0 {
		p.logger.Info("Safety evaluation requires confirmation",
			zap.Int("actions", len(actions)),
			zap.Int("prompts", len(prompts)))
	}
	return prompts
}

func (p *DefaultPolicy) prompt(category schemas.SafetyCategory) schemas.SafetyPrompt {
	mode := p.prefs.ApprovalMode(category)
	prompt := schemas.SafetyPrompt{
		ID:           uuid.NewString(),
		Category:     category,
		ApprovalMode: mode,
	}

	switch category {
	case schemas.CategorySend:
		prompt.Title = "Confirm Send Action"
		prompt.Message = "Orange will send or submit content. Approval required."
	case schemas.CategoryDelete:
		prompt.Title = "Confirm Delete Action"
		prompt.Message = "Orange will delete or remove content. Approval required."
	case schemas.CategoryPurchase:
		prompt.Title = "Confirm Purchase Action"
		prompt.Message = "Orange may complete a purchase or payment. Approval required."
	case schemas.CategoryExternalPost:
		prompt.Title = "Confirm External Post"
		prompt.Message = "Orange will post externally. Approval required."
	case schemas.CategoryScript:
		prompt.Title = "Confirm Script Execution"
		prompt.Message = "A generated automation script will run. Explicit approval required."
	default:
		prompt.Title = "No Confirmation Needed"
		prompt.Message = "This action is safe to run."
	}
	return prompt
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
