package safety

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/orangehq/orange-agent/api/schemas"
)

// PreferenceStore resolves the stored approval mode for a safety category.
// Implementations must return a safe default when a preference is absent or
// invalid, never an error.
type PreferenceStore interface {
	ApprovalMode(category schemas.SafetyCategory) schemas.SafetyApprovalMode
	SetApprovalMode(category schemas.SafetyCategory, mode schemas.SafetyApprovalMode) error
}

// preferenceKey is the namespaced configuration key for one category.
func preferenceKey(category schemas.SafetyCategory) string {
	return fmt.Sprintf("safety.approval_mode.%s", category)
}

// ViperPreferences reads per-category approval modes from process-wide viper
// configuration storage.
type ViperPreferences struct {
	v *viper.Viper
}

var _ PreferenceStore = (*ViperPreferences)(nil)

// NewViperPreferences wraps the given viper instance. Pass viper.GetViper()
// for the process-wide store.
func NewViperPreferences(v *viper.Viper) *ViperPreferences {
	return &ViperPreferences{v: v}
}

// ApprovalMode returns the stored mode for the category, falling back to
// always_ask when the key is unset or holds an unrecognized value.
func (p *ViperPreferences) ApprovalMode(category schemas.SafetyCategory) schemas.SafetyApprovalMode {
	stored := schemas.SafetyApprovalMode(p.v.GetString(preferenceKey(category)))
	if !schemas.ValidApprovalMode(stored) {
		return schemas.ApprovalAlwaysAsk
	}
	return stored
}

// SetApprovalMode stores the mode for the category, rejecting values outside
// the closed set.
func (p *ViperPreferences) SetApprovalMode(category schemas.SafetyCategory, mode schemas.SafetyApprovalMode) error {
	if !schemas.ValidApprovalMode(mode) {
		return fmt.Errorf("invalid approval mode %q for category %q", mode, category)
	}
	p.v.Set(preferenceKey(category), string(mode))
	return nil
}
