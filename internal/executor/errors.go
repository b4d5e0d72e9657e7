package executor

import (
	"errors"
	"fmt"
)

// Error codes reported in per-action execution records. UnsupportedAction is
// deliberately distinct from the payload and runtime failures so callers can
// tell "this executor refuses the kind" apart from "the attempt failed".
const (
	ErrCodeUnsupportedAction = "unsupported_action"
	ErrCodeInvalidPayload    = "invalid_action_payload"
	ErrCodeAppNotFound       = "app_resolution_failed"
	ErrCodeAppLaunchFailed   = "app_launch_failed"
	ErrCodeAppLaunchTimeout  = "app_launch_timeout"
	ErrCodeScriptFailed      = "script_execution_failed"
	ErrCodeSynthesisFailed   = "event_synthesis_failed"
	ErrCodeInterrupted       = "execution_interrupted"
)

// ActionError is a structured effector failure. The code is stable and
// machine-readable; the message is for humans and logs.
type ActionError struct {
	Code    string
	Message string
	Err     error
}

func (e *ActionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ActionError) Unwrap() error { return e.Err }

func actionErrorf(code, format string, args ...any) *ActionError {
	return &ActionError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapActionError(code, message string, err error) *ActionError {
	return &ActionError{Code: code, Message: message, Err: err}
}

// CodeOf extracts the stable error code from an effector failure, falling
// back to the script-failure code for untyped errors.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrCodeScriptFailed
}
