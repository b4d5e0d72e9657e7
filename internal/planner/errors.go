package planner

import "fmt"

// ErrorKind classifies planner client failures so callers can distinguish
// transport problems from contract violations without string matching.
type ErrorKind string

const (
	// ErrKindNetwork covers connection and transport failures.
	ErrKindNetwork ErrorKind = "network"
	// ErrKindTimeout covers deadline and cancellation failures.
	ErrKindTimeout ErrorKind = "timeout"
	// ErrKindStatus covers non-2xx HTTP responses.
	ErrKindStatus ErrorKind = "status"
	// ErrKindSchema covers payloads failing schema-version or invariant checks.
	ErrKindSchema ErrorKind = "schema"
	// ErrKindDecode covers malformed response bodies.
	ErrKindDecode ErrorKind = "decode"
)

// Error is the typed failure returned by every planner client call. The
// client never retries internally; retry policy belongs to the orchestrator.
type Error struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("planner %s: %s (http %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("planner %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a planner Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	pe, ok := err.(*Error)
	return ok && pe.Kind == kind
}
