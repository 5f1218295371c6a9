package lifecycle

import "fmt"

// Machine-readable error codes, stable across releases.
const (
	CodeTerminalState       = "LIFECYCLE_TERMINAL_STATE"
	CodeIllegalTransition   = "LIFECYCLE_ILLEGAL_TRANSITION"
	CodePermissionDenied    = "LIFECYCLE_PERMISSION_DENIED"
	CodeValidation          = "LIFECYCLE_VALIDATION_FAILED"
	CodeVersionOverflow     = "LIFECYCLE_VERSION_OVERFLOW"
	CodeInconsistentHistory = "LIFECYCLE_INCONSISTENT_HISTORY"
)

// Coder is implemented by every error the engine returns.
type Coder interface {
	error
	Code() string
}

// TerminalStateError is returned for any transition out of a terminal status.
type TerminalStateError struct {
	Status Status `json:"status"`
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("document is %s; no further transitions are permitted", e.Status)
}

func (e *TerminalStateError) Code() string { return CodeTerminalState }

// IllegalTransitionError is returned when (From, To) is absent from the table.
type IllegalTransitionError struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("no transition defined from %s to %s", e.From, e.To)
}

func (e *IllegalTransitionError) Code() string { return CodeIllegalTransition }

// PermissionDeniedError carries the reason the evaluator refused the action.
type PermissionDeniedError struct {
	Action Action `json:"action"`
	Reason Reason `json:"reason"`
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied for %s: %s", e.Action, e.Reason)
}

func (e *PermissionDeniedError) Code() string { return CodePermissionDenied }

// Validation rules reported in ValidationError.Rule.
const (
	RuleRequired  = "required"
	RuleMinLength = "min_length"
	RuleInvalid   = "invalid"
	RuleImmutable = "immutable"
)

// ValidationError reports a field-level input problem.
type ValidationError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Min   int    `json:"min,omitempty"`
}

func (e *ValidationError) Error() string {
	if e.Rule == RuleMinLength {
		return fmt.Sprintf("%s must be at least %d characters", e.Field, e.Min)
	}
	return fmt.Sprintf("%s is %s", e.Field, e.Rule)
}

func (e *ValidationError) Code() string { return CodeValidation }

// VersionOverflowError is returned when a version component would exceed 99.
type VersionOverflowError struct {
	Current    string     `json:"current"`
	ChangeType ChangeType `json:"changeType"`
}

func (e *VersionOverflowError) Error() string {
	return fmt.Sprintf("%s bump of version %s overflows the MM.mm range", e.ChangeType, e.Current)
}

func (e *VersionOverflowError) Code() string { return CodeVersionOverflow }

// InconsistentHistoryError means the supplied records violate a storage
// invariant (for example two current versions). It signals corrupt input, not
// a user mistake.
type InconsistentHistoryError struct {
	DocumentID string `json:"documentId"`
	Detail     string `json:"detail"`
}

func (e *InconsistentHistoryError) Error() string {
	return fmt.Sprintf("inconsistent history for document %s: %s", e.DocumentID, e.Detail)
}

func (e *InconsistentHistoryError) Code() string { return CodeInconsistentHistory }
