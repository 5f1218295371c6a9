package lifecycle

// TransitionClass tags a (from, to) pair in the transition table.
type TransitionClass string

const (
	ClassOrdinary   TransitionClass = "ordinary"
	ClassPrivileged TransitionClass = "privileged"
	ClassIllegal    TransitionClass = "illegal"
)

// TransitionRule defines an allowed status transition.
type TransitionRule struct {
	From  Status
	To    Status
	Class TransitionClass
}

// Transitions is the single source of truth for legal status changes.
// Any pair not listed here is illegal. Disposed has no outgoing edges.
var Transitions = []TransitionRule{
	{From: StatusDraft, To: StatusReview, Class: ClassOrdinary},
	{From: StatusReview, To: StatusPublished, Class: ClassOrdinary},
	{From: StatusReview, To: StatusDraft, Class: ClassOrdinary},
	{From: StatusPublished, To: StatusDraft, Class: ClassPrivileged},
	{From: StatusPublished, To: StatusArchived, Class: ClassPrivileged},
	{From: StatusArchived, To: StatusPublished, Class: ClassOrdinary},
	{From: StatusArchived, To: StatusDisposed, Class: ClassPrivileged},
}

// InitialStatus is the implicit start state every document enters on creation.
const InitialStatus = StatusDraft

// IsTerminal reports whether no transition may leave s.
func IsTerminal(s Status) bool {
	return s == StatusDisposed
}

// TransitionClassOf classifies the pair; unknown pairs are ClassIllegal.
func TransitionClassOf(from, to Status) TransitionClass {
	for _, t := range Transitions {
		if t.From == from && t.To == to {
			return t.Class
		}
	}
	return ClassIllegal
}

// IsLegalTransition reports whether from->to appears in the table.
func IsLegalTransition(from, to Status) bool {
	return TransitionClassOf(from, to) != ClassIllegal
}

// AllowedTransitions returns all target statuses reachable from the given status.
func AllowedTransitions(from Status) []Status {
	var allowed []Status
	for _, t := range Transitions {
		if t.From == from {
			allowed = append(allowed, t.To)
		}
	}
	return allowed
}
