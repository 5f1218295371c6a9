package lifecycle

import "testing"

func TestTransitionClassOf(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want TransitionClass
	}{
		{"draft to review", StatusDraft, StatusReview, ClassOrdinary},
		{"review to published", StatusReview, StatusPublished, ClassOrdinary},
		{"review to draft", StatusReview, StatusDraft, ClassOrdinary},
		{"published to draft", StatusPublished, StatusDraft, ClassPrivileged},
		{"published to archived", StatusPublished, StatusArchived, ClassPrivileged},
		{"archived to published", StatusArchived, StatusPublished, ClassOrdinary},
		{"archived to disposed", StatusArchived, StatusDisposed, ClassPrivileged},

		{"draft to published skips review", StatusDraft, StatusPublished, ClassIllegal},
		{"review to archived", StatusReview, StatusArchived, ClassIllegal},
		{"disposed to draft", StatusDisposed, StatusDraft, ClassIllegal},
		{"same state", StatusDraft, StatusDraft, ClassIllegal},
		{"unknown target", StatusDraft, Status("deleted"), ClassIllegal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TransitionClassOf(tt.from, tt.to); got != tt.want {
				t.Errorf("TransitionClassOf(%s, %s) = %s, want %s", tt.from, tt.to, got, tt.want)
			}
			if got := IsLegalTransition(tt.from, tt.to); got != (tt.want != ClassIllegal) {
				t.Errorf("IsLegalTransition(%s, %s) = %v", tt.from, tt.to, got)
			}
		})
	}
}

func TestAllowedTransitions(t *testing.T) {
	tests := []struct {
		from     Status
		expected int
	}{
		{StatusDraft, 1},     // review
		{StatusReview, 2},    // published or draft
		{StatusPublished, 2}, // draft or archived
		{StatusArchived, 2},  // published or disposed
		{StatusDisposed, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			got := AllowedTransitions(tt.from)
			if len(got) != tt.expected {
				t.Errorf("AllowedTransitions(%s) = %d states, want %d (got: %v)", tt.from, len(got), tt.expected, got)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range Statuses {
		if got := IsTerminal(s); got != (s == StatusDisposed) {
			t.Errorf("IsTerminal(%s) = %v", s, got)
		}
	}
}
