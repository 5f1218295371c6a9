package lifecycle

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Rules holds the minimum-length validation thresholds.
type Rules struct {
	MinCommentLength int `yaml:"minCommentLength" json:"minCommentLength"`
	MinReasonLength  int `yaml:"minReasonLength" json:"minReasonLength"`
	MinSummaryLength int `yaml:"minSummaryLength" json:"minSummaryLength"`
}

// DefaultRules returns the standard thresholds.
func DefaultRules() Rules {
	return Rules{
		MinCommentLength: 10,
		MinReasonLength:  10,
		MinSummaryLength: 20,
	}
}

// Engine evaluates lifecycle requests. It holds configuration only; every
// method is a pure function of its arguments plus the injected clock and ID
// source, and is safe for concurrent use.
type Engine struct {
	rules Rules
	now   func() time.Time
	newID func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules overrides the validation thresholds.
func WithRules(r Rules) Option {
	return func(e *Engine) { e.rules = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides how record IDs are minted.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// NewEngine creates an engine with default rules, the wall clock and UUID ids.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		rules: DefaultRules(),
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the active validation thresholds.
func (e *Engine) Rules() Rules { return e.rules }

// ClientInfo is optional request metadata copied onto transition records.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// StatusChange is the result of a successful RequestStatusChange.
type StatusChange struct {
	Document   Document         `json:"document"`
	Transition TransitionRecord `json:"transition"`
}

// RequestStatusChange validates and computes a status transition.
func (e *Engine) RequestStatusChange(doc Document, actor Actor, to Status, comment string, client ClientInfo) (StatusChange, error) {
	from := doc.Status
	if IsTerminal(from) {
		return StatusChange{}, &TerminalStateError{Status: from}
	}
	if !to.Valid() || !IsLegalTransition(from, to) {
		return StatusChange{}, &IllegalTransitionError{From: from, To: to}
	}
	action := ChangeStatus(from, to)
	if d := Evaluate(actor, doc, action); !d.Allowed {
		return StatusChange{}, &PermissionDeniedError{Action: action, Reason: d.Reason}
	}
	comment = strings.TrimSpace(comment)
	if requiresRationale(to) {
		if err := minLength("comment", comment, e.rules.MinCommentLength); err != nil {
			return StatusChange{}, err
		}
	}

	now := e.now().UTC()
	next := doc.Clone()
	next.Status = to
	next.UpdatedAt = now
	if to == StatusArchived {
		next.ArchivedAt = &now
	}

	fromCopy := from
	return StatusChange{
		Document: next,
		Transition: TransitionRecord{
			ID:              e.newID(),
			DocumentID:      doc.ID,
			FromStatus:      &fromCopy,
			ToStatus:        to,
			ActorID:         actor.ID,
			ActorDepartment: actor.Department,
			Comment:         comment,
			Timestamp:       now,
			IPAddress:       client.IPAddress,
			UserAgent:       client.UserAgent,
		},
	}, nil
}

// requiresRationale marks destructive or terminal moves.
func requiresRationale(to Status) bool {
	return to == StatusArchived || to == StatusDisposed
}

// NewVersionRequest carries the metadata of a version bump.
type NewVersionRequest struct {
	ChangeType    ChangeType `json:"changeType"`
	ChangeReason  string     `json:"changeReason"`
	ChangeSummary string     `json:"changeSummary"`
	File          *FileRef   `json:"file,omitempty"`
}

// NewVersion is the result of a successful RequestNewVersion. SupersededID is
// the id of the record the caller must flip to superseded in the same commit;
// it is empty when no prior current record exists.
type NewVersion struct {
	Document     Document      `json:"document"`
	Version      VersionRecord `json:"version"`
	SupersededID string        `json:"supersededId,omitempty"`
}

// RequestNewVersion validates and computes a version bump. history is the
// document's existing version records in any order.
func (e *Engine) RequestNewVersion(doc Document, actor Actor, history []VersionRecord, req NewVersionRequest) (NewVersion, error) {
	if IsTerminal(doc.Status) {
		return NewVersion{}, &TerminalStateError{Status: doc.Status}
	}
	if d := Evaluate(actor, doc, ActionCreateVersion); !d.Allowed {
		return NewVersion{}, &PermissionDeniedError{Action: ActionCreateVersion, Reason: d.Reason}
	}
	if !req.ChangeType.Valid() {
		return NewVersion{}, &ValidationError{Field: "changeType", Rule: RuleInvalid}
	}
	reason := strings.TrimSpace(req.ChangeReason)
	summary := strings.TrimSpace(req.ChangeSummary)
	if err := minLength("changeReason", reason, e.rules.MinReasonLength); err != nil {
		return NewVersion{}, err
	}
	if err := minLength("changeSummary", summary, e.rules.MinSummaryLength); err != nil {
		return NewVersion{}, err
	}

	current, err := ParseVersion(doc.Version)
	if err != nil {
		return NewVersion{}, &ValidationError{Field: "version", Rule: RuleInvalid}
	}
	next, err := current.Next(req.ChangeType)
	if err != nil {
		return NewVersion{}, err
	}

	superseded, err := currentRecord(doc.ID, history)
	if err != nil {
		return NewVersion{}, err
	}
	var supersededID string
	if superseded != nil {
		if pv, perr := ParseVersion(superseded.Version); perr == nil && !pv.Less(next) {
			return NewVersion{}, &InconsistentHistoryError{
				DocumentID: doc.ID,
				Detail:     "current version record " + superseded.Version + " is not older than " + next.String(),
			}
		}
		supersededID = superseded.ID
	}

	now := e.now().UTC()
	out := doc.Clone()
	out.Version = next.String()
	out.Status = StatusDraft
	out.UpdatedAt = now

	var file *FileRef
	if req.File != nil {
		f := *req.File
		file = &f
	}

	return NewVersion{
		Document: out,
		Version: VersionRecord{
			ID:             e.newID(),
			DocumentID:     doc.ID,
			Version:        next.String(),
			ChangeType:     req.ChangeType,
			ChangeReason:   reason,
			ChangeSummary:  summary,
			Title:          doc.Title,
			Description:    doc.Description,
			File:           file,
			CreatedBy:      actor.ID,
			CreatedAt:      now,
			LifecycleState: VersionCurrent,
		},
		SupersededID: supersededID,
	}, nil
}

// currentRecord finds the single current record for the document.
func currentRecord(docID string, history []VersionRecord) (*VersionRecord, error) {
	var found *VersionRecord
	for i := range history {
		r := &history[i]
		if r.DocumentID != docID || r.LifecycleState != VersionCurrent {
			continue
		}
		if found != nil {
			return nil, &InconsistentHistoryError{DocumentID: docID, Detail: "more than one current version record"}
		}
		found = r
	}
	return found, nil
}

// DocumentDraft is the input for CreateDocument.
type DocumentDraft struct {
	ID            string        `json:"id,omitempty"`
	DocumentCode  string        `json:"documentCode"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	Type          string        `json:"type"`
	Department    string        `json:"department"`
	SecurityLevel SecurityLevel `json:"securityLevel,omitempty"`
	Priority      Priority      `json:"priority,omitempty"`
	Recipients    []string      `json:"recipients,omitempty"`
	File          *FileRef      `json:"file,omitempty"`
}

// Creation is the result of CreateDocument.
type Creation struct {
	Document   Document         `json:"document"`
	Version    VersionRecord    `json:"version"`
	Transition TransitionRecord `json:"transition"`
}

// CreateDocument builds the first snapshot of a document authored by actor,
// together with its initial version record and the opening transition.
func (e *Engine) CreateDocument(actor Actor, draft DocumentDraft, client ClientInfo) (Creation, error) {
	if actor.ID == "" {
		return Creation{}, &ValidationError{Field: "actor", Rule: RuleRequired}
	}
	if actor.Role == RoleGuest {
		return Creation{}, &PermissionDeniedError{Action: ActionEdit, Reason: ReasonNotOwner}
	}
	required := []struct{ field, value string }{
		{"documentCode", draft.DocumentCode},
		{"title", draft.Title},
		{"type", draft.Type},
		{"department", draft.Department},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return Creation{}, &ValidationError{Field: r.field, Rule: RuleRequired}
		}
	}
	if actor.Role != RoleAdmin && !actor.Has(PermManageDocuments) && actor.Department != draft.Department {
		return Creation{}, &PermissionDeniedError{Action: ActionEdit, Reason: ReasonWrongDepartment}
	}

	now := e.now().UTC()
	id := draft.ID
	if id == "" {
		id = e.newID()
	}
	level := draft.SecurityLevel
	if level == "" {
		level = SecurityInternal
	}
	priority := draft.Priority
	if priority == "" {
		priority = PriorityNormal
	}

	doc := Document{
		ID:            id,
		DocumentCode:  strings.TrimSpace(draft.DocumentCode),
		Title:         strings.TrimSpace(draft.Title),
		Description:   draft.Description,
		Type:          draft.Type,
		Department:    draft.Department,
		Status:        InitialStatus,
		Version:       InitialVersion,
		AuthorID:      actor.ID,
		SecurityLevel: level,
		Priority:      priority,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	doc.Recipients = append(doc.Recipients, draft.Recipients...)

	var file *FileRef
	if draft.File != nil {
		f := *draft.File
		file = &f
	}

	return Creation{
		Document: doc,
		Version: VersionRecord{
			ID:             e.newID(),
			DocumentID:     id,
			Version:        InitialVersion,
			ChangeType:     ChangeMajor,
			ChangeReason:   "initial version",
			ChangeSummary:  "document created",
			Title:          doc.Title,
			Description:    doc.Description,
			File:           file,
			CreatedBy:      actor.ID,
			CreatedAt:      now,
			LifecycleState: VersionCurrent,
		},
		Transition: TransitionRecord{
			ID:              e.newID(),
			DocumentID:      id,
			ToStatus:        InitialStatus,
			ActorID:         actor.ID,
			ActorDepartment: actor.Department,
			Timestamp:       now,
			IPAddress:       client.IPAddress,
			UserAgent:       client.UserAgent,
		},
	}, nil
}

// CheckImmutable rejects an update that would change the document code.
func CheckImmutable(before, after Document) error {
	if before.DocumentCode != after.DocumentCode {
		return &ValidationError{Field: "documentCode", Rule: RuleImmutable}
	}
	return nil
}

// TransitionOption describes one outgoing edge for the allowed-action set.
type TransitionOption struct {
	To      Status          `json:"to"`
	Class   TransitionClass `json:"class"`
	Allowed bool            `json:"allowed"`
	Reason  Reason          `json:"reason,omitempty"`
}

// ActionSet is what a UI renders instead of re-deriving the rules.
type ActionSet struct {
	Actions     map[ActionKind]Decision `json:"actions"`
	Transitions []TransitionOption      `json:"transitions"`
}

// AllowedActions evaluates every action and outgoing transition for actor.
func AllowedActions(actor Actor, doc Document) ActionSet {
	set := ActionSet{Actions: make(map[ActionKind]Decision, len(documentActions))}
	for _, a := range documentActions {
		set.Actions[a.Kind] = Evaluate(actor, doc, a)
	}
	for _, to := range AllowedTransitions(doc.Status) {
		d := Evaluate(actor, doc, ChangeStatus(doc.Status, to))
		set.Transitions = append(set.Transitions, TransitionOption{
			To:      to,
			Class:   TransitionClassOf(doc.Status, to),
			Allowed: d.Allowed,
			Reason:  d.Reason,
		})
	}
	return set
}

// ValidateHistory checks that the recorded transitions walk the table from
// the initial status to doc.Status. Version records other than the first
// reset the walk to draft, since a new version re-enters the edit cycle
// without a transition of its own. Both slices may be in any order.
func ValidateHistory(doc Document, transitions []TransitionRecord, versions []VersionRecord) error {
	if len(transitions) == 0 {
		return &InconsistentHistoryError{DocumentID: doc.ID, Detail: "no transitions recorded"}
	}

	type step struct {
		at         time.Time
		transition *TransitionRecord
	}
	steps := make([]step, 0, len(transitions)+len(versions))
	for i := range transitions {
		steps = append(steps, step{at: transitions[i].Timestamp, transition: &transitions[i]})
	}
	for _, v := range versions {
		if v.Version != InitialVersion {
			steps = append(steps, step{at: v.CreatedAt})
		}
	}
	// Version bumps sort ahead of transitions recorded at the same instant.
	slices.SortStableFunc(steps, func(a, b step) int {
		if c := a.at.Compare(b.at); c != 0 {
			return c
		}
		switch {
		case a.transition == nil && b.transition != nil:
			return -1
		case a.transition != nil && b.transition == nil:
			return 1
		}
		return 0
	})

	first := steps[0].transition
	if first == nil || first.FromStatus != nil || first.ToStatus != InitialStatus {
		return &InconsistentHistoryError{DocumentID: doc.ID, Detail: "first transition must open the document as " + string(InitialStatus)}
	}
	at := first.ToStatus
	for _, s := range steps[1:] {
		t := s.transition
		if t == nil {
			at = StatusDraft
			continue
		}
		if t.FromStatus == nil || *t.FromStatus != at {
			return &InconsistentHistoryError{DocumentID: doc.ID, Detail: "transition " + t.ID + " does not start at " + string(at)}
		}
		if !IsLegalTransition(at, t.ToStatus) {
			return &InconsistentHistoryError{DocumentID: doc.ID, Detail: "transition " + t.ID + " is not in the transition table"}
		}
		at = t.ToStatus
	}
	if at != doc.Status {
		return &InconsistentHistoryError{DocumentID: doc.ID, Detail: "history ends at " + string(at) + " but document is " + string(doc.Status)}
	}
	return nil
}

func minLength(field, value string, min int) error {
	if value == "" {
		return &ValidationError{Field: field, Rule: RuleRequired, Min: min}
	}
	if utf8.RuneCountInString(value) < min {
		return &ValidationError{Field: field, Rule: RuleMinLength, Min: min}
	}
	return nil
}
