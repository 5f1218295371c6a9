package lifecycle

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

// ActionKind enumerates what an actor may attempt on a document.
type ActionKind string

const (
	ActEdit          ActionKind = "edit"
	ActDelete        ActionKind = "delete"
	ActApprove       ActionKind = "approve"
	ActCreateVersion ActionKind = "createVersion"
	ActChangeStatus  ActionKind = "changeStatus"
	ActView          ActionKind = "view"
	ActDownload      ActionKind = "download"
	ActShare         ActionKind = "share"
	ActArchive       ActionKind = "archive"
	ActRestore       ActionKind = "restore"
)

// Action is an ActionKind plus, for ActChangeStatus, the transition requested.
type Action struct {
	Kind ActionKind
	From Status
	To   Status
}

var (
	ActionEdit          = Action{Kind: ActEdit}
	ActionDelete        = Action{Kind: ActDelete}
	ActionApprove       = Action{Kind: ActApprove}
	ActionCreateVersion = Action{Kind: ActCreateVersion}
	ActionView          = Action{Kind: ActView}
	ActionDownload      = Action{Kind: ActDownload}
	ActionShare         = Action{Kind: ActShare}
	ActionArchive       = Action{Kind: ActArchive}
	ActionRestore       = Action{Kind: ActRestore}
)

// documentActions are the non-transition actions, in display order.
var documentActions = []Action{
	ActionView, ActionEdit, ActionDelete, ActionApprove, ActionCreateVersion,
	ActionDownload, ActionShare, ActionArchive, ActionRestore,
}

// ChangeStatus builds the action for a from->to status change.
func ChangeStatus(from, to Status) Action {
	return Action{Kind: ActChangeStatus, From: from, To: to}
}

func (a Action) String() string {
	if a.Kind == ActChangeStatus {
		return fmt.Sprintf("changeStatus(%s->%s)", a.From, a.To)
	}
	return string(a.Kind)
}

// MarshalText renders the action in its String form.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Reason explains a denied decision so callers can produce a precise message.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonNotOwner             Reason = "NOT_OWNER"
	ReasonWrongDepartment      Reason = "WRONG_DEPARTMENT"
	ReasonPrivilegedTransition Reason = "PRIVILEGED_TRANSITION"
	ReasonTerminalState        Reason = "TERMINAL_STATE"
	ReasonWrongStatus          Reason = "WRONG_STATUS"
	ReasonIllegalTransition    Reason = "ILLEGAL_TRANSITION"
)

// Decision is the evaluator's verdict.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
}

func allow() Decision        { return Decision{Allowed: true} }
func deny(r Reason) Decision { return Decision{Reason: r} }

// CanPerform reports whether actor may perform action on doc.
func CanPerform(actor Actor, doc Document, action Action) bool {
	return Evaluate(actor, doc, action).Allowed
}

// Evaluate applies the permission rules in precedence order. It never fails;
// a denial carries a Reason.
func Evaluate(actor Actor, doc Document, action Action) Decision {
	s := newSubject(actor, doc)

	switch action.Kind {
	case ActView, ActDownload, ActShare:
		return s.visibility(action)
	case ActChangeStatus:
		return s.statusChange(action.From, action.To)
	}

	// A new version would move the document out of its status, which a
	// terminal status forbids even for admins.
	if action.Kind == ActCreateVersion && IsTerminal(doc.Status) {
		return deny(ReasonTerminalState)
	}
	if s.isAdmin() {
		return allow()
	}
	if IsTerminal(doc.Status) {
		return deny(ReasonTerminalState)
	}

	switch action.Kind {
	case ActEdit, ActDelete:
		if s.isOwner() && doc.Status == StatusDraft {
			return allow()
		}
		if s.isDepartmentManager() || s.has(PermManageDocuments) {
			return allow()
		}
	case ActApprove:
		if doc.Status != StatusReview {
			return deny(ReasonWrongStatus)
		}
		if s.isDepartmentManager() || s.has(PermApproveDocuments) || s.has(PermManageDocuments) {
			return allow()
		}
	case ActArchive:
		if doc.Status != StatusPublished {
			return deny(ReasonWrongStatus)
		}
		if s.isDepartmentManager() || s.has(PermManageDocuments) {
			return allow()
		}
	case ActRestore:
		if doc.Status != StatusArchived {
			return deny(ReasonWrongStatus)
		}
		if s.isDepartmentManager() || s.has(PermManageDocuments) {
			return allow()
		}
	case ActCreateVersion:
		// The same authority applies in every non-terminal status. A version
		// carries its own reason and summary, so it is not gated like the
		// bare published -> draft revert.
		if s.isOwner() || s.isDepartmentManager() || s.has(PermCreateVersions) || s.has(PermManageDocuments) {
			return allow()
		}
	default:
		return deny(ReasonNone)
	}
	return deny(s.fallbackReason())
}

func (s subject) statusChange(from, to Status) Decision {
	if from != s.doc.Status {
		return deny(ReasonWrongStatus)
	}
	if IsTerminal(from) {
		return deny(ReasonTerminalState)
	}
	switch TransitionClassOf(from, to) {
	case ClassIllegal:
		return deny(ReasonIllegalTransition)
	case ClassPrivileged:
		if s.canManage() {
			return allow()
		}
		return deny(ReasonPrivilegedTransition)
	}

	if s.canManage() {
		return allow()
	}
	switch {
	case from == StatusDraft && to == StatusReview:
		if s.isOwner() || s.isDepartmentManager() {
			return allow()
		}
	case from == StatusReview:
		if s.isDepartmentManager() || s.has(PermApproveDocuments) {
			return allow()
		}
	case from == StatusArchived && to == StatusPublished:
		if s.isDepartmentManager() {
			return allow()
		}
	}
	return deny(s.fallbackReason())
}

func (s subject) visibility(action Action) Decision {
	visible := s.isAdmin() ||
		s.isOwner() ||
		s.sameDepartment() ||
		s.isRecipient() ||
		s.doc.SecurityLevel == SecurityPublic ||
		s.has(PermViewAllDocuments) ||
		s.has(PermManageDocuments)
	if !visible {
		return deny(ReasonWrongDepartment)
	}
	if action.Kind == ActView || s.canManage() {
		return allow()
	}
	if s.doc.Status != StatusPublished {
		return deny(ReasonWrongStatus)
	}
	return allow()
}

// subject bundles an actor and a document for rule evaluation.
type subject struct {
	actor Actor
	doc   Document
	perms mapset.Set[Permission]
}

func newSubject(actor Actor, doc Document) subject {
	return subject{
		actor: actor,
		doc:   doc,
		perms: mapset.NewThreadUnsafeSet(actor.Permissions...),
	}
}

func (s subject) isAdmin() bool { return s.actor.Role == RoleAdmin }

func (s subject) has(p Permission) bool { return s.perms.Contains(p) }

// canManage is the authority privileged transitions require.
func (s subject) canManage() bool { return s.isAdmin() || s.has(PermManageDocuments) }

func (s subject) isOwner() bool {
	return s.actor.ID != "" && s.actor.ID == s.doc.AuthorID
}

func (s subject) sameDepartment() bool {
	return s.actor.Department != "" && s.actor.Department == s.doc.Department
}

func (s subject) isDepartmentManager() bool {
	return s.actor.Role == RoleManager && s.sameDepartment()
}

func (s subject) isRecipient() bool {
	if s.actor.Department == "" || len(s.doc.Recipients) == 0 {
		return false
	}
	return mapset.NewThreadUnsafeSet(s.doc.Recipients...).Contains(s.actor.Department)
}

func (s subject) fallbackReason() Reason {
	if s.sameDepartment() {
		return ReasonNotOwner
	}
	return ReasonWrongDepartment
}
