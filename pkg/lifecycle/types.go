// Package lifecycle is the document lifecycle engine. It owns the status
// transition table, the permission rules, the MM.mm version scheme and the
// records each transition or version bump produces. Every operation is a pure
// function of its inputs: callers fetch snapshots, invoke the engine and
// persist what it returns.
package lifecycle

import (
	"slices"
	"time"
)

// Status represents document lifecycle states.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusReview    Status = "review"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusDisposed  Status = "disposed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusDraft, StatusReview, StatusPublished, StatusArchived, StatusDisposed}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// ChangeType classifies a version bump.
type ChangeType string

const (
	ChangeMinor ChangeType = "minor"
	ChangeMajor ChangeType = "major"
)

func (c ChangeType) Valid() bool {
	return c == ChangeMinor || c == ChangeMajor
}

// VersionState tags a VersionRecord as the live one or a historical one.
type VersionState string

const (
	VersionCurrent    VersionState = "current"
	VersionSuperseded VersionState = "superseded"
)

// Role is the coarse role an actor holds.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
	RoleGuest   Role = "guest"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleUser, RoleGuest:
		return true
	}
	return false
}

// Permission is an explicit grant carried by an actor on top of its role.
type Permission string

const (
	PermManageDocuments  Permission = "manage_documents"
	PermApproveDocuments Permission = "approve_documents"
	PermCreateVersions   Permission = "create_versions"
	PermViewAllDocuments Permission = "view_all_documents"
)

// SecurityLevel controls default visibility of a document.
type SecurityLevel string

const (
	SecurityPublic       SecurityLevel = "public"
	SecurityInternal     SecurityLevel = "internal"
	SecurityConfidential SecurityLevel = "confidential"
	SecuritySecret       SecurityLevel = "secret"
)

// Priority is informational only; the engine never branches on it.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Document is the aggregate the engine reasons about. The engine never
// mutates a Document it receives; it returns modified copies.
type Document struct {
	ID            string        `json:"id"`
	DocumentCode  string        `json:"documentCode"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	Type          string        `json:"type"`
	Department    string        `json:"department"`
	Status        Status        `json:"status"`
	Version       string        `json:"version"`
	AuthorID      string        `json:"authorId"`
	SecurityLevel SecurityLevel `json:"securityLevel"`
	Priority      Priority      `json:"priority"`
	Recipients    []string      `json:"recipients,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	ArchivedAt    *time.Time    `json:"archivedAt,omitempty"`

	// Revision is the storage row version used for compare-and-swap commits.
	// The engine carries it through untouched.
	Revision int64 `json:"revision"`
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	out := d
	out.Recipients = slices.Clone(d.Recipients)
	if d.ArchivedAt != nil {
		t := *d.ArchivedAt
		out.ArchivedAt = &t
	}
	return out
}

// FileRef points at stored file content. Storage itself is external.
type FileRef struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mimeType,omitempty"`
}

// VersionRecord is an immutable snapshot describing one edit cycle.
type VersionRecord struct {
	ID             string       `json:"id"`
	DocumentID     string       `json:"documentId"`
	Version        string       `json:"version"`
	ChangeType     ChangeType   `json:"changeType"`
	ChangeReason   string       `json:"changeReason"`
	ChangeSummary  string       `json:"changeSummary"`
	Title          string       `json:"title"`
	Description    string       `json:"description,omitempty"`
	File           *FileRef     `json:"file,omitempty"`
	CreatedBy      string       `json:"createdBy"`
	CreatedAt      time.Time    `json:"createdAt"`
	LifecycleState VersionState `json:"lifecycleState"`
}

// TransitionRecord is an append-only audit entry for a status change.
type TransitionRecord struct {
	ID              string    `json:"id"`
	DocumentID      string    `json:"documentId"`
	FromStatus      *Status   `json:"fromStatus"`
	ToStatus        Status    `json:"toStatus"`
	ActorID         string    `json:"actorId"`
	ActorDepartment string    `json:"actorDepartment"`
	Comment         string    `json:"comment,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	IPAddress       string    `json:"ipAddress,omitempty"`
	UserAgent       string    `json:"userAgent,omitempty"`
}

// Actor is the identity invoking an operation. It is supplied per call.
type Actor struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Department  string       `json:"department"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// Has reports whether the actor carries the explicit grant p.
func (a Actor) Has(p Permission) bool {
	return slices.Contains(a.Permissions, p)
}
