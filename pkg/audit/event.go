// Package audit records the append-only history of document lifecycle
// activity: transitions, version bumps and audited HTTP requests.
package audit

import (
	"context"
	"time"

	"github.com/docflow/edms/pkg/lifecycle"
)

// Kind identifies what an event describes.
type Kind string

const (
	KindStatusChanged  Kind = "document.status_changed"
	KindVersionCreated Kind = "document.version_created"
	KindRequest        Kind = "http.request"
)

// Outcome of an audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeDenied  Outcome = "denied"
	OutcomeFailure Outcome = "failure"
)

// Event is one audit entry. Transition and version events carry the
// lifecycle fields; request events carry the HTTP fields.
type Event struct {
	ID              string         `json:"id"`
	Kind            Kind           `json:"kind"`
	DocumentID      string         `json:"documentId,omitempty"`
	Actor           string         `json:"actor"`
	ActorDepartment string         `json:"actorDepartment,omitempty"`
	FromStatus      string         `json:"fromStatus,omitempty"`
	ToStatus        string         `json:"toStatus,omitempty"`
	Version         string         `json:"version,omitempty"`
	ChangeType      string         `json:"changeType,omitempty"`
	Comment         string         `json:"comment,omitempty"`
	Outcome         Outcome        `json:"outcome"`
	Action          string         `json:"action,omitempty"`
	StatusCode      int            `json:"statusCode,omitempty"`
	RequestID       string         `json:"requestId,omitempty"`
	IPAddress       string         `json:"ipAddress,omitempty"`
	UserAgent       string         `json:"userAgent,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// Recorder is the durable, append-only sink for audit events.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

// FromTransition builds the event for a committed status change. The
// opening transition of a document has an empty FromStatus.
func FromTransition(tr lifecycle.TransitionRecord) Event {
	e := Event{
		ID:              tr.ID,
		Kind:            KindStatusChanged,
		DocumentID:      tr.DocumentID,
		Actor:           tr.ActorID,
		ActorDepartment: tr.ActorDepartment,
		ToStatus:        string(tr.ToStatus),
		Comment:         tr.Comment,
		Outcome:         OutcomeSuccess,
		Action:          "changeStatus",
		IPAddress:       tr.IPAddress,
		UserAgent:       tr.UserAgent,
		CreatedAt:       tr.Timestamp,
	}
	if tr.FromStatus != nil {
		e.FromStatus = string(*tr.FromStatus)
	}
	return e
}

// FromVersion builds the event for a committed version record.
func FromVersion(v lifecycle.VersionRecord, supersededID string) Event {
	e := Event{
		ID:         v.ID,
		Kind:       KindVersionCreated,
		DocumentID: v.DocumentID,
		Actor:      v.CreatedBy,
		Version:    v.Version,
		ChangeType: string(v.ChangeType),
		Comment:    v.ChangeReason,
		Outcome:    OutcomeSuccess,
		Action:     "createVersion",
		CreatedAt:  v.CreatedAt,
		Metadata: map[string]any{
			"changeSummary": v.ChangeSummary,
		},
	}
	if supersededID != "" {
		e.Metadata["supersededId"] = supersededID
	}
	if v.File != nil {
		e.Metadata["fileName"] = v.File.Name
	}
	return e
}
