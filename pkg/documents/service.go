// Package documents drives the lifecycle engine against durable storage:
// fetch the current snapshot, ask the engine for the outcome, commit it
// atomically and record the audit trail.
package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docflow/edms/pkg/audit"
	"github.com/docflow/edms/pkg/lifecycle"
	"github.com/docflow/edms/pkg/store"
)

// Store is the persistence contract the service needs.
type Store interface {
	CreateDocument(ctx context.Context, c lifecycle.Creation) error
	GetDocument(ctx context.Context, id string) (lifecycle.Document, error)
	ListDocuments(ctx context.Context, filter store.ListFilter, pageSize int, pageToken string) ([]lifecycle.Document, string, error)
	CommitStatusChange(ctx context.Context, expected lifecycle.Document, change lifecycle.StatusChange) (lifecycle.Document, error)
	CommitNewVersion(ctx context.Context, expected lifecycle.Document, nv lifecycle.NewVersion) (lifecycle.Document, error)
	ListVersions(ctx context.Context, documentID string) ([]lifecycle.VersionRecord, error)
	GetVersion(ctx context.Context, documentID, versionID string) (lifecycle.VersionRecord, error)
	ListTransitions(ctx context.Context, documentID string) ([]lifecycle.TransitionRecord, error)
}

// HistoryReader pages through the audit events of one document.
type HistoryReader interface {
	ListByDocument(ctx context.Context, documentID string, pageSize int, pageToken string) ([]audit.Event, string, int, error)
}

// ContentLoader extracts the text body of a stored file.
type ContentLoader interface {
	Load(ctx context.Context, f lifecycle.FileRef) (string, error)
}

const (
	opCreate       = "create"
	opChangeStatus = "change_status"
	opNewVersion   = "new_version"
	opCompare      = "compare"
)

// Service coordinates engine decisions with storage and audit.
type Service struct {
	store    Store
	engine   *lifecycle.Engine
	recorder audit.Recorder
	history  HistoryReader
	content  ContentLoader
	retries  int
	logger   *slog.Logger
	metrics  *Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder sets the audit sink. Defaults to audit.Nop.
func WithRecorder(r audit.Recorder) Option { return func(s *Service) { s.recorder = r } }

// WithHistory sets the reader behind History.
func WithHistory(h HistoryReader) Option { return func(s *Service) { s.history = h } }

// WithContentLoader enables content diffs in Compare.
func WithContentLoader(l ContentLoader) Option { return func(s *Service) { s.content = l } }

// WithRetries sets how many times a commit that lost a race is re-evaluated
// against a fresh snapshot.
func WithRetries(n int) Option { return func(s *Service) { s.retries = n } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithMetrics(m *Metrics) Option { return func(s *Service) { s.metrics = m } }

// NewService builds a Service around st and engine.
func NewService(st Store, engine *lifecycle.Engine, opts ...Option) *Service {
	s := &Service{
		store:    st,
		engine:   engine,
		recorder: audit.Nop{},
		retries:  3,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if s.retries < 0 {
		s.retries = 0
	}
	return s
}

// Create opens a new document in draft at the initial version.
func (s *Service) Create(ctx context.Context, actor lifecycle.Actor, draft lifecycle.DocumentDraft, client lifecycle.ClientInfo) (lifecycle.Creation, error) {
	defer s.observe(opCreate, time.Now())

	c, err := s.engine.CreateDocument(actor, draft, client)
	if err == nil {
		err = s.store.CreateDocument(ctx, c)
	}
	s.metrics.DocumentsCreated.WithLabelValues(outcomeLabel(err)).Inc()
	if err != nil {
		s.logFailure(opCreate, draft.ID, actor, err)
		return lifecycle.Creation{}, err
	}

	s.record(ctx, audit.FromVersion(c.Version, ""))
	s.record(ctx, audit.FromTransition(c.Transition))
	s.logger.Info("document created", "documentId", c.Document.ID, "documentCode", c.Document.DocumentCode, "actor", actor.ID)
	return c, nil
}

// Get returns a document the actor is allowed to view.
func (s *Service) Get(ctx context.Context, actor lifecycle.Actor, id string) (lifecycle.Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return lifecycle.Document{}, err
	}
	if err := requireView(actor, doc); err != nil {
		return lifecycle.Document{}, err
	}
	return doc, nil
}

// List returns one page of documents, keeping only those the actor may view.
// A page can therefore hold fewer than pageSize entries while a next token
// is still returned.
func (s *Service) List(ctx context.Context, actor lifecycle.Actor, filter store.ListFilter, pageSize int, pageToken string) ([]lifecycle.Document, string, error) {
	docs, next, err := s.store.ListDocuments(ctx, filter, pageSize, pageToken)
	if err != nil {
		return nil, "", err
	}
	visible := docs[:0]
	for _, d := range docs {
		if lifecycle.CanPerform(actor, d, lifecycle.ActionView) {
			visible = append(visible, d)
		}
	}
	return visible, next, nil
}

// ChangeStatus moves a document to status to. A commit that loses the
// compare-and-swap is re-evaluated on a fresh snapshot, so a retry that is
// no longer legal surfaces the engine's error rather than the conflict.
func (s *Service) ChangeStatus(ctx context.Context, actor lifecycle.Actor, id string, to lifecycle.Status, comment string, client lifecycle.ClientInfo) (lifecycle.StatusChange, error) {
	defer s.observe(opChangeStatus, time.Now())

	var from lifecycle.Status
	for attempt := 0; ; attempt++ {
		doc, err := s.store.GetDocument(ctx, id)
		if err != nil {
			return lifecycle.StatusChange{}, err
		}
		from = doc.Status
		if err := requireView(actor, doc); err != nil {
			s.metrics.TransitionsTotal.WithLabelValues(string(from), statusLabel(to), outcomeLabel(err)).Inc()
			s.logFailure(opChangeStatus, id, actor, err)
			return lifecycle.StatusChange{}, err
		}

		change, err := s.engine.RequestStatusChange(doc, actor, to, comment, client)
		if err != nil {
			s.metrics.TransitionsTotal.WithLabelValues(string(from), statusLabel(to), outcomeLabel(err)).Inc()
			s.logFailure(opChangeStatus, id, actor, err)
			return lifecycle.StatusChange{}, err
		}

		committed, err := s.store.CommitStatusChange(ctx, doc, change)
		if errors.Is(err, store.ErrConcurrentModification) {
			s.metrics.CommitConflicts.WithLabelValues(opChangeStatus).Inc()
			if attempt < s.retries {
				s.logger.Debug("status change lost race; retrying", "documentId", id, "attempt", attempt+1)
				continue
			}
			err = fmt.Errorf("%w after %d attempts", err, attempt+1)
		}
		s.metrics.TransitionsTotal.WithLabelValues(string(from), statusLabel(to), outcomeLabel(err)).Inc()
		if err != nil {
			s.logFailure(opChangeStatus, id, actor, err)
			return lifecycle.StatusChange{}, err
		}

		change.Document = committed
		s.record(ctx, audit.FromTransition(change.Transition))
		s.logger.Info("document status changed", "documentId", id, "fromStatus", from, "toStatus", to, "actor", actor.ID)
		return change, nil
	}
}

// NewVersion bumps the document version, supersedes the previous current
// record and resets the document to draft.
func (s *Service) NewVersion(ctx context.Context, actor lifecycle.Actor, id string, req lifecycle.NewVersionRequest) (lifecycle.NewVersion, error) {
	defer s.observe(opNewVersion, time.Now())

	for attempt := 0; ; attempt++ {
		doc, err := s.store.GetDocument(ctx, id)
		if err != nil {
			return lifecycle.NewVersion{}, err
		}
		if err := requireView(actor, doc); err != nil {
			s.metrics.VersionsTotal.WithLabelValues(changeTypeLabel(req.ChangeType), outcomeLabel(err)).Inc()
			s.logFailure(opNewVersion, id, actor, err)
			return lifecycle.NewVersion{}, err
		}
		history, err := s.store.ListVersions(ctx, id)
		if err != nil {
			return lifecycle.NewVersion{}, err
		}

		nv, err := s.engine.RequestNewVersion(doc, actor, history, req)
		if err != nil {
			s.metrics.VersionsTotal.WithLabelValues(changeTypeLabel(req.ChangeType), outcomeLabel(err)).Inc()
			s.logFailure(opNewVersion, id, actor, err)
			return lifecycle.NewVersion{}, err
		}

		committed, err := s.store.CommitNewVersion(ctx, doc, nv)
		if errors.Is(err, store.ErrConcurrentModification) {
			s.metrics.CommitConflicts.WithLabelValues(opNewVersion).Inc()
			if attempt < s.retries {
				s.logger.Debug("new version lost race; retrying", "documentId", id, "attempt", attempt+1)
				continue
			}
			err = fmt.Errorf("%w after %d attempts", err, attempt+1)
		}
		s.metrics.VersionsTotal.WithLabelValues(changeTypeLabel(req.ChangeType), outcomeLabel(err)).Inc()
		if err != nil {
			s.logFailure(opNewVersion, id, actor, err)
			return lifecycle.NewVersion{}, err
		}

		nv.Document = committed
		s.record(ctx, audit.FromVersion(nv.Version, nv.SupersededID))
		s.logger.Info("document version created", "documentId", id, "version", nv.Version.Version, "changeType", req.ChangeType, "actor", actor.ID)
		return nv, nil
	}
}

// Versions lists the version records of a visible document, oldest first.
func (s *Service) Versions(ctx context.Context, actor lifecycle.Actor, id string) ([]lifecycle.VersionRecord, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, id)
}

// Transitions lists the status history of a visible document, oldest first.
func (s *Service) Transitions(ctx context.Context, actor lifecycle.Actor, id string) ([]lifecycle.TransitionRecord, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.store.ListTransitions(ctx, id)
}

// Compare diffs two versions of a visible document. Content is diffed only
// when a loader is configured and both files are text; a failed load
// degrades to a metadata-only comparison.
func (s *Service) Compare(ctx context.Context, actor lifecycle.Actor, id, leftID, rightID string) (lifecycle.Comparison, error) {
	defer s.observe(opCompare, time.Now())

	if _, err := s.Get(ctx, actor, id); err != nil {
		return lifecycle.Comparison{}, err
	}
	left, err := s.store.GetVersion(ctx, id, leftID)
	if err != nil {
		return lifecycle.Comparison{}, err
	}
	right, err := s.store.GetVersion(ctx, id, rightID)
	if err != nil {
		return lifecycle.Comparison{}, err
	}
	return lifecycle.Compare(left, right, s.loadContent(ctx, left, right)), nil
}

func (s *Service) loadContent(ctx context.Context, left, right lifecycle.VersionRecord) *lifecycle.ContentPair {
	if s.content == nil || !lifecycle.IsTextExtractable(left.File) || !lifecycle.IsTextExtractable(right.File) {
		return nil
	}
	l, err := s.content.Load(ctx, *left.File)
	if err != nil {
		s.logger.Warn("content load failed", "versionId", left.ID, "fileKey", left.File.Key, "error", err)
		return nil
	}
	r, err := s.content.Load(ctx, *right.File)
	if err != nil {
		s.logger.Warn("content load failed", "versionId", right.ID, "fileKey", right.File.Key, "error", err)
		return nil
	}
	return &lifecycle.ContentPair{Left: l, Right: r}
}

// Permissions reports what the actor may do with a visible document.
func (s *Service) Permissions(ctx context.Context, actor lifecycle.Actor, id string) (lifecycle.ActionSet, error) {
	doc, err := s.Get(ctx, actor, id)
	if err != nil {
		return lifecycle.ActionSet{}, err
	}
	return lifecycle.AllowedActions(actor, doc), nil
}

// History returns a page of audit events for a visible document.
func (s *Service) History(ctx context.Context, actor lifecycle.Actor, id string, pageSize int, pageToken string) ([]audit.Event, string, int, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, "", 0, err
	}
	if s.history == nil {
		return []audit.Event{}, "", 0, nil
	}
	return s.history.ListByDocument(ctx, id, pageSize, pageToken)
}

// Verify replays the stored transition and version log of a visible
// document and reports an InconsistentHistoryError if it does not walk the
// transition table to the current status.
func (s *Service) Verify(ctx context.Context, actor lifecycle.Actor, id string) error {
	doc, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	transitions, err := s.store.ListTransitions(ctx, id)
	if err != nil {
		return err
	}
	versions, err := s.store.ListVersions(ctx, id)
	if err != nil {
		return err
	}
	if err := lifecycle.ValidateHistory(doc, transitions, versions); err != nil {
		s.logger.Error("document history is inconsistent", "documentId", id, "error", err)
		return err
	}
	return nil
}

func requireView(actor lifecycle.Actor, doc lifecycle.Document) error {
	if d := lifecycle.Evaluate(actor, doc, lifecycle.ActionView); !d.Allowed {
		return &lifecycle.PermissionDeniedError{Action: lifecycle.ActionView, Reason: d.Reason}
	}
	return nil
}

// record writes an audit event. The change is already committed, so a sink
// failure is logged and not returned.
func (s *Service) record(ctx context.Context, e audit.Event) {
	if err := s.recorder.Record(ctx, e); err != nil {
		s.logger.Error("failed to record audit event", "kind", e.Kind, "documentId", e.DocumentID, "error", err)
	}
}

func (s *Service) observe(op string, start time.Time) {
	s.metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// logFailure picks the level by error class: overflow and broken history are
// system anomalies, everything else is the caller's problem.
func (s *Service) logFailure(op, id string, actor lifecycle.Actor, err error) {
	attrs := []any{"op", op, "documentId", id, "actor", actor.ID, "error", err}
	var (
		overflow  *lifecycle.VersionOverflowError
		inconsist *lifecycle.InconsistentHistoryError
		denied    *lifecycle.PermissionDeniedError
	)
	switch {
	case errors.As(err, &overflow), errors.As(err, &inconsist):
		s.logger.Error("lifecycle anomaly", attrs...)
	case errors.As(err, &denied):
		s.logger.Info("lifecycle request denied", append(attrs, "reason", denied.Reason)...)
	case errors.Is(err, store.ErrConcurrentModification):
		s.logger.Warn("lifecycle commit conflict", attrs...)
	case isUserError(err):
		s.logger.Debug("lifecycle request rejected", attrs...)
	default:
		s.logger.Error("lifecycle request failed", attrs...)
	}
}

func isUserError(err error) bool {
	var c lifecycle.Coder
	return errors.As(err, &c) || errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrDuplicateCode)
}
